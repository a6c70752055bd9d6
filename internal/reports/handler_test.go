package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchallhq/dental-crm/internal/patients"
)

type fakeReportsRepo struct {
	recallSince time.Time
	revenueYear int
}

func (f *fakeReportsRepo) FunnelCounts(_ context.Context) ([]FunnelCount, error) {
	return []FunnelCount{{Status: patients.StatusConsulting, Label: "전화상담", Count: 3}}, nil
}

func (f *fakeReportsRepo) RecallStats(_ context.Context, since time.Time) (*RecallStats, error) {
	f.recallSince = since
	return &RecallStats{Sent: 4, Booked: 2, ConversionRate: 0.5}, nil
}

func (f *fakeReportsRepo) Revenue(_ context.Context, year int) ([]MonthlyRevenue, error) {
	f.revenueYear = year
	return []MonthlyRevenue{{Month: "2026-08", PatientCount: 2, ActualTotal: 1_000_000}}, nil
}

type fakeUrgency struct{}

func (fakeUrgency) UrgencySummary(_ context.Context) (*UrgencySnapshot, error) {
	return &UrgencySnapshot{Date: "2026-08-20", Stats: patients.UrgentStats{NoShow: 1}}, nil
}

func newReportsRouter(repo Repository, urgency UrgencyReporter) http.Handler {
	h := NewHandler(repo, urgency, nil)
	r := chi.NewRouter()
	r.Route("/reports", func(r chi.Router) {
		r.Get("/funnel", h.Funnel)
		r.Get("/urgent", h.Urgent)
		r.Get("/recall", h.Recall)
		r.Get("/revenue", h.Revenue)
	})
	return r
}

func TestHandlerFunnel(t *testing.T) {
	router := newReportsRouter(&fakeReportsRepo{}, fakeUrgency{})

	req := httptest.NewRequest(http.MethodGet, "/reports/funnel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Funnel []FunnelCount `json:"funnel"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Funnel, 1)
	assert.Equal(t, 3, resp.Funnel[0].Count)
}

func TestHandlerUrgent(t *testing.T) {
	router := newReportsRouter(&fakeReportsRepo{}, fakeUrgency{})

	req := httptest.NewRequest(http.MethodGet, "/reports/urgent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap UrgencySnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Stats.NoShow)
}

func TestHandlerRecallDefaultsToThirtyDays(t *testing.T) {
	repo := &fakeReportsRepo{}
	router := newReportsRouter(repo, fakeUrgency{})

	req := httptest.NewRequest(http.MethodGet, "/reports/recall", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	expected := time.Now().AddDate(0, 0, -30)
	assert.WithinDuration(t, expected, repo.recallSince, time.Minute)
}

func TestHandlerRevenueYearParam(t *testing.T) {
	repo := &fakeReportsRepo{}
	router := newReportsRouter(repo, fakeUrgency{})

	req := httptest.NewRequest(http.MethodGet, "/reports/revenue?year=2025", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2025, repo.revenueYear)
}
