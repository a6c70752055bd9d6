package callbacks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	callbacks map[uuid.UUID]*Callback
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{callbacks: map[uuid.UUID]*Callback{}}
}

func (f *fakeRepo) Create(_ context.Context, c *Callback) error {
	if !c.Type.Valid() {
		return ErrUnknownType
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	f.callbacks[c.ID] = c
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Callback, error) {
	c, ok := f.callbacks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) List(_ context.Context, filter ListFilter) ([]Callback, error) {
	var out []Callback
	for _, c := range f.callbacks {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeRepo) ListOverdue(_ context.Context, today time.Time) ([]Callback, error) {
	var out []Callback
	for _, c := range f.callbacks {
		if c.Overdue(today) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeRepo) Resolve(_ context.Context, id uuid.UUID, outcome Status, resultNote string) (*Callback, error) {
	if outcome != StatusCompleted && outcome != StatusMissed {
		return nil, ErrUnknownStatus
	}
	c, ok := f.callbacks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != StatusPending {
		return nil, ErrNotPending
	}
	now := time.Now().UTC()
	c.Status = outcome
	c.ResultNote = resultNote
	c.CompletedAt = &now
	return c, nil
}

func newTestRouter(repo Repository) http.Handler {
	h := NewHandler(repo, nil)
	r := chi.NewRouter()
	r.Route("/callbacks", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/overdue", h.Overdue)
		r.Post("/{callbackID}/resolve", h.Resolve)
	})
	return r
}

func TestHandlerCreateCallback(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)

	body := `{"patient_id":"` + uuid.NewString() + `","type":"callback","scheduled_at":"2026-09-01","note":"재통화"}`
	req := httptest.NewRequest(http.MethodPost, "/callbacks", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var c Callback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, TypeCallback, c.Type)
}

func TestHandlerCreateRejectsBadInput(t *testing.T) {
	router := newTestRouter(newFakeRepo())

	tests := []struct {
		name string
		body string
	}{
		{"bad patient id", `{"patient_id":"abc","type":"callback","scheduled_at":"2026-09-01"}`},
		{"bad date", `{"patient_id":"` + uuid.NewString() + `","type":"callback","scheduled_at":"next week"}`},
		{"unknown type", `{"patient_id":"` + uuid.NewString() + `","type":"reminder","scheduled_at":"2026-09-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/callbacks", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlerOverdueList(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)

	overdue := &Callback{ID: uuid.New(), PatientID: uuid.New(), Type: TypeRecall,
		Status: StatusPending, ScheduledAt: time.Now().AddDate(0, 0, -2)}
	pendingToday := &Callback{ID: uuid.New(), PatientID: uuid.New(), Type: TypeCallback,
		Status: StatusPending, ScheduledAt: time.Now()}
	repo.callbacks[overdue.ID] = overdue
	repo.callbacks[pendingToday.ID] = pendingToday

	req := httptest.NewRequest(http.MethodGet, "/callbacks/overdue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Callbacks []Callback `json:"callbacks"`
		Count     int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, overdue.ID, resp.Callbacks[0].ID)
}

func TestHandlerResolve(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)

	c := &Callback{ID: uuid.New(), PatientID: uuid.New(), Type: TypeCallback,
		Status: StatusPending, ScheduledAt: time.Now()}
	repo.callbacks[c.ID] = c

	body := `{"outcome":"completed","result_note":"예약 확정"}`
	req := httptest.NewRequest(http.MethodPost, "/callbacks/"+c.ID.String()+"/resolve", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, "예약 확정", c.ResultNote)

	// Resolving twice is a client error.
	req = httptest.NewRequest(http.MethodPost, "/callbacks/"+c.ID.String()+"/resolve", bytes.NewBufferString(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerResolveUnknownCallback(t *testing.T) {
	router := newTestRouter(newFakeRepo())

	body := `{"outcome":"missed"}`
	req := httptest.NewRequest(http.MethodPost, "/callbacks/"+uuid.NewString()+"/resolve", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
