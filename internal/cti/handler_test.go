package cti

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

	"github.com/catchallhq/dental-crm/internal/calllog"
	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/internal/patients"
)

type fakeCalls struct {
	calls map[uuid.UUID]*calllog.CallLog
}

func newFakeCalls() *fakeCalls {
	return &fakeCalls{calls: map[uuid.UUID]*calllog.CallLog{}}
}

func (f *fakeCalls) Create(_ context.Context, c *calllog.CallLog) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.calls[c.ID] = c
	return nil
}

func (f *fakeCalls) GetByID(_ context.Context, id uuid.UUID) (*calllog.CallLog, error) {
	c, ok := f.calls[id]
	if !ok {
		return nil, calllog.ErrNotFound
	}
	return c, nil
}

func (f *fakeCalls) EndCall(_ context.Context, id uuid.UUID, endedAt time.Time, duration int, status calllog.CallStatus, transcript string) error {
	c, ok := f.calls[id]
	if !ok {
		return calllog.ErrNotFound
	}
	c.EndedAt = &endedAt
	c.Duration = duration
	if status != "" {
		c.Status = status
	}
	if transcript != "" {
		c.Transcript = transcript
	}
	return nil
}

type fakeLookup struct {
	byPhone map[string]*patients.Patient
}

func (f *fakeLookup) FindByPhone(_ context.Context, phone string) (*patients.Patient, error) {
	p, ok := f.byPhone[phone]
	if !ok {
		return nil, patients.ErrNotFound
	}
	return p, nil
}

type capturingPublisher struct {
	channels []string
	payloads []any
}

func (p *capturingPublisher) Publish(_ context.Context, channel string, payload any) error {
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

func newCTIRouter(calls CallRepository, lookup PatientLookup, pub events.Publisher) http.Handler {
	h := NewHandler(calls, lookup, pub, nil)
	r := chi.NewRouter()
	r.Post("/cti/calls/incoming", h.Incoming)
	r.Post("/cti/calls/ended", h.Ended)
	return r
}

func TestIncomingRecognizesKnownCaller(t *testing.T) {
	calls := newFakeCalls()
	patient := &patients.Patient{ID: uuid.New(), Name: "김민수", Phone: "010-1234-5678", Status: patients.StatusVisited}
	lookup := &fakeLookup{byPhone: map[string]*patients.Patient{patient.Phone: patient}}
	pub := &capturingPublisher{}
	router := newCTIRouter(calls, lookup, pub)

	body := `{"phone":"010-1234-5678","started_at":"2026-08-20T09:30:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/cti/calls/incoming", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp IncomingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Known)
	require.NotNil(t, resp.Patient)
	assert.Equal(t, "김민수", resp.Patient.Name)
	require.NotNil(t, resp.Call.PatientID)
	assert.Equal(t, patient.ID, *resp.Call.PatientID)

	require.Len(t, pub.channels, 1)
	assert.Equal(t, events.ChannelCTICallIncoming, pub.channels[0])
	event, ok := pub.payloads[0].(events.CTICallIncomingV1)
	require.True(t, ok)
	assert.Equal(t, patient.ID.String(), event.PatientID)
	assert.Equal(t, string(patients.StatusVisited), event.Status)
}

func TestIncomingUnknownCallerStillLogs(t *testing.T) {
	calls := newFakeCalls()
	pub := &capturingPublisher{}
	router := newCTIRouter(calls, &fakeLookup{}, pub)

	body := `{"phone":"010-9999-0000"}`
	req := httptest.NewRequest(http.MethodPost, "/cti/calls/incoming", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp IncomingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Known)
	assert.Nil(t, resp.Patient)
	assert.Len(t, calls.calls, 1)

	event, ok := pub.payloads[0].(events.CTICallIncomingV1)
	require.True(t, ok)
	assert.Empty(t, event.PatientID)
}

func TestIncomingRequiresPhone(t *testing.T) {
	router := newCTIRouter(newFakeCalls(), &fakeLookup{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/cti/calls/incoming", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndedClosesCallAndPublishes(t *testing.T) {
	calls := newFakeCalls()
	call := &calllog.CallLog{ID: uuid.New(), Phone: "010-1234-5678", Status: calllog.CallConnected}
	calls.calls[call.ID] = call
	pub := &capturingPublisher{}
	router := newCTIRouter(calls, &fakeLookup{}, pub)

	body := `{"call_log_id":"` + call.ID.String() + `","duration_seconds":183,"transcript":"상담 내용","ended_at":"2026-08-20T09:33:03Z"}`
	req := httptest.NewRequest(http.MethodPost, "/cti/calls/ended", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 183, call.Duration)
	assert.Equal(t, "상담 내용", call.Transcript)
	require.NotNil(t, call.EndedAt)

	require.Len(t, pub.channels, 1)
	assert.Equal(t, events.ChannelCTICallEnded, pub.channels[0])
	event, ok := pub.payloads[0].(events.CTICallEndedV1)
	require.True(t, ok)
	assert.Equal(t, call.ID.String(), event.CallLogID)
	assert.Equal(t, 183, event.Duration)
}

func TestEndedUnknownCall(t *testing.T) {
	router := newCTIRouter(newFakeCalls(), &fakeLookup{}, nil)

	body := `{"call_log_id":"` + uuid.NewString() + `","duration_seconds":10}`
	req := httptest.NewRequest(http.MethodPost, "/cti/calls/ended", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
