package calllog

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

type fakeHandlerRepo struct {
	calls map[uuid.UUID]*CallLog
}

func newFakeHandlerRepo() *fakeHandlerRepo {
	return &fakeHandlerRepo{calls: map[uuid.UUID]*CallLog{}}
}

func (f *fakeHandlerRepo) Create(_ context.Context, c *CallLog) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Direction == "" {
		c.Direction = DirectionInbound
	}
	if c.Status == "" {
		c.Status = CallConnected
	}
	if c.AIStatus == "" {
		c.AIStatus = AIPending
	}
	f.calls[c.ID] = c
	return nil
}

func (f *fakeHandlerRepo) GetByID(_ context.Context, id uuid.UUID) (*CallLog, error) {
	c, ok := f.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *fakeHandlerRepo) List(_ context.Context, filter ListFilter) ([]CallLog, error) {
	var out []CallLog
	for _, c := range f.calls {
		if filter.Phone != "" && c.Phone != filter.Phone {
			continue
		}
		if filter.AIStatus != "" && c.AIStatus != filter.AIStatus {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeHandlerRepo) LinkPatient(_ context.Context, id, patientID uuid.UUID) error {
	c, ok := f.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.PatientID = &patientID
	return nil
}

func (f *fakeHandlerRepo) AttachRecording(_ context.Context, id uuid.UUID, url, key string) error {
	c, ok := f.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.RecordingURL = url
	c.RecordingKey = key
	return nil
}

type fakeRecordingStorer struct {
	payload     []byte
	contentType string
	key         string
	err         error
}

func (f *fakeRecordingStorer) Store(_ context.Context, callID uuid.UUID, _ time.Time, payload []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payload = payload
	f.contentType = contentType
	f.key = "recordings/2026/08/20/" + callID.String() + ".mp3"
	return f.key, nil
}

func (f *fakeRecordingStorer) URL(key string) string {
	return "s3://test-recordings/" + key
}

type fakeAnalyzer struct {
	analysis *AIAnalysis
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ uuid.UUID) (*AIAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func newCallRouter(repo HandlerRepository, analyzer AnalysisRunner, archive RecordingStorer) http.Handler {
	h := NewHandler(repo, analyzer, archive, nil)
	r := chi.NewRouter()
	r.Route("/calls", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{callID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/analyze", h.Analyze)
			r.Post("/patient", h.LinkPatient)
			r.Post("/recording", h.UploadRecording)
		})
	})
	return r
}

func TestHandlerCreateCall(t *testing.T) {
	repo := newFakeHandlerRepo()
	router := newCallRouter(repo, nil, nil)

	body := `{"phone":"010-1234-5678","direction":"inbound","status":"connected","duration_seconds":95,"started_at":"2026-08-20T10:15:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/calls", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.calls, 1)
	for _, c := range repo.calls {
		assert.Equal(t, "010-1234-5678", c.Phone)
		assert.Equal(t, 95, c.Duration)
		assert.Equal(t, time.Date(2026, 8, 20, 10, 15, 0, 0, time.UTC), c.StartedAt)
	}
}

func TestHandlerCreateRequiresPhone(t *testing.T) {
	router := newCallRouter(newFakeHandlerRepo(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/calls", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAnalyzeReturnsResult(t *testing.T) {
	repo := newFakeHandlerRepo()
	call := &CallLog{ID: uuid.New(), Phone: "010-1234-5678", Transcript: "t"}
	repo.calls[call.ID] = call

	analyzer := &fakeAnalyzer{analysis: &AIAnalysis{
		Classification: ClassNewPatient,
		Temperature:    "hot",
		Summary:        "임플란트 상담 문의",
		Confidence:     0.9,
	}}
	router := newCallRouter(repo, analyzer, nil)

	req := httptest.NewRequest(http.MethodPost, "/calls/"+call.ID.String()+"/analyze", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got AIAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ClassNewPatient, got.Classification)
}

func TestHandlerAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"no transcript", ErrNoTranscript, http.StatusBadRequest},
		{"already running", ErrAnalysisRunning, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newCallRouter(newFakeHandlerRepo(), &fakeAnalyzer{err: tt.err}, nil)

			req := httptest.NewRequest(http.MethodPost, "/calls/"+uuid.NewString()+"/analyze", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandlerLinkPatient(t *testing.T) {
	repo := newFakeHandlerRepo()
	call := &CallLog{ID: uuid.New(), Phone: "010-1234-5678"}
	repo.calls[call.ID] = call
	router := newCallRouter(repo, nil, nil)

	patientID := uuid.New()
	body := `{"patient_id":"` + patientID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/calls/"+call.ID.String()+"/patient", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, call.PatientID)
	assert.Equal(t, patientID, *call.PatientID)
}

func TestHandlerUploadRecording(t *testing.T) {
	repo := newFakeHandlerRepo()
	call := &CallLog{ID: uuid.New(), Phone: "010-1234-5678", StartedAt: time.Date(2026, 8, 20, 10, 15, 0, 0, time.UTC)}
	repo.calls[call.ID] = call
	archive := &fakeRecordingStorer{}
	router := newCallRouter(repo, nil, archive)

	req := httptest.NewRequest(http.MethodPost, "/calls/"+call.ID.String()+"/recording", bytes.NewBufferString("audio-bytes"))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("audio-bytes"), archive.payload)
	assert.Equal(t, "audio/wav", archive.contentType)
	assert.Equal(t, archive.key, call.RecordingKey)
	assert.Equal(t, "s3://test-recordings/"+archive.key, call.RecordingURL)
}

func TestHandlerUploadRecordingUnconfigured(t *testing.T) {
	repo := newFakeHandlerRepo()
	call := &CallLog{ID: uuid.New(), Phone: "010-1234-5678"}
	repo.calls[call.ID] = call
	router := newCallRouter(repo, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/calls/"+call.ID.String()+"/recording", bytes.NewBufferString("audio"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerUploadRecordingEmptyBody(t *testing.T) {
	repo := newFakeHandlerRepo()
	call := &CallLog{ID: uuid.New(), Phone: "010-1234-5678"}
	repo.calls[call.ID] = call
	router := newCallRouter(repo, nil, &fakeRecordingStorer{})

	req := httptest.NewRequest(http.MethodPost, "/calls/"+call.ID.String()+"/recording", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListFiltersByAIStatus(t *testing.T) {
	repo := newFakeHandlerRepo()
	pending := &CallLog{ID: uuid.New(), Phone: "010-1111-1111", AIStatus: AIPending}
	done := &CallLog{ID: uuid.New(), Phone: "010-2222-2222", AIStatus: AICompleted}
	repo.calls[pending.ID] = pending
	repo.calls[done.ID] = done
	router := newCallRouter(repo, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/calls?ai_status=pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Calls []CallLog `json:"calls"`
		Count int       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, pending.ID, resp.Calls[0].ID)
}
