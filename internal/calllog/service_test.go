package calllog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/internal/patients"
)

type fakeCallRepo struct {
	calls map[uuid.UUID]*CallLog
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: map[uuid.UUID]*CallLog{}}
}

func (f *fakeCallRepo) GetByID(_ context.Context, id uuid.UUID) (*CallLog, error) {
	c, ok := f.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCallRepo) SetAIStatus(_ context.Context, id uuid.UUID, status AIStatus) error {
	c, ok := f.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.AIStatus = status
	return nil
}

func (f *fakeCallRepo) SaveAnalysis(_ context.Context, id uuid.UUID, analysis *AIAnalysis) error {
	c, ok := f.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.AIStatus = AICompleted
	c.Analysis = analysis
	return nil
}

type fakeJobs struct {
	mu        sync.Mutex
	pending   map[string]bool
	completed []string
	failed    []string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{pending: map[string]bool{}}
}

func (f *fakeJobs) PutPending(_ context.Context, job *AnalysisJobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending[job.JobID] {
		return ErrAnalysisRunning
	}
	f.pending[job.JobID] = true
	return nil
}

func (f *fakeJobs) MarkCompleted(_ context.Context, jobID string, _ *AIAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, jobID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, jobID)
	return nil
}

type fakePatients struct {
	updates map[uuid.UUID]patients.FieldUpdates
}

func (f *fakePatients) UpdateFields(_ context.Context, id uuid.UUID, u patients.FieldUpdates) error {
	if f.updates == nil {
		f.updates = map[uuid.UUID]patients.FieldUpdates{}
	}
	f.updates[id] = u
	return nil
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

const analysisJSON = `{"classification":"신환","temperature":"hot","interest":"교정","summary":"교정 상담 문의","follow_up":"견적 안내","confidence":0.9}`

func TestAnalyzeCompletesAndCascades(t *testing.T) {
	repo := newFakeCallRepo()
	patientID := uuid.New()
	call := &CallLog{
		ID:         uuid.New(),
		Phone:      "010-1234-5678",
		PatientID:  &patientID,
		Transcript: "고객: 교정 상담 받고 싶어요.",
		AIStatus:   AIPending,
		StartedAt:  time.Now(),
	}
	repo.calls[call.ID] = call

	jobs := newFakeJobs()
	pats := &fakePatients{}
	pub := &capturingPublisher{}
	analyzer := NewAnalyzer(AnalyzerConfig{
		Repo:       repo,
		Summarizer: NewSummarizer(&stubLLM{text: analysisJSON}, "claude-3-haiku"),
		Jobs:       jobs,
		Patients:   pats,
		Publisher:  pub,
	})

	analysis, err := analyzer.Analyze(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Equal(t, ClassNewPatient, analysis.Classification)

	assert.Equal(t, AICompleted, repo.calls[call.ID].AIStatus)
	require.NotNil(t, repo.calls[call.ID].Analysis)

	// Temperature and interest land on the patient card.
	update, ok := pats.updates[patientID]
	require.True(t, ok)
	require.NotNil(t, update.Temperature)
	assert.Equal(t, patients.TemperatureHot, *update.Temperature)
	require.NotNil(t, update.Interest)
	assert.Equal(t, "교정", *update.Interest)

	assert.Equal(t, []string{call.ID.String()}, jobs.completed)

	require.Len(t, pub.channels, 1)
	assert.Equal(t, events.ChannelAnalysisCompleted, pub.channels[0])
	event, ok := pub.payloads[0].(events.CallAnalysisCompletedV1)
	require.True(t, ok)
	assert.Equal(t, call.ID.String(), event.CallLogID)
	assert.Equal(t, "신환", event.Classification)
}

func TestAnalyzeRejectsMissingTranscript(t *testing.T) {
	repo := newFakeCallRepo()
	call := &CallLog{ID: uuid.New(), Phone: "010-0000-0000", AIStatus: AIPending}
	repo.calls[call.ID] = call

	analyzer := NewAnalyzer(AnalyzerConfig{
		Repo:       repo,
		Summarizer: NewSummarizer(&stubLLM{}, "m"),
	})

	_, err := analyzer.Analyze(context.Background(), call.ID)
	assert.ErrorIs(t, err, ErrNoTranscript)
	assert.Equal(t, AIPending, repo.calls[call.ID].AIStatus)
}

func TestAnalyzeRejectsConcurrentRun(t *testing.T) {
	repo := newFakeCallRepo()
	call := &CallLog{ID: uuid.New(), Transcript: "t", AIStatus: AIProcessing}
	repo.calls[call.ID] = call

	analyzer := NewAnalyzer(AnalyzerConfig{
		Repo:       repo,
		Summarizer: NewSummarizer(&stubLLM{}, "m"),
	})

	_, err := analyzer.Analyze(context.Background(), call.ID)
	assert.ErrorIs(t, err, ErrAnalysisRunning)
}

func TestAnalyzeDuplicateJobRejected(t *testing.T) {
	repo := newFakeCallRepo()
	call := &CallLog{ID: uuid.New(), Transcript: "t", AIStatus: AIPending}
	repo.calls[call.ID] = call

	jobs := newFakeJobs()
	jobs.pending[call.ID.String()] = true

	analyzer := NewAnalyzer(AnalyzerConfig{
		Repo:       repo,
		Summarizer: NewSummarizer(&stubLLM{text: analysisJSON}, "m"),
		Jobs:       jobs,
	})

	_, err := analyzer.Analyze(context.Background(), call.ID)
	assert.ErrorIs(t, err, ErrAnalysisRunning)
}

func TestAnalyzeMarksFailureOnLLMError(t *testing.T) {
	repo := newFakeCallRepo()
	call := &CallLog{ID: uuid.New(), Transcript: "t", AIStatus: AIPending}
	repo.calls[call.ID] = call

	jobs := newFakeJobs()
	analyzer := NewAnalyzer(AnalyzerConfig{
		Repo:       repo,
		Summarizer: NewSummarizer(&stubLLM{err: errors.New("model down")}, "m"),
		Jobs:       jobs,
	})

	_, err := analyzer.Analyze(context.Background(), call.ID)
	require.Error(t, err)
	assert.Equal(t, AIFailed, repo.calls[call.ID].AIStatus)
	assert.Equal(t, []string{call.ID.String()}, jobs.failed)
}

func TestAnalyzeWithoutPatientSkipsCascade(t *testing.T) {
	repo := newFakeCallRepo()
	call := &CallLog{ID: uuid.New(), Phone: "010-9999-9999", Transcript: "t", AIStatus: AIPending}
	repo.calls[call.ID] = call

	pats := &fakePatients{}
	analyzer := NewAnalyzer(AnalyzerConfig{
		Repo:       repo,
		Summarizer: NewSummarizer(&stubLLM{text: analysisJSON}, "m"),
		Patients:   pats,
	})

	_, err := analyzer.Analyze(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Empty(t, pats.updates)
}
