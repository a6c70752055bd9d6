package calllog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/internal/observability/metrics"
	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Repository defines the storage operations the analyzer needs.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*CallLog, error)
	SetAIStatus(ctx context.Context, id uuid.UUID, status AIStatus) error
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis *AIAnalysis) error
}

// JobRecorder tracks analysis runs in DynamoDB so a call is analyzed once
// even when two staff members click analyze at the same time.
type JobRecorder interface {
	PutPending(ctx context.Context, job *AnalysisJobRecord) error
	MarkCompleted(ctx context.Context, jobID string, analysis *AIAnalysis) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// PatientUpdater cascades the analysis result onto the linked patient card.
type PatientUpdater interface {
	UpdateFields(ctx context.Context, id uuid.UUID, u patients.FieldUpdates) error
}

// Analyzer runs the AI analysis pipeline for one call log.
type Analyzer struct {
	repo       Repository
	summarizer *Summarizer
	jobs       JobRecorder
	patients   PatientUpdater
	metrics    *metrics.CRMMetrics
	publisher  events.Publisher
	logger     *logging.Logger
}

// AnalyzerConfig holds the analyzer dependencies. Jobs, Patients, Metrics
// and Publisher are optional.
type AnalyzerConfig struct {
	Repo       Repository
	Summarizer *Summarizer
	Jobs       JobRecorder
	Patients   PatientUpdater
	Metrics    *metrics.CRMMetrics
	Publisher  events.Publisher
	Logger     *logging.Logger
}

// NewAnalyzer creates the analysis pipeline.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Repo == nil {
		panic("calllog: analyzer repo cannot be nil")
	}
	if cfg.Summarizer == nil {
		panic("calllog: analyzer summarizer cannot be nil")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Analyzer{
		repo:       cfg.Repo,
		summarizer: cfg.Summarizer,
		jobs:       cfg.Jobs,
		patients:   cfg.Patients,
		metrics:    cfg.Metrics,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
	}
}

// Analyze loads the call, runs the summarizer, and writes the result back.
// On success the caller temperature and interest cascade onto the linked
// patient card and an analysis-completed event goes out to the dashboard.
func (a *Analyzer) Analyze(ctx context.Context, callID uuid.UUID) (*AIAnalysis, error) {
	call, err := a.repo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.AIStatus == AIProcessing {
		return nil, ErrAnalysisRunning
	}
	if call.Transcript == "" {
		return nil, ErrNoTranscript
	}

	if a.jobs != nil {
		job := &AnalysisJobRecord{JobID: callID.String(), Phone: call.Phone}
		if err := a.jobs.PutPending(ctx, job); err != nil {
			if errors.Is(err, ErrAnalysisRunning) {
				return nil, ErrAnalysisRunning
			}
			return nil, err
		}
	}

	if err := a.repo.SetAIStatus(ctx, callID, AIProcessing); err != nil {
		return nil, err
	}

	analysis, err := a.summarizer.Summarize(ctx, call.Transcript)
	if err != nil {
		a.fail(ctx, callID, err)
		return nil, err
	}

	if err := a.repo.SaveAnalysis(ctx, callID, analysis); err != nil {
		a.fail(ctx, callID, err)
		return nil, err
	}
	if a.jobs != nil {
		if jobErr := a.jobs.MarkCompleted(ctx, callID.String(), analysis); jobErr != nil {
			a.logger.Warn("failed to mark analysis job completed", "error", jobErr, "call_id", callID)
		}
	}
	if a.metrics != nil {
		a.metrics.ObserveAnalysis("completed")
	}

	a.cascade(ctx, call, analysis)
	a.publish(ctx, call, analysis)

	a.logger.Info("call analysis completed",
		"call_id", callID,
		"classification", analysis.Classification,
		"temperature", analysis.Temperature,
	)
	return analysis, nil
}

func (a *Analyzer) fail(ctx context.Context, callID uuid.UUID, cause error) {
	if err := a.repo.SetAIStatus(ctx, callID, AIFailed); err != nil {
		a.logger.Error("failed to mark call analysis failed", "error", err, "call_id", callID)
	}
	if a.jobs != nil {
		if err := a.jobs.MarkFailed(ctx, callID.String(), cause.Error()); err != nil {
			a.logger.Warn("failed to mark analysis job failed", "error", err, "call_id", callID)
		}
	}
	if a.metrics != nil {
		a.metrics.ObserveAnalysis("failed")
	}
}

// cascade copies temperature and interest onto the patient card so the
// funnel list reflects the latest call without a manual edit.
func (a *Analyzer) cascade(ctx context.Context, call *CallLog, analysis *AIAnalysis) {
	if a.patients == nil || call.PatientID == nil {
		return
	}

	updates := patients.FieldUpdates{}
	temp := patients.Temperature(analysis.Temperature)
	updates.Temperature = &temp
	if analysis.Interest != "" {
		updates.Interest = &analysis.Interest
	}

	if err := a.patients.UpdateFields(ctx, *call.PatientID, updates); err != nil {
		a.logger.Warn("failed to cascade analysis onto patient",
			"error", err, "call_id", call.ID, "patient_id", *call.PatientID)
	}
}

func (a *Analyzer) publish(ctx context.Context, call *CallLog, analysis *AIAnalysis) {
	event := events.CallAnalysisCompletedV1{
		EventID:        uuid.NewString(),
		CallLogID:      call.ID.String(),
		Phone:          call.Phone,
		Classification: string(analysis.Classification),
		Temperature:    analysis.Temperature,
		Summary:        analysis.Summary,
		Confidence:     analysis.Confidence,
		CompletedAt:    time.Now().UTC(),
	}
	if err := a.publisher.Publish(ctx, events.ChannelAnalysisCompleted, event); err != nil {
		a.logger.Warn("failed to publish analysis event", "error", err, "call_id", call.ID)
	}
}
