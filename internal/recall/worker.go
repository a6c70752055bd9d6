package recall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/callbacks"
	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/internal/observability/metrics"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Sender delivers the outreach message to the patient's phone.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// CallbackCreator puts escalated dispatches on the staff call worklist.
type CallbackCreator interface {
	Create(ctx context.Context, c *callbacks.Callback) error
}

// WorkerConfig tunes the recall worker loop.
type WorkerConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// SendHour is the earliest local hour outreach goes out; before it the
	// sweep only escalates.
	SendHour int
	// ResponseDays is the no-response window before a sent dispatch
	// escalates to call-needed.
	ResponseDays int
}

// Worker drains the send queue, delivers due outreach, and escalates
// unanswered dispatches.
type Worker struct {
	store     *Store
	queue     queueClient
	sender    Sender
	callbacks CallbackCreator
	publisher events.Publisher
	metrics   *metrics.CRMMetrics
	logger    *logging.Logger
	cfg       WorkerConfig

	now func() time.Time
}

// NewWorker creates a recall worker.
func NewWorker(store *Store, queue queueClient, sender Sender, cb CallbackCreator, publisher events.Publisher, m *metrics.CRMMetrics, logger *logging.Logger, cfg WorkerConfig) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.SendHour <= 0 {
		cfg.SendHour = 10
	}
	if cfg.ResponseDays <= 0 {
		cfg.ResponseDays = 3
	}
	return &Worker{
		store:     store,
		queue:     queue,
		sender:    sender,
		callbacks: cb,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now() },
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("recall worker started",
		"interval", w.cfg.Interval.String(),
		"send_hour", w.cfg.SendHour,
		"response_days", w.cfg.ResponseDays,
	)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.Sweep(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("recall worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one pass: enqueue due dispatches (after the send hour), drain
// the queue, and escalate unanswered sends.
func (w *Worker) Sweep(ctx context.Context) {
	now := w.now()
	if now.Hour() >= w.cfg.SendHour {
		w.enqueueDue(ctx, now)
		w.drainQueue(ctx)
	}
	w.escalate(ctx, now)
}

func (w *Worker) enqueueDue(ctx context.Context, now time.Time) {
	due, err := w.store.ListDue(ctx, now)
	if err != nil {
		w.logger.Error("failed to list due dispatches", "error", err)
		return
	}
	for _, d := range due {
		body, err := encodeSendJob(sendJob{DispatchID: d.ID})
		if err != nil {
			w.logger.Error("failed to encode send job", "error", err, "dispatch_id", d.ID)
			continue
		}
		if err := w.queue.Send(ctx, body); err != nil {
			w.logger.Error("failed to enqueue send job", "error", err, "dispatch_id", d.ID)
		}
	}
}

func (w *Worker) drainQueue(ctx context.Context) {
	for {
		// Short wait so an emptied queue ends the pass.
		messages, err := w.queue.Receive(ctx, 10, 1)
		if err != nil {
			w.logger.Error("failed to receive send jobs", "error", err)
			return
		}
		if len(messages) == 0 {
			return
		}
		for _, msg := range messages {
			if err := w.processSendJob(ctx, msg.Body); err != nil {
				w.logger.Error("failed to process send job", "error", err, "message_id", msg.ID)
				continue
			}
			if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
				w.logger.Warn("failed to delete send job", "error", err, "message_id", msg.ID)
			}
		}
	}
}

func (w *Worker) processSendJob(ctx context.Context, body string) error {
	job, err := decodeSendJob(body)
	if err != nil {
		return err
	}
	d, err := w.store.GetDispatch(ctx, job.DispatchID)
	if err != nil {
		return err
	}
	if d.Status != DispatchPending {
		// Duplicate delivery; the first send already advanced the status.
		return nil
	}

	if err := w.sender.SendSMS(ctx, d.Phone, d.Message); err != nil {
		return err
	}
	sentAt := w.now().UTC()
	if err := w.store.MarkSent(ctx, d.ID, sentAt); err != nil {
		return err
	}

	w.metrics.ObserveRecallSent()
	if err := w.publisher.Publish(ctx, events.ChannelRecallDispatchSent, events.RecallDispatchSentV1{
		EventID:   uuid.NewString(),
		PatientID: d.PatientID.String(),
		Treatment: d.Treatment,
		Timing:    d.Timing,
		SentAt:    sentAt,
	}); err != nil {
		w.logger.Warn("failed to publish recall sent event", "error", err, "dispatch_id", d.ID)
	}

	w.logger.Info("recall outreach sent",
		"dispatch_id", d.ID, "patient_id", d.PatientID,
		"treatment", d.Treatment, "timing", d.Timing,
	)
	return nil
}

func (w *Worker) escalate(ctx context.Context, now time.Time) {
	escalated, err := w.store.EscalateUnanswered(ctx, now, w.cfg.ResponseDays)
	if err != nil {
		w.logger.Error("failed to escalate dispatches", "error", err)
		return
	}
	for _, d := range escalated {
		w.metrics.ObserveRecallOutcome("call-needed")
		if w.callbacks != nil {
			cb := &callbacks.Callback{
				PatientID:   d.PatientID,
				Type:        callbacks.TypeRecall,
				ScheduledAt: now,
				Note:        "리콜 미응답: " + d.Treatment + " " + d.Timing,
			}
			if err := w.callbacks.Create(ctx, cb); err != nil {
				w.logger.Error("failed to create escalation callback", "error", err, "dispatch_id", d.ID)
			}
		}
		w.logger.Info("recall dispatch escalated",
			"dispatch_id", d.ID, "patient_id", d.PatientID, "days_passed", d.DaysPassed(now))
	}
}
