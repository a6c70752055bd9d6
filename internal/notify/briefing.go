package notify

import (
	"context"
	"time"

	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/internal/reports"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// ActivePatientLister provides the open funnel for the urgency tally.
type ActivePatientLister interface {
	ListActive(ctx context.Context) ([]patients.Patient, error)
}

// RecallStatsProvider provides the recall counters for the summary.
type RecallStatsProvider interface {
	RecallStats(ctx context.Context, since time.Time) (*reports.RecallStats, error)
}

// BriefingConfig tunes the morning summary loop.
type BriefingConfig struct {
	// Recipients are the staff inboxes the summary goes to.
	Recipients []string
	// SendHour is the local hour the summary goes out.
	SendHour int
}

// Briefing emails clinic staff the morning worklist summary once per day.
type Briefing struct {
	svc      *Service
	patients ActivePatientLister
	recall   RecallStatsProvider
	cfg      BriefingConfig
	logger   *logging.Logger

	now      func() time.Time
	lastSent time.Time
}

// NewBriefing creates the morning summary loop.
func NewBriefing(svc *Service, pl ActivePatientLister, rs RecallStatsProvider, cfg BriefingConfig, logger *logging.Logger) *Briefing {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SendHour <= 0 {
		cfg.SendHour = 9
	}
	return &Briefing{
		svc:      svc,
		patients: pl,
		recall:   rs,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now() },
	}
}

// Run checks hourly and sends the summary once the send hour passes.
func (b *Briefing) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	b.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick sends the summary when it is due. Exposed for the worker loop.
func (b *Briefing) Tick(ctx context.Context) {
	now := b.now()
	if len(b.cfg.Recipients) == 0 || now.Hour() < b.cfg.SendHour {
		return
	}
	if sameDay(b.lastSent, now) {
		return
	}
	if err := b.send(ctx, now); err != nil {
		b.logger.Error("failed to send daily summary", "error", err)
		return
	}
	b.lastSent = now
}

func (b *Briefing) send(ctx context.Context, now time.Time) error {
	active, err := b.patients.ListActive(ctx)
	if err != nil {
		return err
	}
	stats := patients.TallyUrgent(active, now)

	sum := DailySummary{
		Date:     now,
		NoShow:   stats.NoShow,
		DueToday: stats.Today,
		Overdue:  stats.Overdue,
	}
	if b.recall != nil {
		rs, err := b.recall.RecallStats(ctx, now.AddDate(0, 0, -30))
		if err != nil {
			b.logger.Warn("failed to load recall stats for summary", "error", err)
		} else {
			sum.RecallPending = rs.Pending
			sum.CallNeeded = rs.CallNeeded
		}
	}

	if err := b.svc.SendDailySummary(ctx, b.cfg.Recipients, sum); err != nil {
		return err
	}
	b.logger.Info("daily summary sent",
		"recipients", len(b.cfg.Recipients),
		"noshow", sum.NoShow, "due_today", sum.DueToday, "overdue", sum.Overdue,
	)
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
