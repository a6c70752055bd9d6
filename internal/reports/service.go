package reports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

const urgencyCacheTTL = 5 * time.Minute

// ActiveLister loads the patients still under active management.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]patients.Patient, error)
}

// UrgencySnapshot is the cached urgent-patient summary for one day.
type UrgencySnapshot struct {
	Date       string               `json:"date"`
	Stats      patients.UrgentStats `json:"stats"`
	Active     int                  `json:"active_patients"`
	ComputedAt time.Time            `json:"computed_at"`
}

// Service computes dashboard summaries, with a short Redis cache in front
// of the urgency scan since every dashboard load asks for it.
type Service struct {
	patients ActiveLister
	cache    *redis.Client
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates a reports service. cache may be nil, which disables
// caching.
func NewService(lister ActiveLister, cache *redis.Client, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		patients: lister,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// UrgencySummary returns today's urgency tallies, served from cache when a
// snapshot from the last few minutes exists.
func (s *Service) UrgencySummary(ctx context.Context) (*UrgencySnapshot, error) {
	today := s.now()
	key := "reports:urgency:" + today.Format("2006-01-02")

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var snap UrgencySnapshot
			if err := json.Unmarshal([]byte(raw), &snap); err == nil {
				return &snap, nil
			}
			// Unreadable snapshot; fall through and recompute.
		} else if err != redis.Nil {
			s.logger.Warn("urgency cache read failed", "error", err)
		}
	}

	active, err := s.patients.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	snap := &UrgencySnapshot{
		Date:       today.Format("2006-01-02"),
		Stats:      patients.TallyUrgent(active, today),
		Active:     len(active),
		ComputedAt: today,
	}

	if s.cache != nil {
		payload, err := json.Marshal(snap)
		if err == nil {
			if err := s.cache.Set(ctx, key, payload, urgencyCacheTTL).Err(); err != nil {
				s.logger.Warn("urgency cache write failed", "error", err)
			}
		}
	}
	return snap, nil
}

// InvalidateUrgency drops today's cached snapshot, called after a status
// transition so the dashboard refreshes immediately.
func (s *Service) InvalidateUrgency(ctx context.Context) {
	if s.cache == nil {
		return
	}
	key := "reports:urgency:" + s.now().Format("2006-01-02")
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("urgency cache invalidation failed", "error", err)
	}
}
