// Package reports aggregates the funnel, recall, and revenue numbers shown
// on the clinic dashboard.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/catchallhq/dental-crm/internal/patients"
)

// DB abstracts the pgx pool interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs the report queries.
type Store struct {
	db DB
}

// NewStore creates a reports store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// FunnelCount is the patient count at one funnel stage.
type FunnelCount struct {
	Status patients.Status `json:"status"`
	Label  string          `json:"label"`
	Count  int             `json:"count"`
}

// FunnelCounts returns patient counts for every stage, in funnel order.
// Stages with no patients still appear with a zero count.
func (s *Store) FunnelCounts(ctx context.Context) ([]FunnelCount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, count(*) FROM patients GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("reports: funnel counts: %w", err)
	}
	defer rows.Close()

	counts := map[patients.Status]int{}
	for rows.Next() {
		var (
			status patients.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("reports: scan funnel count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: funnel counts: %w", err)
	}

	out := make([]FunnelCount, 0, len(patients.FunnelOrder))
	for _, status := range patients.FunnelOrder {
		out = append(out, FunnelCount{
			Status: status,
			Label:  status.Label(),
			Count:  counts[status],
		})
	}
	return out, nil
}

// RecallStats summarizes recall dispatch outcomes for one period.
type RecallStats struct {
	Pending        int     `json:"pending"`
	Sent           int     `json:"sent"`
	Booked         int     `json:"booked"`
	CallNeeded     int     `json:"call_needed"`
	ConversionRate float64 `json:"conversion_rate"`
}

// RecallStats counts dispatches by status since the given date. The
// conversion rate is booked over everything that went out.
func (s *Store) RecallStats(ctx context.Context, since time.Time) (*RecallStats, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, count(*) FROM recall_dispatches
		WHERE created_at >= $1 GROUP BY status`, since)
	if err != nil {
		return nil, fmt.Errorf("reports: recall stats: %w", err)
	}
	defer rows.Close()

	var stats RecallStats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("reports: scan recall stat: %w", err)
		}
		switch status {
		case "pending":
			stats.Pending = count
		case "sent":
			stats.Sent = count
		case "booked":
			stats.Booked = count
		case "call-needed":
			stats.CallNeeded = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: recall stats: %w", err)
	}

	delivered := stats.Sent + stats.Booked + stats.CallNeeded
	if delivered > 0 {
		stats.ConversionRate = float64(stats.Booked) / float64(delivered)
	}
	return &stats, nil
}

// MonthlyRevenue is the treatment revenue roll-up for one month.
type MonthlyRevenue struct {
	Month          string `json:"month"` // YYYY-MM
	PatientCount   int    `json:"patient_count"`
	EstimatedTotal int64  `json:"estimated_total"`
	ActualTotal    int64  `json:"actual_total"`
}

// Revenue rolls up treatment amounts by the month treatment started.
func (s *Store) Revenue(ctx context.Context, year int) ([]MonthlyRevenue, error) {
	rows, err := s.db.Query(ctx, `
		SELECT to_char(treatment_start_date, 'YYYY-MM') AS month,
			count(*),
			coalesce(sum(estimated_amount), 0),
			coalesce(sum(actual_amount), 0)
		FROM patients
		WHERE treatment_start_date IS NOT NULL
			AND extract(year FROM treatment_start_date) = $1
		GROUP BY month ORDER BY month`, year)
	if err != nil {
		return nil, fmt.Errorf("reports: revenue: %w", err)
	}
	defer rows.Close()

	var out []MonthlyRevenue
	for rows.Next() {
		var m MonthlyRevenue
		if err := rows.Scan(&m.Month, &m.PatientCount, &m.EstimatedTotal, &m.ActualTotal); err != nil {
			return nil, fmt.Errorf("reports: scan revenue: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
