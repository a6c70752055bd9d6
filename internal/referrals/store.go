package referrals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists referrals.
type Store struct {
	db DB
}

// NewStore creates a referral store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const referralColumns = `r.id, r.referrer_id, rp.name, r.referred_id, dp.name,
	r.thanks_sent, r.thanks_sent_at, r.created_at`

const referralJoin = ` FROM referrals r
	JOIN patients rp ON rp.id = r.referrer_id
	JOIN patients dp ON dp.id = r.referred_id`

// Create records a referral. The (referrer, referred) pair is unique.
func (s *Store) Create(ctx context.Context, r *Referral) error {
	if r.ReferrerID == r.ReferredID {
		return ErrSelfReferral
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()

	tag, err := s.db.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, thanks_sent, created_at)
		VALUES ($1, $2, $3, false, $4)
		ON CONFLICT (referrer_id, referred_id) DO NOTHING`,
		r.ID, r.ReferrerID, r.ReferredID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("referrals: create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetByID loads one referral with both patient names.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	row := s.db.QueryRow(ctx, `SELECT `+referralColumns+referralJoin+` WHERE r.id = $1`, id)
	r, err := scanReferral(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("referrals: get by id: %w", err)
	}
	return r, nil
}

// ListByReferrer returns the referrals a patient made, newest first.
func (s *Store) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]Referral, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+referralColumns+referralJoin+`
		WHERE r.referrer_id = $1 ORDER BY r.created_at DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("referrals: list by referrer: %w", err)
	}
	defer rows.Close()
	return scanReferrals(rows)
}

// ListPendingThanks returns referrals that still owe a thank-you.
func (s *Store) ListPendingThanks(ctx context.Context) ([]Referral, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+referralColumns+referralJoin+`
		WHERE r.thanks_sent = false ORDER BY r.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("referrals: list pending thanks: %w", err)
	}
	defer rows.Close()
	return scanReferrals(rows)
}

// TopReferrers returns the leaderboard of referring patients.
func (s *Store) TopReferrers(ctx context.Context, limit int) ([]ReferrerStat, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT r.referrer_id, p.name, count(*) AS referral_count
		FROM referrals r JOIN patients p ON p.id = r.referrer_id
		GROUP BY r.referrer_id, p.name
		ORDER BY referral_count DESC, p.name
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("referrals: top referrers: %w", err)
	}
	defer rows.Close()

	var stats []ReferrerStat
	for rows.Next() {
		var st ReferrerStat
		if err := rows.Scan(&st.PatientID, &st.Name, &st.Count); err != nil {
			return nil, fmt.Errorf("referrals: scan stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// MarkThanksSent flips the thanks flag exactly once.
func (s *Store) MarkThanksSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (*Referral, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE referrals SET thanks_sent = true, thanks_sent_at = $1
		WHERE id = $2 AND thanks_sent = false`, sentAt, id)
	if err != nil {
		return nil, fmt.Errorf("referrals: mark thanks sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrThanksSent
	}
	return s.GetByID(ctx, id)
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var r Referral
	err := row.Scan(
		&r.ID, &r.ReferrerID, &r.ReferrerName, &r.ReferredID, &r.ReferredName,
		&r.ThanksSent, &r.ThanksSentAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanReferrals(rows pgx.Rows) ([]Referral, error) {
	var result []Referral
	for rows.Next() {
		r, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("referrals: scan referral: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}
