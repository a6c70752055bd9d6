package callbacks

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// Store persists worklist callbacks.
type Store struct {
	db DB
}

// NewStore creates a callback store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const callbackColumns = `c.id, c.patient_id, p.name, p.phone, c.type, c.status,
	c.scheduled_at, c.note, c.result_note, c.completed_at, c.created_at, c.updated_at`

// Create schedules a new callback.
func (s *Store) Create(ctx context.Context, c *Callback) error {
	if !c.Type.Valid() {
		return ErrUnknownType
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO callbacks (id, patient_id, type, status, scheduled_at, note, result_note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.PatientID, string(c.Type), string(c.Status), c.ScheduledAt, c.Note, c.ResultNote, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("callbacks: create: %w", err)
	}
	return nil
}

// GetByID loads a single callback joined with its patient.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Callback, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+callbackColumns+`
		FROM callbacks c JOIN patients p ON p.id = c.patient_id
		WHERE c.id = $1`, id)
	c, err := scanCallback(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("callbacks: get by id: %w", err)
	}
	return c, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	PatientID uuid.UUID
	Status    Status
	Type      Type
	// Date limits to items scheduled on that calendar day.
	Date *time.Time
}

// List returns callbacks matching the filter, soonest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Callback, error) {
	var (
		where []string
		args  []any
	)
	if filter.PatientID != uuid.Nil {
		args = append(args, filter.PatientID)
		where = append(where, fmt.Sprintf("c.patient_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("c.type = $%d", len(args)))
	}
	if filter.Date != nil {
		args = append(args, filter.Date.Format("2006-01-02"))
		where = append(where, fmt.Sprintf("c.scheduled_at::date = $%d", len(args)))
	}

	query := `SELECT ` + callbackColumns + ` FROM callbacks c JOIN patients p ON p.id = c.patient_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.scheduled_at ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("callbacks: list: %w", err)
	}
	defer rows.Close()
	return scanCallbacks(rows)
}

// ListOverdue returns pending callbacks scheduled strictly before today.
func (s *Store) ListOverdue(ctx context.Context, today time.Time) ([]Callback, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+callbackColumns+`
		FROM callbacks c JOIN patients p ON p.id = c.patient_id
		WHERE c.status = 'pending' AND c.scheduled_at::date < $1
		ORDER BY c.scheduled_at ASC`, today.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("callbacks: list overdue: %w", err)
	}
	defer rows.Close()
	return scanCallbacks(rows)
}

// Resolve closes a pending callback as completed or missed.
func (s *Store) Resolve(ctx context.Context, id uuid.UUID, outcome Status, resultNote string) (*Callback, error) {
	if outcome != StatusCompleted && outcome != StatusMissed {
		return nil, ErrUnknownStatus
	}
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE callbacks SET status = $1, result_note = $2, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'pending'`,
		string(outcome), resultNote, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("callbacks: resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the id is unknown or the callback was already resolved.
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotPending
	}
	return s.GetByID(ctx, id)
}

func scanCallback(row pgx.Row) (*Callback, error) {
	var (
		c           Callback
		typ, status string
	)
	err := row.Scan(
		&c.ID, &c.PatientID, &c.PatientName, &c.Phone, &typ, &status,
		&c.ScheduledAt, &c.Note, &c.ResultNote, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = Type(typ)
	c.Status = Status(status)
	return &c, nil
}

func scanCallbacks(rows pgx.Rows) ([]Callback, error) {
	var result []Callback
	for rows.Next() {
		c, err := scanCallback(rows)
		if err != nil {
			return nil, fmt.Errorf("callbacks: scan callback: %w", err)
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}
