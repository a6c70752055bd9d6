package recall

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

// Store persists recall rules and dispatches.
type Store struct {
	db DB
}

// NewStore creates a recall store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ListRules returns every rule for a treatment in sort order. An empty
// treatment lists all rules.
func (s *Store) ListRules(ctx context.Context, treatment string) ([]Rule, error) {
	query := `SELECT id, treatment, timing, template, enabled, sort_order, created_at, updated_at
		FROM recall_rules`
	var args []any
	if treatment != "" {
		query += ` WHERE treatment = $1`
		args = append(args, treatment)
	}
	query += ` ORDER BY treatment, sort_order`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recall: list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Treatment, &r.Timing, &r.Template, &r.Enabled, &r.SortOrder, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("recall: scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpsertRule creates or replaces the rule for (treatment, timing). The timing
// label must parse so a bad rule can never poison the scheduler.
func (s *Store) UpsertRule(ctx context.Context, r *Rule) error {
	if _, err := ParseTiming(r.Timing); err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.UpdatedAt = now
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO recall_rules (id, treatment, timing, template, enabled, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (treatment, timing) DO UPDATE SET
			template = EXCLUDED.template, enabled = EXCLUDED.enabled,
			sort_order = EXCLUDED.sort_order, updated_at = EXCLUDED.updated_at`,
		r.ID, r.Treatment, r.Timing, r.Template, r.Enabled, r.SortOrder, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("recall: upsert rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM recall_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("recall: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ExistingTimings returns the timing labels already dispatched for
// (patient, treatment), the scheduler's idempotency set.
func (s *Store) ExistingTimings(ctx context.Context, patientID uuid.UUID, treatment string) (map[string]bool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT timing FROM recall_dispatches WHERE patient_id = $1 AND treatment = $2`,
		patientID, treatment)
	if err != nil {
		return nil, fmt.Errorf("recall: existing timings: %w", err)
	}
	defer rows.Close()

	timings := map[string]bool{}
	for rows.Next() {
		var timing string
		if err := rows.Scan(&timing); err != nil {
			return nil, fmt.Errorf("recall: scan timing: %w", err)
		}
		timings[timing] = true
	}
	return timings, rows.Err()
}

// CreateDispatch inserts a dispatch, silently skipping duplicates on the
// (patient, treatment, timing) unique key. Returns true when a row was
// actually inserted.
func (s *Store) CreateDispatch(ctx context.Context, d *Dispatch) (bool, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DispatchPending
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	tag, err := s.db.Exec(ctx, `
		INSERT INTO recall_dispatches (id, patient_id, treatment, timing, message, due_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (patient_id, treatment, timing) DO NOTHING`,
		d.ID, d.PatientID, d.Treatment, d.Timing, d.Message, d.DueDate, string(d.Status), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("recall: create dispatch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const dispatchColumns = `d.id, d.patient_id, p.name, p.phone, d.treatment, d.timing, d.message,
	d.due_date, d.status, d.sent_at, d.booked_at, d.created_at, d.updated_at`

// GetDispatch loads one dispatch joined with its patient.
func (s *Store) GetDispatch(ctx context.Context, id uuid.UUID) (*Dispatch, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+dispatchColumns+`
		FROM recall_dispatches d JOIN patients p ON p.id = d.patient_id
		WHERE d.id = $1`, id)
	d, err := scanDispatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDispatchNotFound
		}
		return nil, fmt.Errorf("recall: get dispatch: %w", err)
	}
	return d, nil
}

// DispatchFilter narrows ListDispatches. Zero values mean "no filter".
type DispatchFilter struct {
	PatientID uuid.UUID
	Status    DispatchStatus
	Treatment string
}

// ListDispatches returns dispatches matching the filter, due soonest first.
func (s *Store) ListDispatches(ctx context.Context, filter DispatchFilter) ([]Dispatch, error) {
	var (
		where []string
		args  []any
	)
	if filter.PatientID != uuid.Nil {
		args = append(args, filter.PatientID)
		where = append(where, fmt.Sprintf("d.patient_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("d.status = $%d", len(args)))
	}
	if filter.Treatment != "" {
		args = append(args, filter.Treatment)
		where = append(where, fmt.Sprintf("d.treatment = $%d", len(args)))
	}

	query := `SELECT ` + dispatchColumns + ` FROM recall_dispatches d JOIN patients p ON p.id = d.patient_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.due_date ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recall: list dispatches: %w", err)
	}
	defer rows.Close()
	return scanDispatches(rows)
}

// ListDue returns pending dispatches whose due date has arrived.
func (s *Store) ListDue(ctx context.Context, today time.Time) ([]Dispatch, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+dispatchColumns+`
		FROM recall_dispatches d JOIN patients p ON p.id = d.patient_id
		WHERE d.status = 'pending' AND d.due_date::date <= $1
		ORDER BY d.due_date ASC`, today.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("recall: list due: %w", err)
	}
	defer rows.Close()
	return scanDispatches(rows)
}

// MarkSent moves a pending dispatch to sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE recall_dispatches SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, sentAt, id)
	if err != nil {
		return fmt.Errorf("recall: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDispatchNotFound
	}
	return nil
}

// MarkBooked records that the patient responded with a booking. Both sent
// and call-needed dispatches can convert; a booking recorded after the staff
// call is still a booking. Pending dispatches cannot: nothing went out yet.
func (s *Store) MarkBooked(ctx context.Context, id uuid.UUID, bookedAt time.Time) (*Dispatch, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE recall_dispatches SET status = 'booked', booked_at = $1, updated_at = $1
		WHERE id = $2 AND status IN ('sent', 'call-needed')`, bookedAt, id)
	if err != nil {
		return nil, fmt.Errorf("recall: mark booked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetDispatch(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotBookable
	}
	return s.GetDispatch(ctx, id)
}

// EscalateUnanswered flips every sent dispatch past the response window to
// call-needed and returns the escalated rows for worklist creation.
func (s *Store) EscalateUnanswered(ctx context.Context, today time.Time, responseDays int) ([]Dispatch, error) {
	cutoff := today.AddDate(0, 0, -responseDays).Format("2006-01-02")
	rows, err := s.db.Query(ctx, `
		UPDATE recall_dispatches d SET status = 'call-needed', updated_at = now()
		FROM patients p
		WHERE p.id = d.patient_id AND d.status = 'sent' AND d.sent_at::date <= $1
		RETURNING `+dispatchColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("recall: escalate unanswered: %w", err)
	}
	defer rows.Close()
	return scanDispatches(rows)
}

func scanDispatch(row pgx.Row) (*Dispatch, error) {
	var (
		d      Dispatch
		status string
	)
	err := row.Scan(
		&d.ID, &d.PatientID, &d.PatientName, &d.Phone, &d.Treatment, &d.Timing, &d.Message,
		&d.DueDate, &status, &d.SentAt, &d.BookedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = DispatchStatus(status)
	return &d, nil
}

func scanDispatches(rows pgx.Rows) ([]Dispatch, error) {
	var result []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("recall: scan dispatch: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}
