package patients

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
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists patients and their append-only status history.
type Store struct {
	db DB
}

// NewStore creates a patient store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const patientColumns = `id, name, phone, gender, age, region, status, status_changed_at,
	temperature, interest, source, next_action, next_action_date, treatment_start_date,
	closed_reason, memo, tags, estimated_amount, actual_amount, payment_status,
	treatment_note, version, created_at, updated_at`

// Create inserts a new patient. New patients enter the funnel at consulting
// unless a status is preset (e.g. an inbound call that booked immediately).
func (s *Store) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusConsulting
	}
	if !p.Status.Valid() {
		return ErrUnknownStatus
	}
	if p.StatusChangedAt.IsZero() {
		p.StatusChangedAt = now
	}
	if p.Temperature == "" {
		p.Temperature = TemperatureWarm
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = PaymentNone
	}
	p.Version = 1

	_, err := s.db.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		p.ID, p.Name, p.Phone, p.Gender, p.Age, p.Region, string(p.Status), p.StatusChangedAt,
		string(p.Temperature), p.Interest, p.Source, p.NextAction, p.NextActionDate, p.TreatmentStartDate,
		p.ClosedReason, p.Memo, p.Tags, p.EstimatedAmount, p.ActualAmount, string(p.PaymentStatus),
		p.TreatmentNote, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("patients: create: %w", err)
	}
	return nil
}

// GetByID loads a patient with their full status history.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: get by id: %w", err)
	}

	history, err := s.loadHistory(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	p.History = history
	return p, nil
}

// PhoneByID returns just the phone number for a patient.
func (s *Store) PhoneByID(ctx context.Context, id uuid.UUID) (string, error) {
	var phone string
	err := s.db.QueryRow(ctx, `SELECT phone FROM patients WHERE id = $1`, id).Scan(&phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("patients: phone by id: %w", err)
	}
	return phone, nil
}

// FindByPhone returns the patient registered under a phone number. Used by
// the CTI screen pop to recognize callers.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	row := s.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE phone = $1`, phone)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: find by phone: %w", err)
	}
	return p, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status Status
	Search string // matched against name and phone
	Limit  int
	Offset int
}

// List returns patients matching the filter, most recently updated first.
// History is not loaded; list views only need the current state.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Patient, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR phone ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + patientColumns + ` FROM patients`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("patients: list: %w", err)
	}
	defer rows.Close()
	return scanPatients(rows)
}

// ListActive returns every non-terminal patient, for the urgency tally.
func (s *Store) ListActive(ctx context.Context) ([]Patient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+patientColumns+` FROM patients
		WHERE status NOT IN ('closed', 'completed')`)
	if err != nil {
		return nil, fmt.Errorf("patients: list active: %w", err)
	}
	defer rows.Close()
	return scanPatients(rows)
}

// Transition applies a status change atomically: the history append and the
// patient-row update commit in one transaction, guarded by the row version so
// concurrent transitions against the same patient cannot interleave.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, newStatus Status, eventDate time.Time, changedBy string, opts TransitionOptions) (*Patient, error) {
	return s.transition(ctx, id, func(p *Patient, now time.Time) (HistoryEntry, error) {
		return ApplyTransition(p, newStatus, eventDate, changedBy, opts, now)
	})
}

// Reactivate returns a closed patient to their pre-closing status.
func (s *Store) Reactivate(ctx context.Context, id uuid.UUID, changedBy string) (*Patient, error) {
	return s.transition(ctx, id, func(p *Patient, now time.Time) (HistoryEntry, error) {
		return Reactivate(p, changedBy, now)
	})
}

func (s *Store) transition(ctx context.Context, id uuid.UUID, apply func(*Patient, time.Time) (HistoryEntry, error)) (*Patient, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("patients: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: load for transition: %w", err)
	}

	history, err := s.loadHistory(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	p.History = history

	now := time.Now().UTC()
	oldVersion := p.Version
	entry, err := apply(p, now)
	if err != nil {
		return nil, err
	}
	entry.ID = uuid.New()
	p.History[len(p.History)-1].ID = entry.ID
	p.Version = oldVersion + 1

	// History first: at worst a replay sees an audit trail ahead of the
	// status pointer, never a status without provenance.
	_, err = tx.Exec(ctx, `
		INSERT INTO status_history (id, patient_id, from_status, to_status, event_date, changed_at, changed_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.PatientID, string(entry.From), string(entry.To),
		entry.EventDate, entry.ChangedAt, entry.ChangedBy, entry.Reason,
	)
	if err != nil {
		return nil, fmt.Errorf("patients: append history: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE patients SET status = $1, status_changed_at = $2, next_action = $3,
			next_action_date = $4, treatment_start_date = $5, closed_reason = $6,
			version = $7, updated_at = $8
		WHERE id = $9 AND version = $10`,
		string(p.Status), p.StatusChangedAt, p.NextAction,
		p.NextActionDate, p.TreatmentStartDate, p.ClosedReason,
		p.Version, p.UpdatedAt, p.ID, oldVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("patients: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("patients: commit transition: %w", err)
	}
	return p, nil
}

// FieldUpdates are the staff-editable fields outside the transition path.
type FieldUpdates struct {
	Name            *string
	Phone           *string
	Gender          *string
	Age             *int
	Region          *string
	Temperature     *Temperature
	Interest        *string
	Memo            *string
	Tags            []string
	EstimatedAmount *int64
	ActualAmount    *int64
	PaymentStatus   *PaymentStatus
	TreatmentNote   *string
}

// UpdateFields applies a partial edit of non-status fields.
func (s *Store) UpdateFields(ctx context.Context, id uuid.UUID, u FieldUpdates) error {
	set := []string{"updated_at = now()"}
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Phone != nil {
		add("phone", *u.Phone)
	}
	if u.Gender != nil {
		add("gender", *u.Gender)
	}
	if u.Age != nil {
		add("age", *u.Age)
	}
	if u.Region != nil {
		add("region", *u.Region)
	}
	if u.Temperature != nil {
		add("temperature", string(*u.Temperature))
	}
	if u.Interest != nil {
		add("interest", *u.Interest)
	}
	if u.Memo != nil {
		add("memo", *u.Memo)
	}
	if u.Tags != nil {
		add("tags", u.Tags)
	}
	if u.EstimatedAmount != nil {
		add("estimated_amount", *u.EstimatedAmount)
	}
	if u.ActualAmount != nil {
		add("actual_amount", *u.ActualAmount)
	}
	if u.PaymentStatus != nil {
		add("payment_status", string(*u.PaymentStatus))
	}
	if u.TreatmentNote != nil {
		add("treatment_note", *u.TreatmentNote)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE patients SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("patients: update fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) loadHistory(ctx context.Context, q querier, id uuid.UUID) ([]HistoryEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, patient_id, from_status, to_status, event_date, changed_at, changed_by, reason
		FROM status_history WHERE patient_id = $1
		ORDER BY changed_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("patients: load history: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var (
			e        HistoryEntry
			from, to string
			reason   *string
		)
		if err := rows.Scan(&e.ID, &e.PatientID, &from, &to, &e.EventDate, &e.ChangedAt, &e.ChangedBy, &reason); err != nil {
			return nil, fmt.Errorf("patients: scan history: %w", err)
		}
		e.From = Status(from)
		e.To = Status(to)
		if reason != nil {
			r := ClosedReason(*reason)
			e.Reason = &r
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p                        Patient
		status, temperature, pay string
		closedReason             *string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Phone, &p.Gender, &p.Age, &p.Region, &status, &p.StatusChangedAt,
		&temperature, &p.Interest, &p.Source, &p.NextAction, &p.NextActionDate, &p.TreatmentStartDate,
		&closedReason, &p.Memo, &p.Tags, &p.EstimatedAmount, &p.ActualAmount, &pay,
		&p.TreatmentNote, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	p.Temperature = Temperature(temperature)
	p.PaymentStatus = PaymentStatus(pay)
	if closedReason != nil {
		r := ClosedReason(*closedReason)
		p.ClosedReason = &r
	}
	return &p, nil
}

func scanPatients(rows pgx.Rows) ([]Patient, error) {
	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan patient: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}
