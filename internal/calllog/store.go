package calllog

import (
	"context"
	"encoding/json"
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

// Store persists call logs.
type Store struct {
	db DB
}

// NewStore creates a call log store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const callColumns = `id, phone, patient_id, direction, status, duration_seconds,
	transcript, recording_url, recording_key, started_at, ended_at,
	ai_status, ai_analysis, created_at, updated_at`

// Create inserts a new call log. New calls start with analysis pending.
func (s *Store) Create(ctx context.Context, c *CallLog) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Direction == "" {
		c.Direction = DirectionInbound
	}
	if c.Status == "" {
		c.Status = CallConnected
	}
	if c.AIStatus == "" {
		c.AIStatus = AIPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO call_logs (id, phone, patient_id, direction, status, duration_seconds,
			transcript, recording_url, recording_key, started_at, ended_at,
			ai_status, ai_analysis, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.Phone, c.PatientID, c.Direction, c.Status, c.Duration,
		c.Transcript, c.RecordingURL, c.RecordingKey, c.StartedAt, c.EndedAt,
		c.AIStatus, nil, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("calllog: create: %w", err)
	}
	return nil
}

// GetByID loads one call log.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*CallLog, error) {
	row := s.db.QueryRow(ctx, `SELECT `+callColumns+` FROM call_logs WHERE id = $1`, id)
	c, err := scanCallLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("calllog: get by id: %w", err)
	}
	return c, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Phone     string
	PatientID *uuid.UUID
	AIStatus  AIStatus
	Date      *time.Time
	Limit     int
	Offset    int
}

// List returns call logs newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]CallLog, error) {
	var (
		conds []string
		args  []any
	)
	if f.Phone != "" {
		args = append(args, f.Phone)
		conds = append(conds, fmt.Sprintf("phone = $%d", len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.AIStatus != "" {
		args = append(args, f.AIStatus)
		conds = append(conds, fmt.Sprintf("ai_status = $%d", len(args)))
	}
	if f.Date != nil {
		args = append(args, f.Date.Format("2006-01-02"))
		conds = append(conds, fmt.Sprintf("started_at::date = $%d", len(args)))
	}

	query := `SELECT ` + callColumns + ` FROM call_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("calllog: list: %w", err)
	}
	defer rows.Close()
	return scanCallLogs(rows)
}

// EndCall closes out a call with its final outcome. The transcript may
// arrive later than the hangup event, so empty values leave the column as is.
func (s *Store) EndCall(ctx context.Context, id uuid.UUID, endedAt time.Time, duration int, status CallStatus, transcript string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE call_logs SET ended_at = $1, duration_seconds = $2,
			status = COALESCE(NULLIF($3, ''), status),
			transcript = COALESCE(NULLIF($4, ''), transcript),
			updated_at = $5
		WHERE id = $6`,
		endedAt, duration, string(status), transcript, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("calllog: end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAIStatus moves a call between analysis states.
func (s *Store) SetAIStatus(ctx context.Context, id uuid.UUID, status AIStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE call_logs SET ai_status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("calllog: set ai status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAnalysis stores the completed analysis on the call log.
func (s *Store) SaveAnalysis(ctx context.Context, id uuid.UUID, analysis *AIAnalysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("calllog: marshal analysis: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE call_logs SET ai_status = $1, ai_analysis = $2, updated_at = $3 WHERE id = $4`,
		AICompleted, payload, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("calllog: save analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachRecording stores the archived recording location.
func (s *Store) AttachRecording(ctx context.Context, id uuid.UUID, url, key string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE call_logs SET recording_url = $1, recording_key = $2, updated_at = $3 WHERE id = $4`,
		url, key, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("calllog: attach recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkPatient associates a call with a patient record after the fact.
func (s *Store) LinkPatient(ctx context.Context, id, patientID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE call_logs SET patient_id = $1, updated_at = $2 WHERE id = $3`,
		patientID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("calllog: link patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCallLog(row pgx.Row) (*CallLog, error) {
	var (
		c        CallLog
		analysis []byte
	)
	err := row.Scan(
		&c.ID, &c.Phone, &c.PatientID, &c.Direction, &c.Status, &c.Duration,
		&c.Transcript, &c.RecordingURL, &c.RecordingKey, &c.StartedAt, &c.EndedAt,
		&c.AIStatus, &analysis, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(analysis) > 0 {
		var a AIAnalysis
		if err := json.Unmarshal(analysis, &a); err != nil {
			return nil, fmt.Errorf("calllog: decode analysis: %w", err)
		}
		c.Analysis = &a
	}
	return &c, nil
}

func scanCallLogs(rows pgx.Rows) ([]CallLog, error) {
	var result []CallLog
	for rows.Next() {
		c, err := scanCallLog(rows)
		if err != nil {
			return nil, fmt.Errorf("calllog: scan call log: %w", err)
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}
