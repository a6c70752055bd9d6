package recall

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchallhq/dental-crm/internal/callbacks"
)

var dispatchTestColumns = []string{
	"id", "patient_id", "name", "phone", "treatment", "timing", "message",
	"due_date", "status", "sent_at", "booked_at", "created_at", "updated_at",
}

type recordingSender struct {
	sent []string
	to   []string
}

func (r *recordingSender) SendSMS(_ context.Context, to, body string) error {
	r.to = append(r.to, to)
	r.sent = append(r.sent, body)
	return nil
}

type recordingCallbacks struct {
	created []*callbacks.Callback
}

func (r *recordingCallbacks) Create(_ context.Context, c *callbacks.Callback) error {
	r.created = append(r.created, c)
	return nil
}

func newTestWorker(t *testing.T, now time.Time) (pgxmock.PgxPoolIface, *Worker, *recordingSender, *recordingCallbacks) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	sender := &recordingSender{}
	cbs := &recordingCallbacks{}
	w := NewWorker(NewStore(mock), NewMemoryQueue(16), sender, cbs, nil, nil, nil, WorkerConfig{
		Interval:     time.Minute,
		SendHour:     10,
		ResponseDays: 3,
	})
	w.now = func() time.Time { return now }
	return mock, w, sender, cbs
}

func TestWorkerSendsDueDispatch(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	mock, w, sender, _ := newTestWorker(t, now)

	id := uuid.New()
	patientID := uuid.New()
	dueDate := now.AddDate(0, 0, -1)

	mock.ExpectQuery("SELECT (.+) FROM recall_dispatches d JOIN patients p").
		WithArgs("2026-08-20").
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns).
			AddRow(id, patientID, "김민수", "010-1234-5678", "임플란트", "1개월 후", "김민수님, 검진 안내",
				dueDate, "pending", (*time.Time)(nil), (*time.Time)(nil), now, now))
	mock.ExpectQuery("SELECT (.+) FROM recall_dispatches d JOIN patients p").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns).
			AddRow(id, patientID, "김민수", "010-1234-5678", "임플란트", "1개월 후", "김민수님, 검진 안내",
				dueDate, "pending", (*time.Time)(nil), (*time.Time)(nil), now, now))
	mock.ExpectExec("UPDATE recall_dispatches SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Escalation sweep finds nothing.
	mock.ExpectQuery("UPDATE recall_dispatches d SET status = 'call-needed'").
		WithArgs("2026-08-17").
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns))

	w.Sweep(context.Background())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "010-1234-5678", sender.to[0])
	assert.Equal(t, "김민수님, 검진 안내", sender.sent[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerHoldsSendsBeforeSendHour(t *testing.T) {
	now := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	mock, w, sender, _ := newTestWorker(t, now)

	// Only the escalation sweep runs before 10:00.
	mock.ExpectQuery("UPDATE recall_dispatches d SET status = 'call-needed'").
		WithArgs("2026-08-17").
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns))

	w.Sweep(context.Background())

	assert.Empty(t, sender.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerSkipsAlreadySentDispatch(t *testing.T) {
	now := time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)
	mock, w, sender, _ := newTestWorker(t, now)

	id := uuid.New()
	sentAt := now.Add(-time.Hour)
	// Stale queue entry for a dispatch another worker already delivered.
	body, err := encodeSendJob(sendJob{DispatchID: id})
	require.NoError(t, err)
	require.NoError(t, w.queue.Send(context.Background(), body))

	mock.ExpectQuery("SELECT (.+) FROM recall_dispatches d JOIN patients p").
		WithArgs("2026-08-20").
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns))
	mock.ExpectQuery("SELECT (.+) FROM recall_dispatches d JOIN patients p").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns).
			AddRow(id, uuid.New(), "김민수", "010-1234-5678", "임플란트", "1주 후", "안내",
				now, "sent", &sentAt, (*time.Time)(nil), now, now))
	mock.ExpectQuery("UPDATE recall_dispatches d SET status = 'call-needed'").
		WithArgs("2026-08-17").
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns))

	w.Sweep(context.Background())

	assert.Empty(t, sender.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerEscalatesToCallWorklist(t *testing.T) {
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	mock, w, _, cbs := newTestWorker(t, now)

	id := uuid.New()
	patientID := uuid.New()
	sentAt := now.AddDate(0, 0, -3)

	mock.ExpectQuery("UPDATE recall_dispatches d SET status = 'call-needed'").
		WithArgs("2026-08-17").
		WillReturnRows(pgxmock.NewRows(dispatchTestColumns).
			AddRow(id, patientID, "김민수", "010-1234-5678", "임플란트", "1개월 후", "안내",
				sentAt, "call-needed", &sentAt, (*time.Time)(nil), now, now))

	w.Sweep(context.Background())

	require.Len(t, cbs.created, 1)
	assert.Equal(t, patientID, cbs.created[0].PatientID)
	assert.Equal(t, callbacks.TypeRecall, cbs.created[0].Type)
	assert.Contains(t, cbs.created[0].Note, "임플란트")
	assert.NoError(t, mock.ExpectationsWereMet())
}
