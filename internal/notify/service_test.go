package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmail struct {
	sent []EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type recordingSMS struct {
	to   []string
	body []string
}

func (r *recordingSMS) SendSMS(_ context.Context, to, body string) error {
	r.to = append(r.to, to)
	r.body = append(r.body, body)
	return nil
}

func TestSendSMSWithoutSenderIsNoop(t *testing.T) {
	svc := NewService(nil, nil, nil)
	assert.NoError(t, svc.SendSMS(context.Background(), "010-1234-5678", "안내"))
}

func TestSendReferralThanks(t *testing.T) {
	sms := &recordingSMS{}
	svc := NewService(nil, sms, nil)

	require.NoError(t, svc.SendReferralThanks(context.Background(), "010-1234-5678", "김민수", "이영희"))
	require.Len(t, sms.body, 1)
	assert.Equal(t, "010-1234-5678", sms.to[0])
	assert.Contains(t, sms.body[0], "김민수님")
	assert.Contains(t, sms.body[0], "이영희님")
}

func TestSendDailySummary(t *testing.T) {
	email := &recordingEmail{}
	svc := NewService(email, nil, nil)

	sum := DailySummary{
		Date:       time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		NoShow:     2,
		DueToday:   3,
		Overdue:    1,
		CallNeeded: 4,
	}
	require.NoError(t, svc.SendDailySummary(context.Background(), []string{"staff@clinic.kr", "director@clinic.kr"}, sum))

	require.Len(t, email.sent, 2)
	assert.Contains(t, email.sent[0].Subject, "2026-08-20")
	assert.Contains(t, email.sent[0].Body, "노쇼 (예약일 경과): 2명")
	assert.Contains(t, email.sent[0].Body, "전화 필요): 4건")
}

func TestSendDailySummaryReportsFailures(t *testing.T) {
	email := &recordingEmail{err: errors.New("smtp down")}
	svc := NewService(email, nil, nil)

	err := svc.SendDailySummary(context.Background(), []string{"staff@clinic.kr"}, DailySummary{Date: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staff@clinic.kr")
}

func TestSendDailySummaryWithoutRecipients(t *testing.T) {
	svc := NewService(&recordingEmail{}, nil, nil)
	assert.NoError(t, svc.SendDailySummary(context.Background(), nil, DailySummary{Date: time.Now()}))
}

func TestStubSendersAreSilent(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "a@b.c"}))
	assert.NoError(t, NewStubSMSSender(nil).SendSMS(context.Background(), "010", "본문이 아주 길어서 오십 자를 넘기는 경우에도 문제 없이 잘라서 로그에 남겨야 합니다"))
}
