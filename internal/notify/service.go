package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Service sends the clinic's outbound messages.
type Service struct {
	email  EmailSender
	sms    SMSSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, sms SMSSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, sms: sms, logger: logger}
}

// SendSMS forwards a patient-facing text through the configured SMS gateway.
func (s *Service) SendSMS(ctx context.Context, to, body string) error {
	if s.sms == nil {
		s.logger.Warn("notify: SMS not configured, dropping message", "to", to)
		return nil
	}
	if err := s.sms.SendSMS(ctx, to, body); err != nil {
		return fmt.Errorf("notify: send sms: %w", err)
	}
	return nil
}

// SendReferralThanks texts a thank-you message to a referring patient.
func (s *Service) SendReferralThanks(ctx context.Context, to, referrerName, referredName string) error {
	body := fmt.Sprintf("%s님, 소중한 분(%s님)을 소개해 주셔서 진심으로 감사드립니다. 정성껏 진료하겠습니다.",
		referrerName, referredName)
	return s.SendSMS(ctx, to, body)
}

// DailySummary is the staff morning-briefing payload.
type DailySummary struct {
	Date          time.Time
	NoShow        int
	DueToday      int
	Overdue       int
	RecallPending int
	CallNeeded    int
}

// SendDailySummary emails the morning worklist summary to clinic staff.
func (s *Service) SendDailySummary(ctx context.Context, recipients []string, sum DailySummary) error {
	if s.email == nil || len(recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[CatchAll] %s 오늘의 환자 관리 요약", sum.Date.Format("2006-01-02"))
	body := fmt.Sprintf(`오늘의 환자 관리 현황입니다.

노쇼 (예약일 경과): %d명
오늘 예정: %d명
관리 지연: %d명
리콜 발송 대기: %d건
리콜 무응답 (전화 필요): %d건`,
		sum.NoShow, sum.DueToday, sum.Overdue, sum.RecallPending, sum.CallNeeded)

	var failed []string
	for _, recipient := range recipients {
		msg := EmailMessage{To: recipient, Subject: subject, Body: body}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("failed to send daily summary", "error", err, "to", recipient)
			failed = append(failed, recipient)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify: daily summary failed for %s", strings.Join(failed, ", "))
	}
	return nil
}
