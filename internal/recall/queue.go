package recall

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// queueClient is the transport the worker drains send jobs from. SQS in
// production, an in-memory channel in tests and local development.
type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// sendJob is the queue payload: which dispatch to deliver.
type sendJob struct {
	ID         string    `json:"id"`
	DispatchID uuid.UUID `json:"dispatch_id"`
}

func encodeSendJob(job sendJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("recall: encode send job: %w", err)
	}
	return string(body), nil
}

func decodeSendJob(body string) (sendJob, error) {
	var job sendJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return sendJob{}, fmt.Errorf("recall: decode send job: %w", err)
	}
	return job, nil
}
