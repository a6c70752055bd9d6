package calllog

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/pkg/logging"
)

// S3Client interface for S3 operations (allows mocking in tests)
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// RecordingArchive stores call recordings in S3 under date-structured keys
// so they can be pulled up from the call log detail view later.
type RecordingArchive struct {
	s3     S3Client
	bucket string
	logger *logging.Logger
}

// NewRecordingArchive creates a recording archive writing to one bucket.
func NewRecordingArchive(client S3Client, bucket string, logger *logging.Logger) *RecordingArchive {
	if logger == nil {
		logger = logging.Default()
	}
	return &RecordingArchive{s3: client, bucket: bucket, logger: logger}
}

// Store uploads one recording and returns the object key. contentType
// defaults to audio/mpeg when empty.
func (a *RecordingArchive) Store(ctx context.Context, callID uuid.UUID, startedAt time.Time, payload []byte, contentType string) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("calllog: recording payload is empty")
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "audio/mpeg"
	}

	day := startedAt.UTC()
	key := fmt.Sprintf("recordings/%d/%02d/%02d/%s.mp3",
		day.Year(), day.Month(), day.Day(), callID)

	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("calllog: s3 upload failed: %w", err)
	}

	a.logger.Info("call recording archived",
		"call_id", callID,
		"s3_key", key,
		"bytes", len(payload),
	)
	return key, nil
}

// URL returns the s3:// location for a stored key.
func (a *RecordingArchive) URL(key string) string {
	return "s3://" + a.bucket + "/" + key
}
