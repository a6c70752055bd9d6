package calllog

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}

func TestJobStorePutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "call_analysis_jobs", nil)

	job := &AnalysisJobRecord{JobID: "call-123", Phone: "010-1234-5678"}
	require.NoError(t, store.PutPending(context.Background(), job))
	require.NotNil(t, mock.putInput)

	var stored AnalysisJobRecord
	require.NoError(t, attributevalue.UnmarshalMap(mock.putInput.Item, &stored))

	assert.Equal(t, JobStatusPending, stored.Status)
	assert.NotEmpty(t, stored.CreatedAt)
	assert.NotEmpty(t, stored.UpdatedAt)
	assert.Greater(t, stored.ExpiresAt, time.Now().Unix())

	require.NotNil(t, mock.putInput.ConditionExpression)
	assert.Equal(t, "attribute_not_exists(jobId)", *mock.putInput.ConditionExpression)
}

func TestJobStorePutPendingDuplicateIsAnalysisRunning(t *testing.T) {
	mock := &mockDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := NewJobStore(mock, "call_analysis_jobs", nil)

	err := store.PutPending(context.Background(), &AnalysisJobRecord{JobID: "call-123"})
	assert.ErrorIs(t, err, ErrAnalysisRunning)
}

func TestJobStoreMarkCompletedUsesReservedAttributeNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "call_analysis_jobs", nil)

	analysis := &AIAnalysis{Classification: ClassNewPatient, Temperature: "hot", Summary: "상담 문의"}
	require.NoError(t, store.MarkCompleted(context.Background(), "call-123", analysis))
	require.Len(t, mock.updateInputs, 1)

	update := mock.updateInputs[0]
	assert.Equal(t, "status", update.ExpressionAttributeNames["#status"])
	assert.Equal(t, "analysis", update.ExpressionAttributeNames["#analysis"])
	status, ok := update.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, string(JobStatusCompleted), status.Value)
}

func TestJobStoreMarkFailedStoresMessage(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "call_analysis_jobs", nil)

	require.NoError(t, store.MarkFailed(context.Background(), "call-123", "model down"))
	require.Len(t, mock.updateInputs, 1)

	update := mock.updateInputs[0]
	errMsg, ok := update.ExpressionAttributeValues[":error"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "model down", errMsg.Value)
}

func TestJobStoreGetJobNotFound(t *testing.T) {
	store := NewJobStore(&mockDynamo{}, "call_analysis_jobs", nil)

	_, err := store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStoreGetJobRoundTrip(t *testing.T) {
	record := AnalysisJobRecord{JobID: "call-123", Status: JobStatusCompleted, Phone: "010-1234-5678"}
	item, err := attributevalue.MarshalMap(record)
	require.NoError(t, err)

	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{Item: item}}
	store := NewJobStore(mock, "call_analysis_jobs", nil)

	got, err := store.GetJob(context.Background(), "call-123")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Equal(t, "010-1234-5678", got.Phone)
}
