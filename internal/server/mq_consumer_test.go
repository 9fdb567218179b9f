package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"subscription-service/internal/biz"

	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMeteringRepo struct {
	batches  [][]*biz.UsageEvent
	batchErr error
}

func (f *fakeMeteringRepo) GetSubscriber(ctx context.Context, userID string) (*biz.Subscriber, error) {
	return nil, nil
}

func (f *fakeMeteringRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeMeteringRepo) CommitUsage(ctx context.Context, event *biz.UsageEvent) (string, error) {
	return "", nil
}

func (f *fakeMeteringRepo) BatchCommitUsage(ctx context.Context, events []*biz.UsageEvent) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakeMeteringRepo) SumUsageByMonth(ctx context.Context, userID, month string) ([]*biz.UsageSum, error) {
	return nil, nil
}

func (f *fakeMeteringRepo) ListUsageRecords(ctx context.Context, userID string, page, pageSize int) ([]*biz.UsageRecord, int64, error) {
	return nil, 0, nil
}

func (f *fakeMeteringRepo) ReconcileSubscriber(ctx context.Context, userID, month string) error {
	return nil
}

func newTestConsumer(repo biz.MeteringRepo) *MQConsumerServer {
	return &MQConsumerServer{
		repo:    repo,
		log:     log.NewHelper(log.DefaultLogger),
		enabled: true,
	}
}

func msgWithEvent(t *testing.T, event *biz.UsageEvent) *primitive.MessageExt {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return &primitive.MessageExt{Message: primitive.Message{Body: body}}
}

func TestMQHandler_BatchesEvents(t *testing.T) {
	repo := &fakeMeteringRepo{}
	s := newTestConsumer(repo)

	msgs := []*primitive.MessageExt{
		msgWithEvent(t, &biz.UsageEvent{RecordID: "r1", UserID: "u1", ServiceType: "audiobook", CharacterCount: 1000}),
		msgWithEvent(t, &biz.UsageEvent{RecordID: "r2", UserID: "u2", ServiceType: "translation", CharacterCount: 500}),
	}

	result, err := s.handler(context.Background(), msgs...)
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, result)

	require.Len(t, repo.batches, 1)
	require.Len(t, repo.batches[0], 2)
	assert.Equal(t, "r1", repo.batches[0][0].RecordID)
	assert.Equal(t, "r2", repo.batches[0][1].RecordID)
}

func TestMQHandler_SkipsMalformedMessages(t *testing.T) {
	repo := &fakeMeteringRepo{}
	s := newTestConsumer(repo)

	msgs := []*primitive.MessageExt{
		{Message: primitive.Message{Body: []byte("not json")}},
		msgWithEvent(t, &biz.UsageEvent{RecordID: "r1", UserID: "u1", ServiceType: "audiobook", CharacterCount: 1000}),
	}

	result, err := s.handler(context.Background(), msgs...)
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, result)

	require.Len(t, repo.batches, 1)
	require.Len(t, repo.batches[0], 1)
	assert.Equal(t, "r1", repo.batches[0][0].RecordID)
}

func TestMQHandler_RetryOnRepoError(t *testing.T) {
	repo := &fakeMeteringRepo{batchErr: errors.New("db down")}
	s := newTestConsumer(repo)

	msgs := []*primitive.MessageExt{
		msgWithEvent(t, &biz.UsageEvent{RecordID: "r1", UserID: "u1", ServiceType: "audiobook", CharacterCount: 1000}),
	}

	result, err := s.handler(context.Background(), msgs...)
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeRetryLater, result)
}

func TestMQHandler_EmptyBatch(t *testing.T) {
	repo := &fakeMeteringRepo{}
	s := newTestConsumer(repo)

	result, err := s.handler(context.Background())
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, result)
	assert.Empty(t, repo.batches)
}
