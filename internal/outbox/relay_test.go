package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/model"
	mock_outbox "github.com/congo-pay/walletledger/internal/outbox/mock"
	"github.com/congo-pay/walletledger/internal/storage/memory"
)

func seedEvents(t *testing.T, store *memory.Store, n int) []model.OutboxEvent {
	t.Helper()
	events := make([]model.OutboxEvent, 0, n)
	base := time.Now().UTC()
	for i := 0; i < n; i++ {
		ev := model.OutboxEvent{
			ID:          uuid.New(),
			AggregateID: uuid.New(),
			EventType:   model.EventTransactionCompleted,
			Payload:     json.RawMessage(`{"status":"COMPLETED"}`),
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.Outbox().Append(context.Background(), ev))
		events = append(events, ev)
	}
	return events
}

func TestDispatchOnceMarksPublished(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	events := seedEvents(t, store, 3)

	pub := mock_outbox.NewMockPublisher(ctrl)
	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), events[0]).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), events[1]).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), events[2]).Return(nil),
	)

	relay := NewRelay(store, pub, 10, logging.Discard())
	stats, err := relay.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Dispatched: 3}, stats)

	pending, err := store.Outbox().FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err = relay.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Dispatched)
}

func TestDispatchOnceRecordsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	events := seedEvents(t, store, 2)

	pub := mock_outbox.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), events[0]).Return(errors.New("broker down"))
	pub.EXPECT().Publish(gomock.Any(), events[1]).Return(nil)

	relay := NewRelay(store, pub, 10, logging.Discard())
	stats, err := relay.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Dispatched: 1, Failed: 1}, stats)

	pending, err := store.Outbox().FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events[0].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "broker down", pending[0].LastError)
}

func TestDispatchOnceRespectsBatchSize(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	seedEvents(t, store, 5)

	pub := mock_outbox.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	relay := NewRelay(store, pub, 2, logging.Discard())
	stats, err := relay.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Dispatched)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.New()
	seedEvents(t, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	pub := mock_outbox.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, model.OutboxEvent) error {
		cancel()
		return nil
	})

	relay := NewRelay(store, pub, 10, logging.Discard())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx, 10*time.Millisecond) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestKafkaPublisherKeysByAggregate(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mock_outbox.NewMockMessageWriter(ctrl)
	ev := model.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: uuid.New(),
		EventType:   model.EventTransactionFailed,
		Payload:     json.RawMessage(`{}`),
		CreatedAt:   time.Now().UTC(),
	}

	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
		require.Len(t, msgs, 1)
		assert.Equal(t, ev.AggregateID.String(), string(msgs[0].Key))
		assert.Equal(t, []byte(ev.Payload), msgs[0].Value)
		assert.Contains(t, msgs[0].Headers, kafka.Header{Key: "event_type", Value: []byte(model.EventTransactionFailed)})
		return nil
	})
	require.NoError(t, NewKafkaPublisher(writer).Publish(context.Background(), ev))

	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("leader not available"))
	assert.Error(t, NewKafkaPublisher(writer).Publish(context.Background(), ev))
}

func TestLogPublisherNeverFails(t *testing.T) {
	assert.NoError(t, NewLogPublisher(logging.Discard()).Publish(context.Background(), model.OutboxEvent{}))
	var nilPub *LogPublisher
	assert.NoError(t, nilPub.Publish(context.Background(), model.OutboxEvent{}))
}
