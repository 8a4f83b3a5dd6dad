package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPublisher is a mock for Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockOutboxRepository is a mock for OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func listingEvent(id string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: AggregateTypeListing,
		AggregateID:   id,
		EventType:     EventTypeListingCreated,
		Payload:       json.RawMessage(`{"listing_id":` + id + `,"slug":"house-` + id + `"}`),
		TargetStream:  DefaultTargetStream,
	}
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("successfully process and publish events", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := NewRelay(outbox, publisher, logger, RelayConfig{BatchSize: 10})

		events := []*OutboxEvent{listingEvent("1"), listingEvent("2")}
		outbox.On("GetPending", ctx, 10).Return(events, nil)
		for _, event := range events {
			publisher.On("Publish", ctx, event).Return(nil)
			outbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		delivered, err := relay.processEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, delivered)

		publisher.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("publish failure marks event failed and continues", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := NewRelay(outbox, publisher, logger, RelayConfig{BatchSize: 10})

		first, second := listingEvent("1"), listingEvent("2")
		publishErr := errors.New("broker unavailable")

		outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{first, second}, nil)
		publisher.On("Publish", ctx, first).Return(publishErr)
		outbox.On("MarkFailed", ctx, first.ID, publishErr).Return(nil)
		publisher.On("Publish", ctx, second).Return(nil)
		outbox.On("MarkProcessed", ctx, second.ID).Return(nil)

		delivered, err := relay.processEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, delivered)

		outbox.AssertNotCalled(t, "MarkProcessed", ctx, first.ID)
		publisher.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("outbox query failure", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := NewRelay(outbox, publisher, logger, RelayConfig{BatchSize: 10})

		outbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection reset"))

		_, err := relay.processEvents(ctx)
		assert.ErrorContains(t, err, "connection reset")
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("no pending events", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := NewRelay(outbox, publisher, logger, RelayConfig{BatchSize: 10})

		outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		delivered, err := relay.processEvents(ctx)
		require.NoError(t, err)
		assert.Zero(t, delivered)
	})
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()
	publisher := new(MockPublisher)
	outbox := new(MockOutboxRepository)
	relay := NewRelay(outbox, publisher, nil, RelayConfig{BatchSize: 2})

	batch1 := []*OutboxEvent{listingEvent("1"), listingEvent("2")}
	batch2 := []*OutboxEvent{listingEvent("3")}

	outbox.On("GetPending", ctx, 2).Return(batch1, nil).Once()
	outbox.On("GetPending", ctx, 2).Return(batch2, nil).Once()
	for _, event := range append(batch1, batch2...) {
		publisher.On("Publish", ctx, event).Return(nil)
		outbox.On("MarkProcessed", ctx, event.ID).Return(nil)
	}

	delivered, err := relay.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	outbox.AssertNumberOfCalls(t, "GetPending", 2)
}

func TestRelay_StartStopsOnCancel(t *testing.T) {
	publisher := new(MockPublisher)
	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", mock.Anything, 100).Return([]*OutboxEvent{}, nil)

	relay := NewRelay(outbox, publisher, nil, RelayConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// memoryOutbox hands out every unprocessed event on each GetPending call,
// like the outbox table does before MarkProcessed commits.
type memoryOutbox struct {
	mu        sync.Mutex
	events    []*OutboxEvent
	processed map[uuid.UUID]bool
}

func (o *memoryOutbox) GetPending(_ context.Context, limit int) ([]*OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range o.events {
		if !o.processed[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *memoryOutbox) MarkProcessed(_ context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processed[id] = true
	return nil
}

func (o *memoryOutbox) MarkFailed(context.Context, uuid.UUID, error) error {
	return nil
}

// slowPublisher counts deliveries per event and takes a moment for each.
type slowPublisher struct {
	mu        sync.Mutex
	delivered map[uuid.UUID]int
}

func (p *slowPublisher) Publish(_ context.Context, event *OutboxEvent) error {
	time.Sleep(time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered[event.ID]++
	return nil
}

func (p *slowPublisher) Close() error { return nil }

func TestRelay_RunAndDrainPublishesEachEventOnce(t *testing.T) {
	outbox := &memoryOutbox{processed: make(map[uuid.UUID]bool)}
	for i := 0; i < 40; i++ {
		outbox.events = append(outbox.events, listingEvent(strconv.Itoa(i)))
	}
	publisher := &slowPublisher{delivered: make(map[uuid.UUID]int)}
	relay := NewRelay(outbox, publisher, nil, RelayConfig{PollInterval: time.Millisecond, BatchSize: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := relay.RunAndDrain(ctx, context.Background())
	require.NoError(t, err)

	require.Len(t, publisher.delivered, 40)
	for id, n := range publisher.delivered {
		assert.Equal(t, 1, n, "event %s published %d times", id, n)
	}
}

func TestRelay_RunAndDrainFlushesAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := listingEvent("9")
	publisher := new(MockPublisher)
	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", mock.Anything, 100).Return([]*OutboxEvent{}, nil).Once()
	outbox.On("GetPending", mock.Anything, 100).Return([]*OutboxEvent{event}, nil).Once()
	publisher.On("Publish", mock.Anything, event).Return(nil).Once()
	outbox.On("MarkProcessed", mock.Anything, event.ID).Return(nil).Once()

	relay := NewRelay(outbox, publisher, nil, RelayConfig{})
	delivered, err := relay.RunAndDrain(ctx, context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	publisher.AssertNumberOfCalls(t, "Publish", 1)
	outbox.AssertExpectations(t)
}
