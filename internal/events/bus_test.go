package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/events"
)

type stubStore struct {
	inserted []events.Event
	fail     error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	if s.fail != nil {
		return events.Event{}, s.fail
	}
	ev := events.Event{
		ID:          int64(len(s.inserted) + 1),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}
	s.inserted = append(s.inserted, ev)
	return ev, nil
}

type captureNotifier struct {
	events []events.Event
	fail   error
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.fail
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	orderID := uuid.New()
	ev, err := bus.Emit(context.Background(), events.TopicOrderPlaced, orderID,
		map[string]any{"grandTotal": 12345})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderPlaced, ev.Topic)
	require.Equal(t, orderID, ev.AggregateID)
	require.Len(t, store.inserted, 1)
	require.Len(t, notifier.events, 1)
	require.JSONEq(t, `{"grandTotal":12345}`, string(ev.Payload))
}

func TestEmitValidatesInput(t *testing.T) {
	t.Parallel()

	bus := &events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), "  ", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicOrderPlaced, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicOrderPlaced, uuid.New(), []byte("not json"))
	require.Error(t, err)
}

func TestEmitCollectsNotifierFailures(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	bad := &captureNotifier{fail: errors.New("webhook down")}
	good := &captureNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{bad, good}}

	_, err := bus.Emit(context.Background(), events.TopicCouponRedeemed, uuid.New(), nil)
	require.Error(t, err)
	// The event is persisted and every notifier still runs.
	require.Len(t, store.inserted, 1)
	require.Len(t, good.events, 1)
}
