package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/db"
)

// Store persists domain events in postgres.
type Store struct {
	DB db.Conn
}

// InsertDomainEvent implements EventStore.
func (s Store) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (Event, error) {
	ev := Event{Topic: topic, AggregateID: aggregateID, Payload: payload}
	err := s.DB.QueryRow(ctx,
		`INSERT INTO domain_events (topic, aggregate_id, payload)
		 VALUES ($1, $2, $3)
		 RETURNING id, occurred_at`,
		topic, aggregateID, payload).Scan(&ev.ID, &ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
