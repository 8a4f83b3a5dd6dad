package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventStatus is the delivery state of an outbox row.
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusProcessed  EventStatus = "processed"
	StatusFailed     EventStatus = "failed"
	StatusDeadLetter EventStatus = "dead_letter"
)

const (
	// MaxDeliveryAttempts failed publishes move an event to StatusDeadLetter.
	MaxDeliveryAttempts = 5

	// DefaultTargetStream receives listing events unless configured otherwise.
	DefaultTargetStream = "stream:listings"

	maxRetryBackoff = 5 * time.Minute
)

var (
	ErrInvalidEvent  = errors.New("invalid outbox event")
	ErrEventNotFound = errors.New("outbox event not found")
)

// OutboxEvent is one row of the outbox_event table.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	TargetStream  string
	Status        EventStatus
	RetryCount    int
	CreatedAt     time.Time
	NextRetryAt   time.Time
}

func (e *OutboxEvent) validate() error {
	switch {
	case e.AggregateType == "":
		return fmt.Errorf("%w: aggregate type is required", ErrInvalidEvent)
	case e.EventType == "":
		return fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	case len(e.Payload) == 0:
		return fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	}
	return nil
}

// OutboxRepository reads and updates outbox_event rows. Rows are only ever
// created inside a caller's transaction, next to the listing they describe.
type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// InsertWithTx adds event to the outbox as part of tx. Missing ID, status,
// target stream and retry time are filled in.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if err := event.validate(); err != nil {
		return err
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = StatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = DefaultTargetStream
	}
	event.CreatedAt = time.Now()
	if event.NextRetryAt.IsZero() {
		event.NextRetryAt = event.CreatedAt
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type, payload,
			target_stream, status, retry_count, created_at, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload,
		event.TargetStream, string(event.Status), event.RetryCount, event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event %s: %w", event.ID, err)
	}
	return nil
}

// GetPending returns up to limit undelivered events whose retry time has
// come, oldest first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
			target_stream, status, retry_count, created_at, next_retry_at
		FROM outbox_event
		WHERE status = ANY($1) AND next_retry_at <= $2
		ORDER BY created_at
		LIMIT $3`,
		undelivered(), time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutboxEvent, error) {
		var e OutboxEvent
		var status string
		err := row.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
			&e.TargetStream, &status, &e.RetryCount, &e.CreatedAt, &e.NextRetryAt,
		)
		e.Status = EventStatus(status)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}
	return events, nil
}

// MarkProcessed records a successful publish.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET status = $1, processed_at = $2
		WHERE id = $3`,
		string(StatusProcessed), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event %s processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

// MarkFailed counts a failed publish in one statement. The next attempt is
// scheduled 2^attempts seconds out, capped at maxRetryBackoff; the attempt
// that reaches MaxDeliveryAttempts moves the event to StatusDeadLetter.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, publishErr error) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
			error_message = $4,
			next_retry_at = $5::timestamptz
				+ LEAST(power(2, retry_count + 1), $6) * interval '1 second'
		WHERE id = $7`,
		MaxDeliveryAttempts, string(StatusDeadLetter), string(StatusFailed),
		publishErr.Error(), time.Now(), maxRetryBackoff.Seconds(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

// GetPendingCount returns how many events still wait for delivery.
func (r *OutboxRepository) GetPendingCount(ctx context.Context) (int64, error) {
	return r.countByStatus(ctx, undelivered())
}

// GetDeadLetterCount returns how many events gave up on delivery.
func (r *OutboxRepository) GetDeadLetterCount(ctx context.Context) (int64, error) {
	return r.countByStatus(ctx, []string{string(StatusDeadLetter)})
}

func (r *OutboxRepository) countByStatus(ctx context.Context, statuses []string) (int64, error) {
	var n int64
	err := r.db.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox_event WHERE status = ANY($1)", statuses).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %v events: %w", statuses, err)
	}
	return n, nil
}

func undelivered() []string {
	return []string{string(StatusPending), string(StatusFailed)}
}
