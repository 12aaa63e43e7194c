package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Topic carries every audit event; consumers fan out by the Category field
// in the payload.
const Topic = "conforma.audit.events"

// KafkaPublisher is the broker side of the outbox worker.
type KafkaPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxWorker drains the outbox table into Kafka. Entries are claimed with
// FOR UPDATE SKIP LOCKED so multiple instances can run; an entry is marked
// published only after the broker acknowledges it, making redelivery the
// failure mode rather than loss.
type OutboxWorker struct {
	db        *sql.DB
	publisher KafkaPublisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// WorkerOption configures an OutboxWorker.
type WorkerOption func(*OutboxWorker)

// WithPollInterval overrides the default 1s poll interval.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *OutboxWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize overrides the default batch of 100 entries per poll.
func WithBatchSize(size int) WorkerOption {
	return func(w *OutboxWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// NewOutboxWorker constructs the worker.
func NewOutboxWorker(db *sql.DB, publisher KafkaPublisher, logger *slog.Logger, opts ...WorkerOption) *OutboxWorker {
	w := &OutboxWorker{
		db:        db,
		publisher: publisher,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

type outboxEntry struct {
	id          uuid.UUID
	aggregateID string
	payload     []byte
}

// DrainOnce publishes one batch of pending entries. Exported so tests can
// drive the worker without the ticker.
func (w *OutboxWorker) DrainOnce(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox drain: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, w.batchSize)
	if err != nil {
		return fmt.Errorf("claim outbox entries: %w", err)
	}

	var entries []outboxEntry
	for rows.Next() {
		var entry outboxEntry
		if err := rows.Scan(&entry.id, &entry.aggregateID, &entry.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate outbox entries: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return nil
	}

	for _, entry := range entries {
		if err := w.publisher.Publish(ctx, Topic, []byte(entry.aggregateID), entry.payload); err != nil {
			// The transaction rolls back and the batch is retried whole.
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox SET published_at = $2 WHERE id = $1
		`, entry.id, time.Now()); err != nil {
			return fmt.Errorf("mark outbox entry published: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox drain: %w", err)
	}
	w.logger.DebugContext(ctx, "outbox batch published", "entries", len(entries))
	return nil
}
