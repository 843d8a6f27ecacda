package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"climatedash/api/database"
	"climatedash/api/models"
)

// BatchWriter persists a batch of tracking events.
type BatchWriter interface {
	WriteBatch(ctx context.Context, events []models.TrackingEvent) error
}

// ClickHouseWriter writes tracking events into the analytics_events table.
type ClickHouseWriter struct {
	DB *database.ClickHouseClient
}

func NewClickHouseWriter(chClient *database.ClickHouseClient) *ClickHouseWriter {
	return &ClickHouseWriter{DB: chClient}
}

// EnsureTable creates the analytics_events table when it is missing.
func (w *ClickHouseWriter) EnsureTable(ctx context.Context) error {
	err := w.DB.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS analytics_events (
			event_id String,
			event_type LowCardinality(String),
			session_id String,
			timestamp DateTime64(6, 'UTC'),
			page_path String,
			referrer String,
			user_agent String,
			ip_address String,
			duration_ms Int64,
			event_data String
		) ENGINE = MergeTree
		ORDER BY (event_type, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to create analytics_events table: %w", err)
	}
	return nil
}

func (w *ClickHouseWriter) WriteBatch(ctx context.Context, events []models.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := w.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, session_id, timestamp, page_path, referrer,
			user_agent, ip_address, duration_ms, event_data
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.SessionID,
			event.Timestamp,
			event.PagePath,
			event.Referrer,
			event.UserAgent,
			event.IPAddress,
			event.DurationMs,
			string(event.EventData),
		)
		if err != nil {
			slog.Warn("error appending event to batch", "event_id", event.EventID, "error", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// MirrorOptions tunes EventMirror batching.
type MirrorOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
	Logger        *slog.Logger
}

// EventMirror copies tracking events to a secondary analytics store in the
// background. Publish never blocks the tracking path: when the buffer is
// full the event is dropped and counted.
type EventMirror struct {
	writer        BatchWriter
	events        chan models.TrackingEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	dropped uint64
	closed  bool

	done chan struct{}
}

func NewEventMirror(writer BatchWriter, opts MirrorOptions) *EventMirror {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = opts.BatchSize * 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &EventMirror{
		writer:        writer,
		events:        make(chan models.TrackingEvent, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        opts.Logger,
		done:          make(chan struct{}),
	}
	go m.run()
	return m
}

// Publish queues an event for mirroring.
func (m *EventMirror) Publish(event models.TrackingEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	select {
	case m.events <- event:
	default:
		m.dropped++
		m.logger.Warn("analytics mirror buffer full, dropping event",
			"event_type", event.EventType, "dropped_total", m.dropped)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (m *EventMirror) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close stops accepting events and flushes what is buffered. It returns when
// the final flush finishes or ctx expires.
func (m *EventMirror) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *EventMirror) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	batch := make([]models.TrackingEvent, 0, m.batchSize)
	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				m.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= m.batchSize {
				m.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (m *EventMirror) flush(batch []models.TrackingEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := m.writer.WriteBatch(ctx, batch); err != nil {
		m.logger.Error("failed to mirror analytics events", "count", len(batch), "error", err)
		return
	}
	m.logger.Debug("mirrored analytics events", "count", len(batch))
}
