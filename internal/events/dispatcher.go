package events

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler consumes a dispatched outbox record. A non-nil error leaves the row
// unpublished so the next dispatch pass retries it.
type Handler func(ctx context.Context, record Record) error

// Dispatcher delivers unpublished outbox rows to registered handlers.
type Dispatcher struct {
	db  *gorm.DB
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewDispatcher(db *gorm.DB, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:       db,
		log:      log.Named("events.dispatcher"),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for an event type.
func (d *Dispatcher) Subscribe(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Dispatch delivers up to limit rows and marks successful ones published.
// Rows without handlers are marked published immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (int, error) {
	records, err := FetchUnpublished(ctx, d.db, limit)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	delivered := make([]snowflake.ID, 0, len(records))
	for _, record := range records {
		d.mu.RLock()
		handlers := d.handlers[record.EventType]
		d.mu.RUnlock()

		failed := false
		for _, handler := range handlers {
			if err := handler(ctx, record); err != nil {
				d.log.Warn("event delivery failed",
					zap.String("event_type", record.EventType),
					zap.String("event_id", record.ID.String()),
					zap.Error(err),
				)
				failed = true
				break
			}
		}
		if !failed {
			delivered = append(delivered, record.ID)
		}
	}

	if err := MarkPublished(ctx, d.db, delivered); err != nil {
		return 0, err
	}
	return len(delivered), nil
}
