package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	RefundLedgerChanged = "refund_ledger_changed"
	VerificationChanged = "verification_changed"
	DayClosed           = "day_closed"
)

type Event struct {
	Type      string    `json:"type"`
	StoreID   string    `json:"store_id"`
	Day       string    `json:"day,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	At        time.Time `json:"at"`
}

type Handler func(Event)

// Bus fans change notifications out to subscribers synchronously, in
// subscription order. A panicking handler is logged and does not stop the
// others.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{handlers: make(map[int]Handler), logger: logger.Named("events")}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.dispatch(fn, evt)
	}
}

func (b *Bus) dispatch(fn Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked", zap.String("event", evt.Type), zap.Any("panic", r))
		}
	}()
	fn(evt)
}

// Close drops every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[int]Handler)
	b.order = nil
}
