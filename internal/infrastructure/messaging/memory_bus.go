// Package messaging carries lifecycle events from the command side to their
// subscribers. InMemoryEventBus serves one process; RedisEventBus relays
// events between the server and the worker over Redis pub/sub.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps the value a handler panicked with.
	ErrHandlerPanic = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

// InMemoryEventBusConfig configures NewInMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode hands deliveries to a fixed pool of workers. Publish returns
	// once they are queued; Close waits for the queue to drain.
	AsyncMode bool

	// WorkerPoolSize is the number of workers in async mode.
	WorkerPoolSize int

	// QueueSize bounds queued deliveries. A full queue blocks Publish.
	QueueSize int

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// DefaultInMemoryEventBusConfig runs handlers asynchronously on ten workers.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		QueueSize:      256,
	}
}

type delivery struct {
	event   shared.Event
	handler shared.EventHandler
}

// InMemoryEventBus dispatches to handlers in the publishing process. A failing
// or panicking handler is logged and counted and never fails Publish.
type InMemoryEventBus struct {
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	catchAll []shared.EventHandler
	closed   bool

	queue   chan delivery // nil in sync mode
	workers sync.WaitGroup
}

// NewInMemoryEventBus starts the workers when AsyncMode is set.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	b := &InMemoryEventBus{
		logger:  cfg.Logger.With(logger.Component("eventbus")),
		metrics: cfg.Metrics,
		byType:  make(map[shared.EventType][]shared.EventHandler),
	}
	if !cfg.AsyncMode {
		return b
	}

	b.queue = make(chan delivery, max(cfg.QueueSize, 1))
	for range max(cfg.WorkerPoolSize, 1) {
		b.workers.Add(1)
		go func() {
			defer b.workers.Done()
			for d := range b.queue {
				b.deliver(d)
			}
		}()
	}
	return b
}

// Subscribe adds a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	}, handler)
}

// SubscribeAll adds a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(func() {
		b.catchAll = append(b.catchAll, handler)
	}, handler)
}

func (b *InMemoryEventBus) subscribe(add func(), handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish hands event to every matching handler, type-specific ones first.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.catchAll))
	handlers = append(append(handlers, typed...), b.catchAll...)

	b.metrics.RecordPublish(string(event.EventType()))
	if b.queue != nil {
		// Queue under the read lock so Close cannot close the channel
		// between the closed check and the send.
		for _, h := range handlers {
			b.queue <- delivery{event, h}
		}
		b.mu.RUnlock()
		return nil
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(delivery{event, h})
	}
	return nil
}

func (b *InMemoryEventBus) deliver(d delivery) {
	start := time.Now()
	err := invoke(d)
	b.metrics.RecordHandler(string(d.event.EventType()), time.Since(start), err)
	if err != nil {
		b.logger.Error("event handler failed",
			logger.String("event_type", string(d.event.EventType())),
			logger.LineageID(d.event.AggregateID()),
			logger.Err(err),
		)
	}
}

func invoke(d delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return d.handler(d.event)
}

// Close rejects further events and waits for queued deliveries.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	b.logger.Debug("event bus closed")
	return nil
}
