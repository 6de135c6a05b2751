package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/office-ledger/internal/domain/event"
)

// Dispatcher routes committed ledger events to subscribers. Events are
// published after the mutation committed, so handler failures never undo
// the mutation; they are reported to the caller and logged.
type Dispatcher interface {
	// Subscribe registers a named handler for an event type
	Subscribe(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers a handler for every event type. It runs after
	// the type-specific handlers.
	SubscribeAll(name string, handler Handler)

	// Dispatch runs every matching handler in registration order and
	// returns the joined handler errors
	Dispatch(ctx context.Context, evt *event.Event) error

	// Handlers returns the handler names an event type reaches
	Handlers(eventType event.Type) []string

	// Close waits for in-flight dispatches and rejects further ones
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	all      []HandlerInfo
	closed   bool
	inflight sync.WaitGroup

	logger Logger
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.logInfo("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.all = append(d.all, HandlerInfo{Name: name, Handler: handler})
	d.logInfo("Handler registered for all events", "handler_name", name)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if !evt.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", evt.Type)
	}

	handlers, ok := d.begin(evt.Type)
	if !ok {
		return fmt.Errorf("dispatcher is closed")
	}
	defer d.inflight.Done()

	var errs []error
	for _, info := range handlers {
		if err := safeExecute(ctx, evt, info); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"error", err,
				)
			}
			errs = append(errs, fmt.Errorf("handler %s: %w", info.Name, err))
		}
	}
	return errors.Join(errs...)
}

// begin registers an in-flight dispatch and snapshots its handlers under
// the same lock Close takes, so Close never misses a dispatch it must wait
// for.
func (d *eventDispatcher) begin(eventType event.Type) ([]HandlerInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, false
	}
	d.inflight.Add(1)

	typed := d.handlers[eventType]
	out := make([]HandlerInfo, 0, len(typed)+len(d.all))
	out = append(out, typed...)
	out = append(out, d.all...)
	return out, true
}

func (d *eventDispatcher) Handlers(eventType event.Type) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers[eventType])+len(d.all))
	for _, h := range d.handlers[eventType] {
		names = append(names, h.Name)
	}
	for _, h := range d.all {
		names = append(names, h.Name)
	}
	return names
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	d.inflight.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

func (d *eventDispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

// safeExecute runs a handler with panic recovery
func safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return info.Handler(ctx, evt)
}
