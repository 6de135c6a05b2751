package service

import (
	"context"
	"time"

	"github.com/garyjia/office-ledger/internal/application/dispatcher"
	"github.com/garyjia/office-ledger/internal/domain/event"
	"github.com/garyjia/office-ledger/internal/domain/lifecycle"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// publish delivers a committed event. A failing subscriber never undoes the
// mutation that produced the event.
func publish(ctx context.Context, events dispatcher.Dispatcher, logger Logger, evt *event.Event) {
	if events == nil {
		return
	}
	if err := events.Dispatch(ctx, evt); err != nil {
		logger.Error("Event subscribers failed", "event_type", evt.Type, "event_id", evt.ID, "error", err)
	}
}

func today(now time.Time) time.Time {
	return lifecycle.DateOf(now)
}
