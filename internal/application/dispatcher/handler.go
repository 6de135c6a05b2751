package dispatcher

import (
	"context"

	"github.com/garyjia/office-ledger/internal/domain/event"
)

// Handler reacts to a committed ledger event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo names a subscription for logs and diagnostics
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
