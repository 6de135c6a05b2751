package port

import (
	"context"
	"time"

	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// SendResult is the outcome of one messaging attempt. Failures are values.
type SendResult struct {
	Sent              bool
	ProviderReference string
	Reason            string
}

// Sent builds a successful result
func Sent(reference string) SendResult {
	return SendResult{Sent: true, ProviderReference: reference}
}

// Failed builds a failed result
func Failed(reason string) SendResult {
	return SendResult{Reason: reason}
}

// MessagingGateway delivers reminder text to an external channel.
// Implementations never return errors and never panic on channel failures.
type MessagingGateway interface {
	Send(ctx context.Context, destination, body string) SendResult
	Mode() string
}

// Clock abstracts wall-clock time
type Clock interface {
	Now() time.Time
}

// CycleLocker guards a reminder cycle across instances. Acquire returns
// ok=false when another holder owns the lease.
type CycleLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// ReminderMetrics observes reminder activity
type ReminderMetrics interface {
	ObserveDispatch(outcome string)
	ObserveCycle(trigger string, tally entity.CycleTally, duration time.Duration)
	ObserveLeaseSkipped()
}
