package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/office-ledger/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func newEvent(t event.Type) *event.Event {
	return event.New(t, 1, 10, 2, time.Now())
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.Subscribe(event.TypeTransactionPaid, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(event.TypeTransactionPaid, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})
	d.Subscribe(event.TypeTransactionDeleted, "other", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "other")
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeTransactionPaid)))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatch_ContinuesAfterFailureAndJoinsErrors(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	boom := errors.New("boom")
	ran := false

	d.Subscribe(event.TypeTransactionCreated, "failing", func(ctx context.Context, evt *event.Event) error {
		return boom
	})
	d.Subscribe(event.TypeTransactionCreated, "after", func(ctx context.Context, evt *event.Event) error {
		ran = true
		return nil
	})

	err := d.Dispatch(context.Background(), newEvent(event.TypeTransactionCreated))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran, "handlers after a failing one must still run")
	assert.Equal(t, 1, logger.ErrorCount())
}

func TestDispatch_RecoversPanics(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(event.TypeTransactionDeleted, "panicking", func(ctx context.Context, evt *event.Event) error {
		panic("unexpected")
	})

	err := d.Dispatch(context.Background(), newEvent(event.TypeTransactionDeleted))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
}

func TestSubscribeAll_RunsAfterTypedHandlers(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeAll("audit_log", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "audit:"+evt.Type.String())
		return nil
	})
	d.Subscribe(event.TypeTransactionPaid, "typed", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "typed")
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeTransactionPaid)))
	require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeRecordDeleted)))

	assert.Equal(t, []string{"typed", "audit:transaction.paid", "audit:record.deleted"}, order)
}

func TestDispatch_RejectsUnknownType(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.SubscribeAll("audit_log", func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	err := d.Dispatch(context.Background(), newEvent(event.Type("invoice.approved")))

	assert.ErrorContains(t, err, "unknown event type")
	assert.False(t, called)
}

func TestClose_WaitsForInFlightDispatch(t *testing.T) {
	d := NewDispatcher()
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	d.Subscribe(event.TypeReminderCycleCompleted, "slow", func(ctx context.Context, evt *event.Event) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	})

	go func() { _ = d.Dispatch(context.Background(), newEvent(event.TypeReminderCycleCompleted)) }()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- d.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a dispatch was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-closed)
	assert.True(t, finished.Load())
}

func TestClose_RejectsFurtherDispatch(t *testing.T) {
	d := NewDispatcher(WithLogger(&mockLogger{}))
	require.NoError(t, d.Close())

	assert.Error(t, d.Close())
	assert.ErrorContains(t, d.Dispatch(context.Background(), newEvent(event.TypeTransactionPaid)), "closed")
}

func TestHandlers_ListsNames(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }
	d.Subscribe(event.TypeTransactionPaid, "metrics", noop)
	d.SubscribeAll("audit_log", noop)

	assert.Equal(t, []string{"metrics", "audit_log"}, d.Handlers(event.TypeTransactionPaid))
	assert.Equal(t, []string{"audit_log"}, d.Handlers(event.TypeTransactionDeleted))
}
