package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/domain/event"
	"github.com/garyjia/office-ledger/internal/domain/lifecycle"
	"github.com/garyjia/office-ledger/internal/infrastructure/cache"
)

func TestReminderService_DueAndOverdueScenario(t *testing.T) {
	env := newTestEnv(t)
	b := env.branch(t, "north")
	admin := superAdmin()
	ctx := context.Background()

	upcoming := env.txn(t, admin, b.ID, "500.00", 3)
	overdue := env.txn(t, admin, b.ID, "150.00", -2)

	var completed atomic.Int32
	env.events.Subscribe(event.TypeReminderCycleCompleted, "count", func(ctx context.Context, evt *event.Event) error {
		completed.Add(1)
		return nil
	})

	run := env.reminders(nil, nil).RunCycle(ctx, entity.TriggerScheduled)

	assert.Equal(t, entity.CycleTally{Attempted: 2, Sent: 2, Failed: 0}, run.Tally)
	assert.Equal(t, "2026-10-19", run.RunDate)
	assert.False(t, run.LeaseSkipped)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, int32(1), completed.Load())

	for _, id := range []int64{upcoming.ID, overdue.ID} {
		records, err := env.ledger.Dispatches(ctx, admin, id)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, entity.DispatchSent, records[0].Outcome)
		assert.True(t, strings.HasPrefix(records[0].ProviderReference, "sim-"))
		assert.Equal(t, run.ID, records[0].RunID)
	}

	intents := env.gateway.Intents()
	require.Len(t, intents, 2)
	assert.Contains(t, intents[0].Body, "Overdue payment")
	assert.Contains(t, intents[0].Body, "150.00")
	assert.Contains(t, intents[1].Body, "Payment reminder")
	assert.Contains(t, intents[1].Body, "500.00")
}

func TestReminderService_SecondRunSameDaySendsNothing(t *testing.T) {
	env := newTestEnv(t)
	b := env.branch(t, "north")
	admin := superAdmin()
	ctx := context.Background()
	view := env.txn(t, admin, b.ID, "500.00", 3)
	env.txn(t, admin, b.ID, "150.00", -2)
	svc := env.reminders(nil, nil)

	first := svc.RunCycle(ctx, entity.TriggerScheduled)
	env.clock.Set(env.clock.Now().Add(5 * time.Hour))
	second := svc.RunCycle(ctx, entity.TriggerManual)

	assert.Equal(t, 2, first.Tally.Sent)
	assert.Equal(t, entity.CycleTally{Skipped: 2}, second.Tally)
	assert.Len(t, env.gateway.Intents(), 2)

	n, err := env.dispatches.CountForDate(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := env.ledger.Dispatches(ctx, admin, view.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	last, err := svc.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, 2, last.Tally.Skipped)
}

func TestReminderService_FailedSendRetriedNextDay(t *testing.T) {
	env := newTestEnv(t)
	b := env.branch(t, "north")
	admin := superAdmin()
	ctx := context.Background()
	view := env.txn(t, admin, b.ID, "150.00", -2)

	var calls atomic.Int32
	gateway := &mockGateway{sendFunc: func(ctx context.Context, destination, body string) port.SendResult {
		if calls.Add(1) == 1 {
			return port.Failed("timeout")
		}
		return port.Sent("om_123")
	}}
	svc := env.reminders(gateway, nil)

	run := svc.RunCycle(ctx, entity.TriggerScheduled)
	assert.Equal(t, entity.CycleTally{Attempted: 1, Failed: 1}, run.Tally)

	env.clock.Set(env.clock.Now().Add(5 * time.Hour))
	run = svc.RunCycle(ctx, entity.TriggerScheduled)
	assert.Equal(t, entity.CycleTally{Skipped: 1}, run.Tally)
	assert.Equal(t, int32(1), calls.Load())

	env.clock.Set(env.clock.Now().Add(24 * time.Hour))
	run = svc.RunCycle(ctx, entity.TriggerScheduled)
	assert.Equal(t, entity.CycleTally{Attempted: 1, Sent: 1}, run.Tally)

	records, err := env.ledger.Dispatches(ctx, admin, view.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	outcomes := map[string]string{}
	for _, rec := range records {
		outcomes[rec.DispatchDate] = rec.Outcome
	}
	assert.Equal(t, entity.DispatchFailed, outcomes["2026-10-19"])
	assert.Equal(t, entity.DispatchSent, outcomes["2026-10-20"])
}

func TestReminderService_CancelledDuringSendStillFinalizes(t *testing.T) {
	env := newTestEnv(t)
	b := env.branch(t, "north")
	admin := superAdmin()
	view := env.txn(t, admin, b.ID, "150.00", -2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gateway := &mockGateway{sendFunc: func(sendCtx context.Context, destination, body string) port.SendResult {
		cancel()
		return port.Failed(context.Canceled.Error())
	}}

	run := env.reminders(gateway, nil).RunCycle(ctx, entity.TriggerScheduled)
	assert.Equal(t, entity.CycleTally{Attempted: 1, Failed: 1}, run.Tally)

	records, err := env.ledger.Dispatches(context.Background(), admin, view.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entity.DispatchFailed, records[0].Outcome)
	assert.Equal(t, "context canceled", records[0].ErrorMessage)
	require.NotNil(t, records[0].CompletedAt)
	assert.NotContains(t, env.logger.errors, "Failed to finalize dispatch")
}

func TestReminderService_OneFailureDoesNotHaltBatch(t *testing.T) {
	env := newTestEnv(t)
	admin := superAdmin()
	ctx := context.Background()

	silent := &entity.Branch{Name: "silent"}
	require.NoError(t, env.branches.Create(ctx, silent))
	loud := env.branch(t, "loud")

	env.txn(t, admin, silent.ID, "10.00", 1)
	env.txn(t, admin, loud.ID, "20.00", 1)

	var destinations []string
	gateway := &mockGateway{sendFunc: func(ctx context.Context, destination, body string) port.SendResult {
		destinations = append(destinations, destination)
		if strings.Contains(body, "20.00") {
			panic("channel exploded")
		}
		return port.Sent("om_1")
	}}

	run := env.reminders(gateway, nil).RunCycle(ctx, entity.TriggerScheduled)

	// The silent branch has no target so the gateway is never called for it.
	assert.Equal(t, []string{"oc_loud"}, destinations)
	assert.Equal(t, 2, run.Tally.Attempted)
	assert.Equal(t, 1, run.Tally.Failed)
	require.NotNil(t, run.FinishedAt)
}

func TestReminderService_ClientContactPreferred(t *testing.T) {
	env := newTestEnv(t)
	b := env.branch(t, "north")
	client := env.client(t, b.ID, "ou_client")
	ctx := context.Background()

	_, err := env.ledger.Create(ctx, superAdmin(), CreateTransactionInput{
		BranchID: b.ID,
		Kind:     entity.KindRevenue,
		Amount:   mustMoney("75.00"),
		DueDate:  env.clock.Now(),
		ClientID: &client.ID,
	})
	require.NoError(t, err)

	env.reminders(nil, nil).RunCycle(ctx, entity.TriggerManual)

	intents := env.gateway.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, "ou_client", intents[0].Destination)
	assert.Contains(t, intents[0].Body, "due today")
}

func TestReminderService_LeaseHeldElsewhere(t *testing.T) {
	env := newTestEnv(t)
	b := env.branch(t, "north")
	env.txn(t, superAdmin(), b.ID, "10.00", 1)
	ctx := context.Background()

	locker := cache.NewLocalLocker()
	release, ok, err := locker.Acquire(ctx, cycleLeaseKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	svc := env.reminders(nil, locker)
	run := svc.RunCycle(ctx, entity.TriggerScheduled)

	assert.True(t, run.LeaseSkipped)
	assert.Equal(t, entity.CycleTally{}, run.Tally)
	assert.Empty(t, env.gateway.Intents())

	active, err := svc.HasActivity(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.False(t, active, "a lease-skipped run is not activity")
}

func TestReminderService_HasActivity(t *testing.T) {
	env := newTestEnv(t)
	env.branch(t, "north")
	ctx := context.Background()
	svc := env.reminders(nil, nil)

	active, err := svc.HasActivity(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.False(t, active)

	svc.RunCycle(ctx, entity.TriggerCatchUp)

	active, err = svc.HasActivity(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.True(t, active, "an empty run still counts")

	active, err = svc.HasActivity(ctx, "2026-10-20")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRenderReminder(t *testing.T) {
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	txn := &entity.FinancialTransaction{
		ID:          7,
		Kind:        entity.KindRevenue,
		Amount:      mustMoney("150"),
		DueDate:     today.AddDate(0, 0, -2),
		Description: "October retainer",
	}

	body := renderReminder(&TransactionView{FinancialTransaction: txn, Effective: lifecycle.StateOverdue}, today)
	assert.Equal(t, "Overdue payment: transaction #7 (revenue 150.00): October retainer was due on 2026-10-17 and is 2 day(s) overdue.", body)

	txn.DueDate = today.AddDate(0, 0, 3)
	body = renderReminder(&TransactionView{FinancialTransaction: txn, Effective: lifecycle.StatePending}, today)
	assert.Equal(t, "Payment reminder: transaction #7 (revenue 150.00): October retainer is due on 2026-10-22, in 3 day(s).", body)
}
