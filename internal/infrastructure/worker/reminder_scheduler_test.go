package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/domain/entity"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockReminders struct {
	mu       sync.Mutex
	triggers []string
	active   bool
	last     *entity.NotificationRun

	hasActivityErr error
}

func (m *mockReminders) RunCycle(ctx context.Context, trigger string) *entity.NotificationRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, trigger)
	m.active = true
	m.last = &entity.NotificationRun{ID: trigger, Trigger: trigger}
	return m.last
}

func (m *mockReminders) HasActivity(ctx context.Context, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.hasActivityErr
}

func (m *mockReminders) LastRun(ctx context.Context) (*entity.NotificationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *mockReminders) Triggers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.triggers...)
}

// manualTimer hands each wait to the test, which fires it explicitly
type manualTimer struct {
	waits chan time.Duration
	fire  chan time.Time
}

func newManualTimer() *manualTimer {
	return &manualTimer{waits: make(chan time.Duration, 8), fire: make(chan time.Time)}
}

func (m *manualTimer) after(d time.Duration) <-chan time.Time {
	m.waits <- d
	return m.fire
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 19, hour, minute, 0, 0, time.UTC)
}

func newTestScheduler(t *testing.T, now time.Time, reminders *mockReminders) (*ReminderScheduler, *fakeClock, *manualTimer) {
	t.Helper()
	firings, err := ParseFiringTimes([]string{"14:00", "09:00"})
	require.NoError(t, err)

	clock := &fakeClock{now: now}
	timer := newManualTimer()
	s := NewReminderScheduler(reminders, clock, firings, time.UTC, zap.NewNop())
	s.after = timer.after
	t.Cleanup(func() { _ = s.Stop() })
	return s, clock, timer
}

func TestParseFiringTimes(t *testing.T) {
	got, err := ParseFiringTimes([]string{"14:00", "09:00", "14:00"})
	require.NoError(t, err)
	assert.Equal(t, []FiringTime{{9, 0}, {14, 0}}, got)

	_, err = ParseFiringTimes([]string{"9am"})
	assert.Error(t, err)

	_, err = ParseFiringTimes(nil)
	assert.Error(t, err)
}

func TestReminderScheduler_NextFiring(t *testing.T) {
	s, _, _ := newTestScheduler(t, at(0, 0), &mockReminders{})

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"before first", at(8, 0), at(9, 0)},
		{"exactly at first", at(9, 0), at(14, 0)},
		{"between", at(10, 0), at(14, 0)},
		{"after last rolls over", at(15, 0), at(9, 0).AddDate(0, 0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.NextFiring(tt.from))
		})
	}
}

func TestReminderScheduler_CatchUpWhenNothingRanToday(t *testing.T) {
	reminders := &mockReminders{}
	s, _, timer := newTestScheduler(t, at(10, 0), reminders)

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return len(reminders.Triggers()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{entity.TriggerCatchUp}, reminders.Triggers())
	assert.Equal(t, 4*time.Hour, <-timer.waits)
}

func TestReminderScheduler_NoCatchUpWhenAlreadyActive(t *testing.T) {
	reminders := &mockReminders{active: true}
	s, clock, timer := newTestScheduler(t, at(10, 0), reminders)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 4*time.Hour, <-timer.waits)
	assert.Empty(t, reminders.Triggers())

	clock.Set(at(14, 0))
	timer.fire <- at(14, 0)

	assert.Equal(t, 19*time.Hour, <-timer.waits)
	assert.Equal(t, []string{entity.TriggerScheduled}, reminders.Triggers())
}

func TestReminderScheduler_NoCatchUpBeforeFirstFiring(t *testing.T) {
	reminders := &mockReminders{}
	s, _, timer := newTestScheduler(t, at(7, 30), reminders)

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, 90*time.Minute, <-timer.waits)
	assert.Empty(t, reminders.Triggers())
}

func TestReminderScheduler_CatchUpOnStoreError(t *testing.T) {
	reminders := &mockReminders{hasActivityErr: errors.New("database is locked")}
	s, _, timer := newTestScheduler(t, at(16, 0), reminders)

	require.NoError(t, s.Start(context.Background()))

	<-timer.waits
	assert.Equal(t, []string{entity.TriggerCatchUp}, reminders.Triggers())
}

func TestReminderScheduler_EarlyWakeDoesNotRepeatFiring(t *testing.T) {
	reminders := &mockReminders{active: true}
	s, clock, timer := newTestScheduler(t, at(10, 0), reminders)

	require.NoError(t, s.Start(context.Background()))
	<-timer.waits

	clock.Set(at(13, 59))
	timer.fire <- at(13, 59)

	assert.Equal(t, 19*time.Hour+time.Minute, <-timer.waits)
}

func TestReminderScheduler_RunNowAndStatus(t *testing.T) {
	reminders := &mockReminders{active: true}
	s, _, timer := newTestScheduler(t, at(10, 0), reminders)
	ctx := context.Background()

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Nil(t, status.LastRun)

	require.NoError(t, s.Start(ctx))
	<-timer.waits

	run := s.RunNow(ctx)
	assert.Equal(t, entity.TriggerManual, run.Trigger)

	status, err = s.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, []string{"09:00", "14:00"}, status.FiringTimes)
	assert.Equal(t, "UTC", status.Timezone)
	assert.Equal(t, at(14, 0), status.NextRun)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, entity.TriggerManual, status.LastRun.Trigger)
}

func TestReminderScheduler_StartTwiceFails(t *testing.T) {
	s, _, timer := newTestScheduler(t, at(7, 0), &mockReminders{})

	require.NoError(t, s.Start(context.Background()))
	<-timer.waits
	assert.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
