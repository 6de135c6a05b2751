package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/application/service"
	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// FiringTime is a time of day at which the reminder cycle runs
type FiringTime struct {
	Hour   int
	Minute int
}

func (f FiringTime) String() string {
	return fmt.Sprintf("%02d:%02d", f.Hour, f.Minute)
}

// on returns the firing on the calendar day of t, in t's location
func (f FiringTime) on(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, f.Hour, f.Minute, 0, 0, t.Location())
}

// ParseFiringTimes parses "HH:MM" values and returns them sorted and
// deduplicated
func ParseFiringTimes(values []string) ([]FiringTime, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one firing time is required")
	}

	seen := make(map[FiringTime]bool, len(values))
	out := make([]FiringTime, 0, len(values))
	for _, v := range values {
		t, err := time.Parse("15:04", v)
		if err != nil {
			return nil, fmt.Errorf("invalid firing time %q: want HH:MM", v)
		}
		f := FiringTime{Hour: t.Hour(), Minute: t.Minute()}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out, nil
}

// SchedulerStatus is what the status endpoint reports
type SchedulerStatus struct {
	Running     bool                    `json:"running"`
	FiringTimes []string                `json:"firing_times"`
	Timezone    string                  `json:"timezone"`
	NextRun     time.Time               `json:"next_run"`
	LastRun     *entity.NotificationRun `json:"last_run,omitempty"`
}

// ReminderScheduler fires the reminder cycle at fixed times of day. All
// state that matters across restarts lives in the store; the scheduler
// itself only knows its configuration.
type ReminderScheduler struct {
	reminders service.ReminderService
	clock     port.Clock
	firings   []FiringTime
	loc       *time.Location
	logger    *zap.Logger

	// after is swapped in tests
	after func(d time.Duration) <-chan time.Time

	// cycleMu serializes cycles within this process
	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewReminderScheduler creates a scheduler. loc decides the calendar day
// firing times refer to; nil means UTC.
func NewReminderScheduler(
	reminders service.ReminderService,
	clock port.Clock,
	firings []FiringTime,
	loc *time.Location,
	logger *zap.Logger,
) *ReminderScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderScheduler{
		reminders: reminders,
		clock:     clock,
		firings:   firings,
		loc:       loc,
		logger:    logger,
		after:     time.After,
	}
}

// Name returns the worker name for identification
func (s *ReminderScheduler) Name() string {
	return "ReminderScheduler"
}

// Start runs the catch-up check and then the firing loop in the background
func (s *ReminderScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("reminder scheduler is already running")
	}
	if len(s.firings) == 0 {
		return fmt.Errorf("reminder scheduler has no firing times")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("ReminderScheduler started",
		zap.Strings("firing_times", s.firingNames()),
		zap.String("timezone", s.loc.String()))

	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight cycle to wind down
func (s *ReminderScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("ReminderScheduler stopped")
	return nil
}

func (s *ReminderScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.shouldCatchUp(ctx) {
		s.run(ctx, entity.TriggerCatchUp)
	}

	from := s.now()
	for {
		next := s.NextFiring(from)
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		s.logger.Debug("Waiting for next firing", zap.Time("next", next), zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}

		s.run(ctx, entity.TriggerScheduled)

		// Measure from the firing just served so an early wake-up cannot
		// select the same firing twice.
		from = next
		if now := s.now(); now.After(from) {
			from = now
		}
	}
}

// shouldCatchUp reports whether today's first firing has passed with no
// cycle or dispatch recorded for today. A store error counts as no
// activity: the per-key claim still prevents duplicate messages.
func (s *ReminderScheduler) shouldCatchUp(ctx context.Context) bool {
	now := s.now()
	if now.Before(s.firings[0].on(now)) {
		return false
	}

	active, err := s.reminders.HasActivity(ctx, now.Format(entity.DateLayout))
	if err != nil {
		s.logger.Error("Failed to check today's reminder activity", zap.Error(err))
		return true
	}
	if active {
		s.logger.Info("Reminders already ran today, waiting for next firing")
	}
	return !active
}

// RunNow runs one cycle immediately. It waits for an in-flight cycle and
// is not cancelled by the caller going away.
func (s *ReminderScheduler) RunNow(ctx context.Context) *entity.NotificationRun {
	return s.run(context.WithoutCancel(ctx), entity.TriggerManual)
}

func (s *ReminderScheduler) run(ctx context.Context, trigger string) *entity.NotificationRun {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	return s.reminders.RunCycle(ctx, trigger)
}

// NextFiring returns the first firing strictly after t
func (s *ReminderScheduler) NextFiring(t time.Time) time.Time {
	t = t.In(s.loc)
	for _, f := range s.firings {
		if at := f.on(t); at.After(t) {
			return at
		}
	}
	return s.firings[0].on(t.AddDate(0, 0, 1))
}

// Status reports the last recorded cycle and the next firing
func (s *ReminderScheduler) Status(ctx context.Context) (*SchedulerStatus, error) {
	last, err := s.reminders.LastRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("get last run: %w", err)
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return &SchedulerStatus{
		Running:     running,
		FiringTimes: s.firingNames(),
		Timezone:    s.loc.String(),
		NextRun:     s.NextFiring(s.now()),
		LastRun:     last,
	}, nil
}

func (s *ReminderScheduler) now() time.Time {
	return s.clock.Now().In(s.loc)
}

func (s *ReminderScheduler) firingNames() []string {
	names := make([]string, len(s.firings))
	for i, f := range s.firings {
		names[i] = f.String()
	}
	return names
}

var _ Worker = (*ReminderScheduler)(nil)
