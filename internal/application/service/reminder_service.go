package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/office-ledger/internal/application/dispatcher"
	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/domain/event"
	"github.com/garyjia/office-ledger/internal/domain/lifecycle"
)

const cycleLeaseKey = "reminder-cycle"

// ReminderConfig holds reminder cycle settings
type ReminderConfig struct {
	// Branches served by this deployment; empty means every branch
	Branches      []int64
	LookaheadDays int
	LeaseTTL      time.Duration
}

// ReminderService runs one reminder cycle: find due and overdue
// transactions, claim each (transaction, today) key, and send at most one
// reminder per key.
type ReminderService interface {
	// RunCycle never fails; problems are logged and reflected in the tally
	RunCycle(ctx context.Context, trigger string) *entity.NotificationRun

	// HasActivity reports whether any run or dispatch exists for the date
	HasActivity(ctx context.Context, date string) (bool, error)

	LastRun(ctx context.Context) (*entity.NotificationRun, error)
}

type reminderService struct {
	ledger     LedgerService
	branches   port.BranchRepository
	records    port.RecordRepository
	dispatches port.DispatchRepository
	runs       port.RunRepository
	gateway    port.MessagingGateway
	locker     port.CycleLocker
	metrics    port.ReminderMetrics
	events     dispatcher.Dispatcher
	clock      port.Clock
	cfg        ReminderConfig
	logger     Logger
}

// NewReminderService creates a new ReminderService
func NewReminderService(
	ledger LedgerService,
	branches port.BranchRepository,
	records port.RecordRepository,
	dispatches port.DispatchRepository,
	runs port.RunRepository,
	gateway port.MessagingGateway,
	locker port.CycleLocker,
	metrics port.ReminderMetrics,
	events dispatcher.Dispatcher,
	clock port.Clock,
	cfg ReminderConfig,
	logger Logger,
) ReminderService {
	if cfg.LookaheadDays < 0 {
		cfg.LookaheadDays = 0
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	return &reminderService{
		ledger:     ledger,
		branches:   branches,
		records:    records,
		dispatches: dispatches,
		runs:       runs,
		gateway:    gateway,
		locker:     locker,
		metrics:    metrics,
		events:     events,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *reminderService) RunCycle(ctx context.Context, trigger string) *entity.NotificationRun {
	started := s.clock.Now()
	run := &entity.NotificationRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		RunDate:   today(started).Format(entity.DateLayout),
		StartedAt: started,
	}

	release, ok, err := s.locker.Acquire(ctx, cycleLeaseKey, s.cfg.LeaseTTL)
	switch {
	case err != nil:
		// The per-key claim still prevents duplicates; the lease only saves work.
		s.logger.Error("Cycle lease unavailable, running without it", "run_id", run.ID, "error", err)
	case !ok:
		run.LeaseSkipped = true
		s.finish(ctx, run, true)
		s.logger.Info("Reminder cycle skipped, lease held elsewhere", "run_id", run.ID, "trigger", trigger)
		if s.metrics != nil {
			s.metrics.ObserveLeaseSkipped()
		}
		return run
	default:
		defer release()
	}

	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Error("Failed to record run start", "run_id", run.ID, "error", err)
	}

	s.logger.Info("Reminder cycle started", "run_id", run.ID, "trigger", trigger, "run_date", run.RunDate)

	candidates, err := s.candidates(ctx)
	if err != nil {
		s.logger.Error("Failed to list reminder candidates", "run_id", run.ID, "error", err)
	}

	destinations := newDestinationCache(s.branches, s.records)
	for _, txn := range candidates {
		if ctx.Err() != nil {
			s.logger.Info("Reminder cycle interrupted", "run_id", run.ID, "remaining", len(candidates)-run.Tally.Attempted-run.Tally.Skipped)
			break
		}
		s.remind(ctx, run, txn, destinations)
	}

	s.finish(ctx, run, false)
	s.logger.Info("Reminder cycle completed",
		"run_id", run.ID,
		"attempted", run.Tally.Attempted,
		"sent", run.Tally.Sent,
		"failed", run.Tally.Failed,
		"skipped", run.Tally.Skipped,
	)
	if s.metrics != nil {
		s.metrics.ObserveCycle(trigger, run.Tally, run.FinishedAt.Sub(run.StartedAt))
	}
	publish(ctx, s.events, s.logger, event.New(event.TypeReminderCycleCompleted, 0, 0, 0, *run.FinishedAt).
		With("run_id", run.ID).
		With("trigger", trigger))
	return run
}

func (s *reminderService) candidates(ctx context.Context) ([]*TransactionView, error) {
	branchIDs := s.cfg.Branches
	if len(branchIDs) == 0 {
		all, err := s.branches.ListIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list branches: %w", err)
		}
		branchIDs = all
	}
	return s.ledger.ListDueWithin(ctx, branchIDs, s.cfg.LookaheadDays)
}

// remind handles one candidate. The claim commits before the send, so a
// crash after it never causes a second message for the same day, and no
// row lock is held while the gateway blocks.
func (s *reminderService) remind(ctx context.Context, run *entity.NotificationRun, txn *TransactionView, destinations *destinationCache) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Reminder panicked", "run_id", run.ID, "transaction_id", txn.ID, "panic", p)
		}
	}()

	dest, err := destinations.resolve(ctx, txn.FinancialTransaction)
	if err != nil {
		s.logger.Error("Failed to resolve destination", "transaction_id", txn.ID, "error", err)
	}

	rec := &entity.DispatchRecord{
		TransactionID: txn.ID,
		BranchID:      txn.BranchID,
		DispatchDate:  run.RunDate,
		Destination:   dest,
		RunID:         run.ID,
		CreatedAt:     s.clock.Now(),
	}

	claimed, err := s.dispatches.Claim(ctx, rec)
	if err != nil {
		s.logger.Error("Failed to claim dispatch", "run_id", run.ID, "transaction_id", txn.ID, "error", err)
		return
	}
	if !claimed {
		run.Tally.Skipped++
		return
	}
	run.Tally.Attempted++

	var result port.SendResult
	if strings.TrimSpace(dest) == "" {
		result = port.Failed("invalid destination")
	} else {
		result = s.gateway.Send(ctx, dest, renderReminder(txn, today(run.StartedAt)))
	}

	completed := s.clock.Now()
	rec.CompletedAt = &completed
	if result.Sent {
		rec.Outcome = entity.DispatchSent
		rec.ProviderReference = result.ProviderReference
		run.Tally.Sent++
	} else {
		rec.Outcome = entity.DispatchFailed
		rec.ErrorMessage = result.Reason
		run.Tally.Failed++
		s.logger.Error("Reminder not delivered",
			"run_id", run.ID,
			"transaction_id", txn.ID,
			"reason", result.Reason,
		)
	}

	// A committed claim is always finalized, even when the cycle was
	// cancelled during the send.
	if err := s.dispatches.Finalize(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("Failed to finalize dispatch", "dispatch_id", rec.ID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveDispatch(rec.Outcome)
	}
}

func (s *reminderService) finish(ctx context.Context, run *entity.NotificationRun, create bool) {
	finished := s.clock.Now()
	run.FinishedAt = &finished

	// Bookkeeping must land even if the cycle was cancelled mid-batch.
	ctx = context.WithoutCancel(ctx)
	if create {
		if err := s.runs.Create(ctx, run); err != nil {
			s.logger.Error("Failed to record run start", "run_id", run.ID, "error", err)
		}
	}
	if err := s.runs.Finish(ctx, run); err != nil {
		s.logger.Error("Failed to record run tally", "run_id", run.ID, "error", err)
	}
}

func (s *reminderService) HasActivity(ctx context.Context, date string) (bool, error) {
	runs, err := s.runs.CountForDate(ctx, date)
	if err != nil {
		return false, err
	}
	if runs > 0 {
		return true, nil
	}
	dispatches, err := s.dispatches.CountForDate(ctx, date)
	if err != nil {
		return false, err
	}
	return dispatches > 0, nil
}

func (s *reminderService) LastRun(ctx context.Context) (*entity.NotificationRun, error) {
	return s.runs.Latest(ctx)
}

// renderReminder words the reminder for upcoming or overdue transactions
func renderReminder(txn *TransactionView, day time.Time) string {
	due := lifecycle.DateOf(txn.DueDate)
	amount := txn.Amount.StringFixed(2)
	subject := fmt.Sprintf("transaction #%d (%s %s)", txn.ID, txn.Kind, amount)
	if txn.Description != "" {
		subject += ": " + txn.Description
	}

	days := int(due.Sub(day).Hours() / 24)
	switch {
	case txn.Effective == lifecycle.StateOverdue:
		return fmt.Sprintf("Overdue payment: %s was due on %s and is %d day(s) overdue.",
			subject, due.Format(entity.DateLayout), -days)
	case days == 0:
		return fmt.Sprintf("Payment reminder: %s is due today.", subject)
	default:
		return fmt.Sprintf("Payment reminder: %s is due on %s, in %d day(s).",
			subject, due.Format(entity.DateLayout), days)
	}
}

// destinationCache resolves where a reminder goes: the client's contact,
// else the branch notification target. Lookups are cached per cycle.
type destinationCache struct {
	branches port.BranchRepository
	records  port.RecordRepository
	byBranch map[int64]string
	byClient map[int64]string
}

func newDestinationCache(branches port.BranchRepository, records port.RecordRepository) *destinationCache {
	return &destinationCache{
		branches: branches,
		records:  records,
		byBranch: make(map[int64]string),
		byClient: make(map[int64]string),
	}
}

func (c *destinationCache) resolve(ctx context.Context, txn *entity.FinancialTransaction) (string, error) {
	if txn.ClientID != nil {
		contact, ok := c.byClient[*txn.ClientID]
		if !ok {
			client, err := c.records.GetClient(ctx, *txn.ClientID)
			if err != nil {
				return "", err
			}
			if client != nil {
				contact = client.Contact
			}
			c.byClient[*txn.ClientID] = contact
		}
		if contact != "" {
			return contact, nil
		}
	}

	target, ok := c.byBranch[txn.BranchID]
	if !ok {
		branch, err := c.branches.GetByID(ctx, txn.BranchID)
		if err != nil {
			return "", err
		}
		if branch != nil {
			target = branch.NotifyTarget
		}
		c.byBranch[txn.BranchID] = target
	}
	return target, nil
}
