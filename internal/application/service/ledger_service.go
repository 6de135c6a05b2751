package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/office-ledger/internal/application/dispatcher"
	"github.com/garyjia/office-ledger/internal/application/policy"
	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/apperror"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/domain/event"
	"github.com/garyjia/office-ledger/internal/domain/lifecycle"
	"github.com/garyjia/office-ledger/pkg/utils"
)

const (
	ruleAlreadyPaid      = "transaction is already paid; payment status changes are irreversible"
	ruleSettledDelete    = "cannot delete settled transaction"
	ruleSettledEdit      = "paid transactions cannot be rescheduled; payment status changes are irreversible"
	ruleConcurrentChange = "transaction was modified concurrently; reload and retry"
)

// LedgerService is the single writer of financial transaction status
type LedgerService interface {
	Create(ctx context.Context, actor *entity.User, in CreateTransactionInput) (*TransactionView, error)
	Get(ctx context.Context, actor *entity.User, id int64) (*TransactionView, error)
	List(ctx context.Context, actor *entity.User, q ListQuery) ([]*TransactionView, error)
	MarkPaid(ctx context.Context, actor *entity.User, id int64) (*TransactionView, error)
	Reschedule(ctx context.Context, actor *entity.User, id int64, dueDate time.Time) (*TransactionView, error)
	Delete(ctx context.Context, actor *entity.User, id int64) error
	Dispatches(ctx context.Context, actor *entity.User, id int64) ([]*entity.DispatchRecord, error)

	// ListDueWithin runs with system authority for the reminder cycle
	ListDueWithin(ctx context.Context, branchIDs []int64, lookaheadDays int) ([]*TransactionView, error)

	EffectiveStatus(txn *entity.FinancialTransaction) lifecycle.State
}

// CreateTransactionInput carries a new ledger entry
type CreateTransactionInput struct {
	BranchID    int64           `json:"branch_id" validate:"gt=0"`
	Kind        string          `json:"kind" validate:"required,oneof=revenue expense"`
	Amount      decimal.Decimal `json:"amount" validate:"money"`
	DueDate     time.Time       `json:"due_date" validate:"required"`
	ClientID    *int64          `json:"client_id" validate:"omitempty,gt=0"`
	ProcessID   *int64          `json:"process_id" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"max=500"`
}

// ListQuery filters a ledger listing. Status is matched against the
// effective status.
type ListQuery struct {
	Status   string
	BranchID int64
	Limit    int
	Offset   int
}

// TransactionView is a transaction with its status derived as of the
// service clock's current date
type TransactionView struct {
	*entity.FinancialTransaction
	Effective lifecycle.State
}

type ledgerService struct {
	txns       port.TransactionRepository
	branches   port.BranchRepository
	records    port.RecordRepository
	dispatches port.DispatchRepository
	guard      GuardService
	txManager  port.TransactionManager
	events     dispatcher.Dispatcher
	clock      port.Clock
	validate   *utils.Validator
	logger     Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	txns port.TransactionRepository,
	branches port.BranchRepository,
	records port.RecordRepository,
	dispatches port.DispatchRepository,
	guard GuardService,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	clock port.Clock,
	logger Logger,
) LedgerService {
	return &ledgerService{
		txns:       txns,
		branches:   branches,
		records:    records,
		dispatches: dispatches,
		guard:      guard,
		txManager:  txManager,
		events:     events,
		clock:      clock,
		validate:   utils.NewValidator(),
		logger:     logger,
	}
}

// Create records a new pending transaction. Past due dates are accepted for
// backfilled entries; such a transaction is overdue from the start.
func (s *ledgerService) Create(ctx context.Context, actor *entity.User, in CreateTransactionInput) (*TransactionView, error) {
	if err := s.validate.Struct(in); err != nil {
		var fe *utils.FieldError
		if errors.As(err, &fe) {
			return nil, apperror.Invalid(fe.Field, fe.Message())
		}
		return nil, apperror.Invalid("", err.Error())
	}

	if err := policy.Authorize(actor, policy.ActionWrite, policy.InBranch(policy.ResourceTransaction, in.BranchID)).Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	txn := &entity.FinancialTransaction{
		BranchID:    in.BranchID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		DueDate:     lifecycle.DateOf(in.DueDate),
		ClientID:    in.ClientID,
		ProcessID:   in.ProcessID,
		Description: utils.SanitizeString(in.Description),
		CreatedBy:   actor.ID,
		CreatedAt:   now,
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.checkLinks(ctx, txn); err != nil {
			return err
		}
		return s.txns.Create(ctx, txn)
	})
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.Info("Transaction created",
		"transaction_id", txn.ID,
		"branch_id", txn.BranchID,
		"amount", txn.Amount.StringFixed(2),
		"due_date", txn.DueDate.Format(entity.DateLayout),
	)

	publish(ctx, s.events, s.logger, event.New(event.TypeTransactionCreated, txn.BranchID, txn.ID, actor.ID, now).
		With("kind", txn.Kind).
		With("amount", txn.Amount.StringFixed(2)).
		With("due_date", txn.DueDate.Format(entity.DateLayout)))

	return s.view(txn, now), nil
}

// checkLinks verifies optional client and process links exist in the
// transaction's branch
func (s *ledgerService) checkLinks(ctx context.Context, txn *entity.FinancialTransaction) error {
	branch, err := s.branches.GetByID(ctx, txn.BranchID)
	if err != nil {
		return err
	}
	if branch == nil {
		return apperror.NotFound("branch", txn.BranchID)
	}

	if txn.ClientID != nil {
		client, err := s.records.GetClient(ctx, *txn.ClientID)
		if err != nil {
			return err
		}
		if client == nil {
			return apperror.Invalid("client_id", fmt.Sprintf("client %d does not exist", *txn.ClientID))
		}
		if client.BranchID != txn.BranchID {
			return apperror.Invalid("client_id", "client belongs to another branch")
		}
	}

	if txn.ProcessID != nil {
		process, err := s.records.GetProcess(ctx, *txn.ProcessID)
		if err != nil {
			return err
		}
		if process == nil {
			return apperror.Invalid("process_id", fmt.Sprintf("process %d does not exist", *txn.ProcessID))
		}
		if process.BranchID != txn.BranchID {
			return apperror.Invalid("process_id", "process belongs to another branch")
		}
	}
	return nil
}

// Get returns one transaction the actor may read
func (s *ledgerService) Get(ctx context.Context, actor *entity.User, id int64) (*TransactionView, error) {
	txn, err := s.load(ctx, actor, policy.ActionRead, id)
	if err != nil {
		return nil, err
	}
	return s.view(txn, s.clock.Now()), nil
}

// List returns transactions in the branches visible to the actor
func (s *ledgerService) List(ctx context.Context, actor *entity.User, q ListQuery) ([]*TransactionView, error) {
	status, ok := lifecycle.ParseState(q.Status)
	if q.Status != "" && !ok {
		return nil, apperror.Invalid("status", "must be one of: pending, paid, overdue")
	}

	var branchIDs []int64
	if q.BranchID != 0 {
		if err := policy.Authorize(actor, policy.ActionRead, policy.InBranch(policy.ResourceTransaction, q.BranchID)).Err(); err != nil {
			return nil, err
		}
		branchIDs = []int64{q.BranchID}
	} else {
		all, err := s.branches.ListIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list branches: %w", err)
		}
		branchIDs = policy.VisibleBranches(actor, policy.ResourceTransaction, all)
		if len(all) > 0 && len(branchIDs) == 0 {
			return nil, policy.Authorize(actor, policy.ActionRead, policy.InBranch(policy.ResourceTransaction, all[0])).Err()
		}
	}

	now := s.clock.Now()
	txns, err := s.txns.List(ctx, entity.TransactionFilter{
		BranchIDs: branchIDs,
		Status:    status,
		Today:     today(now),
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return s.views(txns, now), nil
}

// MarkPaid settles a transaction. A second call fails with a conflict
// rather than succeeding silently.
func (s *ledgerService) MarkPaid(ctx context.Context, actor *entity.User, id int64) (*TransactionView, error) {
	txn, err := s.load(ctx, actor, policy.ActionWrite, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	machine := lifecycle.NewTransactionMachine(txn.EffectiveStatus(now))
	if err := machine.Fire(ctx, lifecycle.TriggerMarkPaid); err != nil {
		return nil, s.transitionError(err, ruleAlreadyPaid)
	}

	ok, err := s.txns.MarkPaid(ctx, txn.ID, txn.Version, now)
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	if !ok {
		return nil, s.lostRace(ctx, txn.ID, ruleAlreadyPaid)
	}

	txn.Status = lifecycle.StatePaid
	txn.PaidAt = &now
	txn.UpdatedAt = now
	txn.Version++

	s.logger.Info("Transaction marked paid", "transaction_id", txn.ID, "actor_id", actor.ID)
	publish(ctx, s.events, s.logger, event.New(event.TypeTransactionPaid, txn.BranchID, txn.ID, actor.ID, now).
		With("amount", txn.Amount.StringFixed(2)))

	return s.view(txn, now), nil
}

// Reschedule moves the due date of an unpaid transaction. Moving an overdue
// transaction to today or later makes it pending again. Dispatch records of
// earlier days are left untouched.
func (s *ledgerService) Reschedule(ctx context.Context, actor *entity.User, id int64, dueDate time.Time) (*TransactionView, error) {
	if dueDate.IsZero() {
		return nil, apperror.Invalid("due_date", "is required")
	}

	txn, err := s.load(ctx, actor, policy.ActionWrite, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	previous := txn.DueDate
	machine := lifecycle.NewTransactionMachine(txn.EffectiveStatus(now))
	if err := machine.Fire(lifecycle.WithDueDate(ctx, dueDate, now), lifecycle.TriggerReschedule); err != nil {
		return nil, s.transitionError(err, ruleSettledEdit)
	}

	due := lifecycle.DateOf(dueDate)
	ok, err := s.txns.UpdateDueDate(ctx, txn.ID, txn.Version, due, now)
	if err != nil {
		return nil, fmt.Errorf("reschedule: %w", err)
	}
	if !ok {
		return nil, s.lostRace(ctx, txn.ID, ruleSettledEdit)
	}

	txn.DueDate = due
	txn.UpdatedAt = now
	txn.Version++

	s.logger.Info("Transaction rescheduled",
		"transaction_id", txn.ID,
		"from", previous.Format(entity.DateLayout),
		"to", due.Format(entity.DateLayout),
		"status", machine.State(),
	)
	publish(ctx, s.events, s.logger, event.New(event.TypeTransactionRescheduled, txn.BranchID, txn.ID, actor.ID, now).
		With("from", previous.Format(entity.DateLayout)).
		With("to", due.Format(entity.DateLayout)))

	return s.view(txn, now), nil
}

// Delete removes an unpaid transaction after consulting the guard
func (s *ledgerService) Delete(ctx context.Context, actor *entity.User, id int64) error {
	txn, err := s.load(ctx, actor, policy.ActionDelete, id)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	machine := lifecycle.NewTransactionMachine(txn.EffectiveStatus(now))
	if err := machine.Fire(ctx, lifecycle.TriggerDelete); err != nil {
		return s.transitionError(err, ruleSettledDelete)
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		verdict, err := s.guard.CheckDeletable(ctx, entity.RecordTransaction, id)
		if err != nil {
			return err
		}
		if err := verdict.Err(); err != nil {
			return err
		}

		ok, err := s.txns.DeleteUnpaid(ctx, txn.ID, txn.Version)
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, txn.ID, ruleSettledDelete)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.logger.Info("Transaction deleted", "transaction_id", txn.ID, "actor_id", actor.ID)
	publish(ctx, s.events, s.logger, event.New(event.TypeTransactionDeleted, txn.BranchID, txn.ID, actor.ID, now))
	return nil
}

// Dispatches returns the reminder log of a transaction
func (s *ledgerService) Dispatches(ctx context.Context, actor *entity.User, id int64) ([]*entity.DispatchRecord, error) {
	if _, err := s.load(ctx, actor, policy.ActionRead, id); err != nil {
		return nil, err
	}
	records, err := s.dispatches.GetByTransactionID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get dispatches: %w", err)
	}
	return records, nil
}

// ListDueWithin returns unpaid transactions due on or before today plus
// lookaheadDays, ordered by due date then id
func (s *ledgerService) ListDueWithin(ctx context.Context, branchIDs []int64, lookaheadDays int) ([]*TransactionView, error) {
	if lookaheadDays < 0 {
		return nil, apperror.Invalid("lookahead_days", "must not be negative")
	}

	now := s.clock.Now()
	cutoff := today(now).AddDate(0, 0, lookaheadDays)
	txns, err := s.txns.ListUnpaidDueBy(ctx, branchIDs, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list due transactions: %w", err)
	}
	return s.views(txns, now), nil
}

// EffectiveStatus derives the status as of the service clock
func (s *ledgerService) EffectiveStatus(txn *entity.FinancialTransaction) lifecycle.State {
	return txn.EffectiveStatus(s.clock.Now())
}

func (s *ledgerService) load(ctx context.Context, actor *entity.User, action policy.Action, id int64) (*entity.FinancialTransaction, error) {
	txn, err := s.txns.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if txn == nil {
		return nil, apperror.NotFound("transaction", id)
	}
	if err := policy.Authorize(actor, action, policy.InBranch(policy.ResourceTransaction, txn.BranchID)).Err(); err != nil {
		return nil, err
	}
	return txn, nil
}

// transitionError maps lifecycle failures to the error taxonomy
func (s *ledgerService) transitionError(err error, settledRule string) error {
	switch {
	case errors.Is(err, lifecycle.ErrTerminalState):
		return apperror.Conflict(settledRule, true)
	case errors.Is(err, lifecycle.ErrGuardFailed):
		return apperror.Invalid("due_date", err.Error())
	default:
		return apperror.Conflict(err.Error(), false)
	}
}

// lostRace explains why a conditional write matched no row
func (s *ledgerService) lostRace(ctx context.Context, id int64, settledRule string) error {
	current, err := s.txns.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload transaction: %w", err)
	}
	switch {
	case current == nil:
		return apperror.NotFound("transaction", id)
	case current.Status == lifecycle.StatePaid:
		return apperror.Conflict(settledRule, true)
	default:
		return apperror.Conflict(ruleConcurrentChange, false)
	}
}

func (s *ledgerService) view(txn *entity.FinancialTransaction, now time.Time) *TransactionView {
	return &TransactionView{FinancialTransaction: txn, Effective: txn.EffectiveStatus(now)}
}

func (s *ledgerService) views(txns []*entity.FinancialTransaction, now time.Time) []*TransactionView {
	out := make([]*TransactionView, 0, len(txns))
	for _, txn := range txns {
		out = append(out, s.view(txn, now))
	}
	return out
}
