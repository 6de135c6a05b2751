package service

import (
	"context"
	"fmt"

	"github.com/garyjia/office-ledger/internal/application/dispatcher"
	"github.com/garyjia/office-ledger/internal/application/policy"
	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/apperror"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/domain/event"
	"github.com/garyjia/office-ledger/internal/domain/lifecycle"
)

// GuardService is the pre-delete referential integrity check across
// clients, processes, contracts and transactions
type GuardService interface {
	CheckDeletable(ctx context.Context, kind string, id int64) (*Verdict, error)

	// DeleteRecord deletes a client, process or contract if nothing
	// references it
	DeleteRecord(ctx context.Context, actor *entity.User, kind string, id int64) error
}

// Verdict is the outcome of a deletability check
type Verdict struct {
	Kind string
	ID   int64

	// Counts holds every nonzero dependent kind
	Counts map[string]int

	// Settled is set for paid transactions
	Settled bool
}

// Deletable reports whether nothing blocks the delete
func (v *Verdict) Deletable() bool {
	return !v.Settled && len(v.Counts) == 0
}

// Err converts a blocked verdict into the error the caller should surface
func (v *Verdict) Err() error {
	switch {
	case v.Settled:
		return apperror.Conflict(ruleSettledDelete, true)
	case len(v.Counts) > 0:
		return &apperror.DependencyError{Kind: v.Kind, ID: v.ID, Counts: v.Counts}
	default:
		return nil
	}
}

var recordResources = map[string]policy.Resource{
	entity.RecordClient:   policy.ResourceClient,
	entity.RecordProcess:  policy.ResourceProcess,
	entity.RecordContract: policy.ResourceContract,
}

type guardService struct {
	records   port.RecordRepository
	txns      port.TransactionRepository
	txManager port.TransactionManager
	events    dispatcher.Dispatcher
	clock     port.Clock
	logger    Logger
}

// NewGuardService creates a new GuardService
func NewGuardService(
	records port.RecordRepository,
	txns port.TransactionRepository,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	clock port.Clock,
	logger Logger,
) GuardService {
	return &guardService{
		records:   records,
		txns:      txns,
		txManager: txManager,
		events:    events,
		clock:     clock,
		logger:    logger,
	}
}

// CheckDeletable computes every blocking dependent inside one read
// transaction, so the counts are mutually consistent
func (s *guardService) CheckDeletable(ctx context.Context, kind string, id int64) (*Verdict, error) {
	verdict := &Verdict{Kind: kind, ID: id, Counts: map[string]int{}}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if kind == entity.RecordTransaction {
			txn, err := s.txns.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if txn == nil {
				return apperror.NotFound(kind, id)
			}
			verdict.Settled = lifecycle.Effective(txn.Status, txn.DueDate, s.clock.Now()) == lifecycle.StatePaid
			return nil
		}

		if _, ok := recordResources[kind]; !ok {
			return apperror.Invalid("kind", fmt.Sprintf("unknown record kind %q", kind))
		}

		ref, err := s.records.Locate(ctx, kind, id)
		if err != nil {
			return err
		}
		if ref == nil {
			return apperror.NotFound(kind, id)
		}

		counts, err := s.records.CountReferences(ctx, kind, id)
		if err != nil {
			return err
		}
		for k, n := range counts {
			if n > 0 {
				verdict.Counts[k] = n
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

// DeleteRecord authorizes, checks and deletes in one write transaction so no
// reference can appear between the check and the delete
func (s *guardService) DeleteRecord(ctx context.Context, actor *entity.User, kind string, id int64) error {
	resource, ok := recordResources[kind]
	if !ok {
		return apperror.Invalid("kind", fmt.Sprintf("%s records cannot be deleted here", kind))
	}

	var branchID int64
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		ref, err := s.records.Locate(ctx, kind, id)
		if err != nil {
			return err
		}
		if ref == nil {
			return apperror.NotFound(kind, id)
		}
		branchID = ref.BranchID

		if err := policy.Authorize(actor, policy.ActionDelete, policy.InBranch(resource, ref.BranchID)).Err(); err != nil {
			return err
		}

		verdict, err := s.CheckDeletable(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := verdict.Err(); err != nil {
			s.logger.Info("Delete blocked", "kind", kind, "id", id, "blocked_by", verdict.Counts)
			return err
		}

		deleted, err := s.records.Delete(ctx, kind, id)
		if err != nil {
			return err
		}
		if !deleted {
			return apperror.NotFound(kind, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	s.logger.Info("Record deleted", "kind", kind, "id", id, "actor_id", actor.ID)
	publish(ctx, s.events, s.logger, event.New(event.TypeRecordDeleted, branchID, id, actor.ID, s.clock.Now()).
		With("kind", kind))
	return nil
}
