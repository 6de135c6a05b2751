package service

import (
	"context"
	"fmt"

	"github.com/garyjia/office-ledger/internal/application/policy"
	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/apperror"
	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// RecordService reads the client records the ledger links to
type RecordService interface {
	GetClient(ctx context.Context, actor *entity.User, id int64) (*entity.Client, error)
}

type recordService struct {
	records port.RecordRepository
}

// NewRecordService creates a new RecordService
func NewRecordService(records port.RecordRepository) RecordService {
	return &recordService{records: records}
}

func (s *recordService) GetClient(ctx context.Context, actor *entity.User, id int64) (*entity.Client, error) {
	client, err := s.records.GetClient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, apperror.NotFound(entity.RecordClient, id)
	}
	if err := policy.Authorize(actor, policy.ActionRead, policy.InBranch(policy.ResourceClient, client.BranchID)).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
