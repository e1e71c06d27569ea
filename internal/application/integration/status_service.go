package integration

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

// SyncTrigger runs an out-of-band sync cycle for a partner. The sync
// scheduler satisfies this.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, partnerID uuid.UUID) (*integration.CycleResult, error)
}

// StatusService answers read queries about a partner's integration health
// and lets operators trigger a sync cycle outside the schedule.
type StatusService struct {
	partners partner.Reader
	states   integration.SyncStateRepository
	records  integration.DeliveryRecordRepository
	trigger  SyncTrigger
	logger   *zap.Logger
}

// NewStatusService creates a new StatusService
func NewStatusService(
	partners partner.Reader,
	states integration.SyncStateRepository,
	records integration.DeliveryRecordRepository,
	trigger SyncTrigger,
	logger *zap.Logger,
) *StatusService {
	return &StatusService{
		partners: partners,
		states:   states,
		records:  records,
		trigger:  trigger,
		logger:   logger,
	}
}

// SyncStatus returns a partner's current sync position. A partner that has
// never synced reports an idle status with no cursor.
func (s *StatusService) SyncStatus(ctx context.Context, partnerID uuid.UUID) (*SyncStatusResponse, error) {
	if _, err := s.partners.FindByID(ctx, partnerID); err != nil {
		return nil, err
	}

	state, err := s.states.FindByPartner(ctx, partnerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			response := ToSyncStatusResponse(integration.NewSyncState(partnerID))
			return &response, nil
		}
		return nil, err
	}

	response := ToSyncStatusResponse(state)
	return &response, nil
}

// TriggerSync runs a sync cycle for the partner right now
func (s *StatusService) TriggerSync(ctx context.Context, partnerID uuid.UUID) (*CycleResultResponse, error) {
	result, err := s.trigger.TriggerSync(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("manual sync cycle completed",
		zap.String("partner_id", partnerID.String()),
		zap.Int("pulled", result.PulledRecords),
		zap.Int("pushed", result.PushedRecords),
	)

	response := ToCycleResultResponse(result)
	return &response, nil
}

// DeliveryHistory returns a partner's most recent webhook delivery outcomes
func (s *StatusService) DeliveryHistory(ctx context.Context, partnerID uuid.UUID, limit int) ([]DeliveryRecordResponse, error) {
	if _, err := s.partners.FindByID(ctx, partnerID); err != nil {
		return nil, err
	}

	records, err := s.records.FindByPartner(ctx, partnerID, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]DeliveryRecordResponse, 0, len(records))
	for i := range records {
		responses = append(responses, ToDeliveryRecordResponse(&records[i]))
	}
	return responses, nil
}
