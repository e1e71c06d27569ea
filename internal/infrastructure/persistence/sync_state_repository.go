package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/shared"
)

// GormSyncStateRepository implements integration.SyncStateRepository using
// GORM
type GormSyncStateRepository struct {
	db *gorm.DB
}

// NewGormSyncStateRepository creates a new GormSyncStateRepository
func NewGormSyncStateRepository(db *gorm.DB) *GormSyncStateRepository {
	return &GormSyncStateRepository{db: db}
}

// FindByPartner finds the sync state for a partner
func (r *GormSyncStateRepository) FindByPartner(ctx context.Context, partnerID uuid.UUID) (*integration.SyncState, error) {
	var state integration.SyncState
	if err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

// Save persists a sync state
func (r *GormSyncStateRepository) Save(ctx context.Context, state *integration.SyncState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

var _ integration.SyncStateRepository = (*GormSyncStateRepository)(nil)
