package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

// GormPartnerRepository implements partner.Repository using GORM
type GormPartnerRepository struct {
	db *gorm.DB
}

// NewGormPartnerRepository creates a new GormPartnerRepository
func NewGormPartnerRepository(db *gorm.DB) *GormPartnerRepository {
	return &GormPartnerRepository{db: db}
}

// FindByID finds a partner by its ID, including its services
func (r *GormPartnerRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.Partner, error) {
	var p partner.Partner
	if err := r.db.WithContext(ctx).Preload("Services").First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindAll finds all partners matching the filter
func (r *GormPartnerRepository) FindAll(ctx context.Context, filter shared.Filter) ([]partner.Partner, error) {
	var partners []partner.Partner
	query := applyFilter(r.db.WithContext(ctx).Model(&partner.Partner{}), filter)
	if err := query.Find(&partners).Error; err != nil {
		return nil, err
	}
	return partners, nil
}

// FindRequiringSync finds active partners that have a sync configuration
func (r *GormPartnerRepository) FindRequiringSync(ctx context.Context) ([]partner.Partner, error) {
	var partners []partner.Partner
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND sync_config IS NOT NULL", true).
		Find(&partners).Error; err != nil {
		return nil, err
	}
	return partners, nil
}

// FindWithWebhooks finds active partners that have a webhook endpoint
func (r *GormPartnerRepository) FindWithWebhooks(ctx context.Context) ([]partner.Partner, error) {
	var partners []partner.Partner
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND webhook_config IS NOT NULL", true).
		Find(&partners).Error; err != nil {
		return nil, err
	}
	return partners, nil
}

// Count counts partners matching the filter
func (r *GormPartnerRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := applyCountFilter(r.db.WithContext(ctx).Model(&partner.Partner{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save persists a partner and its services
func (r *GormPartnerRepository) Save(ctx context.Context, p *partner.Partner) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(p).Error
}

// Delete removes a partner
func (r *GormPartnerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&partner.Partner{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ partner.Repository = (*GormPartnerRepository)(nil)
