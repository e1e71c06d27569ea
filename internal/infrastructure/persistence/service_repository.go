package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

// GormServiceRepository implements partner.ServiceRepository using GORM
type GormServiceRepository struct {
	db *gorm.DB
}

// NewGormServiceRepository creates a new GormServiceRepository
func NewGormServiceRepository(db *gorm.DB) *GormServiceRepository {
	return &GormServiceRepository{db: db}
}

// FindByID finds a service by its ID
func (r *GormServiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.Service, error) {
	var s partner.Service
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindByPartner finds all services offered by a partner
func (r *GormServiceRepository) FindByPartner(ctx context.Context, partnerID uuid.UUID) ([]partner.Service, error) {
	var services []partner.Service
	if err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("code asc").
		Find(&services).Error; err != nil {
		return nil, err
	}
	return services, nil
}

// FindByCode finds a partner's service by its code
func (r *GormServiceRepository) FindByCode(ctx context.Context, partnerID uuid.UUID, code string) (*partner.Service, error) {
	var s partner.Service
	if err := r.db.WithContext(ctx).
		Where("partner_id = ? AND code = ?", partnerID, code).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Save persists a service
func (r *GormServiceRepository) Save(ctx context.Context, s *partner.Service) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// Delete removes a service
func (r *GormServiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&partner.Service{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ partner.ServiceRepository = (*GormServiceRepository)(nil)
