package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/shared"
)

// GormDeliveryRecordRepository implements
// integration.DeliveryRecordRepository using GORM
type GormDeliveryRecordRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRecordRepository creates a new GormDeliveryRecordRepository
func NewGormDeliveryRecordRepository(db *gorm.DB) *GormDeliveryRecordRepository {
	return &GormDeliveryRecordRepository{db: db}
}

// Save persists a terminal delivery record
func (r *GormDeliveryRecordRepository) Save(ctx context.Context, record *integration.DeliveryRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// FindByPartner returns the most recent deliveries to a partner
func (r *GormDeliveryRecordRepository) FindByPartner(ctx context.Context, partnerID uuid.UUID, limit int) ([]integration.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []integration.DeliveryRecord
	if err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("completed_at desc").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByEvent finds the delivery record for one event
func (r *GormDeliveryRecordRepository) FindByEvent(ctx context.Context, eventID uuid.UUID) (*integration.DeliveryRecord, error) {
	var record integration.DeliveryRecord
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

var _ integration.DeliveryRecordRepository = (*GormDeliveryRecordRepository)(nil)
