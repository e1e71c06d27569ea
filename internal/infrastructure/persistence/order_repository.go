package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/shared"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by its ID, including its line items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// FindByPartner finds orders placed against a partner
func (r *GormOrderRepository) FindByPartner(ctx context.Context, partnerID uuid.UUID, filter shared.Filter) ([]order.Order, error) {
	var orders []order.Order
	query := applyFilter(r.db.WithContext(ctx).Model(&order.Order{}), filter).
		Where("partner_id = ?", partnerID).
		Preload("Items")
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindByPatient finds orders for a patient
func (r *GormOrderRepository) FindByPatient(ctx context.Context, patientID uuid.UUID, filter shared.Filter) ([]order.Order, error) {
	var orders []order.Order
	query := applyFilter(r.db.WithContext(ctx).Model(&order.Order{}), filter).
		Where("patient_id = ?", patientID).
		Preload("Items")
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindUpdatedSince finds a partner's orders updated after the given
// instant, oldest first
func (r *GormOrderRepository) FindUpdatedSince(ctx context.Context, partnerID uuid.UUID, since time.Time) ([]order.Order, error) {
	var orders []order.Order
	if err := r.db.WithContext(ctx).
		Where("partner_id = ? AND updated_at > ?", partnerID, since).
		Order("updated_at asc").
		Preload("Items").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindAll finds all orders matching the filter
func (r *GormOrderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]order.Order, error) {
	var orders []order.Order
	query := applyFilter(r.db.WithContext(ctx).Model(&order.Order{}), filter).Preload("Items")
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Count counts orders matching the filter
func (r *GormOrderRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := applyCountFilter(r.db.WithContext(ctx).Model(&order.Order{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save persists an order and its line items
func (r *GormOrderRepository) Save(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(o).Error
}

var _ order.Repository = (*GormOrderRepository)(nil)
