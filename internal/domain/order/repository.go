package order

import (
	"context"
	"time"

	"github.com/carelink/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository defines the interface for order persistence
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByPartner(ctx context.Context, partnerID uuid.UUID, filter shared.Filter) ([]Order, error)
	FindByPatient(ctx context.Context, patientID uuid.UUID, filter shared.Filter) ([]Order, error)
	// FindUpdatedSince returns a partner's orders touched after the given
	// instant, oldest first. Push sync uses it to drain pending changes.
	FindUpdatedSince(ctx context.Context, partnerID uuid.UUID, since time.Time) ([]Order, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Order, error)
	Count(ctx context.Context, filter shared.Filter) (int64, error)
	Save(ctx context.Context, o *Order) error
}
