package partner

import (
	"context"

	"github.com/carelink/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository defines the interface for partner persistence
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Partner, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Partner, error)
	FindRequiringSync(ctx context.Context) ([]Partner, error)
	FindWithWebhooks(ctx context.Context) ([]Partner, error)
	Count(ctx context.Context, filter shared.Filter) (int64, error)
	Save(ctx context.Context, p *Partner) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ServiceRepository defines the interface for partner service persistence
type ServiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Service, error)
	FindByPartner(ctx context.Context, partnerID uuid.UUID) ([]Service, error)
	FindByCode(ctx context.Context, partnerID uuid.UUID, code string) (*Service, error)
	Save(ctx context.Context, s *Service) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Reader exposes the read-only lookups other components consume.
// Dispatch and sync never mutate the registry.
type Reader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Partner, error)
	FindRequiringSync(ctx context.Context) ([]Partner, error)
	FindWithWebhooks(ctx context.Context) ([]Partner, error)
}
