package partner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

// RegistryService manages the partner registry: partners, their services
// and their integration configuration. All invariants are enforced at
// write time, so dispatch and sync can trust what they read.
type RegistryService struct {
	partners  partner.Repository
	services  partner.ServiceRepository
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewRegistryService creates a new partner registry service
func NewRegistryService(partners partner.Repository, services partner.ServiceRepository, publisher shared.EventPublisher, logger *zap.Logger) *RegistryService {
	return &RegistryService{
		partners:  partners,
		services:  services,
		publisher: publisher,
		logger:    logger,
	}
}

// Register registers a new partner
func (s *RegistryService) Register(ctx context.Context, req RegisterPartnerRequest) (*PartnerResponse, error) {
	p, err := partner.NewPartner(req.Name, partner.PartnerType(req.Type), partner.IntegrationType(req.IntegrationType))
	if err != nil {
		return nil, err
	}
	p.CredentialsRef = req.CredentialsRef

	if req.WebhookConfig != nil {
		if err := p.SetWebhookConfig(toWebhookConfig(req.WebhookConfig)); err != nil {
			return nil, err
		}
	}
	if req.SyncConfig != nil {
		cfg, err := toSyncConfig(req.SyncConfig)
		if err != nil {
			return nil, err
		}
		if err := p.SetSyncConfig(cfg); err != nil {
			return nil, err
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.partners.Save(ctx, p); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, p)

	s.logger.Info("partner registered",
		zap.String("partner_id", p.ID.String()),
		zap.String("name", p.Name),
		zap.String("integration_type", string(p.IntegrationType)),
	)

	response := ToPartnerResponse(p)
	return &response, nil
}

// GetByID retrieves a partner by ID
func (s *RegistryService) GetByID(ctx context.Context, partnerID uuid.UUID) (*PartnerResponse, error) {
	p, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	response := ToPartnerResponse(p)
	return &response, nil
}

// List retrieves partners with filtering and pagination
func (s *RegistryService) List(ctx context.Context, filter ListFilter) (PaginatedPartners, error) {
	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.Type != "" {
		domainFilter.Filters["type"] = filter.Type
	}
	if filter.Active != nil {
		domainFilter.Filters["is_active"] = *filter.Active
	}

	partners, err := s.partners.FindAll(ctx, domainFilter)
	if err != nil {
		return PaginatedPartners{}, err
	}
	total, err := s.partners.Count(ctx, domainFilter)
	if err != nil {
		return PaginatedPartners{}, err
	}

	responses := make([]PartnerResponse, 0, len(partners))
	for i := range partners {
		responses = append(responses, ToPartnerResponse(&partners[i]))
	}
	return shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize), nil
}

// Update applies a partial update to a partner. Configuration changes
// apply to future deliveries and cycles only.
func (s *RegistryService) Update(ctx context.Context, partnerID uuid.UUID, req UpdatePartnerRequest) (*PartnerResponse, error) {
	p, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Partner name cannot be empty")
		}
		p.Name = *req.Name
		p.UpdatedAt = time.Now()
	}
	if req.CredentialsRef != nil {
		p.CredentialsRef = *req.CredentialsRef
		p.UpdatedAt = time.Now()
	}
	configChanged := false
	if req.WebhookConfig != nil {
		if err := p.SetWebhookConfig(toWebhookConfig(req.WebhookConfig)); err != nil {
			return nil, err
		}
		configChanged = true
	}
	if req.SyncConfig != nil {
		cfg, err := toSyncConfig(req.SyncConfig)
		if err != nil {
			return nil, err
		}
		if err := p.SetSyncConfig(cfg); err != nil {
			return nil, err
		}
		configChanged = true
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if configChanged {
		p.AddDomainEvent(partner.NewPartnerConfigChangedEvent(p))
	}
	if err := s.partners.Save(ctx, p); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, p)

	response := ToPartnerResponse(p)
	return &response, nil
}

// Deactivate deactivates a partner. Dispatch and sync skip inactive
// partners from the next read onwards.
func (s *RegistryService) Deactivate(ctx context.Context, partnerID uuid.UUID) error {
	p, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return nil
	}
	p.Deactivate()
	p.AddDomainEvent(partner.NewPartnerDeactivatedEvent(p))
	if err := s.partners.Save(ctx, p); err != nil {
		return err
	}
	s.publishEvents(ctx, p)

	s.logger.Info("partner deactivated", zap.String("partner_id", p.ID.String()))
	return nil
}

// Activate reactivates a partner
func (s *RegistryService) Activate(ctx context.Context, partnerID uuid.UUID) error {
	p, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return err
	}
	if p.IsActive {
		return nil
	}
	p.Activate()
	return s.partners.Save(ctx, p)
}

// RegisterService adds a billable service to a partner
func (s *RegistryService) RegisterService(ctx context.Context, partnerID uuid.UUID, req RegisterServiceRequest) (*ServiceResponse, error) {
	p, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.services.FindByCode(ctx, p.ID, req.Code); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "A service with this code already exists for the partner")
	}

	svc, err := partner.NewService(p.ID, req.Code, req.Name, req.Pricing, req.Availability)
	if err != nil {
		return nil, err
	}
	if err := s.services.Save(ctx, svc); err != nil {
		return nil, err
	}

	response := ToServiceResponse(svc)
	return &response, nil
}

// ListServices lists a partner's services
func (s *RegistryService) ListServices(ctx context.Context, partnerID uuid.UUID) ([]ServiceResponse, error) {
	services, err := s.services.FindByPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	responses := make([]ServiceResponse, 0, len(services))
	for i := range services {
		responses = append(responses, ToServiceResponse(&services[i]))
	}
	return responses, nil
}

// UpdateServicePricing replaces a service's pricing
func (s *RegistryService) UpdateServicePricing(ctx context.Context, serviceID uuid.UUID, req UpdateServicePricingRequest) (*ServiceResponse, error) {
	svc, err := s.services.FindByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := svc.UpdatePricing(req.Pricing); err != nil {
		return nil, err
	}
	if err := s.services.Save(ctx, svc); err != nil {
		return nil, err
	}
	response := ToServiceResponse(svc)
	return &response, nil
}

func (s *RegistryService) publishEvents(ctx context.Context, p *partner.Partner) {
	if s.publisher == nil {
		return
	}
	events := p.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish partner events",
			zap.String("partner_id", p.ID.String()),
			zap.Error(err),
		)
	}
	p.ClearDomainEvents()
}

func toWebhookConfig(req *WebhookConfigRequest) *partner.WebhookConfig {
	cfg := &partner.WebhookConfig{
		URL:    req.URL,
		Events: req.Events,
		Secret: req.Secret,
	}
	if req.RetryPolicy != nil {
		policy := partner.DefaultRetryPolicy()
		if req.RetryPolicy.MaxAttempts > 0 {
			policy.MaxAttempts = req.RetryPolicy.MaxAttempts
		}
		if req.RetryPolicy.DelayMs > 0 {
			policy.Delay = time.Duration(req.RetryPolicy.DelayMs) * time.Millisecond
		}
		if req.RetryPolicy.Backoff != "" {
			policy.Backoff = partner.BackoffPolicy(req.RetryPolicy.Backoff)
		}
		cfg.RetryPolicy = policy
	}
	return cfg
}

func toSyncConfig(req *SyncConfigRequest) (*partner.SyncConfig, error) {
	cfg := &partner.SyncConfig{
		Type:       partner.SyncType(req.Type),
		Scope:      partner.SyncScope(req.Scope),
		DataFormat: partner.DataFormat(req.DataFormat),
		Endpoint:   req.Endpoint,
	}
	if req.Frequency != "" {
		freq, err := time.ParseDuration(req.Frequency)
		if err != nil {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Sync frequency must be a duration such as \"5m\"")
		}
		cfg.Frequency = freq
	}
	for _, m := range req.Mappings {
		cfg.Mappings = append(cfg.Mappings, partner.FieldMapping{
			SourceField:    m.SourceField,
			TargetField:    m.TargetField,
			Transformation: m.Transformation,
			TransformArgs:  m.TransformArgs,
			DefaultValue:   m.DefaultValue,
			Required:       m.Required,
		})
	}
	return cfg, nil
}
