package partner

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

type fakePartnerRepo struct {
	mu       sync.Mutex
	partners map[uuid.UUID]*partner.Partner
}

func newFakePartnerRepo() *fakePartnerRepo {
	return &fakePartnerRepo{partners: make(map[uuid.UUID]*partner.Partner)}
}

func (r *fakePartnerRepo) FindByID(_ context.Context, id uuid.UUID) (*partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePartnerRepo) FindAll(_ context.Context, _ shared.Filter) ([]partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []partner.Partner
	for _, p := range r.partners {
		result = append(result, *p)
	}
	return result, nil
}

func (r *fakePartnerRepo) FindRequiringSync(context.Context) ([]partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []partner.Partner
	for _, p := range r.partners {
		if p.RequiresSync() {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (r *fakePartnerRepo) FindWithWebhooks(context.Context) ([]partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []partner.Partner
	for _, p := range r.partners {
		if p.IsActive && p.WebhookConfig != nil {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (r *fakePartnerRepo) Count(_ context.Context, _ shared.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.partners)), nil
}

func (r *fakePartnerRepo) Save(_ context.Context, p *partner.Partner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *p
	clone.ClearDomainEvents()
	r.partners[p.ID] = &clone
	return nil
}

func (r *fakePartnerRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.partners[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.partners, id)
	return nil
}

type fakeServiceRepo struct {
	mu       sync.Mutex
	services map[uuid.UUID]*partner.Service
}

func newFakeServiceRepo() *fakeServiceRepo {
	return &fakeServiceRepo{services: make(map[uuid.UUID]*partner.Service)}
}

func (r *fakeServiceRepo) FindByID(_ context.Context, id uuid.UUID) (*partner.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeServiceRepo) FindByPartner(_ context.Context, partnerID uuid.UUID) ([]partner.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []partner.Service
	for _, s := range r.services {
		if s.PartnerID == partnerID {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (r *fakeServiceRepo) FindByCode(_ context.Context, partnerID uuid.UUID, code string) (*partner.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.services {
		if s.PartnerID == partnerID && s.Code == code {
			clone := *s
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeServiceRepo) Save(_ context.Context, s *partner.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.services[s.ID] = &clone
	return nil
}

func (r *fakeServiceRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, id)
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

func newRegistry() (*RegistryService, *fakePartnerRepo, *fakeServiceRepo, *capturingPublisher) {
	partners := newFakePartnerRepo()
	services := newFakeServiceRepo()
	publisher := &capturingPublisher{}
	return NewRegistryService(partners, services, publisher, zap.NewNop()), partners, services, publisher
}

func webhookRegisterRequest() RegisterPartnerRequest {
	return RegisterPartnerRequest{
		Name:            "Acme Diagnostics",
		Type:            "lab",
		IntegrationType: "webhook",
		WebhookConfig: &WebhookConfigRequest{
			URL:    "https://partner.example.com/hook",
			Events: []string{"OrderStatusChanged"},
			Secret: "super-secret-signing-key",
		},
	}
}

func TestRegisterWebhookPartner(t *testing.T) {
	svc, _, _, publisher := newRegistry()

	resp, err := svc.Register(context.Background(), webhookRegisterRequest())
	require.NoError(t, err)
	assert.True(t, resp.IsActive)
	assert.Equal(t, "webhook", resp.IntegrationType)
	require.NotNil(t, resp.WebhookConfig)
	assert.Equal(t, partner.DefaultMaxAttempts, resp.WebhookConfig.RetryPolicy.MaxAttempts)
	assert.Contains(t, publisher.eventTypes(), partner.EventTypePartnerRegistered)
}

func TestRegisterSecretsNeverLeaveTheService(t *testing.T) {
	svc, _, _, _ := newRegistry()

	req := webhookRegisterRequest()
	resp, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	// The response carries no secret field at all; round-trip through the
	// registry read side agrees.
	fetched, err := svc.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.WebhookConfig)
	assert.False(t, fetched.HasCredentials)
}

func TestRegisterWebhookPartnerRequiresConfig(t *testing.T) {
	svc, _, _, _ := newRegistry()

	req := webhookRegisterRequest()
	req.WebhookConfig = nil

	_, err := svc.Register(context.Background(), req)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
}

func TestRegisterAPIPartnerRequiresCredentials(t *testing.T) {
	svc, _, _, _ := newRegistry()

	_, err := svc.Register(context.Background(), RegisterPartnerRequest{
		Name:            "Acme Diagnostics",
		Type:            "lab",
		IntegrationType: "api",
	})
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
}

func TestRegisterRejectsShortSyncFrequency(t *testing.T) {
	svc, _, _, _ := newRegistry()

	req := webhookRegisterRequest()
	req.SyncConfig = &SyncConfigRequest{
		Type:       "pull",
		Scope:      "incremental",
		Frequency:  "10s",
		DataFormat: "json",
		Endpoint:   "https://partner.example.com/records",
	}

	_, err := svc.Register(context.Background(), req)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
}

func TestUpdateConfigEmitsConfigChangedEvent(t *testing.T) {
	svc, _, _, publisher := newRegistry()

	resp, err := svc.Register(context.Background(), webhookRegisterRequest())
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), resp.ID, UpdatePartnerRequest{
		WebhookConfig: &WebhookConfigRequest{
			URL:    "https://partner.example.com/hook/v2",
			Secret: "another-secret-signing-key",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, publisher.eventTypes(), partner.EventTypePartnerConfigChanged)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	svc, repo, _, publisher := newRegistry()

	resp, err := svc.Register(context.Background(), webhookRegisterRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), resp.ID))
	require.NoError(t, svc.Deactivate(context.Background(), resp.ID))

	stored, err := repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	deactivations := 0
	for _, eventType := range publisher.eventTypes() {
		if eventType == partner.EventTypePartnerDeactivated {
			deactivations++
		}
	}
	assert.Equal(t, 1, deactivations)
}

func TestRegisterServiceRejectsDuplicateCode(t *testing.T) {
	svc, _, _, _ := newRegistry()

	resp, err := svc.Register(context.Background(), webhookRegisterRequest())
	require.NoError(t, err)

	base := decimal.NewFromFloat(49.90)
	req := RegisterServiceRequest{
		Code:    "CBC",
		Name:    "Complete blood count",
		Pricing: partner.Pricing{Type: partner.PricingTypeFixed, BasePrice: &base},
	}

	_, err = svc.RegisterService(context.Background(), resp.ID, req)
	require.NoError(t, err)

	_, err = svc.RegisterService(context.Background(), resp.ID, req)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ALREADY_EXISTS", domainErr.Code)
}

func TestUpdateServicePricing(t *testing.T) {
	svc, _, _, _ := newRegistry()

	resp, err := svc.Register(context.Background(), webhookRegisterRequest())
	require.NoError(t, err)

	base := decimal.NewFromFloat(49.90)
	created, err := svc.RegisterService(context.Background(), resp.ID, RegisterServiceRequest{
		Code:    "CBC",
		Name:    "Complete blood count",
		Pricing: partner.Pricing{Type: partner.PricingTypeFixed, BasePrice: &base},
	})
	require.NoError(t, err)

	perItem := decimal.NewFromFloat(3.25)
	updated, err := svc.UpdateServicePricing(context.Background(), created.ID, UpdateServicePricingRequest{
		Pricing: partner.Pricing{Type: partner.PricingTypePerItem, UnitPrice: &perItem},
	})
	require.NoError(t, err)
	assert.Equal(t, partner.PricingTypePerItem, updated.Pricing.Type)
}
