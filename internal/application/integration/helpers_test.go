package integration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"

	apporder "github.com/carelink/backend/internal/application/order"
)

type fakePartnerReader struct {
	mu       sync.Mutex
	partners map[uuid.UUID]*partner.Partner
}

func newFakePartnerReader(partners ...*partner.Partner) *fakePartnerReader {
	r := &fakePartnerReader{partners: make(map[uuid.UUID]*partner.Partner)}
	for _, p := range partners {
		r.partners[p.ID] = p
	}
	return r
}

func (r *fakePartnerReader) FindByID(_ context.Context, id uuid.UUID) (*partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *fakePartnerReader) FindRequiringSync(context.Context) ([]partner.Partner, error) {
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

func (r *fakePartnerReader) FindWithWebhooks(context.Context) ([]partner.Partner, error) {
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

type appliedTransition struct {
	OrderID uuid.UUID
	Status  order.Status
	Reason  string
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []appliedTransition
	err     error
}

func (a *fakeApplier) Transition(_ context.Context, orderID uuid.UUID, target order.Status, reason string) (*apporder.OrderResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.applied = append(a.applied, appliedTransition{OrderID: orderID, Status: target, Reason: reason})
	return &apporder.OrderResponse{ID: orderID, Status: string(target)}, nil
}

func (a *fakeApplier) transitions() []appliedTransition {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]appliedTransition(nil), a.applied...)
}

type fakeIdemStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{seen: make(map[string]struct{})}
}

func (s *fakeIdemStore) MarkProcessed(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[eventID]; ok {
		return false, nil
	}
	s.seen[eventID] = struct{}{}
	return true, nil
}

func (s *fakeIdemStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[eventID]
	return ok, nil
}

func (s *fakeIdemStore) Close() error { return nil }

type fakeGateway struct {
	mu      sync.Mutex
	batch   *integration.RecordBatch
	pullErr error
	pushed  [][]integration.Record
	pushErr error
}

func (g *fakeGateway) FetchRecords(context.Context, *partner.Partner, string) (*integration.RecordBatch, error) {
	if g.pullErr != nil {
		return nil, g.pullErr
	}
	if g.batch == nil {
		return &integration.RecordBatch{}, nil
	}
	return g.batch, nil
}

func (g *fakeGateway) PushRecords(_ context.Context, _ *partner.Partner, records []integration.Record) error {
	if g.pushErr != nil {
		return g.pushErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushed = append(g.pushed, records)
	return nil
}

type fakeOrderSource struct {
	orders []order.Order
	since  time.Time
	err    error
}

func (s *fakeOrderSource) FindUpdatedSince(_ context.Context, _ uuid.UUID, since time.Time) ([]order.Order, error) {
	s.since = since
	if s.err != nil {
		return nil, s.err
	}
	return s.orders, nil
}

func newWebhookPartner(t testingT, url string, events ...string) *partner.Partner {
	p, err := partner.NewPartner("Acme Diagnostics", partner.PartnerTypeLab, partner.IntegrationTypeWebhook)
	if err != nil {
		t.Fatalf("new partner: %v", err)
	}
	if err := p.SetWebhookConfig(&partner.WebhookConfig{
		URL:    url,
		Events: events,
		Secret: "super-secret-signing-key",
		RetryPolicy: partner.RetryPolicy{
			MaxAttempts: 2,
			Delay:       time.Millisecond,
			Backoff:     partner.BackoffLinear,
		},
	}); err != nil {
		t.Fatalf("set webhook config: %v", err)
	}
	return p
}

func newSyncPartner(t testingT, syncType partner.SyncType, scope partner.SyncScope, mappings ...partner.FieldMapping) *partner.Partner {
	p, err := partner.NewPartner("Acme Diagnostics", partner.PartnerTypeLab, partner.IntegrationTypeAPI)
	if err != nil {
		t.Fatalf("new partner: %v", err)
	}
	p.CredentialsRef = "env://ACME_TOKEN"
	if err := p.SetSyncConfig(&partner.SyncConfig{
		Type:       syncType,
		Scope:      scope,
		Frequency:  time.Minute,
		DataFormat: partner.DataFormatJSON,
		Endpoint:   "https://partner.example.com/records",
		Mappings:   mappings,
	}); err != nil {
		t.Fatalf("set sync config: %v", err)
	}
	return p
}

type testingT interface {
	Fatalf(format string, args ...any)
}
