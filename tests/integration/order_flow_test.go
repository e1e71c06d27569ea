package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appintegration "github.com/carelink/backend/internal/application/integration"
	apporder "github.com/carelink/backend/internal/application/order"
	apppartner "github.com/carelink/backend/internal/application/partner"
	domainintegration "github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/infrastructure/cache"
	"github.com/carelink/backend/internal/infrastructure/event"
	"github.com/carelink/backend/internal/infrastructure/persistence"
	"github.com/carelink/backend/internal/infrastructure/transform"
	"github.com/carelink/backend/internal/infrastructure/webhook"
	"github.com/carelink/backend/internal/interfaces/http/handler"
	"github.com/carelink/backend/internal/interfaces/http/middleware"
	"github.com/carelink/backend/internal/interfaces/http/router"
)

const partnerSecret = "integration-test-signing-key"

// env wires real repositories, the event bus and the webhook dispatcher
// on an in-memory database, the same composition the server uses.
type env struct {
	orders     *apporder.Service
	registry   *apppartner.RegistryService
	partners   partner.Reader
	records    domainintegration.DeliveryRecordRepository
	dispatcher *webhook.Dispatcher
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&partner.Partner{},
		&partner.Service{},
		&order.Order{},
		&order.Item{},
		&domainintegration.SyncState{},
		&domainintegration.DeliveryRecord{},
	))

	log := zap.NewNop()
	partnerRepo := persistence.NewGormPartnerRepository(db)
	serviceRepo := persistence.NewGormServiceRepository(db)
	orderRepo := persistence.NewGormOrderRepository(db)
	recordRepo := persistence.NewGormDeliveryRecordRepository(db)

	bus := event.NewInMemoryEventBus(log)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	orders := apporder.NewService(orderRepo, partnerRepo, bus, log)
	registry := apppartner.NewRegistryService(partnerRepo, serviceRepo, bus, log)

	dispatcher, err := webhook.NewDispatcher(webhook.Config{
		Workers:        2,
		QueueSize:      32,
		AttemptTimeout: 2 * time.Second,
		HistorySize:    16,
	}, recordRepo, orders, log)
	require.NoError(t, err)
	require.NoError(t, dispatcher.Start(context.Background()))
	t.Cleanup(func() { _ = dispatcher.Stop(context.Background()) })

	bus.Subscribe(appintegration.NewWebhookDispatchHandler(partnerRepo, dispatcher, log))

	return &env{
		orders:     orders,
		registry:   registry,
		partners:   partnerRepo,
		records:    recordRepo,
		dispatcher: dispatcher,
	}
}

// receiver records signed webhook requests the way a partner system would
type receiver struct {
	mu         sync.Mutex
	envelopes  []webhook.Envelope
	signatures []string
	bodies     [][]byte
	server     *httptest.Server
}

func newReceiver(t *testing.T) *receiver {
	t.Helper()
	r := &receiver{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(req.Body)
		var envelope webhook.Envelope
		_ = json.Unmarshal(buf.Bytes(), &envelope)

		r.mu.Lock()
		r.envelopes = append(r.envelopes, envelope)
		r.signatures = append(r.signatures, req.Header.Get(webhook.SignatureHeader))
		r.bodies = append(r.bodies, buf.Bytes())
		r.mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envelopes)
}

func (r *receiver) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for r.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d deliveries, got %d", n, r.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func registerWebhookPartner(t *testing.T, registry *apppartner.RegistryService, url string) uuid.UUID {
	t.Helper()
	resp, err := registry.Register(context.Background(), apppartner.RegisterPartnerRequest{
		Name:            "Acme Diagnostics",
		Type:            "lab",
		IntegrationType: "webhook",
		WebhookConfig: &apppartner.WebhookConfigRequest{
			URL:    url,
			Events: []string{order.EventTypeOrderCreated, order.EventTypeOrderStatusChanged},
			Secret: partnerSecret,
		},
	})
	require.NoError(t, err)
	return resp.ID
}

func createOrder(t *testing.T, orders *apporder.Service, partnerID uuid.UUID) uuid.UUID {
	t.Helper()
	resp, err := orders.Create(context.Background(), apporder.CreateOrderRequest{
		PartnerID: partnerID,
		PatientID: uuid.New(),
		Currency:  "EUR",
		Items: []apporder.OrderItemInput{
			{ServiceID: uuid.New(), Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromFloat(10.50)},
		},
	})
	require.NoError(t, err)
	return resp.ID
}

func TestOrderLifecycleDeliversWebhooks(t *testing.T) {
	e := setupEnv(t)
	rcv := newReceiver(t)
	partnerID := registerWebhookPartner(t, e.registry, rcv.server.URL)

	orderID := createOrder(t, e.orders, partnerID)
	_, err := e.orders.Transition(context.Background(), orderID, order.StatusConfirmed, "")
	require.NoError(t, err)

	rcv.waitFor(t, 2)

	rcv.mu.Lock()
	defer rcv.mu.Unlock()
	eventTypes := make([]string, 0, len(rcv.envelopes))
	for i, envelope := range rcv.envelopes {
		eventTypes = append(eventTypes, envelope.EventType)
		assert.True(t, webhook.VerifySignature(rcv.bodies[i], partnerSecret, rcv.signatures[i]),
			"delivery %d carries an invalid signature", i)
		assert.NotEmpty(t, envelope.EventID)
	}
	assert.ElementsMatch(t, []string{order.EventTypeOrderCreated, order.EventTypeOrderStatusChanged}, eventTypes)

	// terminal outcomes are persisted for the audit trail
	deadline := time.Now().Add(3 * time.Second)
	var records []domainintegration.DeliveryRecord
	for {
		records, err = e.records.FindByPartner(context.Background(), partnerID, 10)
		require.NoError(t, err)
		if len(records) >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, domainintegration.DeliveryOutcomeDelivered, rec.Outcome)
		assert.Equal(t, orderID, rec.OrderID)
	}
}

func TestInboundWebhookUpdatesOrderOverHTTP(t *testing.T) {
	e := setupEnv(t)
	rcv := newReceiver(t)
	partnerID := registerWebhookPartner(t, e.registry, rcv.server.URL)
	orderID := createOrder(t, e.orders, partnerID)

	idem := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = idem.Close() })

	inbound := appintegration.NewInboundWebhookService(
		e.partners, transform.NewFieldTransformer(), e.orders, idem, zap.NewNop(),
	)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.RequestID())
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewIntegrationHandler(inbound, nil))
	r.Setup()

	payload := map[string]any{
		"order_id": orderID.String(),
		"status":   "confirmed",
	}
	body := inboundBody(t, payload)
	signature := webhook.Sign(body, partnerSecret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/partners/"+partnerID.String()+"/webhooks/inbound", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, signature)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated, err := e.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusConfirmed), updated.Status)

	// replaying the same event is acknowledged without a second transition
	req = httptest.NewRequest(http.MethodPost, "/api/v1/partners/"+partnerID.String()+"/webhooks/inbound", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, signature)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
}

func inboundBody(t *testing.T, payload map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(appintegration.InboundEnvelope{
		EventID:   uuid.NewString(),
		EventType: order.EventTypeOrderStatusChanged,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	})
	require.NoError(t, err)
	return body
}
