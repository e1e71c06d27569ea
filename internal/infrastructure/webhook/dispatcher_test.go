package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
)

type fakeRecordRepo struct {
	mu      sync.Mutex
	records []*integration.DeliveryRecord
}

func (r *fakeRecordRepo) Save(_ context.Context, record *integration.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRecordRepo) FindByPartner(context.Context, uuid.UUID, int) ([]integration.DeliveryRecord, error) {
	return nil, nil
}

func (r *fakeRecordRepo) FindByEvent(context.Context, uuid.UUID) (*integration.DeliveryRecord, error) {
	return nil, nil
}

func (r *fakeRecordRepo) all() []*integration.DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*integration.DeliveryRecord, len(r.records))
	copy(out, r.records)
	return out
}

type fakeOrderChecker struct {
	cancelled bool
}

func (c *fakeOrderChecker) IsCancelled(context.Context, uuid.UUID) (bool, error) {
	return c.cancelled, nil
}

func testPolicy() partner.RetryPolicy {
	return partner.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, Backoff: partner.BackoffLinear}
}

func startDispatcher(t *testing.T, repo *fakeRecordRepo, orders OrderStatusChecker) *Dispatcher {
	t.Helper()
	cfg := Config{Workers: 2, QueueSize: 16, AttemptTimeout: time.Second, HistorySize: 10}
	d, err := NewDispatcher(cfg, repo, orders, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func waitForRecords(t *testing.T, repo *fakeRecordRepo, n int) []*integration.DeliveryRecord {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(repo.all()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return repo.all()
}

func TestDispatcher_DeliversSignedEnvelope(t *testing.T) {
	var (
		mu   sync.Mutex
		body []byte
		sig  string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = b
		sig = r.Header.Get(SignatureHeader)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &fakeRecordRepo{}
	d := startDispatcher(t, repo, nil)

	endpoint := partner.WebhookConfig{URL: server.URL, Secret: "s3cret", RetryPolicy: testPolicy()}
	eventID := uuid.New()
	payload := json.RawMessage(`{"orderId":"o-1","status":"confirmed"}`)

	require.NoError(t, d.Enqueue(NewDelivery(uuid.New(), uuid.New(), eventID, "order.status_changed", payload, endpoint)))

	records := waitForRecords(t, repo, 1)
	assert.Equal(t, integration.DeliveryOutcomeDelivered, records[0].Outcome)
	assert.Equal(t, 1, records[0].Attempts)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, VerifySignature(body, "s3cret", sig))

	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, eventID.String(), env.EventID)
	assert.Equal(t, "order.status_changed", env.EventType)
	assert.JSONEq(t, string(payload), string(env.Payload))
}

func TestDispatcher_TransientFailureExhaustsAttempts(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := &fakeRecordRepo{}
	d := startDispatcher(t, repo, nil)

	endpoint := partner.WebhookConfig{URL: server.URL, Secret: "s", RetryPolicy: testPolicy()}
	require.NoError(t, d.Enqueue(NewDelivery(uuid.New(), uuid.New(), uuid.New(), "order.created", json.RawMessage(`{}`), endpoint)))

	records := waitForRecords(t, repo, 1)
	assert.Equal(t, integration.DeliveryOutcomeExhausted, records[0].Outcome)
	assert.Equal(t, 3, records[0].Attempts)

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, 3, calls)
}

func TestDispatcher_AttemptsRecordBackoffSchedule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := &fakeRecordRepo{}
	d := startDispatcher(t, repo, nil)

	policy := partner.RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Millisecond, Backoff: partner.BackoffLinear}
	endpoint := partner.WebhookConfig{URL: server.URL, Secret: "s", RetryPolicy: policy}
	require.NoError(t, d.Enqueue(NewDelivery(uuid.New(), uuid.New(), uuid.New(), "order.created", json.RawMessage(`{}`), endpoint)))

	require.Eventually(t, func() bool {
		return len(d.History(1)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	attempts := d.History(1)[0].Attempts
	require.Len(t, attempts, 3)

	assert.Equal(t, integration.AttemptResultTransientFailure, attempts[0].Result)
	assert.EqualValues(t, 5, attempts[0].NextBackoffMs)
	assert.EqualValues(t, 10, attempts[1].NextBackoffMs)
	// The final attempt schedules no retry
	assert.EqualValues(t, 0, attempts[2].NextBackoffMs)
}

func TestDispatcher_PermanentFailureStopsImmediately(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	repo := &fakeRecordRepo{}
	d := startDispatcher(t, repo, nil)

	endpoint := partner.WebhookConfig{URL: server.URL, Secret: "s", RetryPolicy: testPolicy()}
	require.NoError(t, d.Enqueue(NewDelivery(uuid.New(), uuid.New(), uuid.New(), "order.created", json.RawMessage(`{}`), endpoint)))

	records := waitForRecords(t, repo, 1)
	assert.Equal(t, integration.DeliveryOutcomePermanent, records[0].Outcome)
	assert.Equal(t, 1, records[0].Attempts)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestDispatcher_RejectsDuplicateInFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	repo := &fakeRecordRepo{}
	d := startDispatcher(t, repo, nil)

	endpoint := partner.WebhookConfig{URL: server.URL, Secret: "s", RetryPolicy: testPolicy()}
	partnerID := uuid.New()
	eventID := uuid.New()

	first := NewDelivery(partnerID, uuid.New(), eventID, "order.created", json.RawMessage(`{}`), endpoint)
	require.NoError(t, d.Enqueue(first))

	dup := NewDelivery(partnerID, uuid.New(), eventID, "order.created", json.RawMessage(`{}`), endpoint)
	assert.ErrorIs(t, d.Enqueue(dup), ErrDuplicateDelivery)

	// A different event for the same partner is fine
	other := NewDelivery(partnerID, uuid.New(), uuid.New(), "order.created", json.RawMessage(`{}`), endpoint)
	assert.NoError(t, d.Enqueue(other))
}

func TestDispatcher_AbandonsWhenOrderCancelled(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &fakeRecordRepo{}
	d := startDispatcher(t, repo, &fakeOrderChecker{cancelled: true})

	endpoint := partner.WebhookConfig{URL: server.URL, Secret: "s", RetryPolicy: testPolicy()}
	require.NoError(t, d.Enqueue(NewDelivery(uuid.New(), uuid.New(), uuid.New(), "order.status_changed", json.RawMessage(`{}`), endpoint)))

	records := waitForRecords(t, repo, 1)
	assert.Equal(t, integration.DeliveryOutcomeAbandoned, records[0].Outcome)
	assert.Equal(t, 0, records[0].Attempts)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestDispatcher_EnqueueRequiresRunning(t *testing.T) {
	d, err := NewDispatcher(DefaultConfig(), &fakeRecordRepo{}, nil, zap.NewNop())
	require.NoError(t, err)

	err = d.Enqueue(NewDelivery(uuid.New(), uuid.New(), uuid.New(), "order.created", nil, partner.WebhookConfig{}))
	assert.ErrorIs(t, err, ErrDispatcherNotRunning)
}
