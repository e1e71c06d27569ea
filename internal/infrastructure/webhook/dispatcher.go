package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
)

// Dispatcher errors
var (
	ErrDispatcherNotRunning = errors.New("dispatcher is not running")
	ErrQueueFull            = errors.New("delivery queue is full")
	ErrDuplicateDelivery    = errors.New("delivery already in flight for this partner and event")
)

// OrderStatusChecker answers whether the order that triggered a delivery
// has since been cancelled. Deliveries for cancelled orders are abandoned
// instead of retried.
type OrderStatusChecker interface {
	IsCancelled(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Envelope is the signed body of an outbound webhook request
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Delivery is one event destined for one partner endpoint. It tracks its
// own attempts while in flight; the terminal outcome is persisted as a
// DeliveryRecord.
type Delivery struct {
	ID        uuid.UUID
	PartnerID uuid.UUID
	OrderID   uuid.UUID
	EventID   uuid.UUID
	EventType string
	Payload   json.RawMessage
	Endpoint  partner.WebhookConfig

	Outcome   integration.DeliveryOutcome
	Attempts  []integration.DeliveryAttempt
	LastError string
	CreatedAt time.Time
}

// NewDelivery creates a pending delivery for a partner endpoint
func NewDelivery(partnerID, orderID, eventID uuid.UUID, eventType string, payload json.RawMessage, endpoint partner.WebhookConfig) *Delivery {
	return &Delivery{
		ID:        uuid.New(),
		PartnerID: partnerID,
		OrderID:   orderID,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		Endpoint:  endpoint,
		CreatedAt: time.Now(),
	}
}

func (d *Delivery) dedupKey() string {
	return d.PartnerID.String() + ":" + d.EventID.String()
}

// Config holds dispatcher tuning
type Config struct {
	Workers        int
	QueueSize      int
	AttemptTimeout time.Duration
	HistorySize    int
}

// DefaultConfig returns sensible dispatcher defaults
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      256,
		AttemptTimeout: 10 * time.Second,
		HistorySize:    100,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return errors.New("dispatcher workers and queue size must be positive")
	}
	if c.AttemptTimeout <= 0 {
		return errors.New("dispatcher attempt timeout must be positive")
	}
	return nil
}

// Dispatcher delivers webhook events to partner endpoints with retry and
// backoff. A bounded queue feeds a fixed worker pool; at most one delivery
// per partner and event is in flight at a time.
type Dispatcher struct {
	config  Config
	client  *http.Client
	records integration.DeliveryRecordRepository
	orders  OrderStatusChecker
	logger  *zap.Logger

	queue     chan *Delivery
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	historyMu  sync.RWMutex
	history    []*Delivery
	maxHistory int
}

// NewDispatcher creates a webhook dispatcher
func NewDispatcher(config Config, records integration.DeliveryRecordRepository, orders OrderStatusChecker, logger *zap.Logger) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.HistorySize <= 0 {
		config.HistorySize = 100
	}

	return &Dispatcher{
		config:     config,
		client:     &http.Client{Timeout: config.AttemptTimeout},
		records:    records,
		orders:     orders,
		logger:     logger,
		queue:      make(chan *Delivery, config.QueueSize),
		inflight:   make(map[string]struct{}),
		history:    make([]*Delivery, 0, config.HistorySize),
		maxHistory: config.HistorySize,
	}, nil
}

// Start starts the worker pool
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = true
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	d.logger.Info("webhook dispatcher started",
		zap.Int("workers", d.config.Workers),
		zap.Int("queue_size", d.config.QueueSize),
	)
	return nil
}

// Stop stops the dispatcher, waiting for in-flight deliveries until ctx
// expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	close(d.queue)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("webhook dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("webhook dispatcher stop timed out")
		return ctx.Err()
	}
}

// Enqueue submits a delivery. A delivery already in flight for the same
// partner and event is rejected with ErrDuplicateDelivery.
func (d *Dispatcher) Enqueue(delivery *Delivery) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return ErrDispatcherNotRunning
	}
	d.mu.Unlock()

	key := delivery.dedupKey()
	d.inflightMu.Lock()
	if _, dup := d.inflight[key]; dup {
		d.inflightMu.Unlock()
		return ErrDuplicateDelivery
	}
	d.inflight[key] = struct{}{}
	d.inflightMu.Unlock()

	select {
	case d.queue <- delivery:
		d.logger.Debug("delivery enqueued",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("partner_id", delivery.PartnerID.String()),
			zap.String("event_type", delivery.EventType),
		)
		return nil
	default:
		d.release(key)
		return ErrQueueFull
	}
}

// History returns the most recent finished deliveries, newest first
func (d *Dispatcher) History(limit int) []*Delivery {
	d.historyMu.RLock()
	defer d.historyMu.RUnlock()

	if limit <= 0 || limit > len(d.history) {
		limit = len(d.history)
	}
	result := make([]*Delivery, limit)
	copy(result, d.history[:limit])
	return result
}

func (d *Dispatcher) worker(ctx context.Context, workerID int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(ctx, delivery, workerID)
		}
	}
}

// process runs the full attempt loop for one delivery and persists its
// terminal outcome.
func (d *Dispatcher) process(ctx context.Context, delivery *Delivery, workerID int) {
	defer d.release(delivery.dedupKey())

	policy := delivery.Endpoint.RetryPolicy
	if policy.MaxAttempts <= 0 {
		policy = partner.DefaultRetryPolicy()
	}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if d.orderCancelled(ctx, delivery) {
			delivery.Outcome = integration.DeliveryOutcomeAbandoned
			delivery.LastError = "order was cancelled"
			d.logger.Info("delivery abandoned, order cancelled",
				zap.String("delivery_id", delivery.ID.String()),
				zap.String("order_id", delivery.OrderID.String()),
			)
			break
		}

		err := d.attempt(ctx, delivery)
		record := integration.DeliveryAttempt{
			AttemptNumber: attempt,
			ScheduledAt:   time.Now(),
		}

		if err == nil {
			record.Result = integration.AttemptResultSuccess
			delivery.Attempts = append(delivery.Attempts, record)
			delivery.Outcome = integration.DeliveryOutcomeDelivered
			delivery.LastError = ""
			break
		}

		record.Error = err.Error()
		delivery.LastError = err.Error()

		if errors.Is(err, integration.ErrPermanentDelivery) {
			record.Result = integration.AttemptResultPermanentFailure
			delivery.Attempts = append(delivery.Attempts, record)
			delivery.Outcome = integration.DeliveryOutcomePermanent
			break
		}

		record.Result = integration.AttemptResultTransientFailure
		if attempt < policy.MaxAttempts {
			backoff := policy.DelayFor(attempt)
			record.NextBackoffMs = backoff.Milliseconds()
			delivery.Attempts = append(delivery.Attempts, record)

			d.logger.Warn("delivery attempt failed, backing off",
				zap.Int("worker_id", workerID),
				zap.String("delivery_id", delivery.ID.String()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			select {
			case <-ctx.Done():
				delivery.Outcome = integration.DeliveryOutcomeAbandoned
				delivery.LastError = "dispatcher shutting down"
				d.finish(ctx, delivery)
				return
			case <-time.After(backoff):
			}
			continue
		}

		delivery.Attempts = append(delivery.Attempts, record)
		delivery.Outcome = integration.DeliveryOutcomeExhausted
	}

	d.finish(ctx, delivery)
}

// attempt performs one signed POST to the partner endpoint
func (d *Dispatcher) attempt(ctx context.Context, delivery *Delivery) error {
	body, err := json.Marshal(Envelope{
		EventID:   delivery.EventID.String(),
		EventType: delivery.EventType,
		Timestamp: time.Now().UTC(),
		Payload:   delivery.Payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPermanentDelivery, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.config.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, delivery.Endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPermanentDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(body, delivery.Endpoint.Secret))

	resp, err := d.client.Do(req)
	if err != nil {
		// Network errors and timeouts are retryable
		return fmt.Errorf("%w: %v", integration.ErrTransientDelivery, err)
	}
	defer resp.Body.Close()

	return integration.ClassifyHTTPStatus(resp.StatusCode)
}

func (d *Dispatcher) orderCancelled(ctx context.Context, delivery *Delivery) bool {
	if d.orders == nil || delivery.OrderID == uuid.Nil {
		return false
	}
	cancelled, err := d.orders.IsCancelled(ctx, delivery.OrderID)
	if err != nil {
		d.logger.Warn("order status check failed",
			zap.String("order_id", delivery.OrderID.String()),
			zap.Error(err),
		)
		return false
	}
	return cancelled
}

// finish records the terminal outcome and adds the delivery to history
func (d *Dispatcher) finish(ctx context.Context, delivery *Delivery) {
	record := integration.NewDeliveryRecord(
		delivery.PartnerID,
		delivery.EventID,
		delivery.OrderID,
		delivery.EventType,
		delivery.Outcome,
		len(delivery.Attempts),
		delivery.LastError,
	)
	if d.records != nil {
		if err := d.records.Save(ctx, record); err != nil {
			d.logger.Error("failed to persist delivery record",
				zap.String("delivery_id", delivery.ID.String()),
				zap.Error(err),
			)
		}
	}

	d.logger.Info("delivery finished",
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("partner_id", delivery.PartnerID.String()),
		zap.String("event_type", delivery.EventType),
		zap.String("outcome", string(delivery.Outcome)),
		zap.Int("attempts", len(delivery.Attempts)),
	)

	d.historyMu.Lock()
	d.history = append([]*Delivery{delivery}, d.history...)
	if len(d.history) > d.maxHistory {
		d.history = d.history[:d.maxHistory]
	}
	d.historyMu.Unlock()
}

func (d *Dispatcher) release(key string) {
	d.inflightMu.Lock()
	delete(d.inflight, key)
	d.inflightMu.Unlock()
}
