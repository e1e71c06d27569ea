package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/partner"
)

// OrderSource provides the locally changed orders a push cycle drains
type OrderSource interface {
	FindUpdatedSince(ctx context.Context, partnerID uuid.UUID, since time.Time) ([]order.Order, error)
}

// SyncExecutor runs one synchronization cycle for a partner: pull remote
// records and apply them as order updates, push locally changed orders, or
// both. Per-record mapping failures are recorded and skipped; transport and
// format failures abort the whole cycle so the cursor stays put.
type SyncExecutor struct {
	gateway     integration.PartnerGateway
	transformer integration.Transformer
	orders      OrderSource
	applier     OrderTransitioner
	logger      *zap.Logger
}

// NewSyncExecutor creates a new SyncExecutor
func NewSyncExecutor(
	gateway integration.PartnerGateway,
	transformer integration.Transformer,
	orders OrderSource,
	applier OrderTransitioner,
	logger *zap.Logger,
) *SyncExecutor {
	return &SyncExecutor{
		gateway:     gateway,
		transformer: transformer,
		orders:      orders,
		applier:     applier,
		logger:      logger,
	}
}

// Execute runs one cycle per the partner's sync configuration
func (e *SyncExecutor) Execute(ctx context.Context, p *partner.Partner, state *integration.SyncState) (*integration.CycleResult, error) {
	cfg := p.SyncConfig
	if cfg == nil {
		return nil, fmt.Errorf("%w: partner %s has no sync configuration", integration.ErrSyncCycle, p.ID)
	}

	result := &integration.CycleResult{
		PartnerID: p.ID,
		StartedAt: time.Now(),
	}

	var pullCursor, pushCursor string

	if cfg.Type == partner.SyncTypePull || cfg.Type == partner.SyncTypeBidirectional {
		cursor, err := e.pull(ctx, p, state, result)
		if err != nil {
			return nil, err
		}
		pullCursor = cursor
	}

	if cfg.Type == partner.SyncTypePush || cfg.Type == partner.SyncTypeBidirectional {
		cursor, err := e.push(ctx, p, state, result)
		if err != nil {
			return nil, err
		}
		pushCursor = cursor
	}

	// The pull cursor is the partner's own position and wins for
	// bidirectional partners; the push cursor only fills the gap.
	result.NextCursor = pullCursor
	if result.NextCursor == "" {
		result.NextCursor = pushCursor
	}
	result.FinishedAt = time.Now()

	e.logger.Info("sync cycle executed",
		zap.String("partner_id", p.ID.String()),
		zap.Int("pulled", result.PulledRecords),
		zap.Int("pushed", result.PushedRecords),
		zap.Int("applied", result.AppliedRecords),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// pull fetches one batch from the partner and applies each record as an
// order update.
func (e *SyncExecutor) pull(ctx context.Context, p *partner.Partner, state *integration.SyncState, result *integration.CycleResult) (string, error) {
	cursor := ""
	if p.SyncConfig.Scope != partner.SyncScopeFull {
		cursor = state.LastCursor
	}

	batch, err := e.gateway.FetchRecords(ctx, p, cursor)
	if err != nil {
		return "", err
	}
	result.PulledRecords = len(batch.Records)

	for i, record := range batch.Records {
		transformed := record
		if len(p.SyncConfig.Mappings) > 0 {
			transformed, err = e.transformer.Transform(record, p.SyncConfig.Mappings)
			if err != nil {
				result.Failures = append(result.Failures, integration.RecordFailure{
					RecordKey:    recordKey(record, i),
					ErrorMessage: err.Error(),
				})
				continue
			}
		}

		orderID, status, reason, err := extractOrderUpdate(transformed)
		if err != nil {
			result.Failures = append(result.Failures, integration.RecordFailure{
				RecordKey:    recordKey(record, i),
				ErrorMessage: err.Error(),
			})
			continue
		}

		if _, err := e.applier.Transition(ctx, orderID, status, reason); err != nil {
			result.Failures = append(result.Failures, integration.RecordFailure{
				RecordKey:    recordKey(record, i),
				ErrorMessage: err.Error(),
			})
			continue
		}
		result.AppliedRecords++
	}

	return batch.NextCursor, nil
}

// push drains orders touched since the last cycle to the partner. The push
// cursor is the latest update instant seen, so a re-run resumes after it.
func (e *SyncExecutor) push(ctx context.Context, p *partner.Partner, state *integration.SyncState, result *integration.CycleResult) (string, error) {
	since := pushWindowStart(p.SyncConfig, state)

	orders, err := e.orders.FindUpdatedSince(ctx, p.ID, since)
	if err != nil {
		return "", fmt.Errorf("%w: load changed orders: %v", integration.ErrSyncCycle, err)
	}
	if len(orders) == 0 {
		return "", nil
	}

	records := make([]integration.Record, 0, len(orders))
	var latest time.Time
	for i := range orders {
		o := &orders[i]
		record := orderRecord(o)

		if p.SyncConfig.Type == partner.SyncTypePush && len(p.SyncConfig.Mappings) > 0 {
			record, err = e.transformer.Transform(record, p.SyncConfig.Mappings)
			if err != nil {
				result.Failures = append(result.Failures, integration.RecordFailure{
					RecordKey:    o.ID.String(),
					ErrorMessage: err.Error(),
				})
				continue
			}
		}

		records = append(records, record)
		if o.UpdatedAt.After(latest) {
			latest = o.UpdatedAt
		}
	}

	if err := e.gateway.PushRecords(ctx, p, records); err != nil {
		return "", err
	}
	result.PushedRecords = len(records)

	if latest.IsZero() {
		return "", nil
	}
	return latest.UTC().Format(time.RFC3339Nano), nil
}

// pushWindowStart resolves the instant a push cycle resumes from. Push-only
// partners carry it in the cursor; otherwise the last successful run bounds
// the window.
func pushWindowStart(cfg *partner.SyncConfig, state *integration.SyncState) time.Time {
	if cfg.Scope == partner.SyncScopeFull {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, state.LastCursor); err == nil {
		return t
	}
	if state.LastRunAt != nil {
		return *state.LastRunAt
	}
	return time.Time{}
}

// orderRecord flattens an order into the outbound record shape
func orderRecord(o *order.Order) integration.Record {
	return integration.Record{
		"order_id":   o.ID.String(),
		"partner_id": o.PartnerID.String(),
		"patient_id": o.PatientID.String(),
		"status":     string(o.Status),
		"priority":   string(o.Priority),
		"total":      o.Total.String(),
		"currency":   o.Currency,
		"updated_at": o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// recordKey names a record in failure reports
func recordKey(record integration.Record, index int) string {
	if id, ok := record["order_id"]; ok && id != "" {
		return id
	}
	if id, ok := record["id"]; ok && id != "" {
		return id
	}
	return fmt.Sprintf("record-%d", index)
}
