package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/shared"
)

func TestGormSyncStateRepository_SaveAndFind(t *testing.T) {
	repo := NewGormSyncStateRepository(setupTestDB(t))
	ctx := context.Background()

	partnerID := uuid.New()
	_, err := repo.FindByPartner(ctx, partnerID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	state := integration.NewSyncState(partnerID)
	state.CompleteCycle("cursor-01")
	require.NoError(t, repo.Save(ctx, state))

	found, err := repo.FindByPartner(ctx, partnerID)
	require.NoError(t, err)
	assert.Equal(t, integration.SyncJobStatusIdle, found.Status)
	assert.Equal(t, "cursor-01", found.LastCursor)

	found.FailCycle("endpoint unreachable")
	require.NoError(t, repo.Save(ctx, found))

	again, err := repo.FindByPartner(ctx, partnerID)
	require.NoError(t, err)
	assert.Equal(t, integration.SyncJobStatusError, again.Status)
	assert.Equal(t, "cursor-01", again.LastCursor)
	assert.Equal(t, "endpoint unreachable", again.LastError)
}

func TestGormDeliveryRecordRepository(t *testing.T) {
	repo := NewGormDeliveryRecordRepository(setupTestDB(t))
	ctx := context.Background()

	partnerID := uuid.New()
	eventID := uuid.New()

	record := integration.NewDeliveryRecord(
		partnerID, eventID, uuid.New(), "order.status_changed",
		integration.DeliveryOutcomeExhausted, 3, "http status 503",
	)
	require.NoError(t, repo.Save(ctx, record))

	byEvent, err := repo.FindByEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, integration.DeliveryOutcomeExhausted, byEvent.Outcome)
	assert.Equal(t, 3, byEvent.Attempts)

	for i := 0; i < 5; i++ {
		extra := integration.NewDeliveryRecord(
			partnerID, uuid.New(), uuid.New(), "order.created",
			integration.DeliveryOutcomeDelivered, 1, "",
		)
		require.NoError(t, repo.Save(ctx, extra))
	}

	recent, err := repo.FindByPartner(ctx, partnerID, 4)
	require.NoError(t, err)
	assert.Len(t, recent, 4)

	_, err = repo.FindByEvent(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
