package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/shared"
)

func newTestOrder(t *testing.T, partnerID, patientID uuid.UUID) *order.Order {
	t.Helper()
	o, err := order.NewOrder(partnerID, patientID, "USD", order.PriorityRoutine, []order.ItemInput{
		{ServiceID: uuid.New(), Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromFloat(12.50)},
		{ServiceID: uuid.New(), Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(3.25)},
	})
	require.NoError(t, err)
	return o
}

func TestGormOrderRepository_SaveAndFind(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t))
	ctx := context.Background()

	o := newTestOrder(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Save(ctx, o))

	found, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, found.Status)
	assert.Len(t, found.Items, 2)
	assert.True(t, found.Total.Equal(decimal.NewFromFloat(28.25)), "total was %s", found.Total)
}

func TestGormOrderRepository_FindByIDNotFound(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormOrderRepository_PersistsStatusTransitions(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t))
	ctx := context.Background()

	o := newTestOrder(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Save(ctx, o))

	require.NoError(t, o.TransitionTo(order.StatusConfirmed, ""))
	require.NoError(t, repo.Save(ctx, o))

	found, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, found.Status)
	assert.NotNil(t, found.ConfirmedAt)
}

func TestGormOrderRepository_FindByPartnerAndPatient(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t))
	ctx := context.Background()

	partnerID := uuid.New()
	patientID := uuid.New()

	mine := newTestOrder(t, partnerID, patientID)
	require.NoError(t, repo.Save(ctx, mine))
	other := newTestOrder(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Save(ctx, other))

	byPartner, err := repo.FindByPartner(ctx, partnerID, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, byPartner, 1)
	assert.Equal(t, mine.ID, byPartner[0].ID)
	assert.Len(t, byPartner[0].Items, 2)

	byPatient, err := repo.FindByPatient(ctx, patientID, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, byPatient, 1)
	assert.Equal(t, mine.ID, byPatient[0].ID)
}

func TestGormOrderRepository_CountWithStatusFilter(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t))
	ctx := context.Background()

	pending := newTestOrder(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Save(ctx, pending))

	confirmed := newTestOrder(t, uuid.New(), uuid.New())
	require.NoError(t, confirmed.TransitionTo(order.StatusConfirmed, ""))
	require.NoError(t, repo.Save(ctx, confirmed))

	filter := shared.DefaultFilter()
	filter.Filters["status"] = string(order.StatusConfirmed)

	count, err := repo.Count(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
