package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

func newWebhookPartner(t *testing.T, name string) *partner.Partner {
	t.Helper()
	p, err := partner.NewPartner(name, partner.PartnerTypeLab, partner.IntegrationTypeWebhook)
	require.NoError(t, err)
	require.NoError(t, p.SetWebhookConfig(&partner.WebhookConfig{
		URL:         "https://example.com/hooks",
		Secret:      "shh",
		RetryPolicy: partner.DefaultRetryPolicy(),
	}))
	return p
}

func TestGormPartnerRepository_SaveAndFind(t *testing.T) {
	repo := NewGormPartnerRepository(setupTestDB(t))
	ctx := context.Background()

	p := newWebhookPartner(t, "Acme Labs")
	require.NoError(t, repo.Save(ctx, p))

	found, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Labs", found.Name)
	assert.Equal(t, partner.IntegrationTypeWebhook, found.IntegrationType)
	require.NotNil(t, found.WebhookConfig)
	assert.Equal(t, "https://example.com/hooks", found.WebhookConfig.URL)
}

func TestGormPartnerRepository_FindByIDNotFound(t *testing.T) {
	repo := NewGormPartnerRepository(setupTestDB(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormPartnerRepository_FindRequiringSync(t *testing.T) {
	repo := NewGormPartnerRepository(setupTestDB(t))
	ctx := context.Background()

	synced, err := partner.NewPartner("Synced", partner.PartnerTypePharmacy, partner.IntegrationTypeAPI)
	require.NoError(t, err)
	synced.CredentialsRef = "env://SYNCED_TOKEN"
	require.NoError(t, synced.SetSyncConfig(&partner.SyncConfig{
		Type:       partner.SyncTypePull,
		Scope:      partner.SyncScopeIncremental,
		Frequency:  5 * time.Minute,
		DataFormat: partner.DataFormatJSON,
		Endpoint:   "https://pharmacy.example.com/export",
	}))
	require.NoError(t, repo.Save(ctx, synced))

	plain := newWebhookPartner(t, "No Sync")
	require.NoError(t, repo.Save(ctx, plain))

	inactive, err := partner.NewPartner("Inactive", partner.PartnerTypeLab, partner.IntegrationTypeManual)
	require.NoError(t, err)
	require.NoError(t, inactive.SetSyncConfig(&partner.SyncConfig{
		Type:       partner.SyncTypePull,
		Scope:      partner.SyncScopeFull,
		Frequency:  time.Hour,
		DataFormat: partner.DataFormatCSV,
		Endpoint:   "https://inactive.example.com/export",
	}))
	inactive.Deactivate()
	require.NoError(t, repo.Save(ctx, inactive))

	partners, err := repo.FindRequiringSync(ctx)
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, "Synced", partners[0].Name)
}

func TestGormPartnerRepository_FindAllWithFilter(t *testing.T) {
	repo := NewGormPartnerRepository(setupTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, repo.Save(ctx, newWebhookPartner(t, name)))
	}

	filter := shared.DefaultFilter()
	filter.PageSize = 2
	filter.OrderBy = "name"
	filter.OrderDir = "asc"

	partners, err := repo.FindAll(ctx, filter)
	require.NoError(t, err)
	require.Len(t, partners, 2)
	assert.Equal(t, "A", partners[0].Name)

	count, err := repo.Count(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestGormPartnerRepository_Delete(t *testing.T) {
	repo := NewGormPartnerRepository(setupTestDB(t))
	ctx := context.Background()

	p := newWebhookPartner(t, "Gone")
	require.NoError(t, repo.Save(ctx, p))
	require.NoError(t, repo.Delete(ctx, p.ID))

	_, err := repo.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), shared.ErrNotFound)
}
