package queries_test

import (
	"context"
	"testing"

	"stratus-backend/application/queries"
	"stratus-backend/domain/cache"
	"stratus-backend/infrastructure/memstore"
	appErrors "stratus-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedApplications(t *testing.T, store cache.Store) {
	t.Helper()
	ctx := context.Background()

	webKey, err := cache.NewKey(cache.NamespaceApplications, "web")
	require.NoError(t, err)
	web := cache.NewEntity(webKey)
	web.Attributes["name"] = cache.String("web")
	for _, cluster := range [][2]string{{"acct1", "web-prod"}, {"acct1", "web-staging"}, {"acct2", "web-prod"}} {
		key, err := cache.NewKey(cache.NamespaceClusters, cluster[0], cluster[1])
		require.NoError(t, err)
		web.AddRelationship(key)
	}

	billingKey, err := cache.NewKey(cache.NamespaceApplications, "billing")
	require.NoError(t, err)
	billing := cache.NewEntity(billingKey)
	billing.Attributes["name"] = cache.String("billing")

	require.NoError(t, store.Merge(ctx, cache.NamespaceApplications,
		[]*cache.Entity{web, billing}, cache.Informative("test")))
}

func TestApplicationReadService_GetAllCollapsed(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	seedApplications(t, store)
	svc := queries.NewApplicationReadService(store, zap.NewNop())

	// Act
	views, err := svc.GetAll(context.Background(), false)

	// Assert: sorted by key, no cluster hydration
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "billing", views[0].Name)
	assert.Equal(t, "web", views[1].Name)
	assert.Nil(t, views[1].ClusterNames)
}

func TestApplicationReadService_GetAllExpanded(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	seedApplications(t, store)
	svc := queries.NewApplicationReadService(store, zap.NewNop())

	// Act
	views, err := svc.GetAll(context.Background(), true)

	// Assert: cluster names grouped by account, sorted within each account
	require.NoError(t, err)
	require.Len(t, views, 2)
	web := views[1]
	require.Equal(t, "web", web.Name)
	assert.Equal(t, map[string][]string{
		"acct1": {"web-prod", "web-staging"},
		"acct2": {"web-prod"},
	}, web.ClusterNames)
}

func TestApplicationReadService_GetAbsentIsNil(t *testing.T) {
	store := memstore.New(zap.NewNop())
	svc := queries.NewApplicationReadService(store, zap.NewNop())

	view, err := svc.Get(context.Background(), "ghost")

	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestApplicationReadService_GetRejectsInvalidName(t *testing.T) {
	store := memstore.New(zap.NewNop())
	svc := queries.NewApplicationReadService(store, zap.NewNop())

	_, err := svc.Get(context.Background(), "bad:name")

	require.Error(t, err)
	assert.True(t, appErrors.IsInvalidField(err))
}
