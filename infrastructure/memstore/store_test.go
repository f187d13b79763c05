package memstore_test

import (
	"context"
	"testing"

	"stratus-backend/domain/cache"
	"stratus-backend/infrastructure/memstore"
	appErrors "stratus-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mustKey(t *testing.T, ns cache.Namespace, fields ...string) cache.Key {
	t.Helper()
	key, err := cache.NewKey(ns, fields...)
	require.NoError(t, err)
	return key
}

func sgEntity(t *testing.T, account, region, name string) *cache.Entity {
	t.Helper()
	entity := cache.NewEntity(mustKey(t, cache.NamespaceSecurityGroups, account, region, name))
	entity.Attributes["name"] = cache.String(name)
	return entity
}

func TestStore_GetAbsentKeyIsNilNotError(t *testing.T) {
	store := memstore.New(zap.NewNop())

	entity, err := store.Get(context.Background(), cache.NamespaceClusters,
		mustKey(t, cache.NamespaceClusters, "acct1", "web"))

	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestStore_MergeIsIdempotent(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	ctx := context.Background()
	entity := sgEntity(t, "acct1", "us-east", "sg-1")
	policy := cache.Authoritative("agent-a")

	// Act
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{entity}, policy))
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{entity}, policy))

	// Assert
	assert.Equal(t, 1, store.Len(cache.NamespaceSecurityGroups))
	got, err := store.Get(ctx, cache.NamespaceSecurityGroups, entity.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	name, _ := got.Attributes["name"].AsString()
	assert.Equal(t, "sg-1", name)
}

func TestStore_AuthoritativeMergeReplacesWholesale(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	ctx := context.Background()

	first := sgEntity(t, "acct1", "us-east", "sg-1")
	first.Attributes["stale"] = cache.String("yes")
	first.AddRelationship(mustKey(t, cache.NamespaceClusters, "acct1", "web"))
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{first}, cache.Authoritative("agent-a")))

	// Act: second authoritative write carries neither the attribute nor the edge
	second := sgEntity(t, "acct1", "us-east", "sg-1")
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{second}, cache.Authoritative("agent-a")))

	// Assert
	got, err := store.Get(ctx, cache.NamespaceSecurityGroups, second.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	_, hasStale := got.Attributes["stale"].AsString()
	assert.False(t, hasStale)
	assert.Empty(t, got.Relationships[cache.NamespaceClusters])
}

func TestStore_InformativeMergeOverlaysAndUnions(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	ctx := context.Background()

	base := sgEntity(t, "acct1", "us-east", "sg-1")
	base.Attributes["vpc"] = cache.String("vpc-1")
	base.AddRelationship(mustKey(t, cache.NamespaceClusters, "acct1", "web"))
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{base}, cache.Authoritative("agent-a")))

	// Act: informative write updates one attribute and adds an edge
	overlay := cache.NewEntity(base.ID)
	overlay.Attributes["description"] = cache.String("edge tier")
	overlay.AddRelationship(mustKey(t, cache.NamespaceClusters, "acct1", "api"))
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{overlay}, cache.Informative("enricher")))

	// Assert: authoritative fields survive, overlay fields and edges are added
	got, err := store.Get(ctx, cache.NamespaceSecurityGroups, base.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	vpc, _ := got.Attributes["vpc"].AsString()
	assert.Equal(t, "vpc-1", vpc)
	desc, _ := got.Attributes["description"].AsString()
	assert.Equal(t, "edge tier", desc)
	assert.Len(t, got.Relationships[cache.NamespaceClusters], 2)
}

func TestStore_StrictAuthorityRejectsNonOwner(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop(), memstore.WithStrictAuthority())
	ctx := context.Background()

	owned := sgEntity(t, "acct1", "us-east", "sg-1")
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{owned}, cache.Authoritative("agent-a")))

	// Act: a different source claims the same key, alongside a clean write
	intruder := sgEntity(t, "acct1", "us-east", "sg-1")
	intruder.Attributes["name"] = cache.String("hijacked")
	clean := sgEntity(t, "acct1", "us-east", "sg-2")
	err := store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{intruder, clean}, cache.Authoritative("agent-b"))

	// Assert: the conflict is reported, the owned record is untouched, the
	// clean write still applied
	require.Error(t, err)
	assert.True(t, appErrors.IsMergeConflict(err))

	got, getErr := store.Get(ctx, cache.NamespaceSecurityGroups, owned.ID)
	require.NoError(t, getErr)
	name, _ := got.Attributes["name"].AsString()
	assert.Equal(t, "sg-1", name)

	cleanGot, getErr := store.Get(ctx, cache.NamespaceSecurityGroups, clean.ID)
	require.NoError(t, getErr)
	assert.NotNil(t, cleanGot)
}

func TestStore_LooseAuthorityLetsLastWriterWin(t *testing.T) {
	store := memstore.New(zap.NewNop())
	ctx := context.Background()

	first := sgEntity(t, "acct1", "us-east", "sg-1")
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{first}, cache.Authoritative("agent-a")))

	second := sgEntity(t, "acct1", "us-east", "sg-1")
	second.Attributes["name"] = cache.String("rewritten")
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{second}, cache.Authoritative("agent-b")))

	got, err := store.Get(ctx, cache.NamespaceSecurityGroups, first.ID)
	require.NoError(t, err)
	name, _ := got.Attributes["name"].AsString()
	assert.Equal(t, "rewritten", name)
}

func TestStore_FilterIdentifiersMatchesScope(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	ctx := context.Background()
	entities := []*cache.Entity{
		sgEntity(t, "acct1", "us-east", "sg-1"),
		sgEntity(t, "acct1", "us-west", "sg-2"),
		sgEntity(t, "acct2", "us-east", "sg-3"),
	}
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, entities, cache.Authoritative("agent-a")))

	// Act
	keys, err := store.FilterIdentifiers(ctx, cache.NamespaceSecurityGroups, "acct1:*")

	// Assert
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "security-groups:acct1:us-east:sg-1", keys[0].Encode())
	assert.Equal(t, "security-groups:acct1:us-west:sg-2", keys[1].Encode())
}

func TestStore_GetAllAppliesRelationshipFilter(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	ctx := context.Background()

	entity := sgEntity(t, "acct1", "us-east", "sg-1")
	entity.AddRelationship(mustKey(t, cache.NamespaceClusters, "acct1", "web"))
	entity.AddRelationship(mustKey(t, cache.NamespaceApplications, "web"))
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{entity}, cache.Authoritative("agent-a")))

	// Act
	stripped, err := store.GetAll(ctx, cache.NamespaceSecurityGroups, nil, cache.NoRelationships())
	require.NoError(t, err)
	clustersOnly, err := store.GetAll(ctx, cache.NamespaceSecurityGroups, nil,
		cache.IncludeRelationships(cache.NamespaceClusters))
	require.NoError(t, err)

	// Assert
	require.Len(t, stripped, 1)
	assert.Empty(t, stripped[0].Relationships)
	require.Len(t, clustersOnly, 1)
	assert.Len(t, clustersOnly[0].Relationships[cache.NamespaceClusters], 1)
	assert.Empty(t, clustersOnly[0].Relationships[cache.NamespaceApplications])
}

func TestStore_EvictRemovesAndIgnoresAbsent(t *testing.T) {
	store := memstore.New(zap.NewNop())
	ctx := context.Background()

	entity := sgEntity(t, "acct1", "us-east", "sg-1")
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{entity}, cache.Authoritative("agent-a")))

	absent := mustKey(t, cache.NamespaceSecurityGroups, "acct1", "us-east", "sg-absent")
	require.NoError(t, store.Evict(ctx, cache.NamespaceSecurityGroups, []cache.Key{entity.ID, absent}))

	assert.Equal(t, 0, store.Len(cache.NamespaceSecurityGroups))
}

func TestStore_ReadsReturnClones(t *testing.T) {
	store := memstore.New(zap.NewNop())
	ctx := context.Background()

	entity := sgEntity(t, "acct1", "us-east", "sg-1")
	require.NoError(t, store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{entity}, cache.Authoritative("agent-a")))

	got, err := store.Get(ctx, cache.NamespaceSecurityGroups, entity.ID)
	require.NoError(t, err)
	got.Attributes["name"] = cache.String("mutated")

	again, err := store.Get(ctx, cache.NamespaceSecurityGroups, entity.ID)
	require.NoError(t, err)
	name, _ := again.Attributes["name"].AsString()
	assert.Equal(t, "sg-1", name)
}
