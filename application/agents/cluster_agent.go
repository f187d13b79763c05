package agents

import (
	"context"
	"fmt"
	"strings"

	"stratus-backend/domain/cache"
	"stratus-backend/infrastructure/cloud"
	appErrors "stratus-backend/pkg/errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ClusterCachingAgent caches the clusters of one account. It is the
// authoritative producer for the `clusters` namespace within its scope and
// an informative producer for `applications`: applications have no agent
// of their own and exist in the cache only as the union of what cluster
// agents derive from cluster naming.
//
// Cluster identity is account-scoped (a cluster key carries no region), so
// this agent runs one per (provider, account) rather than per region;
// region-scoped eviction would make two regional agents fight over the
// same keys.
type ClusterCachingAgent struct {
	scope     Scope
	agentType string
	source    cloud.ResourceSource
	logger    *zap.Logger
	owned     *ownedKeys
}

// NewClusterCachingAgent creates a cluster agent for one account scope.
func NewClusterCachingAgent(scope Scope, source cloud.ResourceSource, logger *zap.Logger) *ClusterCachingAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	agentType := fmt.Sprintf("%s/%s/ClusterCachingAgent", scope.Provider, scope.Account)
	return &ClusterCachingAgent{
		scope:     scope,
		agentType: agentType,
		source:    source,
		logger:    logger.With(zap.String("agent_type", agentType)),
		owned:     newOwnedKeys(scope.Account + cache.Delimiter + "*"),
	}
}

// AgentType returns the unique agent identifier.
func (a *ClusterCachingAgent) AgentType() string {
	return a.agentType
}

// ProvidedDataTypes declares the namespaces this agent writes.
func (a *ClusterCachingAgent) ProvidedDataTypes() []DataType {
	return []DataType{
		{Namespace: cache.NamespaceClusters, Authoritative: true},
		{Namespace: cache.NamespaceApplications, Authoritative: false},
	}
}

// LoadData performs one full refresh cycle: fetch, transform, merge, then
// diff-based eviction of clusters this agent previously owned but no
// longer sees.
func (a *ClusterCachingAgent) LoadData(ctx context.Context, store cache.Store) (*RunResult, error) {
	ctx, span := otel.Tracer("stratus-backend/agents").Start(ctx, "ClusterCachingAgent.LoadData")
	defer span.End()
	span.SetAttributes(attribute.String("agent.type", a.agentType))

	resources, err := a.source.ListClusters(ctx, a.scope.Provider, a.scope.Account)
	if err != nil {
		if !appErrors.IsFetchFailed(err) {
			err = appErrors.NewFetchFailed("cluster list failed", err)
		}
		return nil, err
	}

	clusterEntities, appEntities := a.transform(resources)

	evicted, err := replaceAuthoritative(ctx, store, cache.NamespaceClusters, clusterEntities, a.owned, a.agentType, a.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Merge(ctx, cache.NamespaceApplications, appEntities, cache.Informative(a.agentType)); err != nil {
		return nil, err
	}

	return &RunResult{
		AgentType:  a.agentType,
		RunID:      uuid.NewString(),
		Namespaces: []cache.Namespace{cache.NamespaceClusters, cache.NamespaceApplications},
		Counts: map[cache.Namespace]int{
			cache.NamespaceClusters:     len(clusterEntities),
			cache.NamespaceApplications: len(appEntities),
		},
		Evicted: evicted,
	}, nil
}

// transform maps raw cluster resources to cache entities plus the
// informative application entities derived from cluster naming.
func (a *ClusterCachingAgent) transform(resources []cloud.Resource) ([]*cache.Entity, []*cache.Entity) {
	clusterEntities := make([]*cache.Entity, 0, len(resources))
	appsByToken := make(map[string]*cache.Entity)

	for _, resource := range resources {
		entity, appKey, err := a.transformOne(resource)
		if err != nil {
			a.logger.Warn("skipping cluster that cannot be keyed",
				zap.String("cluster", resource.Name),
				zap.Error(err),
			)
			continue
		}
		clusterEntities = append(clusterEntities, entity)

		token := appKey.Encode()
		app, ok := appsByToken[token]
		if !ok {
			app = cache.NewEntity(appKey)
			app.Attributes["name"] = cache.String(appKey.Field("name"))
			appsByToken[token] = app
		}
		app.AddRelationship(entity.ID)
	}

	appEntities := make([]*cache.Entity, 0, len(appsByToken))
	for _, app := range appsByToken {
		appEntities = append(appEntities, app)
	}
	return clusterEntities, appEntities
}

func (a *ClusterCachingAgent) transformOne(resource cloud.Resource) (*cache.Entity, cache.Key, error) {
	clusterKey, err := cache.NewKey(cache.NamespaceClusters, a.scope.Account, resource.Name)
	if err != nil {
		return nil, cache.Key{}, err
	}
	appKey, err := cache.NewKey(cache.NamespaceApplications, applicationName(resource.Name))
	if err != nil {
		return nil, cache.Key{}, err
	}

	entity := cache.NewEntity(clusterKey)
	entity.Attributes = resource.Attributes.Clone()
	entity.AddRelationship(appKey)

	// Security group edges need a region; clusters carry theirs as an
	// attribute since cluster keys are region-less.
	if region, ok := entity.Attributes["region"].AsString(); ok {
		for _, sgName := range entity.Attributes["securityGroups"].AsStrings() {
			sgKey, err := cache.NewKey(cache.NamespaceSecurityGroups, a.scope.Account, region, sgName)
			if err != nil {
				a.logger.Warn("skipping unkeyable security group edge",
					zap.String("cluster", resource.Name),
					zap.String("security_group", sgName),
				)
				continue
			}
			entity.AddRelationship(sgKey)
		}
	}
	return entity, appKey, nil
}

// applicationName derives the owning application from the cluster naming
// convention <application>-<rest>.
func applicationName(clusterName string) string {
	if idx := strings.Index(clusterName, "-"); idx > 0 {
		return clusterName[:idx]
	}
	return clusterName
}

// Handles declares the on-demand request types this agent answers.
func (a *ClusterCachingAgent) Handles(requestType string) bool {
	return requestType == RequestTypeCluster
}

// Handle refreshes a single cluster outside the periodic cycle. Requests
// for another scope return (nil, nil); a cluster gone upstream is evicted
// from exactly the targeted key, never touching siblings.
func (a *ClusterCachingAgent) Handle(ctx context.Context, store cache.Store, data map[string]string) (*OnDemandResult, error) {
	if data["account"] != a.scope.Account {
		return nil, nil
	}
	if provider, ok := data["provider"]; ok && provider != a.scope.Provider {
		return nil, nil
	}
	name := data["name"]
	if name == "" {
		return nil, appErrors.NewValidation("on-demand cluster request carries no name")
	}

	ctx, span := otel.Tracer("stratus-backend/agents").Start(ctx, "ClusterCachingAgent.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.type", a.agentType),
		attribute.String("cluster", name),
	)

	resource, err := a.source.GetCluster(ctx, a.scope.Provider, a.scope.Account, name)
	if err != nil {
		if !appErrors.IsFetchFailed(err) {
			err = appErrors.NewFetchFailed("cluster fetch failed", err)
		}
		return nil, err
	}

	result := &RunResult{
		AgentType:  a.agentType,
		RunID:      uuid.NewString(),
		Namespaces: []cache.Namespace{cache.NamespaceClusters},
		Counts:     map[cache.Namespace]int{},
	}

	if resource == nil {
		// Gone upstream: explicit deletion signal.
		key, err := cache.NewKey(cache.NamespaceClusters, a.scope.Account, name)
		if err != nil {
			return nil, err
		}
		if err := store.Evict(ctx, cache.NamespaceClusters, []cache.Key{key}); err != nil {
			return nil, err
		}
		a.owned.forget(key)
		result.Evicted = 1
		return &OnDemandResult{
			SourceAgentType:    a.agentType,
			AuthoritativeTypes: []cache.Namespace{cache.NamespaceClusters},
			CacheResult:        result,
		}, nil
	}

	entity, appKey, err := a.transformOne(*resource)
	if err != nil {
		return nil, err
	}
	app := cache.NewEntity(appKey)
	app.Attributes["name"] = cache.String(appKey.Field("name"))
	app.AddRelationship(entity.ID)

	if err := store.Merge(ctx, cache.NamespaceClusters, []*cache.Entity{entity}, cache.Authoritative(a.agentType)); err != nil {
		return nil, err
	}
	if err := store.Merge(ctx, cache.NamespaceApplications, []*cache.Entity{app}, cache.Informative(a.agentType)); err != nil {
		return nil, err
	}
	a.owned.remember(entity.ID)

	result.Namespaces = []cache.Namespace{cache.NamespaceClusters, cache.NamespaceApplications}
	result.Counts[cache.NamespaceClusters] = 1
	result.Counts[cache.NamespaceApplications] = 1

	return &OnDemandResult{
		SourceAgentType:    a.agentType,
		AuthoritativeTypes: []cache.Namespace{cache.NamespaceClusters},
		CacheResult:        result,
	}, nil
}

var (
	_ Agent         = (*ClusterCachingAgent)(nil)
	_ OnDemandAgent = (*ClusterCachingAgent)(nil)
)
