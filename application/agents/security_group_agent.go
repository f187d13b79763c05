package agents

import (
	"context"
	"fmt"

	"stratus-backend/domain/cache"
	"stratus-backend/infrastructure/cloud"
	appErrors "stratus-backend/pkg/errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SecurityGroupCachingAgent caches the security groups of one account and
// region. It is the sole authoritative producer for its slice of the
// `security-groups` namespace and answers on-demand refresh requests for
// single groups.
type SecurityGroupCachingAgent struct {
	scope     Scope
	agentType string
	source    cloud.ResourceSource
	logger    *zap.Logger
	owned     *ownedKeys
}

// NewSecurityGroupCachingAgent creates a security group agent for one
// (provider, account, region) scope.
func NewSecurityGroupCachingAgent(scope Scope, source cloud.ResourceSource, logger *zap.Logger) *SecurityGroupCachingAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	agentType := fmt.Sprintf("%s/%s/%s/SecurityGroupCachingAgent", scope.Provider, scope.Account, scope.Region)
	pattern := scope.Account + cache.Delimiter + scope.Region + cache.Delimiter + "*"
	return &SecurityGroupCachingAgent{
		scope:     scope,
		agentType: agentType,
		source:    source,
		logger:    logger.With(zap.String("agent_type", agentType)),
		owned:     newOwnedKeys(pattern),
	}
}

// AgentType returns the unique agent identifier.
func (a *SecurityGroupCachingAgent) AgentType() string {
	return a.agentType
}

// ProvidedDataTypes declares the namespaces this agent writes.
func (a *SecurityGroupCachingAgent) ProvidedDataTypes() []DataType {
	return []DataType{
		{Namespace: cache.NamespaceSecurityGroups, Authoritative: true},
	}
}

// LoadData performs one full refresh cycle for this scope's security
// groups.
func (a *SecurityGroupCachingAgent) LoadData(ctx context.Context, store cache.Store) (*RunResult, error) {
	ctx, span := otel.Tracer("stratus-backend/agents").Start(ctx, "SecurityGroupCachingAgent.LoadData")
	defer span.End()
	span.SetAttributes(attribute.String("agent.type", a.agentType))

	resources, err := a.source.ListSecurityGroups(ctx, a.scope.Provider, a.scope.Account, a.scope.Region)
	if err != nil {
		if !appErrors.IsFetchFailed(err) {
			err = appErrors.NewFetchFailed("security group list failed", err)
		}
		return nil, err
	}

	entities := make([]*cache.Entity, 0, len(resources))
	for _, resource := range resources {
		entity, err := a.transformOne(resource)
		if err != nil {
			a.logger.Warn("skipping security group that cannot be keyed",
				zap.String("security_group", resource.Name),
				zap.Error(err),
			)
			continue
		}
		entities = append(entities, entity)
	}

	evicted, err := replaceAuthoritative(ctx, store, cache.NamespaceSecurityGroups, entities, a.owned, a.agentType, a.logger)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		AgentType:  a.agentType,
		RunID:      uuid.NewString(),
		Namespaces: []cache.Namespace{cache.NamespaceSecurityGroups},
		Counts: map[cache.Namespace]int{
			cache.NamespaceSecurityGroups: len(entities),
		},
		Evicted: evicted,
	}, nil
}

func (a *SecurityGroupCachingAgent) transformOne(resource cloud.Resource) (*cache.Entity, error) {
	key, err := cache.NewKey(cache.NamespaceSecurityGroups, a.scope.Account, a.scope.Region, resource.Name)
	if err != nil {
		return nil, err
	}
	entity := cache.NewEntity(key)
	entity.Attributes = resource.Attributes.Clone()
	return entity, nil
}

// Handles declares the on-demand request types this agent answers.
func (a *SecurityGroupCachingAgent) Handles(requestType string) bool {
	return requestType == RequestTypeSecurityGroup
}

// Handle refreshes a single security group outside the periodic cycle.
// Requests for another scope return (nil, nil). The merge is scoped to
// exactly the fetched key; sibling entities this call did not examine are
// never evicted.
func (a *SecurityGroupCachingAgent) Handle(ctx context.Context, store cache.Store, data map[string]string) (*OnDemandResult, error) {
	if data["account"] != a.scope.Account || data["region"] != a.scope.Region {
		return nil, nil
	}
	if provider, ok := data["provider"]; ok && provider != a.scope.Provider {
		return nil, nil
	}
	name := data["name"]
	if name == "" {
		return nil, appErrors.NewValidation("on-demand security group request carries no name")
	}

	ctx, span := otel.Tracer("stratus-backend/agents").Start(ctx, "SecurityGroupCachingAgent.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.type", a.agentType),
		attribute.String("security_group", name),
	)

	resource, err := a.source.GetSecurityGroup(ctx, a.scope.Provider, a.scope.Account, a.scope.Region, name)
	if err != nil {
		if !appErrors.IsFetchFailed(err) {
			err = appErrors.NewFetchFailed("security group fetch failed", err)
		}
		return nil, err
	}

	result := &RunResult{
		AgentType:  a.agentType,
		RunID:      uuid.NewString(),
		Namespaces: []cache.Namespace{cache.NamespaceSecurityGroups},
		Counts:     map[cache.Namespace]int{},
	}

	if resource == nil {
		// Gone upstream: explicit deletion signal.
		key, err := cache.NewKey(cache.NamespaceSecurityGroups, a.scope.Account, a.scope.Region, name)
		if err != nil {
			return nil, err
		}
		if err := store.Evict(ctx, cache.NamespaceSecurityGroups, []cache.Key{key}); err != nil {
			return nil, err
		}
		a.owned.forget(key)
		result.Evicted = 1
		return &OnDemandResult{
			SourceAgentType:    a.agentType,
			AuthoritativeTypes: []cache.Namespace{cache.NamespaceSecurityGroups},
			CacheResult:        result,
		}, nil
	}

	entity, err := a.transformOne(*resource)
	if err != nil {
		return nil, err
	}
	if err := store.Merge(ctx, cache.NamespaceSecurityGroups, []*cache.Entity{entity}, cache.Authoritative(a.agentType)); err != nil {
		return nil, err
	}
	a.owned.remember(entity.ID)
	result.Counts[cache.NamespaceSecurityGroups] = 1

	return &OnDemandResult{
		SourceAgentType:    a.agentType,
		AuthoritativeTypes: []cache.Namespace{cache.NamespaceSecurityGroups},
		CacheResult:        result,
	}, nil
}

var (
	_ Agent         = (*SecurityGroupCachingAgent)(nil)
	_ OnDemandAgent = (*SecurityGroupCachingAgent)(nil)
)
