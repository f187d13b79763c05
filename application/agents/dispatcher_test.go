package agents_test

import (
	"context"
	"testing"

	"stratus-backend/application/agents"
	"stratus-backend/domain/cache"
	"stratus-backend/domain/events"
	"stratus-backend/infrastructure/cloud"
	"stratus-backend/infrastructure/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	published []events.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	p.published = append(p.published, batch...)
	return nil
}

func TestDispatcher_RoutesToMatchingScope(t *testing.T) {
	// Arrange: two security group agents, only one owns the scope
	store := memstore.New(zap.NewNop())
	source := &fakeSource{securityGroups: map[string][]cloud.Resource{
		"aws/acct1/us-west": {sgResource("sg-1")},
	}}
	east := agents.NewSecurityGroupCachingAgent(
		agents.Scope{Provider: "aws", Account: "acct1", Region: "us-east"}, source, zap.NewNop())
	west := agents.NewSecurityGroupCachingAgent(
		agents.Scope{Provider: "aws", Account: "acct1", Region: "us-west"}, source, zap.NewNop())
	publisher := &recordingPublisher{}
	dispatcher := agents.NewDispatcher([]agents.OnDemandAgent{east, west}, publisher, zap.NewNop())

	// Act
	result, err := dispatcher.Dispatch(context.Background(), store, agents.Request{
		Type: agents.RequestTypeSecurityGroup,
		Data: map[string]string{"account": "acct1", "region": "us-west", "name": "sg-1"},
	})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, west.AgentType(), result.SourceAgentType)
	assert.Equal(t, []string{"security-groups:acct1:us-west:sg-1"},
		identifiers(t, store, cache.NamespaceSecurityGroups))

	require.Len(t, publisher.published, 1)
	assert.Equal(t, events.TypeOnDemandProcessed, publisher.published[0].GetEventType())
	assert.Equal(t, events.SourceOnDemand, publisher.published[0].GetEventSource())
}

func TestDispatcher_UnknownTypeIsUnhandled(t *testing.T) {
	store := memstore.New(zap.NewNop())
	agent := agents.NewSecurityGroupCachingAgent(
		agents.Scope{Provider: "aws", Account: "acct1", Region: "us-east"}, &fakeSource{}, zap.NewNop())
	dispatcher := agents.NewDispatcher([]agents.OnDemandAgent{agent}, nil, zap.NewNop())

	result, err := dispatcher.Dispatch(context.Background(), store, agents.Request{
		Type: "LoadBalancer",
		Data: map[string]string{"account": "acct1"},
	})

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDispatcher_NoScopeOwnerIsUnhandled(t *testing.T) {
	store := memstore.New(zap.NewNop())
	agent := agents.NewSecurityGroupCachingAgent(
		agents.Scope{Provider: "aws", Account: "acct1", Region: "us-east"}, &fakeSource{}, zap.NewNop())
	publisher := &recordingPublisher{}
	dispatcher := agents.NewDispatcher([]agents.OnDemandAgent{agent}, publisher, zap.NewNop())

	result, err := dispatcher.Dispatch(context.Background(), store, agents.Request{
		Type: agents.RequestTypeSecurityGroup,
		Data: map[string]string{"account": "acct9", "region": "eu-central", "name": "sg-1"},
	})

	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, publisher.published)
}
