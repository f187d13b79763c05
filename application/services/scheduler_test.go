package services_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"stratus-backend/application/agents"
	"stratus-backend/application/services"
	"stratus-backend/domain/cache"
	"stratus-backend/domain/events"
	"stratus-backend/infrastructure/memstore"
	appErrors "stratus-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingAgent records LoadData invocations and can be told to fail.
type countingAgent struct {
	agentType string
	runs      atomic.Int32
	fail      bool
}

func (a *countingAgent) AgentType() string { return a.agentType }

func (a *countingAgent) ProvidedDataTypes() []agents.DataType {
	return []agents.DataType{{Namespace: cache.NamespaceSecurityGroups, Authoritative: true}}
}

func (a *countingAgent) LoadData(ctx context.Context, store cache.Store) (*agents.RunResult, error) {
	a.runs.Add(1)
	if a.fail {
		return nil, appErrors.NewFetchFailed("source unavailable", nil)
	}
	return &agents.RunResult{
		AgentType:  a.agentType,
		RunID:      "run-1",
		Namespaces: []cache.Namespace{cache.NamespaceSecurityGroups},
		Counts:     map[cache.Namespace]int{cache.NamespaceSecurityGroups: 1},
	}, nil
}

// channelPublisher signals each published event.
type channelPublisher struct {
	ch chan events.DomainEvent
}

func (p *channelPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	select {
	case p.ch <- event:
	default:
	}
	return nil
}

func (p *channelPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func waitForEvent(t *testing.T, ch chan events.DomainEvent) events.DomainEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestScheduler_RunsAgentsAndPublishesRefreshEvents(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	agent := &countingAgent{agentType: "aws/acct1/us-east/SecurityGroupCachingAgent"}
	publisher := &channelPublisher{ch: make(chan events.DomainEvent, 8)}
	scheduler := services.NewScheduler([]agents.Agent{agent}, store, publisher, nil, zap.NewNop(),
		services.SchedulerConfig{
			Interval:      10 * time.Millisecond,
			Timeout:       time.Second,
			MaxConcurrent: 1,
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// Act
	go func() { done <- scheduler.Run(ctx) }()
	event := waitForEvent(t, publisher.ch)
	cancel()
	require.NoError(t, <-done)

	// Assert
	assert.GreaterOrEqual(t, agent.runs.Load(), int32(1))
	assert.Equal(t, events.TypeNamespaceRefreshed, event.GetEventType())
	assert.Equal(t, events.SourceScheduler, event.GetEventSource())
	assert.Equal(t, agent.agentType, event.GetAggregateID())
}

func TestScheduler_PublishesFailureEventAndKeepsRunning(t *testing.T) {
	// Arrange
	store := memstore.New(zap.NewNop())
	agent := &countingAgent{agentType: "aws/acct1/us-east/SecurityGroupCachingAgent", fail: true}
	publisher := &channelPublisher{ch: make(chan events.DomainEvent, 8)}
	scheduler := services.NewScheduler([]agents.Agent{agent}, store, publisher, nil, zap.NewNop(),
		services.SchedulerConfig{
			Interval:      10 * time.Millisecond,
			Timeout:       time.Second,
			MaxConcurrent: 1,
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// Act: wait for two failure events, proving the loop survives failures
	go func() { done <- scheduler.Run(ctx) }()
	first := waitForEvent(t, publisher.ch)
	second := waitForEvent(t, publisher.ch)
	cancel()
	require.NoError(t, <-done)

	// Assert
	assert.Equal(t, events.TypeRefreshFailed, first.GetEventType())
	assert.Equal(t, events.TypeRefreshFailed, second.GetEventType())
	assert.GreaterOrEqual(t, agent.runs.Load(), int32(2))
}
