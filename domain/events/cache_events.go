// Package events defines the domain events the cache emits after refresh
// cycles and on-demand updates. Downstream consumers (EventBridge rules,
// local listeners) key off the event type constants.
package events

import "time"

// DomainEvent is the contract every published event satisfies.
type DomainEvent interface {
	GetEventType() string
	GetEventSource() string
	GetAggregateID() string
}

// BaseEvent carries the fields common to all cache events
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	EventSource string    `json:"event_source"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

// GetEventSource returns the refresh path that emitted the event
func (e BaseEvent) GetEventSource() string {
	return e.EventSource
}

// NamespaceRefreshedEvent is emitted after an agent completes a full
// refresh cycle for its scope
type NamespaceRefreshedEvent struct {
	BaseEvent
	AgentType  string         `json:"agent_type"`
	RunID      string         `json:"run_id"`
	Namespaces []string       `json:"namespaces"`
	Counts     map[string]int `json:"counts"`
	Evicted    int            `json:"evicted"`
}

// NewNamespaceRefreshedEvent creates a new namespace refreshed event
func NewNamespaceRefreshedEvent(agentType, runID string, namespaces []string, counts map[string]int, evicted int) *NamespaceRefreshedEvent {
	return &NamespaceRefreshedEvent{
		BaseEvent: BaseEvent{
			AggregateID: agentType,
			EventType:   TypeNamespaceRefreshed,
			EventSource: SourceScheduler,
			Timestamp:   time.Now(),
			Version:     1,
		},
		AgentType:  agentType,
		RunID:      runID,
		Namespaces: namespaces,
		Counts:     counts,
		Evicted:    evicted,
	}
}

// GetEventType returns the event type
func (e *NamespaceRefreshedEvent) GetEventType() string {
	return TypeNamespaceRefreshed
}

// GetAggregateID returns the agent type that produced the refresh
func (e *NamespaceRefreshedEvent) GetAggregateID() string {
	return e.AgentType
}

// RefreshFailedEvent is emitted when an agent's fetch phase fails and the
// run aborts without touching the store
type RefreshFailedEvent struct {
	BaseEvent
	AgentType string `json:"agent_type"`
	Reason    string `json:"reason"`
}

// NewRefreshFailedEvent creates a new refresh failed event
func NewRefreshFailedEvent(agentType, reason string) *RefreshFailedEvent {
	return &RefreshFailedEvent{
		BaseEvent: BaseEvent{
			AggregateID: agentType,
			EventType:   TypeRefreshFailed,
			EventSource: SourceScheduler,
			Timestamp:   time.Now(),
			Version:     1,
		},
		AgentType: agentType,
		Reason:    reason,
	}
}

// GetEventType returns the event type
func (e *RefreshFailedEvent) GetEventType() string {
	return TypeRefreshFailed
}

// GetAggregateID returns the agent type whose run failed
func (e *RefreshFailedEvent) GetAggregateID() string {
	return e.AgentType
}

// OnDemandProcessedEvent is emitted after a targeted on-demand refresh
type OnDemandProcessedEvent struct {
	BaseEvent
	RequestType        string   `json:"request_type"`
	SourceAgentType    string   `json:"source_agent_type"`
	AuthoritativeTypes []string `json:"authoritative_types"`
}

// NewOnDemandProcessedEvent creates a new on-demand processed event
func NewOnDemandProcessedEvent(requestType, sourceAgentType string, authoritativeTypes []string) *OnDemandProcessedEvent {
	return &OnDemandProcessedEvent{
		BaseEvent: BaseEvent{
			AggregateID: sourceAgentType,
			EventType:   TypeOnDemandProcessed,
			EventSource: SourceOnDemand,
			Timestamp:   time.Now(),
			Version:     1,
		},
		RequestType:        requestType,
		SourceAgentType:    sourceAgentType,
		AuthoritativeTypes: authoritativeTypes,
	}
}

// GetEventType returns the event type
func (e *OnDemandProcessedEvent) GetEventType() string {
	return TypeOnDemandProcessed
}

// GetAggregateID returns the agent type that answered the request
func (e *OnDemandProcessedEvent) GetAggregateID() string {
	return e.SourceAgentType
}
