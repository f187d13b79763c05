// Package agents implements the two refresh paths of the cache: caching
// agents that periodically replace their scope's view of a namespace via
// diff-based merge, and on-demand agents that additionally answer narrow,
// externally-triggered refresh requests for single resources.
package agents

import (
	"context"
	"fmt"

	"stratus-backend/domain/cache"
)

// Scope identifies the slice of the world one agent is responsible for.
// Agents only ever write keys whose identifying fields match their own
// scope; that convention is what keeps one authoritative producer per
// logical partition.
type Scope struct {
	Provider string
	Account  string
	Region   string
}

func (s Scope) String() string {
	if s.Region == "" {
		return fmt.Sprintf("%s/%s", s.Provider, s.Account)
	}
	return fmt.Sprintf("%s/%s/%s", s.Provider, s.Account, s.Region)
}

// DataType declares one namespace an agent writes into and with what
// authority. Authoritative namespaces are subject to the agent's
// diff-based eviction; informative ones are only ever added to.
type DataType struct {
	Namespace     cache.Namespace
	Authoritative bool
}

// RunResult reports what a refresh wrote.
type RunResult struct {
	AgentType  string
	RunID      string
	Namespaces []cache.Namespace
	Counts     map[cache.Namespace]int
	Evicted    int
}

// Agent is the base refreshable capability, consumed by the scheduler.
type Agent interface {
	// AgentType is unique per scope and agent kind.
	AgentType() string

	// ProvidedDataTypes declares the namespaces this agent writes.
	ProvidedDataTypes() []DataType

	// LoadData pulls a full snapshot for the agent's scope and replaces
	// the agent's partition of the store via diff-based merge. A fetch
	// failure aborts before merge, leaving the store untouched.
	LoadData(ctx context.Context, store cache.Store) (*RunResult, error)
}

// OnDemandResult reports a targeted refresh so the caller can correlate
// which partitions were touched.
type OnDemandResult struct {
	SourceAgentType    string
	AuthoritativeTypes []cache.Namespace
	CacheResult        *RunResult
}

// OnDemandAgent is the optional on-demand capability layered over an
// Agent. Dispatch is by capability presence: the dispatcher asks every
// registered agent whether it handles a request's type and scope.
type OnDemandAgent interface {
	Agent

	// Handles declares which request types this agent answers.
	Handles(requestType string) bool

	// Handle performs a targeted fetch-and-merge for the resource named in
	// the request data. A request outside the agent's scope returns
	// (nil, nil) so another agent instance can answer; that is not an
	// error. Handle never evicts keys outside the targeted set.
	Handle(ctx context.Context, store cache.Store, data map[string]string) (*OnDemandResult, error)
}

// On-demand request types.
const (
	RequestTypeCluster       = "Cluster"
	RequestTypeSecurityGroup = "SecurityGroup"
)
