package events

// Event sources - These define where events originate from
const (
	// SourceScheduler is the periodic refresh scheduler source
	SourceScheduler = "stratus.scheduler"

	// SourceOnDemand is the on-demand dispatcher source
	SourceOnDemand = "stratus.ondemand"
)

// Event types - These define the types of events in the system
const (
	// Refresh events
	TypeNamespaceRefreshed = "cache.namespace.refreshed"
	TypeRefreshFailed      = "cache.refresh.failed"

	// On-demand events
	TypeOnDemandProcessed = "cache.ondemand.processed"
)
