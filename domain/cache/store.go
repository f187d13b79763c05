package cache

import "context"

// WritePolicy describes the authority of a merge. An authoritative write is
// the source of truth for the entities it contains: attributes and
// relationships are replaced wholesale and the source becomes the key's
// owner, subject to diff-based eviction on its later full runs. An
// informative write only adds or updates the entity's own fields and unions
// relationship edges, never displacing what an authoritative owner wrote.
type WritePolicy struct {
	Authoritative bool
	Source        string
}

// Authoritative is shorthand for an authoritative policy from a source.
func Authoritative(source string) WritePolicy {
	return WritePolicy{Authoritative: true, Source: source}
}

// Informative is shorthand for an informative policy from a source.
func Informative(source string) WritePolicy {
	return WritePolicy{Source: source}
}

// Store is the namespace-partitioned relational cache store. All mutation
// passes through Merge and Evict, which are safe under concurrent calls
// from different agents and serialize writes targeting the same key within
// a namespace. Reads never error on absence: a missing key is nil, not a
// failure, so the cache stays serviceable for reads even while some agents
// are failing to refresh.
type Store interface {
	// Get is a point lookup. An absent key returns (nil, nil).
	Get(ctx context.Context, ns Namespace, key Key) (*Entity, error)

	// GetAll is a bulk read. A nil keys slice selects the whole namespace.
	// The filter restricts which relationship namespaces are populated on
	// the returned entities.
	GetAll(ctx context.Context, ns Namespace, keys []Key, filter RelationshipFilter) ([]*Entity, error)

	// FilterIdentifiers returns the keys in a namespace whose scope portion
	// matches a glob pattern, e.g. "acct1:us-east:*".
	FilterIdentifiers(ctx context.Context, ns Namespace, pattern string) ([]Key, error)

	// Merge writes a set of entities under the given policy. Writes to
	// distinct keys do not block one another; last writer wins per key.
	Merge(ctx context.Context, ns Namespace, entities []*Entity, policy WritePolicy) error

	// Evict removes entities outright. Used for diff-based cleanup after a
	// full refresh and for explicit on-demand deletions.
	Evict(ctx context.Context, ns Namespace, keys []Key) error
}
