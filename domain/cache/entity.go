package cache

import "sort"

// Entity is the unit of stored state: an identifier, a schema-free
// attribute bag, and relationship edges to keys in other namespaces.
// Entities are immutable snapshots once stored; the store clones on both
// write and read so no entity is shared-mutable across agents.
type Entity struct {
	ID            Key
	Attributes    Attributes
	Relationships map[Namespace][]Key
}

// NewEntity creates an empty entity for a key.
func NewEntity(id Key) *Entity {
	return &Entity{
		ID:            id,
		Attributes:    make(Attributes),
		Relationships: make(map[Namespace][]Key),
	}
}

// AddRelationship appends an edge to the target key's namespace, skipping
// duplicates.
func (e *Entity) AddRelationship(target Key) {
	if e.Relationships == nil {
		e.Relationships = make(map[Namespace][]Key)
	}
	for _, existing := range e.Relationships[target.Namespace] {
		if existing.Equal(target) {
			return
		}
	}
	e.Relationships[target.Namespace] = append(e.Relationships[target.Namespace], target)
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	out := &Entity{
		ID:         e.ID,
		Attributes: e.Attributes.Clone(),
	}
	if e.Relationships != nil {
		out.Relationships = make(map[Namespace][]Key, len(e.Relationships))
		for ns, keys := range e.Relationships {
			cp := make([]Key, len(keys))
			copy(cp, keys)
			out.Relationships[ns] = cp
		}
	}
	return out
}

// Filtered returns a copy of the entity carrying only the relationship
// namespaces the filter admits. Edges within a namespace come back sorted
// by encoded key so reads are deterministic.
func (e *Entity) Filtered(filter RelationshipFilter) *Entity {
	out := e.Clone()
	filteredRels := make(map[Namespace][]Key)
	for ns, keys := range out.Relationships {
		if !filter.Includes(ns) {
			continue
		}
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].Encode() < keys[j].Encode()
		})
		filteredRels[ns] = keys
	}
	out.Relationships = filteredRels
	return out
}

// RelationshipFilter restricts which relationship namespaces are populated
// on entities returned from a bulk read, so callers pay only for the edges
// they need. The zero value admits no relationships.
type RelationshipFilter struct {
	include map[Namespace]struct{}
}

// NoRelationships returns a filter that strips every relationship edge.
func NoRelationships() RelationshipFilter {
	return RelationshipFilter{}
}

// IncludeRelationships returns a filter admitting only the listed
// namespaces.
func IncludeRelationships(namespaces ...Namespace) RelationshipFilter {
	include := make(map[Namespace]struct{}, len(namespaces))
	for _, ns := range namespaces {
		include[ns] = struct{}{}
	}
	return RelationshipFilter{include: include}
}

// Includes reports whether edges into ns survive the filter.
func (f RelationshipFilter) Includes(ns Namespace) bool {
	if f.include == nil {
		return false
	}
	_, ok := f.include[ns]
	return ok
}
