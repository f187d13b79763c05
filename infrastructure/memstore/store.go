// Package memstore implements the relational cache store in process
// memory. This is the infrastructure layer's default backend; deployments
// that need a shared cache across instances use the DynamoDB backend
// instead.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stratus-backend/domain/cache"
	appErrors "stratus-backend/pkg/errors"

	"go.uber.org/zap"
)

// record is one stored entity plus its write bookkeeping.
type record struct {
	entity    *cache.Entity
	owner     string // source of the last authoritative write, "" if none yet
	updatedAt time.Time
}

// partition holds one namespace's records. Locking is per partition, so
// reads and writes in unrelated namespaces never contend, and writes to
// the same key serialize behind the partition lock (last writer wins).
type partition struct {
	mu      sync.RWMutex
	records map[string]*record
}

// Store is the in-memory relational cache store.
type Store struct {
	partitions map[cache.Namespace]*partition
	strict     bool
	logger     *zap.Logger
}

// Option configures the store.
type Option func(*Store)

// WithStrictAuthority makes the store reject an authoritative merge from a
// source other than a key's current owner instead of letting it displace
// the owner's data. Conflicts are logged and reported, never applied.
func WithStrictAuthority() Option {
	return func(s *Store) { s.strict = true }
}

// New creates a store with one partition per declared namespace.
func New(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	partitions := make(map[cache.Namespace]*partition)
	for _, ns := range cache.Namespaces() {
		partitions[ns] = &partition{records: make(map[string]*record)}
	}
	s := &Store{
		partitions: partitions,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) partition(ns cache.Namespace) (*partition, error) {
	p, ok := s.partitions[ns]
	if !ok {
		return nil, appErrors.NewValidation(fmt.Sprintf("unknown namespace %q", ns))
	}
	return p, nil
}

// Get retrieves a single entity. An absent key returns (nil, nil).
func (s *Store) Get(ctx context.Context, ns cache.Namespace, key cache.Key) (*cache.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.partition(ns)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[key.Encode()]
	if !ok {
		return nil, nil
	}
	return rec.entity.Clone(), nil
}

// GetAll retrieves entities in bulk, populating only the relationship
// namespaces the filter admits. A nil keys slice selects the whole
// namespace. Absent keys are skipped, never an error.
func (s *Store) GetAll(ctx context.Context, ns cache.Namespace, keys []cache.Key, filter cache.RelationshipFilter) ([]*cache.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.partition(ns)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*cache.Entity
	if keys == nil {
		for _, rec := range p.records {
			out = append(out, rec.entity.Filtered(filter))
		}
	} else {
		for _, key := range keys {
			if rec, ok := p.records[key.Encode()]; ok {
				out = append(out, rec.entity.Filtered(filter))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Encode() < out[j].ID.Encode()
	})
	return out, nil
}

// FilterIdentifiers returns the keys whose scope portion matches the glob
// pattern, sorted by encoded form.
func (s *Store) FilterIdentifiers(ctx context.Context, ns cache.Namespace, pattern string) ([]cache.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.partition(ns)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []cache.Key
	for _, rec := range p.records {
		if cache.MatchScope(pattern, rec.entity.ID.Scope()) {
			out = append(out, rec.entity.ID)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Encode() < out[j].Encode()
	})
	return out, nil
}

// Merge writes entities under the given policy. Authoritative writes
// replace attributes and relationships wholesale and take ownership of the
// key. Informative writes overlay attributes per field and union
// relationship edges, leaving ownership untouched. Under strict authority,
// an authoritative write against a key owned by a different source is
// rejected and reported via a MergeConflict error; the remaining entities
// in the batch still apply.
func (s *Store) Merge(ctx context.Context, ns cache.Namespace, entities []*cache.Entity, policy cache.WritePolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.partition(ns)
	if err != nil {
		return err
	}

	var conflicts []string
	now := time.Now()

	p.mu.Lock()
	for _, entity := range entities {
		if entity == nil {
			continue
		}
		if entity.ID.Namespace != ns {
			p.mu.Unlock()
			return appErrors.NewValidation(fmt.Sprintf(
				"entity %q does not belong to namespace %q", entity.ID.Encode(), ns))
		}

		token := entity.ID.Encode()
		existing, ok := p.records[token]

		if policy.Authoritative {
			if s.strict && ok && existing.owner != "" && existing.owner != policy.Source {
				conflicts = append(conflicts, token)
				continue
			}
			p.records[token] = &record{
				entity:    entity.Clone(),
				owner:     policy.Source,
				updatedAt: now,
			}
			continue
		}

		// Informative write
		if !ok {
			p.records[token] = &record{
				entity:    entity.Clone(),
				updatedAt: now,
			}
			continue
		}
		merged := existing.entity.Clone()
		for name, value := range entity.Attributes {
			merged.Attributes[name] = value.Clone()
		}
		for _, edges := range entity.Relationships {
			for _, edge := range edges {
				merged.AddRelationship(edge)
			}
		}
		existing.entity = merged
		existing.updatedAt = now
	}
	p.mu.Unlock()

	if len(conflicts) > 0 {
		s.logger.Warn("rejected authoritative writes from non-owner",
			zap.String("namespace", string(ns)),
			zap.String("source", policy.Source),
			zap.Strings("keys", conflicts),
		)
		return appErrors.NewMergeConflict(fmt.Sprintf(
			"source %q is not the owner of: %s", policy.Source, strings.Join(conflicts, ", ")))
	}
	return nil
}

// Evict removes entities outright. Absent keys are ignored.
func (s *Store) Evict(ctx context.Context, ns cache.Namespace, keys []cache.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.partition(ns)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range keys {
		delete(p.records, key.Encode())
	}
	return nil
}

// Len reports the number of entities in a namespace. Used by metrics
// collection.
func (s *Store) Len(ns cache.Namespace) int {
	p, ok := s.partitions[ns]
	if !ok {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

var _ cache.Store = (*Store)(nil)
