package agents

import (
	"context"
	"sync"

	"stratus-backend/domain/cache"

	"go.uber.org/zap"
)

// ownedKeys tracks the set of keys an agent's authoritative namespace
// currently contains for its scope. Tracking the set explicitly keeps
// diff-based eviction correct even when another agent's filter pattern
// could overlap; the scoped identifier query is only used once, to seed
// the set after a restart so entities cached by a previous process still
// get evicted when they disappear upstream.
type ownedKeys struct {
	mu      sync.Mutex
	keys    map[string]cache.Key
	seeded  bool
	pattern string
}

func newOwnedKeys(pattern string) *ownedKeys {
	return &ownedKeys{
		keys:    make(map[string]cache.Key),
		pattern: pattern,
	}
}

// seed populates the set from the store on the first run after startup.
func (o *ownedKeys) seed(ctx context.Context, store cache.Store, ns cache.Namespace) error {
	o.mu.Lock()
	seeded := o.seeded
	o.mu.Unlock()
	if seeded {
		return nil
	}

	existing, err := store.FilterIdentifiers(ctx, ns, o.pattern)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seeded {
		return nil
	}
	for _, key := range existing {
		o.keys[key.Encode()] = key
	}
	o.seeded = true
	return nil
}

// replace swaps the owned set for the keys of a completed full run and
// returns the stale keys the caller must evict.
func (o *ownedKeys) replace(current map[string]cache.Key) []cache.Key {
	o.mu.Lock()
	defer o.mu.Unlock()

	var stale []cache.Key
	for token, key := range o.keys {
		if _, ok := current[token]; !ok {
			stale = append(stale, key)
		}
	}
	o.keys = current
	return stale
}

// remember adds a key written by a targeted refresh.
func (o *ownedKeys) remember(key cache.Key) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keys[key.Encode()] = key
}

// forget drops a key evicted by a targeted refresh.
func (o *ownedKeys) forget(key cache.Key) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.keys, key.Encode())
}

// replaceAuthoritative is the shared merge+evict tail of a full run:
// authoritative merge of the new snapshot, then eviction of previously
// owned keys absent from it. Returns the number of evicted keys.
func replaceAuthoritative(
	ctx context.Context,
	store cache.Store,
	ns cache.Namespace,
	entities []*cache.Entity,
	owned *ownedKeys,
	source string,
	logger *zap.Logger,
) (int, error) {
	if err := owned.seed(ctx, store, ns); err != nil {
		return 0, err
	}

	if err := store.Merge(ctx, ns, entities, cache.Authoritative(source)); err != nil {
		return 0, err
	}

	current := make(map[string]cache.Key, len(entities))
	for _, entity := range entities {
		current[entity.ID.Encode()] = entity.ID
	}
	stale := owned.replace(current)
	if len(stale) == 0 {
		return 0, nil
	}

	if err := store.Evict(ctx, ns, stale); err != nil {
		return 0, err
	}
	tokens := make([]string, len(stale))
	for i, key := range stale {
		tokens[i] = key.Encode()
	}
	logger.Debug("evicted stale entities",
		zap.String("namespace", string(ns)),
		zap.String("source", source),
		zap.Strings("keys", tokens),
	)
	return len(stale), nil
}
