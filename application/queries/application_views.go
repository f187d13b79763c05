// Package queries contains the read side of the cache: services that
// project cached entities into user-facing views. They consume the store's
// read contract only and never mutate it.
package queries

import (
	"context"
	"sort"

	"stratus-backend/domain/cache"

	"go.uber.org/zap"
)

// ApplicationView is the denormalized read model of one application: its
// attributes plus the cluster names it owns, grouped by account.
type ApplicationView struct {
	Name         string              `json:"name"`
	Attributes   cache.Attributes    `json:"attributes"`
	ClusterNames map[string][]string `json:"clusterNames,omitempty"`
}

// ApplicationReadService assembles application views from the cache.
type ApplicationReadService struct {
	store  cache.Store
	logger *zap.Logger
}

// NewApplicationReadService creates the application read service.
func NewApplicationReadService(store cache.Store, logger *zap.Logger) *ApplicationReadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationReadService{
		store:  store,
		logger: logger,
	}
}

// GetAll returns every cached application. With expand set, cluster
// relationship edges are read and folded into per-account cluster name
// sets; without it the read skips relationship hydration entirely.
func (s *ApplicationReadService) GetAll(ctx context.Context, expand bool) ([]ApplicationView, error) {
	filter := cache.NoRelationships()
	if expand {
		filter = cache.IncludeRelationships(cache.NamespaceClusters)
	}

	entities, err := s.store.GetAll(ctx, cache.NamespaceApplications, nil, filter)
	if err != nil {
		return nil, err
	}

	views := make([]ApplicationView, 0, len(entities))
	for _, entity := range entities {
		views = append(views, viewFrom(entity))
	}
	return views, nil
}

// Get returns one application by name, or nil when it is not cached.
func (s *ApplicationReadService) Get(ctx context.Context, name string) (*ApplicationView, error) {
	key, err := cache.NewKey(cache.NamespaceApplications, name)
	if err != nil {
		return nil, err
	}
	entity, err := s.store.Get(ctx, cache.NamespaceApplications, key)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	view := viewFrom(entity)
	return &view, nil
}

// viewFrom folds an application entity's cluster edges into per-account
// name sets. Each cluster key decodes back to its owning account and
// cluster name.
func viewFrom(entity *cache.Entity) ApplicationView {
	view := ApplicationView{
		Name:       entity.ID.Field("name"),
		Attributes: entity.Attributes,
	}

	clusters := entity.Relationships[cache.NamespaceClusters]
	if len(clusters) == 0 {
		return view
	}

	view.ClusterNames = make(map[string][]string)
	for _, key := range clusters {
		account := key.Field("account")
		name := key.Field("name")
		view.ClusterNames[account] = append(view.ClusterNames[account], name)
	}
	for account := range view.ClusterNames {
		sort.Strings(view.ClusterNames[account])
	}
	return view
}
