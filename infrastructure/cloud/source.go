// Package cloud abstracts the external systems that produce raw resource
// state. The cache core never talks to a provider SDK directly; agents
// depend on ResourceSource and the concrete implementation is wired in at
// startup.
package cloud

import (
	"context"

	"stratus-backend/domain/cache"
)

// Resource is one raw object returned by a provider, already flattened to
// a schema-free attribute bag. The cache passes attributes through without
// interpreting them.
type Resource struct {
	Name       string
	Attributes cache.Attributes
}

// ResourceSource lists and fetches raw cloud resources for an agent's
// scope. List calls back a full-namespace refresh; Get calls back a
// targeted on-demand refresh. Get returns (nil, nil) when the resource no
// longer exists upstream, which the caller treats as a deletion signal.
type ResourceSource interface {
	ListClusters(ctx context.Context, provider, account string) ([]Resource, error)
	GetCluster(ctx context.Context, provider, account, name string) (*Resource, error)
	ListSecurityGroups(ctx context.Context, provider, account, region string) ([]Resource, error)
	GetSecurityGroup(ctx context.Context, provider, account, region, name string) (*Resource, error)
}
