package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stratus-backend/domain/cache"
	appErrors "stratus-backend/pkg/errors"

	"go.uber.org/zap"
)

// HTTPSource fetches raw resources from a provider inventory gateway over
// HTTP. Responses are JSON objects whose fields become the resource's
// attribute bag; a "name" field identifies the resource.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPSource creates a source against a gateway base URL.
func NewHTTPSource(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ListClusters fetches every cluster for an account.
func (s *HTTPSource) ListClusters(ctx context.Context, provider, account string) ([]Resource, error) {
	return s.list(ctx, s.path(provider, account, "", "clusters", ""))
}

// GetCluster fetches one cluster by name. A gone resource returns (nil, nil).
func (s *HTTPSource) GetCluster(ctx context.Context, provider, account, name string) (*Resource, error) {
	return s.get(ctx, s.path(provider, account, "", "clusters", name))
}

// ListSecurityGroups fetches every security group for an account and region.
func (s *HTTPSource) ListSecurityGroups(ctx context.Context, provider, account, region string) ([]Resource, error) {
	return s.list(ctx, s.path(provider, account, region, "securityGroups", ""))
}

// GetSecurityGroup fetches one security group by name. A gone resource
// returns (nil, nil).
func (s *HTTPSource) GetSecurityGroup(ctx context.Context, provider, account, region, name string) (*Resource, error) {
	return s.get(ctx, s.path(provider, account, region, "securityGroups", name))
}

func (s *HTTPSource) path(provider, account, region, kind, name string) string {
	p := fmt.Sprintf("%s/providers/%s/accounts/%s",
		s.baseURL, url.PathEscape(provider), url.PathEscape(account))
	if region != "" {
		p += "/regions/" + url.PathEscape(region)
	}
	p += "/" + kind
	if name != "" {
		p += "/" + url.PathEscape(name)
	}
	return p
}

func (s *HTTPSource) list(ctx context.Context, endpoint string) ([]Resource, error) {
	body, status, err := s.do(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, appErrors.NewFetchFailed(
			fmt.Sprintf("source returned status %d for %s", status, endpoint), nil)
	}

	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, appErrors.NewFetchFailed("source returned malformed resource list", err)
	}
	resources := make([]Resource, 0, len(raw))
	for _, fields := range raw {
		resource, err := resourceFrom(fields)
		if err != nil {
			return nil, err
		}
		resources = append(resources, *resource)
	}
	return resources, nil
}

func (s *HTTPSource) get(ctx context.Context, endpoint string) (*Resource, error) {
	body, status, err := s.do(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// Gone upstream: the caller evicts the targeted key.
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, appErrors.NewFetchFailed(
			fmt.Sprintf("source returned status %d for %s", status, endpoint), nil)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, appErrors.NewFetchFailed("source returned malformed resource", err)
	}
	return resourceFrom(fields)
}

func (s *HTTPSource) do(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, appErrors.NewFetchFailed("failed to build source request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, appErrors.NewFetchFailed("source unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, appErrors.NewFetchFailed("failed to read source response", err)
	}
	return body, resp.StatusCode, nil
}

func resourceFrom(fields map[string]any) (*Resource, error) {
	name, _ := fields["name"].(string)
	if name == "" {
		return nil, appErrors.NewFetchFailed("source resource has no name", nil)
	}
	attrs, err := cache.AttributesFrom(fields)
	if err != nil {
		return nil, appErrors.NewFetchFailed("source resource has unsupported attributes", err)
	}
	return &Resource{Name: name, Attributes: attrs}, nil
}

var _ ResourceSource = (*HTTPSource)(nil)
