package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stratus-backend/application/agents"
	"stratus-backend/application/queries"
	"stratus-backend/domain/cache"
	"stratus-backend/infrastructure/cloud"
	"stratus-backend/infrastructure/memstore"
	"stratus-backend/interfaces/http/rest"
	"stratus-backend/interfaces/http/rest/handlers"
	"stratus-backend/pkg/api"
	appErrors "stratus-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// staticSource serves one fixed security group.
type staticSource struct{}

func (staticSource) ListClusters(ctx context.Context, provider, account string) ([]cloud.Resource, error) {
	return nil, nil
}

func (staticSource) GetCluster(ctx context.Context, provider, account, name string) (*cloud.Resource, error) {
	return nil, nil
}

func (staticSource) ListSecurityGroups(ctx context.Context, provider, account, region string) ([]cloud.Resource, error) {
	return nil, appErrors.NewFetchFailed("not used in this test", nil)
}

func (staticSource) GetSecurityGroup(ctx context.Context, provider, account, region, name string) (*cloud.Resource, error) {
	if name != "sg-1" {
		return nil, nil
	}
	return &cloud.Resource{
		Name:       "sg-1",
		Attributes: cache.Attributes{"name": cache.String("sg-1")},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, cache.Store) {
	t.Helper()
	logger := zap.NewNop()
	store := memstore.New(logger)

	agent := agents.NewSecurityGroupCachingAgent(
		agents.Scope{Provider: "aws", Account: "acct1", Region: "us-east"}, staticSource{}, logger)
	dispatcher := agents.NewDispatcher([]agents.OnDemandAgent{agent}, nil, logger)

	appHandler := handlers.NewApplicationHandler(queries.NewApplicationReadService(store, logger), logger)
	cacheHandler := handlers.NewCacheHandler(store, dispatcher, nil, logger)
	router := rest.NewRouter(appHandler, cacheHandler, nil, "development", "", logger)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server, store
}

func seedApplication(t *testing.T, store cache.Store) {
	t.Helper()
	appKey, err := cache.NewKey(cache.NamespaceApplications, "web")
	require.NoError(t, err)
	app := cache.NewEntity(appKey)
	app.Attributes["name"] = cache.String("web")
	clusterKey, err := cache.NewKey(cache.NamespaceClusters, "acct1", "web-prod")
	require.NoError(t, err)
	app.AddRelationship(clusterKey)
	require.NoError(t, store.Merge(context.Background(), cache.NamespaceApplications,
		[]*cache.Entity{app}, cache.Informative("test")))
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_ListApplicationsExpanded(t *testing.T) {
	server, store := newTestServer(t)
	seedApplication(t, store)

	var resp api.ApplicationListResponse
	status := getJSON(t, server.URL+"/api/v1/applications?expand=true", &resp)

	assert.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "web", resp.Applications[0].Name)
	assert.Equal(t, map[string][]string{"acct1": {"web-prod"}}, resp.Applications[0].Clusters)
}

func TestAPI_GetApplicationNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	status := getJSON(t, server.URL+"/api/v1/applications/ghost", nil)

	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_RefreshHandledAndIntrospect(t *testing.T) {
	server, _ := newTestServer(t)

	// Act: on-demand refresh of sg-1
	body := strings.NewReader(`{"type":"SecurityGroup","data":{"account":"acct1","region":"us-east","name":"sg-1"}}`)
	resp, err := http.Post(server.URL+"/api/v1/cache/refresh", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var refresh api.RefreshResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refresh))

	// Assert: handled, and the entity is visible through introspection
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, refresh.Handled)
	assert.Equal(t, "aws/acct1/us-east/SecurityGroupCachingAgent", refresh.SourceAgentType)

	var ids api.IdentifierListResponse
	status := getJSON(t, server.URL+"/api/v1/cache/security-groups?scope=acct1:*", &ids)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"security-groups:acct1:us-east:sg-1"}, ids.Identifiers)

	var entity api.EntityResponse
	status = getJSON(t, server.URL+"/api/v1/cache/security-groups/entity?key=security-groups%3Aacct1%3Aus-east%3Asg-1", &entity)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "security-groups:acct1:us-east:sg-1", entity.ID)
}

func TestAPI_RefreshOutsideScopeIsAccepted(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"type":"SecurityGroup","data":{"account":"acct9","region":"us-east","name":"sg-1"}}`)
	resp, err := http.Post(server.URL+"/api/v1/cache/refresh", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var refresh api.RefreshResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refresh))

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, refresh.Handled)
}

func TestAPI_UnknownNamespaceIsBadRequest(t *testing.T) {
	server, _ := newTestServer(t)

	status := getJSON(t, server.URL+"/api/v1/cache/instances", nil)

	assert.Equal(t, http.StatusBadRequest, status)
}
