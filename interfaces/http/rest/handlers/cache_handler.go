package handlers

import (
	"encoding/json"
	"net/http"

	"stratus-backend/application/agents"
	"stratus-backend/domain/cache"
	"stratus-backend/pkg/api"
	"stratus-backend/pkg/observability"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CacheHandler serves cache introspection and on-demand refresh requests
type CacheHandler struct {
	store      cache.Store
	dispatcher *agents.Dispatcher
	metrics    *observability.Collector
	logger     *zap.Logger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(
	store cache.Store,
	dispatcher *agents.Dispatcher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *CacheHandler {
	return &CacheHandler{
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// Refresh handles POST /cache/refresh. The body names a request type and
// the identifying fields of the resource to refresh; the dispatcher finds
// the agent whose capability and scope cover it. An unmatched request is
// not an error: it reports handled=false so callers can tell silence from
// failure.
func (h *CacheHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" {
		api.Error(w, http.StatusBadRequest, "request type is required")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), h.store, agents.Request{
		Type: req.Type,
		Data: req.Data,
	})
	if err != nil {
		h.observeRefresh(req.Type, "error")
		h.logger.Error("on-demand refresh failed",
			zap.String("request_type", req.Type),
			zap.Error(err),
		)
		respondAppError(w, err)
		return
	}

	if result == nil {
		h.observeRefresh(req.Type, "unhandled")
		api.Success(w, http.StatusAccepted, api.RefreshResponse{Handled: false})
		return
	}

	h.observeRefresh(req.Type, "success")
	resp := api.RefreshResponse{
		Handled:         true,
		SourceAgentType: result.SourceAgentType,
	}
	for _, ns := range result.AuthoritativeTypes {
		resp.AuthoritativeTypes = append(resp.AuthoritativeTypes, string(ns))
	}
	if result.CacheResult != nil {
		resp.Evicted = result.CacheResult.Evicted
	}
	api.Success(w, http.StatusOK, resp)
}

// ListIdentifiers handles GET /cache/{namespace}. An optional ?scope= glob
// restricts the result to keys whose identifying fields match.
func (h *CacheHandler) ListIdentifiers(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespaceParam(w, r)
	if !ok {
		return
	}

	pattern := r.URL.Query().Get("scope")
	if pattern == "" {
		pattern = "*"
	}

	keys, err := h.store.FilterIdentifiers(r.Context(), ns, pattern)
	if err != nil {
		h.logger.Error("failed to filter identifiers",
			zap.String("cache_namespace", string(ns)),
			zap.Error(err),
		)
		respondAppError(w, err)
		return
	}

	resp := api.IdentifierListResponse{
		Namespace:   string(ns),
		Identifiers: make([]string, 0, len(keys)),
		Count:       len(keys),
	}
	for _, key := range keys {
		resp.Identifiers = append(resp.Identifiers, key.Encode())
	}
	api.Success(w, http.StatusOK, resp)
}

// ListEntities handles GET /cache/{namespace}/entities, returning full
// entities for the keys matching an optional ?scope= glob.
func (h *CacheHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespaceParam(w, r)
	if !ok {
		return
	}

	var keys []cache.Key
	if pattern := r.URL.Query().Get("scope"); pattern != "" {
		matched, err := h.store.FilterIdentifiers(r.Context(), ns, pattern)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if len(matched) == 0 {
			api.Success(w, http.StatusOK, api.EntityListResponse{Namespace: string(ns), Entities: []api.EntityResponse{}})
			return
		}
		keys = matched
	}

	entities, err := h.store.GetAll(r.Context(), ns, keys, cache.IncludeRelationships(cache.Namespaces()...))
	if err != nil {
		h.logger.Error("failed to read entities",
			zap.String("cache_namespace", string(ns)),
			zap.Error(err),
		)
		respondAppError(w, err)
		return
	}

	resp := api.EntityListResponse{
		Namespace: string(ns),
		Entities:  make([]api.EntityResponse, 0, len(entities)),
		Count:     len(entities),
	}
	for _, entity := range entities {
		resp.Entities = append(resp.Entities, entityResponse(entity))
	}
	api.Success(w, http.StatusOK, resp)
}

// GetEntity handles GET /cache/{namespace}/entity?key=. The key is the
// encoded form, e.g. "security-groups:acct1:us-east:sg-1".
func (h *CacheHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespaceParam(w, r)
	if !ok {
		return
	}

	token := r.URL.Query().Get("key")
	if token == "" {
		api.Error(w, http.StatusBadRequest, "key query parameter is required")
		return
	}

	key, err := cache.Decode(token)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if key.Namespace != ns {
		api.Error(w, http.StatusBadRequest, "key namespace does not match path namespace")
		return
	}

	entity, err := h.store.Get(r.Context(), ns, key)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if entity == nil {
		api.Error(w, http.StatusNotFound, "entity not found: "+token)
		return
	}

	api.Success(w, http.StatusOK, entityResponse(entity))
}

func (h *CacheHandler) namespaceParam(w http.ResponseWriter, r *http.Request) (cache.Namespace, bool) {
	ns := cache.Namespace(chi.URLParam(r, "namespace"))
	if !cache.ValidNamespace(ns) {
		api.Error(w, http.StatusBadRequest, "unknown cache namespace: "+string(ns))
		return "", false
	}
	return ns, true
}

func (h *CacheHandler) observeRefresh(requestType, outcome string) {
	if h.metrics != nil {
		h.metrics.OnDemandRequests.WithLabelValues(requestType, outcome).Inc()
	}
}

func entityResponse(entity *cache.Entity) api.EntityResponse {
	resp := api.EntityResponse{
		ID:         entity.ID.Encode(),
		Attributes: entity.Attributes.Interface(),
	}
	if len(entity.Relationships) > 0 {
		resp.Relationships = make(map[string][]string, len(entity.Relationships))
		for ns, edges := range entity.Relationships {
			encoded := make([]string, 0, len(edges))
			for _, edge := range edges {
				encoded = append(encoded, edge.Encode())
			}
			resp.Relationships[string(ns)] = encoded
		}
	}
	return resp
}
