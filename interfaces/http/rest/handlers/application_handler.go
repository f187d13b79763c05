// Package handlers contains the HTTP handlers for the cache API: the
// application read view, cache introspection, and on-demand refresh.
package handlers

import (
	"net/http"

	"stratus-backend/application/queries"
	"stratus-backend/pkg/api"
	"stratus-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ApplicationHandler serves the application read view
type ApplicationHandler struct {
	apps   *queries.ApplicationReadService
	logger *zap.Logger
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(apps *queries.ApplicationReadService, logger *zap.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		apps:   apps,
		logger: logger,
	}
}

// ListApplications handles GET /applications. With ?expand=true the
// response includes cluster names grouped by account.
func (h *ApplicationHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	expand := r.URL.Query().Get("expand") == "true"

	views, err := h.apps.GetAll(r.Context(), expand)
	if err != nil {
		h.logger.Error("failed to list applications", zap.Error(err))
		respondAppError(w, err)
		return
	}

	resp := api.ApplicationListResponse{
		Applications: make([]api.ApplicationResponse, 0, len(views)),
		Count:        len(views),
	}
	for _, view := range views {
		resp.Applications = append(resp.Applications, applicationResponse(view))
	}

	api.Success(w, http.StatusOK, resp)
}

// GetApplication handles GET /applications/{name}. The single-application
// view is always expanded.
func (h *ApplicationHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		api.Error(w, http.StatusBadRequest, "application name is required")
		return
	}

	view, err := h.apps.Get(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to get application",
			zap.String("name", name),
			zap.Error(err),
		)
		respondAppError(w, err)
		return
	}
	if view == nil {
		api.Error(w, http.StatusNotFound, "application not found: "+name)
		return
	}

	api.Success(w, http.StatusOK, applicationResponse(*view))
}

func applicationResponse(view queries.ApplicationView) api.ApplicationResponse {
	return api.ApplicationResponse{
		Name:       view.Name,
		Attributes: view.Attributes.Interface(),
		Clusters:   view.ClusterNames,
	}
}

// respondAppError maps domain errors to HTTP status codes.
func respondAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsNotFound(err):
		api.Error(w, http.StatusNotFound, err.Error())
	case errors.IsValidation(err), errors.IsInvalidField(err), errors.IsMalformedKey(err):
		api.Error(w, http.StatusBadRequest, err.Error())
	case errors.IsFetchFailed(err):
		api.Error(w, http.StatusBadGateway, err.Error())
	case errors.IsMergeConflict(err):
		api.Error(w, http.StatusConflict, err.Error())
	default:
		api.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
