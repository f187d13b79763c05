// Package api defines the contracts for API requests and responses.
// It decouples the API structure from the internal domain models.
package api

// ApplicationResponse is the API representation of one application and,
// when expanded, the cluster names it owns grouped by account.
type ApplicationResponse struct {
	Name       string                 `json:"name"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Clusters   map[string][]string    `json:"clusters,omitempty"`
}

// ApplicationListResponse wraps the application collection.
type ApplicationListResponse struct {
	Applications []ApplicationResponse `json:"applications"`
	Count        int                   `json:"count"`
}

// EntityResponse is the raw cache view of a single entity, used by the
// cache introspection endpoints.
type EntityResponse struct {
	ID            string                 `json:"id"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Relationships map[string][]string    `json:"relationships,omitempty"`
}

// EntityListResponse wraps an entity collection with its namespace.
type EntityListResponse struct {
	Namespace string           `json:"namespace"`
	Entities  []EntityResponse `json:"entities"`
	Count     int              `json:"count"`
}

// IdentifierListResponse lists the keys that matched a scope filter.
type IdentifierListResponse struct {
	Namespace   string   `json:"namespace"`
	Identifiers []string `json:"identifiers"`
	Count       int      `json:"count"`
}

// RefreshRequest is the body of a POST /cache/refresh call.
type RefreshRequest struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// RefreshResponse reports the outcome of an on-demand refresh.
type RefreshResponse struct {
	Handled            bool     `json:"handled"`
	SourceAgentType    string   `json:"sourceAgentType,omitempty"`
	AuthoritativeTypes []string `json:"authoritativeTypes,omitempty"`
	Evicted            int      `json:"evicted,omitempty"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
}

// ErrorResponse is a standardized error message for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
