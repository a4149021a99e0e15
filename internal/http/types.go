package http

import "github.com/fyrsmithlabs/ragguard/internal/retrieval"

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
	Role     string `json:"role" validate:"required,max=64"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Kind    retrieval.Kind `json:"kind"`
	Answer  string         `json:"answer,omitempty"`
	Sources []string       `json:"sources,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// IngestRequest is the request body for POST /api/v1/ingest.
type IngestRequest struct {
	Text        string `json:"text" validate:"required"`
	Sensitivity string `json:"sensitivity" validate:"required,max=64"`
	Source      string `json:"source" validate:"required,max=512"`
}

// IngestResponse is the response body for POST /api/v1/ingest.
type IngestResponse struct {
	FragmentIDs []string `json:"fragment_ids"`
}

// RolesResponse is the response body for GET /api/v1/roles.
type RolesResponse struct {
	Roles map[string][]string `json:"roles"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
