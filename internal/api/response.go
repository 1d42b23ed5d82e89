// Package api implements the HTTP and SSE façade over the monitoring core.
package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error envelope. Type discriminates
// tool-typed failures so the frontend can differentiate.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// WriteError writes a standard error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteTypedError writes an error response with a type discriminator.
func WriteTypedError(w http.ResponseWriter, status int, message, errType string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Type: errType})
}
