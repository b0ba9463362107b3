// Package handlers contains the HTTP handlers for the quench server.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quenchml/quench/pkg/api"
)

// normalizeModelName strips the .gguf extension for comparison.
func normalizeModelName(name string) string {
	return strings.TrimSuffix(name, ".gguf")
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: api.ErrorDetail{
			Message: message,
			Type:    errType,
		},
	})
}
