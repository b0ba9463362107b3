package handlers

import (
	"encoding/json"
	"net/http"
)

// VersionHandler handles GET /api/version.
type VersionHandler struct {
	Version string
}

func (h *VersionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": h.Version})
}
