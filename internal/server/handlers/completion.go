package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/quenchml/quench/internal/runner"
	"github.com/quenchml/quench/pkg/api"
)

// CompletionHandler handles POST /v1/completions, the raw completion
// endpoint with no chat template applied.
type CompletionHandler struct {
	GetRunner func() runner.Runner
}

func (h *CompletionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rn := h.GetRunner()
	if rn == nil {
		writeError(w, http.StatusServiceUnavailable, "no_model", "no model loaded")
		return
	}

	var req api.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}

	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt must not be empty")
		return
	}

	resp, err := rn.Completion(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "inference_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
