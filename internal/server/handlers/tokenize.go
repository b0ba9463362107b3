package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/quenchml/quench/internal/runner"
	"github.com/quenchml/quench/pkg/api"
)

// TokenizeHandler handles POST /api/tokenize, counting tokens with the
// loaded model's tokenizer.
type TokenizeHandler struct {
	GetRunner func() runner.Runner
}

type tokenizeResponse struct {
	Count int `json:"count"`
}

func (h *TokenizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rn := h.GetRunner()
	if rn == nil {
		writeError(w, http.StatusServiceUnavailable, "no_model", "no model loaded")
		return
	}

	var req api.TokenizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}

	count, err := rn.Tokenize(r.Context(), req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tokenize_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenizeResponse{Count: count})
}
