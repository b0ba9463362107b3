package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quenchml/quench/internal/models"
	"github.com/quenchml/quench/pkg/api"
)

// ModelsHandler handles GET /v1/models, listing locally available models
// in the OpenAI list format.
type ModelsHandler struct {
	Store *models.Store
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entries := h.Store.List()

	resp := api.ModelListResponse{
		Object: "list",
		Data:   make([]api.ModelInfo, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Data = append(resp.Data, api.ModelInfo{
			ID:      e.Name,
			Object:  "model",
			Created: e.ModifiedAt,
			OwnedBy: "local",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// LoadHandler handles POST /api/load, explicitly loading a model without
// waiting for the first chat request.
type LoadHandler struct {
	LoadFunc func(ctx context.Context, model string) error
}

type loadRequest struct {
	Model string `json:"model"`
}

func (h *LoadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "model must not be empty")
		return
	}

	if err := h.LoadFunc(r.Context(), req.Model); err != nil {
		writeError(w, http.StatusInternalServerError, "model_error", "failed to load model: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "loaded",
		"model":  req.Model,
	})
}
