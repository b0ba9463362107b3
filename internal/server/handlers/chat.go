package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/quenchml/quench/internal/runner"
	"github.com/quenchml/quench/pkg/api"
)

// ChatHandler handles POST /v1/chat/completions.
type ChatHandler struct {
	GetRunner func() runner.Runner
	LoadFunc  func(ctx context.Context, model string) error
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}

	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "messages must not be empty")
		return
	}

	// Auto-load the model if not already loaded or if a different model is requested
	rn := h.GetRunner()
	if rn == nil || (req.Model != "" && normalizeModelName(rn.ModelName()) != normalizeModelName(req.Model)) {
		if req.Model == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "no model specified and no model loaded")
			return
		}
		if err := h.LoadFunc(r.Context(), req.Model); err != nil {
			writeError(w, http.StatusInternalServerError, "model_error", "failed to load model: "+err.Error())
			return
		}
		rn = h.GetRunner()
	}

	if req.Stream {
		h.handleStream(w, r, &req, rn)
	} else {
		h.handleComplete(w, r, &req, rn)
	}
}

func (h *ChatHandler) handleComplete(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest, rn runner.Runner) {
	resp, err := rn.ChatCompletion(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "inference_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest, rn runner.Runner) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	out := io.Writer(w)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
		out = flushWriter{w: w, f: flusher}
	}

	if err := rn.ChatCompletionStreamTo(r.Context(), req, out); err != nil {
		// Headers are already sent; nothing useful to report to the client.
		return
	}
}

// flushWriter flushes after every write so SSE events reach the client
// as they are produced instead of sitting in the response buffer.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}
