package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quenchml/quench/internal/server/handlers"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.Health)

	chat := &handlers.ChatHandler{
		GetRunner: s.Runner,
		LoadFunc:  s.LoadModel,
	}
	mux.Handle("POST /v1/chat/completions", chat)

	completion := &handlers.CompletionHandler{GetRunner: s.Runner}
	mux.Handle("POST /v1/completions", completion)

	mux.Handle("GET /v1/models", &handlers.ModelsHandler{Store: s.store})
	mux.Handle("POST /api/load", &handlers.LoadHandler{LoadFunc: s.LoadModel})
	mux.Handle("POST /api/tokenize", &handlers.TokenizeHandler{GetRunner: s.Runner})
	mux.Handle("GET /api/version", &handlers.VersionHandler{Version: s.version})
}

// statusWriter records the response status for request logging. It
// forwards Flush so SSE streaming keeps working through the wrapper.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.logger.Infof("%s %s %d %s (req %s)", r.Method, r.URL.Path, sw.status, time.Since(start).Round(time.Millisecond), id)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
