package dfsutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kestrelfs/dfs/dfs"
)

type logResponseWriter struct {
	http.ResponseWriter
	statusCode int
	buf        bytes.Buffer
}

func newLogResponseWriter(w http.ResponseWriter) *logResponseWriter {
	return &logResponseWriter{w, http.StatusOK, bytes.Buffer{}}
}

func (lrw *logResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *logResponseWriter) Write(b []byte) (int, error) {
	lrw.buf.Write(b)
	return lrw.ResponseWriter.Write(b)
}

// APIServer exposes read-only operational stats for a running Router: a
// small complement to the hands-off transfer protocol, not a management
// plane: there is no user/session management here, so this surface is
// meant to sit behind a reverse proxy or an operator-only network.
type APIServer struct {
	router *dfs.Router
	logger *slog.Logger
	mux    *http.ServeMux
	apiKey string
}

// NewAPIServer wires the /api/v1/stats endpoint against router's Recorder.
func NewAPIServer(router *dfs.Router, logger *slog.Logger, apiKey string) *APIServer {
	srv := &APIServer{router: router, logger: logger, mux: http.NewServeMux(), apiKey: apiKey}
	srv.mux.Handle("/api/v1/stats", srv.logMiddleware(srv.authMiddleware(http.HandlerFunc(srv.statsHandler))))
	return srv
}

func (srv *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.mux.ServeHTTP(w, r)
}

func (srv *APIServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if srv.apiKey != "" && r.Header.Get("X-API-Key") != srv.apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (srv *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := newLogResponseWriter(w)
		next.ServeHTTP(lrw, r)
		srv.logger.Info("req", "method", r.Method, "url", r.URL.Path, "remoteAddr", r.RemoteAddr, "response_code", lrw.statusCode)
	})
}

// statsHandler reports per-extension upload/download/remove counters.
// GET /api/v1/stats
func (srv *APIServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(srv.router.Recorder.Snapshot())
}
