package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ggoodman/cnc-capacity-mcp/internal/config"
	"github.com/ggoodman/cnc-capacity-mcp/planner"
	"github.com/ggoodman/cnc-capacity-mcp/ssehttp"
	"github.com/gorilla/mux"
)

type statusResponse struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Status  string   `json:"status"`
	Session string   `json:"session"`
	Tools   []string `json:"tools"`
}

// newRouter mounts the MCP endpoints and the status document behind a
// permissive CORS policy.
func newRouter(cfg *config.Config, h *ssehttp.Handler, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(cors)

	r.Handle(cfg.SSEPath, h).Methods(http.MethodGet, http.MethodOptions)
	r.Handle(cfg.MessagesPath, h).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/", statusHandler(h, log)).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID")
		w.Header().Set("Access-Control-Max-Age", "600")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func statusHandler(h *ssehttp.Handler, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := statusResponse{
			Name:    planner.ServerName,
			Version: planner.ServerVersion,
			Status:  "ok",
			Tools:   []string{planner.ToolName},
		}
		code := http.StatusOK
		st, err := h.Manager().State(r.Context())
		if err != nil {
			log.WarnContext(r.Context(), "status.session.fail", slog.String("err", err.Error()))
			res.Status = "degraded"
			res.Session = "unknown"
			code = http.StatusServiceUnavailable
		} else {
			res.Session = string(st)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(res)
	}
}
