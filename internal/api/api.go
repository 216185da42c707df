// Package api serves clause analysis over plain HTTP alongside the MCP
// transport.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ericksa/clauseguard/internal/audit"
	"github.com/ericksa/clauseguard/internal/config"
	"github.com/ericksa/clauseguard/internal/logger"
	"github.com/ericksa/clauseguard/internal/middleware"
	"github.com/ericksa/clauseguard/internal/retrieval"
	"github.com/ericksa/clauseguard/pkg/mcp"
)

// maxBodyBytes bounds request bodies; batch requests are the largest.
const maxBodyBytes = 4 << 20

type Server struct {
	tools  *mcp.Handler
	audit  *audit.Auditor
	cfg    *config.Config
	logger *zap.Logger
	router *mux.Router
}

// New builds the gateway router. auditor may be nil.
func New(tools *mcp.Handler, auditor *audit.Auditor, cfg *config.Config, l *zap.Logger) *Server {
	s := &Server{
		tools:  tools,
		audit:  auditor,
		cfg:    cfg,
		logger: logger.OrNop(l).Named("api"),
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	middleware.Register(r, s.logger)
	r.Use(middleware.Auth(s.cfg.Auth.Token))

	r.HandleFunc("/health", s.health).Methods("GET")

	r.HandleFunc("/analyze", s.analyze).Methods("POST")
	r.HandleFunc("/analyze/batch", s.analyzeBatch).Methods("POST")
	r.HandleFunc("/compare", s.compare).Methods("POST")
	r.HandleFunc("/search", s.search).Methods("POST")
	r.HandleFunc("/analyses", s.analyses).Methods("GET")

	r.HandleFunc("/tools", s.listTools).Methods("GET")
	r.HandleFunc("/tools/{tool}", s.executeTool).Methods("POST")

	r.PathPrefix("/mcp").Handler(s.tools)
	r.PathPrefix("/configure").Handler(config.NewConfigAPI(s.cfg).Router())
}

// Handler returns the router wrapped in CORS handling. CORS sits outside the
// router so preflight requests never reach method matching.
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.cfg.Server.CORSOrigins)(s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"retrieval": s.tools.HasComparer(),
	})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var in mcp.AnalyzeClauseInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.tools.AnalyzeClause(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) analyzeBatch(w http.ResponseWriter, r *http.Request) {
	var in mcp.AnalyzeClausesInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.tools.AnalyzeClauses(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	var in mcp.CompareClauseInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.tools.CompareClause(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var in mcp.SearchClausesInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.tools.SearchClauses(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": res})
}

func (s *Server) analyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if runID := q.Get("run_id"); runID != "" {
		entries, err := s.audit.ByRun(r.Context(), runID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"analyses": entries})
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": entries})
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Tools()})
}

func (s *Server) executeTool(w http.ResponseWriter, r *http.Request) {
	toolName := mux.Vars(r)["tool"]

	var args json.RawMessage
	if !s.decode(w, r, &args) {
		return
	}

	result, err := s.tools.ExecuteTool(r.Context(), toolName, args)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read body: %v", err), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, mcp.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, mcp.ErrToolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, retrieval.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
