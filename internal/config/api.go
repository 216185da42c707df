package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

// ConfigAPI provides HTTP endpoints to view and validate configuration.
// Reload replaces the stored copy; components built from the previous
// configuration keep running with it until the gateway restarts.
type ConfigAPI struct {
	cfg    *Config
	mu     sync.RWMutex
	router *mux.Router
	load   func() (*Config, error)
}

func NewConfigAPI(cfg *Config) *ConfigAPI {
	api := &ConfigAPI{
		cfg:    cfg,
		router: mux.NewRouter(),
		load:   Load,
	}
	api.routes()
	return api
}

func (api *ConfigAPI) Router() *mux.Router {
	return api.router
}

func (api *ConfigAPI) routes() {
	api.router.HandleFunc("/configure", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/reload", api.reloadConfig).Methods("POST")
	api.router.HandleFunc("/configure/validate", api.validateConfig).Methods("POST")
	api.router.HandleFunc("/configure/{section}", api.getSection).Methods("GET")
}

func (api *ConfigAPI) getConfig(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	writeJSON(w, api.safeConfigCopy())
}

func (api *ConfigAPI) reloadConfig(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	reloadedCfg, err := api.load()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to reload config: %v", err), http.StatusInternalServerError)
		return
	}
	if err := reloadedCfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	*api.cfg = *reloadedCfg
	writeJSON(w, api.safeConfigCopy())
}

func (api *ConfigAPI) validateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{"valid": true, "message": "configuration is valid"})
}

func (api *ConfigAPI) getSection(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	defer api.mu.RUnlock()

	safe := api.safeConfigCopy()
	var section interface{}

	switch mux.Vars(r)["section"] {
	case "server":
		section = safe.Server
	case "llm":
		section = safe.LLM
	case "retrieval":
		section = safe.Retrieval
	case "analyzer":
		section = safe.Analyzer
	case "log":
		section = safe.Log
	case "audit":
		section = safe.Audit
	case "archive":
		section = safe.Archive
	default:
		http.Error(w, fmt.Sprintf("unknown section: %s", mux.Vars(r)["section"]), http.StatusNotFound)
		return
	}

	writeJSON(w, section)
}

func (api *ConfigAPI) safeConfigCopy() *Config {
	copyCfg := *api.cfg
	if copyCfg.Auth.Token != "" {
		copyCfg.Auth.Token = "***"
	}
	if copyCfg.LLM.APIKey != "" {
		copyCfg.LLM.APIKey = "***"
	}
	if copyCfg.Archive.AccessKey != "" {
		copyCfg.Archive.AccessKey = "***"
	}
	if copyCfg.Archive.SecretKey != "" {
		copyCfg.Archive.SecretKey = "***"
	}
	if copyCfg.Audit.Driver == "postgres" && copyCfg.Audit.DSN != "" {
		copyCfg.Audit.DSN = "***"
	}
	return &copyCfg
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
