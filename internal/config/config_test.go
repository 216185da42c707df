package config

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, time.Second, cfg.LLM.RetryMultiplier)
	assert.Equal(t, 4*time.Second, cfg.LLM.RetryMinWait)
	assert.Equal(t, 10*time.Second, cfg.LLM.RetryMaxWait)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 50, cfg.Analyzer.MaxBatch)
	assert.Empty(t, cfg.Server.CORSOrigins)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server address"},
		{"empty token", func(c *Config) { c.Auth.Token = "" }, "auth token"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "carrier-pigeon" }, "llm provider"},
		{"zero attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }, "max_attempts"},
		{"inverted waits", func(c *Config) { c.LLM.RetryMinWait = 20 * time.Second }, "retry_min_wait"},
		{"bad embedder", func(c *Config) { c.Retrieval.Embedder = "word2vec" }, "embedder"},
		{"zero concurrency", func(c *Config) { c.Analyzer.Concurrency = 0 }, "concurrency"},
		{"negative batch cap", func(c *Config) { c.Analyzer.MaxBatch = -1 }, "max_batch"},
		{"bad audit driver", func(c *Config) { c.Audit.Driver = "mysql" }, "audit driver"},
		{"archive bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.AccessKey = "a"
			c.Archive.SecretKey = "b"
			c.Archive.Bucket = "Bad_Bucket"
		}, "bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_RetrievalDisabledSkipsIndexChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Retrieval.Enabled = false
	cfg.Retrieval.IndexPath = ""
	cfg.Retrieval.Embedder = ""
	assert.NoError(t, cfg.Validate())
}

func TestIsValidBucketName(t *testing.T) {
	assert.True(t, isValidBucketName("clauseguard-reports"))
	assert.False(t, isValidBucketName("ab"))
	assert.False(t, isValidBucketName(".reports"))
	assert.False(t, isValidBucketName("a..b"))
}

func TestConfigAPI_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.APIKey = "sk-live"
	api := NewConfigAPI(cfg)

	req := httptest.NewRequest(http.MethodGet, "/configure", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "***", got.Auth.Token)
	assert.Equal(t, "***", got.LLM.APIKey)
	assert.Equal(t, "sk-live", cfg.LLM.APIKey, "masking must not touch the live config")
}

func TestConfigAPI_Section(t *testing.T) {
	api := NewConfigAPI(Defaults())

	req := httptest.NewRequest(http.MethodGet, "/configure/llm", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"provider":"ollama"`)

	req = httptest.NewRequest(http.MethodGet, "/configure/nope", nil)
	w = httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfigAPI_Validate(t *testing.T) {
	api := NewConfigAPI(Defaults())

	body, err := json.Marshal(Defaults())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/configure/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	bad := Defaults()
	bad.LLM.Provider = ""
	body, err = json.Marshal(bad)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/configure/validate", bytes.NewReader(body))
	w = httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigAPI_Reload(t *testing.T) {
	cfg := Defaults()
	api := NewConfigAPI(cfg)
	api.load = func() (*Config, error) {
		next := Defaults()
		next.LLM.Model = "llama3:8b"
		return next, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/configure/reload", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "llama3:8b", cfg.LLM.Model)
}
