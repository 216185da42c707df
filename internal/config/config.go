package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete clauseguard configuration
// The structure matches the config.yaml file and can be overridden by CLAUSEGUARD_* environment variables

type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Auth      AuthConfig      `json:"auth" mapstructure:"auth"`
	LLM       LLMConfig       `json:"llm" mapstructure:"llm"`
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`
	Analyzer  AnalyzerConfig  `json:"analyzer" mapstructure:"analyzer"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
	Audit     AuditConfig     `json:"audit" mapstructure:"audit"`
	Archive   ArchiveConfig   `json:"archive" mapstructure:"archive"`
}

// ServerConfig contains gateway HTTP server configuration

type ServerConfig struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	CORSOrigins  []string      `json:"cors_origins" mapstructure:"cors_origins"`
}

// AuthConfig contains authentication configuration

type AuthConfig struct {
	Token string `json:"token" mapstructure:"token"`
}

// LLMConfig contains the text-generation endpoint configuration.
// Timeout applies to each request; a timed-out request is retried like any
// other transport failure.
type LLMConfig struct {
	Provider        string        `json:"provider" mapstructure:"provider"`
	Endpoint        string        `json:"endpoint" mapstructure:"endpoint"`
	Model           string        `json:"model" mapstructure:"model"`
	APIKey          string        `json:"api_key" mapstructure:"api_key"`
	Temperature     float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens       int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxAttempts     int           `json:"max_attempts" mapstructure:"max_attempts"`
	RetryMultiplier time.Duration `json:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryMinWait    time.Duration `json:"retry_min_wait" mapstructure:"retry_min_wait"`
	RetryMaxWait    time.Duration `json:"retry_max_wait" mapstructure:"retry_max_wait"`
	MaxConcurrency  int           `json:"max_concurrency" mapstructure:"max_concurrency"`
}

// RetrievalConfig contains the reference clause index configuration

type RetrievalConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	IndexPath     string `json:"index_path" mapstructure:"index_path"`
	Embedder      string `json:"embedder" mapstructure:"embedder"`
	EmbedEndpoint string `json:"embed_endpoint" mapstructure:"embed_endpoint"`
	EmbedModel    string `json:"embed_model" mapstructure:"embed_model"`
	TopK          int    `json:"top_k" mapstructure:"top_k"`
}

// AnalyzerConfig contains clause analyzer configuration

type AnalyzerConfig struct {
	Concurrency  int  `json:"concurrency" mapstructure:"concurrency"`
	UseRetrieval bool `json:"use_retrieval" mapstructure:"use_retrieval"`

	// MaxBatch caps the clauses accepted by one batch request; 0 disables the cap.
	MaxBatch int `json:"max_batch" mapstructure:"max_batch"`
}

// LogConfig contains logger configuration

type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
	JSON  bool   `json:"json" mapstructure:"json"`
}

// AuditConfig contains the analysis journal configuration

type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Driver  string `json:"driver" mapstructure:"driver"`
	DSN     string `json:"dsn" mapstructure:"dsn"`
}

// ArchiveConfig contains S3-compatible report archive configuration

type ArchiveConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env first (ignore error if not present)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.clauseguard")
	v.SetEnvPrefix("CLAUSEGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Retrieval.IndexPath = resolvePath(cfg.Retrieval.IndexPath)
	cfg.Log.File = resolvePath(cfg.Log.File)
	if cfg.Audit.Driver == "sqlite3" {
		cfg.Audit.DSN = resolvePath(cfg.Audit.DSN)
	}
	return &cfg, nil
}

// Defaults returns the configuration built from defaults only, without
// reading .env, config files or the environment.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("auth.token", "default-secret-token")

	// LLM defaults
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.endpoint", "http://localhost:11434")
	v.SetDefault("llm.model", "qwen2.5:3b")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.retry_multiplier", "1s")
	v.SetDefault("llm.retry_min_wait", "4s")
	v.SetDefault("llm.retry_max_wait", "10s")
	v.SetDefault("llm.max_concurrency", 4)

	// Retrieval defaults
	v.SetDefault("retrieval.enabled", true)
	v.SetDefault("retrieval.index_path", "./data/clause_index.db")
	v.SetDefault("retrieval.embedder", "ollama")
	v.SetDefault("retrieval.embed_endpoint", "http://localhost:11434")
	v.SetDefault("retrieval.embed_model", "nomic-embed-text")
	v.SetDefault("retrieval.top_k", 3)

	// Analyzer defaults
	v.SetDefault("analyzer.concurrency", 4)
	v.SetDefault("analyzer.use_retrieval", true)
	v.SetDefault("analyzer.max_batch", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.json", false)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.driver", "sqlite3")
	v.SetDefault("audit.dsn", "~/.clauseguard/analyses.db")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "127.0.0.1:9000")
	v.SetDefault("archive.bucket", "clauseguard-reports")
	v.SetDefault("archive.use_ssl", false)
}

// resolvePath resolves ~ to home directory and cleans the path
func resolvePath(p string) string {
	if p == "" {
		return p
	}
	if p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return filepath.Clean(p)
}
