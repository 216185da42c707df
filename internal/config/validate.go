package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Addr == "" {
		return errors.New("server address cannot be empty")
	}

	// Validate address format and port
	if _, err := net.ResolveTCPAddr("tcp", c.Server.Addr); err != nil {
		return fmt.Errorf("invalid server address: %v", err)
	}

	// Validate auth configuration
	if c.Auth.Token == "" {
		return errors.New("auth token cannot be empty")
	}

	if err := c.LLM.validate(); err != nil {
		return err
	}

	if c.Retrieval.Enabled {
		switch c.Retrieval.Embedder {
		case "ollama":
			if c.Retrieval.EmbedEndpoint == "" {
				return errors.New("retrieval embed_endpoint cannot be empty for the ollama embedder")
			}
		case "hash":
		default:
			return fmt.Errorf("unknown retrieval embedder: %q", c.Retrieval.Embedder)
		}
		if c.Retrieval.IndexPath == "" {
			return errors.New("retrieval index_path cannot be empty when retrieval is enabled")
		}
		if c.Retrieval.TopK <= 0 {
			return errors.New("retrieval top_k must be positive")
		}
	}

	if c.Analyzer.Concurrency < 1 {
		return errors.New("analyzer concurrency must be at least 1")
	}
	if c.Analyzer.MaxBatch < 0 {
		return errors.New("analyzer max_batch cannot be negative")
	}

	if c.Audit.Enabled {
		switch c.Audit.Driver {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("unsupported audit driver: %q", c.Audit.Driver)
		}
		if c.Audit.DSN == "" {
			return errors.New("audit dsn cannot be empty when audit is enabled")
		}
	}

	// Validate archive configuration
	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return errors.New("archive endpoint cannot be empty when archive is enabled")
		}
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return errors.New("archive credentials cannot be empty when archive is enabled")
		}
		if !isValidBucketName(c.Archive.Bucket) {
			return fmt.Errorf("invalid archive bucket name: %s", c.Archive.Bucket)
		}
	}

	return nil
}

func (l *LLMConfig) validate() error {
	switch l.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %q", l.Provider)
	}
	if l.Endpoint == "" {
		return errors.New("llm endpoint cannot be empty")
	}
	if l.Model == "" {
		return errors.New("llm model cannot be empty")
	}
	if l.Timeout <= 0 {
		return errors.New("llm timeout must be positive")
	}
	if l.MaxAttempts < 1 {
		return errors.New("llm max_attempts must be at least 1")
	}
	if l.RetryMinWait > l.RetryMaxWait {
		return fmt.Errorf("llm retry_min_wait (%s) exceeds retry_max_wait (%s)", l.RetryMinWait, l.RetryMaxWait)
	}
	if l.MaxConcurrency < 1 {
		return errors.New("llm max_concurrency must be at least 1")
	}
	return nil
}

// isValidBucketName checks if a bucket name is valid according to MinIO/S3 rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	if !bucketNamePattern.MatchString(name) {
		return false
	}
	return true
}

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)
