// Package llm talks to a chat-completion endpoint with bounded retries and
// structured-output recovery.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ericksa/clauseguard/internal/config"
	"github.com/ericksa/clauseguard/internal/logger"
)

// Request is one generation call. It is built per call and never mutated.
type Request struct {
	Prompt          string
	SystemPrompt    string
	ForceStructured bool
}

// Client is safe for concurrent use.
type Client struct {
	cfg        config.LLMConfig
	format     wireFormat
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg config.LLMConfig, l *zap.Logger) (*Client, error) {
	format, err := newWireFormat(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}

	return &Client{
		cfg:     cfg,
		format:  format,
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.OrNop(l).Named("llm"),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Generate sends req and returns the generated text. Transport failures are
// retried up to MaxAttempts times; the last failure is returned as a
// *GenerationError.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := c.format.encode(c.cfg, req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	attempts := 0
	operation := func() (string, error) {
		attempts++
		if err := ctx.Err(); err != nil {
			return "", backoff.Permanent(err)
		}
		text, err := c.send(ctx, payload)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return text, err
	}

	start := time.Now()
	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newClampedExponential(c.cfg.RetryMultiplier, c.cfg.RetryMinWait, c.cfg.RetryMaxWait)),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("generation attempt failed, retrying",
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		c.logger.Error("generation failed",
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", &GenerationError{Attempts: attempts, Err: err}
	}

	c.logger.Debug("generation complete",
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)))
	return text, nil
}

func (c *Client) send(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.format.path(), bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return c.format.decode(body)
}

// GenerateStructured requests JSON output and decodes it as an object. When
// the raw text does not decode, one more attempt is made after stripping a
// markdown code fence.
func (c *Client) GenerateStructured(ctx context.Context, prompt, systemPrompt string) (map[string]any, error) {
	raw, err := c.Generate(ctx, Request{
		Prompt:          prompt,
		SystemPrompt:    systemPrompt,
		ForceStructured: true,
	})
	if err != nil {
		return nil, err
	}

	obj, err := decodeObject(raw)
	if err == nil {
		return obj, nil
	}

	obj, err = decodeObject(stripFence(raw))
	if err == nil {
		c.logger.Debug("recovered structured output from fenced block")
		return obj, nil
	}

	c.logger.Warn("structured output could not be decoded", zap.Error(err), zap.Int("chars", len(raw)))
	return nil, &MalformedOutputError{Raw: raw, Err: err}
}

// BatchGenerate runs every prompt concurrently, at most MaxConcurrency at a
// time. Results are in input order. The first prompt to fail after its own
// retries fails the whole batch.
func (c *Client) BatchGenerate(ctx context.Context, prompts []string, systemPrompt string) ([]string, error) {
	results := make([]string, len(prompts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)
	for i, prompt := range prompts {
		g.Go(func() error {
			text, err := c.Generate(gctx, Request{Prompt: prompt, SystemPrompt: systemPrompt})
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i, err)
			}
			results[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

var errNotObject = errors.New("structured output is not a JSON object")

func decodeObject(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

// stripFence removes a leading ```json or ``` marker and a trailing ```.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
