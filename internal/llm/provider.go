package llm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericksa/clauseguard/internal/config"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// wireFormat encodes a Request for one provider and extracts the generated
// text from its response envelope.
type wireFormat interface {
	path() string
	encode(cfg config.LLMConfig, req Request) ([]byte, error)
	decode(body []byte) (string, error)
}

func newWireFormat(provider string) (wireFormat, error) {
	switch provider {
	case "", "ollama":
		return ollamaFormat{}, nil
	case "openai":
		return openAIFormat{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func buildMessages(req Request) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	return append(messages, chatMessage{Role: "user", Content: req.Prompt})
}

// Ollama /api/chat

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

type ollamaFormat struct{}

func (ollamaFormat) path() string { return "/api/chat" }

func (ollamaFormat) encode(cfg config.LLMConfig, req Request) ([]byte, error) {
	body := ollamaChatRequest{
		Model:    cfg.Model,
		Messages: buildMessages(req),
		Options: ollamaOptions{
			Temperature: cfg.Temperature,
			NumPredict:  cfg.MaxTokens,
		},
	}
	if req.ForceStructured {
		body.Format = "json"
	}
	return json.Marshal(body)
}

func (ollamaFormat) decode(body []byte) (string, error) {
	var resp ollamaChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.Message.Content, nil
}

// OpenAI-compatible /v1/chat/completions (LM Studio, vLLM, llama.cpp server)

type responseFormat struct {
	Type string `json:"type"`
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIFormat struct{}

func (openAIFormat) path() string { return "/v1/chat/completions" }

func (openAIFormat) encode(cfg config.LLMConfig, req Request) ([]byte, error) {
	body := openAIChatRequest{
		Model:       cfg.Model,
		Messages:    buildMessages(req),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if req.ForceStructured {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return json.Marshal(body)
}

func (openAIFormat) decode(body []byte) (string, error) {
	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
