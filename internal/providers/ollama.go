package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/relaylane/router/internal/routing"
)

// OllamaProvider implements Provider against a local Ollama daemon.
type OllamaProvider struct {
	baseProvider
	client *http.Client
}

// NewOllamaProvider builds an Ollama adapter. A nil cfg takes the package
// defaults (localhost:11434, qwen3:8b).
func NewOllamaProvider(cfg *Config) *OllamaProvider {
	return &OllamaProvider{
		baseProvider: newBaseProvider(cfg, "ollama"),
		client:       &http.Client{Timeout: cfgOrDefault(cfg).Timeout},
	}
}

func cfgOrDefault(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig("ollama")
	}
	return cfg
}

// Available checks Ollama is reachable and has at least one model loaded.
// An Ollama endpoint with zero models is not a useful backend.
func (p *OllamaProvider) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}
	return len(result.Models) > 0
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	// Final chunk only.
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Chat sends a non-streaming chat request to Ollama's /api/chat endpoint.
// Ollama model names must not contain "/"; the failover executor coerces
// violations before ever calling this, so Chat itself does not re-validate.
func (p *OllamaProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	ollamaReq := ollamaChatRequest{Model: req.Model, Stream: false}
	if ollamaReq.Model == "" {
		ollamaReq.Model = p.config.Model
	}
	if req.SystemPrompt != "" {
		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	ollamaReq.Options.Temperature = req.Temperature
	ollamaReq.Options.NumPredict = req.MaxTokens

	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, routing.NewClassifiedError(routing.ErrTransport, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := ReadLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, classifyHTTPError(p.Name(), resp.StatusCode, string(b))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	return &ChatResponse{
		Content:          out.Message.Content,
		Model:            out.Model,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		Duration:         time.Since(start),
	}, nil
}

// classifyHTTPError maps an HTTP status + body into the ErrorKind taxonomy
// shared across every adapter.
func classifyHTTPError(provider string, status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return routing.NewClassifiedError(routing.ErrAuth, provider, fmt.Errorf("status %d: %s", status, body))
	case status == http.StatusPaymentRequired || strings.Contains(lower, "credits exhausted") || strings.Contains(lower, "insufficient credits"):
		return routing.NewClassifiedError(routing.ErrPayment, provider, fmt.Errorf("status %d: %s", status, body))
	case status == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		return routing.NewClassifiedError(routing.ErrRateLimit, provider, fmt.Errorf("status %d: %s", status, body))
	default:
		return routing.NewClassifiedError(routing.ErrTransport, provider, fmt.Errorf("status %d: %s", status, body))
	}
}
