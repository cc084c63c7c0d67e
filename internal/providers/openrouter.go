package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relaylane/router/internal/routing"
)

// OpenRouterProvider is an OpenAI-compatible adapter, shaped for OpenRouter
// but reusable against any /v1/chat/completions-compatible endpoint.
type OpenRouterProvider struct {
	baseProvider
	client *http.Client
}

func NewOpenRouterProvider(cfg *Config) *OpenRouterProvider {
	return &OpenRouterProvider{
		baseProvider: newBaseProvider(cfg, "openrouter"),
		client:       &http.Client{Timeout: cfgOrDefault(cfg).Timeout},
	}
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type openRouterChoice struct {
	Message      openRouterMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openRouterChatResponse struct {
	Model   string             `json:"model"`
	Choices []openRouterChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Chat posts to {endpoint}/chat/completions with a bearer token and
// OpenRouter's X-Title attribution header.
func (p *OpenRouterProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	orReq := openRouterChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if orReq.Model == "" {
		orReq.Model = p.config.Model
	}
	if req.SystemPrompt != "" {
		orReq.Messages = append(orReq.Messages, openRouterMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		orReq.Messages = append(orReq.Messages, openRouterMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(orReq)
	if err != nil {
		return nil, fmt.Errorf("marshal openrouter request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build openrouter request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	httpReq.Header.Set("X-Title", "relaylane-router")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, routing.NewClassifiedError(routing.ErrTransport, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := ReadLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, classifyHTTPError(p.Name(), resp.StatusCode, string(b))
	}

	bodyBytes, err := ReadLimitedBody(resp.Body, MaxStreamedResponseSize)
	if err != nil {
		return nil, fmt.Errorf("read openrouter response: %w", err)
	}

	var out openRouterChatResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return nil, fmt.Errorf("decode openrouter response: %w", err)
	}
	if out.Error != nil {
		return nil, classifyHTTPError(p.Name(), out.Error.Code, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, routing.NewClassifiedError(routing.ErrEmptyOrMeta, p.Name(), fmt.Errorf("no choices returned"))
	}

	return &ChatResponse{
		Content:          out.Choices[0].Message.Content,
		Model:            out.Model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		Duration:         time.Since(start),
	}, nil
}
