// Package providers defines the adapter contract the failover executor and
// task classifier invoke, plus a small set of reference adapters (Ollama,
// an OpenAI-compatible/OpenRouter-shaped HTTP adapter, and a websocket-based
// local-agent probe) that exercise the contract end to end. The concrete
// wire-level behavior of every other provider in the catalog is out of
// scope — only this contract is.
package providers

import (
	"context"
	"io"
	"time"

	"github.com/relaylane/router/internal/routing"
)

// Size limits mirror the donor's provider.go: never buffer an unbounded
// response body or error payload into memory.
const (
	MaxErrorBodySize         = 1 << 20  // 1 MB
	MaxStreamedResponseSize  = 50 << 20 // 50 MB
)

// ReadLimitedBody reads up to limit bytes of r, returning whatever was read
// even on a subsequent error (useful for building an error message from a
// partially-read body).
func ReadLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// ChatRequest is the adapter-facing request shape the failover executor and
// classifier both build.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []routing.Message
	Tools        []routing.ToolDefinition
	MaxTokens    int
	Temperature  float64
}

// ChatResponse is the adapter-facing response shape.
type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	UsedNativeTools  bool
	ToolCalls        []routing.ToolCallResult
	Duration         time.Duration
}

// Provider is the capability interface every adapter implements. There is
// no shared base class — composition only, per the donor's baseProvider
// embedding pattern, generalized into an interface so callers never type-
// switch on concrete adapters.
type Provider interface {
	// Name returns the provider ID used throughout the catalog/chain/health map.
	Name() string
	// Chat invokes the provider. Errors are expected to be (or wrap) a
	// *routing.ClassifiedError so the failover executor can classify them.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// Available must be fast and must never panic.
	Available() bool
}

// CLIProvider extends Provider for CLI-delegation adapters.
type CLIProvider interface {
	Provider
	IsAuthenticated(cliType string) bool
	Execute(ctx context.Context, prompt string, opts CLIOptions) (*CLIResult, error)
}

// CLIOptions parameterizes a CLI delegation call.
type CLIOptions struct {
	WorkspacePath string
	Timeout       time.Duration
}

// CLIResult is what a CLI delegation call returns.
type CLIResult struct {
	Content     string
	OutputFiles []string
	Workspace   string
	Duration    time.Duration
}

// Config is the shared construction bundle for HTTP-based adapters,
// mirroring the donor's ProviderConfig.
type Config struct {
	Name        string
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns sensible per-provider defaults, matching the
// donor's per-name switch in internal/llm/provider.go.
func DefaultConfig(name string) *Config {
	switch name {
	case "ollama":
		return &Config{Name: name, Endpoint: "http://127.0.0.1:11434", Model: "qwen3:8b", MaxTokens: 4096, Temperature: 0.7, Timeout: 120 * time.Second}
	case "openrouter":
		return &Config{Name: name, Endpoint: "https://openrouter.ai/api/v1", MaxTokens: 4096, Temperature: 0.7, Timeout: 60 * time.Second}
	default:
		return &Config{Name: name, MaxTokens: 4096, Temperature: 0.7, Timeout: 30 * time.Second}
	}
}

// baseProvider is the DRY helper every HTTP adapter embeds, applying
// defaults-if-missing and implementing Name/Available so concrete adapters
// only have to implement Chat.
type baseProvider struct {
	config *Config
}

func newBaseProvider(cfg *Config, name string) baseProvider {
	if cfg == nil {
		cfg = DefaultConfig(name)
	}
	d := DefaultConfig(name)
	if cfg.Endpoint == "" {
		cfg.Endpoint = d.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	return baseProvider{config: cfg}
}

func (b baseProvider) Name() string { return b.config.Name }

// Available reports whether credentials look present for providers that
// require auth; providers without an API key requirement (local) always
// report true here and rely on a live probe instead.
func (b baseProvider) Available() bool {
	if b.config.RequiresAuth() {
		return b.config.APIKey != ""
	}
	return true
}

// RequiresAuth is a tiny per-name rule: API-family providers need a key,
// local providers don't.
func (c *Config) RequiresAuth() bool {
	return c.Name != "ollama" && c.Name != "local-agent"
}
