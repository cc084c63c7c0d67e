package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relaylane/router/internal/routing"
)

// LocalAgentProvider talks to a local agent process over a websocket
// connection rather than per-request HTTP. Chat, Probe and Available share
// one dialer configuration; each call dials its own connection and closes
// it when done, and no connection is kept open between calls.
type LocalAgentProvider struct {
	baseProvider
	dialer *websocket.Dialer
	url    string
}

func NewLocalAgentProvider(cfg *Config, url string) *LocalAgentProvider {
	return &LocalAgentProvider{
		baseProvider: newBaseProvider(cfg, "local-agent"),
		dialer:       &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		url:          url,
	}
}

type localAgentRequest struct {
	Type     string            `json:"type"`
	Messages []routing.Message `json:"messages"`
	Model    string            `json:"model,omitempty"`
}

type localAgentResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Available dials the agent's websocket endpoint and immediately closes it.
// A successful handshake is the only signal used; Probe (below) is the one
// the health tracker actually schedules.
func (p *LocalAgentProvider) Available() bool {
	conn, _, err := p.dialer.Dial(p.url, nil)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Probe implements health.Prober: a websocket handshake that tears down
// immediately, used by the active probe loop.
func (p *LocalAgentProvider) Probe(ctx context.Context) error {
	dialer := *p.dialer
	conn, _, err := dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("local-agent dial: %w", err)
	}
	return conn.Close()
}

// Chat opens a fresh connection per call, sends one chat frame, and reads
// one response frame. The agent process is expected to be a single logical
// peer, not a request multiplexer, so no connection pooling is attempted.
func (p *LocalAgentProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	dialer := *p.dialer
	conn, _, err := dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return nil, routing.NewClassifiedError(routing.ErrTransport, p.Name(), fmt.Errorf("dial: %w", err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	payload := localAgentRequest{Type: "chat", Messages: req.Messages, Model: model}
	if req.SystemPrompt != "" {
		payload.Messages = append([]routing.Message{{Role: "system", Content: req.SystemPrompt}}, payload.Messages...)
	}

	if err := conn.WriteJSON(payload); err != nil {
		return nil, routing.NewClassifiedError(routing.ErrTransport, p.Name(), fmt.Errorf("write: %w", err))
	}

	var resp localAgentResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, routing.NewClassifiedError(routing.ErrTransport, p.Name(), fmt.Errorf("read: %w", err))
	}
	if resp.Error != "" {
		return nil, routing.NewClassifiedError(routing.ErrTransport, p.Name(), fmt.Errorf("agent error: %s", resp.Error))
	}
	if resp.Content == "" {
		return nil, routing.NewClassifiedError(routing.ErrEmptyOrMeta, p.Name(), fmt.Errorf("empty agent response"))
	}

	return &ChatResponse{
		Content:  resp.Content,
		Model:    model,
		Duration: time.Since(start),
	}, nil
}
