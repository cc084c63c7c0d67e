package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relaylane/router/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoAgentServer(t *testing.T, reply localAgentResponse) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req localAgentRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(reply)
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestLocalAgentChatSuccess(t *testing.T) {
	srv := newEchoAgentServer(t, localAgentResponse{Type: "chat", Content: "hello from agent"})
	defer srv.Close()

	p := NewLocalAgentProvider(nil, wsURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := p.Chat(ctx, &ChatRequest{Messages: []routing.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello from agent", resp.Content)
}

func TestLocalAgentChatEmptyContentIsSoftError(t *testing.T) {
	srv := newEchoAgentServer(t, localAgentResponse{Type: "chat", Content: ""})
	defer srv.Close()

	p := NewLocalAgentProvider(nil, wsURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := p.Chat(ctx, &ChatRequest{Messages: []routing.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, routing.ErrEmptyOrMeta, routing.KindOf(err))
}

func TestLocalAgentChatAgentError(t *testing.T) {
	srv := newEchoAgentServer(t, localAgentResponse{Type: "chat", Error: "model not loaded"})
	defer srv.Close()

	p := NewLocalAgentProvider(nil, wsURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := p.Chat(ctx, &ChatRequest{Messages: []routing.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestLocalAgentAvailableAndProbe(t *testing.T) {
	srv := newEchoAgentServer(t, localAgentResponse{Type: "chat", Content: "ok"})
	defer srv.Close()

	p := NewLocalAgentProvider(nil, wsURL(srv.URL))
	assert.True(t, p.Available())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, p.Probe(ctx))
}

func TestLocalAgentUnreachable(t *testing.T) {
	p := NewLocalAgentProvider(nil, "ws://127.0.0.1:1/agent")
	assert.False(t, p.Available())
}
