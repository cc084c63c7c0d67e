package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{ chain []string }

func (f fakeResolver) ClassifierChainFor(userID string) []string { return f.chain }

type fakeProvider struct {
	name  string
	reply string
	err   error
	delay time.Duration
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Available() bool { return true }
func (p *fakeProvider) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{Content: p.reply}, nil
}

func lookupFrom(provs ...*fakeProvider) providerLookup {
	m := make(map[string]providers.Provider, len(provs))
	for _, p := range provs {
		m[p.name] = p
	}
	return func(id string) (providers.Provider, bool) {
		p, ok := m[id]
		return p, ok
	}
}

func TestClassifyUsesAIWhenEnabled(t *testing.T) {
	p := &fakeProvider{name: "ollama", reply: `{"tier":"complex","confidence":0.9,"reasoning":"multi-file change"}`}
	c := New(Config{
		Resolver:  fakeResolver{chain: []string{"ollama"}},
		Lookup:    lookupFrom(p),
		AIEnabled: func(string) bool { return true },
	})

	result := c.Classify(context.Background(), &routing.Request{Task: "hi", UserID: "u1"})
	assert.Equal(t, routing.TierComplex, result.Tier)
	assert.Equal(t, routing.SourceAI, result.Source)
	assert.Equal(t, "ollama", result.ClassifierProvider)
}

func TestClassifyFallsBackToKeywordOnChainExhaustion(t *testing.T) {
	bad := &fakeProvider{name: "ollama", err: assertError{"boom"}}
	c := New(Config{
		Resolver:  fakeResolver{chain: []string{"ollama"}},
		Lookup:    lookupFrom(bad),
		AIEnabled: func(string) bool { return true },
	})

	result := c.Classify(context.Background(), &routing.Request{Task: "hi", UserID: "u1"})
	assert.Equal(t, routing.SourceLocalChainExhausted, result.Source)
	assert.Equal(t, routing.TierTrivial, result.Tier)
}

func TestClassifyMovesToNextEntryOnFailure(t *testing.T) {
	first := &fakeProvider{name: "first", err: assertError{"unreachable"}}
	second := &fakeProvider{name: "second", reply: `{"tier":"simple","confidence":0.7,"reasoning":"short question"}`}
	c := New(Config{
		Resolver:  fakeResolver{chain: []string{"first", "second"}},
		Lookup:    lookupFrom(first, second),
		AIEnabled: func(string) bool { return true },
	})

	result := c.Classify(context.Background(), &routing.Request{Task: "what time is it", UserID: "u1"})
	assert.Equal(t, routing.TierSimple, result.Tier)
	assert.Equal(t, "second", result.ClassifierProvider)
}

func TestClassifyForceTierWinsOverAI(t *testing.T) {
	p := &fakeProvider{name: "ollama", reply: `{"tier":"complex","confidence":0.9,"reasoning":"x"}`}
	c := New(Config{
		Resolver:  fakeResolver{chain: []string{"ollama"}},
		Lookup:    lookupFrom(p),
		AIEnabled: func(string) bool { return true },
	})

	result := c.Classify(context.Background(), &routing.Request{Task: "hi", UserID: "u1", ForceTier: routing.TierCritical})
	assert.Equal(t, routing.TierCritical, result.Tier)
}

func TestParseAIResponseStripsThinkAndFences(t *testing.T) {
	raw := "<think>pondering...</think>```json\n{\"tier\": \"moderate\", \"confidence\": 1.5, \"reasoning\": \"ok\"}\n```"
	tier, confidence, reasoning, ok := parseAIResponse(raw)
	require.True(t, ok)
	assert.Equal(t, routing.TierModerate, tier)
	assert.Equal(t, 1.0, confidence, "confidence must be clamped to 1")
	assert.Equal(t, "ok", reasoning)
}

func TestParseAIResponseRejectsUnknownTier(t *testing.T) {
	_, _, _, ok := parseAIResponse(`{"tier": "impossible", "confidence": 0.5}`)
	assert.False(t, ok)
}

func TestChainCacheReusesResolvedChain(t *testing.T) {
	calls := 0
	resolver := countingResolver{chain: []string{"ollama"}, calls: &calls}
	p := &fakeProvider{name: "ollama", reply: `{"tier":"trivial","confidence":0.9,"reasoning":"x"}`}
	c := New(Config{Resolver: resolver, Lookup: lookupFrom(p), AIEnabled: func(string) bool { return true }})

	c.Classify(context.Background(), &routing.Request{Task: "hi", UserID: "u1"})
	c.Classify(context.Background(), &routing.Request{Task: "hi", UserID: "u1"})
	assert.Equal(t, 1, calls, "second call within TTL must reuse cached chain")
}

type countingResolver struct {
	chain []string
	calls *int
}

func (r countingResolver) ClassifierChainFor(userID string) []string {
	*r.calls++
	return r.chain
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
