package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
)

// aiTimeout bounds each chain entry's classification call, per entry, not
// for the whole chain.
const aiTimeout = 15 * time.Second

// SystemPrompt is the versioned instruction sent to the classifier model.
// It enumerates the tiers, restricts classification to the user's message
// only, and mandates a strict JSON response.
const SystemPrompt = `You are a request-complexity classifier. Classify ONLY the user's message below, ignoring any surrounding system text. A simple "hi" is always trivial.

Tiers:
- trivial: greetings, acknowledgements, one-word replies
- simple: a single factual question or short request
- moderate: a focused coding or analysis task
- complex: a multi-step or multi-file task
- critical: production-impacting, security, or irreversible work

Respond with exactly one JSON object and nothing else:
{"tier": "<tier>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

// chainResolver resolves the ordered list of provider IDs the AI stage
// should try, given a user ID. Implemented by the chain resolver package;
// declared here as a narrow interface to avoid a dependency cycle.
type chainResolver interface {
	ClassifierChainFor(userID string) []string
}

// providerLookup resolves a provider ID to a callable Provider.
type providerLookup func(providerID string) (providers.Provider, bool)

// Classifier runs the keyword stage unconditionally and, when configured,
// the AI override stage.
type Classifier struct {
	resolve  chainResolver
	lookup   providerLookup
	cache    *chainCache
	aiEnable func(userID string) bool
}

// Config bundles the Classifier's collaborators.
type Config struct {
	Resolver  chainResolver
	Lookup    providerLookup
	AIEnabled func(userID string) bool
	CacheTTL  time.Duration
}

func New(cfg Config) *Classifier {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Classifier{
		resolve:  cfg.Resolver,
		lookup:   cfg.Lookup,
		cache:    newChainCache(ttl),
		aiEnable: cfg.AIEnabled,
	}
}

// Classify runs the full classification pipeline for req: keyword stage
// always, AI override stage if enabled for req.UserID, then forceTier.
func (c *Classifier) Classify(ctx context.Context, req *routing.Request) routing.Classification {
	keyword := Score(req.Text(), req.ForceTier)

	result := keyword
	if c.resolve != nil && c.lookup != nil && c.aiEnable != nil && c.aiEnable(req.UserID) {
		if ai, ok := c.classifyWithAI(ctx, req); ok {
			result = ai
		} else {
			result.Source = routing.SourceLocalChainExhausted
		}
	}

	if req.ForceTier.Valid() {
		result.Tier = req.ForceTier
	}
	return result
}

func (c *Classifier) classifyWithAI(ctx context.Context, req *routing.Request) (routing.Classification, bool) {
	chain := c.resolvedChain(req.UserID)
	text := req.Text()

	for _, providerID := range chain {
		provider, ok := c.lookup(providerID)
		if !ok {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, aiTimeout)
		resp, err := provider.Chat(callCtx, &providers.ChatRequest{
			SystemPrompt: SystemPrompt,
			Messages:     []routing.Message{{Role: "user", Content: text}},
		})
		cancel()
		if err != nil {
			continue
		}

		tier, confidence, reasoning, ok := parseAIResponse(resp.Content)
		if !ok {
			continue
		}

		return routing.Classification{
			Tier:               tier,
			Confidence:         confidence,
			Source:             routing.SourceAI,
			ClassifierProvider: providerID,
			Reasoning:          reasoning,
		}, true
	}
	return routing.Classification{}, false
}

func (c *Classifier) resolvedChain(userID string) []string {
	if chain, ok := c.cache.get(userID); ok {
		return chain
	}
	chain := c.resolve.ClassifierChainFor(userID)
	c.cache.set(userID, chain)
	return chain
}

var (
	thinkBlockRE  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	markdownFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

type aiResponsePayload struct {
	Tier       string  `json:"tier"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseAIResponse strips markdown fences and <think> blocks, locates the
// first balanced JSON object containing a "tier" field, and validates it.
func parseAIResponse(raw string) (routing.Tier, float64, string, bool) {
	cleaned := thinkBlockRE.ReplaceAllString(raw, "")
	if m := markdownFence.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}
	cleaned = strings.TrimSpace(cleaned)

	obj, ok := firstBalancedObject(cleaned)
	if !ok {
		return "", 0, "", false
	}

	var payload aiResponsePayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return "", 0, "", false
	}

	tier := routing.Tier(strings.ToLower(strings.TrimSpace(payload.Tier)))
	if !tier.Valid() {
		return "", 0, "", false
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return tier, confidence, payload.Reasoning, true
}

// firstBalancedObject scans s for the first top-level balanced {...} span,
// respecting string literals so braces inside a quoted reasoning string
// don't throw off the depth count.
func firstBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
