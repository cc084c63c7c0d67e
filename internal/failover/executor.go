// Package failover implements the control flow that walks a resolved
// provider chain in strict order, applying model-format coercion,
// soft-failure detection, and a shared retry budget, until one entry
// succeeds or the chain is exhausted.
package failover

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/relaylane/router/internal/bus"
	"github.com/relaylane/router/internal/chain"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
	"github.com/relaylane/router/internal/usage"
)

// defaultRetryBudget is how many retryable (rate-limit/transport) failures
// the chain walk absorbs before giving up even with entries remaining.
const defaultRetryBudget = 3

// defaultMetaTalkMaxChars gates the agentic meta-talk heuristic: a response
// longer than this is assumed to be genuine prose, not a model describing
// a tool call it didn't make. No empirical basis; tunable.
const defaultMetaTalkMaxChars = 500

// metaTalkKeywords catches models that narrate an intended tool call
// instead of emitting one.
var metaTalkKeywords = []string{
	"tool call", "function call", "json format", "i would call",
	"i will call", "calling the", "invoke the", "```json",
}

var actionPatternRE = regexp.MustCompile(`"action"\s*:\s*"`)

// Classifier is the narrow view of internal/classifier.Classifier this
// package depends on.
type Classifier interface {
	Classify(ctx context.Context, req *routing.Request) routing.Classification
}

// ChainResolver is the narrow view of internal/chain.Resolver this package
// depends on.
type ChainResolver interface {
	ResolveChain(ctx context.Context, tier routing.Tier, userID string, opts chain.Options) routing.Chain
}

// HealthRecorder is the narrow view of internal/health.Tracker this package
// depends on.
type HealthRecorder interface {
	RecordSuccess(provider string)
	RecordFailure(provider string, err error)
}

// EventPublisher is the narrow view of *bus.Bus this package depends on.
type EventPublisher interface {
	Publish(event bus.Event) error
}

// ProviderLookup resolves a provider ID to its callable adapter.
type ProviderLookup func(providerID string) (providers.Provider, bool)

// Options parameterizes one process() call beyond what Request already
// carries: chain-shaping filters forwarded to the resolver.
type Options struct {
	chain.Options
}

// Config bundles an Executor's collaborators and tunables.
type Config struct {
	Classifier Classifier
	Resolver   ChainResolver
	Health     HealthRecorder
	Lookup     ProviderLookup
	Events     EventPublisher
	Log        *logging.Logger

	// RetryBudget caps how many retryable failures the chain walk absorbs.
	// Zero means defaultRetryBudget.
	RetryBudget int
	// MetaTalkMaxChars gates the agentic meta-talk heuristic. Zero means
	// defaultMetaTalkMaxChars.
	MetaTalkMaxChars int
}

// Executor implements C5: it never retries in parallel, never reorders a
// resolved chain, and surfaces only the last error on total exhaustion.
type Executor struct {
	classifier       Classifier
	resolver         ChainResolver
	health           HealthRecorder
	lookup           ProviderLookup
	events           EventPublisher
	log              *logging.Logger
	retryBudget      int
	metaTalkMaxChars int
}

// New builds an Executor from cfg, applying tunable defaults.
func New(cfg Config) *Executor {
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	retryBudget := cfg.RetryBudget
	if retryBudget <= 0 {
		retryBudget = defaultRetryBudget
	}
	metaTalkMaxChars := cfg.MetaTalkMaxChars
	if metaTalkMaxChars <= 0 {
		metaTalkMaxChars = defaultMetaTalkMaxChars
	}
	return &Executor{
		classifier:       cfg.Classifier,
		resolver:         cfg.Resolver,
		health:           cfg.Health,
		lookup:           cfg.Lookup,
		events:           cfg.Events,
		log:              log.WithComponent("failover"),
		retryBudget:      retryBudget,
		metaTalkMaxChars: metaTalkMaxChars,
	}
}

// Process classifies req, resolves its provider chain, and walks it in
// order until one entry succeeds or the chain (and retry budget) is
// exhausted.
func (e *Executor) Process(ctx context.Context, req *routing.Request, opts Options) (*routing.Result, error) {
	start := time.Now()
	requestID := uuid.NewString()

	classification := e.classifier.Classify(ctx, req)

	resolved := e.resolver.ResolveChain(ctx, classification.Tier, req.UserID, opts.Options)
	if len(resolved) == 0 {
		return nil, routing.NewClassifiedError(routing.ErrFatalInput, "",
			fmt.Errorf("%w: %s", routing.ErrEmptyChain, classification.Tier))
	}

	attempted := make([]string, 0, len(resolved))
	budget := e.retryBudget
	var finalErr error

	for i, entry := range resolved {
		attempted = append(attempted, entry.Provider)
		isLast := i == len(resolved)-1

		provider, ok := e.lookup(entry.Provider)
		if !ok {
			finalErr = routing.NewClassifiedError(routing.ErrFatalInput, entry.Provider, errors.New("provider not registered"))
			continue
		}

		chatReq := e.buildChatRequest(req, entry)

		resp, err := provider.Chat(ctx, chatReq)
		if err != nil {
			finalErr = err
			kind := routing.KindOf(err)
			if !kind.Soft() {
				e.health.RecordFailure(entry.Provider, err)
			}
			if kind.Retryable() {
				budget--
				if budget <= 0 {
					break
				}
			}
			continue
		}

		if soft, reason := e.isSoftFailure(req, resp); soft {
			if !isLast {
				e.log.WithField("provider", entry.Provider).WithField("reason", reason).Debug("soft failure, trying next entry")
				continue
			}
			finalErr = routing.NewClassifiedError(routing.ErrEmptyOrMeta, entry.Provider, errors.New(reason))
			e.health.RecordFailure(entry.Provider, finalErr)
			continue
		}

		e.health.RecordSuccess(entry.Provider)

		record := routing.UsageRecord{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			Provider:       entry.Provider,
			Model:          firstNonEmpty(resp.Model, chatReq.Model),
			InputTokens:    resp.PromptTokens,
			OutputTokens:   resp.CompletionTokens,
			CostUSD:        usage.EstimateCost(entry.Provider, firstNonEmpty(resp.Model, chatReq.Model), resp.PromptTokens, resp.CompletionTokens),
			AgentID:        req.AgentID,
			ConversationID: req.ConversationID,
			Timestamp:      time.Now().UTC(),
		}
		e.enqueueUsage(requestID, record)

		return &routing.Result{
			RequestID:          requestID,
			Content:            resp.Content,
			Model:              record.Model,
			Provider:           entry.Provider,
			Usage:              record,
			Classification:     classification,
			Duration:           time.Since(start),
			AttemptedProviders: attempted,
			ToolCalls:          resp.ToolCalls,
		}, nil
	}

	if finalErr == nil {
		finalErr = errors.New("chain exhausted with no successful entry")
	}
	e.notifyExhaustion(requestID, req.UserID, finalErr)
	return nil, finalErr
}

// buildChatRequest assembles the adapter-facing request, coercing the
// chain entry's model to the empty string (auto-select) when it violates
// the target provider's naming convention.
func (e *Executor) buildChatRequest(req *routing.Request, entry routing.ProviderEntry) *providers.ChatRequest {
	messages := req.Messages
	if len(messages) == 0 {
		if text := req.Text(); text != "" {
			messages = []routing.Message{{Role: "user", Content: text}}
		}
	}
	return &providers.ChatRequest{
		Model:       coerceModel(entry.Provider, entry.Model),
		Messages:    messages,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// coerceModel enforces the two provider naming rules from §4.5: Ollama
// model names never contain a slash, OpenRouter model names always do. A
// violation downgrades to empty (provider auto-select) rather than erroring.
func coerceModel(providerID, model string) string {
	if model == "" {
		return ""
	}
	switch providerID {
	case "ollama":
		if strings.Contains(model, "/") {
			return ""
		}
	case "openrouter":
		if !strings.Contains(model, "/") {
			return ""
		}
	}
	return model
}

// isSoftFailure detects the two soft-failure shapes: empty content with no
// native tool call, and agentic meta-talk (the model describes a tool call
// instead of making one).
func (e *Executor) isSoftFailure(req *routing.Request, resp *providers.ChatResponse) (bool, string) {
	hasToolCall := resp.UsedNativeTools || len(resp.ToolCalls) > 0
	if strings.TrimSpace(resp.Content) == "" && !hasToolCall {
		return true, "empty content, no tool call"
	}

	if req.AgenticMode && !hasToolCall && !actionPatternRE.MatchString(resp.Content) {
		if len(resp.Content) <= e.metaTalkMaxChars && containsMetaTalk(resp.Content) {
			return true, "meta-talk without tool call"
		}
	}

	return false, ""
}

func containsMetaTalk(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range metaTalkKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// enqueueUsage publishes the usage record onto the bus for the usage
// queue's background drain to pick up; publish failures are logged at
// debug and otherwise ignored, per §4.5's "non-blocking, failures logged
// at debug" rule.
func (e *Executor) enqueueUsage(requestID string, record routing.UsageRecord) {
	if e.events == nil {
		return
	}
	event := bus.NewEvent(bus.EventUsageRecorded)
	event.RequestID = requestID
	event.UserID = record.UserID
	event.Provider = record.Provider
	event.Blackboard = map[string]any{"usage": record}
	if err := e.events.Publish(event); err != nil {
		e.log.WithError(err).Debug("usage record publish failed")
	}
}

// notifyExhaustion publishes a generic chain-exhausted event on every
// total failure, plus a kind-specific payment/rate-limit event when the
// final error falls in one of those classes. The generic event is an
// internal housekeeping signal (metrics, logging subscribers); the
// kind-specific ones are the only ones meant to reach an end user, per
// §7's "transient network errors stay silent" rule.
func (e *Executor) notifyExhaustion(requestID, userID string, err error) {
	if e.events == nil {
		return
	}
	base := bus.NewEvent(bus.EventNotificationChainExhausted)
	base.RequestID = requestID
	base.UserID = userID
	base.Message = err.Error()
	if pubErr := e.events.Publish(base); pubErr != nil {
		e.log.WithError(pubErr).Debug("chain-exhausted notification publish failed")
	}

	kind := routing.KindOf(err)
	var eventType bus.EventType
	switch kind {
	case routing.ErrPayment:
		eventType = bus.EventNotificationPayment
	case routing.ErrRateLimit:
		eventType = bus.EventNotificationRateLimit
	default:
		return
	}

	notice := bus.NewEvent(eventType)
	notice.RequestID = requestID
	notice.UserID = userID
	notice.Message = err.Error()
	if pubErr := e.events.Publish(notice); pubErr != nil {
		e.log.WithError(pubErr).Debug("failure notification publish failed")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
