// Package routing holds the data model shared by every router component:
// the request/response shapes, the provider chain vocabulary, health
// records, and the error taxonomy used for failover decisions. It has no
// behavior of its own — catalog, health, classifier, chain, and failover all
// depend on it rather than on each other.
package routing

import "time"

// Tier is one of five enumerated complexity classes assigned to a request.
// It determines which provider chain is selected.
type Tier string

const (
	TierTrivial  Tier = "trivial"
	TierSimple   Tier = "simple"
	TierModerate Tier = "moderate"
	TierComplex  Tier = "complex"
	TierCritical Tier = "critical"
)

// Tiers lists every valid tier in ascending order of difficulty.
var Tiers = []Tier{TierTrivial, TierSimple, TierModerate, TierComplex, TierCritical}

// Valid reports whether t is one of the five enumerated tiers.
func (t Tier) Valid() bool {
	for _, candidate := range Tiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// Message is a single role/content pair in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TriggerContext describes the conversation a request originated from, so
// that tool results produced out-of-band (async CLI delivery) can be routed
// back to the right place.
type TriggerContext struct {
	AccountID      string `json:"accountId,omitempty"`
	ExternalID     string `json:"externalId,omitempty"`
	Platform       string `json:"platform,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Request is the immutable input to a single process() invocation.
type Request struct {
	Task     string    `json:"task,omitempty"`
	Messages []Message `json:"messages,omitempty"`

	UserID         string `json:"userId"`
	AgentID        string `json:"agentId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`

	ForceProvider string `json:"forceProvider,omitempty"`
	ForceTier     Tier   `json:"forceTier,omitempty"`

	Tools []ToolDefinition `json:"tools,omitempty"`

	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`

	AgenticMode bool `json:"agenticMode,omitempty"`

	TriggerContext *TriggerContext `json:"_triggerContext,omitempty"`
}

// Text returns the text the classifier should score: the task string if
// present, otherwise the content of the last message.
func (r *Request) Text() string {
	if r.Task != "" {
		return r.Task
	}
	if len(r.Messages) > 0 {
		return r.Messages[len(r.Messages)-1].Content
	}
	return ""
}

// ClassificationSource records which stage ultimately produced a
// Classification.
type ClassificationSource string

const (
	SourceLocal               ClassificationSource = "local"
	SourceAI                  ClassificationSource = "ai"
	SourceLocalChainExhausted ClassificationSource = "local-chain-exhausted"
)

// Classification is the result of running a Request through the task
// classifier. Exactly one tier is chosen; confidence is monotone
// nondecreasing in the margin between the top two scores.
type Classification struct {
	Tier               Tier                 `json:"tier"`
	Confidence         float64              `json:"confidence"`
	Scores             map[Tier]float64     `json:"scores"`
	Source             ClassificationSource `json:"source"`
	ClassifierProvider string               `json:"classifierProvider,omitempty"`
	Reasoning          string               `json:"reasoning,omitempty"`
}

// ProviderEntry is one link in a resolved provider chain. Model is empty
// when the provider should auto-select.
type ProviderEntry struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
}

// Chain is an ordered sequence of ProviderEntry; the first is primary, the
// remainder are fallbacks.
type Chain []ProviderEntry

// Providers returns the distinct provider IDs present in the chain, in
// order of first appearance.
func (c Chain) Providers() []string {
	seen := make(map[string]bool, len(c))
	out := make([]string, 0, len(c))
	for _, e := range c {
		if seen[e.Provider] {
			continue
		}
		seen[e.Provider] = true
		out = append(out, e.Provider)
	}
	return out
}

// TierPreference is a user's configured provider/model pair for one tier.
type TierPreference struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// TaskRoutingPreferences is one user's Task-Routing settings: a preferred
// provider/model per tier, an optional full custom failover chain per tier
// (overriding the catalog defaults entirely for that tier), and whether AI
// classification is enabled for this user.
type TaskRoutingPreferences struct {
	UserID           string                  `json:"userId"`
	PreferredByTier  map[Tier]TierPreference `json:"preferredByTier,omitempty"`
	CustomChains     map[Tier]Chain          `json:"customChains,omitempty"`
	AIClassification bool                    `json:"aiClassification,omitempty"`
	ClassifierChain  []string                `json:"classifierChain,omitempty"`
}

// HealthStatus is one of the four states a provider's health can be in.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is one provider's health record.
type Health struct {
	Status            HealthStatus `json:"status"`
	ConsecutiveErrors int          `json:"consecutiveErrors"`
	LastError         string       `json:"lastError,omitempty"`
	LastErrorTime     time.Time    `json:"lastErrorTime,omitempty"`
	LastCheck         time.Time    `json:"lastCheck,omitempty"`
}

// ProviderType distinguishes how a provider is reached.
type ProviderType string

const (
	ProviderTypeLocal ProviderType = "local"
	ProviderTypeAPI   ProviderType = "api"
	ProviderTypeCLI   ProviderType = "cli"
)

// CostClass is the billing shape of a provider.
type CostClass string

const (
	CostFree     CostClass = "free"
	CostVariable CostClass = "variable"
	CostPaid     CostClass = "paid"
)

// LatencyClass is a coarse latency bucket used for chain ordering heuristics.
type LatencyClass string

const (
	LatencyFast   LatencyClass = "fast"
	LatencyMedium LatencyClass = "medium"
	LatencySlow   LatencyClass = "slow"
)

// ProviderProfile describes a provider's static capabilities, independent of
// any one user's configuration.
type ProviderProfile struct {
	ID                 string
	Type               ProviderType
	Cost               CostClass
	Latency            LatencyClass
	Capabilities       map[string]bool
	MaxTokens          int
	RequiresAuth       bool
	IsLocal            bool
	SupportsMultiModel bool
}

// UsageRecord is written by the failover executor and owned by the storage
// layer thereafter; the core never reads it back.
type UsageRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	InputTokens    int       `json:"inputTokens"`
	OutputTokens   int       `json:"outputTokens"`
	CostUSD        float64   `json:"costUsd"`
	AgentID        string    `json:"agentId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Result is what process(req) returns on success.
type Result struct {
	RequestID          string           `json:"requestId"`
	Content            string           `json:"content"`
	Model              string           `json:"model"`
	Provider           string           `json:"provider"`
	Usage              UsageRecord      `json:"usage"`
	Classification     Classification   `json:"classification"`
	Duration           time.Duration    `json:"duration"`
	AttemptedProviders []string         `json:"attemptedProviders"`
	ToolCalls          []ToolCallResult `json:"toolCalls,omitempty"`
}

// ToolCallResult is a native tool call a provider chose to make instead of
// (or alongside) returning text content.
type ToolCallResult struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ParamType is a tool parameter's declared type, drawn from a closed set.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
	ParamAny     ParamType = "any"
)

// ParamSpec describes one named tool parameter.
type ParamSpec struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Optional    bool      `json:"optional,omitempty"`
}

// ToolDefinition describes a tool a provider may call natively.
type ToolDefinition struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Category       string               `json:"category,omitempty"`
	Parameters     map[string]ParamSpec `json:"parameters"`
	RequiredParams []string             `json:"requiredParams"`
	RequiresAuth   bool                 `json:"requiresAuth,omitempty"`
}

// ToolContext is injected into a tool invocation; the dispatcher never
// mutates it, executors only ever read from it.
type ToolContext struct {
	UserID         string
	AgenticID      string
	ConversationID string
	AccountID      string
	ExternalID     string
	Platform       string
	TriggerContext *TriggerContext
}

// DeliveryTarget names where an asynchronous job's result should be sent.
type DeliveryTarget struct {
	AccountID  string `json:"accountId"`
	ExternalID string `json:"externalId"`
	Platform   string `json:"platform"`
}

// AsyncJobStatus is the lifecycle state of an async CLI job.
type AsyncJobStatus string

const (
	JobRunning   AsyncJobStatus = "running"
	JobCompleted AsyncJobStatus = "completed"
	JobTimedOut  AsyncJobStatus = "timedOut"
	JobFailed    AsyncJobStatus = "failed"
	JobCancelled AsyncJobStatus = "cancelled"
)

// AsyncCLIJob is a long-running CLI invocation owned exclusively by the
// async CLI manager from submission until result delivery. The caller only
// ever sees the TrackingID.
type AsyncCLIJob struct {
	TrackingID     string         `json:"trackingId"`
	CLIType        string         `json:"cliType"`
	Command        string         `json:"command"`
	WorkspacePath  string         `json:"workspacePath"`
	UserID         string         `json:"userId"`
	AgenticID      string         `json:"agenticId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	DeliveryTarget DeliveryTarget `json:"deliveryTarget"`

	// WorkspaceSnapshot is the set of file paths (relative to WorkspacePath)
	// present before the process was dispatched.
	WorkspaceSnapshot map[string]struct{} `json:"-"`

	TimeoutMs        int64          `json:"timeoutMs"`
	StaleThresholdMs int64          `json:"staleThresholdMs"`
	StartedAt        time.Time      `json:"startedAt"`
	Status           AsyncJobStatus `json:"status"`
}
