// Package catalog is the static-plus-dynamic registry of provider
// capabilities and their default strategy chains per difficulty tier. It is
// pure configuration: no network calls; the only runtime state it mutates is
// the set of profiles added through RegisterProfile and which strategy
// preset is currently active.
package catalog

import (
	"fmt"
	"sync"

	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/routing"
)

// Preset names the three strategy presets the catalog ships with. Exactly
// one is active at any moment.
type Preset string

const (
	PresetDefault          Preset = "default"
	PresetCostOptimized    Preset = "cost-optimized"
	PresetQualityOptimized Preset = "quality-optimized"
)

// ChainOptions filters a catalog's default chain for a tier.
type ChainOptions struct {
	ExcludeProviders map[string]bool
	RequireLocal     bool
	RequireFree      bool
	RequireCLI       bool
}

// providerAliases maps legacy provider IDs to their canonical form. The
// product decision (SPEC_FULL §9) is to keep this alias at the lookup
// boundary rather than reject the legacy IDs outright.
var providerAliases = map[string]string{
	"openrouter-free": "openrouter",
	"openrouter-paid": "openrouter",
}

// Canonical resolves a provider ID through the legacy alias table.
func Canonical(providerID string) string {
	if canon, ok := providerAliases[providerID]; ok {
		return canon
	}
	return providerID
}

// Catalog is the provider profile registry and per-tier default chains.
type Catalog struct {
	mu       sync.RWMutex
	profiles map[string]routing.ProviderProfile
	chains   map[Preset]map[routing.Tier][]string
	active   Preset
	log      *logging.Logger
}

// New builds a Catalog seeded with the built-in provider profiles and the
// three named strategy presets.
func New(log *logging.Logger) *Catalog {
	if log == nil {
		log = logging.Nop()
	}
	c := &Catalog{
		profiles: defaultProfiles(),
		chains:   defaultChains(),
		active:   PresetDefault,
		log:      log.WithComponent("catalog"),
	}
	return c
}

func defaultProfiles() map[string]routing.ProviderProfile {
	return map[string]routing.ProviderProfile{
		"ollama": {
			ID: "ollama", Type: routing.ProviderTypeLocal, Cost: routing.CostFree,
			Latency: routing.LatencyFast, MaxTokens: 32768, RequiresAuth: false, IsLocal: true,
			Capabilities: map[string]bool{"chat": true, "tools": true},
		},
		"openrouter": {
			ID: "openrouter", Type: routing.ProviderTypeAPI, Cost: routing.CostVariable,
			Latency: routing.LatencyMedium, MaxTokens: 128000, RequiresAuth: true, IsLocal: false,
			SupportsMultiModel: true,
			Capabilities:       map[string]bool{"chat": true, "tools": true, "vision": true},
		},
		"cli-claude": {
			ID: "cli-claude", Type: routing.ProviderTypeCLI, Cost: routing.CostPaid,
			Latency: routing.LatencySlow, MaxTokens: 200000, RequiresAuth: true, IsLocal: false,
			Capabilities: map[string]bool{"chat": true, "tools": true, "agentic": true},
		},
		"cli-gemini": {
			ID: "cli-gemini", Type: routing.ProviderTypeCLI, Cost: routing.CostPaid,
			Latency: routing.LatencySlow, MaxTokens: 1000000, RequiresAuth: true, IsLocal: false,
			Capabilities: map[string]bool{"chat": true, "tools": true, "agentic": true},
		},
		"cli-opencode": {
			ID: "cli-opencode", Type: routing.ProviderTypeCLI, Cost: routing.CostPaid,
			Latency: routing.LatencySlow, MaxTokens: 128000, RequiresAuth: true, IsLocal: false,
			Capabilities: map[string]bool{"chat": true, "tools": true, "agentic": true},
		},
	}
}

// defaultChains returns the built-in per-preset, per-tier provider order.
// Lower tiers favor the free local model; higher tiers favor paid CLI
// agents capable of multi-step work.
func defaultChains() map[Preset]map[routing.Tier][]string {
	return map[Preset]map[routing.Tier][]string{
		PresetDefault: {
			routing.TierTrivial:  {"ollama", "openrouter"},
			routing.TierSimple:   {"ollama", "openrouter"},
			routing.TierModerate: {"openrouter", "ollama"},
			routing.TierComplex:  {"openrouter", "cli-claude"},
			routing.TierCritical: {"cli-claude", "openrouter"},
		},
		PresetCostOptimized: {
			routing.TierTrivial:  {"ollama"},
			routing.TierSimple:   {"ollama", "openrouter"},
			routing.TierModerate: {"ollama", "openrouter"},
			routing.TierComplex:  {"openrouter", "ollama"},
			routing.TierCritical: {"openrouter", "cli-claude"},
		},
		PresetQualityOptimized: {
			routing.TierTrivial:  {"openrouter", "ollama"},
			routing.TierSimple:   {"openrouter", "ollama"},
			routing.TierModerate: {"openrouter", "cli-claude"},
			routing.TierComplex:  {"cli-claude", "openrouter"},
			routing.TierCritical: {"cli-claude", "cli-gemini"},
		},
	}
}

// ProfileOf returns the static capability profile for providerID, resolving
// legacy aliases first.
func (c *Catalog) ProfileOf(providerID string) (routing.ProviderProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[Canonical(providerID)]
	return p, ok
}

// RegisterProfile adds or replaces a provider profile, for user-registered
// custom providers.
func (c *Catalog) RegisterProfile(p routing.ProviderProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.ID] = p
}

// ActivePreset returns the name of the currently active strategy preset.
func (c *Catalog) ActivePreset() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return string(c.active)
}

// SetPreset switches the active strategy preset.
func (c *Catalog) SetPreset(name string) error {
	preset := Preset(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chains[preset]; !ok {
		return fmt.Errorf("unknown preset %q", name)
	}
	c.active = preset
	c.log.Infof("strategy preset changed to %s", name)
	return nil
}

// DefaultChainFor returns the catalog's default provider-ID chain for tier
// under the active preset, honoring the given filters. Providers are
// skipped (not substituted) when a filter excludes them, so the caller may
// end up with a shorter chain, never a malformed one.
func (c *Catalog) DefaultChainFor(tier routing.Tier, opts ChainOptions) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	raw := c.chains[c.active][tier]
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		if opts.ExcludeProviders != nil && opts.ExcludeProviders[id] {
			continue
		}
		profile, ok := c.profiles[Canonical(id)]
		if !ok {
			continue
		}
		if opts.RequireLocal && !profile.IsLocal {
			continue
		}
		if opts.RequireFree && profile.Cost != routing.CostFree {
			continue
		}
		if opts.RequireCLI && profile.Type != routing.ProviderTypeCLI {
			continue
		}
		out = append(out, id)
	}
	return out
}
