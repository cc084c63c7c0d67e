package chain

import (
	"context"
	"testing"

	"github.com/relaylane/router/internal/catalog"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHealth struct{ status map[string]routing.HealthStatus }

func (s stubHealth) StatusOf(provider string) routing.Health {
	return routing.Health{Status: s.status[provider]}
}

type stubPrefs struct {
	prefs routing.TaskRoutingPreferences
	ok    bool
}

func (s stubPrefs) TaskRoutingPreferencesFor(ctx context.Context, userID string) (routing.TaskRoutingPreferences, bool, error) {
	return s.prefs, s.ok, nil
}

type stubProvider struct {
	name      string
	available bool
}

func (p stubProvider) Name() string    { return p.name }
func (p stubProvider) Available() bool { return p.available }
func (p stubProvider) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	return nil, nil
}
func (p stubProvider) IsAuthenticated(cliType string) bool { return p.available }
func (p stubProvider) Execute(ctx context.Context, prompt string, opts providers.CLIOptions) (*providers.CLIResult, error) {
	return nil, nil
}

func lookupAlwaysAvailable(names ...string) ProviderLookup {
	m := make(map[string]providers.Provider, len(names))
	for _, n := range names {
		m[n] = stubProvider{name: n, available: true}
	}
	return func(id string) (providers.Provider, bool) {
		p, ok := m[id]
		return p, ok
	}
}

func TestResolveChainForceProviderShortCircuits(t *testing.T) {
	cat := catalog.New(logging.Nop())
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, stubPrefs{}, lookupAlwaysAvailable("custom-x"), logging.Nop())

	got := r.ResolveChain(context.Background(), routing.TierModerate, "u1", Options{ForceProvider: "custom-x"})
	require.Len(t, got, 1)
	assert.Equal(t, "custom-x", got[0].Provider)
	assert.True(t, got[0].IsPrimary)
}

func TestResolveChainPrependsUserPrimary(t *testing.T) {
	cat := catalog.New(logging.Nop())
	prefs := stubPrefs{ok: true, prefs: routing.TaskRoutingPreferences{
		PreferredByTier: map[routing.Tier]routing.TierPreference{
			routing.TierModerate: {Provider: "openrouter", Model: "meta-llama/llama-3.3-8b:free"},
		},
	}}
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, prefs, lookupAlwaysAvailable("ollama", "openrouter"), logging.Nop())

	got := r.ResolveChain(context.Background(), routing.TierModerate, "u1", Options{})
	require.NotEmpty(t, got)
	assert.Equal(t, "openrouter", got[0].Provider)
	assert.True(t, got[0].IsPrimary)
}

func TestResolveChainNoDuplicateProviders(t *testing.T) {
	cat := catalog.New(logging.Nop())
	prefs := stubPrefs{ok: true, prefs: routing.TaskRoutingPreferences{
		PreferredByTier: map[routing.Tier]routing.TierPreference{
			routing.TierTrivial: {Provider: "ollama"},
		},
	}}
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, prefs, lookupAlwaysAvailable("ollama", "openrouter", "cli-claude"), logging.Nop())

	got := r.ResolveChain(context.Background(), routing.TierTrivial, "u1", Options{})
	providers := got.Providers()
	seen := map[string]bool{}
	for _, p := range providers {
		assert.False(t, seen[p], "duplicate provider in resolved chain: %s", p)
		seen[p] = true
	}
}

func TestResolveChainCustomChainOverridesCatalogDefaults(t *testing.T) {
	cat := catalog.New(logging.Nop())
	prefs := stubPrefs{ok: true, prefs: routing.TaskRoutingPreferences{
		CustomChains: map[routing.Tier]routing.Chain{
			routing.TierCritical: {{Provider: "cli-claude"}},
		},
	}}
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, prefs, lookupAlwaysAvailable("cli-claude"), logging.Nop())

	got := r.ResolveChain(context.Background(), routing.TierCritical, "u1", Options{})
	require.Len(t, got, 1)
	assert.Equal(t, "cli-claude", got[0].Provider)
}

func TestResolveChainCustomChainNoDuplicateProviders(t *testing.T) {
	cat := catalog.New(logging.Nop())
	prefs := stubPrefs{ok: true, prefs: routing.TaskRoutingPreferences{
		CustomChains: map[routing.Tier]routing.Chain{
			routing.TierCritical: {
				{Provider: "cli-claude"},
				{Provider: "openrouter"},
				{Provider: "cli-claude"},
			},
		},
	}}
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, prefs, lookupAlwaysAvailable("cli-claude", "openrouter"), logging.Nop())

	got := r.ResolveChain(context.Background(), routing.TierCritical, "u1", Options{})
	require.Len(t, got, 2)
	assert.True(t, got[0].IsPrimary)
	seen := map[string]bool{}
	for _, p := range got.Providers() {
		assert.False(t, seen[p], "duplicate provider in resolved custom chain: %s", p)
		seen[p] = true
	}
}

func TestIsAvailableUnhealthyProviderExcluded(t *testing.T) {
	cat := catalog.New(logging.Nop())
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{"ollama": routing.HealthUnhealthy}}, stubPrefs{}, lookupAlwaysAvailable("ollama"), logging.Nop())

	available, reason := r.IsAvailable(context.Background(), "ollama", "u1")
	assert.False(t, available)
	assert.Contains(t, reason, "unhealthy")
}

func TestIsAvailableResolvesLegacyAlias(t *testing.T) {
	cat := catalog.New(logging.Nop())
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, stubPrefs{}, lookupAlwaysAvailable("openrouter"), logging.Nop())

	available, _ := r.IsAvailable(context.Background(), "openrouter-free", "u1")
	assert.True(t, available)
}

func TestAdminOverrideReplacesFallbacksNotPrimary(t *testing.T) {
	cat := catalog.New(logging.Nop())
	prefs := stubPrefs{ok: true, prefs: routing.TaskRoutingPreferences{
		PreferredByTier: map[routing.Tier]routing.TierPreference{
			routing.TierModerate: {Provider: "openrouter"},
		},
	}}
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, prefs, lookupAlwaysAvailable("openrouter", "cli-claude"), logging.Nop())
	r.SetAdminOverride(routing.TierModerate, []string{"cli-claude"})

	got := r.ResolveChain(context.Background(), routing.TierModerate, "u1", Options{})
	require.Len(t, got, 2)
	assert.Equal(t, "openrouter", got[0].Provider)
	assert.Equal(t, "cli-claude", got[1].Provider)
}

func TestClassifierChainForAppendsLocalSentinelWhenAbsent(t *testing.T) {
	cat := catalog.New(logging.Nop())
	prefs := stubPrefs{ok: true, prefs: routing.TaskRoutingPreferences{ClassifierChain: []string{"openrouter"}}}
	r := New(cat, stubHealth{status: map[string]routing.HealthStatus{}}, prefs, lookupAlwaysAvailable("openrouter"), logging.Nop())

	got := r.ClassifierChainFor("u1")
	assert.Equal(t, []string{"openrouter", "local"}, got)
}

func TestResolveSentinelExpandsLocal(t *testing.T) {
	got := ResolveSentinel([]string{"openrouter", "local"}, "ollama")
	assert.Equal(t, []string{"openrouter", "ollama"}, got)
}
