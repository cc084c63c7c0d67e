package catalog

import (
	"testing"

	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog() *Catalog {
	return New(logging.Nop())
}

func TestProfileOfResolvesAlias(t *testing.T) {
	c := newTestCatalog()
	p, ok := c.ProfileOf("openrouter-free")
	require.True(t, ok)
	assert.Equal(t, "openrouter", p.ID)
}

func TestDefaultChainForTrivialPrefersOllama(t *testing.T) {
	c := newTestCatalog()
	chain := c.DefaultChainFor(routing.TierTrivial, ChainOptions{})
	require.NotEmpty(t, chain)
	assert.Equal(t, "ollama", chain[0])
}

func TestDefaultChainForRequireFreeFiltersPaidProviders(t *testing.T) {
	c := newTestCatalog()
	chain := c.DefaultChainFor(routing.TierCritical, ChainOptions{RequireFree: true})
	for _, id := range chain {
		profile, ok := c.ProfileOf(id)
		require.True(t, ok)
		assert.Equal(t, routing.CostFree, profile.Cost)
	}
}

func TestSetPresetRejectsUnknown(t *testing.T) {
	c := newTestCatalog()
	assert.Error(t, c.SetPreset("bogus"))
	assert.Equal(t, "default", c.ActivePreset())
}

func TestSetPresetSwitchesActiveChain(t *testing.T) {
	c := newTestCatalog()
	require.NoError(t, c.SetPreset(string(PresetQualityOptimized)))
	assert.Equal(t, "quality-optimized", c.ActivePreset())

	chain := c.DefaultChainFor(routing.TierTrivial, ChainOptions{})
	assert.Equal(t, "openrouter", chain[0], "quality preset favors cloud even at trivial tier")
}

func TestRegisterProfileAddsCustomProvider(t *testing.T) {
	c := newTestCatalog()
	c.RegisterProfile(routing.ProviderProfile{ID: "local-agent", Type: routing.ProviderTypeLocal, IsLocal: true})
	p, ok := c.ProfileOf("local-agent")
	require.True(t, ok)
	assert.True(t, p.IsLocal)
}

func TestExcludeProvidersFilter(t *testing.T) {
	c := newTestCatalog()
	chain := c.DefaultChainFor(routing.TierTrivial, ChainOptions{ExcludeProviders: map[string]bool{"ollama": true}})
	assert.NotContains(t, chain, "ollama")
}
