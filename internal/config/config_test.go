package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Catalog.ActivePreset)
	assert.Equal(t, 3, cfg.Failover.RetryBudget)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.yaml")
	content := "failover:\n  retry_budget: 5\ncatalog:\n  active_preset: cost-optimized\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Failover.RetryBudget)
	assert.Equal(t, "cost-optimized", cfg.Catalog.ActivePreset)
	assert.Equal(t, 15, cfg.Classifier.AITimeoutSec, "unset keys still take their default")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ROUTER_FAILOVER_RETRY_BUDGET", "7")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Failover.RetryBudget)
}

func TestValidateRejectsBadPreset(t *testing.T) {
	cfg := Default()
	cfg.Catalog.ActivePreset = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestDefaultPopulatesToolSecurityPolicy(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.Tools.BashDestructivePatterns)
	assert.NotEmpty(t, cfg.Tools.BashNetworkPatterns)
	assert.NotEmpty(t, cfg.Tools.BashSystemPatterns)
	assert.NotEmpty(t, cfg.Tools.ReadBlockedPaths)
	assert.NotEmpty(t, cfg.Tools.WriteBlockedPaths)
}

func TestLoadMissingFileKeepsToolSecurityPolicyDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Tools.BashDestructivePatterns, cfg.Tools.BashDestructivePatterns)
	assert.Equal(t, Default().Tools.ReadBlockedPaths, cfg.Tools.ReadBlockedPaths)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 15e9, float64(cfg.Classifier.AITimeout()))
	assert.Equal(t, 60e9, float64(cfg.Health.ProbeInterval()))
}
