// Package config loads router configuration from a YAML file, overridable by
// environment variables, following the same viper/mapstructure layering the
// rest of the codebase uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object for the router process.
type Config struct {
	Catalog    CatalogConfig    `mapstructure:"catalog" yaml:"catalog"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Health     HealthConfig     `mapstructure:"health" yaml:"health"`
	Failover   FailoverConfig   `mapstructure:"failover" yaml:"failover"`
	Tools      ToolsConfig      `mapstructure:"tools" yaml:"tools"`
	AsyncCLI   AsyncCLIConfig   `mapstructure:"async_cli" yaml:"async_cli"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CatalogConfig selects the active strategy preset and any provider
// overrides applied on top of the built-in catalog.
type CatalogConfig struct {
	// ActivePreset is one of "default", "cost-optimized", "quality-optimized".
	ActivePreset string `mapstructure:"active_preset" yaml:"active_preset"`
}

// ClassifierConfig tunes the keyword and AI classification stages.
type ClassifierConfig struct {
	// AITimeoutSec is the AI classification per-attempt timeout in seconds
	// (default 15). The classifier does not read it: its per-entry deadline
	// is its own fixed 15 s constant.
	AITimeoutSec int `mapstructure:"ai_timeout_sec" yaml:"ai_timeout_sec"`
	// ChainCacheTTLSec is how long a resolved classifier chain is cached per user (default 30).
	ChainCacheTTLSec int `mapstructure:"chain_cache_ttl_sec" yaml:"chain_cache_ttl_sec"`
	// LocalSafetyNetModel names the local safety-net model (default qwen3:8b).
	// No component reads it: the entry auto-appended to an AI classifier chain
	// lacking a local entry is the "local" sentinel, not this model name.
	LocalSafetyNetModel string `mapstructure:"local_safety_net_model" yaml:"local_safety_net_model"`
}

// HealthConfig tunes the passive/active health tracker.
type HealthConfig struct {
	// ProbeIntervalSec is how often runProbes fires (default 60).
	ProbeIntervalSec int `mapstructure:"probe_interval_sec" yaml:"probe_interval_sec"`
}

// FailoverConfig tunes the failover executor.
type FailoverConfig struct {
	// RetryBudget is the shared retryable-error budget per request (default 3).
	RetryBudget int `mapstructure:"retry_budget" yaml:"retry_budget"`
	// MetaTalkMaxChars bounds the soft-failure meta-talk heuristic (default 500).
	MetaTalkMaxChars int `mapstructure:"meta_talk_max_chars" yaml:"meta_talk_max_chars"`
}

// ToolsConfig tunes the tool dispatcher's timeouts and security policy.
type ToolsConfig struct {
	GenericTimeoutSec int `mapstructure:"generic_timeout_sec" yaml:"generic_timeout_sec"`
	ShellTimeoutSec   int `mapstructure:"shell_timeout_sec" yaml:"shell_timeout_sec"`
	CLISyncCeilingSec int `mapstructure:"cli_sync_ceiling_sec" yaml:"cli_sync_ceiling_sec"`
	AsyncThresholdSec int `mapstructure:"async_threshold_sec" yaml:"async_threshold_sec"`

	// BashDestructivePatterns/BashNetworkPatterns/BashSystemPatterns are RE2
	// regexes that classify a shell command's risk level (bash.go's
	// AssessRisk). BashDestructivePatterns and BashSystemPatterns both raise
	// RiskHigh; BashNetworkPatterns raises RiskMedium.
	BashDestructivePatterns []string `mapstructure:"bash_destructive_patterns" yaml:"bash_destructive_patterns"`
	BashNetworkPatterns     []string `mapstructure:"bash_network_patterns" yaml:"bash_network_patterns"`
	BashSystemPatterns      []string `mapstructure:"bash_system_patterns" yaml:"bash_system_patterns"`

	// ReadBlockedPaths/WriteBlockedPaths are RE2 regexes matched against a
	// resolved absolute path; a match rejects the read/write outright.
	ReadBlockedPaths  []string `mapstructure:"read_blocked_paths" yaml:"read_blocked_paths"`
	WriteBlockedPaths []string `mapstructure:"write_blocked_paths" yaml:"write_blocked_paths"`
}

// AsyncCLIConfig tunes the async CLI manager.
type AsyncCLIConfig struct {
	StaleThresholdSec int      `mapstructure:"stale_threshold_sec" yaml:"stale_threshold_sec"`
	WorkspaceExcludes []string `mapstructure:"workspace_excludes" yaml:"workspace_excludes"`
}

// StoreConfig points at the reference sqlite-backed persistent state store.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LoggingConfig controls the shared logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when no file is present, matching
// the defaults named throughout the design.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{ActivePreset: "default"},
		Classifier: ClassifierConfig{
			AITimeoutSec:         15,
			ChainCacheTTLSec:     30,
			LocalSafetyNetModel:  "qwen3:8b",
		},
		Health: HealthConfig{ProbeIntervalSec: 60},
		Failover: FailoverConfig{
			RetryBudget:      3,
			MetaTalkMaxChars: 500,
		},
		Tools: ToolsConfig{
			GenericTimeoutSec: 30,
			ShellTimeoutSec:   60,
			CLISyncCeilingSec: 180,
			AsyncThresholdSec: 210, // 3.5 min
			BashDestructivePatterns: []string{
				`rm\s+-[rf]*\s+`,
				`rmdir\s+`,
				`>\s*/`,
				`dd\s+`,
				`mkfs\b`,
				`fdisk\b`,
				`chmod\s+-R\s+`,
				`chown\s+-R\s+`,
				`truncate\s+`,
				`shred\s+`,
				`>\s*\|?\s*/dev/(sd|hd)`,
				`:()\s*\{\s*:\|:&\s*\}\s*;`,
			},
			BashNetworkPatterns: []string{
				`curl\s+`,
				`wget\s+`,
				`nc\s+`,
				`ncat\s+`,
				`ssh\s+`,
				`scp\s+`,
				`rsync\s+`,
				`ftp\s+`,
				`sftp\s+`,
				`telnet\s+`,
				`ping\s+`,
				`traceroute\s+`,
				`nmap\s+`,
			},
			BashSystemPatterns: []string{
				`sudo\s+`,
				`su\s+`,
				`systemctl\s+`,
				`service\s+`,
				`apt(-get)?\s+`,
				`yum\s+`,
				`dnf\s+`,
				`brew\s+`,
				`npm\s+install\s+-g`,
				`pip\s+install\s+`,
				`mount\s+`,
				`umount\s+`,
				`kill\s+`,
				`pkill\s+`,
				`killall\s+`,
				`reboot\b`,
				`shutdown\b`,
				`halt\b`,
				`poweroff\b`,
			},
			ReadBlockedPaths: []string{
				`/etc/shadow`,
				`/etc/passwd`,
				`\.ssh/id_`,
				`\.ssh/authorized_keys`,
				`\.aws/credentials`,
				`\.kube/config`,
				`\.netrc`,
				`\.npmrc`,
				`\.pypirc`,
				`\.env$`,
				`\.env\.local$`,
				`credentials\.json$`,
				`secrets\.ya?ml$`,
			},
			WriteBlockedPaths: []string{
				`^/etc/`,
				`^/usr/`,
				`^/bin/`,
				`^/sbin/`,
				`^/boot/`,
				`^/sys/`,
				`^/proc/`,
				`^/dev/`,
				`\.ssh/`,
			},
		},
		AsyncCLI: AsyncCLIConfig{
			StaleThresholdSec: 300,
			WorkspaceExcludes: []string{"node_modules", ".git"},
		},
		Store:   StoreConfig{DSN: "file:router.db?mode=memory&cache=shared"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from path, merging environment variable overrides
// under the ROUTER_ prefix (e.g. ROUTER_FAILOVER_RETRY_BUDGET). A missing
// file is not an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v, Default())

	if path != "" {
		path = expandPath(path)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults seeds viper's own default layer so that unset keys in a
// partial config file still resolve to sane values after Unmarshal.
func applyDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("catalog.active_preset", d.Catalog.ActivePreset)
	v.SetDefault("classifier.ai_timeout_sec", d.Classifier.AITimeoutSec)
	v.SetDefault("classifier.chain_cache_ttl_sec", d.Classifier.ChainCacheTTLSec)
	v.SetDefault("classifier.local_safety_net_model", d.Classifier.LocalSafetyNetModel)
	v.SetDefault("health.probe_interval_sec", d.Health.ProbeIntervalSec)
	v.SetDefault("failover.retry_budget", d.Failover.RetryBudget)
	v.SetDefault("failover.meta_talk_max_chars", d.Failover.MetaTalkMaxChars)
	v.SetDefault("tools.generic_timeout_sec", d.Tools.GenericTimeoutSec)
	v.SetDefault("tools.shell_timeout_sec", d.Tools.ShellTimeoutSec)
	v.SetDefault("tools.cli_sync_ceiling_sec", d.Tools.CLISyncCeilingSec)
	v.SetDefault("tools.async_threshold_sec", d.Tools.AsyncThresholdSec)
	v.SetDefault("tools.bash_destructive_patterns", d.Tools.BashDestructivePatterns)
	v.SetDefault("tools.bash_network_patterns", d.Tools.BashNetworkPatterns)
	v.SetDefault("tools.bash_system_patterns", d.Tools.BashSystemPatterns)
	v.SetDefault("tools.read_blocked_paths", d.Tools.ReadBlockedPaths)
	v.SetDefault("tools.write_blocked_paths", d.Tools.WriteBlockedPaths)
	v.SetDefault("async_cli.stale_threshold_sec", d.AsyncCLI.StaleThresholdSec)
	v.SetDefault("async_cli.workspace_excludes", d.AsyncCLI.WorkspaceExcludes)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate catches contradictory settings before the router starts.
func (c *Config) Validate() error {
	validPresets := map[string]bool{"default": true, "cost-optimized": true, "quality-optimized": true}
	if !validPresets[c.Catalog.ActivePreset] {
		return fmt.Errorf("invalid catalog.active_preset %q, must be one of: default, cost-optimized, quality-optimized", c.Catalog.ActivePreset)
	}
	if c.Classifier.AITimeoutSec <= 0 {
		return fmt.Errorf("classifier.ai_timeout_sec must be positive")
	}
	if c.Failover.RetryBudget <= 0 {
		return fmt.Errorf("failover.retry_budget must be positive")
	}
	if c.Health.ProbeIntervalSec <= 0 {
		return fmt.Errorf("health.probe_interval_sec must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging.level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// AITimeout returns the classifier AI stage deadline as a time.Duration.
func (c *ClassifierConfig) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSec) * time.Second
}

// ChainCacheTTL returns the classifier chain cache TTL as a time.Duration.
func (c *ClassifierConfig) ChainCacheTTL() time.Duration {
	return time.Duration(c.ChainCacheTTLSec) * time.Second
}

// ProbeInterval returns the health probe interval as a time.Duration.
func (c *HealthConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSec) * time.Second
}

// StaleThreshold returns the async job staleness threshold as a time.Duration.
func (c *AsyncCLIConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdSec) * time.Second
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
