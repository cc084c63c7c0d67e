package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ProviderSettings is one row of the user-provider settings table:
// (userId, type) -> {config, baseUrl, models, apiKey, isActive}.
type ProviderSettings struct {
	Config   string
	BaseURL  string
	Models   string
	APIKey   string
	IsActive bool
}

// ProviderSettingsFor reads a user's settings for one custom provider type
// (ollama, openrouter, google, local-agent). ok=false means no row exists.
func (s *Store) ProviderSettingsFor(ctx context.Context, userID, providerType string) (ProviderSettings, bool, error) {
	var out ProviderSettings
	var isActive int
	row := s.db.QueryRowContext(ctx,
		`SELECT config, base_url, models, api_key, is_active FROM provider_settings WHERE user_id = ? AND type = ?`,
		userID, providerType)
	switch err := row.Scan(&out.Config, &out.BaseURL, &out.Models, &out.APIKey, &isActive); {
	case errors.Is(err, sql.ErrNoRows):
		return ProviderSettings{}, false, nil
	case err != nil:
		return ProviderSettings{}, false, fmt.Errorf("read provider_settings: %w", err)
	}
	out.IsActive = isActive != 0
	return out, true, nil
}

// CLIToolSettings is one row of the per-user CLI-tool settings table.
type CLIToolSettings struct {
	PreferredModel string
	FallbackModel  string
	TimeoutSeconds int
	MaxTokens      int
	Temperature    float64
	Settings       string
}

// CLIToolSettingsFor reads a user's settings for one cliType. ok=false
// means no row exists and the caller should fall back to built-in defaults.
func (s *Store) CLIToolSettingsFor(ctx context.Context, userID, cliType string) (CLIToolSettings, bool, error) {
	var out CLIToolSettings
	row := s.db.QueryRowContext(ctx,
		`SELECT preferred_model, fallback_model, timeout_seconds, max_tokens, temperature, settings
		 FROM cli_tool_settings WHERE user_id = ? AND cli_type = ?`,
		userID, cliType)
	switch err := row.Scan(&out.PreferredModel, &out.FallbackModel, &out.TimeoutSeconds, &out.MaxTokens, &out.Temperature, &out.Settings); {
	case errors.Is(err, sql.ErrNoRows):
		return CLIToolSettings{}, false, nil
	case err != nil:
		return CLIToolSettings{}, false, fmt.Errorf("read cli_tool_settings: %w", err)
	}
	return out, true, nil
}
