package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaylane/router/internal/routing"
	"gopkg.in/yaml.v3"
)

// TaskRoutingPreferencesFor implements chain.PreferencesSource: a missing
// user returns ok=false so the resolver falls back to catalog defaults
// only, never an error.
func (s *Store) TaskRoutingPreferencesFor(ctx context.Context, userID string) (routing.TaskRoutingPreferences, bool, error) {
	prefs := routing.TaskRoutingPreferences{
		UserID:          userID,
		PreferredByTier: make(map[routing.Tier]routing.TierPreference),
		CustomChains:    make(map[routing.Tier]routing.Chain),
	}

	var aiClassification int
	var classifierChainJSON sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT ai_classification, classifier_chain_json FROM task_routing_users WHERE user_id = ?`, userID)
	switch err := row.Scan(&aiClassification, &classifierChainJSON); {
	case errors.Is(err, sql.ErrNoRows):
		return routing.TaskRoutingPreferences{}, false, nil
	case err != nil:
		return routing.TaskRoutingPreferences{}, false, fmt.Errorf("read task_routing_users: %w", err)
	}
	prefs.AIClassification = aiClassification != 0
	if classifierChainJSON.Valid && classifierChainJSON.String != "" {
		if err := json.Unmarshal([]byte(classifierChainJSON.String), &prefs.ClassifierChain); err != nil {
			return routing.TaskRoutingPreferences{}, false, fmt.Errorf("decode classifier_chain_json: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, provider, model, custom_chain_yaml FROM task_routing_tiers WHERE user_id = ?`, userID)
	if err != nil {
		return routing.TaskRoutingPreferences{}, false, fmt.Errorf("read task_routing_tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var provider, model, customChainYAML sql.NullString
		if err := rows.Scan(&tier, &provider, &model, &customChainYAML); err != nil {
			return routing.TaskRoutingPreferences{}, false, fmt.Errorf("scan task_routing_tiers row: %w", err)
		}
		t := routing.Tier(tier)
		if provider.Valid && provider.String != "" {
			prefs.PreferredByTier[t] = routing.TierPreference{Provider: provider.String, Model: model.String}
		}
		if customChainYAML.Valid && customChainYAML.String != "" {
			chain, err := decodeCustomChain(customChainYAML.String)
			if err != nil {
				return routing.TaskRoutingPreferences{}, false, fmt.Errorf("decode custom_chain_yaml for tier %s: %w", tier, err)
			}
			prefs.CustomChains[t] = chain
		}
	}
	if err := rows.Err(); err != nil {
		return routing.TaskRoutingPreferences{}, false, fmt.Errorf("iterate task_routing_tiers: %w", err)
	}

	return prefs, true, nil
}

// decodeCustomChain decodes a customFailoverChain[tier] YAML document. Per
// §4.4 step 3, entries may be bare provider-name strings (upgraded to
// {provider, model: null}) or full {provider, model} mappings.
func decodeCustomChain(doc string) (routing.Chain, error) {
	var raw []interface{}
	if err := yaml.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, err
	}

	chain := make(routing.Chain, 0, len(raw))
	for i, entry := range raw {
		switch v := entry.(type) {
		case string:
			chain = append(chain, routing.ProviderEntry{Provider: v, IsPrimary: i == 0})
		case map[string]interface{}:
			pe := routing.ProviderEntry{IsPrimary: i == 0}
			if p, ok := v["provider"].(string); ok {
				pe.Provider = p
			}
			if m, ok := v["model"].(string); ok {
				pe.Model = m
			}
			chain = append(chain, pe)
		default:
			return nil, fmt.Errorf("custom chain entry %d: unsupported shape %T", i, entry)
		}
	}
	return chain, nil
}
