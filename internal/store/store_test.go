package store

import (
	"context"
	"testing"
	"time"

	"github.com/relaylane/router/internal/routing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskRoutingPreferencesForMissingUser(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.TaskRoutingPreferencesFor(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a user with no row")
	}
}

func TestTaskRoutingPreferencesForWithCustomChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO task_routing_users (user_id, ai_classification, classifier_chain_json) VALUES (?, 1, ?)`,
		"u1", `["openrouter","local"]`); err != nil {
		t.Fatalf("insert task_routing_users: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO task_routing_tiers (user_id, tier, provider, model, custom_chain_yaml) VALUES (?, ?, ?, ?, ?)`,
		"u1", "complex", "openrouter", "gpt-4o",
		"- openrouter\n- provider: ollama\n  model: qwen3:8b\n"); err != nil {
		t.Fatalf("insert task_routing_tiers: %v", err)
	}

	prefs, ok, err := s.TaskRoutingPreferencesFor(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !prefs.AIClassification {
		t.Fatal("expected ai classification enabled")
	}
	if len(prefs.ClassifierChain) != 2 || prefs.ClassifierChain[0] != "openrouter" {
		t.Fatalf("unexpected classifier chain: %v", prefs.ClassifierChain)
	}
	tierPref, ok := prefs.PreferredByTier[routing.TierComplex]
	if !ok || tierPref.Provider != "openrouter" || tierPref.Model != "gpt-4o" {
		t.Fatalf("unexpected tier preference: %+v", tierPref)
	}
	chain, ok := prefs.CustomChains[routing.TierComplex]
	if !ok || len(chain) != 2 {
		t.Fatalf("unexpected custom chain: %+v", chain)
	}
	if chain[0].Provider != "openrouter" || !chain[0].IsPrimary {
		t.Fatalf("expected first entry to be the primary openrouter string entry, got %+v", chain[0])
	}
	if chain[1].Provider != "ollama" || chain[1].Model != "qwen3:8b" {
		t.Fatalf("expected second entry to be the ollama mapping, got %+v", chain[1])
	}
}

func TestCLIToolSettingsForMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.CLIToolSettingsFor(context.Background(), "u1", "cli-claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false")
	}
}

func TestUsageWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	record := routing.UsageRecord{
		ID: "rec-1", UserID: "u1", Provider: "openrouter", Model: "gpt-4o",
		InputTokens: 100, OutputTokens: 50, CostUSD: 0.001, Timestamp: time.Now(),
	}
	if err := s.Write(ctx, record); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage WHERE id = ?`, "rec-1").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 usage row, got %d", count)
	}
}
