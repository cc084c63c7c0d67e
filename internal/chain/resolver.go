// Package chain resolves a tier and a user into a concrete, ordered,
// availability-filtered sequence of provider entries for the failover
// executor to walk.
package chain

import (
	"context"

	"github.com/relaylane/router/internal/catalog"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
)

// HealthSource reports a provider's current health.
type HealthSource interface {
	StatusOf(provider string) routing.Health
}

// PreferencesSource reads a user's Task-Routing preferences. A missing user
// returns ok=false and the resolver falls back to catalog defaults only.
type PreferencesSource interface {
	TaskRoutingPreferencesFor(ctx context.Context, userID string) (routing.TaskRoutingPreferences, bool, error)
}

// ProviderLookup resolves a provider ID to its adapter, used for live
// availability probing (Ollama reachability, local-agent websocket).
type ProviderLookup func(providerID string) (providers.Provider, bool)

// Options mirrors catalog.ChainOptions plus the force-provider short
// circuit, which only resolveChain (not the catalog's default-chain
// lookup) understands.
type Options struct {
	catalog.ChainOptions
	ForceProvider string
}

// Resolver implements C4.
type Resolver struct {
	catalog *catalog.Catalog
	health  HealthSource
	prefs   PreferencesSource
	lookup  ProviderLookup
	log     *logging.Logger

	// adminOverride replaces the catalog's default chain for a tier, when
	// set, but never replaces the user's own primary preference.
	adminOverride map[routing.Tier][]string
}

func New(cat *catalog.Catalog, health HealthSource, prefs PreferencesSource, lookup ProviderLookup, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.Nop()
	}
	return &Resolver{
		catalog:       cat,
		health:        health,
		prefs:         prefs,
		lookup:        lookup,
		log:           log.WithComponent("chain"),
		adminOverride: make(map[routing.Tier][]string),
	}
}

// SetAdminOverride registers a failover override chain for tier, replacing
// the catalog's default fallbacks (but never the user's primary entry).
// Pass a nil slice to clear a tier's override.
func (r *Resolver) SetAdminOverride(tier routing.Tier, providerIDs []string) {
	if providerIDs == nil {
		delete(r.adminOverride, tier)
		return
	}
	r.adminOverride[tier] = providerIDs
}

// ResolveChain builds the ordered, availability-filtered provider chain for
// one request. A forced provider short-circuits everything: it comes back as
// a single primary entry without the availability filter. It never errors:
// an empty result means the caller (the failover executor) must surface
// "no providers available for tier t".
func (r *Resolver) ResolveChain(ctx context.Context, tier routing.Tier, userID string, opts Options) routing.Chain {
	if opts.ForceProvider != "" {
		return routing.Chain{{Provider: opts.ForceProvider, IsPrimary: true}}
	}

	base := r.baseSequence(ctx, tier, userID, opts)
	return r.filterAvailable(ctx, base, userID)
}

func (r *Resolver) baseSequence(ctx context.Context, tier routing.Tier, userID string, opts Options) routing.Chain {
	prefs, ok, err := r.prefsFor(ctx, userID)
	if err != nil {
		r.log.WithError(err).WithField("userId", userID).Warn("preferences lookup failed, using catalog defaults")
	}

	if ok {
		if custom, exists := prefs.CustomChains[tier]; exists && len(custom) > 0 {
			return dedupeChain(custom)
		}
	}

	var seq routing.Chain
	seen := make(map[string]bool)

	if ok {
		if pref, exists := prefs.PreferredByTier[tier]; exists && pref.Provider != "" {
			seq = append(seq, routing.ProviderEntry{Provider: pref.Provider, Model: pref.Model, IsPrimary: true})
			seen[pref.Provider] = true
		}
	}

	fallbackIDs := r.adminOverride[tier]
	if fallbackIDs == nil {
		fallbackIDs = r.catalog.DefaultChainFor(tier, opts.ChainOptions)
	}
	for _, id := range fallbackIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		seq = append(seq, routing.ProviderEntry{Provider: id})
	}

	if len(seq) > 0 {
		seq[0].IsPrimary = true
	}
	return seq
}

// dedupeChain drops repeated provider entries, keeping the first occurrence
// of each, and marks that first entry primary. Every resolved chain —
// custom or catalog-derived — must hold each provider at most once.
func dedupeChain(in routing.Chain) routing.Chain {
	out := make(routing.Chain, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, entry := range in {
		if seen[entry.Provider] {
			continue
		}
		seen[entry.Provider] = true
		out = append(out, entry)
	}
	if len(out) > 0 {
		out[0].IsPrimary = true
	}
	return out
}

func (r *Resolver) prefsFor(ctx context.Context, userID string) (routing.TaskRoutingPreferences, bool, error) {
	if r.prefs == nil || userID == "" {
		return routing.TaskRoutingPreferences{}, false, nil
	}
	return r.prefs.TaskRoutingPreferencesFor(ctx, userID)
}

func (r *Resolver) filterAvailable(ctx context.Context, in routing.Chain, userID string) routing.Chain {
	out := make(routing.Chain, 0, len(in))
	for _, entry := range in {
		available, reason := r.IsAvailable(ctx, entry.Provider, userID)
		if !available {
			r.log.WithField("provider", entry.Provider).WithField("reason", reason).Debug("provider unavailable, skipping")
			continue
		}
		out = append(out, entry)
	}
	return out
}

// IsAvailable never errors; it always returns a human-readable reason,
// whether or not the provider is available.
func (r *Resolver) IsAvailable(ctx context.Context, providerID string, userID string) (bool, string) {
	canonical := catalog.Canonical(providerID)

	if r.health != nil {
		if h := r.health.StatusOf(canonical); h.Status == routing.HealthUnhealthy {
			return false, "health status: unhealthy"
		}
	}

	profile, ok := r.catalog.ProfileOf(canonical)
	if !ok {
		return false, "unknown provider"
	}

	switch profile.Type {
	case routing.ProviderTypeLocal:
		return r.probeLocal(canonical)
	case routing.ProviderTypeCLI:
		return r.checkCLIAuthenticated(ctx, canonical)
	case routing.ProviderTypeAPI:
		return r.checkAPIKeyPresent(canonical)
	default:
		return true, "no availability policy for provider type, assumed available"
	}
}

func (r *Resolver) probeLocal(providerID string) (bool, string) {
	if r.lookup == nil {
		return true, "no lookup configured, assumed available"
	}
	p, ok := r.lookup(providerID)
	if !ok {
		return false, "provider not registered"
	}
	if p.Available() {
		return true, "probed live: reachable"
	}
	return false, "probed live: unreachable"
}

func (r *Resolver) checkAPIKeyPresent(providerID string) (bool, string) {
	if r.lookup == nil {
		return true, "no lookup configured, assumed available"
	}
	p, ok := r.lookup(providerID)
	if !ok {
		return false, "provider not registered"
	}
	if p.Available() {
		return true, "api key present"
	}
	return false, "no api key on file"
}

func (r *Resolver) checkCLIAuthenticated(ctx context.Context, providerID string) (bool, string) {
	if r.lookup == nil {
		return true, "no lookup configured, assumed available"
	}
	p, ok := r.lookup(providerID)
	if !ok {
		return false, "provider not registered"
	}
	cliProvider, ok := p.(providers.CLIProvider)
	if !ok {
		return false, "provider is not CLI-capable"
	}
	if cliProvider.IsAuthenticated(providerID) {
		return true, "cli authenticated"
	}
	return false, "cli not authenticated"
}
