// Package router wires C1 through C7 into the single process-wide Router
// instance §5 calls for: one Health Tracker, one Tool Registry, one Async
// CLI Manager, constructed once at startup. Router.Process is the
// process(req) entry point every caller goes through.
package router

import (
	"context"
	"fmt"

	"github.com/relaylane/router/internal/asynccli"
	"github.com/relaylane/router/internal/bus"
	"github.com/relaylane/router/internal/catalog"
	"github.com/relaylane/router/internal/chain"
	"github.com/relaylane/router/internal/classifier"
	"github.com/relaylane/router/internal/config"
	"github.com/relaylane/router/internal/delivery"
	"github.com/relaylane/router/internal/failover"
	"github.com/relaylane/router/internal/health"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
	"github.com/relaylane/router/internal/store"
	"github.com/relaylane/router/internal/tools"
	"github.com/relaylane/router/internal/usage"
)

// Deps bundles everything Router needs from the outside world: the
// concrete provider adapters, CLI delegation adapters, persistent state,
// and tuning configuration. Only Store is required: a nil Config, Log or
// DeliverySender falls back to a default, and an empty CLIProviders map
// degrades gracefully rather than failing construction.
type Deps struct {
	Config         *config.Config
	Store          *store.Store
	Providers      []providers.Provider
	CLIProviders   map[string]providers.CLIProvider
	DeliverySender delivery.Sender
	Log            *logging.Logger
}

// Router is the single wired instance of the whole system. The zero value
// is not usable; build one with New.
type Router struct {
	catalog    *catalog.Catalog
	health     *health.Tracker
	classifier *classifier.Classifier
	resolver   *chain.Resolver
	executor   *failover.Executor

	toolRegistry *tools.Registry
	toolExecutor *tools.Executor
	dispatcher   *tools.Dispatcher

	asyncMgr      *asynccli.Manager
	deliveryQueue *delivery.Queue
	usageQueue    *usage.Queue
	bus           *bus.Bus

	log *logging.Logger
}

// New wires every component from deps and starts the usage/delivery
// background drains; the health probe loop is started separately by Start.
// Call Close to stop them.
func New(deps Deps) (*Router, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("router: Store is required")
	}

	b := bus.NewBus()

	lookup := buildProviderLookup(deps.Providers)

	cat := catalog.New(log)

	var probers []health.Prober
	for _, p := range deps.Providers {
		if prober, ok := p.(health.Prober); ok {
			probers = append(probers, prober)
		}
	}
	healthTracker := health.New(cfg.Health.ProbeInterval(), log, probers...)

	resolver := chain.New(cat, healthTracker, deps.Store, lookup, log)

	clsf := classifier.New(classifier.Config{
		Resolver:  resolver,
		Lookup:    lookup,
		AIEnabled: func(userID string) bool { return aiEnabledFor(deps.Store, userID) },
		CacheTTL:  cfg.Classifier.ChainCacheTTL(),
	})

	usageQueue := usage.NewQueue(b, deps.Store, log)

	executor := failover.New(failover.Config{
		Classifier:       clsf,
		Resolver:         resolver,
		Health:           healthTracker,
		Lookup:           failover.ProviderLookup(lookup),
		Events:           b,
		Log:              log,
		RetryBudget:      cfg.Failover.RetryBudget,
		MetaTalkMaxChars: cfg.Failover.MetaTalkMaxChars,
	})

	toolExecutor := tools.NewExecutor()
	toolRegistry, err := tools.NewDefaultRegistry(toolExecutor, "", &tools.SecurityPolicy{
		BashDestructivePatterns: cfg.Tools.BashDestructivePatterns,
		BashNetworkPatterns:     cfg.Tools.BashNetworkPatterns,
		BashSystemPatterns:      cfg.Tools.BashSystemPatterns,
		ReadBlockedPaths:        cfg.Tools.ReadBlockedPaths,
		WriteBlockedPaths:       cfg.Tools.WriteBlockedPaths,
	})
	if err != nil {
		return nil, fmt.Errorf("router: build tool registry: %w", err)
	}
	dispatcher := tools.NewDispatcher(toolRegistry, toolExecutor, log)

	sender := deps.DeliverySender
	if sender == nil {
		sender = delivery.NewLogSender(log)
	}
	deliveryQueue := delivery.NewQueue(sender, b, log)

	runner := asynccli.NewProviderRunner(deps.CLIProviders)
	asyncMgr := asynccli.New(runner, deliveryQueue, b, log, cfg.AsyncCLI.WorkspaceExcludes)

	return &Router{
		catalog:       cat,
		health:        healthTracker,
		classifier:    clsf,
		resolver:      resolver,
		executor:      executor,
		toolRegistry:  toolRegistry,
		toolExecutor:  toolExecutor,
		dispatcher:    dispatcher,
		asyncMgr:      asyncMgr,
		deliveryQueue: deliveryQueue,
		usageQueue:    usageQueue,
		bus:           b,
		log:           log.WithComponent("router"),
	}, nil
}

// Start launches the health probe loop. Process may be called before Start,
// but providers will only be actively re-probed once it has run.
func (r *Router) Start(ctx context.Context) {
	r.health.Start(ctx)
}

// Close stops the health probe loop and the usage and delivery drain
// goroutines; records or deliveries still buffered are dropped. In-flight async CLI jobs are not waited on; call asyncMgr.Close
// through a longer-lived shutdown path if draining those matters too.
func (r *Router) Close() {
	r.health.Close()
	r.usageQueue.Close()
	r.deliveryQueue.Close()
}

// Process is the process(req) entry point: classify, resolve chain, walk
// it to completion or exhaustion. req.ForceProvider, per §4.4 step 1, is
// bridged into the chain options here rather than inside the failover
// executor, which treats force-provider purely as a resolver concern.
func (r *Router) Process(ctx context.Context, req *routing.Request, opts chain.Options) (*routing.Result, error) {
	if req.ForceProvider != "" {
		opts.ForceProvider = req.ForceProvider
	}
	return r.executor.Process(ctx, req, failover.Options{Options: opts})
}

// DispatchTool runs one tool invocation through C6's validate/security/
// risk/timeout pipeline and the async-diversion rule.
func (r *Router) DispatchTool(ctx context.Context, toolID string, params map[string]interface{}, tctx routing.ToolContext) (*tools.CallResult, error) {
	return r.dispatcher.Execute(ctx, toolID, params, tctx)
}

// StartAsyncCLI submits a long-running CLI delegation call to C7 and
// returns its tracking ID immediately.
func (r *Router) StartAsyncCLI(ctx context.Context, cliType, command, workspacePath string, opts asynccli.Options) (string, error) {
	return r.asyncMgr.StartExecution(ctx, cliType, command, workspacePath, opts)
}

// CancelAsyncCLI cancels a running async CLI job by tracking ID.
func (r *Router) CancelAsyncCLI(trackingID string) error {
	return r.asyncMgr.Cancel(trackingID)
}

// HealthSnapshot exposes the health tracker's current view, for routerctl's
// probe command.
func (r *Router) HealthSnapshot() map[string]routing.Health {
	return r.health.Snapshot()
}

// ToolDefinitions exposes the registry's tool set, for a provider's native
// function-calling tools list.
func (r *Router) ToolDefinitions() []routing.ToolDefinition {
	return r.toolRegistry.Definitions()
}

// Bus exposes the shared event distributor so callers can subscribe to
// notification events (chain exhaustion, payment, rate-limit, async job
// delivery/failure) without the router package needing its own pub/sub
// re-implementation.
func (r *Router) Bus() *bus.Bus {
	return r.bus
}

func buildProviderLookup(list []providers.Provider) func(string) (providers.Provider, bool) {
	byName := make(map[string]providers.Provider, len(list))
	for _, p := range list {
		byName[p.Name()] = p
	}
	return func(id string) (providers.Provider, bool) {
		p, ok := byName[id]
		return p, ok
	}
}

// aiEnabledFor reads a user's Task-Routing preferences to decide whether
// the AI classification override stage should run at all.
func aiEnabledFor(prefs chain.PreferencesSource, userID string) bool {
	p, ok, err := prefs.TaskRoutingPreferencesFor(context.Background(), userID)
	if err != nil || !ok {
		return false
	}
	return p.AIClassification
}
