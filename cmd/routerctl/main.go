// Command routerctl is the operator-facing CLI for the task router: it
// wires one Router instance from a config file and environment variables
// and exposes route/probe/serve subcommands against it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaylane/router/internal/asynccli"
	"github.com/relaylane/router/internal/chain"
	"github.com/relaylane/router/internal/config"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/router"
	"github.com/relaylane/router/internal/routing"
	"github.com/relaylane/router/internal/store"
)

var (
	cfgPath string
	log     *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routerctl",
		Short: "Operate the task router: route a request, show provider health, call tools, run the probe loop",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log = logging.New(logging.DefaultConfig())
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: built-in)")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(probeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRouter loads config, constructs the provider set from environment
// variables, and wires a single Router instance.
func buildRouter() (*router.Router, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var provs []providers.Provider
	provs = append(provs, providers.NewOllamaProvider(nil))
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		orCfg := providers.DefaultConfig("openrouter")
		orCfg.APIKey = key
		provs = append(provs, providers.NewOpenRouterProvider(orCfg))
	}
	if url := os.Getenv("LOCAL_AGENT_URL"); url != "" {
		provs = append(provs, providers.NewLocalAgentProvider(nil, url))
	}

	r, err := router.New(router.Deps{
		Config:    cfg,
		Store:     st,
		Providers: provs,
		Log:       log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build router: %w", err)
	}
	return r, cfg, nil
}

// ═══════════════════════════════════════════════════════════════════════
// route
// ═══════════════════════════════════════════════════════════════════════

func routeCmd() *cobra.Command {
	var userID, forceProvider, forceTier string
	var maxTokens int
	var temperature float64

	cmd := &cobra.Command{
		Use:   "route [task text]",
		Short: "Process one request through the full classify/resolve/failover pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := buildRouter()
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			r.Start(ctx)

			req := &routing.Request{
				Task:          strings.Join(args, " "),
				UserID:        userID,
				ForceProvider: forceProvider,
				ForceTier:     routing.Tier(forceTier),
				MaxTokens:     maxTokens,
				Temperature:   temperature,
			}

			result, err := r.Process(ctx, req, chain.Options{})
			if err != nil {
				return fmt.Errorf("process: %w", err)
			}

			fmt.Printf("provider=%s model=%s tier=%s duration=%s\n",
				result.Provider, result.Model, result.Classification.Tier, result.Duration)
			fmt.Println(result.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli-user", "user id for preference lookup")
	cmd.Flags().StringVar(&forceProvider, "force-provider", "", "pin the chain to this provider alone (classification still runs)")
	cmd.Flags().StringVar(&forceTier, "force-tier", "", "override the classified tier (trivial|simple|moderate|complex|critical)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "override max response tokens")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "override sampling temperature")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════
// probe
// ═══════════════════════════════════════════════════════════════════════

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print the current health snapshot for every tracked provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := buildRouter()
			if err != nil {
				return err
			}
			defer r.Close()

			snapshot := r.HealthSnapshot()
			if len(snapshot) == 0 {
				fmt.Println("no providers tracked yet")
				return nil
			}
			for name, h := range snapshot {
				fmt.Printf("%-16s status=%-10s consecutiveErrors=%d lastError=%q\n",
					name, h.Status, h.ConsecutiveErrors, h.LastError)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════
// tools
// ═══════════════════════════════════════════════════════════════════════

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke the tool registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every registered tool definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := buildRouter()
			if err != nil {
				return err
			}
			defer r.Close()
			for _, def := range r.ToolDefinitions() {
				fmt.Printf("%-12s %s\n", def.ID, def.Description)
			}
			return nil
		},
	})

	var paramsJSON, userID string
	callCmd := &cobra.Command{
		Use:   "call [toolId]",
		Short: "Dispatch one tool call through the validate/security/risk pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := buildRouter()
			if err != nil {
				return err
			}
			defer r.Close()

			params := map[string]interface{}{}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("parse --params: %w", err)
				}
			}

			result, err := r.DispatchTool(context.Background(), args[0], params, routing.ToolContext{UserID: userID})
			if err != nil {
				return fmt.Errorf("dispatch: %w", err)
			}
			if result.Async {
				fmt.Println("diverted to async execution; check delivery channel for the result")
				return nil
			}
			if !result.Success {
				return fmt.Errorf("tool failed: %s", result.Error)
			}
			fmt.Println(result.Result)
			return nil
		},
	}
	callCmd.Flags().StringVar(&paramsJSON, "params", "", "tool parameters as a JSON object")
	callCmd.Flags().StringVar(&userID, "user", "cli-user", "user id for the tool context")
	cmd.AddCommand(callCmd)

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════
// serve
// ═══════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var asyncCLIType, asyncCommand, asyncWorkspace string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the health probe loop and block until interrupted",
		Long: `Start the health probe loop and block until interrupted.

With --async-cli-type set, also submits one async CLI job at startup (useful
for smoke-testing C7's delegation + delivery path); the command still
blocks until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := buildRouter()
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			r.Start(ctx)
			log.Info("router started")

			if asyncCLIType != "" {
				trackingID, err := r.StartAsyncCLI(ctx, asyncCLIType, asyncCommand, asyncWorkspace, asynccli.Options{UserID: "cli-user"})
				if err != nil {
					return fmt.Errorf("start async cli: %w", err)
				}
				log.WithField("trackingId", trackingID).Info("async cli job submitted")
			}

			<-ctx.Done()
			log.Info("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&asyncCLIType, "async-cli-type", "", "optionally submit one async CLI job of this type at startup")
	cmd.Flags().StringVar(&asyncCommand, "async-command", "", "command for the async CLI job")
	cmd.Flags().StringVar(&asyncWorkspace, "async-workspace", ".", "workspace path for the async CLI job")
	return cmd
}
