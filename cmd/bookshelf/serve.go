package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/bookshelf-web/internal/server"
	"github.com/Sternrassler/bookshelf-web/pkg/cache"
	"github.com/Sternrassler/bookshelf-web/pkg/catalog"
	"github.com/Sternrassler/bookshelf-web/pkg/config"
	"github.com/Sternrassler/bookshelf-web/pkg/invalidation"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/Sternrassler/bookshelf-web/pkg/panel"
	"github.com/Sternrassler/bookshelf-web/pkg/prewarm"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the catalog pages, the cache API at /api/cache, the invalidation
webhook at /api/webhook/cache-invalidate and the operator panel at /panel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, a.cfg)
		},
	}

	cmd.Flags().String("host", "0.0.0.0", "listen host")
	cmd.Flags().Int("port", 3000, "listen port")
	cmd.Flags().Duration("panel-interval", 0, "panel auto-refresh interval (e.g. 30s)")
	cmd.Flags().Duration("http-timeout", 0, "timeout for backend requests (e.g. 30s)")
	cmd.Flags().Int("prewarm-concurrency", 0, "parallel requests when re-warming invalidated keys")
	cmd.Flags().Int("catalog-retries", 0, "retries for failed catalog reads")

	a.v.BindPFlag(config.KeyHost, cmd.Flags().Lookup("host"))
	a.v.BindPFlag(config.KeyPort, cmd.Flags().Lookup("port"))
	a.v.BindPFlag(config.KeyPanelInterval, cmd.Flags().Lookup("panel-interval"))
	a.v.BindPFlag(config.KeyHTTPTimeout, cmd.Flags().Lookup("http-timeout"))
	a.v.BindPFlag(config.KeyPrewarmConcurrency, cmd.Flags().Lookup("prewarm-concurrency"))
	a.v.BindPFlag(config.KeyCatalogRetries, cmd.Flags().Lookup("catalog-retries"))

	return cmd
}

func runServe(cmd *cobra.Command, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	manager, err := cache.NewManager(l, cache.Config{
		Origin:  cfg.BackendURL,
		Timeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("create fetch manager: %w", err)
	}

	warmCfg := prewarm.DefaultConfig()
	if cfg.PrewarmConcurrency > 0 {
		warmCfg.MaxConcurrency = cfg.PrewarmConcurrency
	}
	svc := invalidation.New(l, prewarm.New(manager, warmCfg), invalidation.Config{
		Origin: cfg.BackendURL,
		Secret: cfg.WebhookAPIKey,
	})
	if !svc.AuthEnabled() {
		logger.Warn().Msg("CACHE_WEBHOOK_API_KEY is not set, webhook accepts unauthenticated requests")
	}

	retry := catalog.DefaultRetryConfig()
	retry.MaxAttempts = cfg.CatalogRetries + 1

	p := panel.New(svc, panel.Config{Interval: cfg.PanelInterval, Origin: cfg.BackendURL})

	srv, err := server.New(server.Deps{
		Ledger:       l,
		Catalog:      catalog.NewClient(manager, catalog.Config{Retry: retry}),
		Invalidation: svc,
		Panel:        p,
	})
	if err != nil {
		return err
	}

	go p.Run(ctx)

	logger.Info().
		Str("backend_url", cfg.BackendURL).
		Str("ledger_backend", cfg.LedgerBackend).
		Bool("webhook_auth", svc.AuthEnabled()).
		Msg("Bookshelf starting")

	serverCfg := server.DefaultConfig(cfg.Addr())
	serverCfg.WriteTimeout = cfg.HTTPTimeout * 2
	return srv.Run(ctx, serverCfg)
}
