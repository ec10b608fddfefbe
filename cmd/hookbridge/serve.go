package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hookbridge/hookbridge/internal/behaviorgroups"
	"github.com/hookbridge/hookbridge/internal/config"
	httpapp "github.com/hookbridge/hookbridge/internal/http"
	"github.com/hookbridge/hookbridge/internal/http/handlers"
	"github.com/hookbridge/hookbridge/internal/inventory"
	"github.com/hookbridge/hookbridge/internal/lifecycle"
	"github.com/hookbridge/hookbridge/internal/logging"
	"github.com/hookbridge/hookbridge/internal/metrics"
	"github.com/hookbridge/hookbridge/internal/secrets"
	"github.com/hookbridge/hookbridge/internal/secrets/vaultkv"
	"github.com/hookbridge/hookbridge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the integration API server.",
	Args:  cobra.NoArgs,
	Annotations: map[string]string{
		structuredLogAnnotation: "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.CommandPath())
	},
}

func runServe(commandPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: commandPath})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	vault, err := vaultkv.New(vaultkv.Options{
		Address:   cfg.VaultAddr,
		Token:     cfg.VaultToken,
		Namespace: cfg.VaultNamespace,
		Mount:     cfg.VaultMount,
	})
	if err != nil {
		return err
	}
	secretSync := secrets.NewSynchronizer(vault, logger)

	var inv inventory.Client = inventory.NoopClient{}
	if cfg.InventoryBaseURL != "" {
		inv, err = inventory.NewHTTPClient(cfg.InventoryBaseURL, cfg.InventoryToken)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("inventory base URL not set, ledger registration disabled")
	}

	db := lifecycle.NewStore(store.NewStore(pool))
	orch := lifecycle.NewOrchestrator(db, secretSync, inv, behaviorgroups.NewReconciler(logger), logger)

	h := &handlers.Handlers{
		Cfg:     cfg,
		Orch:    orch,
		Secrets: secretSync,
		Log:     logger,
	}
	es, err := httpapp.NewEchoServer(cfg, h)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           es.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	_, metricsErr := metrics.StartServer(ctx, cfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		var cause error
		select {
		case <-gctx.Done():
		case cause = <-metricsErr:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && cause == nil {
			cause = err
		}
		return cause
	})
	return g.Wait()
}
