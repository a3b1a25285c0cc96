package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evplatform/eventplane/internal/api"
	"github.com/evplatform/eventplane/internal/config"
	"github.com/evplatform/eventplane/internal/logging"
	"github.com/evplatform/eventplane/internal/wiring"
	"github.com/evplatform/eventplane/pkg/storage"
)

var configFile string

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the event plane HTTP API, poller and background sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := wiring.Build(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer app.Close(context.Background())

			app.Metrics.StartAsync()

			router := api.NewRouter(app.Handler, app.Verifier)
			server := &http.Server{Addr: ":" + cfg.Server.APIPort, Handler: router}

			go runPoller(ctx, app)
			go runEscalationSweep(ctx, app)
			go runRetrySweep(ctx, app)

			go func() {
				app.Logger.WithField("addr", server.Addr).Info("api server listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					app.Logger.WithError(err).Error("api server stopped unexpectedly")
				}
			}()

			<-ctx.Done()
			app.Logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// runPoller calls the IAF poller's Tick every 30s; each tick polls only
// the connections whose own poll_interval has elapsed since their last
// poll.
func runPoller(ctx context.Context, app *wiring.App) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.Poller.Tick(ctx); err != nil {
				app.Logger.WithError(err).Warn("poller tick failed")
			}
		}
	}
}

func runEscalationSweep(ctx context.Context, app *wiring.App) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.AlertCore.RunEscalationSweep(ctx); err != nil {
				app.Logger.WithError(err).Warn("escalation sweep failed")
			}
		}
	}
}

func runRetrySweep(ctx context.Context, app *wiring.App) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.AlertCore.RunRetrySweep(ctx); err != nil {
				app.Logger.WithError(err).Warn("notification retry sweep failed")
			}
		}
	}
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *storage.Config) error {
				log := logging.New(logging.Config{Level: "info", Format: "json"})
				conn, err := storage.Connect(db, log)
				if err != nil {
					return err
				}
				defer conn.Close()
				return storage.Migrate(conn.DB)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back a single migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *storage.Config) error {
				log := logging.New(logging.Config{Level: "info", Format: "json"})
				conn, err := storage.Connect(db, log)
				if err != nil {
					return err
				}
				defer conn.Close()
				return storage.MigrateDown(conn.DB)
			})
		},
	})
	return cmd
}

func withDB(fn func(*storage.Config) error) error {
	cfg := storage.DefaultConfig()
	cfg.LoadFromEnv()
	return fn(cfg)
}

func main() {
	root := &cobra.Command{
		Use:   "eventplane [command]",
		Short: "Signal ingestion, integration adapters and alerting for the event plane",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "config/eventplane.yaml", "path to the process config file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
