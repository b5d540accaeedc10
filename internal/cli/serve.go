package cli

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

	"github.com/graaaaa/eventhub/internal/api"
	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/bridge"
	"github.com/graaaaa/eventhub/internal/catalog"
	"github.com/graaaaa/eventhub/internal/config"
	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/features"
	"github.com/graaaaa/eventhub/internal/ingest"
	"github.com/graaaaa/eventhub/internal/notify"
	"github.com/graaaaa/eventhub/internal/version"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int // 0 keeps the configured port
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and periodic sync",
		Long: `Run the HTTP API over both stores.

Connectors sync every sync_interval (0 disables the schedule). Admin routes
are served under /api/v1/admin with Basic Auth; credentials are generated on
first start and written to generated_password.txt in the data directory.

Example:
  eventhub serve
  eventhub serve --config /srv/eventhub/config.yaml --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "override the configured HTTP port")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	paths, err := resolvePaths(opts.RootOptions)
	if err != nil {
		return err
	}
	release, err := lockDataDir(paths)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := openRuntime(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	if opts.Port > 0 {
		rt.cfg.Port = opts.Port
	}
	rt.ensureAdminAuth()

	if _, _, err := seedTags(ctx, rt.db, event.DefaultTags); err != nil {
		logger.Warn("seed tags failed", "error", err)
	}
	if vacuumed, err := rt.db.VacuumIfNeeded(ctx); err != nil {
		logger.Warn("vacuum failed", "error", err)
	} else if vacuumed {
		logger.Info("database vacuumed")
	}

	var runnerOpts []ingest.RunnerOption
	alerts := rt.startAlerts(ctx)
	if alerts != nil {
		runnerOpts = append(runnerOpts, ingest.WithOnRun(alerts.Enqueue))
	}

	runner := rt.runner(runnerOpts...)
	go rt.schedule(ctx, runner)

	engine := catalog.New(rt.docs, rt.db,
		catalog.WithLogger(logger),
		catalog.WithMetrics(rt.metrics),
		catalog.WithStoreTimeout(rt.cfg.StoreTimeout),
	)
	br := bridge.New(rt.docs, rt.db,
		bridge.WithLogger(logger),
		bridge.WithMetrics(rt.metrics),
		bridge.WithStoreTimeout(rt.cfg.StoreTimeout),
	)

	health := app.HealthService{
		Version: version.String(),
		Stores:  map[string]app.Pinger{"document": rt.docs, "relational": rt.db},
	}

	limiterCfg := api.DefaultRateLimiterConfig()
	limiterCfg.TrustProxy = rt.cfg.TrustProxy

	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithMetrics(rt.metrics),
		api.WithRateLimiter(api.NewRateLimiter(limiterCfg)),
		api.WithEventsUsecase(&app.EventsService{Catalog: engine, Documents: rt.docs}),
		api.WithCommunityUsecase(&app.CommunityService{Store: rt.db, Logger: logger}),
		api.WithFeaturesUsecase(features.NewService(br, rt.db, features.WithLogger(logger))),
		api.WithStatsUsecase(app.NewStatsService(rt.docs, rt.db)),
		api.WithSyncUsecase(&app.SyncService{Runner: runner, Runs: rt.db}),
		api.WithConfigUsecase(app.ConfigService{Paths: rt.paths}),
	}
	if len(rt.cfg.CORSOrigins) > 0 {
		serverOpts = append(serverOpts, api.WithCORS(api.CORSConfig{AllowedOrigins: rt.cfg.CORSOrigins}))
	}
	if rt.secrets.AdminUsername != "" && !rt.secrets.AdminPassword.IsEmpty() {
		serverOpts = append(serverOpts, api.WithBasicAuth(rt.secrets.AdminUsername, rt.secrets.AdminPassword.Value()))
	} else {
		logger.Warn("admin credentials unavailable, admin routes disabled")
	}

	server := api.NewServer(rt.cfg.Addr(), health, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting eventhub", "version", version.String(), "addr", rt.cfg.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if alerts != nil {
		if err := alerts.Stop(shutdownCtx); err != nil {
			logger.Warn("alert flush incomplete", "error", err)
		}
	}
	logger.Info("server stopped")
	return nil
}

// ensureAdminAuth generates admin credentials on first start. A secrets file
// that failed to load is never overwritten.
func (rt *runtime) ensureAdminAuth() {
	updated, generated, err := config.EnsureAdminAuth(&rt.secrets)
	if err != nil {
		rt.logger.Error("generate admin credentials", "error", err)
		return
	}
	if !updated {
		return
	}
	if rt.secretsStatus == config.SecretsFallback {
		rt.logger.Warn("secrets file has errors; generated credentials not saved", "path", rt.paths.Secrets())
		return
	}
	if err := config.SaveSecretsTo(rt.secrets, rt.paths.Secrets()); err != nil {
		rt.logger.Error("save secrets", "error", err)
		return
	}
	if generated == "" {
		return
	}
	path, err := config.WritePasswordFile(rt.paths.Dir, rt.secrets.AdminUsername, generated)
	if err != nil {
		rt.logger.Error("write password file", "error", err)
		return
	}
	rt.logger.Info("admin credentials generated; delete the file after saving them", "path", path)
}

// startAlerts runs the sync alert notifier when a webhook is configured.
func (rt *runtime) startAlerts(ctx context.Context) *notify.Notifier {
	if rt.secrets.AlertWebhookURL.IsEmpty() {
		return nil
	}
	logger := rt.logger.With("component", "alerts")
	n := notify.NewNotifier(notify.NewDiscordSender(rt.secrets.AlertWebhookURL), rt.cfg.Alerts.BatchDelay,
		notify.Filter{OnSuccess: rt.cfg.Alerts.OnSuccess},
		notify.WithNotifierLogger(logger),
	)
	go n.Run(ctx)
	logger.Info("sync alerts enabled", "on_success", rt.cfg.Alerts.OnSuccess)
	return n
}

// schedule drives periodic sync until ctx is cancelled.
func (rt *runtime) schedule(ctx context.Context, runner syncRunner) {
	if rt.cfg.SyncInterval <= 0 {
		if rt.cfg.SyncOnStart {
			if _, err := runner.RunAll(ctx); err != nil && ctx.Err() == nil {
				rt.logger.Warn("startup sync failed", "error", err)
			}
		}
		return
	}
	rt.logger.Info("periodic sync enabled", "interval", rt.cfg.SyncInterval, "sources", runner.Sources())
	if err := runner.RunEvery(ctx, rt.cfg.SyncInterval, rt.cfg.SyncOnStart); err != nil && ctx.Err() == nil {
		rt.logger.Error("periodic sync stopped", "error", err)
	}
}
