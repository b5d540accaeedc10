package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/graaaaa/eventhub/internal/config"
	"github.com/graaaaa/eventhub/internal/connector"
	"github.com/graaaaa/eventhub/internal/docstore"
	"github.com/graaaaa/eventhub/internal/docstore/mongodoc"
	"github.com/graaaaa/eventhub/internal/docstore/sqlitedoc"
	"github.com/graaaaa/eventhub/internal/ingest"
	"github.com/graaaaa/eventhub/internal/metrics"
	"github.com/graaaaa/eventhub/internal/store"
)

// ErrMongoURIMissing is returned when the mongo driver is selected without a URI.
var ErrMongoURIMissing = errors.New("document_driver is mongo but no mongo_uri is configured")

// runtime bundles the configuration and open stores shared by commands.
type runtime struct {
	paths         config.Paths
	cfg           config.Config
	secrets       config.Secrets
	secretsStatus config.SecretsLoadStatus
	logger        *slog.Logger
	metrics       *metrics.Metrics

	docs docstore.Store
	db   *store.Store
}

// resolvePaths returns the data directory named by --config, or the default.
func resolvePaths(opts *RootOptions) (config.Paths, error) {
	if opts.ConfigPath != "" {
		return config.PathsFor(opts.ConfigPath), nil
	}
	return config.DefaultPaths()
}

// newLogger builds the text logger every command logs through.
func newLogger(w io.Writer, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads configuration and secrets without opening any store.
func loadConfig(opts *RootOptions, stderr io.Writer) (*runtime, error) {
	paths, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(stderr, cfg.SlogLevel(), opts.Verbose)
	slog.SetDefault(logger)

	secrets, status, err := config.LoadSecretsFrom(paths.Secrets())
	if err != nil {
		logger.Warn("secrets unavailable", "path", paths.Secrets(), "error", err)
	}
	secrets = config.ApplySecretEnvOverrides(secrets)

	return &runtime{
		paths:         paths,
		cfg:           cfg,
		secrets:       secrets,
		secretsStatus: status,
		logger:        logger,
		metrics:       metrics.New(),
	}, nil
}

// openRuntime loads configuration and opens both stores.
func openRuntime(ctx context.Context, opts *RootOptions, stderr io.Writer) (*runtime, error) {
	rt, err := loadConfig(opts, stderr)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(rt.paths.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", rt.paths.Dir, err)
	}

	rt.db, err = store.Open(rt.paths.Database(), store.WithLogger(rt.logger))
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}

	rt.docs, err = rt.openDocuments(ctx)
	if err != nil {
		rt.db.Close()
		return nil, fmt.Errorf("open document store: %w", err)
	}

	rt.logger.Debug("stores open",
		"data_dir", rt.paths.Dir,
		"document_driver", rt.cfg.DocumentDriver)
	return rt, nil
}

func (rt *runtime) openDocuments(ctx context.Context) (docstore.Store, error) {
	switch rt.cfg.DocumentDriver {
	case config.DriverMongo:
		if rt.secrets.MongoURI.IsEmpty() {
			return nil, ErrMongoURIMissing
		}
		return mongodoc.Open(ctx, rt.secrets.MongoURI.Value(), rt.cfg.MongoDatabase, mongodoc.WithLogger(rt.logger))
	default:
		return sqlitedoc.Open(rt.paths.Documents(), sqlitedoc.WithLogger(rt.logger))
	}
}

// Close closes whatever stores are open.
func (rt *runtime) Close() {
	if rt.docs != nil {
		if err := rt.docs.Close(); err != nil {
			rt.logger.Error("close document store", "error", err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Error("close relational store", "error", err)
		}
	}
}

// runner builds the ingest runner over every enabled connector.
// A connector whose configuration is invalid is logged and left out.
func (rt *runtime) runner(extra ...ingest.RunnerOption) *ingest.Runner {
	connectors := make([]connector.Connector, 0, len(rt.cfg.Connectors))
	for _, cc := range rt.cfg.EnabledConnectors() {
		c, err := connector.New(cc, connector.WithLogger(rt.logger))
		if err != nil {
			rt.logger.Warn("connector disabled", "source", cc.Name, "error", err)
			continue
		}
		connectors = append(connectors, c)
	}

	pipeline := ingest.New(rt.docs,
		ingest.WithLogger(rt.logger),
		ingest.WithLedger(rt.db),
		ingest.WithRejectSink(rt.db),
		ingest.WithMetrics(rt.metrics),
		ingest.WithStoreTimeout(rt.cfg.StoreTimeout),
	)

	ropts := []ingest.RunnerOption{ingest.WithRunRecorder(rt.db)}
	if rt.cfg.Statistics.Enabled {
		logger := rt.logger.With("source", ingest.StatisticsRunName)
		f := connector.NewFetcher(connector.WithFetchLogger(logger))
		ropts = append(ropts, ingest.WithStatistics(connector.NewStatisticsFetcher(rt.cfg.Statistics, f, logger)))
	}
	ropts = append(ropts, extra...)
	return ingest.NewRunner(pipeline, connectors, ropts...)
}
