package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/xraph/folio"
	audithook "github.com/xraph/folio/audit_hook"
	"github.com/xraph/folio/config"
	"github.com/xraph/folio/eventbus"
	"github.com/xraph/folio/logging"
	"github.com/xraph/folio/observability"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/memory"
	"github.com/xraph/folio/store/mongo"
	"github.com/xraph/folio/store/postgres"
	"github.com/xraph/folio/store/sqlite"
)

// deps is what every command needs before it does real work.
type deps struct {
	cfg    config.Config
	logger *zap.Logger
	store  store.Store
}

func setup(c *cli.Context) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	s, err := openStore(c.Context, cfg.Store)
	if err != nil {
		_ = logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
		return nil, err
	}
	return &deps{cfg: cfg, logger: logger, store: s}, nil
}

func (e *deps) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store", zap.Error(err))
	}
	_ = e.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}

// openStore opens the backend named by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		s = memory.New()
	case config.DriverSQLite:
		s, err = sqlite.Open(ctx, cfg.DSN)
	case config.DriverPostgres:
		s, err = postgres.Open(ctx, cfg.DSN)
	case config.DriverMongo:
		s, err = mongo.Open(ctx, cfg.DSN, cfg.Database)
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func engineOptions(cfg config.Config, logger *zap.Logger) []folio.Option {
	return []folio.Option{
		folio.WithLogger(logger),
		folio.WithExpiry(cfg.Expiry.Interval, cfg.Expiry.Timeout, cfg.Expiry.BatchSize),
		folio.WithRetry(cfg.Retry.MaxAttempts),
		folio.WithPasswordRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending schema migrations and exit",
		Action: func(c *cli.Context) error {
			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.store.Migrate(c.Context); err != nil {
				return err
			}
			env.logger.Info("schema up to date", zap.String("driver", env.cfg.Store.Driver))
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "cancel unpaid orders past the expiry timeout once and exit",
		Action: func(c *cli.Context) error {
			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.store.Migrate(c.Context); err != nil {
				return err
			}
			eng := folio.New(env.store, engineOptions(env.cfg, env.logger)...)
			n, err := eng.ReconcileExpired(c.Context)
			env.logger.Info("expiry pass finished",
				zap.Int("cancelled", n),
				zap.Duration("expiry_timeout", eng.ExpiryTimeout()),
			)
			fmt.Fprintf(c.App.Writer, "cancelled %d expired orders\n", n)
			return err
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the engine with the expiry reconciler until interrupted",
		Action: func(c *cli.Context) error {
			env, err := setup(c)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }() //nolint:errcheck // stderr sync fails on some platforms
			return serve(c.Context, env)
		},
	}
}

func serve(ctx context.Context, env *deps) error {
	log := env.logger
	opts := engineOptions(env.cfg, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts = append(opts,
		folio.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		folio.WithPlugin(audithook.New(auditLog(log), audithook.WithLogger(log))),
	)
	if len(env.cfg.Events.Brokers) > 0 {
		w := eventbus.NewWriter(env.cfg.Events.Brokers, env.cfg.Events.Topic)
		opts = append(opts, folio.WithPlugin(eventbus.New(w, eventbus.WithLogger(log))))
		log.Info("publishing order events",
			zap.Strings("brokers", env.cfg.Events.Brokers),
			zap.String("topic", env.cfg.Events.Topic),
		)
	}

	eng := folio.New(env.store, opts...)
	if err := eng.Start(ctx); err != nil {
		_ = env.store.Close() //nolint:errcheck // best-effort cleanup
		return err
	}

	var srv *http.Server
	if addr := env.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := env.store.Ping(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", zap.Error(err))
		}
	}
	return eng.Stop()
}

// auditLog writes audit events to the service log.
func auditLog(log *zap.Logger) audithook.RecorderFunc {
	log = log.Named("audit")
	return func(_ context.Context, evt *audithook.AuditEvent) error {
		fields := []zap.Field{
			zap.String("action", evt.Action),
			zap.String("resource", evt.Resource),
			zap.String("resource_id", evt.ResourceID),
			zap.String("outcome", evt.Outcome),
			zap.String("severity", evt.Severity),
		}
		if evt.Reason != "" {
			fields = append(fields, zap.String("reason", evt.Reason))
		}
		if len(evt.Metadata) > 0 {
			fields = append(fields, zap.Any("metadata", evt.Metadata))
		}
		log.Info("audit", fields...)
		return nil
	}
}
