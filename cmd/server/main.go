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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/umutsatir/brainstorming-application/internal/config"
	"github.com/umutsatir/brainstorming-application/internal/httpapi"
	"github.com/umutsatir/brainstorming-application/internal/hub"
	"github.com/umutsatir/brainstorming-application/internal/identity"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
	"github.com/umutsatir/brainstorming-application/internal/notify"
	"github.com/umutsatir/brainstorming-application/internal/orchestrator"
	"github.com/umutsatir/brainstorming-application/internal/seed"
	"github.com/umutsatir/brainstorming-application/internal/store"
	"github.com/umutsatir/brainstorming-application/internal/store/memory"
	"github.com/umutsatir/brainstorming-application/internal/store/postgres"
	"github.com/umutsatir/brainstorming-application/internal/sweep"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	if cfg.SeedFile != "" {
		roster, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := roster.Apply(ctx, st); err != nil {
			return err
		}
		log.Info("roster seeded", zap.Int("users", len(roster.Users)), zap.Int("teams", len(roster.Teams)))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	g, gctx := errgroup.WithContext(ctx)

	h := hub.NewHub(gctx, hub.Options{Metrics: rec, Logger: log.Named("hub")})
	sinks := notify.Multi{h}
	if cfg.RedisAddr != "" {
		client, dialErr := notify.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if dialErr != nil {
			return dialErr
		}
		defer func() { err = multierr.Append(err, client.Close()) }()
		relay := notify.NewRedisRelay(client, notify.RelayOptions{
			Prefix:  cfg.RedisChannelPrefix,
			Metrics: rec,
			Logger:  log.Named("relay"),
		})
		sinks = append(sinks, relay)
		g.Go(func() error { return relay.Run(gctx) })
		log.Info("relaying events to redis", zap.String("addr", cfg.RedisAddr))
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:         st,
		Notifier:      sinks,
		Metrics:       rec,
		Logger:        log.Named("orchestrator"),
		IdeasPerRound: cfg.IdeasPerRound,
		TeamSize:      cfg.TeamSize,
		RoundCount:    cfg.DefaultRoundCount,
		RoundDuration: cfg.RoundDuration,
	})
	sweeper := sweep.New(sweep.Options{
		Ticker:      orch,
		Notifier:    sinks,
		Metrics:     rec,
		Logger:      log.Named("sweep"),
		Interval:    cfg.SweepInterval,
		Concurrency: cfg.SweepConcurrency,
	})
	g.Go(func() error { return sweeper.Run(gctx) })

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Orchestrator: orch,
			Hub:          h,
			Identity: identity.NewResolver(identity.Options{
				Secret:         cfg.JWTSecret,
				AllowDevHeader: cfg.AllowDevAuth,
				Lookup:         st,
			}),
			Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			Logger:         log.Named("http"),
			OriginPatterns: cfg.WSOriginPatterns,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Shutdown()
		return err
	})
	return g.Wait()
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore picks Postgres when a DSN is configured and the in-process store
// otherwise.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, sessions live in memory only")
		return memory.New(), func() error { return nil }, nil
	}
	pg, err := postgres.Open(ctx, cfg.DatabaseURL, log.Named("postgres"))
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
