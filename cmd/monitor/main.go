// Command monitor runs the publication monitoring engine: a scheduler that
// polls the gazette registry for each tracked practitioner, a diff pipeline
// that commits new publications exactly once, and a dispatcher that pushes
// the resulting events downstream.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"diario/internal/coordinator"
	"diario/internal/diff"
	"diario/internal/dispatch"
	"diario/internal/lease"
	"diario/internal/monitor/metrics"
	"diario/internal/monitor/store"
	"diario/internal/platform/config"
	"diario/internal/platform/httpserver"
	"diario/internal/platform/logger"
	"diario/internal/platform/postgres"
	platformredis "diario/internal/platform/redis"
	"diario/internal/registry"
	"diario/internal/registry/extract"
	"diario/internal/seenset"
	httptransport "diario/internal/transport/http"
	"diario/pkg/platform/backoff"
	"diario/pkg/platform/circuit"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		identities store.IdentityStore
		runLogs    store.RunLogStore
		seen       seenset.Store
		leases     lease.Store
	)

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		identityStore := store.NewPostgresIdentityStore(pool)
		runLogStore := store.NewPostgresRunLogStore(pool)
		seenStore := seenset.NewPostgresStore(pool)
		leaseStore := lease.NewPostgresStore(pool)
		for _, ensure := range []func(context.Context) error{
			identityStore.EnsureSchema,
			runLogStore.EnsureSchema,
			seenStore.EnsureSchema,
			leaseStore.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				log.Error("schema setup failed", "error", err)
				os.Exit(1)
			}
		}
		identities, runLogs, seen, leases = identityStore, runLogStore, seenStore, leaseStore
	} else {
		log.Warn("no database configured, using in-memory stores")
		identities = store.NewInMemoryIdentityStore()
		runLogs = store.NewInMemoryRunLogStore()
		seen = seenset.NewInMemoryStore()
		leases = lease.NewInMemoryStore()
	}

	// A shared Redis takes over leasing when the scheduler runs as a fleet.
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		leases = lease.NewRedisStore(redisClient.Client)
	}

	engineMetrics := metrics.New()

	runner := coordinator.NewRunner(
		identities,
		runLogs,
		leases,
		registry.NewHTTPClient(cfg.RegistryBaseURL),
		extract.NewGazetteExtractor(),
		diff.New(seen, diff.WithLogger(log)),
		coordinator.WithLogger(log),
		coordinator.WithMetrics(engineMetrics),
		coordinator.WithLeaseTTL(cfg.LeaseTTL),
		coordinator.WithBreaker(circuit.New("gazette")),
		coordinator.WithRetryPolicy(backoff.New(registry.IsTransient,
			backoff.WithMaxAttempts(cfg.FetchMaxAttempts))),
	)
	scheduler := coordinator.NewScheduler(identities, runner,
		coordinator.WithTickInterval(cfg.TickInterval),
		coordinator.WithWorkers(cfg.Workers),
		coordinator.WithSchedulerLogger(log),
	)

	var deliverer dispatch.Deliverer
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := dispatch.NewKafkaDeliverer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		deliverer = kafka
	} else {
		log.Warn("no kafka brokers configured, events go to the log")
		deliverer = dispatch.NewLogDeliverer(log)
	}
	dispatcher := dispatch.New(seen, deliverer,
		dispatch.WithFlushInterval(cfg.DispatchInterval),
		dispatch.WithBatchSize(cfg.DispatchBatchSize),
		dispatch.WithLogger(log),
		dispatch.WithMetrics(engineMetrics),
	)

	handler := httptransport.NewHandler(scheduler, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("scheduler started", "tick", cfg.TickInterval.String(), "workers", cfg.Workers)
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		log.Info("dispatcher started", "flush", cfg.DispatchInterval.String())
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("engine stopped", "error", err)
		os.Exit(1)
	}
	log.Info("engine stopped")
}
