package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"custodia/internal/batch"
	batchhandler "custodia/internal/batch/handler"
	"custodia/internal/custody"
	custodyhandler "custodia/internal/custody/handler"
	custodymetrics "custodia/internal/custody/metrics"
	"custodia/internal/events"
	"custodia/internal/jwttoken"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	platformredis "custodia/internal/platform/redis"
	"custodia/internal/pos"
	poshandler "custodia/internal/pos/handler"
	"custodia/internal/roles"
	"custodia/internal/server"
	"custodia/internal/trace"
	tracehandler "custodia/internal/trace/handler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := roles.NewInMemoryRegistry()
	if cfg.RolesSeedFile != "" {
		if err := registry.LoadSeed(cfg.RolesSeedFile); err != nil {
			return fmt.Errorf("roles seed: %w", err)
		}
		log.Info("roles seed loaded", "file", cfg.RolesSeedFile)
	}

	health := make(map[string]func(context.Context) error)

	var (
		batchStore   batch.Store
		custodyStore custody.Store
		posStore     pos.Store
	)
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("pgx", cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		batchStore = batch.NewPostgres(db)
		custodyStore = custody.NewPostgres(db)
		posStore = pos.NewPostgres(db)
		health["postgres"] = db.PingContext
		log.Info("using postgres ledger")
	} else {
		batchStore = batch.NewInMemoryStore()
		custodyStore = custody.NewInMemoryStore()
		posStore = pos.NewInMemoryStore()
		log.Info("using in-memory ledger")
	}

	var traceStore trace.Store = trace.NewInMemoryStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		traceStore = trace.NewRedisStore(redisClient.Client)
		health["redis"] = redisClient.Health
		log.Info("using redis traceability store")
	}

	bus := events.NewBus(cfg.EventBufferSize)
	var publisher events.Publisher = bus
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(ctx, cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer kafka.Close()
		publisher = events.NewFanout(bus, kafka)
		log.Info("publishing events to kafka", "topic", cfg.Kafka.Topic)
	}

	custodySvc := custody.NewService(custodyStore, batch.NewCustodySource(batchStore),
		registry, publisher, log, custody.WithMetrics(custodymetrics.New()))
	batchSvc := batch.NewService(batchStore, registry, custodySvc, publisher, log)
	posSvc := pos.NewService(posStore, custodySvc, registry, publisher, log)
	worker := trace.NewWorker(traceStore, bus.C(), log)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "custodia", "custodia-api")
	routerCfg := server.Config{
		Logger:    log,
		Metrics:   metrics.New(),
		Validator: tokens,
		Handlers: []server.RouteMounter{
			batchhandler.New(batchSvc, log),
			custodyhandler.New(custodySvc, log),
			poshandler.New(posSvc, log),
			tracehandler.New(traceStore, log),
		},
		Health: health,
	}
	if cfg.DevTokens {
		routerCfg.Tokens = tokens
		log.Warn("development token endpoint enabled")
	}

	srv := httpserver.New(cfg.Addr, server.NewRouter(routerCfg))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("shut down")
	return err
}
