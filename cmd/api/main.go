package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-batch-reservations/internal/config"
	"github.com/ariefcatur/go-batch-reservations/internal/httpx"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	kafkax "github.com/ariefcatur/go-batch-reservations/internal/kafka"
	"github.com/ariefcatur/go-batch-reservations/internal/lock"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/memstore"
	"github.com/ariefcatur/go-batch-reservations/internal/notify"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/ariefcatur/go-batch-reservations/internal/postgres"
	"github.com/ariefcatur/go-batch-reservations/internal/redisx"
	"github.com/ariefcatur/go-batch-reservations/internal/tracing"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type backend interface {
	orders.Store
	inventory.Transactor
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.ServiceName, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)
	log := logger.Logger

	tp := tracing.Init(cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store backend
	switch cfg.StoreBackend {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on exit")
		store = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("db migrate")
		}
		store = postgres.NewStore(db)
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	notifier := &notify.Notifier{
		Publisher: prod,
		Cache:     &redisx.StatusCache{RDB: rdb},
		Service:   cfg.ServiceName,
	}

	engine := orders.NewEngine(store, lock.NewRedis(rdb), orders.EngineConfig{
		PaymentTimeout:     cfg.PaymentTimeout,
		BatchLockTTL:       cfg.BatchLockTTL,
		DuplicationLockTTL: cfg.DuplicationLockTTL,
	})
	engine.Notifier = notifier
	lifecycle := orders.NewLifecycle(store)
	lifecycle.Notifier = notifier

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{
		Engine:    engine,
		Lifecycle: lifecycle,
		Queries:   &orders.Queries{Store: store},
		Cache:     &redisx.StatusCache{RDB: rdb},
	}).Register(router)
	(&httpx.CatalogHandler{Inventory: &inventory.Service{Store: store}}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreBackend).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	// With the in-memory store no worker process shares state, so expiry
	// runs here.
	if cfg.StoreBackend == "memory" && cfg.AutoExpireEnabled {
		sweeper := orders.NewSweeper(store, lifecycle)
		g.Go(func() error { return sweeper.Run(gctx, cfg.SweepInterval) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api exited")
	}

	prod.Close()
	prod.WaitClosed()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(sctx, tp); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown")
	}
}
