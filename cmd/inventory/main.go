package main

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/config"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	kafkax "github.com/ariefcatur/go-batch-reservations/internal/kafka"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/notify"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/ariefcatur/go-batch-reservations/internal/payment"
	"github.com/ariefcatur/go-batch-reservations/internal/postgres"
	"github.com/ariefcatur/go-batch-reservations/internal/redisx"
	"github.com/ariefcatur/go-batch-reservations/internal/tracing"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// The worker always runs against postgres: expiry and payment events must see
// the same rows the API writes.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-inventory"
	logger.Init(service, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)
	log := logger.Logger

	tp := tracing.Init(service)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	store := postgres.NewStore(db)

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	lifecycle := orders.NewLifecycle(store)
	lifecycle.Notifier = &notify.Notifier{
		Publisher: prod,
		Cache:     &redisx.StatusCache{RDB: rdb},
		Service:   service,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := (&inventory.Service{Store: store}).RecalculateAll(gctx)
		if err != nil {
			log.Error().Err(err).Msg("startup stock recalculation failed")
			return nil
		}
		log.Info().Int("updated", n).Msg("startup stock recalculation done")
		return nil
	})

	if cfg.AutoExpireEnabled {
		sweeper := orders.NewSweeper(store, lifecycle)
		g.Go(func() error {
			log.Info().Dur("interval", cfg.SweepInterval).Msg("expiry sweeper started")
			return sweeper.Run(gctx, cfg.SweepInterval)
		})
	}

	handler := &payment.Handler{Orders: lifecycle, Redis: rdb, Service: service}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.TopicPaymentAuthorized, cfg.InventoryWorkers)
	g.Go(func() error {
		log.Info().
			Str("group", cfg.InventoryGroup).
			Str("topic", orders.TopicPaymentAuthorized).
			Int("workers", cfg.InventoryWorkers).
			Msg("payment consumer started")
		return cons.Start(gctx, handler.Handle)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker exited")
	}
	log.Info().Msg("shutting down worker...")

	prod.Close()
	prod.WaitClosed()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(sctx, tp); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown")
	}
}
