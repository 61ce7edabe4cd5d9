package orders

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/metrics"
	"time"
)

const defaultSweepBatch = 500

// Sweeper releases reservations whose payment window closed without payment.
type Sweeper struct {
	Store     Store
	Lifecycle *Lifecycle
	Now       func() time.Time
	BatchSize int
}

func NewSweeper(store Store, lc *Lifecycle) *Sweeper {
	return &Sweeper{Store: store, Lifecycle: lc, Now: time.Now, BatchSize: defaultSweepBatch}
}

// Sweep expires every overdue reservation, each in its own transaction, and
// returns how many were released. A failing reservation is logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "orders.Sweep")
	defer span.End()

	var due []Reservation
	err := s.Store.InTx(ctx, func(tx Tx) error {
		var err error
		due, err = tx.ExpiredReservations(ctx, s.Now(), s.BatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	released := 0
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		ok, err := s.Lifecycle.ExpireReservation(ctx, r.ID)
		if err != nil {
			metrics.SweepErrorsTotal.Inc()
			logger.Error(ctx).Err(err).
				Int64("reservation_id", r.ID).
				Int64("order_id", r.OrderID).
				Int64("batch_id", r.BatchID).
				Msg("expire reservation failed")
			continue
		}
		if ok {
			released++
			metrics.SweepReleasedTotal.Inc()
		}
	}
	if released > 0 {
		logger.Info(ctx).Int("released", released).Int("due", len(due)).Msg("expired reservations released")
	}
	return released, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx).Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
