package inventory

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/metrics"
	"time"
)

// Ledger mutates Batch.ReservedStock. Each call locks the batch row, so it
// must run inside the transaction that also writes the accompanying
// reservation and audit rows. The ledger does not check that the caller holds
// the batch lease.
type Ledger struct {
	Now func() time.Time
}

func NewLedger() *Ledger { return &Ledger{Now: time.Now} }

func (l *Ledger) now() time.Time {
	if l == nil || l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

// Reserve moves qty units of the batch into ReservedStock.
func (l *Ledger) Reserve(ctx context.Context, tx Store, batchID int64, qty int) (*Batch, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: negative reserve quantity %d", ErrInvalid, qty)
	}
	b, err := tx.LockBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if avail := b.Available(); avail < qty {
		return nil, fmt.Errorf("%w: batch %s has %d available, %d needed", ErrInsufficientStock, b, avail, qty)
	}
	b.ReservedStock += qty
	if err := l.save(ctx, tx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm does not change stock: confirmed units stay in ReservedStock until
// a fulfilment step consumes them. It only checks that the batch still covers
// qty; a shortfall is logged and counted.
func (l *Ledger) Confirm(ctx context.Context, tx Store, batchID int64, qty int) (*Batch, error) {
	b, err := tx.LockBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.ReservedStock < qty {
		logger.Warn(ctx).
			Int64("batch_id", b.ID).
			Int("reserved_stock", b.ReservedStock).
			Int("quantity", qty).
			Msg("confirming more than is reserved on batch")
		metrics.ConfirmShortfallTotal.Inc()
	}
	return b, nil
}

// Release returns qty units from ReservedStock. An underflow is clamped to
// zero, logged and counted instead of failing; clamped reports it.
func (l *Ledger) Release(ctx context.Context, tx Store, batchID int64, qty int) (b *Batch, clamped bool, err error) {
	if qty < 0 {
		return nil, false, fmt.Errorf("%w: negative release quantity %d", ErrInvalid, qty)
	}
	b, err = tx.LockBatch(ctx, batchID)
	if err != nil {
		return nil, false, err
	}
	before := b.ReservedStock
	b.ReservedStock -= qty
	if b.ReservedStock < 0 {
		b.ReservedStock = 0
		clamped = true
		metrics.ReservedStockClampedTotal.Inc()
		logger.Warn(ctx).
			Int64("batch_id", b.ID).
			Int("reserved_stock", before).
			Int("quantity", qty).
			Msg("release would drive reserved_stock negative, clamped to 0")
	}
	if err := l.save(ctx, tx, b); err != nil {
		return nil, false, err
	}
	return b, clamped, nil
}

// save persists the batch and then refreshes the cached stock of every
// product built from it.
func (l *Ledger) save(ctx context.Context, tx Store, b *Batch) error {
	b.Normalize(l.now())
	if err := tx.SaveBatch(ctx, b); err != nil {
		return err
	}
	_, err := RecomputeForBatch(ctx, tx, b.ID)
	return err
}
