package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/metrics"
	"time"
)

// Lifecycle moves orders between statuses and applies the matching ledger
// side effects. Rows are always locked order first, then reservation, then
// batch.
type Lifecycle struct {
	Store    Store
	Ledger   *inventory.Ledger
	Notifier Notifier
	Now      func() time.Time
}

func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{
		Store:    store,
		Ledger:   inventory.NewLedger(),
		Notifier: NopNotifier{},
		Now:      time.Now,
	}
}

// ConfirmPayment marks a pending order paid and confirms its reservations.
// Reserved stock is not consumed. A payment arriving after the deadline fails
// with ErrDeadlineExpired and changes nothing.
func (l *Lifecycle) ConfirmPayment(ctx context.Context, orderID int64, pay PaymentInfo) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.ConfirmPayment")
	defer span.End()

	var order *Order
	err := l.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPendingPayment {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.OrderNumber, o.Status)
		}
		now := l.Now()
		if now.After(o.PaymentDeadline) {
			return fmt.Errorf("%w: order %s deadline was %s", ErrDeadlineExpired, o.OrderNumber, o.PaymentDeadline.Format(time.RFC3339))
		}

		o.Status = StatusPaid
		o.PaidAt = &now
		o.UpdatedAt = now
		if pay.Method != "" {
			o.PaymentMethod = pay.Method
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		rs, err := tx.Reservations(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if r.IsConfirmed {
				continue
			}
			b, err := l.Ledger.Confirm(ctx, tx, r.BatchID, r.Quantity)
			if err != nil {
				return err
			}
			if err := tx.ConfirmReservation(ctx, r.ID); err != nil {
				return err
			}
			if err := tx.AppendLog(ctx, &InventoryLog{
				OrderID:   o.ID,
				BatchID:   r.BatchID,
				Operation: OpConfirm,
				Quantity:  r.Quantity,
				Note:      fmt.Sprintf("payment confirmed for order %s on batch %s", o.OrderNumber, b),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		logger.Info(ctx).Err(err).Int64("order_id", orderID).Msg("payment confirmation refused")
		return nil, err
	}
	l.transitioned(ctx, order, StatusPendingPayment)
	return order, nil
}

// CancelOrder cancels a pending or paid order and releases its unconfirmed
// reservations. Confirmed reservations stay as they are.
func (l *Lifecycle) CancelOrder(ctx context.Context, orderID int64, reason string, actorID *int64) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CancelOrder")
	defer span.End()

	if reason == "" {
		reason = "unspecified"
	}
	var (
		order *Order
		from  Status
	)
	err := l.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.OrderNumber, o.Status)
		}
		now := l.Now()
		from = o.Status
		o.Status = StatusCancelled
		o.CancelledAt = &now
		o.UpdatedAt = now
		o.Notes = appendNote(o.Notes, "cancelled: "+reason)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		rs, err := tx.Reservations(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if r.IsConfirmed {
				continue
			}
			note := fmt.Sprintf("order %s cancelled: %s", o.OrderNumber, reason)
			if err := l.releaseReservation(ctx, tx, r, OpRelease, note, actorID, now); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.transitioned(ctx, order, from)
	return order, nil
}

// CompleteOrder closes a paid order.
func (l *Lifecycle) CompleteOrder(ctx context.Context, orderID int64) (*Order, error) {
	var order *Order
	err := l.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusCompleted) {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.OrderNumber, o.Status)
		}
		now := l.Now()
		o.Status = StatusCompleted
		o.CompletedAt = &now
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.transitioned(ctx, order, StatusPaid)
	return order, nil
}

// ExpireReservation releases one reservation whose payment window has closed
// and expires its order if still pending. It reports false when there was
// nothing to do: the reservation is gone, confirmed, or not yet expired.
func (l *Lifecycle) ExpireReservation(ctx context.Context, reservationID int64) (bool, error) {
	var (
		expired *Order
		done    bool
	)
	err := l.Store.InTx(ctx, func(tx Tx) error {
		r, err := tx.Reservation(ctx, reservationID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		o, err := tx.LockOrder(ctx, r.OrderID)
		if err != nil {
			return err
		}
		r, err = tx.LockReservation(ctx, reservationID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := l.Now()
		if r.IsConfirmed || !r.ExpiresAt.Before(now) {
			return nil
		}

		note := fmt.Sprintf("payment timeout for order %s", o.OrderNumber)
		if err := l.releaseReservation(ctx, tx, *r, OpExpire, note, nil, now); err != nil {
			return err
		}
		if o.Status == StatusPendingPayment {
			o.Status = StatusExpired
			o.UpdatedAt = now
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
			expired = o
		}
		done = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired != nil {
		l.transitioned(ctx, expired, StatusPendingPayment)
	}
	return done, nil
}

// releaseReservation gives the reservation's quantity back to its batch, logs
// it and deletes the reservation row.
func (l *Lifecycle) releaseReservation(ctx context.Context, tx Tx, r Reservation, op Operation, note string, actorID *int64, now time.Time) error {
	b, clamped, err := l.Ledger.Release(ctx, tx, r.BatchID, r.Quantity)
	if err != nil {
		return err
	}
	note = fmt.Sprintf("%s, released %d to batch %s", note, r.Quantity, b)
	if clamped {
		note += " (reserved_stock clamped at 0)"
	}
	if err := tx.AppendLog(ctx, &InventoryLog{
		OrderID:   r.OrderID,
		BatchID:   r.BatchID,
		Operation: op,
		Quantity:  r.Quantity,
		Note:      note,
		ActorID:   actorID,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	return tx.DeleteReservation(ctx, r.ID)
}

func (l *Lifecycle) transitioned(ctx context.Context, o *Order, from Status) {
	metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(o.Status)).Inc()
	logger.Info(ctx).
		Int64("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Str("from", string(from)).
		Str("to", string(o.Status)).
		Msg("order status changed")
	l.Notifier.StatusChanged(ctx, o, from)
}

func appendNote(notes, s string) string {
	if notes == "" {
		return s
	}
	return notes + "\n" + s
}
