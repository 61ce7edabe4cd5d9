package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/lock"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"slices"
	"time"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-batch-reservations/internal/orders")

const maxOrderNumberAttempts = 10

type EngineConfig struct {
	PaymentTimeout     time.Duration
	BatchLockTTL       time.Duration
	DuplicationLockTTL time.Duration
}

// Engine places orders and reserves the batch stock behind them.
type Engine struct {
	Store    Store
	Locks    lock.Manager
	Ledger   *inventory.Ledger
	Pricer   Pricer
	Notifier Notifier
	Now      func() time.Time
	// NewOrderNumber defaults to GenerateOrderNumber.
	NewOrderNumber func(now time.Time) string

	cfg EngineConfig
}

func NewEngine(store Store, locks lock.Manager, cfg EngineConfig) *Engine {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 30 * time.Minute
	}
	if cfg.BatchLockTTL <= 0 {
		cfg.BatchLockTTL = 180 * time.Second
	}
	if cfg.DuplicationLockTTL <= 0 {
		cfg.DuplicationLockTTL = 30 * time.Second
	}
	return &Engine{
		Store:          store,
		Locks:          locks,
		Ledger:         inventory.NewLedger(),
		Pricer:         CatalogPricer{},
		Notifier:       NopNotifier{},
		Now:            time.Now,
		NewOrderNumber: GenerateOrderNumber,
		cfg:            cfg,
	}
}

// line is a validated cart line.
type line struct {
	item    CartItem
	product *inventory.Product
	offer   *inventory.ActivityProduct
}

type plan struct {
	lines []line
	// demand is the cart-wide quantity needed per batch.
	demand   map[int64]int
	batchIDs []int64
	// items maps batch id to the item it is a lot of.
	items map[int64]int64
}

// CreateOrderWithReservation validates the cart, takes a lease on every batch
// it draws from and reserves the stock in one transaction. The returned order
// is pending payment until ConfirmPayment, CancelOrder or the sweeper moves it.
func (e *Engine) CreateOrderWithReservation(ctx context.Context, userID int64, cart []CartItem, ship ShippingInfo) (order *Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrderWithReservation")
	span.SetAttributes(attribute.Int64("user_id", userID), attribute.Int("cart.lines", len(cart)))
	defer func() {
		metrics.ReservationsTotal.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	dupKey := lock.DuplicationKey(userID, Fingerprint(cart))
	dup, ok, err := e.Locks.Acquire(ctx, dupKey, e.cfg.DuplicationLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Info(ctx).Int64("user_id", userID).Str("key", dupKey).Msg("duplicate checkout rejected")
		return nil, ErrDuplicate
	}
	defer e.release(ctx, dup)

	p, err := e.prepare(ctx, cart)
	if err != nil {
		logger.Info(ctx).Err(err).Int64("user_id", userID).Msg("checkout rejected before locking")
		return nil, err
	}

	held, err := e.acquireBatches(ctx, p.batchIDs)
	defer func() {
		for _, l := range held {
			e.release(ctx, l)
		}
	}()
	if err != nil {
		return nil, err
	}

	keys := []string{dupKey}
	for _, l := range held {
		keys = append(keys, l.Key)
	}
	var items []OrderItem
	order, items, err = e.commit(ctx, userID, ship, p, keys)
	if err != nil {
		logger.Warn(ctx).Err(err).Int64("user_id", userID).Msg("order reservation rolled back")
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID), attribute.String("order_number", order.OrderNumber))
	logger.Info(ctx).
		Int64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Int64("user_id", userID).
		Int("batches", len(p.batchIDs)).
		Msg("order created with reservation")
	e.Notifier.OrderCreated(ctx, order, items)
	return order, nil
}

// prepare validates the cart and runs the advisory, lock-free stock check.
func (e *Engine) prepare(ctx context.Context, cart []CartItem) (*plan, error) {
	ctx, span := tracer.Start(ctx, "orders.prepare")
	defer span.End()

	p := &plan{demand: map[int64]int{}, items: map[int64]int64{}}
	now := e.Now()
	err := e.Store.InTx(ctx, func(tx Tx) error {
		for _, it := range cart {
			l, err := validateLine(ctx, tx, it, now)
			if err != nil {
				return err
			}
			need, itemOf, err := lineDemand(ctx, tx, l)
			if err != nil {
				return err
			}
			for batchID, qty := range need {
				p.demand[batchID] += qty
				p.items[batchID] = itemOf[batchID]
			}
			p.lines = append(p.lines, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for id := range p.demand {
		p.batchIDs = append(p.batchIDs, id)
	}
	slices.Sort(p.batchIDs)
	return p, nil
}

func validateLine(ctx context.Context, tx Tx, it CartItem, now time.Time) (line, error) {
	l := line{item: it}
	if it.Quantity <= 0 {
		return l, fmt.Errorf("%w: quantity for product %d must be positive", ErrValidation, it.ProductID)
	}
	p, err := tx.Product(ctx, it.ProductID)
	if errors.Is(err, ErrNotFound) {
		return l, fmt.Errorf("%w: product %d does not exist", ErrValidation, it.ProductID)
	}
	if err != nil {
		return l, err
	}
	if p.Deleted() {
		return l, fmt.Errorf("%w: product %d has been removed", ErrUnavailable, it.ProductID)
	}
	l.product = p

	if it.ActivityID == nil {
		return l, nil
	}
	a, err := tx.Activity(ctx, *it.ActivityID)
	if errors.Is(err, ErrNotFound) {
		return l, fmt.Errorf("%w: activity %d does not exist", ErrValidation, *it.ActivityID)
	}
	if err != nil {
		return l, err
	}
	if a.Deleted() || !a.Running(now) {
		return l, fmt.Errorf("%w: activity %d is not running", ErrUnavailable, a.ID)
	}
	ap, err := tx.ActivityProduct(ctx, a.ID, p.ID)
	if errors.Is(err, ErrNotFound) {
		return l, fmt.Errorf("%w: activity %d does not offer product %d", ErrValidation, a.ID, p.ID)
	}
	if err != nil {
		return l, err
	}
	l.offer = ap
	return l, nil
}

// lineDemand sums what one line needs from each batch and checks it against
// the batch's current availability.
func lineDemand(ctx context.Context, tx Tx, l line) (need map[int64]int, itemOf map[int64]int64, err error) {
	cs, err := tx.Components(ctx, l.product.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(cs) == 0 {
		return nil, nil, fmt.Errorf("%w: product %d has no components", ErrInsufficientStock, l.product.ID)
	}

	need = map[int64]int{}
	itemOf = map[int64]int64{}
	batches := map[int64]*inventory.Batch{}
	for _, c := range cs {
		if c.Quantity <= 0 {
			continue
		}
		if c.Batch == nil {
			return nil, nil, fmt.Errorf("%w: product %d has a component without a batch", ErrInsufficientStock, l.product.ID)
		}
		// Truncation, not rounding.
		qty := int(c.Quantity * float64(l.item.Quantity))
		if qty == 0 {
			continue
		}
		need[c.Batch.ID] += qty
		batches[c.Batch.ID] = c.Batch
		itemOf[c.Batch.ID] = c.ItemID
	}
	for id, qty := range need {
		if b := batches[id]; b.Available() < qty {
			return nil, nil, fmt.Errorf("%w: product %d needs %d from batch %s, %d available",
				ErrInsufficientStock, l.product.ID, qty, b, b.Available())
		}
	}
	return need, itemOf, nil
}

// acquireBatches leases every batch in ascending id order. On failure the
// leases taken so far are still returned so the caller releases them.
func (e *Engine) acquireBatches(ctx context.Context, ids []int64) ([]lock.Lease, error) {
	ctx, span := tracer.Start(ctx, "orders.acquireBatches")
	defer span.End()

	held := make([]lock.Lease, 0, len(ids))
	for _, id := range ids {
		key := lock.BatchKey(id)
		l, ok, err := e.Locks.Acquire(ctx, key, e.cfg.BatchLockTTL)
		if err != nil {
			return held, err
		}
		if !ok {
			logger.Info(ctx).Int64("batch_id", id).Str("key", key).Msg("batch lease held by another checkout")
			return held, fmt.Errorf("%w: batch %d is locked", ErrContention, id)
		}
		held = append(held, l)
	}
	return held, nil
}

func (e *Engine) commit(ctx context.Context, userID int64, ship ShippingInfo, p *plan, lockKeys []string) (*Order, []OrderItem, error) {
	ctx, span := tracer.Start(ctx, "orders.commit")
	defer span.End()

	var (
		order *Order
		items []OrderItem
	)
	err := e.Store.InTx(ctx, func(tx Tx) error {
		now := e.Now()
		number, err := e.orderNumber(ctx, tx, now)
		if err != nil {
			return err
		}

		// Second check, now under row locks taken in the same order as the leases.
		for _, id := range p.batchIDs {
			b, err := tx.LockBatch(ctx, id)
			if err != nil {
				return err
			}
			if b.Available() < p.demand[id] {
				return fmt.Errorf("%w: batch %s has %d available, %d needed",
					ErrInsufficientStock, b, b.Available(), p.demand[id])
			}
		}

		order = &Order{
			OrderNumber:     number,
			UserID:          userID,
			Status:          StatusPendingPayment,
			TotalAmount:     decimal.Zero,
			FinalAmount:     decimal.Zero,
			ReceiverName:    ship.Name,
			ReceiverPhone:   ship.Phone,
			ReceiverAddress: ship.Address,
			ShippingNotes:   ship.Notes,
			PaymentDeadline: now.Add(e.cfg.PaymentTimeout),
			LockKeys:        lockKeys,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		total := decimal.Zero
		for _, l := range p.lines {
			unit, err := e.Pricer.UnitPrice(ctx, l.product, l.offer)
			if err != nil {
				return err
			}
			if l.item.IsGift {
				unit = decimal.Zero
			}
			it := OrderItem{
				OrderID:    order.ID,
				ProductID:  l.product.ID,
				ActivityID: l.item.ActivityID,
				Quantity:   l.item.Quantity,
				UnitPrice:  unit,
				TotalPrice: unit.Mul(decimal.NewFromInt(int64(l.item.Quantity))),
				IsGift:     l.item.IsGift,
			}
			if err := tx.InsertOrderItem(ctx, &it); err != nil {
				return err
			}
			total = total.Add(it.TotalPrice)
			items = append(items, it)
		}

		for _, id := range p.batchIDs {
			qty := p.demand[id]
			b, err := e.Ledger.Reserve(ctx, tx, id, qty)
			if err != nil {
				return err
			}
			r := Reservation{
				OrderID:   order.ID,
				BatchID:   id,
				ItemID:    p.items[id],
				Quantity:  qty,
				ExpiresAt: order.PaymentDeadline,
				CreatedAt: now,
			}
			if err := tx.InsertReservation(ctx, &r); err != nil {
				return err
			}
			if err := tx.AppendLog(ctx, &InventoryLog{
				OrderID:   order.ID,
				BatchID:   id,
				Operation: OpReserve,
				Quantity:  qty,
				Note:      fmt.Sprintf("reserved %d from batch %s for order %s", qty, b, number),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		order.TotalAmount = total
		order.FinalAmount = total
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func (e *Engine) orderNumber(ctx context.Context, tx Tx, now time.Time) (string, error) {
	for range maxOrderNumberAttempts {
		n := e.NewOrderNumber(now)
		exists, err := tx.OrderNumberExists(ctx, n)
		if err != nil {
			return "", err
		}
		if !exists {
			return n, nil
		}
	}
	return "", fmt.Errorf("no free order number after %d attempts", maxOrderNumberAttempts)
}

// release runs on every exit path, including after the request context was
// cancelled.
func (e *Engine) release(ctx context.Context, l lock.Lease) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := e.Locks.Release(ctx, l); err != nil {
		logger.Warn(ctx).Err(err).Str("key", l.Key).Msg("lease release failed")
	}
}
