package memstore

import (
	"cmp"
	"context"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"slices"
	"time"
)

// tx satisfies orders.Tx and inventory.CatalogStore. Row locks are implied by
// the store-wide mutex.
type tx struct {
	st *state
}

var (
	_ orders.Tx              = (*tx)(nil)
	_ inventory.CatalogStore = (*tx)(nil)
)

func notFound(kind string, id any) error {
	return fmt.Errorf("%w: %s %v", inventory.ErrNotFound, kind, id)
}

// ---- catalog ----

func (t *tx) Batch(_ context.Context, id int64) (*inventory.Batch, error) {
	b, ok := t.st.batches[id]
	if !ok || b.DeletedAt != nil {
		return nil, notFound("batch", id)
	}
	return &b, nil
}

func (t *tx) LockBatch(ctx context.Context, id int64) (*inventory.Batch, error) {
	return t.Batch(ctx, id)
}

func (t *tx) SaveBatch(_ context.Context, b *inventory.Batch) error {
	if _, ok := t.st.batches[b.ID]; !ok {
		return notFound("batch", b.ID)
	}
	t.st.batches[b.ID] = *b
	return nil
}

func (t *tx) InsertBatch(_ context.Context, b *inventory.Batch) error {
	b.ID = t.st.nextID()
	t.st.batches[b.ID] = *b
	return nil
}

func (t *tx) Components(_ context.Context, productID int64) ([]inventory.Component, error) {
	var out []inventory.Component
	for _, c := range t.st.components {
		if c.ProductID != productID {
			continue
		}
		c.Batch = nil
		if c.BatchID != nil {
			if b, ok := t.st.batches[*c.BatchID]; ok && b.DeletedAt == nil {
				c.Batch = &b
			}
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b inventory.Component) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) Component(_ context.Context, id int64) (*inventory.Component, error) {
	c, ok := t.st.components[id]
	if !ok {
		return nil, notFound("component", id)
	}
	return &c, nil
}

func (t *tx) UpsertComponent(_ context.Context, c *inventory.Component) error {
	for id, cur := range t.st.components {
		if cur.ProductID == c.ProductID && sameBatch(cur.BatchID, c.BatchID) {
			c.ID = id
			break
		}
	}
	if c.ID == 0 {
		c.ID = t.st.nextID()
	}
	row := *c
	row.Batch = nil
	t.st.components[c.ID] = row
	return nil
}

func sameBatch(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (t *tx) DeleteComponent(_ context.Context, id int64) error {
	if _, ok := t.st.components[id]; !ok {
		return notFound("component", id)
	}
	delete(t.st.components, id)
	return nil
}

func (t *tx) ProductsUsingBatch(_ context.Context, batchID int64) ([]int64, error) {
	var ids []int64
	for _, c := range t.st.components {
		if c.BatchID != nil && *c.BatchID == batchID {
			ids = append(ids, c.ProductID)
		}
	}
	return ids, nil
}

func (t *tx) ActivityProductsFor(_ context.Context, productID int64) ([]inventory.ActivityProduct, error) {
	var out []inventory.ActivityProduct
	for _, ap := range t.st.activityProducts {
		if ap.ProductID == productID {
			out = append(out, ap)
		}
	}
	slices.SortFunc(out, func(a, b inventory.ActivityProduct) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) AllActivityProducts(_ context.Context) ([]inventory.ActivityProduct, error) {
	out := make([]inventory.ActivityProduct, 0, len(t.st.activityProducts))
	for _, ap := range t.st.activityProducts {
		out = append(out, ap)
	}
	slices.SortFunc(out, func(a, b inventory.ActivityProduct) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) SetActivityProductStock(_ context.Context, id int64, stock int) error {
	ap, ok := t.st.activityProducts[id]
	if !ok {
		return notFound("activity product", id)
	}
	ap.Stock = stock
	t.st.activityProducts[id] = ap
	return nil
}

func (t *tx) Product(_ context.Context, id int64) (*inventory.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (t *tx) Activity(_ context.Context, id int64) (*inventory.Activity, error) {
	a, ok := t.st.activities[id]
	if !ok {
		return nil, notFound("activity", id)
	}
	return &a, nil
}

func (t *tx) ActivityProduct(_ context.Context, activityID, productID int64) (*inventory.ActivityProduct, error) {
	for _, ap := range t.st.activityProducts {
		if ap.ActivityID == activityID && ap.ProductID == productID {
			return &ap, nil
		}
	}
	return nil, notFound("activity product", fmt.Sprintf("%d/%d", activityID, productID))
}

// ---- orders ----

func (t *tx) OrderNumberExists(_ context.Context, number string) (bool, error) {
	for _, o := range t.st.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertOrder(ctx context.Context, o *orders.Order) error {
	if exists, _ := t.OrderNumberExists(ctx, o.OrderNumber); exists {
		return fmt.Errorf("order number %s already exists", o.OrderNumber)
	}
	o.ID = t.st.nextID()
	t.st.orders[o.ID] = *o
	return nil
}

func (t *tx) UpdateOrder(_ context.Context, o *orders.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return notFound("order", o.ID)
	}
	t.st.orders[o.ID] = *o
	return nil
}

func (t *tx) Order(_ context.Context, id int64) (*orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return &o, nil
}

func (t *tx) LockOrder(ctx context.Context, id int64) (*orders.Order, error) {
	return t.Order(ctx, id)
}

func (t *tx) ExpiringOrders(_ context.Context, userID int64, from, to time.Time) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range t.st.orders {
		if o.UserID != userID || o.Status != orders.StatusPendingPayment {
			continue
		}
		if o.PaymentDeadline.After(from) && !o.PaymentDeadline.After(to) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b orders.Order) int { return a.PaymentDeadline.Compare(b.PaymentDeadline) })
	return out, nil
}

func (t *tx) InsertOrderItem(_ context.Context, it *orders.OrderItem) error {
	it.ID = t.st.nextID()
	t.st.orderItems[it.ID] = *it
	return nil
}

func (t *tx) OrderItems(_ context.Context, orderID int64) ([]orders.OrderItem, error) {
	var out []orders.OrderItem
	for _, it := range t.st.orderItems {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b orders.OrderItem) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) InsertReservation(_ context.Context, r *orders.Reservation) error {
	for _, cur := range t.st.reservations {
		if cur.OrderID == r.OrderID && cur.BatchID == r.BatchID {
			return fmt.Errorf("reservation for order %d batch %d already exists", r.OrderID, r.BatchID)
		}
	}
	r.ID = t.st.nextID()
	t.st.reservations[r.ID] = *r
	return nil
}

func (t *tx) Reservation(_ context.Context, id int64) (*orders.Reservation, error) {
	r, ok := t.st.reservations[id]
	if !ok {
		return nil, notFound("reservation", id)
	}
	return &r, nil
}

func (t *tx) LockReservation(ctx context.Context, id int64) (*orders.Reservation, error) {
	return t.Reservation(ctx, id)
}

func (t *tx) Reservations(_ context.Context, orderID int64) ([]orders.Reservation, error) {
	var out []orders.Reservation
	for _, r := range t.st.reservations {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b orders.Reservation) int { return cmp.Compare(a.BatchID, b.BatchID) })
	return out, nil
}

func (t *tx) ConfirmReservation(_ context.Context, id int64) error {
	r, ok := t.st.reservations[id]
	if !ok {
		return notFound("reservation", id)
	}
	r.IsConfirmed = true
	t.st.reservations[id] = r
	return nil
}

func (t *tx) DeleteReservation(_ context.Context, id int64) error {
	delete(t.st.reservations, id)
	return nil
}

func (t *tx) ExpiredReservations(_ context.Context, now time.Time, limit int) ([]orders.Reservation, error) {
	var out []orders.Reservation
	for _, r := range t.st.reservations {
		if !r.IsConfirmed && r.ExpiresAt.Before(now) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b orders.Reservation) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) AppendLog(_ context.Context, l *orders.InventoryLog) error {
	l.ID = t.st.nextID()
	t.st.logs = append(t.st.logs, *l)
	return nil
}

func (t *tx) Logs(_ context.Context, orderID int64) ([]orders.InventoryLog, error) {
	var out []orders.InventoryLog
	for _, l := range t.st.logs {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}
