package orders

import (
	"context"
	"time"
)

// Queries are read-only views over orders.
type Queries struct {
	Store Store
	Now   func() time.Time
}

type OrderDetail struct {
	Order *Order      `json:"order"`
	Items []OrderItem `json:"items"`
}

func (q *Queries) Order(ctx context.Context, id int64) (*OrderDetail, error) {
	var d OrderDetail
	err := q.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, id)
		if err != nil {
			return err
		}
		d.Order = o
		d.Items, err = tx.OrderItems(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (q *Queries) Reservations(ctx context.Context, orderID int64) ([]Reservation, error) {
	var out []Reservation
	err := q.Store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Order(ctx, orderID); err != nil {
			return err
		}
		var err error
		out, err = tx.Reservations(ctx, orderID)
		return err
	})
	return out, err
}

func (q *Queries) InventoryLogs(ctx context.Context, orderID int64) ([]InventoryLog, error) {
	var out []InventoryLog
	err := q.Store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Order(ctx, orderID); err != nil {
			return err
		}
		var err error
		out, err = tx.Logs(ctx, orderID)
		return err
	})
	return out, err
}

// ExpiringOrders lists the user's pending orders whose payment deadline falls
// within the next window.
func (q *Queries) ExpiringOrders(ctx context.Context, userID int64, within time.Duration) ([]Order, error) {
	if within <= 0 {
		within = time.Hour
	}
	now := time.Now()
	if q.Now != nil {
		now = q.Now()
	}
	var out []Order
	err := q.Store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ExpiringOrders(ctx, userID, now, now.Add(within))
		return err
	})
	return out, err
}
