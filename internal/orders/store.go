package orders

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"time"
)

// Tx is the persistence seen from inside one transaction. Lock* methods take
// an exclusive row lock held until the transaction ends. Lookups of missing
// rows return an error wrapping ErrNotFound.
type Tx interface {
	inventory.Store

	Product(ctx context.Context, id int64) (*inventory.Product, error)
	Activity(ctx context.Context, id int64) (*inventory.Activity, error)
	ActivityProduct(ctx context.Context, activityID, productID int64) (*inventory.ActivityProduct, error)

	OrderNumberExists(ctx context.Context, number string) (bool, error)
	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	Order(ctx context.Context, id int64) (*Order, error)
	LockOrder(ctx context.Context, id int64) (*Order, error)
	// ExpiringOrders lists the user's pending orders with from < deadline <= to.
	ExpiringOrders(ctx context.Context, userID int64, from, to time.Time) ([]Order, error)

	InsertOrderItem(ctx context.Context, it *OrderItem) error
	OrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)

	InsertReservation(ctx context.Context, r *Reservation) error
	Reservation(ctx context.Context, id int64) (*Reservation, error)
	LockReservation(ctx context.Context, id int64) (*Reservation, error)
	// Reservations returns the order's reservations by ascending batch id.
	Reservations(ctx context.Context, orderID int64) ([]Reservation, error)
	ConfirmReservation(ctx context.Context, id int64) error
	DeleteReservation(ctx context.Context, id int64) error
	// ExpiredReservations returns unconfirmed reservations with expires_at < now,
	// oldest first.
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	AppendLog(ctx context.Context, l *InventoryLog) error
	Logs(ctx context.Context, orderID int64) ([]InventoryLog, error)
}

// Store runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
