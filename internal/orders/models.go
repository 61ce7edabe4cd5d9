package orders

import (
	"github.com/shopspring/decimal"
	"time"
)

type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          int64           `json:"user_id"`
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	ReceiverName    string          `json:"receiver_name"`
	ReceiverPhone   string          `json:"receiver_phone"`
	ReceiverAddress string          `json:"receiver_address"`
	ShippingNotes   string          `json:"shipping_notes,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PaymentDeadline time.Time       `json:"payment_deadline"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	// LockKeys lists the leases held while the order was created. Audit only.
	LockKeys  []string  `json:"lock_keys,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderItem struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	ActivityID *int64          `json:"activity_id,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	IsGift     bool            `json:"is_gift"`
}

// Reservation binds part of a batch's reserved stock to an order. There is
// one per (order, batch).
type Reservation struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	BatchID     int64     `json:"batch_id"`
	ItemID      int64     `json:"item_id"`
	Quantity    int       `json:"quantity"`
	IsConfirmed bool      `json:"is_confirmed"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type Operation string

const (
	OpReserve Operation = "reserve"
	OpConfirm Operation = "confirm"
	OpRelease Operation = "release"
	OpExpire  Operation = "expire"
)

// InventoryLog is an append-only audit row.
type InventoryLog struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	BatchID   int64     `json:"batch_id"`
	Operation Operation `json:"operation"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CartItem struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	ActivityID *int64 `json:"activity_id,omitempty" validate:"omitempty,gt=0"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
	IsGift     bool   `json:"is_gift,omitempty"`
}

type ShippingInfo struct {
	Name    string `json:"name" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"required,max=30"`
	Address string `json:"address" validate:"required,max=500"`
	Notes   string `json:"notes,omitempty" validate:"max=500"`
}

type PaymentInfo struct {
	Method string `json:"method,omitempty" validate:"max=50"`
}
