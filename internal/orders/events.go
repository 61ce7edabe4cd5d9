package orders

import (
	"encoding/json"
	"github.com/shopspring/decimal"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentAuthorized  = "PaymentAuthorized"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order number
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID  int64           `json:"product_id"`
	ActivityID *int64          `json:"activity_id,omitempty"`
	Qty        int             `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	UserID          int64           `json:"user_id"`
	Items           []ItemPrice     `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentDeadline time.Time       `json:"payment_deadline"`
}

type OrderStatusChangedPayload struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	ChangedAt   time.Time `json:"changed_at"`
}

// PaymentAuthorizedPayload is published by the payment processor.
type PaymentAuthorizedPayload struct {
	OrderID    int64           `json:"order_id"`
	PaymentRef string          `json:"payment_ref"`
	Method     string          `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
}
