// Package notify fans committed order changes out to Kafka and the Redis
// order-status cache.
package notify

import (
	"context"
	kafkax "github.com/ariefcatur/go-batch-reservations/internal/kafka"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/ariefcatur/go-batch-reservations/internal/redisx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"time"
)

const eventVersion = 1

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header)
}

// Notifier implements orders.Notifier. Either side may be nil.
type Notifier struct {
	Publisher Publisher
	Cache     *redisx.StatusCache
	Service   string
	Now       func() time.Time
}

var _ orders.Notifier = (*Notifier)(nil)

func (n *Notifier) now() time.Time {
	if n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now().UTC()
}

func (n *Notifier) OrderCreated(ctx context.Context, o *orders.Order, items []orders.OrderItem) {
	prices := make([]orders.ItemPrice, 0, len(items))
	for _, it := range items {
		prices = append(prices, orders.ItemPrice{
			ProductID:  it.ProductID,
			ActivityID: it.ActivityID,
			Qty:        it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}
	n.publish(ctx, orders.TopicOrderCreated, orders.EventOrderCreated, o, orders.OrderCreatedPayload{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Items:           prices,
		TotalAmount:     o.TotalAmount,
		PaymentDeadline: o.PaymentDeadline,
	})
	n.cache(ctx, o)
}

func (n *Notifier) StatusChanged(ctx context.Context, o *orders.Order, from orders.Status) {
	n.publish(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, o, orders.OrderStatusChangedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		From:        from,
		To:          o.Status,
		ChangedAt:   o.UpdatedAt,
	})
	n.cache(ctx, o)
}

func (n *Notifier) publish(ctx context.Context, topic, eventType string, o *orders.Order, payload any) {
	if n.Publisher == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    n.now(),
		Producer:      n.Service,
		CorrelationID: o.OrderNumber,
		Payload:       kafkax.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	n.Publisher.Publish(ctx, topic, orders.PartitionKey(o.OrderNumber), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(eventType, eventVersion)...)
}

func (n *Notifier) cache(ctx context.Context, o *orders.Order) {
	if n.Cache == nil {
		return
	}
	err := n.Cache.Set(ctx, redisx.OrderStatus{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		UpdatedAt:   o.UpdatedAt,
	})
	if err != nil {
		logger.Warn(ctx).Err(err).Int64("order_id", o.ID).Msg("order status cache refresh failed")
	}
}
