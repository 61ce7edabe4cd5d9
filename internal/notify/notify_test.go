package notify

import (
	"context"
	"encoding/json"
	"github.com/alicebob/miniredis/v2"
	kafkax "github.com/ariefcatur/go-batch-reservations/internal/kafka"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/ariefcatur/go-batch-reservations/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

type published struct {
	topic   string
	key     string
	value   []byte
	headers []kafka.Header
}

type capture struct {
	mu   sync.Mutex
	msgs []published
}

func (c *capture) Publish(_ context.Context, topic string, key, value []byte, headers ...kafka.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, string(key), value, headers})
}

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Notifier, *capture, *redisx.StatusCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := &redisx.StatusCache{RDB: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	pub := &capture{}
	return &Notifier{Publisher: pub, Cache: cache, Service: "order-api", Now: func() time.Time { return now }}, pub, cache
}

func TestOrderCreatedPublishesEnvelope(t *testing.T) {
	n, pub, cache := setup(t)
	ctx := context.Background()
	o := &orders.Order{
		ID: 7, OrderNumber: "ORD-ABC", UserID: 3, Status: orders.StatusPendingPayment,
		TotalAmount: decimal.RequireFromString("25.00"), PaymentDeadline: now.Add(30 * time.Minute), UpdatedAt: now,
	}
	n.OrderCreated(ctx, o, []orders.OrderItem{{ProductID: 11, Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")}})

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, orders.TopicOrderCreated, m.topic)
	assert.Equal(t, "ORD-ABC", m.key)

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(m.value, &env))
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, orders.EventOrderCreated, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "ORD-ABC", env.CorrelationID)
	assert.Equal(t, "order-api", env.Producer)

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.OrderID)
	require.Len(t, p.Items, 1)
	assert.Equal(t, 2, p.Items[0].Qty)
	assert.True(t, decimal.RequireFromString("25").Equal(p.TotalAmount))

	cached, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "pending_payment", cached.Status)
}

func TestStatusChangedRefreshesCache(t *testing.T) {
	n, pub, cache := setup(t)
	ctx := context.Background()
	o := &orders.Order{ID: 9, OrderNumber: "ORD-XYZ", Status: orders.StatusCancelled, UpdatedAt: now}

	n.StatusChanged(ctx, o, orders.StatusPendingPayment)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, orders.TopicOrderStatusChanged, pub.msgs[0].topic)
	assert.Equal(t, orders.EventOrderStatusChanged, kafkax.Header(kafka.Message{Headers: pub.msgs[0].headers}, kafkax.HeaderEventType))

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &env))
	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPendingPayment, p.From)
	assert.Equal(t, orders.StatusCancelled, p.To)

	cached, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "cancelled", cached.Status)
}

func TestNotifierToleratesMissingSinks(t *testing.T) {
	n := &Notifier{}
	o := &orders.Order{ID: 1, OrderNumber: "ORD-1", Status: orders.StatusPaid}
	assert.NotPanics(t, func() {
		n.OrderCreated(context.Background(), o, nil)
		n.StatusChanged(context.Background(), o, orders.StatusPendingPayment)
	})
}

func TestCacheFailureDoesNotPanic(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := &redisx.StatusCache{RDB: redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})}
	mr.Close()
	n := &Notifier{Cache: cache}
	assert.NotPanics(t, func() {
		n.StatusChanged(context.Background(), &orders.Order{ID: 1, Status: orders.StatusPaid}, orders.StatusPendingPayment)
	})
}
