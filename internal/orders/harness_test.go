package orders_test

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/lock"
	"github.com/ariefcatur/go-batch-reservations/internal/memstore"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

var start = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []string
	changes []string
}

func (n *recordingNotifier) OrderCreated(_ context.Context, o *orders.Order, _ []orders.OrderItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, o.OrderNumber)
}

func (n *recordingNotifier) StatusChanged(_ context.Context, o *orders.Order, from orders.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, string(from)+"->"+string(o.Status))
}

type harness struct {
	store     *memstore.Store
	locks     *lock.Memory
	clock     *clock
	notifier  *recordingNotifier
	engine    *orders.Engine
	lifecycle *orders.Lifecycle
	sweeper   *orders.Sweeper
	queries   *orders.Queries

	batchID   int64
	productID int64
}

// newHarness seeds one batch of total units and one product priced at 12.50
// that consumes perUnit of the batch per unit sold.
func newHarness(t *testing.T, total int, perUnit float64) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(),
		locks:    lock.NewMemory(),
		clock:    &clock{t: start},
		notifier: &recordingNotifier{},
	}

	ledger := &inventory.Ledger{Now: h.clock.Now}
	h.engine = orders.NewEngine(h.store, h.locks, orders.EngineConfig{PaymentTimeout: 30 * time.Minute})
	h.engine.Now = h.clock.Now
	h.engine.Ledger = ledger
	h.engine.Notifier = h.notifier

	h.lifecycle = orders.NewLifecycle(h.store)
	h.lifecycle.Now = h.clock.Now
	h.lifecycle.Ledger = ledger
	h.lifecycle.Notifier = h.notifier

	h.sweeper = orders.NewSweeper(h.store, h.lifecycle)
	h.sweeper.Now = h.clock.Now
	h.queries = &orders.Queries{Store: h.store, Now: h.clock.Now}

	h.batchID = h.seedBatch("B-100", total)
	h.productID = h.seedProduct("P-100", "12.50", map[int64]float64{h.batchID: perUnit})
	return h
}

func (h *harness) seedBatch(number string, total int) int64 {
	b := inventory.Batch{BatchNumber: number, ItemID: 1, TotalQuantity: total}
	b.Normalize(start)
	return h.store.SeedBatch(b)
}

func (h *harness) seedProduct(code, price string, bom map[int64]float64) int64 {
	id := h.store.SeedProduct(inventory.Product{Code: code, Name: code, DefaultPrice: decimal.RequireFromString(price)})
	for batchID, qty := range bom {
		h.store.SeedComponent(inventory.Component{ProductID: id, ItemID: 1, BatchID: &batchID, Quantity: qty})
	}
	return id
}

// seedActivity creates a running activity offering productID at price.
func (h *harness) seedActivity(productID int64, price string) int64 {
	id := h.store.SeedActivity(inventory.Activity{
		Name:      "flash sale",
		StartDate: start.Add(-time.Hour),
		EndDate:   start.Add(24 * time.Hour),
	})
	h.store.SeedActivityProduct(inventory.ActivityProduct{
		ActivityID: id,
		ProductID:  productID,
		Price:      decimal.RequireFromString(price),
	})
	return id
}

func (h *harness) batch(t *testing.T, id int64) inventory.Batch {
	t.Helper()
	b, ok := h.store.BatchSnapshot(id)
	require.True(t, ok)
	require.Equal(t, b.TotalQuantity, b.ActiveStock+b.NormalStock+b.ReservedStock, "batch invariant broken")
	require.GreaterOrEqual(t, b.ReservedStock, 0)
	require.GreaterOrEqual(t, b.Available(), 0)
	return b
}

func (h *harness) checkout(t *testing.T, userID int64, cart ...orders.CartItem) *orders.Order {
	t.Helper()
	o, err := h.engine.CreateOrderWithReservation(context.Background(), userID, cart, shipping)
	require.NoError(t, err)
	return o
}

func (h *harness) reservations(orderID int64) []orders.Reservation {
	var out []orders.Reservation
	for _, r := range h.store.ReservationsSnapshot() {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out
}

func (h *harness) logs(orderID int64, op orders.Operation) []orders.InventoryLog {
	var out []orders.InventoryLog
	for _, l := range h.store.LogsSnapshot() {
		if l.OrderID == orderID && l.Operation == op {
			out = append(out, l)
		}
	}
	return out
}

var shipping = orders.ShippingInfo{Name: "Mei", Phone: "0912345678", Address: "1 Harbour Rd"}

func line(productID int64, qty int) orders.CartItem {
	return orders.CartItem{ProductID: productID, Quantity: qty}
}

func ptr[T any](v T) *T { return &v }
