package inventory_test

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/memstore"
	"github.com/ariefcatur/go-batch-reservations/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
	"time"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestAvailableStock(t *testing.T) {
	b := func(total int) *inventory.Batch { return &inventory.Batch{ID: 1, TotalQuantity: total} }

	tests := []struct {
		name       string
		components []inventory.Component
		want       int
	}{
		{"no components", nil, 0},
		{"single component", []inventory.Component{{Quantity: 2, Batch: b(100)}}, 50},
		{"floor of fractional ratio", []inventory.Component{{Quantity: 3, Batch: b(100)}}, 33},
		{"fractional quantity", []inventory.Component{{Quantity: 0.5, Batch: b(7)}}, 14},
		{"bottleneck wins", []inventory.Component{
			{Quantity: 1, Batch: b(100)},
			{Quantity: 4, Batch: b(20)},
		}, 5},
		{"missing batch blocks", []inventory.Component{
			{Quantity: 1, Batch: b(100)},
			{Quantity: 1},
		}, 0},
		{"non-limiting components ignored", []inventory.Component{
			{Quantity: 0},
			{Quantity: -1},
			{Quantity: 2, Batch: b(10)},
		}, 5},
		{"only non-limiting components", []inventory.Component{{Quantity: 0}}, 0},
		{"empty batch", []inventory.Component{{Quantity: 1, Batch: b(0)}}, 0},
		{"tiny quantity is capped", []inventory.Component{{Quantity: math.SmallestNonzeroFloat64, Batch: b(100)}}, math.MaxInt32},
		{"NaN quantity does not limit", []inventory.Component{
			{Quantity: math.NaN(), Batch: b(1)},
			{Quantity: 1, Batch: b(9)},
		}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inventory.AvailableStock(tt.components))
		})
	}
}

func TestBatchNormalize(t *testing.T) {
	b := &inventory.Batch{TotalQuantity: 100, ActiveStock: 10, ReservedStock: 25}
	b.Normalize(now)

	assert.Equal(t, 65, b.NormalStock)
	assert.Equal(t, b.TotalQuantity, b.ActiveStock+b.NormalStock+b.ReservedStock)
	assert.Equal(t, 75, b.Available())
	assert.Equal(t, inventory.BatchActive, b.State)
	assert.Nil(t, b.DaysToExpiry)

	b.ExpiryDate = ptr(now.Add(72 * time.Hour))
	b.Normalize(now)
	require.NotNil(t, b.DaysToExpiry)
	assert.Equal(t, 3, *b.DaysToExpiry)
	assert.Equal(t, inventory.BatchActive, b.State)

	b.ExpiryDate = ptr(now.Add(-time.Hour))
	b.Normalize(now)
	assert.Equal(t, inventory.BatchExpired, b.State)
}

type fixture struct {
	store    *memstore.Store
	batchID  int64
	apID     int64
	product  int64
	ledger   *inventory.Ledger
	services *inventory.Service
}

// newFixture seeds one batch of 100 and a product consuming 2 per unit that
// is offered by one activity.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	b := inventory.Batch{BatchNumber: "B-001", ItemID: 1, TotalQuantity: 100}
	b.Normalize(now)
	batchID := s.SeedBatch(b)
	productID := s.SeedProduct(inventory.Product{Code: "P-1", Name: "Gift box"})
	s.SeedComponent(inventory.Component{ProductID: productID, ItemID: 1, BatchID: &batchID, Quantity: 2})
	apID := s.SeedActivityProduct(inventory.ActivityProduct{ActivityID: 99, ProductID: productID, Stock: 50})

	return &fixture{
		store:    s,
		batchID:  batchID,
		apID:     apID,
		product:  productID,
		ledger:   &inventory.Ledger{Now: func() time.Time { return now }},
		services: &inventory.Service{Store: s, Now: func() time.Time { return now }},
	}
}

func (f *fixture) inTx(t *testing.T, fn func(tx inventory.CatalogStore) error) error {
	t.Helper()
	return f.store.InCatalogTx(context.Background(), fn)
}

func (f *fixture) batch(t *testing.T) inventory.Batch {
	t.Helper()
	b, ok := f.store.BatchSnapshot(f.batchID)
	require.True(t, ok)
	assert.Equal(t, b.TotalQuantity, b.ActiveStock+b.NormalStock+b.ReservedStock, "batch invariant broken")
	assert.GreaterOrEqual(t, b.ReservedStock, 0)
	return b
}

func TestLedgerReserve(t *testing.T) {
	f := newFixture(t)

	err := f.inTx(t, func(tx inventory.CatalogStore) error {
		_, err := f.ledger.Reserve(context.Background(), tx, f.batchID, 20)
		return err
	})
	require.NoError(t, err)

	b := f.batch(t)
	assert.Equal(t, 20, b.ReservedStock)
	assert.Equal(t, 80, b.Available())

	err = f.inTx(t, func(tx inventory.CatalogStore) error {
		_, err := f.ledger.Reserve(context.Background(), tx, f.batchID, 81)
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, 20, f.batch(t).ReservedStock, "failed reserve must not persist")
}

func TestLedgerConfirmLeavesReservedStock(t *testing.T) {
	f := newFixture(t)
	before := testutil.ToFloat64(metrics.ConfirmShortfallTotal)
	require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
		_, err := f.ledger.Reserve(context.Background(), tx, f.batchID, 10)
		return err
	}))

	require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
		_, err := f.ledger.Confirm(context.Background(), tx, f.batchID, 10)
		return err
	}))
	assert.Equal(t, 10, f.batch(t).ReservedStock)
	assert.Zero(t, testutil.ToFloat64(metrics.ConfirmShortfallTotal)-before)

	require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
		_, err := f.ledger.Confirm(context.Background(), tx, f.batchID, 15)
		return err
	}))
	assert.Equal(t, 10, f.batch(t).ReservedStock, "a shortfall is counted, not applied")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConfirmShortfallTotal)-before)
}

func TestLedgerReleaseClampsAtZero(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
		_, err := f.ledger.Reserve(context.Background(), tx, f.batchID, 10)
		return err
	}))

	var clamped bool
	require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
		var err error
		_, clamped, err = f.ledger.Release(context.Background(), tx, f.batchID, 4)
		return err
	}))
	assert.False(t, clamped)
	assert.Equal(t, 6, f.batch(t).ReservedStock)

	require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
		var err error
		_, clamped, err = f.ledger.Release(context.Background(), tx, f.batchID, 50)
		return err
	}))
	assert.True(t, clamped)
	assert.Equal(t, 0, f.batch(t).ReservedStock)
}

func TestCalculatorIsIdempotent(t *testing.T) {
	f := newFixture(t)
	for range 2 {
		require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
			n, err := inventory.CalculateAvailableStock(context.Background(), tx, f.product)
			assert.Equal(t, 50, n)
			return err
		}))
	}
	assert.Equal(t, 0, f.batch(t).ReservedStock)
}

func TestAdjustBatchRecomputesActivityStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.services.AdjustBatch(ctx, f.batchID, inventory.BatchAdjustment{TotalQuantity: ptr(61)})
	require.NoError(t, err)
	assert.Equal(t, 61, b.NormalStock)

	ap, _ := f.store.ActivityProductSnapshot(f.apID)
	assert.Equal(t, 30, ap.Stock)
}

func TestAdjustBatchRejectsTotalBelowReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.inTx(t, func(tx inventory.CatalogStore) error {
		_, err := f.ledger.Reserve(ctx, tx, f.batchID, 40)
		return err
	}))

	_, err := f.services.AdjustBatch(ctx, f.batchID, inventory.BatchAdjustment{TotalQuantity: ptr(30)})
	assert.ErrorIs(t, err, inventory.ErrInvalid)

	_, err = f.services.AdjustBatch(ctx, f.batchID, inventory.BatchAdjustment{TotalQuantity: ptr(90), ActiveStock: ptr(60)})
	assert.ErrorIs(t, err, inventory.ErrInvalid)
	assert.Equal(t, 100, f.batch(t).TotalQuantity)
}

func TestComponentChangesRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	small := inventory.Batch{BatchNumber: "B-002", ItemID: 2, TotalQuantity: 12}
	small.Normalize(now)
	smallID := f.store.SeedBatch(small)

	c := &inventory.Component{ProductID: f.product, ItemID: 2, BatchID: &smallID, Quantity: 3}
	require.NoError(t, f.services.UpsertComponent(ctx, c))
	ap, _ := f.store.ActivityProductSnapshot(f.apID)
	assert.Equal(t, 4, ap.Stock)

	require.NoError(t, f.services.DeleteComponent(ctx, c.ID))
	ap, _ = f.store.ActivityProductSnapshot(f.apID)
	assert.Equal(t, 50, ap.Stock)

	missing := int64(12345)
	err := f.services.UpsertComponent(ctx, &inventory.Component{ProductID: f.product, ItemID: 3, BatchID: &missing, Quantity: 1})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestCreateBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := &inventory.Batch{BatchNumber: "B-003", ItemID: 4, TotalQuantity: 30, ActiveStock: 5}
	require.NoError(t, f.services.CreateBatch(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, 25, b.NormalStock)

	err := f.services.CreateBatch(ctx, &inventory.Batch{TotalQuantity: 1, ActiveStock: 2})
	assert.ErrorIs(t, err, inventory.ErrInvalid)
}

func TestRecalculateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedActivityProduct(inventory.ActivityProduct{ActivityID: 100, ProductID: f.product, Stock: 7})
	f.store.SeedActivityProduct(inventory.ActivityProduct{ActivityID: 101, ProductID: f.product, Stock: 50})

	n, err := f.services.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the stale row changes")

	n, err = f.services.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stock, err := f.services.AvailableStock(ctx, f.product)
	require.NoError(t, err)
	assert.Equal(t, 50, stock)
}
