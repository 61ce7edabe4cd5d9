package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/lock"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"os"
	"sync"
	"testing"
	"time"
)

type StoreSuite struct {
	suite.Suite
	pool  *pgxpool.Pool
	store *Store
	now   time.Time
	seq   int
}

func TestStoreSuite(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	suite.Run(t, &StoreSuite{})
}

func (s *StoreSuite) SetupSuite() {
	ctx := context.Background()
	pool, err := Connect(ctx, os.Getenv("POSTGRES_TEST_DSN"))
	s.Require().NoError(err)
	s.Require().NoError(Migrate(ctx, pool))
	s.pool = pool
	s.store = NewStore(pool)
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *StoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *StoreSuite) uniq(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d-%d", prefix, s.now.UnixNano(), s.seq)
}

// seed creates an item, a batch of total units and a product consuming perUnit
// of it, plus a running activity offering the product.
func (s *StoreSuite) seed(total int, perUnit float64) (batchID, productID int64) {
	ctx := context.Background()
	var itemID int64
	s.Require().NoError(s.pool.QueryRow(ctx,
		`INSERT INTO items(code, name) VALUES ($1, $1) RETURNING id`, s.uniq("item")).Scan(&itemID))

	svc := &inventory.Service{Store: s.store, Now: func() time.Time { return s.now }}
	b := &inventory.Batch{ItemID: itemID, BatchNumber: s.uniq("B"), TotalQuantity: total}
	s.Require().NoError(svc.CreateBatch(ctx, b))

	s.Require().NoError(s.pool.QueryRow(ctx,
		`INSERT INTO products(code, name, default_price) VALUES ($1, $1, 12.50) RETURNING id`, s.uniq("P")).Scan(&productID))
	var activityID int64
	s.Require().NoError(s.pool.QueryRow(ctx,
		`INSERT INTO activities(name, start_date, end_date) VALUES ('sale', $1, $2) RETURNING id`,
		s.now.Add(-time.Hour), s.now.Add(24*time.Hour)).Scan(&activityID))
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity_products(activity_id, product_id, price) VALUES ($1, $2, 9.99)`, activityID, productID)
	s.Require().NoError(err)

	s.Require().NoError(svc.UpsertComponent(ctx, &inventory.Component{ProductID: productID, ItemID: itemID, BatchID: &b.ID, Quantity: perUnit}))
	return b.ID, productID
}

func (s *StoreSuite) engine() *orders.Engine {
	e := orders.NewEngine(s.store, lock.NewMemory(), orders.EngineConfig{})
	e.Now = func() time.Time { return s.now }
	return e
}

func (s *StoreSuite) TestReserveAndCancelRoundTrip() {
	ctx := context.Background()
	batchID, productID := s.seed(100, 2)

	o, err := s.engine().CreateOrderWithReservation(ctx, 1,
		[]orders.CartItem{{ProductID: productID, Quantity: 10}},
		orders.ShippingInfo{Name: "Mei", Phone: "0912", Address: "1 Harbour Rd"})
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("125").Equal(o.TotalAmount))

	var reserved, normal int
	s.Require().NoError(s.pool.QueryRow(ctx,
		`SELECT reserved_stock, normal_stock FROM batches WHERE id=$1`, batchID).Scan(&reserved, &normal))
	s.Equal(20, reserved)
	s.Equal(80, normal)

	var stock int
	s.Require().NoError(s.pool.QueryRow(ctx,
		`SELECT stock FROM activity_products WHERE product_id=$1`, productID).Scan(&stock))
	s.Equal(50, stock, "derived stock follows total quantity, not reservations")

	lc := orders.NewLifecycle(s.store)
	lc.Now = func() time.Time { return s.now }
	cancelled, err := lc.CancelOrder(ctx, o.ID, "test", nil)
	s.Require().NoError(err)
	s.Equal(orders.StatusCancelled, cancelled.Status)

	s.Require().NoError(s.pool.QueryRow(ctx,
		`SELECT reserved_stock FROM batches WHERE id=$1`, batchID).Scan(&reserved))
	s.Zero(reserved)

	q := &orders.Queries{Store: s.store}
	logs, err := q.InventoryLogs(ctx, o.ID)
	s.Require().NoError(err)
	s.Len(logs, 2)
}

// grantAll hands out every lease, so concurrent checkouts meet only at the
// batch row lock.
type grantAll struct{}

func (grantAll) Acquire(_ context.Context, key string, _ time.Duration) (lock.Lease, bool, error) {
	return lock.Lease{Key: key}, true, nil
}

func (grantAll) Release(context.Context, lock.Lease) error { return nil }

func (s *StoreSuite) TestConcurrentCheckoutNeverOversells() {
	const (
		perUnit = 2
		units   = 7
		buyers  = 20
	)
	ctx := context.Background()
	batchID, productID := s.seed(units*perUnit, perUnit)

	e := orders.NewEngine(s.store, grantAll{}, orders.EngineConfig{})
	e.Now = func() time.Time { return s.now }

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		soldOut   int
		other     []error
	)
	for i := range buyers {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := e.CreateOrderWithReservation(ctx, user,
				[]orders.CartItem{{ProductID: productID, Quantity: 1}},
				orders.ShippingInfo{Name: "Mei", Phone: "0912", Address: "1 Harbour Rd"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, orders.ErrInsufficientStock):
				soldOut++
			default:
				other = append(other, err)
			}
		}(int64(1000 + i))
	}
	wg.Wait()

	s.Empty(other)
	s.Equal(units, succeeded)
	s.Equal(buyers-units, soldOut)

	var reserved, normal int
	s.Require().NoError(s.pool.QueryRow(ctx,
		`SELECT reserved_stock, normal_stock FROM batches WHERE id=$1`, batchID).Scan(&reserved, &normal))
	s.Equal(units*perUnit, reserved)
	s.Zero(normal)

	var reservations int
	s.Require().NoError(s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM inventory_reservations WHERE batch_id=$1`, batchID).Scan(&reservations))
	s.Equal(units*perUnit, reservations)
}

func (s *StoreSuite) TestRollbackLeavesNoTrace() {
	ctx := context.Background()
	batchID, _ := s.seed(10, 1)

	boom := fmt.Errorf("boom")
	err := s.store.InTx(ctx, func(tx orders.Tx) error {
		b, err := tx.LockBatch(ctx, batchID)
		if err != nil {
			return err
		}
		b.ReservedStock = 5
		b.Normalize(s.now)
		if err := tx.SaveBatch(ctx, b); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	err = s.store.InTx(ctx, func(tx orders.Tx) error {
		b, err := tx.Batch(ctx, batchID)
		if err != nil {
			return err
		}
		s.Zero(b.ReservedStock)
		return nil
	})
	s.NoError(err)
}

func (s *StoreSuite) TestMissingRowsWrapNotFound() {
	ctx := context.Background()
	err := s.store.InTx(ctx, func(tx orders.Tx) error {
		_, err := tx.Order(ctx, -1)
		return err
	})
	s.ErrorIs(err, orders.ErrNotFound)

	err = s.store.InCatalogTx(ctx, func(tx inventory.CatalogStore) error {
		return tx.DeleteComponent(ctx, -1)
	})
	s.ErrorIs(err, inventory.ErrNotFound)
}
