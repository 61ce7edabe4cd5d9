package inventory

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"time"
)

// Service holds the admin-side catalog mutations. Each one commits its change
// and the resulting stock recomputation in a single transaction.
type Service struct {
	Store Transactor
	Now   func() time.Time
}

// BatchAdjustment carries the admin-editable batch fields. Nil fields are left
// unchanged.
type BatchAdjustment struct {
	TotalQuantity *int
	ActiveStock   *int
	ExpiryDate    *time.Time
	State         *BatchState
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) CreateBatch(ctx context.Context, b *Batch) error {
	if b.TotalQuantity < 0 || b.ActiveStock < 0 || b.ReservedStock != 0 {
		return fmt.Errorf("%w: new batch quantities must be non-negative and unreserved", ErrInvalid)
	}
	if b.ActiveStock > b.TotalQuantity {
		return fmt.Errorf("%w: active stock %d exceeds total %d", ErrInvalid, b.ActiveStock, b.TotalQuantity)
	}
	return s.Store.InCatalogTx(ctx, func(tx CatalogStore) error {
		b.Normalize(s.now())
		if err := tx.InsertBatch(ctx, b); err != nil {
			return err
		}
		_, err := RecomputeForBatch(ctx, tx, b.ID)
		return err
	})
}

// AdjustBatch applies an admin correction. Reserved stock is never edited
// here; the new total must still cover it.
func (s *Service) AdjustBatch(ctx context.Context, id int64, adj BatchAdjustment) (*Batch, error) {
	var out *Batch
	err := s.Store.InCatalogTx(ctx, func(tx CatalogStore) error {
		b, err := tx.LockBatch(ctx, id)
		if err != nil {
			return err
		}
		if adj.TotalQuantity != nil {
			b.TotalQuantity = *adj.TotalQuantity
		}
		if adj.ActiveStock != nil {
			b.ActiveStock = *adj.ActiveStock
		}
		if adj.ExpiryDate != nil {
			b.ExpiryDate = adj.ExpiryDate
		}
		if adj.State != nil {
			b.State = *adj.State
		}
		if b.TotalQuantity < 0 || b.ActiveStock < 0 {
			return fmt.Errorf("%w: quantities must be non-negative", ErrInvalid)
		}
		if b.ActiveStock+b.ReservedStock > b.TotalQuantity {
			return fmt.Errorf("%w: total %d cannot cover active %d and reserved %d",
				ErrInvalid, b.TotalQuantity, b.ActiveStock, b.ReservedStock)
		}

		b.Normalize(s.now())
		if err := tx.SaveBatch(ctx, b); err != nil {
			return err
		}
		if _, err := RecomputeForBatch(ctx, tx, b.ID); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx).
		Int64("batch_id", out.ID).
		Int("total_quantity", out.TotalQuantity).
		Int("active_stock", out.ActiveStock).
		Int("reserved_stock", out.ReservedStock).
		Str("state", string(out.State)).
		Msg("batch adjusted")
	return out, nil
}

func (s *Service) UpsertComponent(ctx context.Context, c *Component) error {
	if c.ProductID == 0 || c.ItemID == 0 {
		return fmt.Errorf("%w: component needs product and item", ErrInvalid)
	}
	return s.Store.InCatalogTx(ctx, func(tx CatalogStore) error {
		if c.BatchID != nil {
			if _, err := tx.Batch(ctx, *c.BatchID); err != nil {
				return err
			}
		}
		if err := tx.UpsertComponent(ctx, c); err != nil {
			return err
		}
		_, err := RecomputeProduct(ctx, tx, c.ProductID)
		return err
	})
}

func (s *Service) DeleteComponent(ctx context.Context, id int64) error {
	return s.Store.InCatalogTx(ctx, func(tx CatalogStore) error {
		c, err := tx.Component(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteComponent(ctx, id); err != nil {
			return err
		}
		_, err = RecomputeProduct(ctx, tx, c.ProductID)
		return err
	})
}

// AvailableStock recomputes a product's availability without touching any
// cache.
func (s *Service) AvailableStock(ctx context.Context, productID int64) (int, error) {
	var n int
	err := s.Store.InCatalogTx(ctx, func(tx CatalogStore) error {
		var err error
		n, err = CalculateAvailableStock(ctx, tx, productID)
		return err
	})
	return n, err
}

// RecalculateAll rewrites every stale activity product stock cache and
// returns how many changed.
func (s *Service) RecalculateAll(ctx context.Context) (int, error) {
	updated := 0
	err := s.Store.InCatalogTx(ctx, func(tx CatalogStore) error {
		aps, err := tx.AllActivityProducts(ctx)
		if err != nil {
			return err
		}
		stock := map[int64]int{}
		for _, ap := range aps {
			n, ok := stock[ap.ProductID]
			if !ok {
				if n, err = CalculateAvailableStock(ctx, tx, ap.ProductID); err != nil {
					return err
				}
				stock[ap.ProductID] = n
			}
			if ap.Stock == n {
				continue
			}
			if err := tx.SetActivityProductStock(ctx, ap.ID, n); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info(ctx).Int("updated", updated).Msg("activity product stock recalculated")
	return updated, nil
}
