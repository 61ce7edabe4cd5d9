package inventory

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/metrics"
	"math"
	"slices"
)

// maxDerivedStock caps the result for vanishingly small component
// quantities; it is the largest value the stock column holds.
const maxDerivedStock = math.MaxInt32

// AvailableStock computes how many units of a product its components allow:
// the minimum over components of floor(batch.TotalQuantity / quantity).
// Components with quantity <= 0 do not limit. A limiting component without a
// batch, or no limiting component at all, yields 0.
func AvailableStock(components []Component) int {
	best := -1
	for _, c := range components {
		if !(c.Quantity > 0) {
			continue
		}
		if c.Batch == nil {
			return 0
		}
		n := maxDerivedStock
		if f := math.Floor(float64(c.Batch.TotalQuantity) / c.Quantity); f < maxDerivedStock {
			n = int(f)
		}
		if n < 0 {
			n = 0
		}
		if best < 0 || n < best {
			best = n
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// CalculateAvailableStock loads the product's components and computes its
// availability. It never writes.
func CalculateAvailableStock(ctx context.Context, tx Store, productID int64) (int, error) {
	cs, err := tx.Components(ctx, productID)
	if err != nil {
		return 0, err
	}
	return AvailableStock(cs), nil
}

// RecomputeProduct refreshes the cached stock of every activity product that
// offers productID. Returns how many cache rows changed.
func RecomputeProduct(ctx context.Context, tx Store, productID int64) (int, error) {
	stock, err := CalculateAvailableStock(ctx, tx, productID)
	if err != nil {
		return 0, err
	}
	aps, err := tx.ActivityProductsFor(ctx, productID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, ap := range aps {
		if ap.Stock == stock {
			continue
		}
		if err := tx.SetActivityProductStock(ctx, ap.ID, stock); err != nil {
			return changed, err
		}
		changed++
		logger.Debug(ctx).
			Int64("activity_product_id", ap.ID).
			Int64("product_id", productID).
			Int("old_stock", ap.Stock).
			Int("new_stock", stock).
			Msg("activity product stock recomputed")
	}
	metrics.StockRecomputedTotal.Add(float64(changed))
	return changed, nil
}

// RecomputeForBatch refreshes every product whose bill of materials uses batchID.
func RecomputeForBatch(ctx context.Context, tx Store, batchID int64) (int, error) {
	ids, err := tx.ProductsUsingBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	total := 0
	for _, id := range ids {
		n, err := RecomputeProduct(ctx, tx, id)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
