package orders

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/shopspring/decimal"
)

// Pricer returns the unit price of a product, optionally within an activity.
// ap is nil for lines without an activity.
type Pricer interface {
	UnitPrice(ctx context.Context, p *inventory.Product, ap *inventory.ActivityProduct) (decimal.Decimal, error)
}

// CatalogPricer charges the activity price when one is bound, else the
// product's default price.
type CatalogPricer struct{}

func (CatalogPricer) UnitPrice(_ context.Context, p *inventory.Product, ap *inventory.ActivityProduct) (decimal.Decimal, error) {
	if ap != nil {
		return ap.Price, nil
	}
	return p.DefaultPrice, nil
}
