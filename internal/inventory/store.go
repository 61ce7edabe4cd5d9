package inventory

import "context"

// Store is the transaction-scoped persistence the ledger and calculator need.
// Every method runs inside the caller's transaction.
type Store interface {
	Batch(ctx context.Context, id int64) (*Batch, error)
	// LockBatch reads the batch with an exclusive row lock held until the
	// transaction ends.
	LockBatch(ctx context.Context, id int64) (*Batch, error)
	SaveBatch(ctx context.Context, b *Batch) error

	// Components returns the product's bill of materials with each bound
	// Batch loaded.
	Components(ctx context.Context, productID int64) ([]Component, error)
	ProductsUsingBatch(ctx context.Context, batchID int64) ([]int64, error)
	ActivityProductsFor(ctx context.Context, productID int64) ([]ActivityProduct, error)
	// SetActivityProductStock writes only the cached stock column.
	SetActivityProductStock(ctx context.Context, id int64, stock int) error
}

// CatalogStore adds the admin mutations.
type CatalogStore interface {
	Store
	InsertBatch(ctx context.Context, b *Batch) error
	Component(ctx context.Context, id int64) (*Component, error)
	// UpsertComponent inserts or updates by (product, batch).
	UpsertComponent(ctx context.Context, c *Component) error
	DeleteComponent(ctx context.Context, id int64) error
	AllActivityProducts(ctx context.Context) ([]ActivityProduct, error)
}

type Transactor interface {
	InCatalogTx(ctx context.Context, fn func(tx CatalogStore) error) error
}
