package inventory

import (
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalid           = errors.New("validation failed")
)

type BatchState string

const (
	BatchActive     BatchState = "active"
	BatchLocked     BatchState = "locked"
	BatchQuarantine BatchState = "quarantine"
	BatchExpired    BatchState = "expired"
)

// Item is a raw material or unit type that batches are lots of.
type Item struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Batch is a physical lot of an Item.
//
// ActiveStock + NormalStock + ReservedStock == TotalQuantity holds after every
// Normalize, so NormalStock is already net of reservations.
type Batch struct {
	ID            int64      `json:"id"`
	ItemID        int64      `json:"item_id"`
	BatchNumber   string     `json:"batch_number"`
	Warehouse     string     `json:"warehouse"`
	Location      string     `json:"location,omitempty"`
	TotalQuantity int        `json:"total_quantity"`
	ActiveStock   int        `json:"active_stock"`
	NormalStock   int        `json:"normal_stock"`
	ReservedStock int        `json:"reserved_stock"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	DaysToExpiry  *int       `json:"days_to_expiry,omitempty"`
	State         BatchState `json:"state"`
	DeletedAt     *time.Time `json:"-"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Available is the quantity that can still be reserved.
func (b *Batch) Available() int { return b.NormalStock + b.ActiveStock }

// Normalize recomputes the derived fields. It must run before every save.
func (b *Batch) Normalize(now time.Time) {
	if b.State == "" {
		b.State = BatchActive
	}
	if b.ExpiryDate != nil {
		days := daysBetween(now, *b.ExpiryDate)
		b.DaysToExpiry = &days
		if days <= 0 {
			b.State = BatchExpired
		}
	}
	b.NormalStock = b.TotalQuantity - b.ActiveStock - b.ReservedStock
	b.UpdatedAt = now
}

func (b *Batch) String() string {
	if b.BatchNumber != "" {
		return b.BatchNumber
	}
	return fmt.Sprintf("#%d", b.ID)
}

func daysBetween(from, to time.Time) int {
	y1, m1, d1 := from.UTC().Date()
	y2, m2, d2 := to.UTC().Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Component is one line of a product's bill of materials. Batch is nil when the
// relation has no batch bound.
type Component struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id"`
	ItemID    int64   `json:"item_id"`
	BatchID   *int64  `json:"batch_id,omitempty"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit,omitempty"`
	Batch     *Batch  `json:"-"`
}

// Product is a sellable product.
type Product struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	DefaultPrice decimal.Decimal `json:"default_price"`
	DeletedAt    *time.Time      `json:"-"`
}

func (p *Product) Deleted() bool { return p.DeletedAt != nil }

// Activity is a time-boxed promotion offering some products at activity prices.
type Activity struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	DeletedAt *time.Time `json:"-"`
}

func (a *Activity) Deleted() bool { return a.DeletedAt != nil }

// Running reports whether now falls inside the activity window.
func (a *Activity) Running(now time.Time) bool {
	return !now.Before(a.StartDate) && !now.After(a.EndDate)
}

// ActivityProduct binds a product to an activity. Stock is a cache of the
// derived availability and is rewritten by recomputation only.
type ActivityProduct struct {
	ID            int64           `json:"id"`
	ActivityID    int64           `json:"activity_id"`
	ProductID     int64           `json:"product_id"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Stock         int             `json:"stock"`
}
