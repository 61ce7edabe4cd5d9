package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// Store implements orders.Store and inventory.Transactor on a pgx pool.
type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{Pool: pool} }

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.run(ctx, func(t *txStore) error { return fn(t) })
}

func (s *Store) InCatalogTx(ctx context.Context, fn func(tx inventory.CatalogStore) error) error {
	return s.run(ctx, func(t *txStore) error { return fn(t) })
}

func (s *Store) run(ctx context.Context, fn func(t *txStore) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
}

var (
	_ orders.Tx              = (*txStore)(nil)
	_ inventory.CatalogStore = (*txStore)(nil)
)

func notFound(err error, kind string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", inventory.ErrNotFound, kind, id)
	}
	return err
}

// ---- batches ----

const batchColumns = `id, item_id, batch_number, warehouse, location, total_quantity, active_stock,
	normal_stock, reserved_stock, expiry_date, days_to_expiry, state, deleted_at, updated_at`

func scanBatch(row pgx.Row) (*inventory.Batch, error) {
	var b inventory.Batch
	err := row.Scan(&b.ID, &b.ItemID, &b.BatchNumber, &b.Warehouse, &b.Location, &b.TotalQuantity,
		&b.ActiveStock, &b.NormalStock, &b.ReservedStock, &b.ExpiryDate, &b.DaysToExpiry, &b.State,
		&b.DeletedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *txStore) Batch(ctx context.Context, id int64) (*inventory.Batch, error) {
	b, err := scanBatch(t.tx.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id=$1 AND deleted_at IS NULL`, id))
	return b, notFound(err, "batch", id)
}

func (t *txStore) LockBatch(ctx context.Context, id int64) (*inventory.Batch, error) {
	b, err := scanBatch(t.tx.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	return b, notFound(err, "batch", id)
}

func (t *txStore) SaveBatch(ctx context.Context, b *inventory.Batch) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE batches SET total_quantity=$2, active_stock=$3, normal_stock=$4, reserved_stock=$5,
			expiry_date=$6, days_to_expiry=$7, state=$8, updated_at=$9
		WHERE id=$1`,
		b.ID, b.TotalQuantity, b.ActiveStock, b.NormalStock, b.ReservedStock,
		b.ExpiryDate, b.DaysToExpiry, string(b.State), b.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: batch %d", inventory.ErrNotFound, b.ID)
	}
	return nil
}

func (t *txStore) InsertBatch(ctx context.Context, b *inventory.Batch) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO batches(item_id, batch_number, warehouse, location, total_quantity, active_stock,
			normal_stock, reserved_stock, expiry_date, days_to_expiry, state, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		b.ItemID, b.BatchNumber, b.Warehouse, b.Location, b.TotalQuantity, b.ActiveStock,
		b.NormalStock, b.ReservedStock, b.ExpiryDate, b.DaysToExpiry, string(b.State), b.UpdatedAt,
	).Scan(&b.ID)
}

// ---- components ----

const componentColumns = `id, product_id, item_id, batch_id, quantity, unit`

func (t *txStore) Components(ctx context.Context, productID int64) ([]inventory.Component, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+componentColumns+` FROM product_components WHERE product_id=$1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	var out []inventory.Component
	for rows.Next() {
		var c inventory.Component
		if err := rows.Scan(&c.ID, &c.ProductID, &c.ItemID, &c.BatchID, &c.Quantity, &c.Unit); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Batches load after the component rows are drained; the connection
	// carries one result set at a time.
	for i := range out {
		if out[i].BatchID == nil {
			continue
		}
		b, err := t.Batch(ctx, *out[i].BatchID)
		if errors.Is(err, inventory.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i].Batch = b
	}
	return out, nil
}

func (t *txStore) Component(ctx context.Context, id int64) (*inventory.Component, error) {
	var c inventory.Component
	err := t.tx.QueryRow(ctx, `SELECT `+componentColumns+` FROM product_components WHERE id=$1`, id).
		Scan(&c.ID, &c.ProductID, &c.ItemID, &c.BatchID, &c.Quantity, &c.Unit)
	if err != nil {
		return nil, notFound(err, "component", id)
	}
	return &c, nil
}

// UpsertComponent relies on UNIQUE (product_id, batch_id); rows without a
// batch never conflict and are always inserted.
func (t *txStore) UpsertComponent(ctx context.Context, c *inventory.Component) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO product_components(product_id, item_id, batch_id, quantity, unit)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (product_id, batch_id) DO UPDATE
			SET item_id=EXCLUDED.item_id, quantity=EXCLUDED.quantity, unit=EXCLUDED.unit
		RETURNING id`,
		c.ProductID, c.ItemID, c.BatchID, c.Quantity, c.Unit,
	).Scan(&c.ID)
}

func (t *txStore) DeleteComponent(ctx context.Context, id int64) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM product_components WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: component %d", inventory.ErrNotFound, id)
	}
	return nil
}

func (t *txStore) ProductsUsingBatch(ctx context.Context, batchID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT product_id FROM product_components WHERE batch_id=$1`, batchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ---- products & activities ----

const activityProductColumns = `id, activity_id, product_id, price, original_price, stock`

func collectActivityProducts(rows pgx.Rows) ([]inventory.ActivityProduct, error) {
	defer rows.Close()
	var out []inventory.ActivityProduct
	for rows.Next() {
		var ap inventory.ActivityProduct
		if err := rows.Scan(&ap.ID, &ap.ActivityID, &ap.ProductID, &ap.Price, &ap.OriginalPrice, &ap.Stock); err != nil {
			return nil, err
		}
		out = append(out, ap)
	}
	return out, rows.Err()
}

func (t *txStore) ActivityProductsFor(ctx context.Context, productID int64) ([]inventory.ActivityProduct, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+activityProductColumns+` FROM activity_products WHERE product_id=$1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	return collectActivityProducts(rows)
}

func (t *txStore) AllActivityProducts(ctx context.Context) ([]inventory.ActivityProduct, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+activityProductColumns+` FROM activity_products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectActivityProducts(rows)
}

// SetActivityProductStock touches only the stock column.
func (t *txStore) SetActivityProductStock(ctx context.Context, id int64, stock int) error {
	_, err := t.tx.Exec(ctx, `UPDATE activity_products SET stock=$2 WHERE id=$1`, id, stock)
	return err
}

func (t *txStore) ActivityProduct(ctx context.Context, activityID, productID int64) (*inventory.ActivityProduct, error) {
	var ap inventory.ActivityProduct
	err := t.tx.QueryRow(ctx,
		`SELECT `+activityProductColumns+` FROM activity_products WHERE activity_id=$1 AND product_id=$2`,
		activityID, productID,
	).Scan(&ap.ID, &ap.ActivityID, &ap.ProductID, &ap.Price, &ap.OriginalPrice, &ap.Stock)
	if err != nil {
		return nil, notFound(err, "activity product", fmt.Sprintf("%d/%d", activityID, productID))
	}
	return &ap, nil
}

func (t *txStore) Product(ctx context.Context, id int64) (*inventory.Product, error) {
	var p inventory.Product
	err := t.tx.QueryRow(ctx, `SELECT id, code, name, default_price, deleted_at FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.DefaultPrice, &p.DeletedAt)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

func (t *txStore) Activity(ctx context.Context, id int64) (*inventory.Activity, error) {
	var a inventory.Activity
	err := t.tx.QueryRow(ctx, `SELECT id, name, start_date, end_date, deleted_at FROM activities WHERE id=$1`, id).
		Scan(&a.ID, &a.Name, &a.StartDate, &a.EndDate, &a.DeletedAt)
	if err != nil {
		return nil, notFound(err, "activity", id)
	}
	return &a, nil
}

// ---- orders ----

const orderColumns = `id, order_number, user_id, status, total_amount, final_amount, receiver_name,
	receiver_phone, receiver_address, shipping_notes, notes, payment_method, payment_deadline,
	paid_at, completed_at, cancelled_at, lock_keys, created_at, updated_at`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TotalAmount, &o.FinalAmount,
		&o.ReceiverName, &o.ReceiverPhone, &o.ReceiverAddress, &o.ShippingNotes, &o.Notes,
		&o.PaymentMethod, &o.PaymentDeadline, &o.PaidAt, &o.CompletedAt, &o.CancelledAt,
		&o.LockKeys, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *txStore) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE order_number=$1)`, number).Scan(&exists)
	return exists, err
}

func (t *txStore) InsertOrder(ctx context.Context, o *orders.Order) error {
	if o.LockKeys == nil {
		o.LockKeys = []string{}
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO orders(order_number, user_id, status, total_amount, final_amount, receiver_name,
			receiver_phone, receiver_address, shipping_notes, notes, payment_method, payment_deadline,
			lock_keys, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`,
		o.OrderNumber, o.UserID, string(o.Status), o.TotalAmount, o.FinalAmount, o.ReceiverName,
		o.ReceiverPhone, o.ReceiverAddress, o.ShippingNotes, o.Notes, o.PaymentMethod, o.PaymentDeadline,
		o.LockKeys, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
}

func (t *txStore) UpdateOrder(ctx context.Context, o *orders.Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, total_amount=$3, final_amount=$4, notes=$5, payment_method=$6,
			paid_at=$7, completed_at=$8, cancelled_at=$9, updated_at=$10
		WHERE id=$1`,
		o.ID, string(o.Status), o.TotalAmount, o.FinalAmount, o.Notes, o.PaymentMethod,
		o.PaidAt, o.CompletedAt, o.CancelledAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %d", inventory.ErrNotFound, o.ID)
	}
	return nil
}

func (t *txStore) Order(ctx context.Context, id int64) (*orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	return o, notFound(err, "order", id)
}

func (t *txStore) LockOrder(ctx context.Context, id int64) (*orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	return o, notFound(err, "order", id)
}

func (t *txStore) ExpiringOrders(ctx context.Context, userID int64, from, to time.Time) ([]orders.Order, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 AND status=$2 AND payment_deadline > $3 AND payment_deadline <= $4
		ORDER BY payment_deadline`,
		userID, string(orders.StatusPendingPayment), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (t *txStore) InsertOrderItem(ctx context.Context, it *orders.OrderItem) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO order_items(order_id, product_id, activity_id, quantity, unit_price, total_price, is_gift)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		it.OrderID, it.ProductID, it.ActivityID, it.Quantity, it.UnitPrice, it.TotalPrice, it.IsGift,
	).Scan(&it.ID)
}

func (t *txStore) OrderItems(ctx context.Context, orderID int64) ([]orders.OrderItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, product_id, activity_id, quantity, unit_price, total_price, is_gift
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []orders.OrderItem
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ActivityID, &it.Quantity,
			&it.UnitPrice, &it.TotalPrice, &it.IsGift); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ---- reservations ----

const reservationColumns = `id, order_id, batch_id, item_id, quantity, is_confirmed, expires_at, created_at`

func scanReservation(row pgx.Row) (*orders.Reservation, error) {
	var r orders.Reservation
	if err := row.Scan(&r.ID, &r.OrderID, &r.BatchID, &r.ItemID, &r.Quantity, &r.IsConfirmed,
		&r.ExpiresAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReservations(rows pgx.Rows) ([]orders.Reservation, error) {
	defer rows.Close()
	var out []orders.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (t *txStore) InsertReservation(ctx context.Context, r *orders.Reservation) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO inventory_reservations(order_id, batch_id, item_id, quantity, is_confirmed, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		r.OrderID, r.BatchID, r.ItemID, r.Quantity, r.IsConfirmed, r.ExpiresAt, r.CreatedAt,
	).Scan(&r.ID)
}

func (t *txStore) Reservation(ctx context.Context, id int64) (*orders.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM inventory_reservations WHERE id=$1`, id))
	return r, notFound(err, "reservation", id)
}

func (t *txStore) LockReservation(ctx context.Context, id int64) (*orders.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM inventory_reservations WHERE id=$1 FOR UPDATE`, id))
	return r, notFound(err, "reservation", id)
}

func (t *txStore) Reservations(ctx context.Context, orderID int64) ([]orders.Reservation, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+reservationColumns+` FROM inventory_reservations WHERE order_id=$1 ORDER BY batch_id`, orderID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (t *txStore) ConfirmReservation(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_reservations SET is_confirmed=true WHERE id=$1`, id)
	return err
}

func (t *txStore) DeleteReservation(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM inventory_reservations WHERE id=$1`, id)
	return err
}

func (t *txStore) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]orders.Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+reservationColumns+` FROM inventory_reservations
		WHERE is_confirmed=false AND expires_at < $1
		ORDER BY expires_at, id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ---- audit log ----

func (t *txStore) AppendLog(ctx context.Context, l *orders.InventoryLog) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO order_inventory_logs(order_id, batch_id, operation, quantity, note, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		l.OrderID, l.BatchID, string(l.Operation), l.Quantity, l.Note, l.ActorID, l.CreatedAt,
	).Scan(&l.ID)
}

func (t *txStore) Logs(ctx context.Context, orderID int64) ([]orders.InventoryLog, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, batch_id, operation, quantity, note, actor_id, created_at
		FROM order_inventory_logs WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []orders.InventoryLog
	for rows.Next() {
		var l orders.InventoryLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.BatchID, &l.Operation, &l.Quantity, &l.Note,
			&l.ActorID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
