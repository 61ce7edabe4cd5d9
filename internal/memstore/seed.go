package memstore

import (
	"cmp"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"slices"
)

// Seed and snapshot helpers bypass transactions. They are meant for tests and
// demo data, not for concurrent use with writers.

func (s *Store) SeedBatch(b inventory.Batch) int64 {
	s.write(func(st *state) {
		b.ID = st.claim(b.ID)
		st.batches[b.ID] = b
	})
	return b.ID
}

func (s *Store) SeedProduct(p inventory.Product) int64 {
	s.write(func(st *state) {
		p.ID = st.claim(p.ID)
		st.products[p.ID] = p
	})
	return p.ID
}

func (s *Store) SeedComponent(c inventory.Component) int64 {
	s.write(func(st *state) {
		c.ID = st.claim(c.ID)
		c.Batch = nil
		st.components[c.ID] = c
	})
	return c.ID
}

func (s *Store) SeedActivity(a inventory.Activity) int64 {
	s.write(func(st *state) {
		a.ID = st.claim(a.ID)
		st.activities[a.ID] = a
	})
	return a.ID
}

func (s *Store) SeedActivityProduct(ap inventory.ActivityProduct) int64 {
	s.write(func(st *state) {
		ap.ID = st.claim(ap.ID)
		st.activityProducts[ap.ID] = ap
	})
	return ap.ID
}

func (s *Store) SeedOrder(o orders.Order) int64 {
	s.write(func(st *state) {
		o.ID = st.claim(o.ID)
		st.orders[o.ID] = o
	})
	return o.ID
}

func (s *Store) SeedReservation(r orders.Reservation) int64 {
	s.write(func(st *state) {
		r.ID = st.claim(r.ID)
		st.reservations[r.ID] = r
	})
	return r.ID
}

func (s *Store) BatchSnapshot(id int64) (b inventory.Batch, ok bool) {
	s.read(func(st *state) { b, ok = st.batches[id] })
	return b, ok
}

func (s *Store) ActivityProductSnapshot(id int64) (ap inventory.ActivityProduct, ok bool) {
	s.read(func(st *state) { ap, ok = st.activityProducts[id] })
	return ap, ok
}

func (s *Store) OrderSnapshot(id int64) (o orders.Order, ok bool) {
	s.read(func(st *state) { o, ok = st.orders[id] })
	return o, ok
}

func (s *Store) OrderCount() (n int) {
	s.read(func(st *state) { n = len(st.orders) })
	return n
}

// ReservationsSnapshot returns every reservation row ordered by id.
func (s *Store) ReservationsSnapshot() []orders.Reservation {
	var out []orders.Reservation
	s.read(func(st *state) {
		for _, r := range st.reservations {
			out = append(out, r)
		}
	})
	slices.SortFunc(out, func(a, b orders.Reservation) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) LogsSnapshot() []orders.InventoryLog {
	var out []orders.InventoryLog
	s.read(func(st *state) { out = slices.Clone(st.logs) })
	return out
}
