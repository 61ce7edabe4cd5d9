// Package memstore is an in-process implementation of the order and catalog
// stores. Transactions are serialized behind one mutex and run against a copy
// of the data that replaces the original only when fn succeeds.
package memstore

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"maps"
	"slices"
	"sync"
)

type state struct {
	seq int64

	batches          map[int64]inventory.Batch
	components       map[int64]inventory.Component
	products         map[int64]inventory.Product
	activities       map[int64]inventory.Activity
	activityProducts map[int64]inventory.ActivityProduct

	orders       map[int64]orders.Order
	orderItems   map[int64]orders.OrderItem
	reservations map[int64]orders.Reservation
	logs         []orders.InventoryLog
}

func newState() *state {
	return &state{
		batches:          map[int64]inventory.Batch{},
		components:       map[int64]inventory.Component{},
		products:         map[int64]inventory.Product{},
		activities:       map[int64]inventory.Activity{},
		activityProducts: map[int64]inventory.ActivityProduct{},
		orders:           map[int64]orders.Order{},
		orderItems:       map[int64]orders.OrderItem{},
		reservations:     map[int64]orders.Reservation{},
	}
}

// clone copies every table. Values held in the maps are never mutated in
// place, so a shallow copy is enough.
func (s *state) clone() *state {
	return &state{
		seq:              s.seq,
		batches:          maps.Clone(s.batches),
		components:       maps.Clone(s.components),
		products:         maps.Clone(s.products),
		activities:       maps.Clone(s.activities),
		activityProducts: maps.Clone(s.activityProducts),
		orders:           maps.Clone(s.orders),
		orderItems:       maps.Clone(s.orderItems),
		reservations:     maps.Clone(s.reservations),
		logs:             slices.Clone(s.logs),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// claim keeps a caller-chosen id, or allocates one when id is zero.
func (s *state) claim(id int64) int64 {
	if id == 0 {
		return s.nextID()
	}
	if id > s.seq {
		s.seq = id
	}
	return id
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(t) })
}

func (s *Store) InCatalogTx(ctx context.Context, fn func(tx inventory.CatalogStore) error) error {
	return s.run(ctx, func(t *tx) error { return fn(t) })
}

func (s *Store) run(ctx context.Context, fn func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (s *Store) write(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}
