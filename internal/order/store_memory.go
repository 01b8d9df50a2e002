package order

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemStore keeps orders in process memory. Transactions are serialized by
// txMu; single calls only take mu.
type MemStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	orders   map[int64]Order
	lines    map[int64]Line
	nextID   int64
	nextLine int64
	now      func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders:   map[int64]Order{},
		lines:    map[int64]Line{},
		nextID:   1,
		nextLine: 1,
		now:      time.Now,
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(memTx{s})
}

// memTx is the store handed to transaction bodies. Nested WithinTx calls
// must not take txMu again.
type memTx struct {
	*MemStore
}

func (t memTx) WithinTx(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (s *MemStore) LastByStatus(_ context.Context, st Status) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  Order
		found bool
	)
	for _, o := range s.orders {
		if o.Status == st && (!found || o.ID > best.ID) {
			best, found = o, true
		}
	}
	if !found {
		return Order{}, ErrNotFound
	}
	return best, nil
}

func (s *MemStore) Create(_ context.Context, o Order) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Status == StatusNew {
		for _, existing := range s.orders {
			if existing.Status == StatusNew {
				return Order{}, ErrConflict
			}
		}
	}

	now := s.now().UTC()
	o.ID = s.nextID
	o.CreatedAt = now
	o.UpdatedAt = now
	s.nextID++
	s.orders[o.ID] = o
	return o, nil
}

func (s *MemStore) Get(_ context.Context, id int64) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *MemStore) LockOrder(ctx context.Context, id int64) (Order, error) {
	return s.Get(ctx, id)
}

func (s *MemStore) ListByStatus(_ context.Context, st Status) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Status == st {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (s *MemStore) Complete(_ context.Context, id int64, total decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != StatusNew {
		return false, nil
	}
	o.Status = StatusCompleted
	o.TotalPrice = total
	o.UpdatedAt = s.now().UTC()
	s.orders[id] = o
	return true, nil
}

func (s *MemStore) Lines(_ context.Context, orderID int64) ([]Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Line, 0, 8)
	for _, l := range s.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b Line) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (s *MemStore) LockLine(_ context.Context, orderID, itemID int64) (Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lines {
		if l.OrderID == orderID && l.ItemID == itemID {
			return l, nil
		}
	}
	return Line{}, ErrNotFound
}

func (s *MemStore) InsertLine(_ context.Context, orderID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.lines {
		if l.OrderID == orderID && l.ItemID == itemID {
			return nil
		}
	}
	l := Line{ID: s.nextLine, OrderID: orderID, ItemID: itemID}
	s.nextLine++
	s.lines[l.ID] = l
	return nil
}

func (s *MemStore) SetQuantity(_ context.Context, lineID int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lines[lineID]
	if !ok {
		return ErrNotFound
	}
	l.Quantity = qty
	s.lines[lineID] = l
	return nil
}

func (s *MemStore) DeleteLine(_ context.Context, lineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lines, lineID)
	return nil
}
