package checkout

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrDiscrepancyNotFound = errors.New("discrepancy not found")

// Discrepancy is a payment that went through for an order that is still NEW.
type Discrepancy struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

type Journal interface {
	Record(ctx context.Context, d Discrepancy) (Discrepancy, error)
	// Pending returns unresolved entries, oldest first.
	Pending(ctx context.Context, limit int) ([]Discrepancy, error)
	// PendingFor returns the unresolved entries of one order, oldest first.
	PendingFor(ctx context.Context, orderID int64) ([]Discrepancy, error)
	Resolve(ctx context.Context, id int64) error
}

// JournalHold holds every order with an unresolved discrepancy: its payment
// went through, so its lines are frozen until it is completed.
type JournalHold struct {
	Journal Journal
}

func (h JournalHold) Held(ctx context.Context, orderID int64) (bool, error) {
	pending, err := h.Journal.PendingFor(ctx, orderID)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

type MemJournal struct {
	mu     sync.Mutex
	m      map[int64]Discrepancy
	nextID int64
	now    func() time.Time
}

func NewMemJournal() *MemJournal {
	return &MemJournal{m: map[int64]Discrepancy{}, nextID: 1, now: time.Now}
}

func (j *MemJournal) Record(_ context.Context, d Discrepancy) (Discrepancy, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	d.ID = j.nextID
	d.CreatedAt = j.now().UTC()
	d.ResolvedAt = nil
	j.nextID++
	j.m[d.ID] = d
	return d, nil
}

func (j *MemJournal) Pending(_ context.Context, limit int) ([]Discrepancy, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Discrepancy, 0, len(j.m))
	for _, d := range j.m {
		if d.ResolvedAt == nil {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Discrepancy) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *MemJournal) PendingFor(_ context.Context, orderID int64) ([]Discrepancy, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Discrepancy
	for _, d := range j.m {
		if d.OrderID == orderID && d.ResolvedAt == nil {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Discrepancy) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (j *MemJournal) Resolve(_ context.Context, id int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	d, ok := j.m[id]
	if !ok {
		return ErrDiscrepancyNotFound
	}
	if d.ResolvedAt == nil {
		now := j.now().UTC()
		d.ResolvedAt = &now
		j.m[id] = d
	}
	return nil
}
