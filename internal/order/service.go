package order

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"InterShop/internal/catalog"
)

// ItemSource resolves the items lines point at.
type ItemSource interface {
	FindByID(ctx context.Context, id int64) (catalog.Item, error)
	FindByIDs(ctx context.Context, ids []int64) ([]catalog.Item, error)
}

// Hold reports orders whose lines must not change, such as a cart that was
// paid for but not yet completed.
type Hold interface {
	Held(ctx context.Context, orderID int64) (bool, error)
}

// finalizeAttempts bounds how often FinalizeOrder re-reads lines that changed
// between resolving their items and locking the order.
const finalizeAttempts = 3

var errLinesChanged = errors.New("order lines changed while finalizing")

type Service struct {
	store Store
	items ItemSource
	hold  Hold
	log   *zap.Logger
}

func NewService(store Store, items ItemSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, items: items, log: log}
}

// WithHold makes UpdateLineCount refuse carts h reports as held.
func (s *Service) WithHold(h Hold) *Service {
	s.hold = h
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetOrCreateCart returns the NEW order, creating it when there is none. A
// concurrent creator winning the insert is resolved by reading its cart.
func (s *Service) GetOrCreateCart(ctx context.Context) (Order, error) {
	o, err := s.store.LastByStatus(ctx, StatusNew)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Order{}, fmt.Errorf("find cart: %w", err)
	}

	o, err = s.store.Create(ctx, Order{Status: StatusNew, TotalPrice: decimal.Zero})
	if err == nil {
		s.log.Info("cart created", zap.Int64("order_id", o.ID))
		return o, nil
	}
	if !errors.Is(err, ErrConflict) {
		return Order{}, fmt.Errorf("create cart: %w", err)
	}

	s.log.Debug("cart created concurrently, re-reading")
	o, err = s.store.LastByStatus(ctx, StatusNew)
	if err != nil {
		return Order{}, fmt.Errorf("re-read cart: %w", err)
	}
	return o, nil
}

// UpdateLineCount applies action to the cart line of itemID, creating a zero
// line first when the item is not in the cart yet. The item is resolved
// before the cart lock is taken.
func (s *Service) UpdateLineCount(ctx context.Context, itemID int64, action Action) error {
	if _, _, err := action.apply(0); err != nil {
		return err
	}

	err := s.updateLine(ctx, itemID, action)
	if errors.Is(err, ErrCartClosed) {
		// The cart was finalized between lookup and lock; the next one is fresh.
		err = s.updateLine(ctx, itemID, action)
	}
	return err
}

func (s *Service) updateLine(ctx context.Context, itemID int64, action Action) error {
	if _, err := s.items.FindByID(ctx, itemID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("%w: id=%d", ErrItemNotFound, itemID)
		}
		return fmt.Errorf("resolve item %d: %w", itemID, err)
	}

	cart, err := s.GetOrCreateCart(ctx)
	if err != nil {
		return err
	}
	if s.hold != nil {
		held, err := s.hold.Held(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("check hold on cart %d: %w", cart.ID, err)
		}
		if held {
			return fmt.Errorf("%w: order=%d", ErrCartHeld, cart.ID)
		}
	}

	return s.store.WithinTx(ctx, func(tx Store) error {
		o, err := tx.LockOrder(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("lock cart %d: %w", cart.ID, err)
		}
		if o.Status != StatusNew {
			return ErrCartClosed
		}

		line, err := tx.LockLine(ctx, cart.ID, itemID)
		if errors.Is(err, ErrNotFound) {
			line, err = insertLine(ctx, tx, cart.ID, itemID)
		}
		if err != nil {
			return err
		}

		qty, keep, err := action.apply(line.Quantity)
		if err != nil {
			return err
		}
		if !keep {
			return tx.DeleteLine(ctx, line.ID)
		}
		return tx.SetQuantity(ctx, line.ID, qty)
	})
}

func insertLine(ctx context.Context, tx Store, orderID, itemID int64) (Line, error) {
	if err := tx.InsertLine(ctx, orderID, itemID); err != nil {
		return Line{}, fmt.Errorf("insert line: %w", err)
	}
	return tx.LockLine(ctx, orderID, itemID)
}

func (s *Service) AssembleOrder(ctx context.Context, o Order) (View, error) {
	lines, err := s.store.Lines(ctx, o.ID)
	if err != nil {
		return View{}, fmt.Errorf("lines of order %d: %w", o.ID, err)
	}
	items, err := s.resolve(ctx, o.ID, lines)
	if err != nil {
		return View{}, err
	}
	return price(o, lines, items)
}

// resolvedItems holds the items found for a set of requested ids.
type resolvedItems struct {
	asked []int64 // sorted
	byID  map[int64]catalog.Item
}

func (r resolvedItems) covers(itemID int64) bool {
	_, ok := slices.BinarySearch(r.asked, itemID)
	return ok
}

func (s *Service) resolve(ctx context.Context, orderID int64, lines []Line) (resolvedItems, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	r := resolvedItems{asked: ids, byID: make(map[int64]catalog.Item, len(ids))}
	if len(ids) == 0 {
		return r, nil
	}

	items, err := s.items.FindByIDs(ctx, ids)
	if err != nil {
		return resolvedItems{}, fmt.Errorf("items of order %d: %w", orderID, err)
	}
	for _, it := range items {
		r.byID[it.ID] = it
	}
	return r, nil
}

func price(o Order, lines []Line, items resolvedItems) (View, error) {
	v := View{Order: o, Lines: make([]ViewLine, 0, len(lines)), Total: decimal.Zero}

	var missing []int64
	for _, l := range lines {
		it, ok := items.byID[l.ItemID]
		if !ok {
			missing = append(missing, l.ItemID)
			continue
		}
		sub := it.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		v.Lines = append(v.Lines, ViewLine{Line: l, Item: it, Subtotal: sub})
		v.Total = v.Total.Add(sub)
	}
	if len(missing) > 0 {
		return View{}, fmt.Errorf("%w: order=%d items=%v", ErrAssembly, o.ID, missing)
	}
	return v, nil
}

// FinalizeCart prices and completes the current cart.
func (s *Service) FinalizeCart(ctx context.Context) (int64, error) {
	cart, err := s.store.LastByStatus(ctx, StatusNew)
	if errors.Is(err, ErrNotFound) {
		return 0, ErrNoCart
	}
	if err != nil {
		return 0, fmt.Errorf("find cart: %w", err)
	}
	return s.FinalizeOrder(ctx, cart.ID)
}

// FinalizeOrder prices order id from its lines and completes it. An order
// that is already COMPLETED is left as is, so retries are safe. Items are
// resolved before the order lock is taken; lines that changed in between
// are re-read up to finalizeAttempts times.
func (s *Service) FinalizeOrder(ctx context.Context, id int64) (int64, error) {
	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		err = s.finalizeOnce(ctx, id)
		if !errors.Is(err, errLinesChanged) {
			break
		}
		s.log.Debug("order lines changed while finalizing, retrying",
			zap.Int64("order_id", id), zap.Int("attempt", attempt))
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Service) finalizeOnce(ctx context.Context, id int64) error {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.Status == StatusCompleted {
		s.log.Info("order already completed", zap.Int64("order_id", id))
		return nil
	}

	seen, err := s.store.Lines(ctx, id)
	if err != nil {
		return fmt.Errorf("lines of order %d: %w", id, err)
	}
	items, err := s.resolve(ctx, id, seen)
	if err != nil {
		return err
	}

	return s.store.WithinTx(ctx, func(tx Store) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusCompleted {
			s.log.Info("order already completed", zap.Int64("order_id", id))
			return nil
		}

		lines, err := tx.Lines(ctx, id)
		if err != nil {
			return fmt.Errorf("lines of order %d: %w", id, err)
		}
		for _, l := range lines {
			if !items.covers(l.ItemID) {
				return fmt.Errorf("%w: order=%d item=%d", errLinesChanged, id, l.ItemID)
			}
		}

		v, err := price(o, lines, items)
		if err != nil {
			return err
		}

		ok, err := tx.Complete(ctx, id, v.Total)
		if err != nil {
			return fmt.Errorf("complete order %d: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("%w: order %d left NEW concurrently", ErrConflict, id)
		}

		s.log.Info("order completed",
			zap.Int64("order_id", id),
			zap.String("total", v.Total.String()),
			zap.Int("lines", len(v.Lines)),
		)
		return nil
	})
}

// Cart returns the assembled current cart, creating an empty one if needed.
func (s *Service) Cart(ctx context.Context) (View, error) {
	cart, err := s.GetOrCreateCart(ctx)
	if err != nil {
		return View{}, err
	}
	return s.AssembleOrder(ctx, cart)
}

// CartCounts maps item id to quantity in the current cart. It never creates
// a cart.
func (s *Service) CartCounts(ctx context.Context) (map[int64]int, error) {
	cart, err := s.store.LastByStatus(ctx, StatusNew)
	if errors.Is(err, ErrNotFound) {
		return map[int64]int{}, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := s.store.Lines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(lines))
	for _, l := range lines {
		out[l.ItemID] = l.Quantity
	}
	return out, nil
}

func (s *Service) FindByID(ctx context.Context, id int64) (View, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.AssembleOrder(ctx, o)
}

// ListCompleted returns every completed order, newest first.
func (s *Service) ListCompleted(ctx context.Context) ([]View, error) {
	orders, err := s.store.ListByStatus(ctx, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	out := make([]View, 0, len(orders))
	for _, o := range orders {
		v, err := s.AssembleOrder(ctx, o)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
