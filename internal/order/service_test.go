package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InterShop/internal/catalog"
)

type itemMap map[int64]catalog.Item

func (m itemMap) FindByID(_ context.Context, id int64) (catalog.Item, error) {
	it, ok := m[id]
	if !ok {
		return catalog.Item{}, fmt.Errorf("%w: id=%d", catalog.ErrNotFound, id)
	}
	return it, nil
}

func (m itemMap) FindByIDs(_ context.Context, ids []int64) ([]catalog.Item, error) {
	out := make([]catalog.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := m[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func catalogItems() itemMap {
	return itemMap{
		1: {ID: 1, Name: "pen", Price: decimal.RequireFromString("2.50"), Active: true},
		2: {ID: 2, Name: "book", Price: decimal.RequireFromString("12.00"), Active: true},
		3: {ID: 3, Name: "lamp", Price: decimal.RequireFromString("0.99"), Active: true},
	}
}

func newTestService(t *testing.T) (*Service, *MemStore, itemMap) {
	t.Helper()
	store := NewMemStore()
	items := catalogItems()
	return NewService(store, items, nil), store, items
}

func countNew(t *testing.T, store Store) int {
	t.Helper()
	news, err := store.ListByStatus(context.Background(), StatusNew)
	require.NoError(t, err)
	return len(news)
}

func lineQty(t *testing.T, svc *Service, itemID int64) (int, bool) {
	t.Helper()
	counts, err := svc.CartCounts(context.Background())
	require.NoError(t, err)
	q, ok := counts[itemID]
	return q, ok
}

func TestGetOrCreateCartReusesOpenCart(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.GetOrCreateCart(ctx)
	require.NoError(t, err)
	b, err := svc.GetOrCreateCart(ctx)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, StatusNew, a.Status)
	assert.True(t, a.TotalPrice.IsZero())
	assert.Equal(t, 1, countNew(t, store))
}

func TestGetOrCreateCartConcurrent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	const n = 64
	ids := make([]int64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			o, err := svc.GetOrCreateCart(ctx)
			ids[i], errs[i] = o.ID, err
		}()
	}
	close(start)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, countNew(t, store))
}

// lostRaceStore lets another writer create the cart just before our insert.
type lostRaceStore struct {
	*MemStore
	creates int
}

func (s *lostRaceStore) Create(ctx context.Context, o Order) (Order, error) {
	s.creates++
	if _, err := s.MemStore.Create(ctx, o); err != nil {
		return Order{}, err
	}
	return Order{}, ErrConflict
}

func TestGetOrCreateCartRereadsAfterConflict(t *testing.T) {
	store := &lostRaceStore{MemStore: NewMemStore()}
	svc := NewService(store, catalogItems(), nil)

	o, err := svc.GetOrCreateCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, 1, store.creates)
}

type failingCreateStore struct {
	*MemStore
}

var errDisk = errors.New("disk full")

func (failingCreateStore) Create(context.Context, Order) (Order, error) {
	return Order{}, errDisk
}

func TestGetOrCreateCartPropagatesOtherErrors(t *testing.T) {
	svc := NewService(failingCreateStore{NewMemStore()}, catalogItems(), nil)

	_, err := svc.GetOrCreateCart(context.Background())
	assert.ErrorIs(t, err, errDisk)
}

func TestUpdateLineCountActions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	q, ok := lineQty(t, svc, 1)
	require.True(t, ok)
	assert.Equal(t, 2, q)

	require.NoError(t, svc.UpdateLineCount(ctx, 1, Decrement))
	require.NoError(t, svc.UpdateLineCount(ctx, 1, Decrement))
	require.NoError(t, svc.UpdateLineCount(ctx, 1, Decrement))
	q, ok = lineQty(t, svc, 1)
	require.True(t, ok, "zero lines are kept")
	assert.Equal(t, 0, q)

	require.NoError(t, svc.UpdateLineCount(ctx, 2, Decrement))
	q, ok = lineQty(t, svc, 2)
	require.True(t, ok)
	assert.Equal(t, 0, q)

	require.NoError(t, svc.UpdateLineCount(ctx, 1, Remove))
	_, ok = lineQty(t, svc, 1)
	assert.False(t, ok)

	require.NoError(t, svc.UpdateLineCount(ctx, 3, Remove))
	_, ok = lineQty(t, svc, 3)
	assert.False(t, ok)
}

func TestUpdateLineCountRandomSequences(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	actions := []Action{Increment, Decrement, Remove}

	for round := range 50 {
		svc, _, _ := newTestService(t)
		want, present := 0, false

		for range 30 {
			a := actions[rng.IntN(len(actions))]
			require.NoError(t, svc.UpdateLineCount(ctx, 2, a))

			switch a {
			case Increment:
				want, present = want+1, true
			case Decrement:
				want, present = max(want-1, 0), true
			case Remove:
				want, present = 0, false
			}

			q, ok := lineQty(t, svc, 2)
			require.Equal(t, present, ok, "round %d", round)
			require.GreaterOrEqual(t, q, 0)
			require.Equal(t, want, q, "round %d", round)
		}
	}
}

func TestUpdateLineCountUnknownItem(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.UpdateLineCount(ctx, 404, Increment)
	assert.ErrorIs(t, err, ErrItemNotFound)

	counts, err := svc.CartCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestUpdateLineCountRejectsZeroAction(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.ErrorIs(t, svc.UpdateLineCount(context.Background(), 1, Action(0)), ErrInvalidAction)
}

func TestFinalizeCartPricesAndCompletes(t *testing.T) {
	svc, store, items := newTestService(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	}
	require.NoError(t, svc.UpdateLineCount(ctx, 2, Increment))
	require.NoError(t, svc.UpdateLineCount(ctx, 3, Decrement))

	id, err := svc.FinalizeCart(ctx)
	require.NoError(t, err)

	o, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, "19.5", o.TotalPrice.String())
	assert.Equal(t, 0, countNew(t, store))

	// Re-finalizing must not re-price.
	it := items[1]
	it.Price = decimal.NewFromInt(100)
	items[1] = it

	again, err := svc.FinalizeOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	o, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "19.5", o.TotalPrice.String())
}

// txWatchStore records whether a transaction body is running.
type txWatchStore struct {
	*MemStore
	inTx bool

	// beforeTx runs once, ahead of the first transaction.
	beforeTx func()
}

func (s *txWatchStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.beforeTx != nil {
		hook := s.beforeTx
		s.beforeTx = nil
		hook()
	}
	return s.MemStore.WithinTx(ctx, func(tx Store) error {
		s.inTx = true
		defer func() { s.inTx = false }()
		return fn(tx)
	})
}

// outsideTxItems fails any catalog lookup made while the order lock is held.
type outsideTxItems struct {
	itemMap
	store *txWatchStore
}

var errLookupInTx = errors.New("catalog lookup inside transaction")

func (i outsideTxItems) FindByIDs(ctx context.Context, ids []int64) ([]catalog.Item, error) {
	if i.store.inTx {
		return nil, errLookupInTx
	}
	return i.itemMap.FindByIDs(ctx, ids)
}

func TestFinalizeOrderResolvesItemsOutsideTheLock(t *testing.T) {
	store := &txWatchStore{MemStore: NewMemStore()}
	svc := NewService(store, outsideTxItems{itemMap: catalogItems(), store: store}, nil)
	ctx := context.Background()

	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	require.NoError(t, svc.UpdateLineCount(ctx, 2, Increment))

	id, err := svc.FinalizeCart(ctx)
	require.NoError(t, err)

	o, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, "14.5", o.TotalPrice.String())
}

func TestFinalizeOrderPricesLinesAddedBeforeTheLock(t *testing.T) {
	store := &txWatchStore{MemStore: NewMemStore()}
	svc := NewService(store, outsideTxItems{itemMap: catalogItems(), store: store}, nil)
	ctx := context.Background()

	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	cart, err := svc.Cart(ctx)
	require.NoError(t, err)

	// A lamp lands in the cart after finalize resolved the pen.
	store.beforeTx = func() {
		require.NoError(t, store.MemStore.InsertLine(ctx, cart.Order.ID, 3))
		line, err := store.MemStore.LockLine(ctx, cart.Order.ID, 3)
		require.NoError(t, err)
		require.NoError(t, store.MemStore.SetQuantity(ctx, line.ID, 2))
	}

	_, err = svc.FinalizeOrder(ctx, cart.Order.ID)
	require.NoError(t, err)

	o, err := store.Get(ctx, cart.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, "4.48", o.TotalPrice.String())
}

type holdSet map[int64]bool

func (h holdSet) Held(_ context.Context, orderID int64) (bool, error) {
	return h[orderID], nil
}

func TestUpdateLineCountRefusesHeldCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	held := holdSet{}
	svc.WithHold(held)

	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	cart, err := svc.Cart(ctx)
	require.NoError(t, err)

	held[cart.Order.ID] = true
	assert.ErrorIs(t, svc.UpdateLineCount(ctx, 1, Increment), ErrCartHeld)
	assert.ErrorIs(t, svc.UpdateLineCount(ctx, 2, Increment), ErrCartHeld)

	q, ok := lineQty(t, svc, 1)
	require.True(t, ok)
	assert.Equal(t, 1, q)
	_, ok = lineQty(t, svc, 2)
	assert.False(t, ok)

	// Completing the held cart releases the shop to a fresh one.
	_, err = svc.FinalizeOrder(ctx, cart.Order.ID)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateLineCount(ctx, 2, Increment))

	next, err := svc.Cart(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, cart.Order.ID, next.Order.ID)
}

func TestFinalizeCartWithoutCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.FinalizeCart(context.Background())
	assert.ErrorIs(t, err, ErrNoCart)

	_, err = svc.FinalizeOrder(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinesAfterFinalizeGoToNewCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	first, err := svc.FinalizeCart(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateLineCount(ctx, 2, Increment))
	cart, err := svc.Cart(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, cart.Order.ID)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(2), cart.Lines[0].ItemID)

	done, err := svc.FindByID(ctx, first)
	require.NoError(t, err)
	require.Len(t, done.Lines, 1)
	assert.Equal(t, int64(1), done.Lines[0].ItemID)
}

func TestAssembleOrderFailsOnUnknownItem(t *testing.T) {
	svc, _, items := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateLineCount(ctx, 3, Increment))
	delete(items, 3)

	_, err := svc.Cart(ctx)
	assert.ErrorIs(t, err, ErrAssembly)

	_, err = svc.FinalizeCart(ctx)
	assert.ErrorIs(t, err, ErrAssembly)
}

func TestCartViewOrderAndTotal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateLineCount(ctx, 2, Increment))
	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))
	require.NoError(t, svc.UpdateLineCount(ctx, 1, Increment))

	v, err := svc.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	assert.Equal(t, int64(1), v.Lines[0].ItemID, "newest line first")
	assert.Equal(t, "5", v.Lines[0].Subtotal.String())
	assert.Equal(t, "17", v.Total.String())
	assert.True(t, v.HasPurchasable())
}

func TestListCompletedNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var ids []int64
	for _, item := range []int64{1, 2} {
		require.NoError(t, svc.UpdateLineCount(ctx, item, Increment))
		id, err := svc.FinalizeCart(ctx)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	views, err := svc.ListCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, ids[1], views[0].Order.ID)
	assert.Equal(t, ids[0], views[1].Order.ID)
}

func TestParseAction(t *testing.T) {
	cases := map[string]Action{
		"INCREMENT": Increment, "plus": Increment,
		"DECREMENT": Decrement, "MINUS": Decrement,
		"remove": Remove, "DELETE": Remove,
	}
	for in, want := range cases {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAction("DOUBLE")
	assert.ErrorIs(t, err, ErrInvalidAction)
}
