package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"InterShop/internal/cache"
)

type Service struct {
	store Store
	items *cache.ItemCache
	pages *cache.PageCache
	log   *zap.Logger
}

func NewService(store Store, items *cache.ItemCache, pages *cache.PageCache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, items: items, pages: pages, log: log}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// FindByID reads through the item cache. Inactive items are returned too:
// completed orders keep referencing them.
func (s *Service) FindByID(ctx context.Context, id int64) (Item, error) {
	if it, ok := s.items.Get(ctx, id); ok {
		return fromCached(it), nil
	}

	it, err := s.store.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	s.items.Put(ctx, toCached(it))
	return it, nil
}

func (s *Service) FindByIDs(ctx context.Context, ids []int64) ([]Item, error) {
	return s.store.GetMany(ctx, ids)
}

// FindPage returns one page of active items. pageSize 0 selects the default.
func (s *Service) FindPage(ctx context.Context, pageNumber, pageSize int, sort SortKey, search string) (Page, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageNumber < 0 {
		return Page{}, fmt.Errorf("%w: page number must be >= 0", ErrValidation)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return Page{}, fmt.Errorf("%w: page size must be within 1..%d", ErrValidation, MaxPageSize)
	}
	if sort.Column() == "" {
		return Page{}, fmt.Errorf("%w: unknown sort key %q", ErrValidation, sort)
	}

	search = normalizeSearch(search)
	key := cache.PageKey{Page: pageNumber, Size: pageSize, Sort: string(sort), Search: search}
	if p, ok := s.pages.Get(ctx, key); ok {
		return fromCachedPage(p), nil
	}

	var (
		items []Item
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.store.List(gctx, ListQuery{
			Search: search,
			Sort:   sort,
			Limit:  pageSize,
			Offset: pageNumber * pageSize,
		})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, search)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page{}, fmt.Errorf("query page %s: %w", key, err)
	}

	p := Page{
		Items:      items,
		TotalItems: total,
		TotalPages: totalPages(total, pageSize),
		Page:       pageNumber,
		PageSize:   pageSize,
	}
	s.pages.Put(ctx, key, toCachedPage(p))
	return p, nil
}

// CreateItem persists a new item. Any cached page may now be missing it, so
// all pages are dropped.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (Item, error) {
	if err := in.Validate(); err != nil {
		return Item{}, err
	}

	it, err := s.store.Create(ctx, in)
	if err != nil {
		return Item{}, fmt.Errorf("create item: %w", err)
	}

	s.items.Put(ctx, toCached(it))
	n := s.pages.InvalidateAll(ctx)
	s.log.Info("item created", zap.Int64("item_id", it.ID), zap.Int("pages_dropped", n))
	return it, nil
}

// UpdateItem persists in over item id and refreshes the caches. A change of
// name, price or active flag can move the item between pages, so every page
// is dropped; other changes are patched into the cached pages in place.
func (s *Service) UpdateItem(ctx context.Context, id int64, in ItemInput) (Item, error) {
	if err := in.Validate(); err != nil {
		return Item{}, err
	}

	prev, err := s.store.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}

	it, err := s.store.Update(ctx, id, in)
	if err != nil {
		return Item{}, fmt.Errorf("update item %d: %w", id, err)
	}

	s.items.Put(ctx, toCached(it))

	if reorders(prev, it) {
		n := s.pages.InvalidateAll(ctx)
		s.log.Info("item updated", zap.Int64("item_id", id), zap.Int("pages_dropped", n))
		return it, nil
	}

	n := s.pages.PatchItem(ctx, toCached(it))
	s.log.Info("item updated", zap.Int64("item_id", id), zap.Int("pages_patched", n))
	return it, nil
}

func reorders(prev, next Item) bool {
	return prev.Name != next.Name || !prev.Price.Equal(next.Price) || prev.Active != next.Active
}
