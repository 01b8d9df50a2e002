package catalog

import "context"

// ListQuery selects one window of active items. Search is matched as a
// case-insensitive substring of the name; empty matches everything.
type ListQuery struct {
	Search string
	Sort   SortKey
	Limit  int
	Offset int
}

type Store interface {
	Ping(ctx context.Context) error

	// Get returns any item, active or not. Missing items yield ErrNotFound.
	Get(ctx context.Context, id int64) (Item, error)
	// GetMany returns the items found among ids in no particular order.
	GetMany(ctx context.Context, ids []int64) ([]Item, error)

	List(ctx context.Context, q ListQuery) ([]Item, error)
	Count(ctx context.Context, search string) (int, error)

	Create(ctx context.Context, in ItemInput) (Item, error)
	Update(ctx context.Context, id int64, in ItemInput) (Item, error)
}
