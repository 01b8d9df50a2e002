package order

import (
	"context"

	"github.com/shopspring/decimal"
)

type Store interface {
	Ping(ctx context.Context) error

	// WithinTx runs fn against a store bound to one transaction. Nested calls
	// join the outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	// LastByStatus returns the newest order in st, or ErrNotFound.
	LastByStatus(ctx context.Context, st Status) (Order, error)
	// Create inserts o. A second NEW order fails with ErrConflict.
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	// LockOrder is Get that also holds the order until the transaction ends.
	LockOrder(ctx context.Context, id int64) (Order, error)
	// ListByStatus returns orders in st, newest first.
	ListByStatus(ctx context.Context, st Status) ([]Order, error)
	// Complete prices a NEW order and moves it to COMPLETED. It reports false
	// when the order was not NEW.
	Complete(ctx context.Context, id int64, total decimal.Decimal) (bool, error)

	// Lines returns the lines of an order, highest id first.
	Lines(ctx context.Context, orderID int64) ([]Line, error)
	// LockLine returns the line of itemID in orderID, or ErrNotFound.
	LockLine(ctx context.Context, orderID, itemID int64) (Line, error)
	// InsertLine adds a zero quantity line unless one already exists.
	InsertLine(ctx context.Context, orderID, itemID int64) error
	SetQuantity(ctx context.Context, lineID int64, qty int) error
	DeleteLine(ctx context.Context, lineID int64) error
}
