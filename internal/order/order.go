// Package order owns the cart and order lifecycle. The cart is the single
// order in status NEW; finalizing it prices it and moves it to COMPLETED,
// after which it never changes.
package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"InterShop/internal/catalog"
)

type Status string

const (
	StatusNew       Status = "NEW"
	StatusCompleted Status = "COMPLETED"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrItemNotFound = errors.New("item not found")
	// ErrConflict reports a second NEW order racing the first.
	ErrConflict   = errors.New("order conflict")
	ErrAssembly   = errors.New("order references unknown items")
	ErrNoCart     = errors.New("no open cart")
	ErrCartClosed = errors.New("cart already completed")
	// ErrCartHeld means the cart was paid for and is waiting to be completed.
	ErrCartHeld = errors.New("cart is awaiting payment reconciliation")
)

type Order struct {
	ID         int64           `json:"id"`
	Status     Status          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type Line struct {
	ID       int64 `json:"id"`
	OrderID  int64 `json:"order_id"`
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}

type ViewLine struct {
	Line
	Item     catalog.Item    `json:"item"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// View is an order joined with its lines and their items.
type View struct {
	Order Order           `json:"order"`
	Lines []ViewLine      `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// HasPurchasable reports whether any line has a positive quantity.
func (v View) HasPurchasable() bool {
	for _, l := range v.Lines {
		if l.Quantity > 0 {
			return true
		}
	}
	return false
}
