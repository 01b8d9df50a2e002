// Package catalog serves items: paginated, sorted and searched listings and
// single lookups, read through the cache, plus the admin writes that keep the
// cache coherent.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"InterShop/internal/cache"
)

var (
	ErrNotFound   = errors.New("item not found")
	ErrValidation = errors.New("invalid input")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Item struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageFileName string          `json:"image_file_name"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Page struct {
	Items      []Item `json:"items"`
	TotalItems int    `json:"total_items"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

// ItemInput is the payload of admin writes. A nil Active keeps the stored
// flag on update and means true on create.
type ItemInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageFileName string          `json:"image_file_name"`
	Active        *bool           `json:"active,omitempty"`
}

func (in ItemInput) Validate() error {
	var errs []error
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if in.Price.IsNegative() {
		errs = append(errs, errors.New("price must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
}

// SortKey is the public sort selector of listings.
type SortKey string

const (
	SortNo    SortKey = "NO"
	SortAlpha SortKey = "ALPHA"
	SortPrice SortKey = "PRICE"
)

var sortColumns = map[SortKey]string{
	SortNo:    "id",
	SortAlpha: "name",
	SortPrice: "price",
}

// ParseSortKey accepts NO, ALPHA or PRICE in any case. Empty means NO.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return SortNo, nil
	}
	k := SortKey(s)
	if _, ok := sortColumns[k]; !ok {
		return "", fmt.Errorf("%w: unknown sort key %q", ErrValidation, s)
	}
	return k, nil
}

// Column is the storage column the key orders by.
func (k SortKey) Column() string {
	return sortColumns[k]
}

// normalizeSearch collapses whitespace runs so that searches sharing a cache
// key also share a query.
func normalizeSearch(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func totalPages(total, size int) int {
	if total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

func toCached(it Item) cache.Item { return cache.Item(it) }

func fromCached(it cache.Item) Item { return Item(it) }

func toCachedPage(p Page) cache.Page {
	items := make([]cache.Item, len(p.Items))
	for i, it := range p.Items {
		items[i] = toCached(it)
	}
	return cache.Page{
		Items:      items,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
}

func fromCachedPage(p cache.Page) Page {
	items := make([]Item, len(p.Items))
	for i, it := range p.Items {
		items[i] = fromCached(it)
	}
	return Page{
		Items:      items,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
}
