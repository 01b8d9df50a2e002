package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	itemPrefix = "item:"
	pagePrefix = "items:page:"

	noSearch = "noSearch"
)

// Item is the denormalised item snapshot stored in both namespaces.
type Item struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageFileName string          `json:"imageFileName"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type Page struct {
	Items       []Item `json:"items"`
	TotalItems  int    `json:"totalItems"`
	TotalPages  int    `json:"totalPages"`
	Page        int    `json:"page"`
	PageSize    int    `json:"pageSize"`
	SortField   string `json:"sortField"`
	SearchQuery string `json:"searchQuery"`
	CreatedAt   int64  `json:"createdAt"`
}

// PageKey is the signature of one paginated, sorted and searched view.
type PageKey struct {
	Page   int
	Size   int
	Sort   string
	Search string
}

// String renders items:page:<page>:<size>:<sort>:<search|noSearch>.
func (k PageKey) String() string {
	search := NormalizeSearch(k.Search)
	if search == "" {
		search = noSearch
	}

	var b strings.Builder
	b.WriteString(pagePrefix)
	b.WriteString(strconv.Itoa(k.Page))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(k.Size))
	b.WriteByte(':')
	b.WriteString(k.Sort)
	b.WriteByte(':')
	b.WriteString(search)
	return b.String()
}

var wordEscaper = strings.NewReplacer(`\`, `\\`, "_", `\_`)

// NormalizeSearch lower-cases s and joins its words with underscores, so
// searches differing only in case or spacing share a key. Backslashes and
// underscores inside a word are escaped, which keeps "a b" and "a_b" apart.
// The result is always lower case and so never equals noSearch.
func NormalizeSearch(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = wordEscaper.Replace(w)
	}
	return strings.Join(words, "_")
}

type ItemCache struct {
	ns namespace
}

func NewItemCache(d Deps, ttl time.Duration) *ItemCache {
	return &ItemCache{ns: newNamespace("item", ttl, d)}
}

func itemKey(id int64) string {
	return itemPrefix + strconv.FormatInt(id, 10)
}

func (c *ItemCache) Get(ctx context.Context, id int64) (Item, bool) {
	var it Item
	if !c.ns.get(ctx, itemKey(id), &it) {
		return Item{}, false
	}
	return it, true
}

func (c *ItemCache) Put(ctx context.Context, it Item) {
	c.ns.set(ctx, itemKey(it.ID), it)
}

func (c *ItemCache) Evict(ctx context.Context, id int64) {
	c.ns.del(ctx, itemKey(id))
}

type PageCache struct {
	ns  namespace
	now func() time.Time
}

func NewPageCache(d Deps, ttl time.Duration) *PageCache {
	return &PageCache{ns: newNamespace("page", ttl, d), now: time.Now}
}

func (c *PageCache) Get(ctx context.Context, key PageKey) (Page, bool) {
	var p Page
	if !c.ns.get(ctx, key.String(), &p) {
		return Page{}, false
	}
	return p, true
}

func (c *PageCache) Put(ctx context.Context, key PageKey, p Page) {
	p.SortField = key.Sort
	p.SearchQuery = NormalizeSearch(key.Search)
	p.CreatedAt = c.now().UnixMilli()
	c.ns.set(ctx, key.String(), p)
}

// InvalidateAll drops every cached page and returns how many keys it found.
func (c *PageCache) InvalidateAll(ctx context.Context) int {
	keys := c.ns.keys(ctx, pagePrefix)
	if len(keys) == 0 {
		return 0
	}
	c.ns.del(ctx, keys...)
	c.ns.log.Info("page cache invalidated", zap.Int("keys", len(keys)))
	return len(keys)
}

// PatchItem rewrites it inside every cached page that lists it, leaving page
// membership and order untouched. It returns the number of pages rewritten.
func (c *PageCache) PatchItem(ctx context.Context, it Item) int {
	patched := 0
	for _, key := range c.ns.keys(ctx, pagePrefix) {
		var p Page
		if !c.ns.get(ctx, key, &p) {
			continue
		}

		found := false
		for i := range p.Items {
			if p.Items[i].ID == it.ID {
				p.Items[i] = it
				found = true
			}
		}
		if !found {
			continue
		}

		p.CreatedAt = c.now().UnixMilli()
		c.ns.set(ctx, key, p)
		patched++
	}
	return patched
}
