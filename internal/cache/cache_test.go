package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenBackend struct{}

var errDown = errors.New("connection refused")

func (brokenBackend) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (brokenBackend) Del(context.Context, ...string) error           { return errDown }
func (brokenBackend) Keys(context.Context, string) ([]string, error) { return nil, errDown }
func (brokenBackend) Ping(context.Context) error                     { return errDown }

func item(id int64, name, price string) Item {
	return Item{ID: id, Name: name, Price: decimal.RequireFromString(price), Active: true}
}

func TestPageKeyFormat(t *testing.T) {
	cases := []struct {
		key  PageKey
		want string
	}{
		{PageKey{Page: 0, Size: 10, Sort: "NO"}, "items:page:0:10:NO:noSearch"},
		{PageKey{Page: 2, Size: 5, Sort: "PRICE", Search: "  Red   Shoe "}, "items:page:2:5:PRICE:red_shoe"},
		{PageKey{Page: 1, Size: 20, Sort: "ALPHA", Search: "   "}, "items:page:1:20:ALPHA:noSearch"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.key.String())
	}
}

func TestPageKeyDistinguishesSearches(t *testing.T) {
	searches := []string{"", "a b", "a_b", `a\_b`, `a\ b`, "a__b", "nosearch", "noSearch x", "a:b"}
	seen := map[string]string{}
	for _, s := range searches {
		k := PageKey{Page: 0, Size: 10, Sort: "NO", Search: s}.String()
		if prev, dup := seen[k]; dup {
			t.Fatalf("searches %q and %q share key %q", prev, s, k)
		}
		seen[k] = s
	}

	assert.Equal(t,
		PageKey{Size: 10, Sort: "NO", Search: "A  B"}.String(),
		PageKey{Size: 10, Sort: "NO", Search: " a b "}.String(),
		"case and spacing still share a key")
}

func TestMemBackendExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemBackend()
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Second))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	now = now.Add(time.Second)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	keys, err := b.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestItemCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewItemCache(Deps{Backend: NewMemBackend()}, time.Minute)

	_, ok := c.Get(ctx, 7)
	assert.False(t, ok)

	c.Put(ctx, item(7, "Lamp", "19.90"))
	got, ok := c.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, "Lamp", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.9")))

	c.Evict(ctx, 7)
	_, ok = c.Get(ctx, 7)
	assert.False(t, ok)
}

func TestBrokenBackendDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d := Deps{Backend: brokenBackend{}, Metrics: m}

	items := NewItemCache(d, time.Minute)
	pages := NewPageCache(d, time.Minute)

	items.Put(ctx, item(1, "a", "1"))
	_, ok := items.Get(ctx, 1)
	assert.False(t, ok)

	key := PageKey{Page: 0, Size: 10, Sort: "NO"}
	pages.Put(ctx, key, Page{})
	_, ok = pages.Get(ctx, key)
	assert.False(t, ok)

	assert.Equal(t, 0, pages.InvalidateAll(ctx))
	assert.Equal(t, 0, pages.PatchItem(ctx, item(1, "a", "1")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ops.WithLabelValues("item", "get", resultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ops.WithLabelValues("page", "set", resultError)))
}

func TestUndecodableEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	b := NewMemBackend()
	require.NoError(t, b.Set(ctx, "item:3", []byte("{not json"), 0))

	c := NewItemCache(Deps{Backend: b}, time.Minute)
	_, ok := c.Get(ctx, 3)
	assert.False(t, ok)

	_, err := b.Get(ctx, "item:3")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestPageCacheInvalidateAllKeepsItems(t *testing.T) {
	ctx := context.Background()
	b := NewMemBackend()
	d := Deps{Backend: b}
	items := NewItemCache(d, time.Minute)
	pages := NewPageCache(d, time.Minute)

	items.Put(ctx, item(1, "a", "1"))
	pages.Put(ctx, PageKey{Page: 0, Size: 10, Sort: "NO"}, Page{Items: []Item{item(1, "a", "1")}})
	pages.Put(ctx, PageKey{Page: 1, Size: 10, Sort: "NO"}, Page{})

	assert.Equal(t, 2, pages.InvalidateAll(ctx))

	_, ok := pages.Get(ctx, PageKey{Page: 0, Size: 10, Sort: "NO"})
	assert.False(t, ok)
	_, ok = items.Get(ctx, 1)
	assert.True(t, ok)
}

func TestPageCachePatchItem(t *testing.T) {
	ctx := context.Background()
	pages := NewPageCache(Deps{Backend: NewMemBackend()}, time.Minute)

	k1 := PageKey{Page: 0, Size: 2, Sort: "NO"}
	k2 := PageKey{Page: 1, Size: 2, Sort: "NO"}
	pages.Put(ctx, k1, Page{Items: []Item{item(1, "a", "1"), item(2, "b", "2")}, TotalItems: 3, TotalPages: 2})
	pages.Put(ctx, k2, Page{Items: []Item{item(3, "c", "3")}, TotalItems: 3, TotalPages: 2, Page: 1})

	updated := item(2, "b", "2")
	updated.Description = "now with a description"
	assert.Equal(t, 1, pages.PatchItem(ctx, updated))

	p, ok := pages.Get(ctx, k1)
	require.True(t, ok)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "now with a description", p.Items[1].Description)
	assert.Equal(t, 3, p.TotalItems)

	p, ok = pages.Get(ctx, k2)
	require.True(t, ok)
	assert.Empty(t, p.Items[0].Description)
}
