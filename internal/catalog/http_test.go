package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedCart map[int64]int

func (c fixedCart) CartCounts(context.Context) (map[int64]int, error) { return c, nil }

type brokenCart struct{}

func (brokenCart) CartCounts(context.Context) (map[int64]int, error) {
	return nil, errors.New("db down")
}

func newCatalogTS(t *testing.T, cart CartCounter) (*httptest.Server, *Service) {
	t.Helper()

	svc, _ := newTestService(t)
	s := &Server{Catalog: svc, Cart: cart, Log: zap.NewNop()}

	r := chi.NewRouter()
	s.Mount(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, svc
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestListItemsWithPagingAndCartCounts(t *testing.T) {
	ts, svc := newCatalogTS(t, fixedCart{2: 3})
	seed(t, svc, in("a", "1"), in("b", "2"), in("c", "3"))

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/items?pageNumber=0&pageSize=2&sort=NO", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var got pageResponse
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Len(t, got.Items, 2)
	assert.Equal(t, 3, got.TotalItems)
	assert.Equal(t, 2, got.TotalPages)
	assert.False(t, got.HasPrevious)
	assert.True(t, got.HasNext)
	assert.Equal(t, 0, got.Items[0].CartCount)
	assert.Equal(t, 3, got.Items[1].CartCount)

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/items?pageNumber=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, got.HasPrevious)
	assert.False(t, got.HasNext)
}

func TestListItemsWithoutCart(t *testing.T) {
	ts, svc := newCatalogTS(t, brokenCart{})
	seed(t, svc, in("a", "1"))

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
}

func TestListItemsRejectsBadQuery(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	for _, q := range []string{"?pageNumber=x", "?pageSize=101", "?pageNumber=-1", "?sort=COLOR"} {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/items"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestGetItem(t *testing.T) {
	ts, svc := newCatalogTS(t, nil)
	items := seed(t, svc, in("lamp", "19.90"))

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/items/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var it Item
	require.NoError(t, json.Unmarshal(raw, &it))
	assert.Equal(t, items[0].ID, it.ID)
	assert.Equal(t, "19.9", it.Price.String())

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/items/77", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminCreateAndUpdate(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/admin/items", map[string]any{
		"name":  "Desk",
		"price": 120.5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var created Item
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.True(t, created.Active)

	resp, raw = doJSON(t, http.MethodPut, ts.URL+"/admin/items/1", map[string]any{
		"name":   "Desk",
		"price":  "99.99",
		"active": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var updated Item
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.False(t, updated.Active)
	assert.Equal(t, "99.99", updated.Price.String())

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/admin/items", map[string]any{"name": "", "price": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/admin/items", map[string]any{"name": "x", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/admin/items/9", map[string]any{"name": "x", "price": "1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
