package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"InterShop/pkg/kit"
)

// CartCounter reports the quantity of every item in the current cart.
type CartCounter interface {
	CartCounts(ctx context.Context) (map[int64]int, error)
}

type Server struct {
	Catalog *Service
	Cart    CartCounter
	Log     *zap.Logger
}

type listedItem struct {
	Item
	CartCount int `json:"cart_count"`
}

type pageResponse struct {
	Items       []listedItem `json:"items"`
	TotalItems  int          `json:"total_items"`
	TotalPages  int          `json:"total_pages"`
	Page        int          `json:"page"`
	PageSize    int          `json:"page_size"`
	Sort        SortKey      `json:"sort"`
	Search      string       `json:"search,omitempty"`
	HasPrevious bool         `json:"has_previous"`
	HasNext     bool         `json:"has_next"`
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/items", s.list)
	r.Get("/items/{id}", s.get)

	r.Route("/admin/items", func(ar chi.Router) {
		ar.Post("/", s.create)
		ar.Put("/{id}", s.update)
	})
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageNumber, err := intParam(q.Get("pageNumber"), 0)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad pageNumber", nil)
		return
	}
	pageSize, err := intParam(q.Get("pageSize"), DefaultPageSize)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad pageSize", nil)
		return
	}
	sort, err := ParseSortKey(q.Get("sort"))
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad sort", map[string]any{"allowed": []SortKey{SortNo, SortAlpha, SortPrice}})
		return
	}
	search := q.Get("search")

	p, err := s.Catalog.FindPage(r.Context(), pageNumber, pageSize, sort, search)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	counts := s.cartCounts(r.Context())
	resp := pageResponse{
		Items:       make([]listedItem, len(p.Items)),
		TotalItems:  p.TotalItems,
		TotalPages:  p.TotalPages,
		Page:        p.Page,
		PageSize:    p.PageSize,
		Sort:        sort,
		Search:      normalizeSearch(search),
		HasPrevious: p.Page > 0,
		HasNext:     p.Page+1 < p.TotalPages,
	}
	for i, it := range p.Items {
		resp.Items[i] = listedItem{Item: it, CartCount: counts[it.ID]}
	}

	kit.WriteJSON(w, http.StatusOK, resp)
}

// cartCounts degrades to no counts: the listing is still useful without them.
func (s *Server) cartCounts(ctx context.Context) map[int64]int {
	if s.Cart == nil {
		return nil
	}
	counts, err := s.Cart.CartCounts(ctx)
	if err != nil {
		s.logger().Warn("cart counts unavailable", zap.Error(err))
		return nil
	}
	return counts
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	it, err := s.Catalog.FindByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var in ItemInput
	if err := kit.DecodeJSON(w, r, &in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	it, err := s.Catalog.CreateItem(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, it)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var in ItemInput
	if err := kit.DecodeJSON(w, r, &in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	it, err := s.Catalog.UpdateItem(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		kit.WriteError(w, r, http.StatusBadRequest, "invalid input", err.Error())
	case errors.Is(err, ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "not found", nil)
	default:
		s.logger().Error("catalog request failed", zap.Error(err), zap.String("path", r.URL.Path))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad id", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
