package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"InterShop/pkg/kit"
)

type Server struct {
	Orders *Service
	Log    *zap.Logger
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/orders", s.list)
	r.Get("/orders/{id}", s.get)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	views, err := s.Orders.ListCompleted(r.Context())
	if err != nil {
		s.serverError(w, r, "list orders failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, views)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad id", map[string]any{"id": raw})
		return
	}

	v, err := s.Orders.FindByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	}
	if err != nil {
		s.serverError(w, r, "get order failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if s.Log != nil {
		s.Log.Error(msg, zap.Error(err))
	}
	kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
}
