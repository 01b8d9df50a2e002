package checkout

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"InterShop/internal/order"
	"InterShop/internal/payment"
	"InterShop/pkg/kit"
)

// LineUpdater changes cart lines.
type LineUpdater interface {
	UpdateLineCount(ctx context.Context, itemID int64, action order.Action) error
}

type Server struct {
	Checkout *Orchestrator
	Lines    LineUpdater
	Log      *zap.Logger
	// BuyLimiter guards POST /buy. Nil disables it.
	BuyLimiter *kit.IPRateLimiter
}

type lineRequest struct {
	Action string `json:"action"`
}

type buyResponse struct {
	OrderID          int64           `json:"order_id"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/cart", s.cart)
	r.Post("/cart/items/{id}", s.updateLine)

	if s.BuyLimiter != nil {
		r.With(s.BuyLimiter.Middleware).Post("/buy", s.buy)
	} else {
		r.Post("/buy", s.buy)
	}
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) cart(w http.ResponseWriter, r *http.Request) {
	v, err := s.Checkout.ViewCart(r.Context())
	if err != nil {
		s.logger().Error("cart view failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) updateLine(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	itemID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || itemID <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad id", map[string]any{"id": raw})
		return
	}

	var req lineRequest
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	action, err := order.ParseAction(req.Action)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad action", map[string]any{
			"allowed": []string{order.Increment.String(), order.Decrement.String(), order.Remove.String()},
		})
		return
	}

	err = s.Lines.UpdateLineCount(r.Context(), itemID, action)
	switch {
	case errors.Is(err, order.ErrItemNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "item not found", map[string]any{"id": itemID})
		return
	case errors.Is(err, order.ErrCartHeld):
		kit.WriteError(w, r, http.StatusConflict, "cart is awaiting payment reconciliation", nil)
		return
	case err != nil:
		s.logger().Error("cart line update failed", zap.Error(err), zap.Int64("item_id", itemID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	s.cart(w, r)
}

func (s *Server) buy(w http.ResponseWriter, r *http.Request) {
	res, err := s.Checkout.Checkout(r.Context())
	if errors.Is(err, ErrUnreconciled) {
		kit.WriteError(w, r, http.StatusInternalServerError, "payment not reconciled", map[string]any{"order_id": res.OrderID})
		return
	}
	if err != nil {
		s.logger().Error("checkout failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	switch res.Outcome {
	case OutcomeCompleted:
		kit.WriteJSON(w, http.StatusCreated, buyResponse{OrderID: res.OrderID, RemainingBalance: res.Remaining})
	case OutcomeNothingToBuy:
		kit.WriteError(w, r, http.StatusConflict, "nothing to buy", nil)
	case OutcomePaymentDeclined:
		kit.WriteError(w, r, http.StatusPaymentRequired, "payment declined", declineDetails(res.Cause))
	case OutcomeServiceUnavailable:
		kit.WriteError(w, r, http.StatusServiceUnavailable, "payment service unavailable", nil)
	default:
		s.logger().Error("unknown checkout outcome", zap.String("outcome", string(res.Outcome)))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func declineDetails(cause error) map[string]any {
	var ge *payment.GatewayError
	if errors.As(cause, &ge) {
		return map[string]any{"code": ge.Code, "message": ge.Message}
	}
	return map[string]any{"code": "DECLINED"}
}
