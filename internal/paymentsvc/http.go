// Package paymentsvc is the mock payments service: a fixed balance that
// payments are checked against but never deducted from.
package paymentsvc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"InterShop/internal/payment"
	"InterShop/pkg/kit"
)

type Server struct {
	Balance decimal.Decimal
	Log     *zap.Logger
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type payRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type payResponse struct {
	Success          bool            `json:"success"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/payments/balance", s.balance)
	r.Post("/payments/pay", s.pay)
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) balance(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, balanceResponse{Balance: s.Balance})
}

func (s *Server) pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := kit.DecodeJSON(w, r, &req); err != nil || req.Amount == nil {
		writeGatewayError(w, payment.CodeInvalidAmount, "Request body must be {\"amount\": <decimal>}")
		return
	}
	amount := *req.Amount

	log := s.logger().With(
		zap.String("amount", amount.String()),
		zap.String("idempotency_key", r.Header.Get("Idempotency-Key")),
	)

	switch {
	case amount.IsNegative():
		log.Info("payment rejected", zap.String("code", payment.CodeInvalidAmount))
		writeGatewayError(w, payment.CodeInvalidAmount, "Amount must not be negative")
		return
	case amount.GreaterThan(s.Balance):
		log.Info("payment rejected", zap.String("code", payment.CodeInsufficientFunds))
		writeGatewayError(w, payment.CodeInsufficientFunds, "Insufficient funds: balance is "+s.Balance.String())
		return
	}

	remaining := s.Balance.Sub(amount)
	log.Info("payment accepted", zap.String("remaining", remaining.String()))
	kit.WriteJSON(w, http.StatusOK, payResponse{Success: true, RemainingBalance: remaining})
}

func writeGatewayError(w http.ResponseWriter, code, msg string) {
	kit.WriteJSON(w, http.StatusBadRequest, payment.GatewayError{Code: code, Message: msg})
}
