package payment

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
)

var (
	// ErrDeclined matches every structured refusal by the gateway.
	ErrDeclined          = errors.New("payment declined")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")

	// ErrUnavailable covers transport failures, timeouts, server errors and
	// responses that cannot be understood.
	ErrUnavailable = errors.New("payment service unavailable")
)

// GatewayError is the structured 4xx body of the payments service.
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %s: %s", e.Code, e.Message)
}

func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrDeclined:
		return true
	case ErrInsufficientFunds:
		return e.Code == CodeInsufficientFunds
	case ErrInvalidAmount:
		return e.Code == CodeInvalidAmount
	}
	return false
}

func knownCode(code string) bool {
	return code == CodeInvalidAmount || code == CodeInsufficientFunds
}
