package checkout

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"InterShop/internal/order"
)

// CartView is the cart page. Balance is nil when the cart is empty or the
// payments service could not be asked.
type CartView struct {
	Cart              order.View       `json:"cart"`
	Total             decimal.Decimal  `json:"total"`
	Empty             bool             `json:"empty"`
	Balance           *decimal.Decimal `json:"balance,omitempty"`
	InsufficientFunds bool             `json:"insufficient_funds"`
	ServiceAvailable  bool             `json:"service_available"`
	CanPurchase       bool             `json:"can_purchase"`
}

// ViewCart renders the cart with the balance for display. A failing balance
// query reduces the view instead of failing it.
func (o *Orchestrator) ViewCart(ctx context.Context) (CartView, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.ViewCart")
	defer span.End()

	cart, err := o.orders.Cart(ctx)
	if err != nil {
		return CartView{}, err
	}

	v := CartView{
		Cart:             cart,
		Total:            cart.Total,
		Empty:            !cart.HasPurchasable(),
		ServiceAvailable: true,
	}
	if v.Empty {
		return v, nil
	}

	balance, err := o.payments.GetBalance(ctx)
	if err != nil {
		o.log.Warn("balance unavailable for cart view", zap.Int64("order_id", cart.Order.ID), zap.Error(err))
		v.ServiceAvailable = false
		return v, nil
	}

	v.Balance = &balance
	v.InsufficientFunds = cart.Total.GreaterThan(balance)
	v.CanPurchase = !v.InsufficientFunds
	return v, nil
}
