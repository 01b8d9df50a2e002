// Package checkout turns the cart into a paid, completed order and serves the
// shop's cart and purchase endpoints.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"InterShop/internal/events"
	"InterShop/internal/order"
	"InterShop/internal/payment"
)

// ErrUnreconciled means the payment was taken but the order is still NEW. A
// discrepancy has been journaled for the reconciler.
var ErrUnreconciled = errors.New("payment taken but order not finalized")

const defaultPublishTimeout = 2 * time.Second

type Outcome string

const (
	OutcomeCompleted          Outcome = "COMPLETED"
	OutcomeNothingToBuy       Outcome = "NOTHING_TO_BUY"
	OutcomePaymentDeclined    Outcome = "PAYMENT_DECLINED"
	OutcomeServiceUnavailable Outcome = "SERVICE_UNAVAILABLE"

	outcomeUnreconciled = "UNRECONCILED"
	outcomeError        = "ERROR"
)

type Result struct {
	Outcome   Outcome
	OrderID   int64
	Remaining decimal.Decimal
	// Cause is the gateway error behind a decline or an outage.
	Cause error
}

// Orders is the part of the order service checkout drives.
type Orders interface {
	Cart(ctx context.Context) (order.View, error)
	FinalizeOrder(ctx context.Context, id int64) (int64, error)
}

type Gateway interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	SubmitPayment(ctx context.Context, amount decimal.Decimal) (payment.Result, error)
}

type Deps struct {
	Orders   Orders
	Payments Gateway
	Journal  Journal
	Events   events.Publisher
	Metrics  *Metrics
	Log      *zap.Logger

	FinalizeAttempts int
	FinalizeBackoff  time.Duration
	// PublishTimeout bounds each event publish; zero means two seconds.
	PublishTimeout time.Duration
}

type Orchestrator struct {
	orders   Orders
	payments Gateway
	journal  Journal
	events   events.Publisher
	metrics  *Metrics
	log      *zap.Logger
	tracer   trace.Tracer

	attempts       int
	backoff        time.Duration
	publishTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func New(d Deps) *Orchestrator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Journal == nil {
		d.Journal = NewMemJournal()
	}
	if d.FinalizeAttempts < 1 {
		d.FinalizeAttempts = 1
	}
	if d.PublishTimeout <= 0 {
		d.PublishTimeout = defaultPublishTimeout
	}
	return &Orchestrator{
		orders:         d.Orders,
		payments:       d.Payments,
		journal:        d.Journal,
		events:         d.Events,
		metrics:        d.Metrics,
		log:            d.Log,
		tracer:         otel.Tracer("InterShop/checkout"),
		attempts:       d.FinalizeAttempts,
		backoff:        d.FinalizeBackoff,
		publishTimeout: d.PublishTimeout,
		sleep:          sleepCtx,
	}
}

// Checkout pays for the current cart and completes it. The payment is
// attempted once; finalize only runs after the gateway confirmed it. A cart
// with an unresolved discrepancy was already paid for and is completed
// without charging again.
func (o *Orchestrator) Checkout(ctx context.Context) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Checkout")
	defer span.End()

	res, err := o.checkout(ctx)
	switch {
	case errors.Is(err, ErrUnreconciled):
		o.metrics.Outcomes.WithLabelValues(outcomeUnreconciled).Inc()
	case err != nil:
		o.metrics.Outcomes.WithLabelValues(outcomeError).Inc()
	default:
		o.metrics.Outcomes.WithLabelValues(string(res.Outcome)).Inc()
	}

	span.SetAttributes(attribute.String("checkout.outcome", string(res.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (o *Orchestrator) checkout(ctx context.Context) (Result, error) {
	cart, err := o.orders.Cart(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load cart: %w", err)
	}
	log := o.log.With(zap.Int64("order_id", cart.Order.ID), zap.String("total", cart.Total.String()))

	paidFor, err := o.journal.PendingFor(ctx, cart.Order.ID)
	if err != nil {
		return Result{OrderID: cart.Order.ID}, fmt.Errorf("check journal for order %d: %w", cart.Order.ID, err)
	}
	if len(paidFor) > 0 {
		return o.settle(ctx, cart, paidFor)
	}

	if !cart.HasPurchasable() {
		log.Info("checkout skipped, nothing to buy")
		return Result{Outcome: OutcomeNothingToBuy, OrderID: cart.Order.ID}, nil
	}

	paid, err := o.payments.SubmitPayment(ctx, cart.Total)
	switch {
	case errors.Is(err, payment.ErrDeclined):
		log.Info("payment declined", zap.Error(err))
		return Result{Outcome: OutcomePaymentDeclined, OrderID: cart.Order.ID, Cause: err}, nil
	case err != nil:
		log.Warn("payment service unavailable", zap.Error(err))
		return Result{Outcome: OutcomeServiceUnavailable, OrderID: cart.Order.ID, Cause: err}, nil
	case !paid.Success:
		log.Info("payment not successful")
		return Result{Outcome: OutcomePaymentDeclined, OrderID: cart.Order.ID, Cause: payment.ErrDeclined}, nil
	}

	// Money has moved: the caller going away must not abandon the order.
	ctx = context.WithoutCancel(ctx)

	id, err := o.finalize(ctx, cart.Order.ID)
	if err != nil {
		o.unreconciled(ctx, cart, err)
		return Result{OrderID: cart.Order.ID, Remaining: paid.RemainingBalance},
			fmt.Errorf("%w: order %d: %w", ErrUnreconciled, cart.Order.ID, err)
	}

	log.Info("checkout completed", zap.String("remaining", paid.RemainingBalance.String()))
	o.publish(ctx, events.New(events.TypeOrderCompleted, id, cart.Total))
	return Result{Outcome: OutcomeCompleted, OrderID: id, Remaining: paid.RemainingBalance}, nil
}

// settle completes a cart whose payment is already journaled.
func (o *Orchestrator) settle(ctx context.Context, cart order.View, paidFor []Discrepancy) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	log := o.log.With(zap.Int64("order_id", cart.Order.ID))
	log.Info("cart already paid, completing without a new charge", zap.Int("discrepancies", len(paidFor)))

	id, err := o.finalize(ctx, cart.Order.ID)
	if err != nil {
		log.Error("paid cart still not finalized", zap.Error(err))
		return Result{OrderID: cart.Order.ID},
			fmt.Errorf("%w: order %d: %w", ErrUnreconciled, cart.Order.ID, err)
	}

	for _, d := range paidFor {
		if err := o.journal.Resolve(ctx, d.ID); err != nil {
			log.Error("order finalized but discrepancy not marked resolved", zap.Int64("discrepancy_id", d.ID), zap.Error(err))
			continue
		}
		o.metrics.Reconciled.Inc()
		o.publish(ctx, events.New(events.TypeCheckoutReconciled, d.OrderID, d.Amount))
	}

	res := Result{Outcome: OutcomeCompleted, OrderID: id}
	if res.Remaining, err = o.payments.GetBalance(ctx); err != nil {
		log.Warn("balance unknown after settling", zap.Error(err))
	}
	log.Info("checkout completed", zap.String("remaining", res.Remaining.String()))
	return res, nil
}

func (o *Orchestrator) finalize(ctx context.Context, id int64) (int64, error) {
	var err error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		var done int64
		done, err = o.orders.FinalizeOrder(ctx, id)
		if err == nil {
			return done, nil
		}

		o.log.Warn("finalize failed",
			zap.Int64("order_id", id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.attempts),
			zap.Error(err),
		)
		if attempt < o.attempts {
			if serr := o.sleep(ctx, o.backoff*time.Duration(attempt)); serr != nil {
				return 0, errors.Join(err, serr)
			}
		}
	}
	return 0, err
}

func (o *Orchestrator) unreconciled(ctx context.Context, cart order.View, cause error) {
	o.metrics.Unreconciled.Inc()

	fields := []zap.Field{
		zap.Int64("order_id", cart.Order.ID),
		zap.String("amount", cart.Total.String()),
		zap.Error(cause),
	}

	d, err := o.journal.Record(ctx, Discrepancy{OrderID: cart.Order.ID, Amount: cart.Total, Reason: cause.Error()})
	if err != nil {
		o.log.Error("payment taken, order not finalized, discrepancy NOT journaled",
			append(fields, zap.NamedError("journal_error", err))...)
	} else {
		o.log.Error("payment taken, order not finalized", append(fields, zap.Int64("discrepancy_id", d.ID))...)
	}

	o.publish(ctx, events.New(events.TypeCheckoutUnreconciled, cart.Order.ID, cart.Total))
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	publishEvent(ctx, o.events, o.publishTimeout, o.log, ev)
}

// publishEvent sends ev within timeout. A failed publish is logged and dropped:
// events never hold back a checkout.
func publishEvent(ctx context.Context, pub events.Publisher, timeout time.Duration, log *zap.Logger, ev events.Event) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("event publish failed", zap.String("type", ev.Type), zap.Int64("order_id", ev.OrderID), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
