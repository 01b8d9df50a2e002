package checkout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"InterShop/internal/events"
)

const reconcileBatch = 50

// Finalizer completes an order by id and tolerates orders already completed.
type Finalizer interface {
	FinalizeOrder(ctx context.Context, id int64) (int64, error)
}

// Reconciler retries finalize for journaled discrepancies.
type Reconciler struct {
	journal  Journal
	orders   Finalizer
	events   events.Publisher
	metrics  *Metrics
	log      *zap.Logger
	interval time.Duration

	publishTimeout time.Duration
}

func NewReconciler(journal Journal, orders Finalizer, pub events.Publisher, metrics *Metrics, log *zap.Logger, interval time.Duration) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Reconciler{
		journal:  journal,
		orders:   orders,
		events:   pub,
		metrics:  metrics,
		log:      log,
		interval: interval,

		publishTimeout: defaultPublishTimeout,
	}
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopping")
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce makes one pass over pending discrepancies and returns how many it
// resolved. Entries that still fail stay pending for the next pass.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.journal.Pending(ctx, reconcileBatch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, d := range pending {
		log := r.log.With(zap.Int64("discrepancy_id", d.ID), zap.Int64("order_id", d.OrderID))

		if _, err := r.orders.FinalizeOrder(ctx, d.OrderID); err != nil {
			log.Warn("discrepancy still unresolved", zap.Error(err))
			continue
		}
		if err := r.journal.Resolve(ctx, d.ID); err != nil {
			log.Error("order finalized but discrepancy not marked resolved", zap.Error(err))
			continue
		}

		resolved++
		r.metrics.Reconciled.Inc()
		log.Info("discrepancy resolved", zap.String("amount", d.Amount.String()))
		publishEvent(ctx, r.events, r.publishTimeout, log, events.New(events.TypeCheckoutReconciled, d.OrderID, d.Amount))
	}
	return resolved, nil
}
