package checkout

import (
	"context"
	"errors"
	"time"

	apppayment "github.com/greenmart/checkout-core/internal/application/payment"
	orderdomain "github.com/greenmart/checkout-core/internal/domain/order"
	paydomain "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/greenmart/checkout-core/internal/observability"
)

const reconcileBatchSize = 50

// StatusChecker asks the payment provider whether an order was charged.
// Used when a transaction is stuck PENDING and the local record cannot
// tell us what happened.
type StatusChecker interface {
	CheckStatus(ctx context.Context, orderID string) (bool, error)
}

// Reconciler resumes checkouts that crashed between charging and
// confirming. It periodically sweeps orders stuck in PENDING: an order
// whose payment completed is finished, everything else is rolled back.
// Only orders holding reservations are touched; orders placed directly
// against the API are left to their owners.
type Reconciler struct {
	orders   orderdomain.Repository
	payments *apppayment.Service
	saga     *Orchestrator
	checker  StatusChecker

	interval   time.Duration
	staleAfter time.Duration

	log        observability.Logger
	reconciled observability.Counter
}

func NewReconciler(orders orderdomain.Repository, payments *apppayment.Service, saga *Orchestrator, checker StatusChecker, interval, staleAfter time.Duration, tel observability.Telemetry) *Reconciler {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	return &Reconciler{
		orders:     orders,
		payments:   payments,
		saga:       saga,
		checker:    checker,
		interval:   interval,
		staleAfter: staleAfter,
		log:        tel.Logger().With(observability.F("component", "checkout_reconciler")),
		reconciled: tel.Counter(observability.MReconciledOrders),
	}
}

// Run sweeps on a ticker until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler_started",
		observability.F("interval", r.interval.String()),
		observability.F("stale_after", r.staleAfter.String()),
	)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler_stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of stale PENDING orders.
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	stale, err := r.orders.ListStale(ctx, orderdomain.StatusPending, cutoff, reconcileBatchSize)
	if err != nil {
		r.log.Error("reconcile_list_failed", observability.F("error", err.Error()))
		return
	}
	for _, ord := range stale {
		outcome := r.reconcile(ctx, ord)
		r.reconciled.Add(1, observability.L("outcome", outcome))
	}
}

func (r *Reconciler) reconcile(ctx context.Context, ord *orderdomain.Order) string {
	logger := r.log.With(observability.F("order_id", ord.ID))

	if !ord.StockReserved {
		// Placed directly against the order API. It holds no reservations,
		// so there is nothing to confirm or release; releasing here would
		// eat stock held by in-flight checkouts. Its owner resolves it.
		return "skipped"
	}

	txn, err := r.payments.GetByOrder(ctx, ord.ID)
	switch {
	case errors.Is(err, paydomain.ErrNotFound):
		// Crashed before the charge was even attempted.
		return r.rollBack(ctx, ord, logger)
	case err != nil:
		logger.Error("reconcile_lookup_failed", observability.F("error", err.Error()))
		return "error"
	}

	switch txn.Status {
	case paydomain.StatusCompleted:
		return r.finish(ctx, ord, logger)
	case paydomain.StatusFailed:
		return r.rollBack(ctx, ord, logger)
	case paydomain.StatusPending:
		// Crashed mid-charge. Ask the provider when we can; otherwise the
		// unknown outcome is treated as a failure, same as a timeout.
		if r.checker != nil {
			charged, err := r.checker.CheckStatus(ctx, ord.ID)
			if err != nil {
				logger.Warn("reconcile_status_check_failed", observability.F("error", err.Error()))
				return "deferred"
			}
			if charged {
				return r.finish(ctx, ord, logger)
			}
		}
		return r.rollBack(ctx, ord, logger)
	default:
		return r.rollBack(ctx, ord, logger)
	}
}

func (r *Reconciler) finish(ctx context.Context, ord *orderdomain.Order, logger observability.Logger) string {
	if err := r.saga.Finish(ctx, ord); err != nil {
		logger.Error("reconcile_finish_failed", observability.F("error", err.Error()))
		return "error"
	}
	logger.Info("reconciled_order_confirmed")
	return "confirmed"
}

func (r *Reconciler) rollBack(ctx context.Context, ord *orderdomain.Order, logger observability.Logger) string {
	if err := r.saga.Abort(ctx, ord, logger); err != nil {
		logger.Error("reconcile_rollback_failed", observability.F("error", err.Error()))
		return "error"
	}
	logger.Info("reconciled_order_rolled_back")
	return "rolled_back"
}
