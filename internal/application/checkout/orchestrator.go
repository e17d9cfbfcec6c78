package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	appinventory "github.com/greenmart/checkout-core/internal/application/inventory"
	apporder "github.com/greenmart/checkout-core/internal/application/order"
	apppayment "github.com/greenmart/checkout-core/internal/application/payment"
	invdomain "github.com/greenmart/checkout-core/internal/domain/inventory"
	orderdomain "github.com/greenmart/checkout-core/internal/domain/order"
	paydomain "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/greenmart/checkout-core/internal/observability"
	"github.com/greenmart/checkout-core/internal/observability/logctx"
)

var (
	// ErrValidation covers request problems caught before any side effect:
	// empty cart, bad address, missing payment method.
	ErrValidation = errors.New("checkout: validation failed")
	// ErrInconsistentState means a compensating action failed after a
	// partial rollback. Stock counters may be wrong until an operator or
	// the reconciler intervenes.
	ErrInconsistentState = errors.New("checkout: compensation failed, manual intervention required")
)

const componentCheckout = "checkout_orchestrator"

// Result is the successful outcome of a checkout run.
type Result struct {
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message"`
}

// Orchestrator drives the checkout sequence across inventory, orders and
// payments: reserve stock, create a PENDING order, charge, then either
// confirm the reservations or roll them back. Every forward step has a
// compensating action so a failure partway through never strands stock.
type Orchestrator struct {
	inventory *appinventory.Service
	orders    *apporder.Service
	payments  *apppayment.Service

	tracer     observability.Tracer
	log        observability.Logger
	sagas      observability.Counter
	usecaseReq observability.Counter
	usecaseDur observability.Histogram
}

func NewOrchestrator(inv *appinventory.Service, orders *apporder.Service, payments *apppayment.Service, tel observability.Telemetry) *Orchestrator {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Orchestrator{
		inventory:  inv,
		orders:     orders,
		payments:   payments,
		tracer:     tel.Tracer(),
		log:        tel.Logger().With(observability.F("component", componentCheckout)),
		sagas:      tel.Counter(observability.MCheckoutSagas),
		usecaseReq: tel.Counter(observability.MUsecaseRequests),
		usecaseDur: tel.Histogram(observability.MUsecaseDuration),
	}
}

// Checkout runs the full saga for the user's current cart.
func (o *Orchestrator) Checkout(ctx context.Context, userID string, address orderdomain.ShippingAddress, paymentMethod string) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.saga", attribute.String("user_id", userID))
	defer span.End()

	logger := logctx.FromOr(ctx, o.log).With(observability.F("user_id", userID))
	ctx = logctx.With(ctx, logger)

	start := time.Now()
	result, err := o.run(ctx, userID, address, paymentMethod, logger)
	outcome := outcomeLabel(err)
	o.sagas.Add(1, observability.L("outcome", outcome))
	o.usecaseReq.Add(1, observability.L("use_case", "checkout"), observability.L("outcome", outcome))
	o.usecaseDur.Observe(time.Since(start).Seconds(), observability.L("use_case", "checkout"))
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, userID string, address orderdomain.ShippingAddress, paymentMethod string, logger observability.Logger) (*Result, error) {
	cart, err := o.orders.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checkout: load cart: %w", err)
	}
	if err := validate(cart, address, paymentMethod); err != nil {
		return nil, err
	}

	// Phase 1: reserve every line. A line that cannot be reserved undoes
	// the lines reserved before it and aborts the run.
	reserved, err := o.reserveAll(ctx, cart.Items, logger)
	if err != nil {
		return nil, err
	}

	// Phase 2: record the order before charging so a crash mid-payment
	// leaves a PENDING order the reconciler can pick up.
	ord, err := o.orders.CreateReservedOrder(ctx, userID, cart.Items, address, paymentMethod)
	if err != nil {
		o.releaseAll(ctx, reserved, logger)
		return nil, fmt.Errorf("checkout: create order: %w", err)
	}
	logger = logger.With(observability.F("order_id", ord.ID))

	// Phase 3: charge.
	txn, chargeErr := o.payments.Charge(ctx, ord.ID, userID, ord.TotalAmount, paymentMethod)
	if chargeErr != nil {
		return nil, o.abortAfterCharge(ctx, ord, reserved, chargeErr, logger)
	}

	// Phase 4: commit. Each step here is idempotent so a resumed run
	// (after a crash, via the reconciler) can replay it safely.
	if err := o.Finish(ctx, ord); err != nil {
		return nil, err
	}

	logger.Info("checkout_completed",
		observability.F("transaction_id", txn.ID),
		observability.F("total", ord.TotalAmount.String()),
	)
	return &Result{
		OrderID:       ord.ID,
		TransactionID: txn.ID,
		Message:       "order confirmed",
	}, nil
}

// Finish commits a paid order: confirm the reservations, mark the order
// CONFIRMED and clear the cart. Safe to call again for an order that is
// already CONFIRMED; the reconciler relies on that.
func (o *Orchestrator) Finish(ctx context.Context, ord *orderdomain.Order) error {
	if ord.Status == orderdomain.StatusConfirmed {
		return nil
	}

	for _, it := range ord.Items {
		if _, err := o.inventory.Confirm(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("%w: confirm %s: %v", ErrInconsistentState, it.ProductID, err)
		}
	}
	if _, err := o.orders.UpdateStatus(ctx, ord.ID, orderdomain.StatusConfirmed); err != nil {
		return fmt.Errorf("checkout: confirm order: %w", err)
	}
	if err := o.orders.ClearCart(ctx, ord.UserID); err != nil {
		// The order is already confirmed; a stale cart is an annoyance,
		// not a reason to fail the checkout.
		logctx.FromOr(ctx, o.log).Warn("clear_cart_failed",
			observability.F("order_id", ord.ID),
			observability.F("error", err.Error()),
		)
	}
	return nil
}

// Abort rolls back a PENDING order whose payment failed: release every
// reservation and mark the order PAYMENT_FAILED.
func (o *Orchestrator) Abort(ctx context.Context, ord *orderdomain.Order, logger observability.Logger) error {
	if !o.releaseAll(ctx, itemReservations(ord.Items), logger) {
		return ErrInconsistentState
	}
	if _, err := o.orders.UpdateStatus(ctx, ord.ID, orderdomain.StatusPaymentFailed); err != nil {
		return fmt.Errorf("%w: mark payment failed: %v", ErrInconsistentState, err)
	}
	return nil
}

func (o *Orchestrator) abortAfterCharge(ctx context.Context, ord *orderdomain.Order, reserved []reservation, chargeErr error, logger observability.Logger) error {
	logger.Info("checkout_payment_failed",
		observability.F("error", chargeErr.Error()),
	)
	if !o.releaseAll(ctx, reserved, logger) {
		return ErrInconsistentState
	}
	if _, err := o.orders.UpdateStatus(ctx, ord.ID, orderdomain.StatusPaymentFailed); err != nil {
		return fmt.Errorf("%w: mark payment failed: %v", ErrInconsistentState, err)
	}

	return chargeErr
}

type reservation struct {
	productID string
	quantity  int
}

func itemReservations(items []orderdomain.Item) []reservation {
	out := make([]reservation, 0, len(items))
	for _, it := range items {
		out = append(out, reservation{productID: it.ProductID, quantity: it.Quantity})
	}
	return out
}

func (o *Orchestrator) reserveAll(ctx context.Context, items []orderdomain.Item, logger observability.Logger) ([]reservation, error) {
	reserved := make([]reservation, 0, len(items))
	for _, it := range items {
		if _, err := o.inventory.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			if !o.releaseAll(ctx, reserved, logger) {
				return nil, ErrInconsistentState
			}
			if errors.Is(err, invdomain.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: product %s", err, it.ProductID)
			}
			return nil, fmt.Errorf("checkout: reserve %s: %w", it.ProductID, err)
		}
		reserved = append(reserved, reservation{productID: it.ProductID, quantity: it.Quantity})
	}
	return reserved, nil
}

// releaseAll undoes reservations in reverse order. It reports false when any
// release fails; the failure is logged per product so operators can repair
// the counters by hand.
func (o *Orchestrator) releaseAll(ctx context.Context, reserved []reservation, logger observability.Logger) bool {
	ok := true
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if _, err := o.inventory.Release(ctx, r.productID, r.quantity); err != nil {
			ok = false
			logger.Error("release_failed",
				observability.F("product_id", r.productID),
				observability.F("quantity", r.quantity),
				observability.F("error", err.Error()),
			)
		}
	}
	return ok
}

func validate(cart *orderdomain.Cart, address orderdomain.ShippingAddress, paymentMethod string) error {
	if cart.IsEmpty() {
		return fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	for _, it := range cart.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: product %s has non-positive quantity", ErrValidation, it.ProductID)
		}
	}
	if err := address.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if paymentMethod == "" {
		return fmt.Errorf("%w: payment method is required", ErrValidation)
	}
	return nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrValidation):
		return "rejected"
	case errors.Is(err, invdomain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, paydomain.ErrDeclined), errors.Is(err, paydomain.ErrUnavailable):
		return "payment_failed"
	case errors.Is(err, ErrInconsistentState):
		return "inconsistent"
	default:
		return "error"
	}
}
