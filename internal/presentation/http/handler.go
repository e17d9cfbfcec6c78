package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	appcheckout "github.com/greenmart/checkout-core/internal/application/checkout"
	appinventory "github.com/greenmart/checkout-core/internal/application/inventory"
	apporder "github.com/greenmart/checkout-core/internal/application/order"
	apppayment "github.com/greenmart/checkout-core/internal/application/payment"
	domaininventory "github.com/greenmart/checkout-core/internal/domain/inventory"
	domainorder "github.com/greenmart/checkout-core/internal/domain/order"
	domainpayment "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/greenmart/checkout-core/internal/observability"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-Id"
)

type Handler struct {
	checkout  *appcheckout.Orchestrator
	inventory *appinventory.Service
	orders    *apporder.Service
	payments  *apppayment.Service
	metrics   http.Handler

	log observability.Logger
	tel observability.Telemetry
}

func NewHandler(checkout *appcheckout.Orchestrator, inventorySvc *appinventory.Service, orderSvc *apporder.Service, paymentSvc *apppayment.Service, metricsHandler http.Handler, tel observability.Telemetry) *Handler {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Handler{
		checkout:  checkout,
		inventory: inventorySvc,
		orders:    orderSvc,
		payments:  paymentSvc,
		metrics:   metricsHandler,
		log:       tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:       tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Wire each route with middlewares:
	// Trace → RequestContextMiddleware → HTTP metrics → Access log → Handler
	h.muxHandle(mux, "POST /checkout", h.handleCheckout)

	h.muxHandle(mux, "GET /inventory", h.handleListInventory)
	h.muxHandle(mux, "GET /inventory/{productId}", h.handleGetInventory)
	h.muxHandle(mux, "PUT /inventory/{productId}", h.handleSetStock)
	h.muxHandle(mux, "POST /inventory/{productId}/add", h.handleAddStock)
	h.muxHandle(mux, "POST /inventory/{productId}/reduce", h.handleReduceStock)
	h.muxHandle(mux, "POST /inventory/{productId}/reserve", h.handleReserveStock)
	h.muxHandle(mux, "POST /inventory/{productId}/release", h.handleReleaseStock)
	h.muxHandle(mux, "POST /inventory/{productId}/confirm", h.handleConfirmStock)
	h.muxHandle(mux, "POST /inventory/check-availability", h.handleCheckAvailability)

	h.muxHandle(mux, "POST /orders", h.handleCreateOrder)
	h.muxHandle(mux, "GET /orders", h.handleListOrders)
	h.muxHandle(mux, "GET /orders/{id}", h.handleGetOrder)
	h.muxHandle(mux, "PATCH /orders/{id}/status", h.handleUpdateOrderStatus)

	h.muxHandle(mux, "GET /cart", h.handleGetCart)
	h.muxHandle(mux, "POST /cart", h.handleAddToCart)
	h.muxHandle(mux, "PUT /cart/{productId}", h.handleUpdateCartItem)
	h.muxHandle(mux, "DELETE /cart/{productId}", h.handleRemoveFromCart)
	h.muxHandle(mux, "DELETE /cart", h.handleClearCart)

	h.muxHandle(mux, "POST /payments/charge", h.handleCharge)
	h.muxHandle(mux, "GET /payments", h.handleListPayments)
	h.muxHandle(mux, "GET /payments/{id}", h.handleGetPayment)
	h.muxHandle(mux, "POST /payments/{id}/refund", h.handleRefund)

	h.muxHandle(mux, "GET /health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		// Store the stable route template for low-cardinality labels.
		ctx := contextWithRoute(r.Context(), pattern)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			RequestContextMiddleware(h.log, h.tel)(
				h.withAccessLog(
					h.withHTTPMetrics(handler),
				),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

// userID extracts the caller identity. Routes acting on user-owned data
// reject requests without it.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := r.Header.Get(headerUserID)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing "+headerUserID+" header"))
		return "", false
	}
	return uid, true
}

// --- checkout ---

type checkoutRequest struct {
	ShippingAddress domainorder.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                      `json:"paymentMethod"`
}

type checkoutResponse struct {
	Success       bool   `json:"success"`
	OrderID       string `json:"orderId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.checkout.Checkout(r.Context(), uid, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		writeJSON(w, domainErrorStatus(err), checkoutResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		Success:       true,
		OrderID:       result.OrderID,
		TransactionID: result.TransactionID,
		Message:       result.Message,
	})
}

// --- inventory ---

type inventoryResponse struct {
	ProductID         string `json:"productId"`
	Quantity          int    `json:"quantity"`
	ReservedQuantity  int    `json:"reservedQuantity"`
	Available         int    `json:"available"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	LowStock          bool   `json:"lowStock"`
}

func toInventoryResponse(rec *domaininventory.Record) inventoryResponse {
	return inventoryResponse{
		ProductID:         rec.ProductID,
		Quantity:          rec.Quantity,
		ReservedQuantity:  rec.ReservedQuantity,
		Available:         rec.Available(),
		LowStockThreshold: rec.LowStockThreshold,
		LowStock:          rec.IsLowStock(),
	}
}

func (h *Handler) handleListInventory(w http.ResponseWriter, r *http.Request) {
	lowStockOnly := r.URL.Query().Get("lowStockOnly") == "true"
	records, err := h.inventory.List(r.Context(), lowStockOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]inventoryResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toInventoryResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	rec, err := h.inventory.Get(r.Context(), r.PathValue("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(rec))
}

type setStockRequest struct {
	Quantity          int  `json:"quantity"`
	LowStockThreshold *int `json:"lowStockThreshold,omitempty"`
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	threshold := -1 // keep current
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}
	rec, err := h.inventory.SetStock(r.Context(), r.PathValue("productId"), req.Quantity, threshold)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(rec))
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleQuantityOp(w http.ResponseWriter, r *http.Request, op func(productID string, qty int) (*domaininventory.Record, error)) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := op(r.PathValue("productId"), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(rec))
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, func(pid string, qty int) (*domaininventory.Record, error) {
		return h.inventory.AddStock(r.Context(), pid, qty)
	})
}

func (h *Handler) handleReduceStock(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, func(pid string, qty int) (*domaininventory.Record, error) {
		return h.inventory.Reduce(r.Context(), pid, qty)
	})
}

func (h *Handler) handleReserveStock(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, func(pid string, qty int) (*domaininventory.Record, error) {
		return h.inventory.Reserve(r.Context(), pid, qty)
	})
}

func (h *Handler) handleReleaseStock(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, func(pid string, qty int) (*domaininventory.Record, error) {
		return h.inventory.Release(r.Context(), pid, qty)
	})
}

func (h *Handler) handleConfirmStock(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, func(pid string, qty int) (*domaininventory.Record, error) {
		return h.inventory.Confirm(r.Context(), pid, qty)
	})
}

type checkAvailabilityRequest struct {
	Items []appinventory.CheckItem `json:"items"`
}

func (h *Handler) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req checkAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.inventory.CheckAvailability(r.Context(), req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- orders ---

type createOrderRequest struct {
	Items           []domainorder.Item          `json:"items"`
	ShippingAddress domainorder.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                      `json:"paymentMethod"`
}

type orderResponse struct {
	ID              string                      `json:"id"`
	UserID          string                      `json:"userId"`
	Items           []domainorder.Item          `json:"items"`
	ShippingAddress domainorder.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                      `json:"paymentMethod"`
	Status          domainorder.Status          `json:"status"`
	TotalAmount     decimal.Decimal             `json:"totalAmount"`
	CreatedAt       string                      `json:"createdAt"`
	UpdatedAt       string                      `json:"updatedAt"`
}

func toOrderResponse(o *domainorder.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		CreatedAt:       o.CreatedAt.Format(timeFormat),
		UpdatedAt:       o.UpdatedAt.Format(timeFormat),
	}
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ord, err := h.orders.CreateOrder(r.Context(), uid, req.Items, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(ord))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	ord, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ord.UserID != uid {
		writeError(w, http.StatusNotFound, domainorder.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := domainorder.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ord, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ord.UserID != uid {
		// Same shape as a read of a foreign order: don't leak existence.
		writeError(w, http.StatusNotFound, domainorder.ErrNotFound)
		return
	}
	updated, err := h.orders.UpdateStatus(r.Context(), ord.ID, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// --- cart ---

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	cart, err := h.orders.GetCart(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var item domainorder.Item
	if err := decodeJSON(r, &item); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cart, err := h.orders.AddToCart(r.Context(), uid, item)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cart, err := h.orders.UpdateCartItem(r.Context(), uid, r.PathValue("productId"), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	cart, err := h.orders.RemoveFromCart(r.Context(), uid, r.PathValue("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.orders.ClearCart(r.Context(), uid); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- payments ---

type chargeRequest struct {
	OrderID       string `json:"orderId"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

type transactionResponse struct {
	ID            string               `json:"id"`
	OrderID       string               `json:"orderId"`
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod string               `json:"paymentMethod"`
	Status        domainpayment.Status `json:"status"`
	ProviderTxnID string               `json:"providerTxnId,omitempty"`
	FailureReason string               `json:"failureReason,omitempty"`
	CreatedAt     string               `json:"createdAt"`
}

func toTransactionResponse(t *domainpayment.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		OrderID:       t.OrderID,
		Amount:        t.Amount,
		PaymentMethod: t.PaymentMethod,
		Status:        t.Status,
		ProviderTxnID: t.ProviderTxnID,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt.Format(timeFormat),
	}
}

// handleCharge charges an existing order directly, outside the checkout
// flow. The amount always comes from the stored order, never the request.
func (h *Handler) handleCharge(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req chargeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ord, err := h.orders.Get(r.Context(), req.OrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ord.UserID != uid {
		writeError(w, http.StatusNotFound, domainorder.ErrNotFound)
		return
	}
	method := req.PaymentMethod
	if method == "" {
		method = ord.PaymentMethod
	}
	txn, err := h.payments.Charge(r.Context(), ord.ID, uid, ord.TotalAmount, method)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	txns, err := h.payments.ListByUser(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	txn, err := h.payments.GetTransaction(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	txn, err := h.payments.GetTransaction(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	refunded, err := h.payments.Refund(r.Context(), txn.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(refunded))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// --- helpers ---

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, domainErrorStatus(err), err)
}

func domainErrorStatus(err error) int {
	switch {
	case errors.Is(err, appcheckout.ErrValidation),
		errors.Is(err, domaininventory.ErrInvalidQuantity),
		errors.Is(err, domainorder.ErrInvalidQuantity),
		errors.Is(err, domainorder.ErrEmptyItems),
		errors.Is(err, domainorder.ErrInvalidAddress),
		errors.Is(err, domainpayment.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domainpayment.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domaininventory.ErrNotFound),
		errors.Is(err, domainorder.ErrNotFound),
		errors.Is(err, domainorder.ErrItemNotInCart),
		errors.Is(err, domainpayment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainpayment.ErrDeclined),
		errors.Is(err, domainpayment.ErrUnavailable):
		return http.StatusPaymentRequired
	case errors.Is(err, domaininventory.ErrInsufficientStock),
		errors.Is(err, domainorder.ErrInvalidTransition),
		errors.Is(err, domainorder.ErrConflict),
		errors.Is(err, domainpayment.ErrNotRefundable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
