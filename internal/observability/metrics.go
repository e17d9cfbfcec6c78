package observability

const (
	MUsecaseRequests     = "usecase_requests_total"
	MUsecaseDuration     = "usecase_duration_seconds"
	MHTTPRequests        = "http_requests_total"
	MHTTPRequestDuration = "http_request_duration_seconds"
	MEventPublishFailed  = "event_publish_failed_total"
	MCheckoutSagas       = "checkout_sagas_total"
	MReconciledOrders    = "reconciled_orders_total"
)
