package payments

import (
	"context"
	"net/http"
)

type CreateOrderRequest struct {
	AmountPaise int64
	Currency    string
	Receipt     string // unique per attempt; idempotency key at the gateway
	Notes       map[string]string
}

// Order is the gateway-side payment intent. Immutable once created; only
// the id is needed locally for later verification.
type Order struct {
	GatewayOrderID string
	AmountPaise    int64
	Currency       string
	Receipt        string
}

type GatewayPayment struct {
	ID          string
	OrderID     string
	AmountPaise int64
	Currency    string
	Status      string // created|authorized|captured|refunded|failed
	Captured    bool
}

type GatewayRefund struct {
	ID          string
	PaymentID   string
	AmountPaise int64
	Status      string
}

type WebhookEvent struct {
	EventID string
	Type    string // payment.captured|payment.failed|refund.processed

	GatewayOrderID   string
	GatewayPaymentID string
	GatewayRefundID  string

	AmountPaise int64
	Currency    string
}

type Provider interface {
	Name() string

	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	CapturePayment(ctx context.Context, paymentID string, amountPaise int64, currency string) (GatewayPayment, error)
	RefundPayment(ctx context.Context, paymentID string, amountPaise int64) (GatewayRefund, error)
	FetchPayment(ctx context.Context, paymentID string) (GatewayPayment, error)

	// VerifySignature authenticates a client-reported completion. It is the
	// only signal that may move a record to verified.
	VerifySignature(orderID, paymentID, signature string) bool

	// Webhook: verify signature + parse event
	VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error)
}
