package razorpay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sahaaya.org/app/internal/modules/payments"
)

const (
	headerSignature = "X-Razorpay-Signature"
	headerEventID   = "X-Razorpay-Event-Id"
)

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string // default https://api.razorpay.com

	CreateTimeout  time.Duration // default 10s
	CaptureTimeout time.Duration // default 10s
	RefundTimeout  time.Duration // default 10s
	FetchTimeout   time.Duration // default 5s
}

// Client is a stateless adapter over the Razorpay REST API. No local state
// is held between calls; every call carries its own bounded timeout.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 10 * time.Second
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 10 * time.Second
	}
	if cfg.RefundTimeout <= 0 {
		cfg.RefundTimeout = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{}}
}

func (c *Client) Name() string { return "razorpay" }

type orderEntity struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type paymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Captured bool   `json:"captured"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func (c *Client) CreateOrder(ctx context.Context, req payments.CreateOrderRequest) (payments.Order, error) {
	if req.AmountPaise <= 0 {
		return payments.Order{}, fmt.Errorf("%w: amount must be positive", payments.ErrInvalidRequest)
	}
	if len(req.Currency) != 3 {
		return payments.Order{}, fmt.Errorf("%w: bad currency %q", payments.ErrInvalidRequest, req.Currency)
	}

	body := map[string]any{
		"amount":   req.AmountPaise,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var ent orderEntity
	if err := c.do(ctx, c.cfg.CreateTimeout, http.MethodPost, "/v1/orders", body, &ent); err != nil {
		return payments.Order{}, err
	}
	return payments.Order{
		GatewayOrderID: ent.ID,
		AmountPaise:    ent.Amount,
		Currency:       ent.Currency,
		Receipt:        ent.Receipt,
	}, nil
}

func (c *Client) CapturePayment(ctx context.Context, paymentID string, amountPaise int64, currency string) (payments.GatewayPayment, error) {
	if paymentID == "" || amountPaise <= 0 {
		return payments.GatewayPayment{}, fmt.Errorf("%w: bad capture args", payments.ErrInvalidRequest)
	}

	body := map[string]any{"amount": amountPaise, "currency": currency}

	var ent paymentEntity
	err := c.do(ctx, c.cfg.CaptureTimeout, http.MethodPost, "/v1/payments/"+paymentID+"/capture", body, &ent)
	if err != nil {
		return payments.GatewayPayment{}, err
	}
	return toGatewayPayment(ent), nil
}

func (c *Client) RefundPayment(ctx context.Context, paymentID string, amountPaise int64) (payments.GatewayRefund, error) {
	if paymentID == "" {
		return payments.GatewayRefund{}, fmt.Errorf("%w: missing payment id", payments.ErrInvalidRequest)
	}

	// amount omitted => full refund
	var body any
	if amountPaise > 0 {
		body = map[string]any{"amount": amountPaise}
	}

	var ent refundEntity
	err := c.do(ctx, c.cfg.RefundTimeout, http.MethodPost, "/v1/payments/"+paymentID+"/refund", body, &ent)
	if err != nil {
		return payments.GatewayRefund{}, err
	}
	return payments.GatewayRefund{
		ID:          ent.ID,
		PaymentID:   ent.PaymentID,
		AmountPaise: ent.Amount,
		Status:      ent.Status,
	}, nil
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (payments.GatewayPayment, error) {
	if paymentID == "" {
		return payments.GatewayPayment{}, fmt.Errorf("%w: missing payment id", payments.ErrInvalidRequest)
	}

	var ent paymentEntity
	err := c.do(ctx, c.cfg.FetchTimeout, http.MethodGet, "/v1/payments/"+paymentID, nil, &ent)
	if err != nil {
		return payments.GatewayPayment{}, err
	}
	return toGatewayPayment(ent), nil
}

func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(orderID, paymentID, signature, c.cfg.KeySecret)
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

func (c *Client) VerifyAndParseWebhook(headers http.Header, body []byte) (payments.WebhookEvent, error) {
	if !VerifyWebhookSignature(body, headers.Get(headerSignature), c.cfg.WebhookSecret) {
		return payments.WebhookEvent{}, payments.ErrSignatureInvalid
	}

	var wp webhookPayload
	if err := json.Unmarshal(body, &wp); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: bad payload", payments.ErrInvalidRequest)
	}
	if wp.Event == "" {
		return payments.WebhookEvent{}, fmt.Errorf("%w: missing event", payments.ErrInvalidRequest)
	}

	eventID := headers.Get(headerEventID)
	if eventID == "" {
		// deterministic fallback so dedupe still works without the header
		sum := sha256.Sum256(body)
		eventID = "evt_" + hex.EncodeToString(sum[:16])
	}

	ev := payments.WebhookEvent{
		EventID:          eventID,
		Type:             wp.Event,
		GatewayOrderID:   wp.Payload.Payment.Entity.OrderID,
		GatewayPaymentID: wp.Payload.Payment.Entity.ID,
		GatewayRefundID:  wp.Payload.Refund.Entity.ID,
		AmountPaise:      wp.Payload.Payment.Entity.Amount,
		Currency:         wp.Payload.Payment.Entity.Currency,
	}
	if ev.GatewayPaymentID == "" {
		ev.GatewayPaymentID = wp.Payload.Refund.Entity.PaymentID
	}
	if ev.AmountPaise == 0 {
		ev.AmountPaise = wp.Payload.Refund.Entity.Amount
	}
	return ev, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", payments.ErrInvalidRequest, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("%w: %v", payments.ErrInvalidRequest, err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// timeout or network failure: the remote side effect may still have
		// happened, callers reconcile via FetchPayment before deciding
		return fmt.Errorf("%w: %v", payments.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", payments.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", payments.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return mapAPIError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode: %v", payments.ErrGatewayUnavailable, err)
		}
	}
	return nil
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func mapAPIError(status int, data []byte) error {
	var ae apiError
	_ = json.Unmarshal(data, &ae)
	desc := strings.ToLower(ae.Error.Description)

	switch {
	case status == http.StatusNotFound:
		return payments.ErrPaymentNotFound
	case strings.Contains(desc, "already captured") || strings.Contains(desc, "already been captured"):
		return payments.ErrAlreadyCaptured
	case strings.Contains(desc, "authorized"):
		return payments.ErrAmountMismatch
	case strings.Contains(desc, "refund") && (strings.Contains(desc, "exceed") || strings.Contains(desc, "greater")):
		return payments.ErrRefundExceedsCaptured
	default:
		if ae.Error.Description != "" {
			return fmt.Errorf("%w: %s", payments.ErrInvalidRequest, ae.Error.Description)
		}
		return fmt.Errorf("%w: status %d", payments.ErrInvalidRequest, status)
	}
}

func toGatewayPayment(ent paymentEntity) payments.GatewayPayment {
	return payments.GatewayPayment{
		ID:          ent.ID,
		OrderID:     ent.OrderID,
		AmountPaise: ent.Amount,
		Currency:    ent.Currency,
		Status:      ent.Status,
		Captured:    ent.Captured,
	}
}
