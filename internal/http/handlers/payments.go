package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sahaaya.org/app/internal/http/middleware"
	"sahaaya.org/app/internal/http/validation"
	"sahaaya.org/app/internal/modules/ledger"
	"sahaaya.org/app/internal/modules/payments"
	"sahaaya.org/app/internal/shared/apperr"
)

type PaymentHandler struct {
	Logger *slog.Logger
	Svc    *payments.Service
}

func NewPaymentHandler(logger *slog.Logger, svc *payments.Service) *PaymentHandler {
	return &PaymentHandler{Logger: logger, Svc: svc}
}

type createOrderRequest struct {
	Amount      int64             `json:"amount" binding:"required,gt=0"`
	Currency    string            `json:"currency" binding:"omitempty,len=3"`
	Receipt     string            `json:"receipt" binding:"omitempty,max=64"`
	Notes       map[string]string `json:"notes"`
	PayerID     string            `json:"payer_id" binding:"required"`
	RecipientID string            `json:"recipient_id" binding:"required"`
	DonationID  *string           `json:"donation_id"`
	RequestID   *string           `json:"request_id"`
	Kind        string            `json:"kind" binding:"omitempty,oneof=monetary in_kind"`
	Quantity    int               `json:"quantity" binding:"omitempty,gt=0"`
}

// POST /payments/order
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Svc.CreateOrder(c.Request.Context(), payments.CreateOrderInput{
		PayerID:     req.PayerID,
		RecipientID: req.RecipientID,
		DonationID:  req.DonationID,
		RequestID:   req.RequestID,
		Kind:        req.Kind,
		AmountPaise: req.Amount,
		Quantity:    req.Quantity,
		Currency:    req.Currency,
		Receipt:     req.Receipt,
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"order_id":       res.GatewayOrderID,
		"payment_id":     res.RecordID,
		"amount":         res.AmountPaise,
		"amount_display": displayAmount(res.AmountPaise),
		"currency":       res.Currency,
		"receipt":        res.Receipt,
	})
}

type verifyRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// POST /payments/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Svc.VerifyPayment(c.Request.Context(), payments.VerifyInput{
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		if errors.Is(err, payments.ErrSignatureInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{
				"verified":   false,
				"payment_id": res.RecordID,
				"status":     res.Status,
				"error":      "Payment verification failed.",
			})
			return
		}
		if errors.Is(err, payments.ErrGatewayUnavailable) {
			// signature was valid, capture is pending; tell the payer to
			// check back rather than failing the payment
			c.JSON(http.StatusAccepted, gin.H{
				"verified": true,
				"status":   ledger.StatusVerified,
				"pending":  true,
			})
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verified":   res.Verified,
		"payment_id": res.RecordID,
		"status":     res.Status,
		"idempotent": res.Idempotent,
	})
}

type captureRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// POST /payments/:id/capture
func (h *PaymentHandler) Capture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Svc.CapturePayment(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": res.RecordID, "status": res.Status})
}

type refundRequest struct {
	Amount int64 `json:"amount" binding:"omitempty,gt=0"`
}

// POST /payments/:id/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Svc.RefundPayment(c.Request.Context(), payments.RefundInput{
		RecordID:    c.Param("id"),
		AmountPaise: req.Amount,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_id":      res.RecordID,
		"status":          res.Status,
		"refunded_amount": res.RefundedPaise,
		"refund_display":  displayAmount(res.RefundedPaise),
	})
}

// POST /payments/:id/reconcile
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	res, err := h.Svc.ReconcilePending(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": res.RecordID, "status": res.Status})
}

// GET /payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	rec, err := h.Svc.Record(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_id":         rec.ID,
		"payer_id":           rec.PayerID,
		"recipient_id":       rec.RecipientID,
		"donation_id":        rec.DonationID,
		"request_id":         rec.RequestID,
		"kind":               rec.Kind,
		"amount":             rec.AmountPaise,
		"amount_display":     displayAmount(rec.AmountPaise),
		"quantity":           rec.Quantity,
		"currency":           rec.Currency,
		"gateway_order_id":   rec.GatewayOrderID,
		"gateway_payment_id": rec.GatewayPaymentID,
		"status":             rec.Status,
		"created_at":         rec.CreatedAt,
		"updated_at":         rec.UpdatedAt,
	})
}

func (h *PaymentHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrRecordNotFound):
		middleware.Fail(c, apperr.NotFoundErr("Payment not found."))
	case errors.Is(err, payments.ErrInvalidRequest),
		errors.Is(err, payments.ErrAmountMismatch),
		errors.Is(err, payments.ErrRefundExceedsCaptured):
		middleware.Fail(c, publicFor(err))
	case errors.Is(err, payments.ErrGatewayUnavailable):
		middleware.Fail(c, apperr.UnavailableErr("Payment gateway is unavailable. Please try again.", err))
	case errors.Is(err, ledger.ErrInvalidTransition):
		middleware.Fail(c, apperr.ConflictErr("Payment is not in a state that allows this operation."))
	default:
		middleware.Fail(c, apperr.Wrap(err))
	}
}

func publicFor(err error) *apperr.AppError {
	switch {
	case errors.Is(err, payments.ErrAmountMismatch):
		return apperr.InvalidErr("Capture amount must match the authorized amount.", nil)
	case errors.Is(err, payments.ErrRefundExceedsCaptured):
		return apperr.InvalidErr("Refund amount exceeds the captured amount.", nil)
	default:
		return apperr.InvalidErr("Request is invalid.", nil)
	}
}

func displayAmount(paise int64) string {
	return fmt.Sprintf("%d.%02d", paise/100, paise%100)
}
