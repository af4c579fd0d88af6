package payments

import "errors"

// Gateway error taxonomy. Adapters translate provider responses into these
// so the services never branch on raw HTTP statuses.
var (
	ErrInvalidRequest        = errors.New("gateway: invalid request")
	ErrGatewayUnavailable    = errors.New("gateway: unavailable")
	ErrAlreadyCaptured       = errors.New("gateway: payment already captured")
	ErrAmountMismatch        = errors.New("gateway: capture amount differs from authorized amount")
	ErrRefundExceedsCaptured = errors.New("gateway: refund amount exceeds captured amount")
	ErrPaymentNotFound       = errors.New("gateway: payment not found")

	ErrSignatureInvalid = errors.New("payment signature invalid")
	ErrRecordNotFound   = errors.New("payment record not found")
)
