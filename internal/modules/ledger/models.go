package ledger

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusCreated  = "created"
	StatusVerified = "verified"
	StatusCaptured = "captured"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
)

const (
	KindMonetary = "monetary"
	KindInKind   = "in_kind"
)

// PaymentRecord is the ledger entry for one payment attempt. Exactly one
// row exists per gateway order id. Rows are never deleted; refunds are a
// terminal state, not a new row.
type PaymentRecord struct {
	ID          string  `gorm:"type:char(36);primaryKey"`
	PayerID     string  `gorm:"type:char(36);not null;index:ix_payment_records_payer"`
	RecipientID string  `gorm:"type:char(36);not null;index:ix_payment_records_recipient"`
	DonationID  *string `gorm:"type:char(36);index:ix_payment_records_donation"`
	RequestID   *string `gorm:"type:char(36);index:ix_payment_records_request"`

	Kind        string `gorm:"type:varchar(16);not null"`
	AmountPaise int64  `gorm:"not null"`
	Quantity    int    `gorm:"not null;default:0"`
	Currency    string `gorm:"type:char(3);not null"`
	Receipt     string `gorm:"type:varchar(64);not null;index:ix_payment_records_receipt"`

	GatewayOrderID   string  `gorm:"type:varchar(128);not null;uniqueIndex:ux_payment_records_gateway_order"`
	GatewayPaymentID *string `gorm:"type:varchar(128)"`
	GatewayRefundID  *string `gorm:"type:varchar(128)"`

	Notes        datatypes.JSON `gorm:"type:json"`
	Status       string         `gorm:"type:varchar(32);not null"`
	ErrorMessage *string        `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

// Terminal reports whether no further transition may leave this status.
func Terminal(status string) bool {
	return status == StatusFailed || status == StatusRefunded
}
