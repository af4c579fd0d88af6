package notifications

import (
	"time"

	"gorm.io/datatypes"
)

const (
	KindPaymentReceived = "payment_received"
	KindPaymentSent     = "payment_sent"
	KindPaymentFailed   = "payment_failed"
	KindRefundProcessed = "refund_processed"
)

type Notification struct {
	ID        string         `gorm:"type:char(36);primaryKey"`
	UserID    string         `gorm:"type:char(36);not null;index:ix_notifications_user"`
	Kind      string         `gorm:"type:varchar(32);not null"`
	Context   datatypes.JSON `gorm:"type:json"`
	ReadAt    *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }
