package causes

import "time"

const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
)

// Donation is a monetary fundraising cause. RaisedAmountPaise is written
// only by the reconciliation engine.
type Donation struct {
	ID                string    `gorm:"type:char(36);primaryKey"`
	OwnerUserID       string    `gorm:"type:char(36);not null;index:ix_donations_owner"`
	Title             string    `gorm:"type:varchar(255);not null"`
	TargetAmountPaise int64     `gorm:"not null"`
	RaisedAmountPaise int64     `gorm:"not null;default:0"`
	Currency          string    `gorm:"type:char(3);not null"`
	Status            string    `gorm:"type:varchar(32);not null"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (Donation) TableName() string { return "donations" }

// Request is a help request. Monetary and in-kind contributions are
// independent tracks: raised_amount_paise counts money, received_quantity
// counts pledged items.
type Request struct {
	ID                string    `gorm:"type:char(36);primaryKey"`
	OwnerUserID       string    `gorm:"type:char(36);not null;index:ix_requests_owner"`
	Title             string    `gorm:"type:varchar(255);not null"`
	TargetAmountPaise int64     `gorm:"not null"`
	RaisedAmountPaise int64     `gorm:"not null;default:0"`
	RequiredQuantity  int       `gorm:"not null;default:0"`
	ReceivedQuantity  int       `gorm:"not null;default:0"`
	Currency          string    `gorm:"type:char(3);not null"`
	Status            string    `gorm:"type:varchar(32);not null"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (Request) TableName() string { return "requests" }
