package causes

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) DonationByID(ctx context.Context, id string) (Donation, error) {
	var d Donation
	err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error
	return d, err
}

func (r *Repo) RequestByID(ctx context.Context, id string) (Request, error) {
	var req Request
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	return req, err
}
