package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// CreatePending inserts rec with status created. If a record for the same
// gateway order id already exists (retried client request), rec is
// replaced with the existing row and existed=true is returned; callers
// treat that as success-with-existing-record.
func (s *Store) CreatePending(ctx context.Context, rec *PaymentRecord) (existed bool, err error) {
	if rec.GatewayOrderID == "" || rec.PayerID == "" || rec.RecipientID == "" {
		return false, ErrBadRecord
	}
	if rec.DonationID != nil && rec.RequestID != nil {
		return false, fmt.Errorf("%w: references both donation and request", ErrBadRecord)
	}
	if rec.Kind == "" {
		rec.Kind = KindMonetary
	}
	if rec.Kind == KindMonetary && rec.AmountPaise <= 0 {
		return false, fmt.Errorf("%w: non-positive amount", ErrBadRecord)
	}
	if rec.Kind == KindInKind && rec.Quantity <= 0 {
		return false, fmt.Errorf("%w: non-positive quantity", ErrBadRecord)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now()
	rec.Status = StatusCreated
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if !isDup(err) {
			return false, err
		}
		existing, lerr := s.ByGatewayOrderID(ctx, rec.GatewayOrderID)
		if lerr != nil {
			return false, lerr
		}
		*rec = existing
		return true, nil
	}
	return false, nil
}

func (s *Store) ByID(ctx context.Context, id string) (PaymentRecord, error) {
	var rec PaymentRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	return rec, err
}

func (s *Store) ByGatewayOrderID(ctx context.Context, gatewayOrderID string) (PaymentRecord, error) {
	var rec PaymentRecord
	err := s.db.WithContext(ctx).First(&rec, "gateway_order_id = ?", gatewayOrderID).Error
	return rec, err
}

func (s *Store) ByReceipt(ctx context.Context, receipt string) (PaymentRecord, error) {
	var rec PaymentRecord
	err := s.db.WithContext(ctx).First(&rec, "receipt = ?", receipt).Error
	return rec, err
}

// MarkVerified moves created -> verified and records the gateway payment
// id reported by the verified callback.
func (s *Store) MarkVerified(ctx context.Context, tx *gorm.DB, id, gatewayPaymentID string) error {
	return s.transition(ctx, tx, id, []string{StatusCreated}, StatusVerified, map[string]any{
		"gateway_payment_id": gatewayPaymentID,
	})
}

// MarkCaptured moves verified -> captured.
func (s *Store) MarkCaptured(ctx context.Context, tx *gorm.DB, id string) error {
	return s.transition(ctx, tx, id, []string{StatusVerified}, StatusCaptured, nil)
}

// MarkFailed moves any live pre-capture state (created, verified) to
// failed. Captured money is never failed; it is refunded.
func (s *Store) MarkFailed(ctx context.Context, tx *gorm.DB, id, reason string) error {
	return s.transition(ctx, tx, id, []string{StatusCreated, StatusVerified}, StatusFailed, map[string]any{
		"error_message": truncate(reason, 250),
	})
}

// MarkRefunded moves captured -> refunded.
func (s *Store) MarkRefunded(ctx context.Context, tx *gorm.DB, id, gatewayRefundID string) error {
	return s.transition(ctx, tx, id, []string{StatusCaptured}, StatusRefunded, map[string]any{
		"gateway_refund_id": gatewayRefundID,
	})
}

// transition is the concurrency primitive of the ledger: a single
// conditional UPDATE on the current status. A stale transition loses the
// race and is rejected, never silently overwritten, so two concurrent
// webhook deliveries cannot both apply their effect. Valid across service
// instances because the compare-and-swap runs in the database.
func (s *Store) transition(ctx context.Context, tx *gorm.DB, id string, from []string, to string, extra map[string]any) error {
	if tx == nil {
		tx = s.db
	}

	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.WithContext(ctx).Model(&PaymentRecord{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var cur PaymentRecord
	if err := tx.WithContext(ctx).First(&cur, "id = ?", id).Error; err != nil {
		return err
	}
	if cur.Status == to {
		return ErrAlreadyApplied
	}
	return fmt.Errorf("%w: %v -> %s (current %s)", ErrInvalidTransition, from, to, cur.Status)
}

func isDup(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
