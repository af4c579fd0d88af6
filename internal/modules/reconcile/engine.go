package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"sahaaya.org/app/internal/modules/causes"
	"sahaaya.org/app/internal/modules/ledger"
)

var (
	// ErrTargetNotFound: the donation/request a captured payment references
	// is gone. Money has already moved, so this is a retry/audit problem,
	// never a reversal trigger; the record stays captured.
	ErrTargetNotFound = errors.New("reconcile: aggregate target not found")
)

// Engine is the only writer of the donation/request aggregate fields. All
// methods run inside the caller's transaction, on the winning side of the
// ledger's conditional transition, which is what makes each effect apply
// exactly once.
type Engine struct {
	logger *slog.Logger
}

func NewEngine() *Engine { return &Engine{logger: slog.Default()} }

func (e *Engine) SetLogger(l *slog.Logger) { e.logger = l }

// ApplyCapture adds the record's amount (or quantity, for in-kind) to its
// target aggregate and flips the target to completed when it reaches its
// goal. A record referencing neither donation nor request is a
// free-standing transfer and needs no reconciliation.
func (e *Engine) ApplyCapture(ctx context.Context, tx *gorm.DB, rec ledger.PaymentRecord) error {
	switch {
	case rec.DonationID != nil:
		return e.applyDelta(ctx, tx, targetDonation, *rec.DonationID, rec, +1)
	case rec.RequestID != nil:
		return e.applyDelta(ctx, tx, targetRequest, *rec.RequestID, rec, +1)
	default:
		return nil
	}
}

// ApplyRefund subtracts symmetrically. The aggregate is clamped at zero;
// needing the clamp means the aggregate had drifted from the ledger sum,
// which is alerted, not silently fixed.
func (e *Engine) ApplyRefund(ctx context.Context, tx *gorm.DB, rec ledger.PaymentRecord) error {
	switch {
	case rec.DonationID != nil:
		return e.applyDelta(ctx, tx, targetDonation, *rec.DonationID, rec, -1)
	case rec.RequestID != nil:
		return e.applyDelta(ctx, tx, targetRequest, *rec.RequestID, rec, -1)
	default:
		return nil
	}
}

type target int

const (
	targetDonation target = iota
	targetRequest
)

func (t target) model() any {
	if t == targetDonation {
		return &causes.Donation{}
	}
	return &causes.Request{}
}

// column names for the aggregate track the record's kind selects
func columns(rec ledger.PaymentRecord) (aggCol, goalCol string, delta int64) {
	if rec.Kind == ledger.KindInKind {
		return "received_quantity", "required_quantity", int64(rec.Quantity)
	}
	return "raised_amount_paise", "target_amount_paise", rec.AmountPaise
}

func (e *Engine) applyDelta(ctx context.Context, tx *gorm.DB, t target, targetID string, rec ledger.PaymentRecord, sign int64) error {
	aggCol, goalCol, delta := columns(rec)
	now := time.Now()

	if sign >= 0 {
		res := tx.WithContext(ctx).Model(t.model()).
			Where("id = ?", targetID).
			Updates(map[string]any{
				aggCol:       gorm.Expr(aggCol+" + ?", delta),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			e.logger.ErrorContext(ctx, "reconciliation target missing",
				"record_id", rec.ID, "target_id", targetID, "amount_paise", rec.AmountPaise)
			return ErrTargetNotFound
		}

		// goal reached -> completed (goal 0 means open-ended)
		return tx.WithContext(ctx).Model(t.model()).
			Where("id = ? AND status = ? AND "+goalCol+" > 0 AND "+aggCol+" >= "+goalCol, targetID, causes.StatusOpen).
			Updates(map[string]any{"status": causes.StatusCompleted, "updated_at": now}).Error
	}

	// refund: decrement only while it cannot go negative
	res := tx.WithContext(ctx).Model(t.model()).
		Where("id = ? AND "+aggCol+" >= ?", targetID, delta).
		Updates(map[string]any{
			aggCol:       gorm.Expr(aggCol+" - ?", delta),
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var cnt int64
		if err := tx.WithContext(ctx).Model(t.model()).Where("id = ?", targetID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			e.logger.ErrorContext(ctx, "reconciliation target missing",
				"record_id", rec.ID, "target_id", targetID, "amount_paise", rec.AmountPaise)
			return ErrTargetNotFound
		}

		// aggregate drifted below the ledger sum: clamp to zero and alert
		e.logger.ErrorContext(ctx, "reconciliation_inconsistency",
			"record_id", rec.ID, "target_id", targetID, "refund_delta", delta)
		if err := tx.WithContext(ctx).Model(t.model()).
			Where("id = ?", targetID).
			Updates(map[string]any{aggCol: 0, "updated_at": now}).Error; err != nil {
			return err
		}
	}

	// dropping back under the goal reopens the target
	return tx.WithContext(ctx).Model(t.model()).
		Where("id = ? AND status = ? AND "+goalCol+" > 0 AND "+aggCol+" < "+goalCol, targetID, causes.StatusCompleted).
		Updates(map[string]any{"status": causes.StatusOpen, "updated_at": now}).Error
}
