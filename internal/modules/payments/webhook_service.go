package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sahaaya.org/app/internal/modules/ledger"
	"sahaaya.org/app/internal/modules/notifications"
	"sahaaya.org/app/internal/modules/reconcile"
	"sahaaya.org/app/internal/storage"
)

// ProviderEvent is the webhook dedupe table: unique(provider, event_id)
// makes a redelivered event a no-op insert.
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time `gorm:"not null"`
	ProcessedAt  *time.Time
	ProcessError *string `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

type WebhookService struct {
	db      *gorm.DB
	store   *ledger.Store
	engine  *reconcile.Engine
	emitter *notifications.Emitter
	archive storage.Storage // nil disables payload archiving
	logger  *slog.Logger
}

func NewWebhookService(db *gorm.DB, store *ledger.Store, engine *reconcile.Engine, emitter *notifications.Emitter) *WebhookService {
	return &WebhookService{db: db, store: store, engine: engine, emitter: emitter, logger: slog.Default()}
}

func (s *WebhookService) SetLogger(l *slog.Logger) { s.logger = l }

func (s *WebhookService) SetArchive(a storage.Storage) { s.archive = a }

// notifyIntent defers a notification until the owning transaction has
// committed; the emitter must never run ahead of the ledger.
type notifyIntent struct {
	userID string
	kind   string
	rec    ledger.PaymentRecord
}

// Handle persists, dedupes and applies one gateway webhook event. A
// duplicate delivery returns nil (the caller answers 200) without a second
// application. An apply failure propagates so the gateway retries.
func (s *WebhookService) Handle(ctx context.Context, providerName string, ev WebhookEvent, rawBody []byte) error {
	var intents []notifyIntent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		intents = intents[:0] // tx retry must not double the side channel

		pe := ProviderEvent{
			ID:          uuid.NewString(),
			Provider:    providerName,
			EventID:     ev.EventID,
			EventType:   ev.Type,
			PayloadJSON: datatypes.JSON(rawBody),
			ReceivedAt:  now,
		}

		if err := tx.WithContext(ctx).Create(&pe).Error; err != nil {
			if isDupKey(err) {
				s.logger.InfoContext(ctx, "webhook event deduplicated",
					"provider", providerName, "event_id", ev.EventID, "type", ev.Type)
				return nil
			}
			return err
		}

		var applyErr error
		switch ev.Type {
		case "payment.captured":
			intents, applyErr = s.applyPaymentCaptured(ctx, tx, ev)
		case "payment.failed":
			intents, applyErr = s.applyPaymentFailed(ctx, tx, ev)
		case "refund.processed":
			intents, applyErr = s.applyRefundProcessed(ctx, tx, ev)
		default:
			applyErr = fmt.Errorf("unknown webhook event type %q", ev.Type)
		}

		if applyErr != nil {
			msg := truncate(applyErr.Error(), 250)
			if err := tx.WithContext(ctx).Model(&ProviderEvent{}).
				Where("id = ?", pe.ID).
				Updates(map[string]any{"process_error": msg}).Error; err != nil {
				return err
			}
			s.logger.ErrorContext(ctx, "webhook event apply failed",
				"provider", providerName, "event_id", ev.EventID, "type", ev.Type, "error", msg)
			return applyErr
		}

		processed := now
		return tx.WithContext(ctx).Model(&ProviderEvent{}).
			Where("id = ?", pe.ID).
			Updates(map[string]any{"processed_at": &processed, "process_error": nil}).Error
	})
	if err != nil {
		return err
	}

	// post-commit side channels, all best-effort
	for _, in := range intents {
		s.emitter.Notify(ctx, in.userID, in.kind, map[string]any{
			"record_id":    in.rec.ID,
			"amount_paise": in.rec.AmountPaise,
			"currency":     in.rec.Currency,
		})
	}
	s.archivePayload(ctx, providerName, ev.EventID, rawBody)

	return nil
}

// applyPaymentCaptured walks the record forward to captured. The webhook
// body was authenticated by the provider adapter, so it carries the same
// authority as a client verify callback.
func (s *WebhookService) applyPaymentCaptured(ctx context.Context, tx *gorm.DB, ev WebhookEvent) ([]notifyIntent, error) {
	rec, err := s.recordFor(ctx, tx, ev)
	if err != nil {
		return nil, err
	}

	if rec.Status == ledger.StatusCreated {
		if err := s.store.MarkVerified(ctx, tx, rec.ID, ev.GatewayPaymentID); err != nil && !errors.Is(err, ledger.ErrAlreadyApplied) {
			return nil, err
		}
	}

	if err := s.store.MarkCaptured(ctx, tx, rec.ID); err != nil {
		if errors.Is(err, ledger.ErrAlreadyApplied) {
			return nil, nil
		}
		return nil, err
	}

	var fresh ledger.PaymentRecord
	if err := tx.WithContext(ctx).First(&fresh, "id = ?", rec.ID).Error; err != nil {
		return nil, err
	}
	if err := s.engine.ApplyCapture(ctx, tx, fresh); err != nil {
		if !errors.Is(err, reconcile.ErrTargetNotFound) {
			return nil, err
		}
		// money already moved; record stays captured, aggregate is a
		// retry/audit problem
		s.logger.ErrorContext(ctx, "capture reconciliation deferred", "record_id", fresh.ID, "err", err)
	}

	return []notifyIntent{
		{userID: fresh.PayerID, kind: notifications.KindPaymentSent, rec: fresh},
		{userID: fresh.RecipientID, kind: notifications.KindPaymentReceived, rec: fresh},
	}, nil
}

func (s *WebhookService) applyPaymentFailed(ctx context.Context, tx *gorm.DB, ev WebhookEvent) ([]notifyIntent, error) {
	rec, err := s.recordFor(ctx, tx, ev)
	if err != nil {
		return nil, err
	}

	err = s.store.MarkFailed(ctx, tx, rec.ID, "gateway webhook: payment failed")
	switch {
	case err == nil:
		return []notifyIntent{{userID: rec.PayerID, kind: notifications.KindPaymentFailed, rec: rec}}, nil
	case errors.Is(err, ledger.ErrAlreadyApplied):
		return nil, nil
	case errors.Is(err, ledger.ErrInvalidTransition):
		// captured money cannot fail retroactively; keep the ledger and flag it
		s.logger.WarnContext(ctx, "failed webhook for settled payment ignored",
			"record_id", rec.ID, "status", rec.Status)
		return nil, nil
	default:
		return nil, err
	}
}

func (s *WebhookService) applyRefundProcessed(ctx context.Context, tx *gorm.DB, ev WebhookEvent) ([]notifyIntent, error) {
	rec, err := s.recordFor(ctx, tx, ev)
	if err != nil {
		return nil, err
	}

	err = s.store.MarkRefunded(ctx, tx, rec.ID, ev.GatewayRefundID)
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyApplied) {
			return nil, nil
		}
		return nil, err
	}

	effect := rec
	if ev.AmountPaise > 0 && ev.AmountPaise < effect.AmountPaise {
		effect.AmountPaise = ev.AmountPaise
	}
	if err := s.engine.ApplyRefund(ctx, tx, effect); err != nil {
		return nil, err
	}

	return []notifyIntent{{userID: rec.PayerID, kind: notifications.KindRefundProcessed, rec: effect}}, nil
}

// recordFor resolves the ledger record a webhook event refers to, by
// gateway order id first, then by payment id. Not found propagates so the
// gateway retries later (the record insert may still be in flight).
func (s *WebhookService) recordFor(ctx context.Context, tx *gorm.DB, ev WebhookEvent) (ledger.PaymentRecord, error) {
	var rec ledger.PaymentRecord
	if ev.GatewayOrderID != "" {
		if err := tx.WithContext(ctx).First(&rec, "gateway_order_id = ?", ev.GatewayOrderID).Error; err == nil {
			return rec, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return rec, err
		}
	}
	if ev.GatewayPaymentID == "" {
		return rec, fmt.Errorf("webhook event carries no usable reference")
	}
	err := tx.WithContext(ctx).First(&rec, "gateway_payment_id = ?", ev.GatewayPaymentID).Error
	return rec, err
}

func (s *WebhookService) archivePayload(ctx context.Context, providerName, eventID string, body []byte) {
	if s.archive == nil || len(body) == 0 {
		return
	}
	key := providerName + "/" + eventID + ".json"
	if _, err := s.archive.Put(ctx, bytes.NewReader(body), storage.PutInput{
		Key:         key,
		ContentType: "application/json",
	}); err != nil {
		s.logger.WarnContext(ctx, "webhook payload archive failed", "key", key, "err", err)
	}
}

func isDupKey(err error) bool {
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
