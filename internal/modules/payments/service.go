package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sahaaya.org/app/internal/modules/causes"
	"sahaaya.org/app/internal/modules/ledger"
	"sahaaya.org/app/internal/modules/notifications"
	"sahaaya.org/app/internal/modules/reconcile"
)

type Service struct {
	db       *gorm.DB
	provider Provider
	store    *ledger.Store
	causes   *causes.Repo
	engine   *reconcile.Engine
	emitter  *notifications.Emitter
	logger   *slog.Logger

	defaultCurrency string
}

func NewService(db *gorm.DB, p Provider, store *ledger.Store, engine *reconcile.Engine, emitter *notifications.Emitter, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}
	return &Service{
		db:              db,
		provider:        p,
		store:           store,
		causes:          causes.NewRepo(db),
		engine:          engine,
		emitter:         emitter,
		logger:          slog.Default(),
		defaultCurrency: defaultCurrency,
	}
}

func (s *Service) SetLogger(l *slog.Logger) { s.logger = l }

type CreateOrderInput struct {
	PayerID     string
	RecipientID string
	DonationID  *string
	RequestID   *string
	Kind        string // monetary (default) | in_kind
	AmountPaise int64
	Quantity    int
	Currency    string
	Receipt     string // optional; generated fresh when absent
	Notes       map[string]string
}

type CreateOrderResult struct {
	RecordID       string
	GatewayOrderID string
	AmountPaise    int64
	Currency       string
	Receipt        string
	Idempotent     bool
}

// CreateOrder creates a gateway order and the matching pending ledger
// record. A retried request carrying the same receipt returns the record
// created the first time instead of a duplicate remote order.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if in.AmountPaise <= 0 {
		return CreateOrderResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if in.DonationID != nil && in.RequestID != nil {
		return CreateOrderResult{}, fmt.Errorf("%w: donation and request are mutually exclusive", ErrInvalidRequest)
	}
	if in.Currency == "" {
		in.Currency = s.defaultCurrency
	}

	// the target must exist before any money is asked for
	switch {
	case in.DonationID != nil:
		if _, err := s.causes.DonationByID(ctx, *in.DonationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return CreateOrderResult{}, fmt.Errorf("%w: donation not found", ErrInvalidRequest)
			}
			return CreateOrderResult{}, err
		}
	case in.RequestID != nil:
		if _, err := s.causes.RequestByID(ctx, *in.RequestID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return CreateOrderResult{}, fmt.Errorf("%w: request not found", ErrInvalidRequest)
			}
			return CreateOrderResult{}, err
		}
	}

	// Phase-1: receipt idempotency. A caller-supplied receipt that already
	// has a record means a retried request; don't create a second remote
	// order for it.
	if in.Receipt != "" {
		if existing, err := s.store.ByReceipt(ctx, in.Receipt); err == nil {
			return CreateOrderResult{
				RecordID:       existing.ID,
				GatewayOrderID: existing.GatewayOrderID,
				AmountPaise:    existing.AmountPaise,
				Currency:       existing.Currency,
				Receipt:        existing.Receipt,
				Idempotent:     true,
			}, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return CreateOrderResult{}, err
		}
	} else {
		in.Receipt = "rcpt_" + uuid.NewString()
	}

	// Phase-2: remote order (outside any tx)
	order, err := s.provider.CreateOrder(ctx, CreateOrderRequest{
		AmountPaise: in.AmountPaise,
		Currency:    in.Currency,
		Receipt:     in.Receipt,
		Notes:       in.Notes,
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	// Phase-3: pending ledger record
	rec := ledger.PaymentRecord{
		PayerID:        in.PayerID,
		RecipientID:    in.RecipientID,
		DonationID:     in.DonationID,
		RequestID:      in.RequestID,
		Kind:           in.Kind,
		AmountPaise:    in.AmountPaise,
		Quantity:       in.Quantity,
		Currency:       in.Currency,
		Receipt:        in.Receipt,
		GatewayOrderID: order.GatewayOrderID,
	}
	existed, err := s.store.CreatePending(ctx, &rec)
	if err != nil {
		return CreateOrderResult{}, err
	}

	return CreateOrderResult{
		RecordID:       rec.ID,
		GatewayOrderID: rec.GatewayOrderID,
		AmountPaise:    rec.AmountPaise,
		Currency:       rec.Currency,
		Receipt:        rec.Receipt,
		Idempotent:     existed,
	}, nil
}

type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type VerifyResult struct {
	RecordID   string
	Status     string
	Verified   bool
	Idempotent bool
}

// VerifyPayment authenticates a client-reported completion and, on
// success, captures the funds and reconciles the target aggregate. The
// signature is the sole authority: no HTTP success or client claim can
// mark a record verified.
func (s *Service) VerifyPayment(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" {
		return VerifyResult{}, fmt.Errorf("%w: missing order or payment id", ErrInvalidRequest)
	}

	rec, err := s.store.ByGatewayOrderID(ctx, in.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return VerifyResult{}, ErrRecordNotFound
		}
		return VerifyResult{}, err
	}

	// duplicate webhook/callback: already past created, nothing to redo
	if rec.Status != ledger.StatusCreated {
		return VerifyResult{
			RecordID:   rec.ID,
			Status:     rec.Status,
			Verified:   rec.Status != ledger.StatusFailed,
			Idempotent: true,
		}, nil
	}

	if !s.provider.VerifySignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature) {
		// security event: a forged or corrupted completion report
		s.logger.WarnContext(ctx, "payment signature rejected",
			"record_id", rec.ID, "payer_id", rec.PayerID, "gateway_order_id", in.GatewayOrderID)
		if err := s.store.MarkFailed(ctx, nil, rec.ID, "signature verification failed"); err != nil && !errors.Is(err, ledger.ErrAlreadyApplied) {
			return VerifyResult{}, err
		}
		return VerifyResult{RecordID: rec.ID, Status: ledger.StatusFailed}, ErrSignatureInvalid
	}

	if err := s.store.MarkVerified(ctx, nil, rec.ID, in.GatewayPaymentID); err != nil {
		if errors.Is(err, ledger.ErrAlreadyApplied) || errors.Is(err, ledger.ErrInvalidTransition) {
			// lost the race to a concurrent delivery; report current state
			cur, lerr := s.store.ByID(ctx, rec.ID)
			if lerr != nil {
				return VerifyResult{}, lerr
			}
			return VerifyResult{
				RecordID:   cur.ID,
				Status:     cur.Status,
				Verified:   cur.Status != ledger.StatusFailed,
				Idempotent: true,
			}, nil
		}
		return VerifyResult{}, err
	}
	rec.Status = ledger.StatusVerified
	rec.GatewayPaymentID = &in.GatewayPaymentID

	status, err := s.captureAndReconcile(ctx, rec)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{RecordID: rec.ID, Status: status, Verified: true}, nil
}

type CaptureResult struct {
	RecordID string
	Status   string
}

// CapturePayment is the explicit capture endpoint for records stuck in
// verified (e.g. when the capture leg of VerifyPayment hit a gateway
// outage).
func (s *Service) CapturePayment(ctx context.Context, recordID string, amountPaise int64) (CaptureResult, error) {
	rec, err := s.store.ByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CaptureResult{}, ErrRecordNotFound
		}
		return CaptureResult{}, err
	}

	if rec.Status == ledger.StatusCaptured {
		return CaptureResult{RecordID: rec.ID, Status: rec.Status}, nil
	}
	if rec.Status != ledger.StatusVerified {
		return CaptureResult{}, fmt.Errorf("%w: cannot capture from %s", ledger.ErrInvalidTransition, rec.Status)
	}
	if amountPaise != 0 && amountPaise != rec.AmountPaise {
		return CaptureResult{}, ErrAmountMismatch
	}

	status, err := s.captureAndReconcile(ctx, rec)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{RecordID: rec.ID, Status: status}, nil
}

// captureAndReconcile runs the capture leg: gateway capture, then the
// captured transition and the aggregate effect in one transaction, then
// best-effort notifications. rec must be verified.
func (s *Service) captureAndReconcile(ctx context.Context, rec ledger.PaymentRecord) (string, error) {
	if rec.GatewayPaymentID == nil {
		return "", fmt.Errorf("%w: verified record without gateway payment id", ledger.ErrBadRecord)
	}

	_, err := s.provider.CapturePayment(ctx, *rec.GatewayPaymentID, rec.AmountPaise, rec.Currency)
	switch {
	case err == nil, errors.Is(err, ErrAlreadyCaptured):
		// already captured at the gateway is success for us
	case errors.Is(err, ErrGatewayUnavailable):
		// ambiguous: the remote capture may have happened. Leave the record
		// verified; ReconcilePending settles it via FetchPayment.
		return ledger.StatusVerified, err
	default:
		if ferr := s.store.MarkFailed(ctx, nil, rec.ID, err.Error()); ferr != nil && !errors.Is(ferr, ledger.ErrAlreadyApplied) {
			return "", ferr
		}
		return ledger.StatusFailed, err
	}

	if err := s.settleCaptured(ctx, rec.ID); err != nil {
		return "", err
	}

	s.notifyCaptured(ctx, rec)
	return ledger.StatusCaptured, nil
}

// settleCaptured flips verified -> captured and applies the aggregate
// effect atomically. Winning the conditional transition is what entitles
// this call to reconcile; a duplicate delivery loses the CAS and skips the
// effect.
func (s *Service) settleCaptured(ctx context.Context, recordID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.MarkCaptured(ctx, tx, recordID); err != nil {
			if errors.Is(err, ledger.ErrAlreadyApplied) {
				return nil
			}
			return err
		}
		var rec ledger.PaymentRecord
		if err := tx.WithContext(ctx).First(&rec, "id = ?", recordID).Error; err != nil {
			return err
		}
		if err := s.engine.ApplyCapture(ctx, tx, rec); err != nil {
			if errors.Is(err, reconcile.ErrTargetNotFound) {
				// money already moved; keep the record captured and leave
				// the aggregate to a retry or manual audit
				s.logger.ErrorContext(ctx, "capture reconciliation deferred",
					"record_id", rec.ID, "err", err)
				return nil
			}
			return err
		}
		return nil
	})
}

type RefundInput struct {
	RecordID    string
	AmountPaise int64 // 0 => full refund
}

type RefundResult struct {
	RecordID      string
	Status        string
	RefundedPaise int64
}

// RefundPayment refunds a captured payment at the gateway and applies the
// symmetric aggregate effect. Partial refunds are allowed; the record
// still terminates in refunded.
func (s *Service) RefundPayment(ctx context.Context, in RefundInput) (RefundResult, error) {
	rec, err := s.store.ByID(ctx, in.RecordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RefundResult{}, ErrRecordNotFound
		}
		return RefundResult{}, err
	}

	if rec.Status == ledger.StatusRefunded {
		return RefundResult{RecordID: rec.ID, Status: rec.Status}, nil
	}
	if rec.Status != ledger.StatusCaptured {
		return RefundResult{}, fmt.Errorf("%w: cannot refund from %s", ledger.ErrInvalidTransition, rec.Status)
	}
	if rec.GatewayPaymentID == nil {
		return RefundResult{}, fmt.Errorf("%w: captured record without gateway payment id", ledger.ErrBadRecord)
	}

	amount := in.AmountPaise
	if amount == 0 {
		amount = rec.AmountPaise
	}
	if amount < 0 || amount > rec.AmountPaise {
		return RefundResult{}, ErrRefundExceedsCaptured
	}

	refund, err := s.provider.RefundPayment(ctx, *rec.GatewayPaymentID, amount)
	if err != nil {
		return RefundResult{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.MarkRefunded(ctx, tx, rec.ID, refund.ID); err != nil {
			if errors.Is(err, ledger.ErrAlreadyApplied) {
				return nil
			}
			return err
		}
		effect := rec
		effect.AmountPaise = amount
		return s.engine.ApplyRefund(ctx, tx, effect)
	})
	if err != nil {
		return RefundResult{}, err
	}

	s.emitter.Notify(ctx, rec.PayerID, notifications.KindRefundProcessed, map[string]any{
		"record_id":    rec.ID,
		"amount_paise": amount,
		"currency":     rec.Currency,
	})

	return RefundResult{RecordID: rec.ID, Status: ledger.StatusRefunded, RefundedPaise: amount}, nil
}

// ReconcilePending settles a record left in an ambiguous state by a
// gateway timeout or client disconnect: the remote side effect may have
// happened despite the local failure, so the gateway is asked before the
// payment is declared dead.
func (s *Service) ReconcilePending(ctx context.Context, recordID string) (CaptureResult, error) {
	rec, err := s.store.ByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CaptureResult{}, ErrRecordNotFound
		}
		return CaptureResult{}, err
	}

	if ledger.Terminal(rec.Status) || rec.Status == ledger.StatusCaptured {
		return CaptureResult{RecordID: rec.ID, Status: rec.Status}, nil
	}
	if rec.GatewayPaymentID == nil {
		// no payment was ever reported for the order; nothing to settle
		return CaptureResult{RecordID: rec.ID, Status: rec.Status}, nil
	}

	gp, err := s.provider.FetchPayment(ctx, *rec.GatewayPaymentID)
	if err != nil {
		return CaptureResult{}, err
	}

	switch {
	case gp.Captured || gp.Status == "captured":
		if err := s.settleCaptured(ctx, rec.ID); err != nil {
			return CaptureResult{}, err
		}
		s.notifyCaptured(ctx, rec)
		return CaptureResult{RecordID: rec.ID, Status: ledger.StatusCaptured}, nil
	case gp.Status == "failed":
		if err := s.store.MarkFailed(ctx, nil, rec.ID, "gateway reports payment failed"); err != nil && !errors.Is(err, ledger.ErrAlreadyApplied) {
			return CaptureResult{}, err
		}
		return CaptureResult{RecordID: rec.ID, Status: ledger.StatusFailed}, nil
	default:
		// still in flight at the gateway; leave the record as is
		return CaptureResult{RecordID: rec.ID, Status: rec.Status}, nil
	}
}

// Record exposes a single ledger entry for operational visibility.
func (s *Service) Record(ctx context.Context, recordID string) (ledger.PaymentRecord, error) {
	rec, err := s.store.ByID(ctx, recordID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrRecordNotFound
	}
	return rec, err
}

func (s *Service) notifyCaptured(ctx context.Context, rec ledger.PaymentRecord) {
	kv := map[string]any{
		"record_id":    rec.ID,
		"amount_paise": rec.AmountPaise,
		"currency":     rec.Currency,
	}
	s.emitter.Notify(ctx, rec.PayerID, notifications.KindPaymentSent, kv)
	s.emitter.Notify(ctx, rec.RecipientID, notifications.KindPaymentReceived, kv)
}
