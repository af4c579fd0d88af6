package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&PaymentRecord{}))
	return db
}

func pending(t *testing.T, s *Store, orderID string) PaymentRecord {
	t.Helper()
	rec := PaymentRecord{
		PayerID:        "payer-1",
		RecipientID:    "recipient-1",
		AmountPaise:    50000,
		Currency:       "INR",
		Receipt:        "rcpt-" + orderID,
		GatewayOrderID: orderID,
	}
	existed, err := s.CreatePending(context.Background(), &rec)
	require.NoError(t, err)
	require.False(t, existed)
	return rec
}

func TestCreatePending(t *testing.T) {
	s := NewStore(testDB(t))
	rec := pending(t, s, "order_1")

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusCreated, rec.Status)
	assert.Equal(t, KindMonetary, rec.Kind)
}

func TestCreatePending_DuplicateOrderReturnsExisting(t *testing.T) {
	s := NewStore(testDB(t))
	first := pending(t, s, "order_1")

	dup := PaymentRecord{
		PayerID:        "payer-2",
		RecipientID:    "recipient-2",
		AmountPaise:    50000,
		Currency:       "INR",
		Receipt:        "rcpt-retry",
		GatewayOrderID: "order_1",
	}
	existed, err := s.CreatePending(context.Background(), &dup)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, dup.ID, "retried request must get the original record")

	var cnt int64
	require.NoError(t, s.db.Model(&PaymentRecord{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestCreatePending_Validation(t *testing.T) {
	s := NewStore(testDB(t))
	ctx := context.Background()

	d, r := "don-1", "req-1"
	_, err := s.CreatePending(ctx, &PaymentRecord{
		PayerID: "p", RecipientID: "r", AmountPaise: 100, Currency: "INR",
		GatewayOrderID: "order_x", DonationID: &d, RequestID: &r,
	})
	assert.ErrorIs(t, err, ErrBadRecord)

	_, err = s.CreatePending(ctx, &PaymentRecord{
		PayerID: "p", RecipientID: "r", AmountPaise: 0, Currency: "INR", GatewayOrderID: "order_y",
	})
	assert.ErrorIs(t, err, ErrBadRecord)

	_, err = s.CreatePending(ctx, &PaymentRecord{
		PayerID: "p", RecipientID: "r", Kind: KindInKind, Quantity: 0, Currency: "INR", GatewayOrderID: "order_z",
	})
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestTransitions_HappyPath(t *testing.T) {
	s := NewStore(testDB(t))
	ctx := context.Background()
	rec := pending(t, s, "order_1")

	require.NoError(t, s.MarkVerified(ctx, nil, rec.ID, "pay_1"))
	cur, err := s.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, cur.Status)
	require.NotNil(t, cur.GatewayPaymentID)
	assert.Equal(t, "pay_1", *cur.GatewayPaymentID)

	require.NoError(t, s.MarkCaptured(ctx, nil, rec.ID))
	require.NoError(t, s.MarkRefunded(ctx, nil, rec.ID, "rfnd_1"))

	cur, err = s.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, cur.Status)
	require.NotNil(t, cur.GatewayRefundID)
	assert.Equal(t, "rfnd_1", *cur.GatewayRefundID)
}

func TestTransitions_Matrix(t *testing.T) {
	ctx := context.Background()

	// every transition not drawn in the state machine must be rejected
	// and leave the row untouched
	cases := []struct {
		name    string
		prepare func(s *Store, id string)
		attempt func(s *Store, id string) error
		wantErr error
	}{
		{
			name:    "capture from created",
			prepare: func(s *Store, id string) {},
			attempt: func(s *Store, id string) error { return s.MarkCaptured(ctx, nil, id) },
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "refund from created",
			prepare: func(s *Store, id string) {},
			attempt: func(s *Store, id string) error { return s.MarkRefunded(ctx, nil, id, "rfnd") },
			wantErr: ErrInvalidTransition,
		},
		{
			name: "refund from verified",
			prepare: func(s *Store, id string) {
				require.NoError(t, s.MarkVerified(ctx, nil, id, "pay_1"))
			},
			attempt: func(s *Store, id string) error { return s.MarkRefunded(ctx, nil, id, "rfnd") },
			wantErr: ErrInvalidTransition,
		},
		{
			name: "verify replay",
			prepare: func(s *Store, id string) {
				require.NoError(t, s.MarkVerified(ctx, nil, id, "pay_1"))
			},
			attempt: func(s *Store, id string) error { return s.MarkVerified(ctx, nil, id, "pay_1") },
			wantErr: ErrAlreadyApplied,
		},
		{
			name: "capture replay",
			prepare: func(s *Store, id string) {
				require.NoError(t, s.MarkVerified(ctx, nil, id, "pay_1"))
				require.NoError(t, s.MarkCaptured(ctx, nil, id))
			},
			attempt: func(s *Store, id string) error { return s.MarkCaptured(ctx, nil, id) },
			wantErr: ErrAlreadyApplied,
		},
		{
			name: "no resurrection from failed",
			prepare: func(s *Store, id string) {
				require.NoError(t, s.MarkFailed(ctx, nil, id, "boom"))
			},
			attempt: func(s *Store, id string) error { return s.MarkVerified(ctx, nil, id, "pay_1") },
			wantErr: ErrInvalidTransition,
		},
		{
			name: "captured cannot fail",
			prepare: func(s *Store, id string) {
				require.NoError(t, s.MarkVerified(ctx, nil, id, "pay_1"))
				require.NoError(t, s.MarkCaptured(ctx, nil, id))
			},
			attempt: func(s *Store, id string) error { return s.MarkFailed(ctx, nil, id, "late failure") },
			wantErr: ErrInvalidTransition,
		},
		{
			name: "refunded is terminal",
			prepare: func(s *Store, id string) {
				require.NoError(t, s.MarkVerified(ctx, nil, id, "pay_1"))
				require.NoError(t, s.MarkCaptured(ctx, nil, id))
				require.NoError(t, s.MarkRefunded(ctx, nil, id, "rfnd_1"))
			},
			attempt: func(s *Store, id string) error { return s.MarkCaptured(ctx, nil, id) },
			wantErr: ErrInvalidTransition,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(testDB(t))
			rec := pending(t, s, "order_1")
			tc.prepare(s, rec.ID)

			before, err := s.ByID(ctx, rec.ID)
			require.NoError(t, err)

			err = tc.attempt(s, rec.ID)
			assert.ErrorIs(t, err, tc.wantErr)

			after, err := s.ByID(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status, "rejected transition must not change state")
		})
	}
}

func TestMarkFailed_FromVerified(t *testing.T) {
	s := NewStore(testDB(t))
	ctx := context.Background()
	rec := pending(t, s, "order_1")

	require.NoError(t, s.MarkVerified(ctx, nil, rec.ID, "pay_1"))
	require.NoError(t, s.MarkFailed(ctx, nil, rec.ID, "capture rejected"))

	cur, err := s.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cur.Status)
	require.NotNil(t, cur.ErrorMessage)
	assert.Equal(t, "capture rejected", *cur.ErrorMessage)
}

func TestByReceipt(t *testing.T) {
	s := NewStore(testDB(t))
	rec := pending(t, s, "order_1")

	got, err := s.ByReceipt(context.Background(), rec.Receipt)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = s.ByReceipt(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
