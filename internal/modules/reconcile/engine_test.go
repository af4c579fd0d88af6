package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sahaaya.org/app/internal/modules/causes"
	"sahaaya.org/app/internal/modules/ledger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&causes.Donation{}, &causes.Request{}, &ledger.PaymentRecord{}))
	return db
}

func seedDonation(t *testing.T, db *gorm.DB, target, raised int64) causes.Donation {
	t.Helper()
	d := causes.Donation{
		ID: uuid.NewString(), OwnerUserID: uuid.NewString(), Title: "Flood relief",
		TargetAmountPaise: target, RaisedAmountPaise: raised,
		Currency: "INR", Status: causes.StatusOpen,
	}
	require.NoError(t, db.Create(&d).Error)
	return d
}

func seedRequest(t *testing.T, db *gorm.DB, requiredQty, receivedQty int) causes.Request {
	t.Helper()
	r := causes.Request{
		ID: uuid.NewString(), OwnerUserID: uuid.NewString(), Title: "Blankets for shelter",
		RequiredQuantity: requiredQty, ReceivedQuantity: receivedQty,
		Currency: "INR", Status: causes.StatusOpen,
	}
	require.NoError(t, db.Create(&r).Error)
	return r
}

func monetaryRec(donationID string, amount int64) ledger.PaymentRecord {
	return ledger.PaymentRecord{
		ID: uuid.NewString(), Kind: ledger.KindMonetary,
		DonationID: &donationID, AmountPaise: amount, Currency: "INR",
	}
}

func loadDonation(t *testing.T, db *gorm.DB, id string) causes.Donation {
	t.Helper()
	var d causes.Donation
	require.NoError(t, db.First(&d, "id = ?", id).Error)
	return d
}

func TestApplyCapture_IncrementsRaised(t *testing.T) {
	db := testDB(t)
	e := NewEngine()
	d := seedDonation(t, db, 1000000, 0)

	require.NoError(t, e.ApplyCapture(context.Background(), db, monetaryRec(d.ID, 50000)))

	got := loadDonation(t, db, d.ID)
	assert.EqualValues(t, 50000, got.RaisedAmountPaise)
	assert.Equal(t, causes.StatusOpen, got.Status)
}

func TestApplyCapture_CompletesOnGoal(t *testing.T) {
	db := testDB(t)
	e := NewEngine()
	d := seedDonation(t, db, 100000, 60000)

	require.NoError(t, e.ApplyCapture(context.Background(), db, monetaryRec(d.ID, 40000)))

	got := loadDonation(t, db, d.ID)
	assert.EqualValues(t, 100000, got.RaisedAmountPaise)
	assert.Equal(t, causes.StatusCompleted, got.Status)
}

func TestApplyCapture_OpenEndedGoalNeverCompletes(t *testing.T) {
	db := testDB(t)
	e := NewEngine()
	d := seedDonation(t, db, 0, 0)

	require.NoError(t, e.ApplyCapture(context.Background(), db, monetaryRec(d.ID, 999999)))

	got := loadDonation(t, db, d.ID)
	assert.Equal(t, causes.StatusOpen, got.Status)
}

func TestApplyCapture_InKindTrack(t *testing.T) {
	db := testDB(t)
	e := NewEngine()
	r := seedRequest(t, db, 10, 0)

	rec := ledger.PaymentRecord{
		ID: uuid.NewString(), Kind: ledger.KindInKind,
		RequestID: &r.ID, Quantity: 4, Currency: "INR",
	}
	require.NoError(t, e.ApplyCapture(context.Background(), db, rec))

	var got causes.Request
	require.NoError(t, db.First(&got, "id = ?", r.ID).Error)
	assert.Equal(t, 4, got.ReceivedQuantity)
	assert.EqualValues(t, 0, got.RaisedAmountPaise, "in-kind must not touch the monetary track")
	assert.Equal(t, causes.StatusOpen, got.Status)

	rec.ID = uuid.NewString()
	rec.Quantity = 6
	require.NoError(t, e.ApplyCapture(context.Background(), db, rec))

	require.NoError(t, db.First(&got, "id = ?", r.ID).Error)
	assert.Equal(t, 10, got.ReceivedQuantity)
	assert.Equal(t, causes.StatusCompleted, got.Status)
}

func TestApplyCapture_TargetMissing(t *testing.T) {
	db := testDB(t)
	e := NewEngine()

	err := e.ApplyCapture(context.Background(), db, monetaryRec(uuid.NewString(), 50000))
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestApplyCapture_FreeStandingTransferIsNoop(t *testing.T) {
	db := testDB(t)
	e := NewEngine()

	rec := ledger.PaymentRecord{ID: uuid.NewString(), Kind: ledger.KindMonetary, AmountPaise: 50000, Currency: "INR"}
	assert.NoError(t, e.ApplyCapture(context.Background(), db, rec))
	assert.NoError(t, e.ApplyRefund(context.Background(), db, rec))
}

func TestApplyRefund_Decrements(t *testing.T) {
	db := testDB(t)
	e := NewEngine()
	d := seedDonation(t, db, 1000000, 80000)

	require.NoError(t, e.ApplyRefund(context.Background(), db, monetaryRec(d.ID, 50000)))

	got := loadDonation(t, db, d.ID)
	assert.EqualValues(t, 30000, got.RaisedAmountPaise)
}

func TestApplyRefund_ReopensCompletedTarget(t *testing.T) {
	db := testDB(t)
	e := NewEngine()
	d := seedDonation(t, db, 100000, 0)

	rec := monetaryRec(d.ID, 100000)
	require.NoError(t, e.ApplyCapture(context.Background(), db, rec))
	require.Equal(t, causes.StatusCompleted, loadDonation(t, db, d.ID).Status)

	rec.ID = uuid.NewString()
	require.NoError(t, e.ApplyRefund(context.Background(), db, rec))

	got := loadDonation(t, db, d.ID)
	assert.EqualValues(t, 0, got.RaisedAmountPaise)
	assert.Equal(t, causes.StatusOpen, got.Status)
}

func TestApplyRefund_ClampsAtZero(t *testing.T) {
	db := testDB(t)
	e := NewEngine()
	d := seedDonation(t, db, 1000000, 20000)

	// refund larger than the aggregate means drift; the aggregate is
	// clamped, never driven negative
	require.NoError(t, e.ApplyRefund(context.Background(), db, monetaryRec(d.ID, 50000)))

	got := loadDonation(t, db, d.ID)
	assert.EqualValues(t, 0, got.RaisedAmountPaise)
}

func TestApplyRefund_TargetMissing(t *testing.T) {
	db := testDB(t)
	e := NewEngine()

	err := e.ApplyRefund(context.Background(), db, monetaryRec(uuid.NewString(), 50000))
	assert.ErrorIs(t, err, ErrTargetNotFound)
}
