package payments

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/candemirel/vitrin-backend/internal/audit"
	"github.com/candemirel/vitrin-backend/internal/coupons"
	"github.com/candemirel/vitrin-backend/internal/loyalty"
	"github.com/candemirel/vitrin-backend/internal/orders"
	"github.com/candemirel/vitrin-backend/pkg/config"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/logger"
	"github.com/candemirel/vitrin-backend/pkg/paytr"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeInvalidator struct {
	calls []string
}

func (f *fakeInvalidator) InvalidateOrderViews(ctx context.Context, orderNo, cartToken, userEmail string) error {
	f.calls = append(f.calls, orderNo)
	return nil
}

type paymentsFixture struct {
	db     *gorm.DB
	svc    Service
	client *paytr.Client
	views  *fakeInvalidator
	now    time.Time
}

func setupPaymentsFixture(t *testing.T) *paymentsFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.Product{},
		&models.CartItem{},
		&models.Coupon{},
		&models.CouponUsage{},
		&models.LoyaltyAccount{},
		&models.LoyaltyTransaction{},
		&models.AuditLog{},
	))

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
	runner := gormTxRunner{db: gdb}

	auditSvc, err := audit.NewService(audit.NewRepository(gdb))
	require.NoError(t, err)

	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repo:  coupons.NewRepository(gdb),
		Audit: auditSvc,
		Now:   func() time.Time { return now },
	})
	require.NoError(t, err)

	loyaltySvc, err := loyalty.NewService(loyalty.ServiceParams{
		Repo:    loyalty.NewRepository(gdb),
		Tx:      runner,
		Coupons: couponSvc,
		Audit:   auditSvc,
		Config: config.LoyaltyConfig{
			AccrualDivisor:      100,
			SilverThreshold:     1000,
			GoldThreshold:       5000,
			PlatinumThreshold:   15000,
			RedeemDenominations: []int{100, 250, 500, 1000},
			RedeemPercentDiv:    50,
			RedeemPercentCap:    25,
			RedeemCouponTTL:     720 * time.Hour,
		},
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)

	ordersRepo := orders.NewRepository(gdb)
	lifecycle, err := orders.NewService(orders.ServiceParams{
		Logger:    logg,
		Repo:      ordersRepo,
		Tx:        runner,
		Inventory: orders.NewInventoryReleaser(),
		Audit:     auditSvc,
		Reclaim:   config.ReclaimConfig{DefaultMinutes: 30, MinMinutes: 5, MaxMinutes: 1440, BatchSize: 200},
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	client := paytr.New(paytr.Config{
		MerchantID:   "123456",
		MerchantKey:  "test-key",
		MerchantSalt: "test-salt",
	})
	views := &fakeInvalidator{}

	svc, err := NewService(ServiceParams{
		Logger:    logg,
		PayTR:     client,
		Orders:    ordersRepo,
		Lifecycle: lifecycle,
		Loyalty:   loyaltySvc,
		Audit:     auditSvc,
		Tx:        runner,
		Views:     views,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	return &paymentsFixture{db: gdb, svc: svc, client: client, views: views, now: now}
}

func (f *paymentsFixture) notification(merchantOid, status, totalAmount string) Notification {
	return Notification{
		MerchantOid: merchantOid,
		Status:      status,
		TotalAmount: totalAmount,
		Hash:        f.client.Token(merchantOid, status, totalAmount),
		PaymentType: "card",
	}
}

func (f *paymentsFixture) seedPendingOrder(t *testing.T, merchantOid string) *models.Order {
	t.Helper()

	cartToken := "cart-" + merchantOid
	variant := "b"
	order := &models.Order{
		OrderNo:           fmt.Sprintf("1%010d", len(merchantOid)),
		UserEmail:         "ayse@example.com",
		Status:            enums.OrderStatusPending,
		PaymentStatus:     enums.PaymentStatusPending,
		TotalAmount:       10000,
		PaytrMerchantOid:  merchantOid,
		CartToken:         &cartToken,
		ExperimentVariant: &variant,
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func TestParseNotification(t *testing.T) {
	values := url.Values{}
	values.Set("merchant_oid", "oid-1")
	values.Set("status", "success")
	values.Set("total_amount", "100.00")
	values.Set("hash", "abc")
	values.Set("failed_reason_code", "")
	values.Set("payment_type", "card")

	n := ParseNotification(values)
	assert.Equal(t, "oid-1", n.MerchantOid)
	assert.Equal(t, "success", n.Status)
	assert.Equal(t, "100.00", n.TotalAmount)
	assert.Equal(t, "abc", n.Hash)
	assert.True(t, n.Complete())
}

func TestNotification_AmountMinorUnits(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "100.00", want: 10000},
		{raw: "100.5", want: 10050},
		{raw: "99", want: 9900},
		{raw: "0.01", want: 1},
		{raw: "10.005", wantErr: true},
		{raw: "abc", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			n := Notification{TotalAmount: tc.raw}
			got, err := n.AmountMinorUnits()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestService_HandleNotificationSuccess(t *testing.T) {
	f := setupPaymentsFixture(t)
	ctx := context.Background()

	product := &models.Product{Name: "Kahve", StockQuantity: 0, QuantityControlled: true}
	require.NoError(t, f.db.Create(product).Error)

	order := f.seedPendingOrder(t, "oid-success")
	require.NoError(t, f.db.Create(&models.OrderItem{OrderID: order.ID, ProductID: &product.ID, Name: product.Name, Quantity: 2, UnitPrice: 5000, TotalPrice: 10000}).Error)
	require.NoError(t, f.db.Create(&models.CartItem{CartToken: *order.CartToken, ProductID: product.ID, Quantity: 2, UnitPrice: 5000}).Error)

	require.NoError(t, f.svc.HandleNotification(ctx, f.notification("oid-success", "success", "100.00")))

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	require.NotNil(t, stored.PaymentCompletedAt)
	require.NotNil(t, stored.PaytrTotalAmount)
	assert.Equal(t, 10000, *stored.PaytrTotalAmount)

	var account models.LoyaltyAccount
	require.NoError(t, f.db.Where("user_email = ?", "ayse@example.com").First(&account).Error)
	assert.Equal(t, 100, account.PointsBalance)

	var cartCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("cart_token = ?", *order.CartToken).Count(&cartCount).Error)
	assert.Zero(t, cartCount)

	for _, action := range []enums.AuditAction{
		enums.AuditActionWebhookReceived,
		enums.AuditActionItemPurchase,
		enums.AuditActionOrderPurchase,
		enums.AuditActionLoyaltyGranted,
	} {
		var count int64
		require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error)
		assert.Equal(t, int64(1), count, "expected one %s entry", action)
	}

	assert.Equal(t, []string{stored.OrderNo}, f.views.calls)
}

func TestService_HandleNotificationBadHash(t *testing.T) {
	f := setupPaymentsFixture(t)
	ctx := context.Background()

	order := f.seedPendingOrder(t, "oid-bad-hash")

	n := f.notification("oid-bad-hash", "success", "100.00")
	n.Hash = "tampered"

	err := f.svc.HandleNotification(ctx, n)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeBadSignature, typed.Code())

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)

	var count int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", enums.AuditActionBadHash).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Empty(t, f.views.calls)
}

func TestService_HandleNotificationUnknownOrder(t *testing.T) {
	f := setupPaymentsFixture(t)

	err := f.svc.HandleNotification(context.Background(), f.notification("oid-mystery", "success", "100.00"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())

	var count int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", enums.AuditActionOrderNotFound).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestService_HandleNotificationReplay(t *testing.T) {
	f := setupPaymentsFixture(t)
	ctx := context.Background()

	order := f.seedPendingOrder(t, "oid-replay")
	n := f.notification("oid-replay", "success", "100.00")

	require.NoError(t, f.svc.HandleNotification(ctx, n))
	require.NoError(t, f.svc.HandleNotification(ctx, n))

	var account models.LoyaltyAccount
	require.NoError(t, f.db.Where("user_email = ?", "ayse@example.com").First(&account).Error)
	assert.Equal(t, 100, account.PointsBalance, "replay must not grant twice")

	var txnCount int64
	require.NoError(t, f.db.Model(&models.LoyaltyTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)

	var webhookCount int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", enums.AuditActionWebhookReceived).Count(&webhookCount).Error)
	assert.Equal(t, int64(2), webhookCount, "every delivery is recorded")

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
}

func TestService_HandleNotificationFailure(t *testing.T) {
	f := setupPaymentsFixture(t)
	ctx := context.Background()

	product := &models.Product{Name: "Çay", StockQuantity: 1, QuantityControlled: true}
	require.NoError(t, f.db.Create(product).Error)

	order := f.seedPendingOrder(t, "oid-failed")
	require.NoError(t, f.db.Create(&models.OrderItem{OrderID: order.ID, ProductID: &product.ID, Name: product.Name, Quantity: 3, UnitPrice: 2000, TotalPrice: 6000}).Error)

	n := f.notification("oid-failed", "failed", "100.00")
	n.FailedReasonCode = "INSUFFICIENT_FUNDS"
	n.FailedReasonMsg = "kart limiti yetersiz"

	require.NoError(t, f.svc.HandleNotification(ctx, n))

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.NotNil(t, stored.FailedReasonCode)
	assert.Equal(t, "INSUFFICIENT_FUNDS", *stored.FailedReasonCode)

	var afterProduct models.Product
	require.NoError(t, f.db.First(&afterProduct, product.ID).Error)
	assert.Equal(t, 4, afterProduct.StockQuantity)

	var count int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", enums.AuditActionPaymentFailed).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var loyaltyCount int64
	require.NoError(t, f.db.Model(&models.LoyaltyTransaction{}).Count(&loyaltyCount).Error)
	assert.Zero(t, loyaltyCount, "failed payment must not accrue points")
}

func TestService_HandleNotificationMissingFields(t *testing.T) {
	f := setupPaymentsFixture(t)

	err := f.svc.HandleNotification(context.Background(), Notification{MerchantOid: "oid-1", Status: "success"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	var count int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", enums.AuditActionWebhookReceived).Count(&count).Error)
	assert.Equal(t, int64(1), count, "even rejected hits are recorded")
}

func TestService_HandleNotificationUnconfigured(t *testing.T) {
	f := setupPaymentsFixture(t)

	bare, err := NewService(ServiceParams{
		Logger:    logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		PayTR:     paytr.New(paytr.Config{}),
		Orders:    orders.NewRepository(f.db),
		Lifecycle: mustLifecycle(t, f.db),
		Loyalty:   noopGranter{},
		Audit:     mustAudit(t, f.db),
		Tx:        gormTxRunner{db: f.db},
	})
	require.NoError(t, err)

	handleErr := bare.HandleNotification(context.Background(), Notification{
		MerchantOid: "oid-1",
		Status:      "success",
		TotalAmount: "100.00",
		Hash:        "whatever",
	})
	typed := pkgerrors.As(handleErr)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConfig, typed.Code())
}

type noopGranter struct{}

func (noopGranter) GrantForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (int, error) {
	return 0, nil
}

func mustAudit(t *testing.T, gdb *gorm.DB) audit.Service {
	t.Helper()
	svc, err := audit.NewService(audit.NewRepository(gdb))
	require.NoError(t, err)
	return svc
}

func mustLifecycle(t *testing.T, gdb *gorm.DB) orders.Service {
	t.Helper()
	svc, err := orders.NewService(orders.ServiceParams{
		Logger:    logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		Repo:      orders.NewRepository(gdb),
		Tx:        gormTxRunner{db: gdb},
		Inventory: orders.NewInventoryReleaser(),
		Audit:     mustAudit(t, gdb),
		Reclaim:   config.ReclaimConfig{DefaultMinutes: 30, MinMinutes: 5, MaxMinutes: 1440, BatchSize: 200},
	})
	require.NoError(t, err)
	return svc
}
