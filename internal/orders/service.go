package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/candemirel/vitrin-backend/internal/audit"
	"github.com/candemirel/vitrin-backend/pkg/config"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/logger"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryReleaser returns sold stock when an order is released or fails.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID int64, qty int) error
}

// FailedReasonTimeout marks orders released by the stale-order sweep.
const FailedReasonTimeout = "payment_timeout"

// PaidEcho carries the provider fields stored on a successful payment.
type PaidEcho struct {
	TotalAmount *int
	PaymentType *string
}

// ReclaimSummary reports one stale-order sweep.
type ReclaimSummary struct {
	ThresholdMinutes int      `json:"threshold_minutes"`
	Scanned          int      `json:"scanned"`
	Released         int      `json:"released"`
	ReleasedOrderNos []string `json:"released_order_nos"`
}

// UpdateStatusInput carries an operator status edit.
type UpdateStatusInput struct {
	OrderNo string
	Target  enums.OrderStatus
	Actor   string
}

// Service defines order lifecycle operations.
type Service interface {
	GenerateOrderNo(ctx context.Context) (string, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order, echo PaidEcho) error
	MarkFailed(ctx context.Context, tx *gorm.DB, order *models.Order, reasonCode, reasonMsg string) error
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	ReclaimStale(ctx context.Context, minutes int) (*ReclaimSummary, error)
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Logger    *logger.Logger
	Repo      Repository
	Tx        txRunner
	Inventory InventoryReleaser
	Audit     audit.Service
	Reclaim   config.ReclaimConfig
	Now       func() time.Time
}

type service struct {
	logg      *logger.Logger
	repo      Repository
	tx        txRunner
	inventory InventoryReleaser
	audit     audit.Service
	reclaim   config.ReclaimConfig
	now       func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:      params.Logger,
		repo:      params.Repo,
		tx:        params.Tx,
		inventory: params.Inventory,
		audit:     params.Audit,
		reclaim:   params.Reclaim,
		now:       now,
	}, nil
}

const (
	orderNoLength   = 11
	orderNoAttempts = 8
)

// GenerateOrderNo produces an unused 11-digit order number, retrying a
// bounded number of times before giving up with a conflict.
func (s *service) GenerateOrderNo(ctx context.Context) (string, error) {
	for attempt := 0; attempt < orderNoAttempts; attempt++ {
		candidate, err := randomOrderNo()
		if err != nil {
			return "", err
		}
		_, err = s.repo.FindByOrderNo(ctx, candidate)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not generate a unique order number")
}

func randomOrderNo() (string, error) {
	digits := make([]byte, orderNoLength)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		digits[i] = '0' + byte(n.Int64())
	}
	// Leading zero would read as a 10-digit number downstream.
	if digits[0] == '0' {
		digits[0] = '1'
	}
	return string(digits), nil
}

// MarkPaid records a completed payment inside the caller's transaction. The
// fulfillment status advances from pending to confirmed only; an operator
// who already moved the order further keeps their progress.
func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order, echo PaidEcho) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	now := s.now()
	updates := map[string]any{
		"payment_status":       enums.PaymentStatusPaid,
		"payment_completed_at": now,
	}
	if echo.TotalAmount != nil {
		updates["paytr_total_amount"] = *echo.TotalAmount
	}
	if echo.PaymentType != nil {
		updates["paytr_payment_type"] = *echo.PaymentType
	}
	if order.Status == enums.OrderStatusPending {
		updates["status"] = enums.OrderStatusConfirmed
		order.Status = enums.OrderStatusConfirmed
	}
	if err := s.repo.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaymentCompletedAt = &now
	order.PaytrTotalAmount = echo.TotalAmount
	order.PaytrPaymentType = echo.PaymentType
	return nil
}

// MarkFailed records a failed payment inside the caller's transaction and
// restocks every line item that still references a product.
func (s *service) MarkFailed(ctx context.Context, tx *gorm.DB, order *models.Order, reasonCode, reasonMsg string) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	repo := s.repo.WithTx(tx)

	updates := map[string]any{
		"payment_status":     enums.PaymentStatusFailed,
		"failed_reason_code": reasonCode,
		"failed_reason_msg":  reasonMsg,
	}
	if order.Status == enums.OrderStatusPending {
		updates["status"] = enums.OrderStatusCancelled
		order.Status = enums.OrderStatusCancelled
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
	}
	order.PaymentStatus = enums.PaymentStatusFailed
	order.FailedReasonCode = &reasonCode
	order.FailedReasonMsg = &reasonMsg

	_, err := s.restockItems(ctx, tx, repo, order.ID)
	return err
}

// restockItems returns the number of line items whose stock was handed back.
func (s *service) restockItems(ctx context.Context, tx *gorm.DB, repo Repository, orderID int64) (int, error) {
	items, err := repo.FindItemsByOrder(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items for restock")
	}
	restocked := 0
	for _, item := range items {
		if item.ProductID == nil || item.Quantity <= 0 {
			continue
		}
		if err := s.inventory.Release(ctx, tx, *item.ProductID, item.Quantity); err != nil {
			return restocked, err
		}
		restocked++
	}
	return restocked, nil
}

// UpdateStatus applies an operator edit to the fulfillment status.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Target))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByOrderNo(ctx, input.OrderNo)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", input.OrderNo))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		current, err := repo.FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if !CanTransition(current.Status, input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", current.Status, input.Target)).
				WithDetails(map[string]string{"from": current.Status.String(), "to": input.Target.String()})
		}
		if current.Status == input.Target {
			updated = current
			return nil
		}
		if err := repo.Update(ctx, current.ID, map[string]any{"status": input.Target}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
			Action:   enums.AuditActionOrderStatusChanged,
			Entity:   audit.EntityOrder,
			EntityID: current.OrderNo,
			Actor:    input.Actor,
			Payload: audit.OrderStatusChangedPayload{
				OrderNo: current.OrderNo,
				From:    current.Status.String(),
				To:      input.Target.String(),
			},
		}); err != nil {
			return err
		}
		current.Status = input.Target
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReclaimStale cancels pending-payment orders older than the threshold and
// returns their stock. Each order is handled in its own transaction with the
// precondition re-checked under a row lock, so a payment landing mid-sweep
// wins.
func (s *service) ReclaimStale(ctx context.Context, minutes int) (*ReclaimSummary, error) {
	minutes = s.clampMinutes(minutes)
	cutoff := s.now().UTC().Add(-time.Duration(minutes) * time.Minute)

	stale, err := s.repo.FindStalePending(ctx, cutoff, s.reclaim.BatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan stale orders")
	}

	summary := &ReclaimSummary{ThresholdMinutes: minutes, Scanned: len(stale)}
	var errs []error
	for _, order := range stale {
		released, err := s.reclaimOne(ctx, order.ID, minutes)
		if err != nil {
			// One stuck order must not shield the rest of the batch.
			logCtx := s.logg.WithField(ctx, "order_id", order.ID)
			s.logg.Error(logCtx, "reclaim stale order", err)
			errs = append(errs, fmt.Errorf("reclaim order %d: %w", order.ID, err))
			continue
		}
		if released != "" {
			summary.Released++
			summary.ReleasedOrderNos = append(summary.ReleasedOrderNos, released)
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"threshold_minutes": summary.ThresholdMinutes,
		"scanned":           summary.Scanned,
		"released":          summary.Released,
		"failed":            len(errs),
	})
	s.logg.Info(logCtx, "stale order sweep complete")
	return summary, multierr.Combine(errs...)
}

func (s *service) clampMinutes(minutes int) int {
	if minutes <= 0 {
		minutes = s.reclaim.DefaultMinutes
	}
	if minutes < s.reclaim.MinMinutes {
		minutes = s.reclaim.MinMinutes
	}
	if minutes > s.reclaim.MaxMinutes {
		minutes = s.reclaim.MaxMinutes
	}
	return minutes
}

func (s *service) reclaimOne(ctx context.Context, orderID int64, minutes int) (string, error) {
	var releasedOrderNo string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stale order")
		}
		if current.Status != enums.OrderStatusPending || current.PaymentStatus != enums.PaymentStatusPending {
			return nil
		}

		updates := map[string]any{
			"status":               enums.OrderStatusCancelled,
			"payment_status":       enums.PaymentStatusFailed,
			"failed_reason_code":   FailedReasonTimeout,
			"payment_completed_at": nil,
		}
		if err := repo.Update(ctx, current.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stale order")
		}
		restocked, err := s.restockItems(ctx, tx, repo, current.ID)
		if err != nil {
			return err
		}
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
			Action:   enums.AuditActionOrderReclaimed,
			Entity:   audit.EntityOrder,
			EntityID: current.OrderNo,
			Payload: audit.OrderReclaimedPayload{
				OrderNo:          current.OrderNo,
				ThresholdMinutes: minutes,
				ItemCount:        restocked,
			},
		}); err != nil {
			return err
		}
		releasedOrderNo = current.OrderNo
		return nil
	})
	if err != nil {
		return "", err
	}
	return releasedOrderNo, nil
}

type inventoryReleaserImpl struct{}

// NewInventoryReleaser exposes the default inventory release implementation.
func NewInventoryReleaser() InventoryReleaser {
	return inventoryReleaserImpl{}
}

// Release increments stock with a single conditional UPDATE. Products that
// are not quantity-controlled are left alone, as are products that no longer
// exist.
func (inventoryReleaserImpl) Release(ctx context.Context, tx *gorm.DB, productID int64, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quantity_controlled = ?
	`, qty, productID, true)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	return nil
}
