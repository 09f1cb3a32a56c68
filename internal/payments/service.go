package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/candemirel/vitrin-backend/internal/audit"
	"github.com/candemirel/vitrin-backend/internal/orders"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/logger"
	"github.com/candemirel/vitrin-backend/pkg/paytr"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type loyaltyGranter interface {
	GrantForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (int, error)
}

// viewInvalidator drops cached order, cart and loyalty views after a commit.
type viewInvalidator interface {
	InvalidateOrderViews(ctx context.Context, orderNo, cartToken, userEmail string) error
}

// Service processes provider payment notifications.
type Service interface {
	HandleNotification(ctx context.Context, notification Notification) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Logger    *logger.Logger
	PayTR     *paytr.Client
	Orders    orders.Repository
	Lifecycle orders.Service
	Loyalty   loyaltyGranter
	Audit     audit.Service
	Tx        txRunner
	Views     viewInvalidator
	Now       func() time.Time
}

type service struct {
	logg      *logger.Logger
	paytr     *paytr.Client
	orders    orders.Repository
	lifecycle orders.Service
	loyalty   loyaltyGranter
	audit     audit.Service
	tx        txRunner
	views     viewInvalidator
	now       func() time.Time
}

// NewService builds the payment webhook service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PayTR == nil {
		return nil, fmt.Errorf("paytr client required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("order lifecycle service required")
	}
	if params.Loyalty == nil {
		return nil, fmt.Errorf("loyalty granter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:      params.Logger,
		paytr:     params.PayTR,
		orders:    params.Orders,
		lifecycle: params.Lifecycle,
		loyalty:   params.Loyalty,
		audit:     params.Audit,
		tx:        params.Tx,
		views:     params.Views,
		now:       now,
	}, nil
}

// HandleNotification runs the full verification and settlement pipeline for
// one callback. The provider redelivers on any error return; every path is
// safe to replay.
func (s *service) HandleNotification(ctx context.Context, n Notification) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"merchant_oid": n.MerchantOid,
		"status":       n.Status,
	})

	// Every hit is recorded before any validation runs.
	if _, err := s.audit.Record(ctx, audit.RecordEntryInput{
		Action:   enums.AuditActionWebhookReceived,
		Entity:   audit.EntityWebhook,
		EntityID: n.MerchantOid,
		Actor:    "paytr",
		Payload: audit.WebhookReceivedPayload{
			MerchantOid: n.MerchantOid,
			Status:      n.Status,
			TotalAmount: n.TotalAmount,
		},
	}); err != nil {
		return err
	}

	if !n.Complete() {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification is missing required fields")
	}
	if !s.paytr.Configured() {
		return pkgerrors.New(pkgerrors.CodeConfig, "paytr credentials not configured")
	}

	if !s.paytr.Verify(n.MerchantOid, n.Status, n.TotalAmount, n.Hash) {
		if _, err := s.audit.Record(ctx, audit.RecordEntryInput{
			Action:   enums.AuditActionBadHash,
			Entity:   audit.EntityWebhook,
			EntityID: n.MerchantOid,
			Actor:    "paytr",
			Payload: audit.BadHashPayload{
				MerchantOid: n.MerchantOid,
				Status:      n.Status,
				TotalAmount: n.TotalAmount,
			},
		}); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeBadSignature, "notification hash mismatch")
	}

	amount, err := n.AmountMinorUnits()
	if err != nil {
		return err
	}

	order, err := s.orders.FindByMerchantOid(ctx, n.MerchantOid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if _, auditErr := s.audit.Record(ctx, audit.RecordEntryInput{
				Action:   enums.AuditActionOrderNotFound,
				Entity:   audit.EntityWebhook,
				EntityID: n.MerchantOid,
				Actor:    "paytr",
				Payload:  audit.OrderNotFoundPayload{MerchantOid: n.MerchantOid},
			}); auditErr != nil {
				return auditErr
			}
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no order for merchant oid %s", n.MerchantOid))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by merchant oid")
	}
	ctx = s.logg.WithOrderNo(ctx, order.OrderNo)

	// A notification for an already settled order is a redelivery; succeed
	// without touching anything.
	if order.PaymentStatus != enums.PaymentStatusPending {
		s.logg.Info(ctx, "notification replay ignored")
		return nil
	}

	if n.Status == StatusSuccess {
		err = s.settleSuccess(ctx, order.ID, n, amount)
	} else {
		err = s.settleFailure(ctx, order.ID, n)
	}
	if err != nil {
		return err
	}

	s.invalidateViews(ctx, order)
	return nil
}

func (s *service) settleSuccess(ctx context.Context, orderID int64, n Notification, amount int) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if current.PaymentStatus != enums.PaymentStatusPending {
			return nil
		}

		paymentType := n.PaymentType
		echo := orders.PaidEcho{TotalAmount: &amount}
		if paymentType != "" {
			echo.PaymentType = &paymentType
		}
		if err := s.lifecycle.MarkPaid(ctx, tx, current, echo); err != nil {
			return err
		}
		if _, err := s.loyalty.GrantForOrder(ctx, tx, current); err != nil {
			return err
		}
		if current.CartToken != nil && *current.CartToken != "" {
			if err := repo.DeleteCartItems(ctx, *current.CartToken); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
			}
		}
		return s.recordPurchaseAudits(ctx, tx, repo, current, amount, paymentType)
	})
}

func (s *service) recordPurchaseAudits(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, amount int, paymentType string) error {
	variant := ""
	if order.ExperimentVariant != nil {
		variant = *order.ExperimentVariant
	}

	items, err := repo.FindItemsByOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load items for purchase audit")
	}
	for _, item := range items {
		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
			Action:   enums.AuditActionItemPurchase,
			Entity:   audit.EntityItem,
			EntityID: fmt.Sprintf("%d", item.ID),
			Actor:    "paytr",
			Payload: audit.ItemPurchasePayload{
				OrderNo:           order.OrderNo,
				ProductID:         item.ProductID,
				Name:              item.Name,
				Quantity:          item.Quantity,
				UnitPrice:         item.UnitPrice,
				ExperimentVariant: variant,
			},
		}); err != nil {
			return err
		}
	}

	_, err = s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
		Action:   enums.AuditActionOrderPurchase,
		Entity:   audit.EntityOrder,
		EntityID: order.OrderNo,
		Actor:    "paytr",
		Payload: audit.OrderPurchasePayload{
			OrderNo:           order.OrderNo,
			TotalAmount:       amount,
			PaymentType:       paymentType,
			ExperimentVariant: variant,
		},
	})
	return err
}

func (s *service) settleFailure(ctx context.Context, orderID int64, n Notification) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if current.PaymentStatus != enums.PaymentStatusPending {
			return nil
		}

		if err := s.lifecycle.MarkFailed(ctx, tx, current, n.FailedReasonCode, n.FailedReasonMsg); err != nil {
			return err
		}
		_, err = s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
			Action:   enums.AuditActionPaymentFailed,
			Entity:   audit.EntityOrder,
			EntityID: current.OrderNo,
			Actor:    "paytr",
			Payload: audit.PaymentFailedPayload{
				OrderNo:    current.OrderNo,
				ReasonCode: n.FailedReasonCode,
				ReasonMsg:  n.FailedReasonMsg,
			},
		})
		return err
	})
}

// invalidateViews is best effort; a stale page cache is not worth a provider
// redelivery.
func (s *service) invalidateViews(ctx context.Context, order *models.Order) {
	if s.views == nil {
		return
	}
	cartToken := ""
	if order.CartToken != nil {
		cartToken = *order.CartToken
	}
	if err := s.views.InvalidateOrderViews(ctx, order.OrderNo, cartToken, order.UserEmail); err != nil {
		s.logg.Warn(ctx, "order view invalidation failed")
	}
}
