package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/candemirel/vitrin-backend/internal/audit"
	"github.com/candemirel/vitrin-backend/internal/coupons"
	"github.com/candemirel/vitrin-backend/pkg/config"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type couponIssuer interface {
	IssueScoped(ctx context.Context, tx *gorm.DB, input coupons.IssueScopedInput) (*models.Coupon, error)
}

// RedeemInput asks to exchange points for a discount coupon.
type RedeemInput struct {
	UserEmail string
	Points    int
}

// RedeemResult reports a completed redemption.
type RedeemResult struct {
	CouponCode string                 `json:"coupon_code"`
	Percent    int                    `json:"percent"`
	ExpiresAt  time.Time              `json:"expires_at"`
	Account    *models.LoyaltyAccount `json:"account"`
}

// AdjustInput carries a manual balance correction.
type AdjustInput struct {
	UserEmail string
	Delta     int
	Reason    string
	Actor     string
}

// Service defines the loyalty ledger operations.
type Service interface {
	GrantForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (int, error)
	Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error)
	AdminAdjust(ctx context.Context, input AdjustInput) (*models.LoyaltyAccount, error)
	Account(ctx context.Context, userEmail string) (*models.LoyaltyAccount, error)
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Coupons couponIssuer
	Audit   audit.Service
	Config  config.LoyaltyConfig
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	coupons couponIssuer
	audit   audit.Service
	cfg     config.LoyaltyConfig
	now     func() time.Time
}

// NewService builds the loyalty ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("loyalty repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon issuer required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		coupons: params.Coupons,
		audit:   params.Audit,
		cfg:     params.Config,
		now:     now,
	}, nil
}

// GrantForOrder accrues points for a paid order inside the caller's
// transaction. A second call for the same order is a no-op; the ledger row
// keyed by (order_id, order_earn) is the idempotency record.
func (s *service) GrantForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (int, error) {
	if order == nil {
		return 0, fmt.Errorf("order required")
	}
	if s.cfg.AccrualDivisor <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeConfig, "loyalty accrual divisor not configured")
	}
	points := order.TotalAmount / s.cfg.AccrualDivisor
	if points <= 0 {
		return 0, nil
	}

	repo := s.repo.WithTx(tx)
	granted, err := repo.HasOrderEarn(ctx, order.ID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check accrual ledger")
	}
	if granted {
		return 0, nil
	}

	account, err := s.lockOrCreateAccount(ctx, repo, order.UserEmail)
	if err != nil {
		return 0, err
	}

	orderID := order.ID
	if err := repo.CreateTransaction(ctx, &models.LoyaltyTransaction{
		AccountID:    account.ID,
		PointsChange: points,
		Type:         enums.LoyaltyTransactionTypeOrderEarn,
		OrderID:      &orderID,
		Description:  fmt.Sprintf("points for order %s", order.OrderNo),
	}); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append accrual row")
	}

	account.PointsBalance += points
	account.TotalEarned += points
	account.Tier = s.tierFor(account.TotalEarned)
	if err := repo.UpdateAccount(ctx, account); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty account")
	}

	if _, err := s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
		Action:   enums.AuditActionLoyaltyGranted,
		Entity:   audit.EntityLoyalty,
		EntityID: order.UserEmail,
		Payload: audit.LoyaltyGrantedPayload{
			UserEmail: order.UserEmail,
			OrderNo:   order.OrderNo,
			Points:    points,
		},
	}); err != nil {
		return 0, err
	}
	return points, nil
}

// Redeem exchanges a whitelisted amount of points for a single-use percent
// coupon. The debit and the coupon land in one transaction; an insufficient
// balance leaves no partial effect.
func (s *service) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	if input.UserEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user email required")
	}
	if !s.allowedDenomination(input.Points) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("points amount %d is not redeemable", input.Points)).
			WithDetails(map[string]any{"allowed": s.cfg.RedeemDenominations})
	}
	if s.cfg.RedeemPercentDiv <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "loyalty redeem divisor not configured")
	}

	percent := input.Points / s.cfg.RedeemPercentDiv
	if percent > s.cfg.RedeemPercentCap {
		percent = s.cfg.RedeemPercentCap
	}
	if percent <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("points amount %d is below the smallest discount", input.Points))
	}

	var result *RedeemResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.FindAccountByEmailForUpdate(ctx, input.UserEmail)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeInsufficientPoints, "no points to redeem")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loyalty account")
		}
		if account.PointsBalance < input.Points {
			return pkgerrors.New(pkgerrors.CodeInsufficientPoints, fmt.Sprintf("balance %d is below %d", account.PointsBalance, input.Points))
		}

		expiresAt := s.now().Add(s.cfg.RedeemCouponTTL)
		coupon, err := s.coupons.IssueScoped(ctx, tx, coupons.IssueScopedInput{
			UserEmail: input.UserEmail,
			Percent:   percent,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return err
		}

		couponID := coupon.ID
		if err := repo.CreateTransaction(ctx, &models.LoyaltyTransaction{
			AccountID:    account.ID,
			PointsChange: -input.Points,
			Type:         enums.LoyaltyTransactionTypeRedeem,
			CouponID:     &couponID,
			Description:  fmt.Sprintf("redeemed for coupon %s", coupon.Code),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append redeem row")
		}

		account.PointsBalance -= input.Points
		account.TotalRedeemed += input.Points
		if err := repo.UpdateAccount(ctx, account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty account")
		}

		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
			Action:   enums.AuditActionLoyaltyRedeemed,
			Entity:   audit.EntityLoyalty,
			EntityID: input.UserEmail,
			Actor:    input.UserEmail,
			Payload: audit.LoyaltyRedeemedPayload{
				UserEmail:  input.UserEmail,
				Points:     input.Points,
				CouponCode: coupon.Code,
				Percent:    percent,
			},
		}); err != nil {
			return err
		}

		result = &RedeemResult{
			CouponCode: coupon.Code,
			Percent:    percent,
			ExpiresAt:  expiresAt,
			Account:    account,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdminAdjust applies a signed manual correction. Positive deltas count as
// earned points and can raise the tier; negative deltas count as redeemed.
func (s *service) AdminAdjust(ctx context.Context, input AdjustInput) (*models.LoyaltyAccount, error) {
	if input.UserEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user email required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if input.Actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}

	var adjusted *models.LoyaltyAccount
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := s.lockOrCreateAccount(ctx, repo, input.UserEmail)
		if err != nil {
			return err
		}
		if account.PointsBalance+input.Delta < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("adjustment would drive balance below zero (%d%+d)", account.PointsBalance, input.Delta))
		}

		description := input.Reason
		if description == "" {
			description = "manual adjustment"
		}
		if err := repo.CreateTransaction(ctx, &models.LoyaltyTransaction{
			AccountID:    account.ID,
			PointsChange: input.Delta,
			Type:         enums.LoyaltyTransactionTypeAdminAdjust,
			Description:  description,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append adjustment row")
		}

		account.PointsBalance += input.Delta
		if input.Delta > 0 {
			account.TotalEarned += input.Delta
			account.Tier = s.tierFor(account.TotalEarned)
		} else {
			account.TotalRedeemed += -input.Delta
		}
		if err := repo.UpdateAccount(ctx, account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty account")
		}

		if _, err := s.audit.RecordTx(ctx, tx, audit.RecordEntryInput{
			Action:   enums.AuditActionLoyaltyAdjusted,
			Entity:   audit.EntityLoyalty,
			EntityID: input.UserEmail,
			Actor:    input.Actor,
			Payload: audit.LoyaltyAdjustedPayload{
				UserEmail: input.UserEmail,
				Delta:     input.Delta,
				Reason:    input.Reason,
			},
		}); err != nil {
			return err
		}
		adjusted = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

// Account reads the balance projection. Users without any loyalty history
// get an empty bronze account rather than an error.
func (s *service) Account(ctx context.Context, userEmail string) (*models.LoyaltyAccount, error) {
	if userEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user email required")
	}
	account, err := s.repo.FindAccountByEmail(ctx, userEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.LoyaltyAccount{UserEmail: userEmail, Tier: enums.LoyaltyTierBronze}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
	}
	return account, nil
}

func (s *service) lockOrCreateAccount(ctx context.Context, repo Repository, userEmail string) (*models.LoyaltyAccount, error) {
	account, err := repo.FindAccountByEmailForUpdate(ctx, userEmail)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loyalty account")
	}

	account = &models.LoyaltyAccount{UserEmail: userEmail, Tier: enums.LoyaltyTierBronze}
	if err := repo.CreateAccount(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loyalty account")
	}
	return account, nil
}

func (s *service) allowedDenomination(points int) bool {
	for _, d := range s.cfg.RedeemDenominations {
		if points == d {
			return true
		}
	}
	return false
}

func (s *service) tierFor(totalEarned int) enums.LoyaltyTier {
	switch {
	case s.cfg.PlatinumThreshold > 0 && totalEarned >= s.cfg.PlatinumThreshold:
		return enums.LoyaltyTierPlatinum
	case s.cfg.GoldThreshold > 0 && totalEarned >= s.cfg.GoldThreshold:
		return enums.LoyaltyTierGold
	case s.cfg.SilverThreshold > 0 && totalEarned >= s.cfg.SilverThreshold:
		return enums.LoyaltyTierSilver
	default:
		return enums.LoyaltyTierBronze
	}
}
