package coupons

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/candemirel/vitrin-backend/internal/audit"
	"github.com/candemirel/vitrin-backend/pkg/db"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"gorm.io/gorm"
)

// RejectReason is the machine-readable reason a coupon does not apply.
// Rejections are an outcome, not an error.
type RejectReason string

const (
	RejectMissingCode         RejectReason = "missing_code"
	RejectNotFound            RejectReason = "not_found"
	RejectInactive            RejectReason = "inactive"
	RejectNotStarted          RejectReason = "not_started"
	RejectExpired             RejectReason = "expired"
	RejectMinOrderNotMet      RejectReason = "min_order_not_met"
	RejectUsageLimitReached   RejectReason = "usage_limit_reached"
	RejectPerUserLimitReached RejectReason = "per_user_limit_reached"
	RejectInvalidDiscount     RejectReason = "invalid_discount"
)

// Validation is the outcome of checking a coupon against an order subtotal.
type Validation struct {
	Valid    bool           `json:"valid"`
	Reason   RejectReason   `json:"reason,omitempty"`
	Coupon   *models.Coupon `json:"coupon,omitempty"`
	Discount int            `json:"discount"`
}

// Service defines the coupon engine operations.
type Service interface {
	Validate(ctx context.Context, code string, subtotal int, userEmail string) (*Validation, error)
	BestForUser(ctx context.Context, subtotal int, userEmail string) (*Validation, error)
	RecordUsage(ctx context.Context, tx *gorm.DB, coupon *models.Coupon, orderID int64, userEmail string, discount int) error
	Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error)
	IssueScoped(ctx context.Context, tx *gorm.DB, input IssueScopedInput) (*models.Coupon, error)
	Update(ctx context.Context, id int64, input UpdateCouponInput) (*models.Coupon, error)
	Disable(ctx context.Context, id int64, actor string) (*models.Coupon, error)
	List(ctx context.Context, includeInactive bool) ([]models.Coupon, error)
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo  Repository
	Audit audit.Service
	Now   func() time.Time
}

type service struct {
	repo  Repository
	audit audit.Service
	now   func() time.Time
}

// NewService builds the coupon engine with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, audit: params.Audit, now: now}, nil
}

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Validate(ctx context.Context, code string, subtotal int, userEmail string) (*Validation, error) {
	code = NormalizeCode(code)
	if code == "" {
		return &Validation{Reason: RejectMissingCode}, nil
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Validation{Reason: RejectNotFound}, nil
		}
		return nil, err
	}

	return s.validateCoupon(ctx, coupon, subtotal, userEmail)
}

func (s *service) validateCoupon(ctx context.Context, coupon *models.Coupon, subtotal int, userEmail string) (*Validation, error) {
	// Coupons scoped to a user are invisible to everyone else.
	if coupon.UserEmail != nil && *coupon.UserEmail != userEmail {
		return &Validation{Reason: RejectNotFound}, nil
	}
	if !coupon.IsActive {
		return &Validation{Reason: RejectInactive, Coupon: coupon}, nil
	}

	now := s.now()
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return &Validation{Reason: RejectNotStarted, Coupon: coupon}, nil
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return &Validation{Reason: RejectExpired, Coupon: coupon}, nil
	}
	if coupon.MinOrderAmount != nil && subtotal < *coupon.MinOrderAmount {
		return &Validation{Reason: RejectMinOrderNotMet, Coupon: coupon}, nil
	}

	if coupon.UsageLimit != nil {
		used, err := s.repo.CountUsages(ctx, coupon.ID)
		if err != nil {
			return nil, err
		}
		if used >= int64(*coupon.UsageLimit) {
			return &Validation{Reason: RejectUsageLimitReached, Coupon: coupon}, nil
		}
	}
	if userEmail != "" && coupon.PerUserLimit != nil {
		used, err := s.repo.CountUsagesByUser(ctx, coupon.ID, userEmail)
		if err != nil {
			return nil, err
		}
		if used >= int64(*coupon.PerUserLimit) {
			return &Validation{Reason: RejectPerUserLimitReached, Coupon: coupon}, nil
		}
	}

	discount := Discount(coupon, subtotal)
	if discount <= 0 {
		return &Validation{Reason: RejectInvalidDiscount, Coupon: coupon}, nil
	}
	return &Validation{Valid: true, Coupon: coupon, Discount: discount}, nil
}

// Discount computes the amount a coupon takes off a subtotal, in minor units.
// Percent discounts round down. The result is clamped to the coupon's max
// discount and never exceeds the subtotal.
func Discount(coupon *models.Coupon, subtotal int) int {
	var discount int
	switch coupon.Type {
	case enums.CouponTypeFixed:
		discount = coupon.Value
	case enums.CouponTypePercent:
		discount = subtotal * coupon.Value / 100
	default:
		return 0
	}
	if coupon.MaxDiscountAmount != nil && discount > *coupon.MaxDiscountAmount {
		discount = *coupon.MaxDiscountAmount
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}

func (s *service) BestForUser(ctx context.Context, subtotal int, userEmail string) (*Validation, error) {
	candidates, err := s.repo.FindCandidatesForUser(ctx, userEmail, s.now())
	if err != nil {
		return nil, err
	}

	var best *Validation
	for i := range candidates {
		result, err := s.validateCoupon(ctx, &candidates[i], subtotal, userEmail)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			continue
		}
		if best == nil || result.Discount > best.Discount {
			best = result
			continue
		}
		if result.Discount == best.Discount && expiresSooner(result.Coupon, best.Coupon) {
			best = result
		}
	}
	if best == nil {
		return &Validation{Reason: RejectNotFound}, nil
	}
	return best, nil
}

// expiresSooner reports whether a expires before b. A coupon without an
// expiry never wins the tie-break.
func expiresSooner(a, b *models.Coupon) bool {
	if a.ExpiresAt == nil {
		return false
	}
	if b.ExpiresAt == nil {
		return true
	}
	return a.ExpiresAt.Before(*b.ExpiresAt)
}

// RecordUsage appends a usage row inside the caller's transaction. Both
// limits are re-checked there so a concurrent last use cannot slip past the
// earlier validation.
func (s *service) RecordUsage(ctx context.Context, tx *gorm.DB, coupon *models.Coupon, orderID int64, userEmail string, discount int) error {
	if coupon == nil {
		return fmt.Errorf("coupon required")
	}
	repo := s.repo.WithTx(tx)

	if coupon.UsageLimit != nil {
		used, err := repo.CountUsages(ctx, coupon.ID)
		if err != nil {
			return err
		}
		if used >= int64(*coupon.UsageLimit) {
			return pkgerrors.New(pkgerrors.CodeCouponRejected, "coupon usage limit reached").
				WithDetails(map[string]string{"reason": string(RejectUsageLimitReached)})
		}
	}
	if coupon.PerUserLimit != nil {
		used, err := repo.CountUsagesByUser(ctx, coupon.ID, userEmail)
		if err != nil {
			return err
		}
		if used >= int64(*coupon.PerUserLimit) {
			return pkgerrors.New(pkgerrors.CodeCouponRejected, "coupon per-user limit reached").
				WithDetails(map[string]string{"reason": string(RejectPerUserLimitReached)})
		}
	}

	return repo.CreateUsage(ctx, &models.CouponUsage{
		CouponID:       coupon.ID,
		OrderID:        orderID,
		UserEmail:      userEmail,
		DiscountAmount: discount,
	})
}

// CreateCouponInput captures the admin-settable coupon fields.
type CreateCouponInput struct {
	Code              string
	Type              enums.CouponType
	Value             int
	MinOrderAmount    *int
	MaxDiscountAmount *int
	UsageLimit        *int
	PerUserLimit      *int
	UserEmail         *string
	StartsAt          *time.Time
	ExpiresAt         *time.Time
	Actor             string
}

// UpdateCouponInput carries the mutable fields for an existing coupon. Nil
// pointers leave the stored value untouched.
type UpdateCouponInput struct {
	Value             *int
	MinOrderAmount    *int
	MaxDiscountAmount *int
	UsageLimit        *int
	PerUserLimit      *int
	StartsAt          *time.Time
	ExpiresAt         *time.Time
	IsActive          *bool
	Actor             string
}

func (s *service) Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		var err error
		code, err = s.generateCode(ctx)
		if err != nil {
			return nil, err
		}
	}
	if err := validateCouponFields(input.Type, input.Value, input.MinOrderAmount, input.MaxDiscountAmount, input.UsageLimit, input.PerUserLimit, input.StartsAt, input.ExpiresAt); err != nil {
		return nil, err
	}

	coupon := &models.Coupon{
		Code:              code,
		Type:              input.Type,
		Value:             input.Value,
		MinOrderAmount:    input.MinOrderAmount,
		MaxDiscountAmount: input.MaxDiscountAmount,
		UsageLimit:        input.UsageLimit,
		PerUserLimit:      input.PerUserLimit,
		UserEmail:         input.UserEmail,
		StartsAt:          input.StartsAt,
		ExpiresAt:         input.ExpiresAt,
		IsActive:          true,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, "code") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("coupon code %s already exists", code))
		}
		return nil, err
	}

	if _, err := s.audit.Record(ctx, audit.RecordEntryInput{
		Action:   enums.AuditActionCouponCreated,
		Entity:   audit.EntityCoupon,
		EntityID: fmt.Sprintf("%d", coupon.ID),
		Actor:    input.Actor,
		Payload:  audit.CouponChangedPayload{Code: coupon.Code},
	}); err != nil {
		return nil, err
	}
	return coupon, nil
}

// IssueScopedInput describes a single-use percent coupon minted for one user,
// typically in exchange for loyalty points.
type IssueScopedInput struct {
	UserEmail string
	Percent   int
	ExpiresAt time.Time
}

// IssueScoped creates a single-use percent coupon scoped to a user inside
// the caller's transaction. The caller is responsible for the audit trail.
func (s *service) IssueScoped(ctx context.Context, tx *gorm.DB, input IssueScopedInput) (*models.Coupon, error) {
	if input.UserEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user email required")
	}
	if input.Percent <= 0 || input.Percent > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid coupon percent %d", input.Percent))
	}
	repo := s.repo.WithTx(tx)

	one := 1
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}
		expiresAt := input.ExpiresAt
		coupon := &models.Coupon{
			Code:         code,
			Type:         enums.CouponTypePercent,
			Value:        input.Percent,
			UsageLimit:   &one,
			PerUserLimit: &one,
			UserEmail:    &input.UserEmail,
			ExpiresAt:    &expiresAt,
			IsActive:     true,
		}
		err = repo.Create(ctx, coupon)
		if err == nil {
			return coupon, nil
		}
		if !db.IsUniqueViolation(err, "code") {
			return nil, err
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not generate a unique coupon code")
}

func (s *service) Update(ctx context.Context, id int64, input UpdateCouponInput) (*models.Coupon, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("coupon %d not found", id))
		}
		return nil, err
	}

	if input.Value != nil {
		coupon.Value = *input.Value
	}
	if input.MinOrderAmount != nil {
		coupon.MinOrderAmount = input.MinOrderAmount
	}
	if input.MaxDiscountAmount != nil {
		coupon.MaxDiscountAmount = input.MaxDiscountAmount
	}
	if input.UsageLimit != nil {
		coupon.UsageLimit = input.UsageLimit
	}
	if input.PerUserLimit != nil {
		coupon.PerUserLimit = input.PerUserLimit
	}
	if input.StartsAt != nil {
		coupon.StartsAt = input.StartsAt
	}
	if input.ExpiresAt != nil {
		coupon.ExpiresAt = input.ExpiresAt
	}
	if input.IsActive != nil {
		coupon.IsActive = *input.IsActive
	}
	if err := validateCouponFields(coupon.Type, coupon.Value, coupon.MinOrderAmount, coupon.MaxDiscountAmount, coupon.UsageLimit, coupon.PerUserLimit, coupon.StartsAt, coupon.ExpiresAt); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, coupon); err != nil {
		return nil, err
	}
	if _, err := s.audit.Record(ctx, audit.RecordEntryInput{
		Action:   enums.AuditActionCouponUpdated,
		Entity:   audit.EntityCoupon,
		EntityID: fmt.Sprintf("%d", coupon.ID),
		Actor:    input.Actor,
		Payload:  audit.CouponChangedPayload{Code: coupon.Code},
	}); err != nil {
		return nil, err
	}
	return coupon, nil
}

// Disable soft-deletes a coupon. The row stays so usage history keeps its
// reference.
func (s *service) Disable(ctx context.Context, id int64, actor string) (*models.Coupon, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("coupon %d not found", id))
		}
		return nil, err
	}

	now := s.now()
	coupon.IsActive = false
	coupon.ExpiresAt = &now
	if err := s.repo.Update(ctx, coupon); err != nil {
		return nil, err
	}
	if _, err := s.audit.Record(ctx, audit.RecordEntryInput{
		Action:   enums.AuditActionCouponDisabled,
		Entity:   audit.EntityCoupon,
		EntityID: fmt.Sprintf("%d", coupon.ID),
		Actor:    actor,
		Payload:  audit.CouponChangedPayload{Code: coupon.Code},
	}); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *service) List(ctx context.Context, includeInactive bool) ([]models.Coupon, error) {
	return s.repo.List(ctx, includeInactive)
}

func validateCouponFields(couponType enums.CouponType, value int, minOrder, maxDiscount, usageLimit, perUserLimit *int, startsAt, expiresAt *time.Time) error {
	if !couponType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid coupon type %q", couponType))
	}
	if value <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon value must be positive")
	}
	if couponType == enums.CouponTypePercent && value > 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "percent coupon value cannot exceed 100")
	}
	if minOrder != nil && *minOrder < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min order amount cannot be negative")
	}
	if maxDiscount != nil && *maxDiscount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max discount amount cannot be negative")
	}
	if usageLimit != nil && *usageLimit <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "usage limit must be positive")
	}
	if perUserLimit != nil && *perUserLimit <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "per-user limit must be positive")
	}
	if startsAt != nil && expiresAt != nil && !startsAt.Before(*expiresAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon window must start before it expires")
	}
	return nil
}

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 10
	codeAttempts = 8
)

// generateCode produces a random unused coupon code, retrying a bounded
// number of times before giving up with a conflict.
func (s *service) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		_, err = s.repo.FindByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not generate a unique coupon code")
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
