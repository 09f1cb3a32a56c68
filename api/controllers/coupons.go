package controllers

import (
	"net/http"
	"time"

	"github.com/candemirel/vitrin-backend/api/responses"
	"github.com/candemirel/vitrin-backend/api/validators"
	"github.com/candemirel/vitrin-backend/internal/coupons"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

// couponView is the public projection of a coupon row.
type couponView struct {
	ID                int64      `json:"id"`
	Code              string     `json:"code"`
	Type              string     `json:"type"`
	Value             int        `json:"value"`
	MinOrderAmount    *int       `json:"min_order_amount,omitempty"`
	MaxDiscountAmount *int       `json:"max_discount_amount,omitempty"`
	UsageLimit        *int       `json:"usage_limit,omitempty"`
	PerUserLimit      *int       `json:"per_user_limit,omitempty"`
	UserEmail         *string    `json:"user_email,omitempty"`
	StartsAt          *time.Time `json:"starts_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newCouponView(c *models.Coupon) *couponView {
	if c == nil {
		return nil
	}
	return &couponView{
		ID:                c.ID,
		Code:              c.Code,
		Type:              c.Type.String(),
		Value:             c.Value,
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
		UsageLimit:        c.UsageLimit,
		PerUserLimit:      c.PerUserLimit,
		UserEmail:         c.UserEmail,
		StartsAt:          c.StartsAt,
		ExpiresAt:         c.ExpiresAt,
		IsActive:          c.IsActive,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

type validationView struct {
	Valid    bool                 `json:"valid"`
	Reason   coupons.RejectReason `json:"reason,omitempty"`
	Coupon   *couponView          `json:"coupon,omitempty"`
	Discount int                  `json:"discount"`
}

func newValidationView(v *coupons.Validation) validationView {
	return validationView{
		Valid:    v.Valid,
		Reason:   v.Reason,
		Coupon:   newCouponView(v.Coupon),
		Discount: v.Discount,
	}
}

type couponValidateRequest struct {
	Code      string `json:"code" validate:"required"`
	Subtotal  int    `json:"subtotal" validate:"min=0"`
	UserEmail string `json:"user_email" validate:"required,email"`
}

// CouponValidate checks one code against a subtotal. A rejected coupon is a
// 200 with valid=false, not an error.
func CouponValidate(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req couponValidateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		validation, err := svc.Validate(r.Context(), req.Code, req.Subtotal, req.UserEmail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newValidationView(validation))
	}
}

// CouponBest picks the highest-discount coupon available to a user.
func CouponBest(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userEmail, err := validators.ParseQueryEmail(r, "userEmail")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subtotal, err := validators.ParseQueryInt(r, "subtotal", 0, 0, 1<<31-1)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		validation, err := svc.BestForUser(r.Context(), subtotal, userEmail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newValidationView(validation))
	}
}
