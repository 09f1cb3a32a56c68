package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/candemirel/vitrin-backend/api/responses"
	"github.com/candemirel/vitrin-backend/api/validators"
	"github.com/candemirel/vitrin-backend/internal/coupons"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

const adminActorHeader = "X-Admin-Actor"

func adminActor(r *http.Request) (string, error) {
	actor := strings.TrimSpace(r.Header.Get(adminActorHeader))
	if actor == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "admin actor header is required").
			WithDetails(map[string]any{"header": adminActorHeader})
	}
	return actor, nil
}

func couponIDParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "couponId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon id")
	}
	return id, nil
}

type adminCouponCreateRequest struct {
	Code              string     `json:"code"`
	Type              string     `json:"type" validate:"required"`
	Value             int        `json:"value" validate:"required,min=1"`
	MinOrderAmount    *int       `json:"min_order_amount"`
	MaxDiscountAmount *int       `json:"max_discount_amount"`
	UsageLimit        *int       `json:"usage_limit"`
	PerUserLimit      *int       `json:"per_user_limit"`
	UserEmail         *string    `json:"user_email"`
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
}

func AdminCouponCreate(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adminCouponCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		couponType, err := enums.ParseCouponType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon type"))
			return
		}

		coupon, err := svc.Create(r.Context(), coupons.CreateCouponInput{
			Code:              req.Code,
			Type:              couponType,
			Value:             req.Value,
			MinOrderAmount:    req.MinOrderAmount,
			MaxDiscountAmount: req.MaxDiscountAmount,
			UsageLimit:        req.UsageLimit,
			PerUserLimit:      req.PerUserLimit,
			UserEmail:         req.UserEmail,
			StartsAt:          req.StartsAt,
			ExpiresAt:         req.ExpiresAt,
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCouponView(coupon))
	}
}

type adminCouponUpdateRequest struct {
	Value             *int       `json:"value"`
	MinOrderAmount    *int       `json:"min_order_amount"`
	MaxDiscountAmount *int       `json:"max_discount_amount"`
	UsageLimit        *int       `json:"usage_limit"`
	PerUserLimit      *int       `json:"per_user_limit"`
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	IsActive          *bool      `json:"is_active"`
}

func AdminCouponUpdate(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := couponIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adminCouponUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Update(r.Context(), id, coupons.UpdateCouponInput{
			Value:             req.Value,
			MinOrderAmount:    req.MinOrderAmount,
			MaxDiscountAmount: req.MaxDiscountAmount,
			UsageLimit:        req.UsageLimit,
			PerUserLimit:      req.PerUserLimit,
			StartsAt:          req.StartsAt,
			ExpiresAt:         req.ExpiresAt,
			IsActive:          req.IsActive,
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCouponView(coupon))
	}
}

// AdminCouponDisable soft-deletes a coupon: it stays on record but can no
// longer be applied.
func AdminCouponDisable(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := couponIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Disable(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCouponView(coupon))
	}
}

func AdminCouponList(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeInactive := r.URL.Query().Get("include_inactive") == "true"

		list, err := svc.List(r.Context(), includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]*couponView, 0, len(list))
		for i := range list {
			views = append(views, newCouponView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}
