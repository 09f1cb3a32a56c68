package controllers

import (
	"net/http"
	"time"

	"github.com/candemirel/vitrin-backend/api/responses"
	"github.com/candemirel/vitrin-backend/api/validators"
	"github.com/candemirel/vitrin-backend/internal/loyalty"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

type loyaltyAccountView struct {
	UserEmail     string `json:"user_email"`
	PointsBalance int    `json:"points_balance"`
	TotalEarned   int    `json:"total_earned"`
	TotalRedeemed int    `json:"total_redeemed"`
	Tier          string `json:"tier"`
}

func newLoyaltyAccountView(a *models.LoyaltyAccount) *loyaltyAccountView {
	if a == nil {
		return nil
	}
	return &loyaltyAccountView{
		UserEmail:     a.UserEmail,
		PointsBalance: a.PointsBalance,
		TotalEarned:   a.TotalEarned,
		TotalRedeemed: a.TotalRedeemed,
		Tier:          a.Tier.String(),
	}
}

type redeemView struct {
	CouponCode string              `json:"coupon_code"`
	Percent    int                 `json:"percent"`
	ExpiresAt  time.Time           `json:"expires_at"`
	Account    *loyaltyAccountView `json:"account"`
}

type loyaltyRedeemRequest struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	Points    int    `json:"points" validate:"required,min=1"`
}

// LoyaltyRedeem exchanges a fixed points denomination for a single-use
// percent-off coupon.
func LoyaltyRedeem(svc loyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loyaltyRedeemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeem(r.Context(), loyalty.RedeemInput{
			UserEmail: req.UserEmail,
			Points:    req.Points,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redeemView{
			CouponCode: result.CouponCode,
			Percent:    result.Percent,
			ExpiresAt:  result.ExpiresAt,
			Account:    newLoyaltyAccountView(result.Account),
		})
	}
}

// LoyaltyAccount returns the balance projection for a user. Users without
// any loyalty history get a zeroed bronze account.
func LoyaltyAccount(svc loyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userEmail, err := validators.ParseQueryEmail(r, "userEmail")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.Account(r.Context(), userEmail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLoyaltyAccountView(account))
	}
}
