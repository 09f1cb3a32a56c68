package controllers

import (
	"net/http"

	"github.com/candemirel/vitrin-backend/api/responses"
	"github.com/candemirel/vitrin-backend/api/validators"
	"github.com/candemirel/vitrin-backend/internal/loyalty"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

type adminLoyaltyAdjustRequest struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	Delta     int    `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// AdminLoyaltyAdjust applies a manual points correction to a user account.
func AdminLoyaltyAdjust(svc loyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adminLoyaltyAdjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.AdminAdjust(r.Context(), loyalty.AdjustInput{
			UserEmail: req.UserEmail,
			Delta:     req.Delta,
			Reason:    req.Reason,
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLoyaltyAccountView(account))
	}
}
