package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/candemirel/vitrin-backend/api/responses"
	"github.com/candemirel/vitrin-backend/api/validators"
	"github.com/candemirel/vitrin-backend/internal/orders"
	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

type orderView struct {
	OrderNo            string     `json:"order_no"`
	UserEmail          string     `json:"user_email"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	TotalAmount        int        `json:"total_amount"`
	FailedReasonCode   *string    `json:"failed_reason_code,omitempty"`
	PaymentCompletedAt *time.Time `json:"payment_completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func newOrderView(o *models.Order) *orderView {
	if o == nil {
		return nil
	}
	return &orderView{
		OrderNo:            o.OrderNo,
		UserEmail:          o.UserEmail,
		Status:             o.Status.String(),
		PaymentStatus:      o.PaymentStatus.String(),
		TotalAmount:        o.TotalAmount,
		FailedReasonCode:   o.FailedReasonCode,
		PaymentCompletedAt: o.PaymentCompletedAt,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

type adminOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminOrderStatusUpdate applies an operator edit to an order status after a
// legality check against the lifecycle rules.
func AdminOrderStatusUpdate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderNo := strings.TrimSpace(chi.URLParam(r, "orderNo"))
		if orderNo == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}

		var req adminOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), orders.UpdateStatusInput{
			OrderNo: orderNo,
			Target:  target,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

type adminReclaimRequest struct {
	Minutes int `json:"minutes"`
}

// AdminOrdersReclaim runs the stale-order sweep on demand. Minutes outside
// the configured bounds are clamped, zero picks the default threshold.
func AdminOrdersReclaim(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := adminActor(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adminReclaimRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.ReclaimStale(r.Context(), req.Minutes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
