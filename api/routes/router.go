package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/candemirel/vitrin-backend/api/controllers"
	webhookcontrollers "github.com/candemirel/vitrin-backend/api/controllers/webhooks"
	"github.com/candemirel/vitrin-backend/api/middleware"
	"github.com/candemirel/vitrin-backend/internal/coupons"
	"github.com/candemirel/vitrin-backend/internal/loyalty"
	"github.com/candemirel/vitrin-backend/internal/orders"
	"github.com/candemirel/vitrin-backend/internal/payments"
	"github.com/candemirel/vitrin-backend/pkg/config"
	"github.com/candemirel/vitrin-backend/pkg/db"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP db.Pinger,
	paymentsService payments.Service,
	webhookGuard *payments.IdempotencyGuard,
	couponsService coupons.Service,
	loyaltyService loyalty.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	// The payment provider posts form-encoded callbacks here and expects a
	// bare "OK" acknowledgment, so the route stays outside the JSON API tree.
	r.Post("/webhooks/paytr", webhookcontrollers.PaytrWebhook(paymentsService, webhookGuard, logg))

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/coupons", func(r chi.Router) {
			r.Post("/validate", controllers.CouponValidate(couponsService, logg))
			r.Get("/best", controllers.CouponBest(couponsService, logg))
		})
		r.Route("/loyalty", func(r chi.Router) {
			r.Post("/redeem", controllers.LoyaltyRedeem(loyaltyService, logg))
			r.Get("/account", controllers.LoyaltyAccount(loyaltyService, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/ping", controllers.AdminPing())
		r.Route("/v1", func(r chi.Router) {
			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", controllers.AdminCouponList(couponsService, logg))
				r.Post("/", controllers.AdminCouponCreate(couponsService, logg))
				r.Put("/{couponId}", controllers.AdminCouponUpdate(couponsService, logg))
				r.Delete("/{couponId}", controllers.AdminCouponDisable(couponsService, logg))
			})
			r.Post("/loyalty/adjust", controllers.AdminLoyaltyAdjust(loyaltyService, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Post("/reclaim", controllers.AdminOrdersReclaim(ordersService, logg))
				r.Put("/{orderNo}/status", controllers.AdminOrderStatusUpdate(ordersService, logg))
			})
		})
	})

	return r
}
