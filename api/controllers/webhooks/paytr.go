package webhooks

import (
	"context"
	"net/http"

	"github.com/candemirel/vitrin-backend/api/responses"
	"github.com/candemirel/vitrin-backend/internal/payments"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

type paytrWebhookService interface {
	HandleNotification(ctx context.Context, notification payments.Notification) error
}

type redeliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// PaytrWebhook handles PayTR payment result callbacks. The provider expects
// a plain "OK" body; any other response makes it redeliver the notification.
// Redeliveries of an already-marked event are acked without touching the
// database; an unidentifiable notification skips the guard and is rejected
// downstream.
func PaytrWebhook(svc paytrWebhookService, guard redeliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		if err := r.ParseForm(); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid form body"))
			return
		}

		notification := payments.ParseNotification(r.PostForm)
		if logg != nil {
			ctx = logg.WithField(ctx, "merchant_oid", notification.MerchantOid)
		}

		eventID := notification.EventID()
		if guard != nil && eventID != "" {
			seen, err := guard.CheckAndMark(ctx, eventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if seen {
				if logg != nil {
					logg.Info(ctx, "duplicate webhook delivery acked")
				}
				writeAck(w)
				return
			}
		}

		if err := svc.HandleNotification(ctx, notification); err != nil {
			// Unmark so the provider's redelivery gets a fresh attempt.
			if guard != nil && eventID != "" {
				if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
					logg.Error(ctx, "release webhook idempotency mark", delErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		writeAck(w)
	}
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
