package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/candemirel/vitrin-backend/api/responses"
	"github.com/candemirel/vitrin-backend/pkg/config"
	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vitrin-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when both backing stores answer a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vitrin-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		failed := false

		if dbP == nil {
			checks["db"] = "not configured"
			failed = true
		} else if err := dbP.Ping(ctx); err != nil {
			checks["db"] = err.Error()
			failed = true
		} else {
			checks["db"] = "ok"
		}

		if redisP == nil {
			checks["redis"] = "not configured"
			failed = true
		} else if err := redisP.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			failed = true
		} else {
			checks["redis"] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
