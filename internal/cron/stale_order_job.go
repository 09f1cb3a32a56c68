package cron

import (
	"context"
	"fmt"

	"github.com/candemirel/vitrin-backend/internal/orders"
	"github.com/candemirel/vitrin-backend/pkg/logger"
	"github.com/candemirel/vitrin-backend/pkg/metrics"
)

type staleOrderReclaimer interface {
	ReclaimStale(ctx context.Context, minutes int) (*orders.ReclaimSummary, error)
}

// StaleOrderJobParams configure the stale order sweep.
type StaleOrderJobParams struct {
	Logger    *logger.Logger
	Reclaimer staleOrderReclaimer
	Metrics   *metrics.CronJobMetrics
	// Minutes of zero lets the reclaimer fall back to its configured default.
	Minutes int
}

// NewStaleOrderJob builds the cron job that releases orders whose payment
// never arrived.
func NewStaleOrderJob(params StaleOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reclaimer == nil {
		return nil, fmt.Errorf("order reclaimer required")
	}
	return &staleOrderJob{
		logg:      params.Logger,
		reclaimer: params.Reclaimer,
		metrics:   params.Metrics,
		minutes:   params.Minutes,
	}, nil
}

type staleOrderJob struct {
	logg      *logger.Logger
	reclaimer staleOrderReclaimer
	metrics   *metrics.CronJobMetrics
	minutes   int
}

func (j *staleOrderJob) Name() string { return "stale-order-reclaim" }

func (j *staleOrderJob) Run(ctx context.Context) error {
	summary, err := j.reclaimer.ReclaimStale(ctx, j.minutes)
	// A sweep that hit errors still releases the orders it could; report
	// those before surfacing the failure.
	if summary != nil {
		if j.metrics != nil {
			j.metrics.AddReleased(j.Name(), summary.Released)
		}
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"threshold_minutes": summary.ThresholdMinutes,
			"scanned":           summary.Scanned,
			"released":          summary.Released,
		})
		j.logg.Info(logCtx, "stale order sweep finished")
	}
	if err != nil {
		return fmt.Errorf("reclaim stale orders: %w", err)
	}
	return nil
}
