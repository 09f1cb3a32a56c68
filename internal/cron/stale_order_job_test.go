package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/candemirel/vitrin-backend/internal/orders"
	"github.com/candemirel/vitrin-backend/pkg/logger"
	"github.com/candemirel/vitrin-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func fetchCronCounter(mfs []*dto.MetricFamily, name, job string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					return metric.GetCounter().GetValue(), nil
				}
			}
		}
	}
	return 0, errors.New("metric not found")
}

type fakeReclaimer struct {
	summary *orders.ReclaimSummary
	err     error
	minutes []int
}

func (f *fakeReclaimer) ReclaimStale(ctx context.Context, minutes int) (*orders.ReclaimSummary, error) {
	f.minutes = append(f.minutes, minutes)
	return f.summary, f.err
}

func TestStaleOrderJobRun(t *testing.T) {
	reclaimer := &fakeReclaimer{
		summary: &orders.ReclaimSummary{
			ThresholdMinutes: 30,
			Scanned:          3,
			Released:         2,
			ReleasedOrderNos: []string{"10000000001", "10000000002"},
		},
	}
	reg := prometheus.NewRegistry()
	jobMetrics := metrics.NewCronJobMetrics(reg)

	job, err := NewStaleOrderJob(StaleOrderJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Reclaimer: reclaimer,
		Metrics:   jobMetrics,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "stale-order-reclaim" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if len(reclaimer.minutes) != 1 || reclaimer.minutes[0] != 0 {
		t.Fatalf("expected one sweep with default threshold, got %v", reclaimer.minutes)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	released, err := fetchCronCounter(mfs, "job_orders_released", job.Name())
	if err != nil {
		t.Fatalf("fetch released counter: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected released=2, got %f", released)
	}
}

func TestStaleOrderJobRecordsPartialSweep(t *testing.T) {
	reclaimer := &fakeReclaimer{
		summary: &orders.ReclaimSummary{
			ThresholdMinutes: 30,
			Scanned:          2,
			Released:         1,
			ReleasedOrderNos: []string{"10000000001"},
		},
		err: errors.New("reclaim order 2: boom"),
	}
	reg := prometheus.NewRegistry()
	jobMetrics := metrics.NewCronJobMetrics(reg)

	job, err := NewStaleOrderJob(StaleOrderJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Reclaimer: reclaimer,
		Metrics:   jobMetrics,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	released, err := fetchCronCounter(mfs, "job_orders_released", job.Name())
	if err != nil {
		t.Fatalf("fetch released counter: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected released=1 from partial sweep, got %f", released)
	}
}

func TestStaleOrderJobRunError(t *testing.T) {
	reclaimer := &fakeReclaimer{err: errors.New("boom")}
	job, err := NewStaleOrderJob(StaleOrderJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Reclaimer: reclaimer,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}
}
