package middleware

import (
	"context"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/model"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) Fit(ctx context.Context, req coordinator.FitRequest) (model.Model, error) {
	defer mm.observe("fit", time.Now())

	return mm.svc.Fit(ctx, req)
}

func (mm *metricsMiddleware) GetModel(ctx context.Context, id string) (model.Model, error) {
	defer mm.observe("get-model", time.Now())

	return mm.svc.GetModel(ctx, id)
}

func (mm *metricsMiddleware) ListModels(ctx context.Context, offset, limit uint64) (model.ModelsPage, error) {
	defer mm.observe("list-models", time.Now())

	return mm.svc.ListModels(ctx, offset, limit)
}

func (mm *metricsMiddleware) DeleteModel(ctx context.Context, id string) error {
	defer mm.observe("delete-model", time.Now())

	return mm.svc.DeleteModel(ctx, id)
}

func (mm *metricsMiddleware) StopFit(ctx context.Context, id string) error {
	defer mm.observe("stop-fit", time.Now())

	return mm.svc.StopFit(ctx, id)
}

func (mm *metricsMiddleware) PredictProba(ctx context.Context, id string, x *dataset.Table) ([][]float64, error) {
	defer mm.observe("predict-proba", time.Now())

	return mm.svc.PredictProba(ctx, id, x)
}

func (mm *metricsMiddleware) Predict(ctx context.Context, id string, x *dataset.Table) ([]int, error) {
	defer mm.observe("predict", time.Now())

	return mm.svc.Predict(ctx, id, x)
}

func (mm *metricsMiddleware) Reports(ctx context.Context, id string) ([]model.Report, error) {
	defer mm.observe("list-reports", time.Now())

	return mm.svc.Reports(ctx, id)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context) error {
	defer mm.observe("subscribe", time.Now())

	return mm.svc.Subscribe(ctx)
}

func (mm *metricsMiddleware) Shutdown(ctx context.Context) error {
	defer mm.observe("shutdown", time.Now())

	return mm.svc.Shutdown(ctx)
}
