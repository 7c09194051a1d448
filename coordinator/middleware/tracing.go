package middleware

import (
	"context"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func record(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (tm *tracing) Fit(ctx context.Context, req coordinator.FitRequest) (resp model.Model, err error) {
	ctx, span := tm.tracer.Start(ctx, "fit", trace.WithAttributes(
		attribute.String("model.name", req.Name),
		attribute.String("label", req.Label),
		attribute.Int("data.samples", req.Data.Len()),
		attribute.Int("num_workers", req.Trainer.NumWorkers),
	))
	defer span.End()

	resp, err = tm.svc.Fit(ctx, req)
	span.SetAttributes(attribute.String("model.id", resp.ID))
	record(span, err)

	return resp, err
}

func (tm *tracing) GetModel(ctx context.Context, id string) (resp model.Model, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-model", trace.WithAttributes(
		attribute.String("model.id", id),
	))
	defer span.End()

	return tm.svc.GetModel(ctx, id)
}

func (tm *tracing) ListModels(ctx context.Context, offset, limit uint64) (resp model.ModelsPage, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-models", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListModels(ctx, offset, limit)
}

func (tm *tracing) DeleteModel(ctx context.Context, id string) error {
	ctx, span := tm.tracer.Start(ctx, "delete-model", trace.WithAttributes(
		attribute.String("model.id", id),
	))
	defer span.End()

	return tm.svc.DeleteModel(ctx, id)
}

func (tm *tracing) StopFit(ctx context.Context, id string) error {
	ctx, span := tm.tracer.Start(ctx, "stop-fit", trace.WithAttributes(
		attribute.String("model.id", id),
	))
	defer span.End()

	return tm.svc.StopFit(ctx, id)
}

func (tm *tracing) PredictProba(ctx context.Context, id string, x *dataset.Table) (resp [][]float64, err error) {
	ctx, span := tm.tracer.Start(ctx, "predict-proba", trace.WithAttributes(
		attribute.String("model.id", id),
		attribute.Int("data.samples", x.Len()),
	))
	defer span.End()

	resp, err = tm.svc.PredictProba(ctx, id, x)
	record(span, err)

	return resp, err
}

func (tm *tracing) Predict(ctx context.Context, id string, x *dataset.Table) (resp []int, err error) {
	ctx, span := tm.tracer.Start(ctx, "predict", trace.WithAttributes(
		attribute.String("model.id", id),
		attribute.Int("data.samples", x.Len()),
	))
	defer span.End()

	resp, err = tm.svc.Predict(ctx, id, x)
	record(span, err)

	return resp, err
}

func (tm *tracing) Reports(ctx context.Context, id string) (resp []model.Report, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-reports", trace.WithAttributes(
		attribute.String("model.id", id),
	))
	defer span.End()

	return tm.svc.Reports(ctx, id)
}

func (tm *tracing) Subscribe(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "subscribe")
	defer span.End()

	return tm.svc.Subscribe(ctx)
}

func (tm *tracing) Shutdown(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "shutdown")
	defer span.End()

	return tm.svc.Shutdown(ctx)
}
