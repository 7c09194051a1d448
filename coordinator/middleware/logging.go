package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/model"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Fit(ctx context.Context, req coordinator.FitRequest) (resp model.Model, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("ml.operation", "fit"),
			slog.Group("model",
				slog.String("id", resp.ID),
				slog.String("name", resp.Name),
			),
			slog.Int("data.samples", req.Data.Len()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Fit model failed", args...)

			return
		}
		lm.logger.Info("Fit model completed successfully", args...)
	}(time.Now())

	return lm.svc.Fit(ctx, req)
}

func (lm *loggingMiddleware) GetModel(ctx context.Context, id string) (resp model.Model, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("model",
				slog.String("id", id),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get model failed", args...)

			return
		}
		lm.logger.Info("Get model completed successfully", args...)
	}(time.Now())

	return lm.svc.GetModel(ctx, id)
}

func (lm *loggingMiddleware) ListModels(ctx context.Context, offset, limit uint64) (resp model.ModelsPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List models failed", args...)

			return
		}
		lm.logger.Info("List models completed successfully", args...)
	}(time.Now())

	return lm.svc.ListModels(ctx, offset, limit)
}

func (lm *loggingMiddleware) DeleteModel(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("model",
				slog.String("id", id),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Delete model failed", args...)

			return
		}
		lm.logger.Info("Delete model completed successfully", args...)
	}(time.Now())

	return lm.svc.DeleteModel(ctx, id)
}

func (lm *loggingMiddleware) StopFit(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("model",
				slog.String("id", id),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Stop fit failed", args...)

			return
		}
		lm.logger.Info("Stop fit completed successfully", args...)
	}(time.Now())

	return lm.svc.StopFit(ctx, id)
}

func (lm *loggingMiddleware) PredictProba(ctx context.Context, id string, x *dataset.Table) (resp [][]float64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("ml.operation", "predict_proba"),
			slog.Group("model",
				slog.String("id", id),
			),
			slog.Int("data.samples", x.Len()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Predict probabilities failed", args...)

			return
		}
		lm.logger.Info("Predict probabilities completed successfully", args...)
	}(time.Now())

	return lm.svc.PredictProba(ctx, id, x)
}

func (lm *loggingMiddleware) Predict(ctx context.Context, id string, x *dataset.Table) (resp []int, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("ml.operation", "predict"),
			slog.Group("model",
				slog.String("id", id),
			),
			slog.Int("data.samples", x.Len()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Predict failed", args...)

			return
		}
		lm.logger.Info("Predict completed successfully", args...)
	}(time.Now())

	return lm.svc.Predict(ctx, id, x)
}

func (lm *loggingMiddleware) Reports(ctx context.Context, id string) (resp []model.Report, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("model",
				slog.String("id", id),
			),
			slog.Int("reports", len(resp)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List reports failed", args...)

			return
		}
		lm.logger.Info("List reports completed successfully", args...)
	}(time.Now())

	return lm.svc.Reports(ctx, id)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe failed", args...)

			return
		}
		lm.logger.Info("Subscribe completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx)
}

func (lm *loggingMiddleware) Shutdown(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Shutdown failed", args...)

			return
		}
		lm.logger.Info("Shutdown completed successfully", args...)
	}(time.Now())

	return lm.svc.Shutdown(ctx)
}
