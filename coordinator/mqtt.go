package coordinator

import (
	"context"
	"log/slog"

	"github.com/absmach/cohort/pkg/mqtt"
)

func (svc *service) Subscribe(ctx context.Context) error {
	if svc.pubsub == nil {
		return nil
	}

	return svc.pubsub.Subscribe(ctx, svc.topics.StopFilter(), svc.handleStop(ctx))
}

func (svc *service) handleStop(ctx context.Context) mqtt.Handler {
	return func(topic string, _ map[string]any) error {
		id, event, ok := svc.topics.ParseModel(topic)
		if !ok || event != mqtt.EventStop {
			return nil
		}
		if err := svc.StopFit(ctx, id); err != nil {
			svc.logger.WarnContext(ctx, "failed to stop fit", slog.String("model.id", id), slog.Any("error", err))

			return err
		}
		svc.logger.InfoContext(ctx, "stop requested", slog.String("model.id", id))

		return nil
	}
}

func (svc *service) publish(ctx context.Context, id, event string, msg any) {
	if svc.pubsub == nil {
		return
	}
	topic := svc.topics.Model(id, event)
	if err := svc.pubsub.Publish(ctx, topic, msg); err != nil {
		svc.logger.WarnContext(ctx, "failed to publish event", slog.String("topic", topic), slog.Any("error", err))
	}
}
