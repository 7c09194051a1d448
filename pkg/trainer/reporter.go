package trainer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/session"
)

var (
	_ session.Reporter = (*Collector)(nil)
	_ session.Reporter = (*LogReporter)(nil)
	_ session.Reporter = (*MQTTReporter)(nil)
	_ session.Reporter = Reporters(nil)
	_ session.Reporter = (*bestEffort)(nil)
)

// Collector keeps every report in memory.
type Collector struct {
	mu      sync.Mutex
	reports []session.Report
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Report(_ context.Context, r session.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)

	return nil
}

func (c *Collector) Reports() []session.Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.reports)
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = nil
}

// LogReporter writes each report as one structured log line.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (l *LogReporter) Report(ctx context.Context, r session.Report) error {
	args := make([]any, 0, len(r.Metrics)+1)
	args = append(args, slog.Int("ml.rank", r.Rank))
	for _, m := range r.Metrics {
		args = append(args, slog.Any(m.Key, m.Value))
	}
	l.logger.InfoContext(ctx, "epoch report", args...)

	return nil
}

// MQTTReporter publishes each report to a topic.
type MQTTReporter struct {
	pubsub mqtt.PubSub
	topic  string
}

func NewMQTTReporter(pubsub mqtt.PubSub, topic string) *MQTTReporter {
	return &MQTTReporter{pubsub: pubsub, topic: topic}
}

func (m *MQTTReporter) Report(ctx context.Context, r session.Report) error {
	return m.pubsub.Publish(ctx, m.topic, r)
}

type bestEffort struct {
	rep    session.Reporter
	logger *slog.Logger
}

// BestEffort wraps a reporter whose failures must not fail the fit. Errors
// are logged and dropped.
func BestEffort(rep session.Reporter, logger *slog.Logger) session.Reporter {
	if logger == nil {
		logger = slog.Default()
	}

	return &bestEffort{rep: rep, logger: logger}
}

func (b *bestEffort) Report(ctx context.Context, r session.Report) error {
	if err := b.rep.Report(ctx, r); err != nil {
		b.logger.WarnContext(ctx, "dropped epoch report", slog.Int("ml.rank", r.Rank), slog.Any("error", err))
	}

	return nil
}

// Reporters fans a report out to every reporter in order.
type Reporters []session.Reporter

func (rs Reporters) Report(ctx context.Context, r session.Report) error {
	var errs []error
	for _, rep := range rs {
		if rep == nil {
			continue
		}
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
