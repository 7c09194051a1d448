package estimator

import (
	"context"
	"slices"
	"strings"

	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/history"
	"github.com/absmach/cohort/pkg/session"
)

const (
	epochKey    = "epoch"
	durationKey = "dur"
	eventPrefix = "event_"
	bestSuffix  = "_best"
)

var _ EpochEndHook = (*ReportHook)(nil)

// ReportHook sends the last history record of every epoch to the session
// reporter. Outside a session it does nothing.
type ReportHook struct {
	ignored map[string]struct{}
}

// NewReportHook ignores "batches" and the given keys.
func NewReportHook(ignored ...string) *ReportHook {
	set := ignoredKeys()
	for _, k := range ignored {
		set[k] = struct{}{}
	}

	return &ReportHook{ignored: set}
}

func (h *ReportHook) Name() string { return "report" }

func (h *ReportHook) Clone() Callback {
	return &ReportHook{ignored: h.ignored}
}

// SortedKeys orders keys for reporting: "epoch" first, then the plain keys
// ascending, then "event_" keys ascending, then "dur". Ignored keys and
// keys ending in "_best" are dropped.
func (h *ReportHook) SortedKeys(keys []string) []string {
	return sortedKeys(keys, h.ignored)
}

func (h *ReportHook) OnEpochEnd(ctx context.Context, net Trainable, _, _ *dataset.Dataset) error {
	if !session.InSession(ctx) {
		return nil
	}
	last := net.History().Last()
	if last == nil {
		return nil
	}
	keys := make([]string, 0, len(last))
	for k := range last {
		keys = append(keys, k)
	}
	ordered := h.SortedKeys(keys)
	metrics := make([]session.Metric, 0, len(ordered))
	for _, k := range ordered {
		metrics = append(metrics, session.Metric{Key: k, Value: last[k]})
	}

	return session.Send(ctx, metrics)
}

func ignoredKeys() map[string]struct{} {
	return map[string]struct{}{history.BatchesKey: {}}
}

func sortedKeys(keys []string, ignored map[string]struct{}) []string {
	var (
		hasEpoch, hasDur bool
		plain, events    []string
	)
	for _, k := range keys {
		if _, ok := ignored[k]; ok {
			continue
		}
		switch {
		case k == epochKey:
			hasEpoch = true
		case k == durationKey:
			hasDur = true
		case strings.HasSuffix(k, bestSuffix):
		case strings.HasPrefix(k, eventPrefix):
			events = append(events, k)
		default:
			plain = append(plain, k)
		}
	}
	slices.Sort(plain)
	slices.Sort(events)

	out := make([]string, 0, len(plain)+len(events)+2)
	if hasEpoch {
		out = append(out, epochKey)
	}
	out = append(out, plain...)
	out = append(out, events...)
	if hasDur {
		out = append(out, durationKey)
	}

	return out
}
