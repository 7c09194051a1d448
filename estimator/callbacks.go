package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/history"
	"github.com/absmach/cohort/pkg/nn"
)

// Trainable is the view of an estimator that callbacks receive.
type Trainable interface {
	History() history.History
	Module() nn.Module
	Optimizer() nn.Optimizer
	Criterion() nn.Criterion
	// Stop ends the fit loop at the next batch or epoch boundary.
	Stop()
}

// Callback is identified by its name. It takes part in the training loop
// by implementing any of the hook interfaces below.
type Callback interface {
	Name() string
}

type TrainBeginHook interface {
	OnTrainBegin(ctx context.Context, net Trainable) error
}

type EpochBeginHook interface {
	OnEpochBegin(ctx context.Context, net Trainable, train, valid *dataset.Dataset) error
}

type BatchEndHook interface {
	OnBatchEnd(ctx context.Context, net Trainable, training bool) error
}

type EpochEndHook interface {
	OnEpochEnd(ctx context.Context, net Trainable, train, valid *dataset.Dataset) error
}

type TrainEndHook interface {
	OnTrainEnd(ctx context.Context, net Trainable) error
}

// Cloner is implemented by callbacks that keep state. Every worker of a
// run gets its own clone; callbacks that do not implement it are shared.
type Cloner interface {
	Clone() Callback
}

// Scope selects the ranks a callback runs on inside a distributed run.
type Scope uint8

const (
	RankZero Scope = iota
	AllRanks
)

// Registration binds a callback to a scope. A registration whose name
// matches a default callback replaces it.
type Registration struct {
	Callback Callback
	Scope    Scope
}

// OnRankZero registers cb on rank 0 only.
func OnRankZero(cb Callback) Registration {
	return Registration{Callback: cb, Scope: RankZero}
}

// OnAllRanks registers cb on every worker.
func OnAllRanks(cb Callback) Registration {
	return Registration{Callback: cb, Scope: AllRanks}
}

func defaultCallbacks(logger *slog.Logger) []Registration {
	return []Registration{
		OnAllRanks(&epochTimer{}),
		OnAllRanks(newPassthroughScoring("train_loss")),
		OnAllRanks(newPassthroughScoring("valid_loss")),
		OnRankZero(&printLog{logger: logger}),
	}
}

type callbackSet struct {
	all        []Callback
	trainBegin []TrainBeginHook
	epochBegin []EpochBeginHook
	batchEnd   []BatchEndHook
	epochEnd   []EpochEndHook
	trainEnd   []TrainEndHook
}

// resolveCallbacks merges user registrations into the defaults. On a
// worker, callbacks not registered for all ranks are dropped on every rank
// but 0 and a ReportHook is appended on every rank.
func resolveCallbacks(regs []Registration, logger *slog.Logger, worker bool, rank int) (*callbackSet, error) {
	merged := defaultCallbacks(logger)
	index := make(map[string]int, len(merged))
	for i, r := range merged {
		index[r.Callback.Name()] = i
	}
	seen := make(map[string]bool, len(regs))
	for _, r := range regs {
		if r.Callback == nil {
			return nil, fmt.Errorf("%w: nil callback", pkgerrors.ErrInvalidInput)
		}
		name := r.Callback.Name()
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate callback %q", pkgerrors.ErrInvalidInput, name)
		}
		seen[name] = true
		if i, ok := index[name]; ok {
			merged[i] = r
			continue
		}
		merged = append(merged, r)
	}

	set := &callbackSet{}
	for _, r := range merged {
		if worker && rank != 0 && r.Scope != AllRanks {
			continue
		}
		cb := r.Callback
		if c, ok := cb.(Cloner); ok && worker {
			cb = c.Clone()
		}
		set.add(cb)
	}
	if worker {
		set.add(NewReportHook())
	}

	return set, nil
}

func (s *callbackSet) add(cb Callback) {
	s.all = append(s.all, cb)
	if h, ok := cb.(TrainBeginHook); ok {
		s.trainBegin = append(s.trainBegin, h)
	}
	if h, ok := cb.(EpochBeginHook); ok {
		s.epochBegin = append(s.epochBegin, h)
	}
	if h, ok := cb.(BatchEndHook); ok {
		s.batchEnd = append(s.batchEnd, h)
	}
	if h, ok := cb.(EpochEndHook); ok {
		s.epochEnd = append(s.epochEnd, h)
	}
	if h, ok := cb.(TrainEndHook); ok {
		s.trainEnd = append(s.trainEnd, h)
	}
}

// Names returns the callback names in dispatch order.
func (s *callbackSet) Names() []string {
	names := make([]string, len(s.all))
	for i, cb := range s.all {
		names[i] = cb.Name()
	}

	return names
}

// epochTimer records the wall time of each epoch under "dur".
type epochTimer struct {
	begin time.Time
}

func (t *epochTimer) Name() string { return "epoch_timer" }

func (t *epochTimer) OnEpochBegin(context.Context, Trainable, *dataset.Dataset, *dataset.Dataset) error {
	t.begin = time.Now()

	return nil
}

func (t *epochTimer) OnEpochEnd(_ context.Context, net Trainable, _, _ *dataset.Dataset) error {
	net.History().Record("dur", time.Since(t.begin).Seconds())

	return nil
}

// passthroughScoring averages a per-batch loss over the epoch, weighted by
// batch size, and tracks whether it is the lowest seen so far.
type passthroughScoring struct {
	key  string
	best float64
}

func newPassthroughScoring(key string) *passthroughScoring {
	return &passthroughScoring{key: key, best: math.Inf(1)}
}

func (p *passthroughScoring) Name() string { return p.key }

func (p *passthroughScoring) OnTrainBegin(_ context.Context, net Trainable) error {
	p.best = math.Inf(1)
	for _, v := range net.History().Column(p.key) {
		if f, ok := v.(float64); ok && f < p.best {
			p.best = f
		}
	}

	return nil
}

func (p *passthroughScoring) OnEpochEnd(_ context.Context, net Trainable, _, _ *dataset.Dataset) error {
	sizeKey := p.key[:len(p.key)-len("_loss")] + "_batch_size"
	var sum, weight float64
	for _, b := range net.History().Batches() {
		loss, ok := b[p.key].(float64)
		if !ok {
			continue
		}
		n, _ := b[sizeKey].(int)
		sum += loss * float64(n)
		weight += float64(n)
	}
	if weight == 0 {
		return nil
	}
	score := sum / weight
	isBest := score < p.best
	if isBest {
		p.best = score
	}
	h := net.History()
	h.Record(p.key, score)
	h.Record(p.key+"_best", isBest)

	return nil
}

// printLog writes one line per epoch.
type printLog struct {
	logger *slog.Logger
}

func (p *printLog) Name() string { return "print_log" }

func (p *printLog) OnEpochEnd(ctx context.Context, net Trainable, _, _ *dataset.Dataset) error {
	last := net.History().Last()
	if last == nil {
		return nil
	}
	keys := make([]string, 0, len(last))
	for k := range last {
		keys = append(keys, k)
	}
	args := make([]any, 0, len(last))
	for _, k := range sortedKeys(keys, ignoredKeys()) {
		args = append(args, slog.Any(k, last[k]))
	}
	p.logger.InfoContext(ctx, "epoch completed", args...)

	return nil
}
