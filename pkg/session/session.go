// Package session carries the worker context of a distributed run. A worker
// session is attached to the context handed to each worker closure; code that
// only makes sense inside a worker probes for it with InSession.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

// DefaultDataset is the shard name used when a run was dispatched with a
// single unnamed dataset.
const DefaultDataset = "default"

type contextKey struct{}

// Metric is one reported key/value pair.
type Metric struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Report is what a worker sends to the orchestration layer at an epoch end.
// Metrics keep the order chosen by the reporting code.
type Report struct {
	Rank      int       `json:"rank"`
	Metrics   []Metric  `json:"metrics"`
	Timestamp time.Time `json:"timestamp"`
}

// Map flattens the metrics into a mapping.
func (r Report) Map() map[string]any {
	m := make(map[string]any, len(r.Metrics))
	for _, kv := range r.Metrics {
		m[kv.Key] = kv.Value
	}

	return m
}

// Reporter receives worker reports.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// Reducer synchronizes gradients between the workers of one run.
type Reducer interface {
	// Barrier blocks until every worker still in the run has arrived.
	Barrier(ctx context.Context, rank int) error
	// AllReduce replaces values with the weighted mean over the workers
	// currently inside a training pass.
	AllReduce(ctx context.Context, rank int, values []float64, weight float64) error
	// Leave marks the end of this worker's training pass.
	Leave(rank int)
	// Exit removes the worker from the run.
	Exit(rank int)
}

// Session is the per-worker view of a distributed run.
type Session struct {
	worldRank int
	localRank int
	worldSize int
	shards    map[string]*dataset.Table
	reporter  Reporter
	reducer   Reducer
}

func New(worldRank, localRank, worldSize int, shards map[string]*dataset.Table, reporter Reporter, reducer Reducer) *Session {
	return &Session{
		worldRank: worldRank,
		localRank: localRank,
		worldSize: worldSize,
		shards:    shards,
		reporter:  reporter,
		reducer:   reducer,
	}
}

func (s *Session) WorldRank() int { return s.worldRank }

func (s *Session) LocalRank() int { return s.localRank }

func (s *Session) WorldSize() int { return s.worldSize }

func (s *Session) Reducer() Reducer { return s.reducer }

// With attaches s to ctx.
func With(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached to ctx.
func FromContext(ctx context.Context) (*Session, error) {
	if ctx == nil {
		return nil, pkgerrors.ErrNoSession
	}
	s, ok := ctx.Value(contextKey{}).(*Session)
	if !ok || s == nil {
		return nil, pkgerrors.ErrNoSession
	}

	return s, nil
}

// InSession reports whether ctx belongs to a worker. It never fails.
func InSession(ctx context.Context) bool {
	_, err := FromContext(ctx)

	return err == nil
}

func WorldRank(ctx context.Context) (int, error) {
	s, err := FromContext(ctx)
	if err != nil {
		return 0, err
	}

	return s.worldRank, nil
}

func LocalRank(ctx context.Context) (int, error) {
	s, err := FromContext(ctx)
	if err != nil {
		return 0, err
	}

	return s.localRank, nil
}

func WorldSize(ctx context.Context) (int, error) {
	s, err := FromContext(ctx)
	if err != nil {
		return 0, err
	}

	return s.worldSize, nil
}

// DatasetShard returns the part of the named dataset assigned to the calling
// worker. An empty name selects DefaultDataset.
func DatasetShard(ctx context.Context, name string) (*dataset.Table, error) {
	s, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultDataset
	}
	shard, ok := s.shards[name]
	if !ok {
		return nil, fmt.Errorf("dataset shard %q: %w", name, pkgerrors.ErrNotFound)
	}

	return shard, nil
}

// Send reports metrics, in order, on behalf of the calling worker.
func Send(ctx context.Context, metrics []Metric) error {
	s, err := FromContext(ctx)
	if err != nil {
		return err
	}
	if s.reporter == nil {
		return nil
	}

	return s.reporter.Report(ctx, Report{
		Rank:      s.worldRank,
		Metrics:   metrics,
		Timestamp: time.Now(),
	})
}

// ReducerFrom returns the gradient reducer of the calling worker's run.
func ReducerFrom(ctx context.Context) (Reducer, error) {
	s, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}

	return s.reducer, nil
}
