package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	reports []session.Report
}

func (r *recorder) Report(_ context.Context, rep session.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)

	return nil
}

func TestInSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  context.Context
		want bool
	}{
		{name: "plain context", ctx: context.Background(), want: false},
		{name: "nil context", ctx: nil, want: false},
		{name: "worker context", ctx: session.With(context.Background(), session.New(0, 0, 1, nil, nil, nil)), want: true},
		{name: "nil session", ctx: session.With(context.Background(), nil), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, session.InSession(tt.ctx))
			})
		})
	}
}

func TestPrimitivesOutsideSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := session.WorldRank(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNoSession)
	_, err = session.LocalRank(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNoSession)
	_, err = session.DatasetShard(ctx, "x")
	assert.ErrorIs(t, err, pkgerrors.ErrNoSession)
	err = session.Send(ctx, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrNoSession)
}

func TestSessionPrimitives(t *testing.T) {
	t.Parallel()

	tbl, err := dataset.NewTable([]string{"a"}, [][]float64{{1}, {2}})
	require.NoError(t, err)

	rec := &recorder{}
	s := session.New(2, 1, 4, map[string]*dataset.Table{session.DefaultDataset: tbl}, rec, nil)
	ctx := session.With(context.Background(), s)

	rank, err := session.WorldRank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	local, err := session.LocalRank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, local)

	size, err := session.WorldSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, size)

	shard, err := session.DatasetShard(ctx, "")
	require.NoError(t, err)
	assert.Same(t, tbl, shard)

	_, err = session.DatasetShard(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	metrics := []session.Metric{{Key: "epoch", Value: 1}, {Key: "loss", Value: 0.5}}
	require.NoError(t, session.Send(ctx, metrics))
	require.Len(t, rec.reports, 1)
	assert.Equal(t, 2, rec.reports[0].Rank)
	assert.Equal(t, metrics, rec.reports[0].Metrics)
	assert.Equal(t, map[string]any{"epoch": 1, "loss": 0.5}, rec.reports[0].Map())
}

type nopReducer struct{}

func (nopReducer) Barrier(context.Context, int) error                       { return nil }
func (nopReducer) AllReduce(context.Context, int, []float64, float64) error { return nil }
func (nopReducer) Leave(int)                                                {}
func (nopReducer) Exit(int)                                                 {}

func TestReducerFrom(t *testing.T) {
	t.Parallel()

	_, err := session.ReducerFrom(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrNoSession)

	r := nopReducer{}
	ctx := session.With(context.Background(), session.New(0, 0, 1, nil, nil, r))
	got, err := session.ReducerFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}
