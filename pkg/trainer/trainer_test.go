package trainer_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	mqttmocks "github.com/absmach/cohort/pkg/mqtt/mocks"
	"github.com/absmach/cohort/pkg/session"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/absmach/cohort/pkg/trainer/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errWork = errors.New("work failed")

func TestScope(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc        string
		startErr    error
		shutdownErr error
		fn          func(context.Context) error
		shutdowns   int
		err         error
		panics      bool
	}{
		{
			desc:      "success",
			fn:        func(context.Context) error { return nil },
			shutdowns: 1,
		},
		{
			desc:      "work fails",
			fn:        func(context.Context) error { return errWork },
			shutdowns: 1,
			err:       errWork,
		},
		{
			desc:      "work panics",
			fn:        func(context.Context) error { panic("boom") },
			shutdowns: 1,
			panics:    true,
		},
		{
			desc:     "start fails",
			startErr: pkgerrors.ErrAlreadyStarted,
			fn:       func(context.Context) error { return nil },
			err:      pkgerrors.ErrAlreadyStarted,
		},
		{
			desc:        "shutdown fails",
			shutdownErr: pkgerrors.ErrNotStarted,
			fn:          func(context.Context) error { return errWork },
			shutdowns:   1,
			err:         pkgerrors.ErrNotStarted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			tr := new(mocks.Trainer)
			tr.On("Start", mock.Anything, mock.Anything).Return(tc.startErr)
			tr.On("Shutdown", mock.Anything).Return(tc.shutdownErr)

			run := func() error {
				return trainer.Scope(context.Background(), tr, nil, tc.fn)
			}
			if tc.panics {
				assert.Panics(t, func() { _ = run() })
			} else {
				err := run()
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)
				} else {
					assert.NoError(t, err)
				}
			}
			tr.AssertNumberOfCalls(t, "Shutdown", tc.shutdowns)
		})
	}
}

func table(t *testing.T, n int) *dataset.Table {
	t.Helper()

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{float64(i)}
	}
	tbl, err := dataset.NewTable([]string{"x"}, rows)
	require.NoError(t, err)

	return tbl
}

func started(t *testing.T, workers int, opts ...trainer.Option) *trainer.Local {
	t.Helper()

	l, err := trainer.NewLocal(trainer.Config{NumWorkers: workers}, opts...)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background(), nil))
	t.Cleanup(func() { _ = l.Shutdown(context.Background()) })

	return l
}

func TestLocalRun(t *testing.T) {
	t.Parallel()

	l := started(t, 3)
	assert.Equal(t, trainer.BackendDDP, l.Backend())

	results, err := l.Run(context.Background(), func(ctx context.Context, config map[string]any) (trainer.Result, error) {
		rank, err := session.WorldRank(ctx)
		if err != nil {
			return nil, err
		}
		size, err := session.WorldSize(ctx)
		if err != nil {
			return nil, err
		}
		shard, err := session.DatasetShard(ctx, "train")
		if err != nil {
			return nil, err
		}
		config["mutated"] = true
		if rank != 0 {
			return nil, nil
		}

		return trainer.Result{"rows": shard.Len(), "size": size, "label": config["label"]}, nil
	}, map[string]any{"label": "y"}, map[string]*dataset.Table{"train": table(t, 7)})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, trainer.Result{"rows": 3, "size": 3, "label": "y"}, results[0])
	assert.Equal(t, trainer.Result{}, results[1])
	assert.Equal(t, trainer.Result{}, results[2])
}

func TestLocalRunFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		fn   trainer.Func
	}{
		{
			desc: "worker error aborts peers waiting at the barrier",
			fn: func(ctx context.Context, _ map[string]any) (trainer.Result, error) {
				s, err := session.FromContext(ctx)
				if err != nil {
					return nil, err
				}
				if s.WorldRank() == 1 {
					return nil, errWork
				}

				return nil, s.Reducer().Barrier(ctx, s.WorldRank())
			},
		},
		{
			desc: "worker panic",
			fn: func(ctx context.Context, _ map[string]any) (trainer.Result, error) {
				if rank, _ := session.WorldRank(ctx); rank == 0 {
					panic("boom")
				}

				return nil, nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			l := started(t, 2)
			_, err := l.Run(context.Background(), tc.fn, nil, nil)
			assert.ErrorIs(t, err, pkgerrors.ErrWorkerFailed)
		})
	}
}

func TestLocalLifecycle(t *testing.T) {
	t.Parallel()

	_, err := trainer.NewLocal(trainer.Config{})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	l, err := trainer.NewLocal(trainer.Config{NumWorkers: 2, Backend: "horovod"})
	require.NoError(t, err)
	assert.Equal(t, "horovod", l.Backend())

	_, err = l.Run(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrNotStarted)
	assert.ErrorIs(t, l.Shutdown(context.Background()), pkgerrors.ErrNotStarted)

	ranks := make(chan int, 2)
	hook := func(ctx context.Context) error {
		rank, err := session.WorldRank(ctx)
		ranks <- rank

		return err
	}
	require.NoError(t, l.Start(context.Background(), hook))
	close(ranks)
	var seen []int
	for r := range ranks {
		seen = append(seen, r)
	}
	assert.ElementsMatch(t, []int{0, 1}, seen)

	assert.ErrorIs(t, l.Start(context.Background(), nil), pkgerrors.ErrAlreadyStarted)
	require.NoError(t, l.Shutdown(context.Background()))

	failing := func(context.Context) error { return errWork }
	err = l.Start(context.Background(), failing)
	assert.ErrorIs(t, err, errWork)
	assert.ErrorIs(t, err, pkgerrors.ErrWorkerFailed)
}

func TestReporters(t *testing.T) {
	t.Parallel()

	pubsub := new(mqttmocks.MockPubSub)
	pubsub.On("Publish", mock.Anything, "cohort/models/m1/reports", mock.Anything).Return(nil)

	collector := trainer.NewCollector()
	l := started(t, 2, trainer.WithReporter(trainer.Reporters{
		collector,
		trainer.NewMQTTReporter(pubsub, "cohort/models/m1/reports"),
	}))

	_, err := l.Run(context.Background(), func(ctx context.Context, _ map[string]any) (trainer.Result, error) {
		return nil, session.Send(ctx, []session.Metric{{Key: "epoch", Value: 1}})
	}, nil, nil)
	require.NoError(t, err)

	reports := collector.Reports()
	require.Len(t, reports, 2)
	assert.ElementsMatch(t, []int{0, 1}, []int{reports[0].Rank, reports[1].Rank})
	pubsub.AssertNumberOfCalls(t, "Publish", 2)

	collector.Reset()
	assert.Empty(t, collector.Reports())
}

func TestBestEffortReporter(t *testing.T) {
	t.Parallel()

	errPublish := errors.New("publish failed")
	cases := []struct {
		desc      string
		best      bool
		err       error
		collected int
	}{
		{
			desc:      "failing publisher dropped",
			best:      true,
			collected: 2,
		},
		{
			desc:      "failing publisher fails the run",
			err:       errPublish,
			collected: 2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			pubsub := new(mqttmocks.MockPubSub)
			pubsub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errPublish)
			var publisher session.Reporter = trainer.NewMQTTReporter(pubsub, "cohort/models/m1/reports")
			if tc.best {
				publisher = trainer.BestEffort(publisher, slog.New(slog.DiscardHandler))
			}
			collector := trainer.NewCollector()
			l := started(t, 2, trainer.WithReporter(trainer.Reporters{collector, publisher}))

			_, err := l.Run(context.Background(), func(ctx context.Context, _ map[string]any) (trainer.Result, error) {
				return nil, session.Send(ctx, []session.Metric{{Key: "epoch", Value: 1}})
			}, nil, nil)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
				pubsub.AssertNumberOfCalls(t, "Publish", 2)
			}
			assert.Len(t, collector.Reports(), tc.collected)
		})
	}
}
