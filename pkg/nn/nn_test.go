package nn_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/absmach/cohort/pkg/collective"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var batch = [][]float64{{0.5, -1}, {1, 2}, {-0.3, 0.1}}

func newMLP(t *testing.T, spec nn.Spec) *nn.MLP {
	t.Helper()

	m, err := nn.NewMLP(spec)
	require.NoError(t, err)

	return m
}

func TestForwardIsDeterministic(t *testing.T) {
	t.Parallel()

	spec := nn.Spec{Hidden: []int{4}, Seed: 3}
	a := newMLP(t, spec)
	b := newMLP(t, spec)

	pa, err := a.Forward(batch)
	require.NoError(t, err)
	pb, err := b.Forward(batch)
	require.NoError(t, err)

	assert.Len(t, pa, len(batch))
	assert.Equal(t, pa, pb)
	for _, p := range pa {
		assert.True(t, p > 0 && p < 1)
	}

	_, err = a.Forward([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestNewMLPValidation(t *testing.T) {
	t.Parallel()

	_, err := nn.NewMLP(nn.Spec{Activation: "swish"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = nn.NewMLP(nn.Spec{Hidden: []int{0}})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	t.Parallel()

	for _, act := range []string{nn.ReLU, nn.Tanh} {
		t.Run(act, func(t *testing.T) {
			t.Parallel()

			m := newMLP(t, nn.Spec{Hidden: []int{3}, Activation: act, Seed: 11})
			crit, err := nn.NewCriterion(nn.BCE)
			require.NoError(t, err)
			y := []float64{1, 0, 1}

			lossAt := func() float64 {
				p, err := m.Forward(batch)
				require.NoError(t, err)
				l, _, err := crit.Loss(p, y)
				require.NoError(t, err)

				return l
			}

			p, err := m.Forward(batch)
			require.NoError(t, err)
			_, grad, err := crit.Loss(p, y)
			require.NoError(t, err)
			m.ZeroGrad()
			require.NoError(t, m.Backward(context.Background(), grad))

			const h = 1e-6
			for _, param := range m.Parameters() {
				analytic := append([]float64(nil), param.Grad...)
				for i := range param.Tensor.Data {
					orig := param.Tensor.Data[i]
					param.Tensor.Data[i] = orig + h
					up := lossAt()
					param.Tensor.Data[i] = orig - h
					down := lossAt()
					param.Tensor.Data[i] = orig
					assert.InDelta(t, (up-down)/(2*h), analytic[i], 1e-5, "%s[%d]", param.Name(), i)
				}
			}
		})
	}
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	src := newMLP(t, nn.Spec{Hidden: []int{2, 2}, Seed: 5})
	_, err := src.Forward(batch)
	require.NoError(t, err)

	dst := newMLP(t, nn.Spec{Hidden: []int{2, 2}, Seed: 99})
	require.NoError(t, dst.Load(src.State()))
	assert.Equal(t, src.State(), dst.State())

	want, err := src.Forward(batch)
	require.NoError(t, err)
	got, err := dst.Forward(batch)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	clone := src.Clone()
	assert.Equal(t, src.State(), clone.State())

	bad := src.State()
	bad[0].Name = "layers.7.weight"
	assert.ErrorIs(t, dst.Load(bad), pkgerrors.ErrInvalidData)

	other := newMLP(t, nn.Spec{Hidden: []int{5}})
	_, err = other.Forward(batch)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Load(src.State()), pkgerrors.ErrInvalidData)
}

func TestSGDStep(t *testing.T) {
	t.Parallel()

	opt, err := nn.NewOptimizer(nn.SGD, 0.1, 0.9)
	require.NoError(t, err)

	w := nn.Tensor{Name: "w", Shape: []int{2}, Data: []float64{1, 1}}
	p := &nn.Parameter{Tensor: &w, Grad: []float64{1, -1}}

	require.NoError(t, opt.Step([]*nn.Parameter{p}))
	assert.InDeltaSlice(t, []float64{0.9, 1.1}, w.Data, 1e-12)

	// v = 0.9*1 + 1 = 1.9
	require.NoError(t, opt.Step([]*nn.Parameter{p}))
	assert.InDeltaSlice(t, []float64{0.71, 1.29}, w.Data, 1e-12)

	state := opt.State()
	assert.Equal(t, 2, state.Steps)
	require.Len(t, state.Slots, 1)
	assert.Equal(t, "momentum_buffer/w", state.Slots[0].Name)

	restored, err := nn.NewOptimizer(nn.SGD, 1, 0)
	require.NoError(t, err)
	require.NoError(t, restored.Load(state))
	assert.Equal(t, state, restored.State())

	adam, err := nn.NewOptimizer(nn.Adam, 0.1, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, adam.Load(state), pkgerrors.ErrInvalidData)
}

func TestAdamFirstStep(t *testing.T) {
	t.Parallel()

	opt, err := nn.NewOptimizer(nn.Adam, 0.01, 0)
	require.NoError(t, err)
	w := nn.Tensor{Name: "w", Shape: []int{1}, Data: []float64{0}}
	p := &nn.Parameter{Tensor: &w, Grad: []float64{4}}
	require.NoError(t, opt.Step([]*nn.Parameter{p}))

	// the bias-corrected first step moves by lr regardless of gradient scale
	assert.InDelta(t, -0.01, w.Data[0], 1e-6)
	assert.Len(t, opt.State().Slots, 2)
}

func TestOptimizerParams(t *testing.T) {
	t.Parallel()

	opt, err := nn.NewOptimizer(nn.SGD, 0.1, 0)
	require.NoError(t, err)
	require.NoError(t, opt.SetParam("lr", 0.5))
	lr, err := opt.Param("lr")
	require.NoError(t, err)
	assert.Equal(t, 0.5, lr)

	assert.ErrorIs(t, opt.SetParam("lr", 0), pkgerrors.ErrInvalidInput)
	assert.ErrorIs(t, opt.SetParam("beta", 1), pkgerrors.ErrInvalidInput)

	_, err = nn.NewOptimizer("rmsprop", 0.1, 0)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestCriterion(t *testing.T) {
	t.Parallel()

	crit, err := nn.NewCriterion("")
	require.NoError(t, err)
	loss, grad, err := crit.Loss([]float64{0.5, 0.5}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, loss, 1e-9)
	assert.InDeltaSlice(t, []float64{-1, 1}, grad, 1e-9)

	_, _, err = crit.Loss([]float64{0.5}, []float64{1, 0})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	other, err := nn.NewCriterion(nn.BCE)
	require.NoError(t, err)
	require.NoError(t, other.Load(crit.State()))
	assert.Equal(t, crit.State(), other.State())
	assert.ErrorIs(t, other.Load(nn.CriterionState{Kind: "mse"}), pkgerrors.ErrInvalidData)

	_, err = nn.NewCriterion("hinge")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestDistributedAveragesGradients(t *testing.T) {
	t.Parallel()

	const workers = 2
	spec := nn.Spec{Hidden: []int{2}, Seed: 1}
	shards := [][][]float64{{{1, 0}, {0, 1}}, {{-1, 2}}}
	labels := [][]float64{{1, 0}, {1}}

	// single-process reference over the full batch
	ref := newMLP(t, spec)
	crit, err := nn.NewCriterion(nn.BCE)
	require.NoError(t, err)
	full := append(append([][]float64{}, shards[0]...), shards[1]...)
	p, err := ref.Forward(full)
	require.NoError(t, err)
	_, grad, err := crit.Loss(p, []float64{1, 0, 1})
	require.NoError(t, err)
	require.NoError(t, ref.Backward(context.Background(), grad))

	g := collective.NewGroup(workers)
	got := make([][]*nn.Parameter, workers)
	var wg sync.WaitGroup
	for rank := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer g.Exit(rank)
			ctx := context.Background()
			m := newMLP(t, spec)
			d := nn.NewDistributed(m, g, rank, nil)
			assert.NoError(t, g.Barrier(ctx, rank))
			p, err := d.Forward(shards[rank])
			assert.NoError(t, err)
			c, _ := nn.NewCriterion(nn.BCE)
			_, grad, err := c.Loss(p, labels[rank])
			assert.NoError(t, err)
			assert.NoError(t, d.Backward(ctx, grad))
			got[rank] = d.Parameters()
		}()
	}
	wg.Wait()

	want := ref.Parameters()
	for rank := range workers {
		require.Len(t, got[rank], len(want))
		for i := range want {
			assert.InDeltaSlice(t, want[i].Grad, got[rank][i].Grad, 1e-9)
		}
	}
}

func TestDevices(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want nn.Device
		err  error
	}{
		{in: "", want: nn.Device{Type: nn.CPU, Index: -1}},
		{in: "cuda", want: nn.Device{Type: nn.CUDA, Index: -1}},
		{in: "cuda:2", want: nn.Device{Type: nn.CUDA, Index: 2}},
		{in: "tpu", err: pkgerrors.ErrInvalidInput},
		{in: "cuda:x", err: pkgerrors.ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			d, err := nn.ParseDevice(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}

	assert.Equal(t, "cuda:1", nn.CUDADevice(1))
}
