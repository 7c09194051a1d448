package nn

import (
	"context"
	"fmt"

	"github.com/absmach/cohort/pkg/session"
)

var _ Module = (*Distributed)(nil)

// Distributed wraps a module so that every Backward call ends with the
// gradients averaged across the workers of the run, weighted by batch size.
type Distributed struct {
	Module    Module
	Reducer   session.Reducer
	Rank      int
	DeviceIDs []int

	batch int
}

func NewDistributed(m Module, reducer session.Reducer, rank int, deviceIDs []int) *Distributed {
	return &Distributed{Module: m, Reducer: reducer, Rank: rank, DeviceIDs: deviceIDs}
}

func (d *Distributed) Forward(x [][]float64) ([]float64, error) {
	d.batch = len(x)

	return d.Module.Forward(x)
}

func (d *Distributed) Backward(ctx context.Context, grad []float64) error {
	if err := d.Module.Backward(ctx, grad); err != nil {
		return err
	}
	if d.Reducer == nil {
		return nil
	}

	params := d.Module.Parameters()
	n := 0
	for _, p := range params {
		n += len(p.Grad)
	}
	flat := make([]float64, 0, n)
	for _, p := range params {
		flat = append(flat, p.Grad...)
	}
	if err := d.Reducer.AllReduce(ctx, d.Rank, flat, float64(d.batch)); err != nil {
		return fmt.Errorf("gradient all-reduce: %w", err)
	}
	off := 0
	for _, p := range params {
		off += copy(p.Grad, flat[off:])
	}

	return nil
}

func (d *Distributed) Parameters() []*Parameter { return d.Module.Parameters() }

func (d *Distributed) ZeroGrad() { d.Module.ZeroGrad() }

func (d *Distributed) State() []Tensor { return d.Module.State() }

func (d *Distributed) Load(state []Tensor) error { return d.Module.Load(state) }

func (d *Distributed) Built() bool { return d.Module.Built() }

func (d *Distributed) Device() string { return d.Module.Device() }

func (d *Distributed) To(device string) { d.Module.To(device) }

// Clone returns a plain copy of the wrapped module.
func (d *Distributed) Clone() Module { return d.Module.Clone() }

// Unwrap returns m without any distributed wrapper.
func Unwrap(m Module) Module {
	if d, ok := m.(*Distributed); ok {
		return Unwrap(d.Module)
	}

	return m
}
