package nn

import (
	"fmt"
	"math"
	"slices"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

const (
	SGD  = "sgd"
	Adam = "adam"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// OptimizerState is the serializable form of an optimizer. Slots hold the
// per-parameter buffers, named "<buffer>/<parameter>".
type OptimizerState struct {
	Kind     string   `json:"kind"`
	LR       float64  `json:"lr"`
	Momentum float64  `json:"momentum"`
	Steps    int      `json:"steps"`
	Slots    []Tensor `json:"slots"`
}

type Optimizer interface {
	Step(params []*Parameter) error
	// SetParam updates a hyperparameter ("lr" or "momentum") in place.
	SetParam(name string, value float64) error
	Param(name string) (float64, error)
	State() OptimizerState
	Load(OptimizerState) error
}

func NewOptimizer(kind string, lr, momentum float64) (Optimizer, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("%w: learning rate must be positive", pkgerrors.ErrInvalidInput)
	}
	switch kind {
	case "", SGD:
		return &sgd{base: newBase(SGD, lr, momentum)}, nil
	case Adam:
		return &adam{base: newBase(Adam, lr, momentum)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", pkgerrors.ErrInvalidInput, kind)
	}
}

type base struct {
	kind     string
	lr       float64
	momentum float64
	steps    int
	slots    map[string][]float64
	order    []string
}

func newBase(kind string, lr, momentum float64) base {
	return base{kind: kind, lr: lr, momentum: momentum, slots: make(map[string][]float64)}
}

func (b *base) slot(name string, size int) []float64 {
	s, ok := b.slots[name]
	if !ok || len(s) != size {
		s = make([]float64, size)
		if !ok {
			b.order = append(b.order, name)
		}
		b.slots[name] = s
	}

	return s
}

func (b *base) SetParam(name string, value float64) error {
	switch name {
	case "lr":
		if value <= 0 {
			return fmt.Errorf("%w: learning rate must be positive", pkgerrors.ErrInvalidInput)
		}
		b.lr = value
	case "momentum":
		b.momentum = value
	default:
		return fmt.Errorf("%w: unknown optimizer parameter %q", pkgerrors.ErrInvalidInput, name)
	}

	return nil
}

func (b *base) Param(name string) (float64, error) {
	switch name {
	case "lr":
		return b.lr, nil
	case "momentum":
		return b.momentum, nil
	default:
		return 0, fmt.Errorf("%w: unknown optimizer parameter %q", pkgerrors.ErrInvalidInput, name)
	}
}

func (b *base) State() OptimizerState {
	s := OptimizerState{Kind: b.kind, LR: b.lr, Momentum: b.momentum, Steps: b.steps}
	for _, name := range b.order {
		buf := b.slots[name]
		s.Slots = append(s.Slots, Tensor{Name: name, Shape: []int{len(buf)}, Data: slices.Clone(buf)})
	}

	return s
}

func (b *base) Load(s OptimizerState) error {
	if s.Kind != b.kind {
		return fmt.Errorf("%w: optimizer state of kind %q loaded into %q", pkgerrors.ErrInvalidData, s.Kind, b.kind)
	}
	slots := make(map[string][]float64, len(s.Slots))
	order := make([]string, 0, len(s.Slots))
	for _, t := range s.Slots {
		if err := t.validate(); err != nil {
			return err
		}
		if _, dup := slots[t.Name]; dup {
			return fmt.Errorf("%w: duplicate optimizer slot %q", pkgerrors.ErrInvalidData, t.Name)
		}
		slots[t.Name] = slices.Clone(t.Data)
		order = append(order, t.Name)
	}
	b.lr, b.momentum, b.steps = s.LR, s.Momentum, s.Steps
	b.slots, b.order = slots, order

	return nil
}

type sgd struct {
	base
}

// Step applies v = momentum*v + g; p -= lr*v.
func (o *sgd) Step(params []*Parameter) error {
	for _, p := range params {
		if len(p.Grad) != p.Tensor.Size() {
			return fmt.Errorf("%w: gradient size mismatch for %q", pkgerrors.ErrInvalidInput, p.Name())
		}
		if o.momentum == 0 {
			for i, g := range p.Grad {
				p.Tensor.Data[i] -= o.lr * g
			}

			continue
		}
		v := o.slot("momentum_buffer/"+p.Name(), len(p.Grad))
		for i, g := range p.Grad {
			v[i] = o.momentum*v[i] + g
			p.Tensor.Data[i] -= o.lr * v[i]
		}
	}
	o.steps++

	return nil
}

type adam struct {
	base
}

func (o *adam) Step(params []*Parameter) error {
	o.steps++
	c1 := 1 - math.Pow(adamBeta1, float64(o.steps))
	c2 := 1 - math.Pow(adamBeta2, float64(o.steps))
	for _, p := range params {
		if len(p.Grad) != p.Tensor.Size() {
			return fmt.Errorf("%w: gradient size mismatch for %q", pkgerrors.ErrInvalidInput, p.Name())
		}
		m := o.slot("exp_avg/"+p.Name(), len(p.Grad))
		v := o.slot("exp_avg_sq/"+p.Name(), len(p.Grad))
		for i, g := range p.Grad {
			m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
			v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
			p.Tensor.Data[i] -= o.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEps)
		}
	}

	return nil
}
