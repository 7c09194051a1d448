package nn

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

const (
	ReLU = "relu"
	Tanh = "tanh"
)

// Spec describes a module before it is built. The input width is taken from
// the first batch the module sees.
type Spec struct {
	Hidden     []int  `toml:"hidden" json:"hidden"`
	Activation string `toml:"activation" json:"activation"`
	Seed       int64  `toml:"seed" json:"seed"`
}

// Module maps a batch of feature rows to one probability per row.
type Module interface {
	Forward(x [][]float64) ([]float64, error)
	// Backward accumulates parameter gradients from dL/dp of the last
	// Forward call.
	Backward(ctx context.Context, grad []float64) error
	Parameters() []*Parameter
	ZeroGrad()
	State() []Tensor
	Load(state []Tensor) error
	Built() bool
	Device() string
	To(device string)
	Clone() Module
}

type layer struct {
	w, b   Tensor
	gw, gb []float64
	in     int
	out    int
}

// MLP is a fully connected network with a sigmoid output unit. It caches
// activations between Forward and Backward and is not safe for concurrent
// use; Clone it per goroutine.
type MLP struct {
	spec   Spec
	device string
	layers []*layer

	inputs [][][]float64
	acts   [][][]float64
	probs  []float64
}

func NewMLP(spec Spec) (*MLP, error) {
	switch spec.Activation {
	case "":
		spec.Activation = ReLU
	case ReLU, Tanh:
	default:
		return nil, fmt.Errorf("%w: unknown activation %q", pkgerrors.ErrInvalidInput, spec.Activation)
	}
	for _, h := range spec.Hidden {
		if h <= 0 {
			return nil, fmt.Errorf("%w: hidden layer size %d", pkgerrors.ErrInvalidInput, h)
		}
	}

	return &MLP{spec: spec, device: CPU}, nil
}

func (m *MLP) Spec() Spec { return m.spec }

func (m *MLP) Built() bool { return len(m.layers) > 0 }

func (m *MLP) Device() string { return m.device }

func (m *MLP) To(device string) { m.device = device }

func (m *MLP) build(in int) {
	rng := rand.New(rand.NewPCG(uint64(m.spec.Seed), uint64(m.spec.Seed)^0x5851f42d4c957f2d))
	sizes := append(append([]int{in}, m.spec.Hidden...), 1)
	m.layers = make([]*layer, 0, len(sizes)-1)
	for i := 0; i < len(sizes)-1; i++ {
		l := newLayer(i, sizes[i], sizes[i+1])
		limit := math.Sqrt(6 / float64(sizes[i]+sizes[i+1]))
		for j := range l.w.Data {
			l.w.Data[j] = (rng.Float64()*2 - 1) * limit
		}
		m.layers = append(m.layers, l)
	}
}

func newLayer(idx, in, out int) *layer {
	prefix := "layers." + strconv.Itoa(idx)

	return &layer{
		w:   NewTensor(prefix+".weight", out, in),
		b:   NewTensor(prefix+".bias", out),
		gw:  make([]float64, out*in),
		gb:  make([]float64, out),
		in:  in,
		out: out,
	}
}

func (m *MLP) Forward(x [][]float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: empty batch", pkgerrors.ErrInvalidInput)
	}
	if !m.Built() {
		m.build(len(x[0]))
	}
	if w := m.layers[0].in; len(x[0]) != w {
		return nil, fmt.Errorf("%w: batch has %d features, module expects %d", pkgerrors.ErrInvalidInput, len(x[0]), w)
	}

	m.inputs = m.inputs[:0]
	m.acts = m.acts[:0]
	cur := x
	last := len(m.layers) - 1
	for li, l := range m.layers {
		m.inputs = append(m.inputs, cur)
		next := make([][]float64, len(cur))
		for r, row := range cur {
			if len(row) != l.in {
				return nil, fmt.Errorf("%w: ragged batch at row %d", pkgerrors.ErrInvalidInput, r)
			}
			o := make([]float64, l.out)
			for j := range l.out {
				z := l.b.Data[j]
				w := l.w.Data[j*l.in : (j+1)*l.in]
				for i, v := range row {
					z += w[i] * v
				}
				if li == last {
					o[j] = sigmoid(z)
				} else {
					o[j] = m.activate(z)
				}
			}
			next[r] = o
		}
		m.acts = append(m.acts, next)
		cur = next
	}

	probs := make([]float64, len(cur))
	for r, row := range cur {
		probs[r] = row[0]
	}
	m.probs = probs

	return probs, nil
}

func (m *MLP) Backward(_ context.Context, grad []float64) error {
	if m.probs == nil {
		return fmt.Errorf("%w: backward called before forward", pkgerrors.ErrNotInitialized)
	}
	if len(grad) != len(m.probs) {
		return fmt.Errorf("%w: gradient has %d rows, output has %d", pkgerrors.ErrInvalidInput, len(grad), len(m.probs))
	}

	delta := make([][]float64, len(grad))
	for r, g := range grad {
		p := m.probs[r]
		delta[r] = []float64{g * p * (1 - p)}
	}

	for li := len(m.layers) - 1; li >= 0; li-- {
		l := m.layers[li]
		in := m.inputs[li]
		var prev [][]float64
		if li > 0 {
			prev = make([][]float64, len(in))
		}
		for r, d := range delta {
			for j, dj := range d {
				l.gb[j] += dj
				gw := l.gw[j*l.in : (j+1)*l.in]
				for i, v := range in[r] {
					gw[i] += dj * v
				}
			}
			if prev == nil {
				continue
			}
			pr := make([]float64, l.in)
			for i := range l.in {
				var s float64
				for j, dj := range d {
					s += dj * l.w.Data[j*l.in+i]
				}
				pr[i] = s * m.derivative(in[r][i])
			}
			prev[r] = pr
		}
		delta = prev
	}

	return nil
}

func (m *MLP) Parameters() []*Parameter {
	params := make([]*Parameter, 0, 2*len(m.layers))
	for _, l := range m.layers {
		params = append(params, &Parameter{Tensor: &l.w, Grad: l.gw}, &Parameter{Tensor: &l.b, Grad: l.gb})
	}

	return params
}

func (m *MLP) ZeroGrad() {
	for _, l := range m.layers {
		clear(l.gw)
		clear(l.gb)
	}
}

// State returns a copy of the parameters in layer order.
func (m *MLP) State() []Tensor {
	state := make([]Tensor, 0, 2*len(m.layers))
	for _, l := range m.layers {
		state = append(state, l.w.Clone(), l.b.Clone())
	}

	return state
}

// Load replaces the parameters. An unbuilt module takes its shape from
// state; an empty state leaves it unbuilt.
func (m *MLP) Load(state []Tensor) error {
	if len(state) == 0 {
		if m.Built() {
			return fmt.Errorf("%w: empty state for a built module", pkgerrors.ErrInvalidData)
		}

		return nil
	}
	if len(state)%2 != 0 {
		return fmt.Errorf("%w: module state has %d tensors", pkgerrors.ErrInvalidData, len(state))
	}
	layers := make([]*layer, 0, len(state)/2)
	for i := 0; i < len(state); i += 2 {
		w, b := state[i], state[i+1]
		idx := i / 2
		if err := w.validate(); err != nil {
			return err
		}
		if err := b.validate(); err != nil {
			return err
		}
		prefix := "layers." + strconv.Itoa(idx)
		if w.Name != prefix+".weight" || b.Name != prefix+".bias" || len(w.Shape) != 2 || len(b.Shape) != 1 || b.Shape[0] != w.Shape[0] {
			return fmt.Errorf("%w: unexpected tensors %q, %q at layer %d", pkgerrors.ErrInvalidData, w.Name, b.Name, idx)
		}
		if idx > 0 && layers[idx-1].out != w.Shape[1] {
			return fmt.Errorf("%w: layer %d input width %d does not match previous output %d", pkgerrors.ErrInvalidData, idx, w.Shape[1], layers[idx-1].out)
		}
		l := newLayer(idx, w.Shape[1], w.Shape[0])
		copy(l.w.Data, w.Data)
		copy(l.b.Data, b.Data)
		layers = append(layers, l)
	}
	if out := layers[len(layers)-1].out; out != 1 {
		return fmt.Errorf("%w: output layer has %d units", pkgerrors.ErrInvalidData, out)
	}
	if m.Built() && !sameShape(m.layers, layers) {
		return fmt.Errorf("%w: state does not match module architecture", pkgerrors.ErrInvalidData)
	}
	m.layers = layers
	m.probs = nil

	return nil
}

func (m *MLP) Clone() Module {
	c := &MLP{spec: m.spec, device: m.device}
	c.spec.Hidden = append([]int(nil), m.spec.Hidden...)
	if m.Built() {
		// State always satisfies Load.
		_ = c.Load(m.State())
	}

	return c
}

func (m *MLP) String() string {
	parts := make([]string, 0, len(m.layers))
	for _, l := range m.layers {
		parts = append(parts, fmt.Sprintf("%dx%d", l.in, l.out))
	}

	return "MLP(" + strings.Join(parts, ", ") + ")"
}

func (m *MLP) activate(z float64) float64 {
	if m.spec.Activation == Tanh {
		return math.Tanh(z)
	}

	return math.Max(0, z)
}

// derivative takes the activation output a.
func (m *MLP) derivative(a float64) float64 {
	if m.spec.Activation == Tanh {
		return 1 - a*a
	}
	if a > 0 {
		return 1
	}

	return 0
}

func sameShape(a, b []*layer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].in != b[i].in || a[i].out != b[i].out {
			return false
		}
	}

	return true
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
