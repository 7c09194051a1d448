// Package nn is the small numerical core trained by the estimators: a
// multi-layer perceptron for binary classification, a binary cross-entropy
// criterion, SGD and Adam optimizers and a distributed wrapper that averages
// gradients across workers. Every stateful piece exposes its state as named
// tensors so it can be serialized and restored.
package nn

import (
	"fmt"
	"slices"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

// Tensor is a named, flat, row-major array of float64 values.
type Tensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func NewTensor(name string, shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}

	return Tensor{Name: name, Shape: slices.Clone(shape), Data: make([]float64, n)}
}

func (t Tensor) Clone() Tensor {
	return Tensor{Name: t.Name, Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

func (t Tensor) Size() int {
	return len(t.Data)
}

func (t Tensor) validate() error {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("%w: tensor %q has %d values for shape %v", pkgerrors.ErrInvalidData, t.Name, len(t.Data), t.Shape)
	}

	return nil
}

// Parameter is a trainable tensor with its accumulated gradient.
type Parameter struct {
	Tensor *Tensor
	Grad   []float64
}

func (p *Parameter) Name() string { return p.Tensor.Name }

// CloneTensors deep-copies a tensor list.
func CloneTensors(ts []Tensor) []Tensor {
	if ts == nil {
		return nil
	}
	out := make([]Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}

	return out
}
