package nn

import (
	"fmt"
	"math"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

const BCE = "bce"

const defaultEps = 1e-7

// CriterionState is the serializable form of a criterion.
type CriterionState struct {
	Kind   string             `json:"kind"`
	Params map[string]float64 `json:"params"`
}

type Criterion interface {
	// Loss returns the mean loss over the batch and dL/dp per row.
	Loss(p, y []float64) (float64, []float64, error)
	State() CriterionState
	Load(CriterionState) error
}

func NewCriterion(kind string) (Criterion, error) {
	switch kind {
	case "", BCE:
		return &BinaryCrossEntropy{Eps: defaultEps, PosWeight: 1}, nil
	default:
		return nil, fmt.Errorf("%w: unknown criterion %q", pkgerrors.ErrInvalidInput, kind)
	}
}

// BinaryCrossEntropy is the mean log loss. Probabilities are clipped to
// [Eps, 1-Eps].
type BinaryCrossEntropy struct {
	Eps       float64
	PosWeight float64
}

func (c *BinaryCrossEntropy) Loss(p, y []float64) (float64, []float64, error) {
	if len(p) != len(y) {
		return 0, nil, fmt.Errorf("%w: %d predictions for %d labels", pkgerrors.ErrInvalidInput, len(p), len(y))
	}
	if len(p) == 0 {
		return 0, nil, fmt.Errorf("%w: empty batch", pkgerrors.ErrInvalidInput)
	}
	n := float64(len(p))
	grad := make([]float64, len(p))
	var loss float64
	for i, pi := range p {
		q := math.Min(math.Max(pi, c.Eps), 1-c.Eps)
		loss -= c.PosWeight*y[i]*math.Log(q) + (1-y[i])*math.Log(1-q)
		grad[i] = (-c.PosWeight*y[i]/q + (1-y[i])/(1-q)) / n
	}

	return loss / n, grad, nil
}

func (c *BinaryCrossEntropy) State() CriterionState {
	return CriterionState{
		Kind:   BCE,
		Params: map[string]float64{"eps": c.Eps, "pos_weight": c.PosWeight},
	}
}

func (c *BinaryCrossEntropy) Load(s CriterionState) error {
	if s.Kind != BCE {
		return fmt.Errorf("%w: criterion state of kind %q", pkgerrors.ErrInvalidData, s.Kind)
	}
	eps, ok := s.Params["eps"]
	if !ok {
		return fmt.Errorf("%w: criterion state without eps", pkgerrors.ErrInvalidData)
	}
	pw, ok := s.Params["pos_weight"]
	if !ok {
		return fmt.Errorf("%w: criterion state without pos_weight", pkgerrors.ErrInvalidData)
	}
	c.Eps, c.PosWeight = eps, pw

	return nil
}
