package codec

import (
	"encoding/json"
	"fmt"
	"slices"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/history"
	"github.com/absmach/cohort/pkg/nn"
)

const (
	KeyParams    = "f_params"
	KeyOptimizer = "f_optimizer"
	KeyCriterion = "f_criterion"
	KeyHistory   = "f_history"
)

// Keys lists every bundle component in a fixed order.
var Keys = []string{KeyParams, KeyOptimizer, KeyCriterion, KeyHistory}

// Bundle is the serialized state of one estimator. A nil component is
// absent.
type Bundle struct {
	Params    []byte `json:"f_params,omitempty"`
	Optimizer []byte `json:"f_optimizer,omitempty"`
	Criterion []byte `json:"f_criterion,omitempty"`
	History   []byte `json:"f_history,omitempty"`
}

// State is the decoded form of a Bundle.
type State struct {
	Module    []nn.Tensor
	Optimizer *nn.OptimizerState
	Criterion *nn.CriterionState
	History   history.History
}

func (b Bundle) get(key string) []byte {
	switch key {
	case KeyParams:
		return b.Params
	case KeyOptimizer:
		return b.Optimizer
	case KeyCriterion:
		return b.Criterion
	case KeyHistory:
		return b.History
	}

	return nil
}

func (b *Bundle) set(key string, data []byte) error {
	switch key {
	case KeyParams:
		b.Params = data
	case KeyOptimizer:
		b.Optimizer = data
	case KeyCriterion:
		b.Criterion = data
	case KeyHistory:
		b.History = data
	default:
		return fmt.Errorf("%w: unknown key %q", pkgerrors.ErrBundleFormat, key)
	}

	return nil
}

// Result converts b into a worker result map holding only present
// components.
func (b Bundle) Result() map[string]any {
	res := make(map[string]any, len(Keys))
	for _, k := range Keys {
		if v := b.get(k); v != nil {
			res[k] = v
		}
	}

	return res
}

// BundleFromResult is the inverse of Result. Unknown keys and non-byte
// values are rejected.
func BundleFromResult(res map[string]any) (Bundle, error) {
	var b Bundle
	for k, v := range res {
		data, ok := v.([]byte)
		if !ok {
			return Bundle{}, fmt.Errorf("%w: value of %q is %T, want []byte", pkgerrors.ErrBundleFormat, k, v)
		}
		if err := b.set(k, data); err != nil {
			return Bundle{}, err
		}
	}

	return b, nil
}

// Require fails unless every named component is present.
func (b Bundle) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if b.get(k) == nil {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", pkgerrors.ErrBundleFormat, missing)
	}

	return nil
}

// Without returns a copy of b with the named components removed.
func (b Bundle) Without(keys ...string) Bundle {
	out := b
	for _, k := range keys {
		if slices.Contains(Keys, k) {
			_ = out.set(k, nil)
		}
	}

	return out
}

// Encode serializes the present parts of s.
func Encode(c Codec, s State) (Bundle, error) {
	var (
		b   Bundle
		err error
	)
	if s.Module != nil {
		if b.Params, err = c.Marshal(s.Module); err != nil {
			return Bundle{}, fmt.Errorf("failed to encode %s: %w", KeyParams, err)
		}
	}
	if s.Optimizer != nil {
		if b.Optimizer, err = c.Marshal(s.Optimizer); err != nil {
			return Bundle{}, fmt.Errorf("failed to encode %s: %w", KeyOptimizer, err)
		}
	}
	if s.Criterion != nil {
		if b.Criterion, err = c.Marshal(s.Criterion); err != nil {
			return Bundle{}, fmt.Errorf("failed to encode %s: %w", KeyCriterion, err)
		}
	}
	if s.History != nil {
		if b.History, err = json.Marshal(s.History); err != nil {
			return Bundle{}, fmt.Errorf("failed to encode %s: %w", KeyHistory, err)
		}
	}

	return b, nil
}

// Decode deserializes every present component of b. Nothing is returned
// unless all of them decode.
func Decode(c Codec, b Bundle) (State, error) {
	var s State
	if b.Params != nil {
		if err := c.Unmarshal(b.Params, &s.Module); err != nil {
			return State{}, fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, KeyParams, err)
		}
	}
	if b.Optimizer != nil {
		var o nn.OptimizerState
		if err := c.Unmarshal(b.Optimizer, &o); err != nil {
			return State{}, fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, KeyOptimizer, err)
		}
		s.Optimizer = &o
	}
	if b.Criterion != nil {
		var cr nn.CriterionState
		if err := c.Unmarshal(b.Criterion, &cr); err != nil {
			return State{}, fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, KeyCriterion, err)
		}
		s.Criterion = &cr
	}
	if b.History != nil {
		if err := json.Unmarshal(b.History, &s.History); err != nil {
			return State{}, fmt.Errorf("%w: %s: %w", pkgerrors.ErrBundleFormat, KeyHistory, err)
		}
	}

	return s, nil
}
