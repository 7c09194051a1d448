package cohort

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/pkg/codec"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/registry"
)

// NewManifest records what is needed to rebuild a fitted driver.
func NewManifest(name, label string, x *dataset.Table, ec EstimatorConfig, tc TrainerConfig) (registry.Manifest, error) {
	est, err := json.Marshal(ec)
	if err != nil {
		return registry.Manifest{}, fmt.Errorf("failed to marshal estimator config: %w", err)
	}
	tr, err := json.Marshal(tc)
	if err != nil {
		return registry.Manifest{}, fmt.Errorf("failed to marshal trainer config: %w", err)
	}

	return registry.Manifest{
		Name:      name,
		Label:     label,
		Features:  Features(x, label),
		Codec:     ec.Build(tc).Codec,
		Estimator: est,
		Trainer:   tr,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Features lists the columns of x other than label.
func Features(x *dataset.Table, label string) []string {
	if x == nil {
		return nil
	}
	out := make([]string, 0, len(x.Columns))
	for _, c := range x.Columns {
		if c != label {
			out = append(out, c)
		}
	}

	return out
}

// Restore builds a local driver from a saved manifest and bundle.
func Restore(ctx context.Context, m registry.Manifest, b codec.Bundle, opts ...estimator.Option) (*estimator.Driver, error) {
	var ec EstimatorConfig
	if len(m.Estimator) > 0 {
		if err := json.Unmarshal(m.Estimator, &ec); err != nil {
			return nil, fmt.Errorf("%w: estimator config: %w", pkgerrors.ErrBundleFormat, err)
		}
	}
	var tc TrainerConfig
	if len(m.Trainer) > 0 {
		if err := json.Unmarshal(m.Trainer, &tc); err != nil {
			return nil, fmt.Errorf("%w: trainer config: %w", pkgerrors.ErrBundleFormat, err)
		}
	}

	d, err := estimator.NewDriver(ec.Build(tc), opts...)
	if err != nil {
		return nil, err
	}
	if err := d.Initialize(ctx, false); err != nil {
		return nil, err
	}
	if err := d.LoadState(b); err != nil {
		return nil, err
	}
	d.SetLabel(m.Label)

	return d, nil
}
