package mocks

import (
	"context"

	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/stretchr/testify/mock"
)

var _ trainer.Trainer = (*Trainer)(nil)

type Trainer struct {
	mock.Mock
}

func (m *Trainer) Backend() string {
	args := m.Called()

	return args.String(0)
}

func (m *Trainer) Start(ctx context.Context, hook trainer.InitHook) error {
	args := m.Called(ctx, hook)

	return args.Error(0)
}

func (m *Trainer) Run(ctx context.Context, fn trainer.Func, config map[string]any, datasets map[string]*dataset.Table) ([]trainer.Result, error) {
	args := m.Called(ctx, fn, config, datasets)

	var res []trainer.Result
	if v := args.Get(0); v != nil {
		res = v.([]trainer.Result)
	}

	return res, args.Error(1)
}

func (m *Trainer) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
