package mocks

import (
	"context"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/model"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Fit(ctx context.Context, req coordinator.FitRequest) (model.Model, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(model.Model), args.Error(1)
}

func (m *MockService) GetModel(ctx context.Context, id string) (model.Model, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(model.Model), args.Error(1)
}

func (m *MockService) ListModels(ctx context.Context, offset, limit uint64) (model.ModelsPage, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(model.ModelsPage), args.Error(1)
}

func (m *MockService) DeleteModel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockService) StopFit(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockService) PredictProba(ctx context.Context, id string, x *dataset.Table) ([][]float64, error) {
	args := m.Called(ctx, id, x)
	probs, _ := args.Get(0).([][]float64)

	return probs, args.Error(1)
}

func (m *MockService) Predict(ctx context.Context, id string, x *dataset.Table) ([]int, error) {
	args := m.Called(ctx, id, x)
	preds, _ := args.Get(0).([]int)

	return preds, args.Error(1)
}

func (m *MockService) Reports(ctx context.Context, id string) ([]model.Report, error) {
	args := m.Called(ctx, id)
	reports, _ := args.Get(0).([]model.Report)

	return reports, args.Error(1)
}

func (m *MockService) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
