package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ModelRepository interface {
	Create(ctx context.Context, m model.Model) error
	Get(ctx context.Context, id string) (model.Model, error)
	Update(ctx context.Context, m model.Model) error
	List(ctx context.Context, offset, limit uint64) ([]model.Model, uint64, error)
	Delete(ctx context.Context, id string) error
}

type ReportRepository interface {
	Append(ctx context.Context, r model.Report) error
	List(ctx context.Context, modelID string) ([]model.Report, error)
	DeleteByModel(ctx context.Context, modelID string) error
}

// RunModelRepository exercises a model repository that starts empty.
func RunModelRepository(t *testing.T, repo ModelRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		m := TestModel(uuid.NewString())
		require.NoError(t, repo.Create(ctx, m))

		got, err := repo.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
		assert.Equal(t, m.Name, got.Name)
		assert.Equal(t, m.Label, got.Label)
		assert.Equal(t, m.Features, got.Features)
		assert.Equal(t, m.Workers, got.Workers)
		assert.Equal(t, m.Status, got.Status)
		assert.JSONEq(t, string(m.Config), string(got.Config))
		assert.WithinDuration(t, m.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("create duplicate", func(t *testing.T) {
		m := TestModel(uuid.NewString())
		require.NoError(t, repo.Create(ctx, m))
		assert.ErrorIs(t, repo.Create(ctx, m), errors.ErrEntityExists)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		m := TestModel(uuid.NewString())
		m.Status = model.StatusFitting
		require.NoError(t, repo.Create(ctx, m))

		m.Status = model.StatusFailed
		m.Error = "worker failed"
		m.UpdatedAt = m.UpdatedAt.Add(time.Second)
		require.NoError(t, repo.Update(ctx, m))

		got, err := repo.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, "worker failed", got.Error)
	})

	t.Run("update missing", func(t *testing.T) {
		assert.ErrorIs(t, repo.Update(ctx, TestModel(uuid.NewString())), errors.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		_, before, err := repo.List(ctx, 0, 100)
		require.NoError(t, err)

		for range 3 {
			require.NoError(t, repo.Create(ctx, TestModel(uuid.NewString())))
		}

		models, total, err := repo.List(ctx, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, before+3, total)
		assert.Len(t, models, 2)

		models, _, err = repo.List(ctx, total, 10)
		require.NoError(t, err)
		assert.Empty(t, models)
	})

	t.Run("delete", func(t *testing.T) {
		m := TestModel(uuid.NewString())
		require.NoError(t, repo.Create(ctx, m))
		require.NoError(t, repo.Delete(ctx, m.ID))

		_, err := repo.Get(ctx, m.ID)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

// RunReportRepository exercises a report repository.
func RunReportRepository(t *testing.T, repo ReportRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("append and list in order", func(t *testing.T) {
		id := uuid.NewString()
		for epoch := 1; epoch <= 3; epoch++ {
			r := TestReport(id, 0, epoch)
			r.Timestamp = r.Timestamp.Add(time.Duration(epoch) * time.Millisecond)
			require.NoError(t, repo.Append(ctx, r))
		}
		require.NoError(t, repo.Append(ctx, TestReport(uuid.NewString(), 0, 1)))

		reports, err := repo.List(ctx, id)
		require.NoError(t, err)
		require.Len(t, reports, 3)
		for i, r := range reports {
			assert.Equal(t, id, r.ModelID)
			assert.Equal(t, i+1, r.Epoch)
			require.Len(t, r.Metrics, 3)
			assert.Equal(t, "epoch", r.Metrics[0].Key)
			assert.Equal(t, "train_loss", r.Metrics[1].Key)
		}
	})

	t.Run("append without model", func(t *testing.T) {
		assert.ErrorIs(t, repo.Append(ctx, TestReport("", 0, 1)), errors.ErrEmptyKey)
	})

	t.Run("delete by model", func(t *testing.T) {
		id := uuid.NewString()
		require.NoError(t, repo.Append(ctx, TestReport(id, 0, 1)))
		require.NoError(t, repo.Append(ctx, TestReport(id, 1, 1)))
		require.NoError(t, repo.DeleteByModel(ctx, id))

		reports, err := repo.List(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, reports)
	})
}
