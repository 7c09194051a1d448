package dataset_test

import (
	"strings"
	"testing"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, n int) *dataset.Table {
	t.Helper()

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(i * 2), float64(i % 2)}
	}
	tbl, err := dataset.NewTable([]string{"a", "b", "y"}, rows)
	require.NoError(t, err)

	return tbl
}

func TestNewTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		columns []string
		rows    [][]float64
		err     error
	}{
		{name: "valid", columns: []string{"a", "b"}, rows: [][]float64{{1, 2}}},
		{name: "no columns", rows: [][]float64{{1}}, err: pkgerrors.ErrInvalidInput},
		{name: "duplicate column", columns: []string{"a", "a"}, err: pkgerrors.ErrInvalidInput},
		{name: "ragged row", columns: []string{"a", "b"}, rows: [][]float64{{1}}, err: pkgerrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := dataset.NewTable(tt.columns, tt.rows)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)

				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSplitShards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rows  int
		n     int
		sizes []int
	}{
		{name: "even", rows: 6, n: 3, sizes: []int{2, 2, 2}},
		{name: "remainder goes first", rows: 7, n: 3, sizes: []int{3, 2, 2}},
		{name: "more workers than rows", rows: 2, n: 3, sizes: []int{1, 1, 0}},
		{name: "single worker", rows: 5, n: 1, sizes: []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tbl := newTable(t, tt.rows)
			shards := tbl.Split(tt.n)
			require.Len(t, shards, tt.n)

			parts := make([]*dataset.Table, len(shards))
			for i, s := range shards {
				assert.Equal(t, i, s.Index)
				assert.Equal(t, tt.sizes[i], s.Table.Len())
				parts[i] = s.Table
			}
			joined, err := dataset.Concat(parts...)
			require.NoError(t, err)
			assert.Equal(t, tbl.Rows, joined.Rows)
		})
	}
}

func TestShardIsACopy(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 4)
	shards := tbl.Split(2)
	shards[0].Table.Rows[0][0] = 100

	assert.Equal(t, float64(0), tbl.Rows[0][0])
}

func TestFixedSplit(t *testing.T) {
	t.Parallel()

	ds, err := dataset.New(newTable(t, 10), "y")
	require.NoError(t, err)

	train, valid, err := dataset.FixedSplit(0.2).Split(ds)
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, valid.Len())
	assert.Equal(t, "y", train.Label)
	assert.Equal(t, train.Label, valid.Label)

	_, _, err = dataset.FixedSplit(1.5).Split(ds)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestDatasetViews(t *testing.T) {
	t.Parallel()

	ds, err := dataset.New(newTable(t, 3), "y")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {1, 2}, {2, 4}}, ds.Features())
	assert.Equal(t, []float64{0, 1, 0}, ds.Labels())

	_, err = dataset.New(newTable(t, 3), "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	unlabeled, err := dataset.New(newTable(t, 3), "")
	require.NoError(t, err)
	assert.Nil(t, unlabeled.Labels())
	assert.Len(t, unlabeled.Features()[0], 3)
}

func TestIteratorBatches(t *testing.T) {
	t.Parallel()

	ds, err := dataset.New(newTable(t, 5), "y")
	require.NoError(t, err)

	tests := []struct {
		name      string
		batchSize int
		sizes     []int
	}{
		{name: "whole dataset", batchSize: -1, sizes: []int{5}},
		{name: "uneven batches", batchSize: 2, sizes: []int{2, 2, 1}},
		{name: "batch larger than data", batchSize: 10, sizes: []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it := dataset.NewIterator(ds, tt.batchSize, dataset.IteratorConfig{})
			batches := it.Batches()
			require.Len(t, batches, len(tt.sizes))
			for i, b := range batches {
				assert.Len(t, b.X, tt.sizes[i])
				assert.Len(t, b.Y, tt.sizes[i])
			}
		})
	}
}

func TestIteratorShuffleKeepsPairs(t *testing.T) {
	t.Parallel()

	ds, err := dataset.New(newTable(t, 20), "y")
	require.NoError(t, err)

	it := dataset.NewIterator(ds, 4, dataset.IteratorConfig{Shuffle: true, Seed: 7})
	seen := 0
	for _, b := range it.Batches() {
		for i, x := range b.X {
			assert.Equal(t, float64(int(x[0])%2), b.Y[i])
			assert.Equal(t, x[0]*2, x[1])
			seen++
		}
	}
	assert.Equal(t, 20, seen)
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	tbl, err := dataset.ReadCSV(strings.NewReader("a,b,y\n1,2,0\n3, 4,1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "y"}, tbl.Columns)
	assert.Equal(t, [][]float64{{1, 2, 0}, {3, 4, 1}}, tbl.Rows)

	_, err = dataset.ReadCSV(strings.NewReader("a\nx\n"))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}
