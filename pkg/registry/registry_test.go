package registry_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/cohort/pkg/codec"
	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle() (registry.Manifest, codec.Bundle) {
	m := registry.Manifest{
		Name:      "quiet-river",
		Label:     "y",
		Features:  []string{"a", "b"},
		Codec:     codec.NameCBOR,
		Estimator: json.RawMessage(`{"max_epochs":3}`),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	b := codec.Bundle{
		Params:    []byte{1, 2, 3},
		Optimizer: []byte{4},
		Criterion: []byte{5},
		History:   []byte(`[]`),
	}

	return m, b
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	r, err := registry.New(t.TempDir())
	require.NoError(t, err)

	m, b := testBundle()
	require.NoError(t, r.Save("model-1", m, b))

	gotM, gotB, err := r.Load("model-1")
	require.NoError(t, err)
	assert.Equal(t, m.Name, gotM.Name)
	assert.Equal(t, m.Features, gotM.Features)
	assert.True(t, m.CreatedAt.Equal(gotM.CreatedAt))
	assert.Equal(t, b, gotB)

	ids, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"model-1"}, ids)
}

func TestSaveOverwritesAndDropsAbsentParts(t *testing.T) {
	t.Parallel()

	r, err := registry.New(t.TempDir())
	require.NoError(t, err)

	m, b := testBundle()
	require.NoError(t, r.Save("model-1", m, b))
	require.NoError(t, r.Save("model-1", m, b.Without(codec.KeyOptimizer)))

	_, got, err := r.Load("model-1")
	require.NoError(t, err)
	assert.Nil(t, got.Optimizer)
	assert.Equal(t, b.Params, got.Params)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	r, err := registry.New(t.TempDir())
	require.NoError(t, err)

	_, _, err = r.Load("nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestInvalidID(t *testing.T) {
	t.Parallel()

	r, err := registry.New(t.TempDir())
	require.NoError(t, err)

	cases := []struct {
		desc string
		id   string
	}{
		{desc: "empty", id: ""},
		{desc: "only separators", id: "../"},
		{desc: "only dots", id: ".."},
	}
	m, b := testBundle()
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ErrorIs(t, r.Save(tc.id, m, b), registry.ErrInvalidID)
		})
	}
}

func TestTraversalStaysInside(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := registry.New(filepath.Join(dir, "models"))
	require.NoError(t, err)

	m, b := testBundle()
	require.NoError(t, r.Save("../escape", m, b))

	_, err = os.Stat(filepath.Join(dir, "escape"))
	assert.True(t, os.IsNotExist(err))
	_, _, err = r.Load("escape")
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	r, err := registry.New(t.TempDir())
	require.NoError(t, err)

	m, b := testBundle()
	require.NoError(t, r.Save("model-1", m, b))
	require.NoError(t, r.Delete("model-1"))

	_, _, err = r.Load("model-1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestLoadDirCorruptManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{"), 0o644))

	_, _, err := registry.LoadDir(dir)
	assert.ErrorIs(t, err, errors.ErrBundleFormat)
}
