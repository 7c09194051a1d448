package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositories(t *testing.T) {
	repos := storage.NewMemoryRepositories()
	assert.Nil(t, repos.Closer)

	testutil.RunModelRepository(t, repos.Models)
	testutil.RunReportRepository(t, repos.Reports)
}

func TestNewRepositories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		cfg  func(dir string) storage.Config
		err  error
	}{
		{
			desc: "memory",
			cfg:  func(string) storage.Config { return storage.Config{Type: "memory"} },
		},
		{
			desc: "empty type defaults to memory",
			cfg:  func(string) storage.Config { return storage.Config{} },
		},
		{
			desc: "sqlite",
			cfg: func(dir string) storage.Config {
				return storage.Config{Type: "sqlite", SQLitePath: filepath.Join(dir, "cohort.db")}
			},
		},
		{
			desc: "badger",
			cfg: func(dir string) storage.Config {
				return storage.Config{Type: "badger", BadgerPath: filepath.Join(dir, "badger")}
			},
		},
		{
			desc: "unknown",
			cfg:  func(string) storage.Config { return storage.Config{Type: "etcd"} },
			err:  storage.ErrUnsupportedType,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			repos, err := storage.NewRepositories(tc.cfg(t.TempDir()))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			require.NotNil(t, repos.Models)
			require.NotNil(t, repos.Reports)
			if repos.Closer != nil {
				assert.NoError(t, repos.Closer.Close())
			}
		})
	}
}
