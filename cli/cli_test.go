package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/absmach/cohort/cli"
	"github.com/absmach/cohort/pkg/history"
	"github.com/absmach/cohort/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const experiment = `
[estimator]
lr = 0.1
max_epochs = 3
batch_size = 8

[estimator.module]
hidden = [4]
seed = 7

[trainer]
num_workers = 2
`

func writeCSV(t *testing.T, dir, name string, n int, withLabel bool) string {
	t.Helper()

	rng := rand.New(rand.NewPCG(1, 2))
	var b strings.Builder
	if withLabel {
		b.WriteString("a,b,y\n")
	} else {
		b.WriteString("a,b\n")
	}
	for range n {
		a, c := rng.NormFloat64(), rng.NormFloat64()
		y := 0
		if a+c > 0 {
			y = 1
		}
		if withLabel {
			fmt.Fprintf(&b, "%f,%f,%d\n", a, c, y)
		} else {
			fmt.Fprintf(&b, "%f,%f\n", a, c)
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	return path
}

func execute(t *testing.T, args ...string) (string, string) {
	t.Helper()

	root := cli.NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()))

	return stdout.String(), stderr.String()
}

func TestFitAndPredict(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "exp.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(experiment), 0o644))
	train := writeCSV(t, dir, "train.csv", 40, true)
	test := writeCSV(t, dir, "test.csv", 6, false)
	out := filepath.Join(dir, "model")

	stdout, stderr := execute(t, "fit", "--config", cfg, "--data", train, "--label", "y", "--name", "churn", "--out", out)
	assert.NotContains(t, stderr, "error:")
	assert.Contains(t, stdout, "churn")
	assert.Contains(t, stdout, "train_loss")
	assert.NotContains(t, stdout, history.BatchesKey)

	m, _, err := registry.LoadDir(out)
	require.NoError(t, err)
	assert.Equal(t, "churn", m.Name)
	assert.Equal(t, []string{"a", "b"}, m.Features)

	stdout, stderr = execute(t, "predict", "--model", out, "--data", test)
	assert.NotContains(t, stderr, "error:")
	var res struct {
		Predictions []int `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stripANSI(stdout))), &res))
	assert.Len(t, res.Predictions, 6)
}

func TestFitMissingFlags(t *testing.T) {
	_, stderr := execute(t, "fit", "--data", "x.csv")
	assert.Contains(t, stderr, "missing required flag")
}

func TestPredictMissingModel(t *testing.T) {
	dir := t.TempDir()
	test := writeCSV(t, dir, "test.csv", 2, false)

	_, stderr := execute(t, "predict", "--model", filepath.Join(dir, "none"), "--data", test)
	assert.Contains(t, stderr, "error:")
}

// stripANSI drops the color escapes prettyjson adds.
func stripANSI(s string) string {
	var b strings.Builder
	esc := false
	for _, r := range s {
		switch {
		case r == 0x1b:
			esc = true
		case esc && r == 'm':
			esc = false
		case !esc:
			b.WriteRune(r)
		}
	}

	return b.String()
}
