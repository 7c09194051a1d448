package dataset

import (
	"fmt"
	"math/rand/v2"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

// Dataset pairs an input table with the name of its label column. The label
// column is the label source: partitions derived from one dataset share it.
type Dataset struct {
	X     *Table
	Label string
}

// Func builds a dataset from a table and a label column name.
type Func func(x *Table, label string) (*Dataset, error)

// New is the default Func. An empty label is allowed for inference.
func New(x *Table, label string) (*Dataset, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil table", pkgerrors.ErrInvalidInput)
	}
	if label != "" && x.Index(label) < 0 {
		return nil, fmt.Errorf("%w: label column %q not found", pkgerrors.ErrInvalidInput, label)
	}

	return &Dataset{X: x, Label: label}, nil
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}

	return d.X.Len()
}

// Features returns the input view: every column except the label.
func (d *Dataset) Features() [][]float64 {
	return d.X.Features(d.Label)
}

// Labels returns the label view, or nil when the dataset has no label.
func (d *Dataset) Labels() []float64 {
	if d.Label == "" {
		return nil
	}
	y, err := d.X.Column(d.Label)
	if err != nil {
		return nil
	}

	return y
}

// Splitter derives train and validation partitions. valid may be nil.
type Splitter interface {
	Split(ds *Dataset) (train, valid *Dataset, err error)
}

// FixedSplit holds out the trailing fraction of rows for validation.
type FixedSplit float64

func (f FixedSplit) Split(ds *Dataset) (*Dataset, *Dataset, error) {
	if f <= 0 || f >= 1 {
		return nil, nil, fmt.Errorf("%w: split fraction %v out of (0, 1)", pkgerrors.ErrInvalidInput, float64(f))
	}
	n := ds.Len()
	cut := n - int(float64(n)*float64(f))

	return &Dataset{X: ds.X.Slice(0, cut), Label: ds.Label},
		&Dataset{X: ds.X.Slice(cut, n), Label: ds.Label},
		nil
}

// Shard is the part of a table assigned to exactly one worker.
type Shard struct {
	Index int
	Table *Table
}

// Split cuts the table into n contiguous shards whose sizes differ by at
// most one row. Earlier shards take the remainder, so concatenating shards
// in index order restores the original row order.
func (t *Table) Split(n int) []Shard {
	if n <= 0 {
		return nil
	}
	base, rem := t.Len()/n, t.Len()%n
	shards := make([]Shard, n)
	start := 0
	for i := range shards {
		size := base
		if i < rem {
			size++
		}
		shards[i] = Shard{Index: i, Table: t.Slice(start, start+size)}
		start += size
	}

	return shards
}

// IteratorConfig holds the per-mode iterator settings.
type IteratorConfig struct {
	Shuffle bool  `toml:"shuffle" json:"shuffle"`
	Seed    int64 `toml:"seed" json:"seed"`
}

type Batch struct {
	X [][]float64
	Y []float64
}

// Iterator yields batches over a dataset. A batch size of -1 makes the
// whole dataset one batch.
type Iterator struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

func NewIterator(ds *Dataset, batchSize int, cfg IteratorConfig) *Iterator {
	if batchSize == -1 {
		batchSize = ds.Len()
	}
	seed := uint64(cfg.Seed)

	return &Iterator{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   cfg.Shuffle,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (it *Iterator) Dataset() *Dataset { return it.ds }

func (it *Iterator) BatchSize() int { return it.batchSize }

// Batches returns one pass over the dataset.
func (it *Iterator) Batches() []Batch {
	n := it.ds.Len()
	if n == 0 || it.batchSize <= 0 {
		return nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if it.shuffle {
		it.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	x := it.ds.Features()
	y := it.ds.Labels()
	batches := make([]Batch, 0, (n+it.batchSize-1)/it.batchSize)
	for start := 0; start < n; start += it.batchSize {
		end := min(start+it.batchSize, n)
		b := Batch{X: make([][]float64, 0, end-start)}
		if y != nil {
			b.Y = make([]float64, 0, end-start)
		}
		for _, idx := range order[start:end] {
			b.X = append(b.X, x[idx])
			if y != nil {
				b.Y = append(b.Y, y[idx])
			}
		}
		batches = append(batches, b)
	}

	return batches
}
