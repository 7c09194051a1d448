// Package dataset holds the tabular data handed to estimators: tables of
// named float64 columns, datasets that pair a table with its label column,
// train/validation splitting, per-worker shards and cached batch iterators.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

var errColumnNotFound = errors.New("column not found")

// Table is a row-major set of float64 values with named columns.
type Table struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// NewTable validates that every row has one value per column.
func NewTable(columns []string, rows [][]float64) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table has no columns", pkgerrors.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", pkgerrors.ErrInvalidInput, c)
		}
		seen[c] = struct{}{}
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", pkgerrors.ErrInvalidInput, i, len(r), len(columns))
		}
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	return len(t.Rows)
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}

	return -1
}

func (t *Table) Column(name string) ([]float64, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", errColumnNotFound, name)
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}

	return out, nil
}

// Features returns every column except exclude, row by row.
func (t *Table) Features(exclude string) [][]float64 {
	skip := t.Index(exclude)
	out := make([][]float64, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]float64, 0, len(r))
		for j, v := range r {
			if j == skip {
				continue
			}
			row = append(row, v)
		}
		out[i] = row
	}

	return out
}

// Slice copies rows [start, end).
func (t *Table) Slice(start, end int) *Table {
	rows := make([][]float64, 0, end-start)
	for _, r := range t.Rows[start:end] {
		rows = append(rows, append([]float64(nil), r...))
	}

	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}
}

func (t *Table) Clone() *Table {
	return t.Slice(0, t.Len())
}

// Take copies the rows at the given positions, in order.
func (t *Table) Take(idx []int) *Table {
	rows := make([][]float64, len(idx))
	for i, j := range idx {
		rows[i] = append([]float64(nil), t.Rows[j]...)
	}

	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}
}

// Concat appends the rows of the given tables. All tables must share the
// same columns.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", pkgerrors.ErrInvalidInput)
	}
	out := &Table{Columns: append([]string(nil), tables[0].Columns...)}
	for _, t := range tables {
		if strings.Join(t.Columns, ",") != strings.Join(out.Columns, ",") {
			return nil, fmt.Errorf("%w: column mismatch", pkgerrors.ErrInvalidInput)
		}
		for _, r := range t.Rows {
			out.Rows = append(out.Rows, append([]float64(nil), r...))
		}
	}

	return out, nil
}

// ReadCSV parses a header line followed by numeric rows.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var rows [][]float64
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		row := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %q: %w", pkgerrors.ErrInvalidInput, line, header[i], err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	return NewTable(header, rows)
}
