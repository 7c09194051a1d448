// Package history records per-epoch and per-batch training metrics.
//
// A History is a list of epoch records. Each epoch record carries a
// "batches" list with one record per processed batch. The JSON form keeps
// value types: floats are always written with a fraction or exponent so
// that integers and floats survive a round trip unchanged. Non-finite floats
// and typed slices are written as single-key objects ({"$float":"NaN"},
// {"$floats":[...]}, {"$ints":[...]}, {"$strings":[...]}), so record keys
// starting with "$" are reserved.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

// BatchesKey holds the per-batch records of an epoch.
const BatchesKey = "batches"

const (
	floatTag   = "$float"
	floatsTag  = "$floats"
	intsTag    = "$ints"
	stringsTag = "$strings"
)

type Record map[string]any

type History []Record

// NewEpoch opens a new epoch record.
func (h *History) NewEpoch() {
	*h = append(*h, Record{BatchesKey: []Record{}})
}

// NewBatch opens a new batch record in the current epoch.
func (h History) NewBatch() {
	last := h.Last()
	if last == nil {
		return
	}
	batches, _ := last[BatchesKey].([]Record)
	last[BatchesKey] = append(batches, Record{})
}

// Record sets key on the current epoch.
func (h History) Record(key string, value any) {
	if last := h.Last(); last != nil {
		last[key] = value
	}
}

// RecordBatch sets key on the current batch of the current epoch.
func (h History) RecordBatch(key string, value any) {
	if b := h.LastBatch(); b != nil {
		b[key] = value
	}
}

func (h History) Last() Record {
	if len(h) == 0 {
		return nil
	}

	return h[len(h)-1]
}

func (h History) Batches() []Record {
	last := h.Last()
	if last == nil {
		return nil
	}
	batches, _ := last[BatchesKey].([]Record)

	return batches
}

func (h History) LastBatch() Record {
	batches := h.Batches()
	if len(batches) == 0 {
		return nil
	}

	return batches[len(batches)-1]
}

// Column returns key across epochs; epochs without key are skipped.
func (h History) Column(key string) []any {
	var out []any
	for _, r := range h {
		if v, ok := r[key]; ok {
			out = append(out, v)
		}
	}

	return out
}

func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, r := range h {
		out[i] = r.Clone()
	}

	return out
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		return Record(t).Clone()
	case []Record:
		out := make([]Record, len(t))
		for i, r := range t {
			out[i] = r.Clone()
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}

		return out
	case []float64:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

func (h History) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, []Record(h)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (h *History) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
	}
	if raw == nil {
		*h = nil

		return nil
	}
	v, err := convert(raw)
	if err != nil {
		return err
	}
	records, ok := v.([]Record)
	if !ok {
		return fmt.Errorf("%w: history must be a list of records", pkgerrors.ErrInvalidData)
	}
	*h = History(records)

	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case int:
		buf.WriteString(strconv.Itoa(t))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case float32:
		writeFloat(buf, float64(t))
	case float64:
		writeFloat(buf, t)
	case Record:
		return writeObject(buf, t)
	case map[string]any:
		return writeObject(buf, t)
	case []Record:
		buf.WriteByte('[')
		for i, r := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeObject(buf, r); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []float64:
		buf.WriteString(`{"` + floatsTag + `":[`)
		for i, f := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeFloat(buf, f)
		}
		buf.WriteString(`]}`)
	case []int:
		buf.WriteString(`{"` + intsTag + `":[`)
		for i, n := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Itoa(n))
		}
		buf.WriteString(`]}`)
	case []string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.WriteString(`{"` + stringsTag + `":`)
		buf.Write(b)
		buf.WriteByte('}')
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
		}
		buf.Write(b)
	}

	return nil
}

func writeObject(buf *bytes.Buffer, m map[string]any) error {
	buf.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(m)) {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := writeValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')

	return nil
}

// Non-finite values have no JSON literal and are written as tagged objects.
func writeFloat(buf *bytes.Buffer, f float64) {
	switch {
	case math.IsNaN(f):
		buf.WriteString(`{"` + floatTag + `":"NaN"}`)
	case math.IsInf(f, 1):
		buf.WriteString(`{"` + floatTag + `":"Infinity"}`)
	case math.IsInf(f, -1):
		buf.WriteString(`{"` + floatTag + `":"-Infinity"}`)
	default:
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	}
}

func convert(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			return t.Float64()
		}
		n, err := t.Int64()
		if err != nil {
			return t.Float64()
		}

		return int(n), nil
	case map[string]any:
		if v, ok, err := untag(t); ok {
			return v, err
		}
		r := make(Record, len(t))
		for k, e := range t {
			c, err := convert(e)
			if err != nil {
				return nil, err
			}
			r[k] = c
		}

		return r, nil
	case []any:
		if allObjects(t) {
			out := make([]Record, len(t))
			for i, e := range t {
				c, err := convert(e)
				if err != nil {
					return nil, err
				}
				out[i] = c.(Record)
			}

			return out, nil
		}
		out := make([]any, len(t))
		for i, e := range t {
			c, err := convert(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}

		return out, nil
	default:
		return v, nil
	}
}

// allObjects is true for empty lists; an empty list decodes as []Record.
func allObjects(l []any) bool {
	for _, e := range l {
		m, ok := e.(map[string]any)
		if !ok || isTagged(m) {
			return false
		}
	}

	return true
}

func isTagged(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	for k := range m {
		switch k {
		case floatTag, floatsTag, intsTag, stringsTag:
			return true
		}
	}

	return false
}

// untag decodes the single-key objects written for non-finite floats and
// typed slices.
func untag(m map[string]any) (any, bool, error) {
	if !isTagged(m) {
		return nil, false, nil
	}
	for k, v := range m {
		switch k {
		case floatTag:
			f, err := nonFinite(v)

			return f, true, err
		case floatsTag:
			l, ok := v.([]any)
			if !ok {
				return nil, true, fmt.Errorf("%w: %s must be a list", pkgerrors.ErrInvalidData, k)
			}
			out := make([]float64, len(l))
			for i, e := range l {
				f, err := toFloat(e)
				if err != nil {
					return nil, true, err
				}
				out[i] = f
			}

			return out, true, nil
		case intsTag:
			l, ok := v.([]any)
			if !ok {
				return nil, true, fmt.Errorf("%w: %s must be a list", pkgerrors.ErrInvalidData, k)
			}
			out := make([]int, len(l))
			for i, e := range l {
				n, ok := e.(json.Number)
				if !ok {
					return nil, true, fmt.Errorf("%w: %s holds a non-number", pkgerrors.ErrInvalidData, k)
				}
				i64, err := n.Int64()
				if err != nil {
					return nil, true, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
				}
				out[i] = int(i64)
			}

			return out, true, nil
		case stringsTag:
			l, ok := v.([]any)
			if !ok {
				return nil, true, fmt.Errorf("%w: %s must be a list", pkgerrors.ErrInvalidData, k)
			}
			out := make([]string, len(l))
			for i, e := range l {
				str, ok := e.(string)
				if !ok {
					return nil, true, fmt.Errorf("%w: %s holds a non-string", pkgerrors.ErrInvalidData, k)
				}
				out[i] = str
			}

			return out, true, nil
		}
	}

	return nil, false, nil
}

func nonFinite(v any) (float64, error) {
	switch v {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}

	return 0, fmt.Errorf("%w: bad %s value %v", pkgerrors.ErrInvalidData, floatTag, v)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
		}

		return f, nil
	case map[string]any:
		if f, ok, err := untag(t); ok {
			if err != nil {
				return 0, err
			}
			if x, ok := f.(float64); ok {
				return x, nil
			}
		}
	}

	return 0, fmt.Errorf("%w: expected a float, got %v", pkgerrors.ErrInvalidData, v)
}
