package history_test

import (
	"encoding/json"
	"math"
	"testing"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() history.History {
	var h history.History
	for epoch := 1; epoch <= 2; epoch++ {
		h.NewEpoch()
		h.Record("epoch", epoch)
		for range 2 {
			h.NewBatch()
			h.RecordBatch("train_loss", 0.5/float64(epoch))
			h.RecordBatch("train_batch_size", 4)
		}
		h.Record("train_loss", 1.0)
		h.Record("train_loss_best", epoch == 1)
		h.Record("dur", 0.25)
		h.Record("event_lr", []any{0.1, "warm"})
	}

	return h
}

func TestRecording(t *testing.T) {
	t.Parallel()

	h := sample()
	require.Len(t, h, 2)
	assert.Equal(t, 2, h.Last()["epoch"])
	assert.Len(t, h.Batches(), 2)
	assert.Equal(t, 4, h.LastBatch()["train_batch_size"])
	assert.Equal(t, []any{1, 2}, h.Column("epoch"))

	var empty history.History
	empty.Record("x", 1)
	empty.NewBatch()
	assert.Nil(t, empty.Last())
}

func TestJSONKeepsTypes(t *testing.T) {
	t.Parallel()

	h := sample()
	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"train_loss":1.0`)
	assert.Contains(t, string(data), `"epoch":1`)

	var got history.History
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, h, got)
}

func TestJSONNonFinite(t *testing.T) {
	t.Parallel()

	h := history.History{{"loss": math.Inf(1), "batches": []history.Record{}}}
	data, err := json.Marshal(h)
	require.NoError(t, err)

	var got history.History
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, math.IsInf(got[0]["loss"].(float64), 1))
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc  string
		value any
	}{
		{desc: "nan string", value: "NaN"},
		{desc: "infinity string", value: "Infinity"},
		{desc: "negative infinity string", value: "-Infinity"},
		{desc: "float slice", value: []float64{1, 2.5}},
		{desc: "empty float slice", value: []float64{}},
		{desc: "int slice", value: []int{1, 2}},
		{desc: "string slice", value: []string{"a", "NaN"}},
		{desc: "mixed list", value: []any{1, 0.5, "x"}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			h := history.History{{"v": tc.value, "batches": []history.Record{}}}
			data, err := json.Marshal(h)
			require.NoError(t, err)

			var got history.History
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, h, got)
		})
	}
}

func TestJSONNonFiniteSlices(t *testing.T) {
	t.Parallel()

	h := history.History{{
		"vals":    []float64{math.Inf(-1), 3},
		"mixed":   []any{math.NaN(), "NaN"},
		"batches": []history.Record{},
	}}
	data, err := json.Marshal(h)
	require.NoError(t, err)

	var got history.History
	require.NoError(t, json.Unmarshal(data, &got))
	vals := got[0]["vals"].([]float64)
	assert.True(t, math.IsInf(vals[0], -1))
	assert.Equal(t, 3.0, vals[1])
	mixed := got[0]["mixed"].([]any)
	assert.True(t, math.IsNaN(mixed[0].(float64)))
	assert.Equal(t, "NaN", mixed[1])
}

func TestUnmarshalRejectsBadTags(t *testing.T) {
	t.Parallel()

	for _, data := range []string{
		`[{"v":{"$float":"big"}}]`,
		`[{"v":{"$ints":[1.5]}}]`,
		`[{"v":{"$floats":"x"}}]`,
		`[{"v":{"$strings":[1]}}]`,
	} {
		var h history.History
		assert.ErrorIs(t, h.UnmarshalJSON([]byte(data)), pkgerrors.ErrInvalidData, data)
	}
}

func TestUnmarshalRejectsNonList(t *testing.T) {
	t.Parallel()

	var h history.History
	err := h.UnmarshalJSON([]byte(`{"epoch":1}`))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)

	err = h.UnmarshalJSON([]byte(`[1,2]`))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
}

func TestClone(t *testing.T) {
	t.Parallel()

	h := sample()
	c := h.Clone()
	c.RecordBatch("train_loss", 9.0)
	c.Record("epoch", 10)

	assert.Equal(t, 2, h.Last()["epoch"])
	assert.Equal(t, 0.25, h.LastBatch()["train_loss"])
}
