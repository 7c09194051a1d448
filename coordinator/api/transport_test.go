package api_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/coordinator/api"
	"github.com/absmach/cohort/coordinator/mocks"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const contentType = "application/json"

func newServer(t *testing.T) (*httptest.Server, *mocks.MockService) {
	t.Helper()

	svc := new(mocks.MockService)
	logger := slog.New(slog.DiscardHandler)
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test-instance"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func do(t *testing.T, method, url, ct string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })

	return res
}

func table() *dataset.Table {
	return &dataset.Table{
		Columns: []string{"a", "b", "y"},
		Rows:    [][]float64{{0, 1, 0}, {1, 0, 1}},
	}
}

func TestFit(t *testing.T) {
	fitted := model.Model{ID: "m-1", Name: "quiet-river", Label: "y", Status: model.StatusFitted}

	cases := []struct {
		desc   string
		ct     string
		body   any
		svcErr error
		status int
	}{
		{
			desc:   "fit successfully",
			ct:     contentType,
			body:   coordinator.FitRequest{Label: "y", Data: table()},
			status: http.StatusCreated,
		},
		{
			desc:   "missing label",
			ct:     contentType,
			body:   coordinator.FitRequest{Data: table()},
			status: http.StatusBadRequest,
		},
		{
			desc:   "missing data",
			ct:     contentType,
			body:   coordinator.FitRequest{Label: "y"},
			status: http.StatusBadRequest,
		},
		{
			desc: "ragged rows",
			ct:   contentType,
			body: coordinator.FitRequest{Label: "y", Data: &dataset.Table{
				Columns: []string{"a", "y"},
				Rows:    [][]float64{{0, 1, 2}},
			}},
			status: http.StatusBadRequest,
		},
		{
			desc:   "wrong content type",
			ct:     "text/plain",
			body:   coordinator.FitRequest{Label: "y", Data: table()},
			status: http.StatusUnsupportedMediaType,
		},
		{
			desc:   "worker failure",
			ct:     contentType,
			body:   coordinator.FitRequest{Label: "y", Data: table()},
			svcErr: pkgerrors.ErrWorkerFailed,
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("Fit", mock.Anything, mock.Anything).Return(fitted, tc.svcErr)

			res := do(t, http.MethodPost, ts.URL+"/models", tc.ct, tc.body)
			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status == http.StatusCreated {
				assert.Equal(t, "/models/m-1", res.Header.Get("Location"))
				var got model.Model
				require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
				assert.Equal(t, fitted.ID, got.ID)
				assert.Equal(t, fitted.Status, got.Status)
			}
		})
	}
}

func TestGetModel(t *testing.T) {
	cases := []struct {
		desc   string
		svcErr error
		status int
	}{
		{desc: "get existing model", status: http.StatusOK},
		{desc: "get missing model", svcErr: pkgerrors.ErrNotFound, status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("GetModel", mock.Anything, "m-1").Return(model.Model{ID: "m-1"}, tc.svcErr)

			res := do(t, http.MethodGet, ts.URL+"/models/m-1", "", nil)
			assert.Equal(t, tc.status, res.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}

func TestListModels(t *testing.T) {
	cases := []struct {
		desc   string
		query  string
		offset uint64
		limit  uint64
		status int
	}{
		{desc: "defaults", query: "", offset: 0, limit: 10, status: http.StatusOK},
		{desc: "explicit page", query: "?offset=5&limit=20", offset: 5, limit: 20, status: http.StatusOK},
		{desc: "limit too large", query: "?limit=1000", status: http.StatusBadRequest},
		{desc: "invalid offset", query: "?offset=abc", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("ListModels", mock.Anything, tc.offset, tc.limit).
				Return(model.ModelsPage{Offset: tc.offset, Limit: tc.limit}, nil)

			res := do(t, http.MethodGet, ts.URL+"/models"+tc.query, "", nil)
			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusOK {
				svc.AssertNotCalled(t, "ListModels", mock.Anything, mock.Anything, mock.Anything)

				return
			}
			var page model.ModelsPage
			require.NoError(t, json.NewDecoder(res.Body).Decode(&page))
			assert.Equal(t, tc.limit, page.Limit)
			assert.NotNil(t, page.Models)
		})
	}
}

func TestDeleteModel(t *testing.T) {
	cases := []struct {
		desc   string
		svcErr error
		status int
	}{
		{desc: "delete model", status: http.StatusNoContent},
		{desc: "delete running model", svcErr: pkgerrors.ErrModelBusy, status: http.StatusConflict},
		{desc: "delete missing model", svcErr: pkgerrors.ErrNotFound, status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("DeleteModel", mock.Anything, "m-1").Return(tc.svcErr)

			res := do(t, http.MethodDelete, ts.URL+"/models/m-1", "", nil)
			assert.Equal(t, tc.status, res.StatusCode)
		})
	}
}

func TestStopFit(t *testing.T) {
	cases := []struct {
		desc   string
		svcErr error
		status int
	}{
		{desc: "stop running fit", status: http.StatusAccepted},
		{desc: "stop idle model", svcErr: pkgerrors.ErrNotRunning, status: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("StopFit", mock.Anything, "m-1").Return(tc.svcErr)

			res := do(t, http.MethodPost, ts.URL+"/models/m-1/stop", "", nil)
			assert.Equal(t, tc.status, res.StatusCode)
		})
	}
}

func TestPredict(t *testing.T) {
	x := &dataset.Table{Columns: []string{"a", "b"}, Rows: [][]float64{{0, 1}, {1, 0}}}

	t.Run("probabilities", func(t *testing.T) {
		ts, svc := newServer(t)
		svc.On("PredictProba", mock.Anything, "m-1", mock.Anything).Return([][]float64{{0.2}, {0.9}}, nil)

		res := do(t, http.MethodPost, ts.URL+"/models/m-1/predict_proba", contentType, map[string]any{"data": x})
		require.Equal(t, http.StatusOK, res.StatusCode)

		var body struct {
			Probabilities [][]float64 `json:"probabilities"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		assert.Equal(t, [][]float64{{0.2}, {0.9}}, body.Probabilities)
	})

	t.Run("labels", func(t *testing.T) {
		ts, svc := newServer(t)
		svc.On("Predict", mock.Anything, "m-1", mock.Anything).Return([]int{0, 1}, nil)

		res := do(t, http.MethodPost, ts.URL+"/models/m-1/predict", contentType, map[string]any{"data": x})
		require.Equal(t, http.StatusOK, res.StatusCode)

		var body struct {
			Predictions []int `json:"predictions"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		assert.Equal(t, []int{0, 1}, body.Predictions)
	})

	t.Run("model not fitted", func(t *testing.T) {
		ts, svc := newServer(t)
		svc.On("PredictProba", mock.Anything, "m-1", mock.Anything).Return(nil, pkgerrors.ErrModelNotFitted)

		res := do(t, http.MethodPost, ts.URL+"/models/m-1/predict_proba", contentType, map[string]any{"data": x})
		assert.Equal(t, http.StatusConflict, res.StatusCode)
	})

	t.Run("missing data", func(t *testing.T) {
		ts, svc := newServer(t)

		res := do(t, http.MethodPost, ts.URL+"/models/m-1/predict_proba", contentType, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		svc.AssertNotCalled(t, "PredictProba", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReports(t *testing.T) {
	ts, svc := newServer(t)
	svc.On("Reports", mock.Anything, "m-1").Return(nil, nil)

	res := do(t, http.MethodGet, ts.URL+"/models/m-1/reports", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "[]", string(body["reports"]))
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newServer(t)

	res := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/plain"))
}
