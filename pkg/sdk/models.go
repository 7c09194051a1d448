package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/model"
)

const modelsEndpoint = "/models"

type predictRequest struct {
	Data *dataset.Table `json:"data"`
}

type predictResponse struct {
	ID            string      `json:"id"`
	Probabilities [][]float64 `json:"probabilities"`
	Predictions   []int       `json:"predictions"`
}

type reportsResponse struct {
	ID      string         `json:"id"`
	Reports []model.Report `json:"reports"`
}

func (sdk *cohortSDK) Fit(req coordinator.FitRequest) (model.Model, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return model.Model{}, err
	}

	url := sdk.coordinatorURL + modelsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return model.Model{}, err
	}

	var m model.Model
	if err := json.Unmarshal(body, &m); err != nil {
		return model.Model{}, err
	}

	return m, nil
}

func (sdk *cohortSDK) GetModel(id string) (model.Model, error) {
	url := sdk.coordinatorURL + modelsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return model.Model{}, err
	}

	var m model.Model
	if err := json.Unmarshal(body, &m); err != nil {
		return model.Model{}, err
	}

	return m, nil
}

func (sdk *cohortSDK) ListModels(offset, limit uint64) (model.ModelsPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.coordinatorURL + modelsEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return model.ModelsPage{}, err
	}

	var page model.ModelsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return model.ModelsPage{}, err
	}

	return page, nil
}

func (sdk *cohortSDK) DeleteModel(id string) error {
	url := sdk.coordinatorURL + modelsEndpoint + "/" + id

	if _, err := sdk.processRequest(http.MethodDelete, url, nil, http.StatusNoContent); err != nil {
		return err
	}

	return nil
}

func (sdk *cohortSDK) StopFit(id string) error {
	url := fmt.Sprintf("%s/models/%s/stop", sdk.coordinatorURL, id)

	if _, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusAccepted); err != nil {
		return err
	}

	return nil
}

func (sdk *cohortSDK) Predict(id string, x *dataset.Table) ([]int, error) {
	resp, err := sdk.predict(id, "predict", x)
	if err != nil {
		return nil, err
	}

	return resp.Predictions, nil
}

func (sdk *cohortSDK) PredictProba(id string, x *dataset.Table) ([][]float64, error) {
	resp, err := sdk.predict(id, "predict_proba", x)
	if err != nil {
		return nil, err
	}

	return resp.Probabilities, nil
}

func (sdk *cohortSDK) predict(id, action string, x *dataset.Table) (predictResponse, error) {
	data, err := json.Marshal(predictRequest{Data: x})
	if err != nil {
		return predictResponse{}, err
	}
	url := fmt.Sprintf("%s/models/%s/%s", sdk.coordinatorURL, id, action)

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusOK)
	if err != nil {
		return predictResponse{}, err
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return predictResponse{}, err
	}

	return resp, nil
}

func (sdk *cohortSDK) Reports(id string) ([]model.Report, error) {
	url := fmt.Sprintf("%s/models/%s/reports", sdk.coordinatorURL, id)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var resp reportsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return resp.Reports, nil
}
