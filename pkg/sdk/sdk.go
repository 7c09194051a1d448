package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/model"
)

const CTJSON string = "application/json"

type SDK interface {
	// Fit trains a model on the coordinator and waits for the fit to end.
	//
	// example:
	//  req := coordinator.FitRequest{
	//    Label: "y",
	//    Data:  table,
	//  }
	//  m, _ := sdk.Fit(req)
	//  fmt.Println(m.Status)
	Fit(req coordinator.FitRequest) (model.Model, error)

	// GetModel gets a model by id.
	//
	// example:
	//  m, _ := sdk.GetModel("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(m)
	GetModel(id string) (model.Model, error)

	// ListModels lists models, newest first.
	//
	// example:
	//  page, _ := sdk.ListModels(0, 10)
	//  fmt.Println(page)
	ListModels(offset, limit uint64) (model.ModelsPage, error)

	// DeleteModel deletes a model with its state and reports.
	//
	// example:
	//  _ = sdk.DeleteModel("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	DeleteModel(id string) error

	// StopFit interrupts a running fit.
	//
	// example:
	//  _ = sdk.StopFit("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	StopFit(id string) error

	// Predict returns the predicted class per row of x.
	Predict(id string, x *dataset.Table) ([]int, error)

	// PredictProba returns the positive class probability per row of x.
	PredictProba(id string, x *dataset.Table) ([][]float64, error)

	// Reports lists the epoch reports of a model's fit.
	Reports(id string) ([]model.Report, error)
}

type cohortSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &cohortSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *cohortSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, e.Error)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
