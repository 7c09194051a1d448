package api

import (
	"net/http"

	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*modelResponse)(nil)
	_ supermq.Response = (*listModelsResponse)(nil)
	_ supermq.Response = (*predictResponse)(nil)
	_ supermq.Response = (*reportsResponse)(nil)
	_ supermq.Response = (*stopResponse)(nil)
)

type modelResponse struct {
	model.Model
	created bool
	deleted bool
}

func (m modelResponse) Code() int {
	if m.created {
		return http.StatusCreated
	}
	if m.deleted {
		return http.StatusNoContent
	}

	return http.StatusOK
}

func (m modelResponse) Headers() map[string]string {
	if m.created {
		return map[string]string{
			"Location": "/models/" + m.ID,
		}
	}

	return map[string]string{}
}

func (m modelResponse) Empty() bool {
	return m.deleted
}

type listModelsResponse struct {
	model.ModelsPage
}

func (l listModelsResponse) Code() int {
	return http.StatusOK
}

func (l listModelsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listModelsResponse) Empty() bool {
	return false
}

type predictResponse struct {
	ID            string      `json:"id"`
	Probabilities [][]float64 `json:"probabilities,omitempty"`
	Predictions   []int       `json:"predictions,omitempty"`
}

func (p predictResponse) Code() int {
	return http.StatusOK
}

func (p predictResponse) Headers() map[string]string {
	return map[string]string{}
}

func (p predictResponse) Empty() bool {
	return false
}

type reportsResponse struct {
	ID      string         `json:"id"`
	Reports []model.Report `json:"reports"`
}

func (r reportsResponse) Code() int {
	return http.StatusOK
}

func (r reportsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r reportsResponse) Empty() bool {
	return false
}

type stopResponse struct{}

func (s stopResponse) Code() int {
	return http.StatusAccepted
}

func (s stopResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s stopResponse) Empty() bool {
	return true
}
