package model

import (
	"encoding/json"
	"time"

	"github.com/absmach/cohort/pkg/session"
)

type Status string

const (
	StatusFitting Status = "fitting"
	StatusFitted  Status = "fitted"
	StatusFailed  Status = "failed"
)

// Model is the record kept for every fit the coordinator runs. The trained
// weights live in the bundle registry under the same ID.
type Model struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Label     string          `json:"label"`
	Features  []string        `json:"features,omitempty"`
	Workers   int             `json:"workers"`
	Status    Status          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Report is one epoch report received from a worker during a fit.
type Report struct {
	ModelID   string           `json:"model_id"`
	Rank      int              `json:"rank"`
	Epoch     int              `json:"epoch"`
	Metrics   []session.Metric `json:"metrics"`
	Timestamp time.Time        `json:"timestamp"`
}

// FromSession attaches a worker report to a model. The epoch is taken from
// the "epoch" metric when present.
func FromSession(modelID string, r session.Report) Report {
	rep := Report{
		ModelID:   modelID,
		Rank:      r.Rank,
		Metrics:   r.Metrics,
		Timestamp: r.Timestamp,
	}
	switch v := r.Map()["epoch"].(type) {
	case int:
		rep.Epoch = v
	case float64:
		rep.Epoch = int(v)
	}

	return rep
}

type ModelsPage struct {
	Offset uint64  `json:"offset"`
	Limit  uint64  `json:"limit"`
	Total  uint64  `json:"total"`
	Models []Model `json:"models"`
}
