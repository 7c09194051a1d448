package api

import (
	"fmt"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/api"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
)

type fitReq struct {
	coordinator.FitRequest `json:",inline"`
}

func (r *fitReq) validate() error {
	if r.Label == "" {
		return errMissingLabel
	}
	if r.Data == nil || r.Data.Len() == 0 {
		return fmt.Errorf("%w: empty training data", pkgerrors.ErrInvalidInput)
	}
	if _, err := dataset.NewTable(r.Data.Columns, r.Data.Rows); err != nil {
		return err
	}

	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return errLimitSize
	}

	return nil
}

type predictReq struct {
	id   string
	Data *dataset.Table `json:"data"`
}

func (r *predictReq) validate() error {
	if r.id == "" {
		return apiutil.ErrMissingID
	}
	if r.Data == nil || len(r.Data.Columns) == 0 {
		return fmt.Errorf("%w: empty input data", pkgerrors.ErrInvalidInput)
	}
	if _, err := dataset.NewTable(r.Data.Columns, r.Data.Rows); err != nil {
		return err
	}

	return nil
}
