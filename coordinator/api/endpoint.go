package api

import (
	"context"
	"errors"

	"github.com/absmach/cohort/coordinator"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

var (
	errMissingLabel = errors.New("missing label column")
	errLimitSize    = errors.New("invalid limit size")
)

func fitEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(fitReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		m, err := svc.Fit(ctx, req.FitRequest)
		if err != nil {
			return modelResponse{}, err
		}

		return modelResponse{
			Model:   m,
			created: true,
		}, nil
	}
}

func getModelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		m, err := svc.GetModel(ctx, req.id)
		if err != nil {
			return modelResponse{}, err
		}

		return modelResponse{
			Model: m,
		}, nil
	}
}

func listModelsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listModelsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listModelsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListModels(ctx, req.offset, req.limit)
		if err != nil {
			return listModelsResponse{}, err
		}
		if page.Models == nil {
			page.Models = []model.Model{}
		}

		return listModelsResponse{
			ModelsPage: page,
		}, nil
	}
}

func deleteModelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.DeleteModel(ctx, req.id); err != nil {
			return modelResponse{}, err
		}

		return modelResponse{
			deleted: true,
		}, nil
	}
}

func stopFitEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return stopResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return stopResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.StopFit(ctx, req.id); err != nil {
			return stopResponse{}, err
		}

		return stopResponse{}, nil
	}
}

func predictProbaEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(predictReq)
		if !ok {
			return predictResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return predictResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		probs, err := svc.PredictProba(ctx, req.id, req.Data)
		if err != nil {
			return predictResponse{}, err
		}

		return predictResponse{
			ID:            req.id,
			Probabilities: probs,
		}, nil
	}
}

func predictEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(predictReq)
		if !ok {
			return predictResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return predictResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		preds, err := svc.Predict(ctx, req.id, req.Data)
		if err != nil {
			return predictResponse{}, err
		}

		return predictResponse{
			ID:          req.id,
			Predictions: preds,
		}, nil
	}
}

func reportsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return reportsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return reportsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		reports, err := svc.Reports(ctx, req.id)
		if err != nil {
			return reportsResponse{}, err
		}
		if reports == nil {
			reports = []model.Report{}
		}

		return reportsResponse{
			ID:      req.id,
			Reports: reports,
		}, nil
	}
}
