package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodySize = 1024 * 1024 * 100

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/models", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			fitEndpoint(svc),
			decodeFitReq,
			api.EncodeResponse,
			opts...,
		), "fit").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listModelsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-models").ServeHTTP)
		r.Route("/{modelID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getModelEndpoint(svc),
				decodeEntityReq("modelID"),
				api.EncodeResponse,
				opts...,
			), "get-model").ServeHTTP)
			r.Delete("/", otelhttp.NewHandler(kithttp.NewServer(
				deleteModelEndpoint(svc),
				decodeEntityReq("modelID"),
				api.EncodeResponse,
				opts...,
			), "delete-model").ServeHTTP)
			r.Post("/stop", otelhttp.NewHandler(kithttp.NewServer(
				stopFitEndpoint(svc),
				decodeEntityReq("modelID"),
				api.EncodeResponse,
				opts...,
			), "stop-fit").ServeHTTP)
			r.Post("/predict", otelhttp.NewHandler(kithttp.NewServer(
				predictEndpoint(svc),
				decodePredictReq("modelID"),
				api.EncodeResponse,
				opts...,
			), "predict").ServeHTTP)
			r.Post("/predict_proba", otelhttp.NewHandler(kithttp.NewServer(
				predictProbaEndpoint(svc),
				decodePredictReq("modelID"),
				api.EncodeResponse,
				opts...,
			), "predict-proba").ServeHTTP)
			r.Get("/reports", otelhttp.NewHandler(kithttp.NewServer(
				reportsEndpoint(svc),
				decodeEntityReq("modelID"),
				api.EncodeResponse,
				opts...,
			), "list-reports").ServeHTTP)
		})
	})

	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeFitReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req fitReq
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodePredictReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
			return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
		}

		req := predictReq{id: chi.URLParam(r, key)}
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(&req); err != nil {
			return nil, errors.Join(err, apiutil.ErrValidation)
		}

		return req, nil
	}
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}
