package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/cohort"
	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/registry"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/google/uuid"
)

type service struct {
	models   storage.ModelRepository
	reports  storage.ReportRepository
	registry *registry.Registry
	pubsub   mqtt.PubSub
	topics   mqtt.Topics
	names    namegenerator.NameGenerator
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]fitRun
	loaded  map[string]*estimator.Driver
}

type fitRun struct {
	driver *estimator.Driver
	cancel context.CancelFunc
}

// NewService wires the coordinator. pubsub may be nil, in which case no
// events are published and Subscribe is a no-op.
func NewService(repos *storage.Repositories, reg *registry.Registry, pubsub mqtt.PubSub, topicPrefix string, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &service{
		models:   repos.Models,
		reports:  repos.Reports,
		registry: reg,
		pubsub:   pubsub,
		topics:   mqtt.NewTopics(topicPrefix),
		names:    namegenerator.NewGenerator(),
		logger:   logger,
		running:  make(map[string]fitRun),
		loaded:   make(map[string]*estimator.Driver),
	}
}

func (svc *service) Fit(ctx context.Context, req FitRequest) (model.Model, error) {
	if req.Data == nil || req.Data.Len() == 0 {
		return model.Model{}, fmt.Errorf("%w: empty training data", pkgerrors.ErrInvalidInput)
	}
	if req.Label == "" || req.Data.Index(req.Label) < 0 {
		return model.Model{}, fmt.Errorf("%w: label %q is not a data column", pkgerrors.ErrInvalidInput, req.Label)
	}
	if req.Name == "" {
		req.Name = svc.names.Generate()
	}

	manifest, err := cohort.NewManifest(req.Name, req.Label, req.Data, req.Estimator, req.Trainer)
	if err != nil {
		return model.Model{}, err
	}
	cfg := req.Estimator.Build(req.Trainer)

	m := model.Model{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Label:     req.Label,
		Features:  manifest.Features,
		Workers:   cfg.NumWorkers,
		Status:    model.StatusFitting,
		Config:    manifest.Estimator,
		CreatedAt: manifest.CreatedAt,
		UpdatedAt: manifest.CreatedAt,
	}
	if err := svc.models.Create(ctx, m); err != nil {
		return model.Model{}, err
	}

	reporters := trainer.Reporters{&reportSink{repo: svc.reports, modelID: m.ID}}
	if svc.pubsub != nil {
		reporters = append(reporters, trainer.BestEffort(trainer.NewMQTTReporter(svc.pubsub, svc.topics.Reports(m.ID)), svc.logger))
	}
	d, err := estimator.NewDriver(cfg, estimator.WithLogger(svc.logger), estimator.WithReporter(reporters))
	if err != nil {
		return svc.fail(ctx, m, err)
	}

	fitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.mu.Lock()
	svc.running[m.ID] = fitRun{driver: d, cancel: cancel}
	svc.mu.Unlock()
	defer func() {
		svc.mu.Lock()
		delete(svc.running, m.ID)
		svc.mu.Unlock()
	}()

	var opts []estimator.FitOption
	if req.Epochs > 0 {
		opts = append(opts, estimator.WithEpochs(req.Epochs))
	}
	if err := d.Fit(fitCtx, req.Data, req.Label, opts...); err != nil {
		return svc.fail(ctx, m, err)
	}
	// A stopped fit returns without error but never loads rank 0's state.
	if !d.Initialized() {
		return svc.fail(ctx, m, fmt.Errorf("%w: stopped before rank 0 returned its state", pkgerrors.ErrInterrupted))
	}
	b, err := d.SaveState()
	if err != nil {
		return svc.fail(ctx, m, err)
	}
	if err := svc.registry.Save(m.ID, manifest, b); err != nil {
		return svc.fail(ctx, m, err)
	}

	m.Status = model.StatusFitted
	m.UpdatedAt = time.Now().UTC()
	if err := svc.models.Update(context.WithoutCancel(ctx), m); err != nil {
		return model.Model{}, err
	}

	svc.mu.Lock()
	svc.loaded[m.ID] = d
	svc.mu.Unlock()

	svc.publish(ctx, m.ID, mqtt.EventFitted, m)

	return m, nil
}

func (svc *service) fail(ctx context.Context, m model.Model, cause error) (model.Model, error) {
	m.Status = model.StatusFailed
	m.Error = cause.Error()
	m.UpdatedAt = time.Now().UTC()
	if err := svc.models.Update(context.WithoutCancel(ctx), m); err != nil {
		return model.Model{}, errors.Join(cause, err)
	}

	return model.Model{}, cause
}

func (svc *service) GetModel(ctx context.Context, id string) (model.Model, error) {
	return svc.models.Get(ctx, id)
}

func (svc *service) ListModels(ctx context.Context, offset, limit uint64) (model.ModelsPage, error) {
	models, total, err := svc.models.List(ctx, offset, limit)
	if err != nil {
		return model.ModelsPage{}, err
	}

	return model.ModelsPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Models: models,
	}, nil
}

func (svc *service) DeleteModel(ctx context.Context, id string) error {
	if _, err := svc.models.Get(ctx, id); err != nil {
		return err
	}

	svc.mu.Lock()
	if _, ok := svc.running[id]; ok {
		svc.mu.Unlock()

		return pkgerrors.ErrModelBusy
	}
	delete(svc.loaded, id)
	svc.mu.Unlock()

	if err := svc.registry.Delete(id); err != nil {
		return err
	}
	if err := svc.reports.DeleteByModel(ctx, id); err != nil {
		return err
	}
	if err := svc.models.Delete(ctx, id); err != nil {
		return err
	}
	svc.publish(ctx, id, mqtt.EventDeleted, map[string]string{"id": id})

	return nil
}

func (svc *service) StopFit(ctx context.Context, id string) error {
	svc.mu.Lock()
	run, ok := svc.running[id]
	svc.mu.Unlock()
	if ok {
		run.driver.Stop()
		run.cancel()

		return nil
	}

	if _, err := svc.models.Get(ctx, id); err != nil {
		return err
	}

	return pkgerrors.ErrNotRunning
}

func (svc *service) PredictProba(ctx context.Context, id string, x *dataset.Table) ([][]float64, error) {
	d, err := svc.driver(ctx, id)
	if err != nil {
		return nil, err
	}

	return d.PredictProba(ctx, x)
}

func (svc *service) Predict(ctx context.Context, id string, x *dataset.Table) ([]int, error) {
	d, err := svc.driver(ctx, id)
	if err != nil {
		return nil, err
	}

	return d.Predict(ctx, x)
}

// driver returns the fitted driver for id, restoring it from the registry
// on first use.
func (svc *service) driver(ctx context.Context, id string) (*estimator.Driver, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if d, ok := svc.loaded[id]; ok {
		return d, nil
	}

	m, err := svc.models.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != model.StatusFitted {
		return nil, pkgerrors.ErrModelNotFitted
	}
	manifest, b, err := svc.registry.Load(id)
	if err != nil {
		return nil, err
	}
	d, err := cohort.Restore(ctx, manifest, b, estimator.WithLogger(svc.logger))
	if err != nil {
		return nil, err
	}
	svc.loaded[id] = d

	return d, nil
}

func (svc *service) Reports(ctx context.Context, id string) ([]model.Report, error) {
	if _, err := svc.models.Get(ctx, id); err != nil {
		return nil, err
	}

	return svc.reports.List(ctx, id)
}

func (svc *service) Shutdown(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	for id, run := range svc.running {
		svc.logger.InfoContext(ctx, "stopping fit", slog.String("model.id", id))
		run.driver.Stop()
		run.cancel()
	}

	return nil
}
