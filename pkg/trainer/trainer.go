// Package trainer runs worker closures on a pool of workers. A Trainer is
// started once, accepts any number of dispatches and is shut down once;
// Scope brackets that lifecycle around a single piece of work.
package trainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/cohort/pkg/dataset"
)

// BackendDDP is the data-parallel backend: every worker holds a full model
// replica and gradients are averaged across workers.
const BackendDDP = "ddp"

// Config is the resource-scoped configuration. Changing it requires a new
// Trainer.
type Config struct {
	Backend    string `toml:"backend"     json:"backend"`
	NumWorkers int    `toml:"num_workers" json:"num_workers"`
	UseGPU     bool   `toml:"use_gpu"     json:"use_gpu"`
}

// Result is one worker's contribution to a run.
type Result map[string]any

// Func is the closure executed by every worker. ctx carries the worker
// session.
type Func func(ctx context.Context, config map[string]any) (Result, error)

// InitHook runs once on every worker when the trainer starts.
type InitHook func(ctx context.Context) error

type Trainer interface {
	Backend() string
	Start(ctx context.Context, hook InitHook) error
	// Run dispatches fn to every worker with the named datasets sharded
	// across them and returns one result per worker in rank order.
	Run(ctx context.Context, fn Func, config map[string]any, datasets map[string]*dataset.Table) ([]Result, error)
	Shutdown(ctx context.Context) error
}

// Scope starts t, runs fn and shuts t down exactly once on every exit path,
// panics included. fn's error is returned, joined with any shutdown error.
func Scope(ctx context.Context, t Trainer, hook InitHook, fn func(ctx context.Context) error) (err error) {
	if err := t.Start(ctx, hook); err != nil {
		return fmt.Errorf("failed to start trainer: %w", err)
	}
	defer func() {
		if serr := t.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			err = errors.Join(err, fmt.Errorf("failed to shut down trainer: %w", serr))
		}
	}()

	return fn(ctx)
}
