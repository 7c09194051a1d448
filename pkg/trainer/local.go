package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"github.com/absmach/cohort/pkg/collective"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/session"
	"golang.org/x/sync/errgroup"
)

var _ Trainer = (*Local)(nil)

// Local runs every worker as a goroutine of the current process. Workers
// share nothing but the gradient reducer of the run.
type Local struct {
	cfg      Config
	reporter session.Reporter
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
}

type Option func(*Local)

func WithReporter(r session.Reporter) Option {
	return func(l *Local) {
		l.reporter = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Local) {
		l.logger = logger
	}
}

func NewLocal(cfg Config, opts ...Option) (*Local, error) {
	if cfg.NumWorkers < 1 {
		return nil, fmt.Errorf("%w: num_workers must be at least 1, got %d", pkgerrors.ErrInvalidInput, cfg.NumWorkers)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendDDP
	}
	l := &Local{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

func (l *Local) Config() Config { return l.cfg }

func (l *Local) Backend() string { return l.cfg.Backend }

func (l *Local) Start(ctx context.Context, hook InitHook) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return pkgerrors.ErrAlreadyStarted
	}
	if hook != nil {
		g, gctx := errgroup.WithContext(ctx)
		for rank := range l.cfg.NumWorkers {
			g.Go(func() (err error) {
				defer recoverWorker(rank, &err)
				s := session.New(rank, rank, l.cfg.NumWorkers, nil, l.reporter, nil)
				if err := hook(session.With(gctx, s)); err != nil {
					return fmt.Errorf("%w: rank %d init hook: %w", pkgerrors.ErrWorkerFailed, rank, err)
				}

				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	l.started = true
	l.logger.Info("trainer started", slog.String("backend", l.cfg.Backend), slog.Int("workers", l.cfg.NumWorkers))

	return nil
}

func (l *Local) Run(ctx context.Context, fn Func, config map[string]any, datasets map[string]*dataset.Table) ([]Result, error) {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return nil, pkgerrors.ErrNotStarted
	}

	n := l.cfg.NumWorkers
	shards := make([]map[string]*dataset.Table, n)
	for rank := range shards {
		shards[rank] = make(map[string]*dataset.Table, len(datasets))
	}
	for name, tbl := range datasets {
		for _, s := range tbl.Split(n) {
			shards[s.Index][name] = s.Table
		}
	}

	begin := time.Now()
	group := collective.NewGroup(n)
	results := make([]Result, n)
	g, gctx := errgroup.WithContext(ctx)
	for rank := range n {
		g.Go(func() (err error) {
			defer group.Exit(rank)
			defer func() {
				if err != nil {
					group.Abort(err)
				}
			}()
			defer recoverWorker(rank, &err)

			cfg := maps.Clone(config)
			if cfg == nil {
				cfg = make(map[string]any)
			}
			s := session.New(rank, rank, n, shards[rank], l.reporter, group)
			res, err := fn(session.With(gctx, s), cfg)
			if err != nil {
				return fmt.Errorf("%w: rank %d: %w", pkgerrors.ErrWorkerFailed, rank, err)
			}
			if res == nil {
				res = Result{}
			}
			results[rank] = res

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.logger.Warn("distributed run failed", slog.Any("error", err), slog.String("duration", time.Since(begin).String()))

		return nil, err
	}
	l.logger.Debug("distributed run completed", slog.Int("workers", n), slog.String("duration", time.Since(begin).String()))

	return results, nil
}

func (l *Local) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return pkgerrors.ErrNotStarted
	}
	l.started = false
	l.logger.Info("trainer shut down", slog.String("backend", l.cfg.Backend))

	return nil
}

func recoverWorker(rank int, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: rank %d panicked: %v\n%s", pkgerrors.ErrWorkerFailed, rank, r, debug.Stack())
	}
}
