// Package collective synchronizes the workers of one run. A Group provides an
// epoch barrier and a weighted-mean all-reduce over gradient vectors.
//
// Membership is dynamic. Barrier admits every live worker into a training
// pass; a worker that runs out of batches calls Leave so the remaining
// workers keep reducing among themselves, and a worker that returns from its
// closure calls Exit.
package collective

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/session"
)

var (
	ErrAborted   = errors.New("collective group aborted")
	errNotInPass = errors.New("rank is not inside a training pass")
	errNotMember = errors.New("rank is not a group member")
)

var _ session.Reducer = (*Group)(nil)

type Group struct {
	mu   sync.Mutex
	cond *sync.Cond

	alive   map[int]bool
	inPass  map[int]bool
	arrived map[int]bool
	barrier uint64

	sum         []float64
	weight      float64
	contributed map[int]bool
	round       uint64
	result      []float64

	err error
}

// NewGroup returns a group whose members are ranks [0, size).
func NewGroup(size int) *Group {
	g := &Group{
		alive:       make(map[int]bool, size),
		inPass:      make(map[int]bool, size),
		arrived:     make(map[int]bool, size),
		contributed: make(map[int]bool, size),
	}
	g.cond = sync.NewCond(&g.mu)
	for r := range size {
		g.alive[r] = true
	}

	return g
}

func (g *Group) Barrier(ctx context.Context, rank int) error {
	stop := g.wakeOnDone(ctx)
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return g.err
	}
	if !g.alive[rank] {
		return fmt.Errorf("%w: %d", errNotMember, rank)
	}
	g.arrived[rank] = true
	gen := g.barrier
	g.releaseBarrier()

	for g.barrier == gen {
		if g.err != nil {
			return g.err
		}
		if err := ctx.Err(); err != nil {
			g.abort(err)

			return g.err
		}
		g.cond.Wait()
	}

	return nil
}

func (g *Group) AllReduce(ctx context.Context, rank int, values []float64, weight float64) error {
	if weight <= 0 {
		return fmt.Errorf("%w: all-reduce weight must be positive", pkgerrors.ErrInvalidInput)
	}

	stop := g.wakeOnDone(ctx)
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return g.err
	}
	if !g.inPass[rank] {
		return fmt.Errorf("%w: %d", errNotInPass, rank)
	}
	if g.sum == nil {
		g.sum = make([]float64, len(values))
	}
	if len(g.sum) != len(values) {
		err := fmt.Errorf("%w: rank %d sent %d values, want %d", pkgerrors.ErrInvalidInput, rank, len(values), len(g.sum))
		g.abort(err)

		return g.err
	}
	for i, v := range values {
		g.sum[i] += v * weight
	}
	g.weight += weight
	g.contributed[rank] = true
	gen := g.round
	g.releaseRound()

	for g.round == gen {
		if g.err != nil {
			return g.err
		}
		if err := ctx.Err(); err != nil {
			g.abort(err)

			return g.err
		}
		g.cond.Wait()
	}
	copy(values, g.result)

	return nil
}

func (g *Group) Leave(rank int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inPass[rank] {
		return
	}
	delete(g.inPass, rank)
	g.releaseRound()
}

func (g *Group) Exit(rank int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.alive, rank)
	delete(g.inPass, rank)
	delete(g.arrived, rank)
	g.releaseRound()
	g.releaseBarrier()
}

// Abort fails every pending and future call with cause.
func (g *Group) Abort(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.abort(cause)
}

func (g *Group) abort(cause error) {
	if g.err == nil {
		g.err = fmt.Errorf("%w: %w", ErrAborted, cause)
	}
	g.cond.Broadcast()
}

func (g *Group) releaseBarrier() {
	if len(g.arrived) == 0 || len(g.arrived) < len(g.alive) {
		return
	}
	for r := range g.alive {
		g.inPass[r] = true
	}
	clear(g.arrived)
	g.barrier++
	g.cond.Broadcast()
}

func (g *Group) releaseRound() {
	if len(g.contributed) == 0 || len(g.contributed) < len(g.inPass) {
		return
	}
	result := make([]float64, len(g.sum))
	for i, v := range g.sum {
		result[i] = v / g.weight
	}
	g.result = result
	g.sum = nil
	g.weight = 0
	clear(g.contributed)
	g.round++
	g.cond.Broadcast()
}

func (g *Group) wakeOnDone(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.cond.Broadcast()
	})
}

// Mean returns the weighted mean of equally sized vectors.
func Mean(values [][]float64, weights []float64) ([]float64, error) {
	if len(values) == 0 || len(values) != len(weights) {
		return nil, fmt.Errorf("%w: %d vectors and %d weights", pkgerrors.ErrInvalidInput, len(values), len(weights))
	}
	out := make([]float64, len(values[0]))
	var total float64
	for i, v := range values {
		if len(v) != len(out) {
			return nil, fmt.Errorf("%w: vector %d has length %d, want %d", pkgerrors.ErrInvalidInput, i, len(v), len(out))
		}
		for j, x := range v {
			out[j] += x * weights[i]
		}
		total += weights[i]
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total weight must be positive", pkgerrors.ErrInvalidInput)
	}
	for j := range out {
		out[j] /= total
	}

	return out, nil
}
