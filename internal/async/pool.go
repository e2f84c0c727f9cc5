// Package async runs per-message work on a bounded pool.
package async

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Pool runs jobs with at most workers in flight.
type Pool struct {
	workers int
	logger  *slog.Logger
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool returns a sequential pool unless WithWorkers raises the limit.
func NewPool(opts ...Option) *Pool {
	p := &Pool{workers: 1, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Workers is the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Run calls fn for indexes 0..n-1 and waits for every started call. Jobs are isolated: fn has
// no error return and one job cannot cancel another. Once ctx is done no further job starts;
// Run then returns ctx's error.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	scheduled := 0
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, i)
			return nil
		})
		scheduled++
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		p.logger.Warn("async.pool.cancelled", "scheduled", scheduled, "total", n, "error", err)
		return err
	}
	return nil
}
