package runner

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds settings for the runner.
type Config struct {
	Workers   int
	RateLimit float64 // task starts per second, 0 = unlimited
}

// Task handles the target at position idx.
type Task func(ctx context.Context, idx int, target string)

// Runner executes tasks on a bounded worker pool. The rate limit is shared
// by every Run call on the same Runner.
type Runner struct {
	workers int
	limiter *rate.Limiter
}

// New creates a new Runner. Workers below one are raised to one.
func New(cfg Config) *Runner {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Runner{workers: workers, limiter: limiter}
}

// Run calls task once per target and blocks until all started tasks return.
// Targets not yet started when ctx ends are skipped and ctx's error is
// returned.
func (r *Runner) Run(ctx context.Context, targets []string, task Task) error {
	type job struct {
		idx    int
		target string
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	workers := r.workers
	if workers > len(targets) {
		workers = len(targets)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jb := range jobs {
				if err := r.limiter.Wait(ctx); err != nil {
					continue
				}
				task(ctx, jb.idx, jb.target)
			}
		}()
	}

	for i, t := range targets {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- job{idx: i, target: t}:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}
