// Package effects runs the best-effort work a command queues after its
// primary write: activity records, event publishes, blob deletions.
package effects

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"project-hub-backend/pkg/metrics"
)

// Effect is one named unit of follow-up work.
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

// List is the ordered set of effects returned by a command.
type List []Effect

// Add appends an effect.
func (l *List) Add(name string, run func(ctx context.Context) error) {
	*l = append(*l, Effect{Name: name, Run: run})
}

// Extend appends every effect of other.
func (l *List) Extend(other List) {
	*l = append(*l, other...)
}

// Failure records one failed effect.
type Failure struct {
	Name string
	Err  error
}

// Runner executes effect lists. In async mode each list runs on its own
// goroutine, detached from the request context.
type Runner struct {
	async   bool
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewRunner(async bool, logger *zap.Logger) *Runner {
	return &Runner{async: async, timeout: 30 * time.Second, logger: logger}
}

// Dispatch runs list synchronously or in the background depending on the
// runner mode. Failures are logged and counted, never returned.
func (r *Runner) Dispatch(ctx context.Context, list List) {
	if len(list) == 0 {
		return
	}
	if !r.async {
		r.Run(ctx, list)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.Run(bg, list)
	}()
}

// Run executes every effect in order, continuing past failures, and returns
// the failures.
func (r *Runner) Run(ctx context.Context, list List) []Failure {
	var failures []Failure
	for _, e := range list {
		err := runOne(ctx, e)
		metrics.RecordSideEffect(e.Name, err)
		if err != nil {
			r.logger.Warn("Side effect failed", zap.String("effect", e.Name), zap.Error(err))
			failures = append(failures, Failure{Name: e.Name, Err: err})
		}
	}
	return failures
}

func runOne(ctx context.Context, e Effect) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return e.Run(ctx)
}

// Wait blocks until every background dispatch finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
