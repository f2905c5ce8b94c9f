// Package batch runs independent jobs with bounded concurrency.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of work.
type Job[T any] func(ctx context.Context) (T, error)

// Result is the outcome of the job at Index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Run executes jobs with at most limit running at once (limit <= 0 means
// one at a time) and returns one result per job in input order. A failing
// job does not stop the others. Jobs not yet started when ctx is done report
// ctx.Err(); a panicking job reports the panic as its error.
func Run[T any](ctx context.Context, limit int, jobs []Job[T]) []Result[T] {
	if limit <= 0 {
		limit = 1
	}
	results := make([]Result[T], len(jobs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, job := range jobs {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Value, results[i].Err = runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runJob[T any](ctx context.Context, job Job[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

// Errors returns the non-nil errors of results, in order.
func Errors[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
