package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/driveproxy/internal/drive"
)

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result represents the result of a single operation in a batch
type Result struct {
	Name   string          `json:"name"`
	Status string          `json:"status"` // "success" or "error"
	File   *drive.FileInfo `json:"file,omitempty"`
	Error  string          `json:"error,omitempty"`

	err error
}

// Err returns the error of a failed result.
func (r Result) Err() error {
	return r.err
}

// Report represents the aggregated results of a batch operation
type Report struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// NewReport aggregates results, keeping their order.
func NewReport(results []Result) Report {
	r := Report{
		Total:   len(results),
		Results: results,
	}
	for _, res := range results {
		if res.Status == StatusSuccess {
			r.Successful++
		} else {
			r.Failed++
		}
	}
	return r
}

// FirstError returns the first failed result, if any.
func (r Report) FirstError() (Result, bool) {
	for _, res := range r.Results {
		if res.Status != StatusSuccess {
			return res, true
		}
	}
	return Result{}, false
}

// NewSuccessResult creates a success result
func NewSuccessResult(name string, file *drive.FileInfo) Result {
	return Result{
		Name:   name,
		Status: StatusSuccess,
		File:   file,
	}
}

// NewErrorResult creates an error result
func NewErrorResult(name string, err error) Result {
	return Result{
		Name:   name,
		Status: StatusError,
		Error:  err.Error(),
		err:    err,
	}
}

// Process calls fn for each name with at most workers calls in flight and
// returns the results in the order of names. Items are independent: a
// failure does not stop the others. Items not started before ctx is done
// fail with the context error.
func Process(ctx context.Context, names []string, workers int, fn func(ctx context.Context, i int) (*drive.FileInfo, error)) []Result {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(names))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = NewErrorResult(name, err)
				return nil
			}
			file, err := fn(ctx, i)
			if err != nil {
				results[i] = NewErrorResult(name, err)
			} else {
				results[i] = NewSuccessResult(name, file)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
