package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32
	Limited   int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds + r.Limited
}

// RunConcurrent releases goroutines together and buckets each outcome by
// sentinel or domain code.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		out   [outcomes]atomic.Int32
	)

	for i := range goroutines {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			out[classify(fn(idx))].Add(1)
		}(i)
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes: out[success].Load(),
		Conflicts: out[conflict].Load(),
		NotFounds: out[notFound].Load(),
		Limited:   out[limited].Load(),
		Errors:    out[other].Load(),
	}
}

type outcome int

const (
	success outcome = iota
	conflict
	notFound
	limited
	other
	outcomes
)

func classify(err error) outcome {
	switch {
	case err == nil:
		return success
	case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeStateConflict):
		return conflict
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		return notFound
	case dErrors.HasCode(err, dErrors.CodeRateLimited):
		return limited
	default:
		return other
	}
}
