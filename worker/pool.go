package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	sh "github.com/gofhir/smarthealth"
)

// WorkFunc processes one bundle and returns its product, typically a
// signed card. The small signature avoids a dependency on the shc
// package.
type WorkFunc func(bundle map[string]any) (any, error)

// Job represents one unit of batch work.
type Job struct {
	// Index is the position of the job in its batch; results carry it
	// back so callers can restore submission order.
	Index int

	// Bundle is the FHIR Bundle to process.
	Bundle map[string]any
}

// JobResult is the outcome of one job.
type JobResult struct {
	// Index matches the Job.Index that produced this result.
	Index int

	// Value is the product of the work function.
	Value any

	// Err is set when the work function failed.
	Err error

	// Duration is the processing time.
	Duration time.Duration
}

// Pool manages a pool of worker goroutines for parallel batch work.
type Pool struct {
	workers    int
	jobsChan   chan Job
	resultChan chan *JobResult
	work       WorkFunc
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool

	jobsSubmitted atomic.Uint64
	jobsCompleted atomic.Uint64
}

// NewPool creates a new worker pool with the specified number of
// workers. If workers <= 0, it defaults to runtime.NumCPU().
func NewPool(work WorkFunc, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		workers:    workers,
		jobsChan:   make(chan Job, workers*2),
		resultChan: make(chan *JobResult, workers*2),
		work:       work,
		ctx:        ctx,
		cancel:     cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Submit submits a job to the pool. It blocks if the queue is full and
// returns false once the pool is closed.
func (p *Pool) Submit(job Job) bool {
	if p.closed.Load() {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobsChan <- job:
		p.jobsSubmitted.Add(1)
		return true
	}
}

// Results returns the channel for receiving job results.
func (p *Pool) Results() <-chan *JobResult {
	return p.resultChan
}

// Close shuts down the pool and waits for workers to finish. Pending
// results are discarded.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}

	p.cancel()
	close(p.jobsChan)

	done := make(chan struct{})
	go func() {
		for range p.resultChan {
			// Discard
		}
		close(done)
	}()

	p.wg.Wait()
	close(p.resultChan)
	<-done
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobsChan {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.processJob(job)
		p.jobsCompleted.Add(1)

		select {
		case <-p.ctx.Done():
			return
		case p.resultChan <- result:
		}
	}
}

func (p *Pool) processJob(job Job) *JobResult {
	start := time.Now()

	result := &JobResult{Index: job.Index}
	if p.work == nil {
		result.Err = sh.NewError(sh.KindPayloadValidation, "pool has no work function")
		result.Duration = time.Since(start)
		return result
	}

	result.Value, result.Err = p.work(job.Bundle)
	result.Duration = time.Since(start)
	return result
}

// RunBatch processes bundles through a Pool and returns the results in
// submission order. Small batches run sequentially. The context cancels
// outstanding work; jobs not started when ctx fires report ctx.Err().
func RunBatch(ctx context.Context, work WorkFunc, bundles []map[string]any, workers int) []*JobResult {
	results := make([]*JobResult, len(bundles))
	if len(bundles) == 0 {
		return results
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// For tiny batches parallelism costs more than it saves.
	if len(bundles) <= 2 || workers == 1 {
		for i, bundle := range bundles {
			results[i] = runOne(ctx, work, i, bundle)
		}
		return results
	}

	// Cancellation rides on the work function: jobs popped after ctx
	// fires complete immediately with the context error.
	wrapped := func(bundle map[string]any) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if work == nil {
			return nil, sh.NewError(sh.KindPayloadValidation, "pool has no work function")
		}
		return work(bundle)
	}

	p := NewPool(wrapped, workers)
	defer p.Close()

	go func() {
		for i, bundle := range bundles {
			if !p.Submit(Job{Index: i, Bundle: bundle}) {
				return
			}
		}
	}()

	for range bundles {
		r := <-p.Results()
		results[r.Index] = r
	}
	return results
}

// runOne executes a single job inline.
func runOne(ctx context.Context, work WorkFunc, index int, bundle map[string]any) *JobResult {
	if err := ctx.Err(); err != nil {
		return &JobResult{Index: index, Err: err}
	}
	if work == nil {
		return &JobResult{Index: index, Err: sh.NewError(sh.KindPayloadValidation, "pool has no work function")}
	}
	start := time.Now()
	value, err := work(bundle)
	return &JobResult{Index: index, Value: value, Err: err, Duration: time.Since(start)}
}
