// Package tasks is the async side-effect pipeline: click recording with
// GeoIP enrichment, metadata backfill, and the periodic expiry sweep. Jobs
// are dispatched fire-and-forget from the request path; failures stay inside
// the worker and never reach the enqueuing request.
package tasks

import (
	"context"
	"sync"
	"time"

	"link-shortener/pkg/logging"
)

type jobKind int

const (
	jobMetadataFetch jobKind = iota
	jobClick
)

type job struct {
	kind      jobKind
	code      string
	ip        string
	userAgent string
	referrer  string
}

// jobTimeout bounds a single job run, including its external calls, so a
// hung remote service cannot starve the worker pool.
const jobTimeout = 30 * time.Second

// Queue is a buffered in-memory job queue drained by a fixed worker pool.
type Queue struct {
	jobs     chan job
	executor *Executor
	logger   *logging.Logger
	wg       sync.WaitGroup
}

func NewQueue(size, workers int, executor *Executor, logger *logging.Logger) *Queue {
	q := &Queue{
		jobs:     make(chan job, size),
		executor: executor,
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// EnqueueMetadataFetch schedules a metadata backfill for the link. Never blocks.
func (q *Queue) EnqueueMetadataFetch(code string) {
	q.enqueue(job{kind: jobMetadataFetch, code: code})
}

// EnqueueClick schedules click recording for a redirect. Never blocks.
func (q *Queue) EnqueueClick(code, ip, userAgent, referrer string) {
	q.enqueue(job{kind: jobClick, code: code, ip: ip, userAgent: userAgent, referrer: referrer})
}

// enqueue drops the job when the queue is full; side effects are best effort
// and the request path must not block on them.
func (q *Queue) enqueue(j job) {
	select {
	case q.jobs <- j:
	default:
		q.logger.Logger.Warn("task queue full, dropping job", "kind", int(j.kind), "code", j.code)
	}
}

// Shutdown stops accepting work and waits for in-flight jobs to finish.
func (q *Queue) Shutdown() {
	close(q.jobs)
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		switch j.kind {
		case jobMetadataFetch:
			q.executor.RunMetadataFetch(ctx, j.code)
		case jobClick:
			q.executor.RunClick(ctx, j.code, j.ip, j.userAgent, j.referrer)
		}
		cancel()
	}
}
