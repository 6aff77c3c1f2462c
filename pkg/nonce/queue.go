// Package nonce serializes outbound transactions per source address and
// tracks the next account nonce (or sequence) for each of them.
package nonce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultIdleTimeout = 5 * time.Minute
	jobBuffer          = 64
)

// ErrQueueClosed is returned by Do after Close.
var ErrQueueClosed = errors.New("address queue closed")

// Task is one unit of serialized work. It returns the broadcast tx hash.
type Task func(ctx context.Context) (string, error)

type result struct {
	hash string
	err  error
}

const (
	jobQueued int32 = iota
	jobStarted
	jobAbandoned
)

type job struct {
	ctx    context.Context
	task   Task
	result chan result
	state  *atomic.Int32
}

type worker struct {
	jobs    chan job
	pending int
}

// Queue runs tasks strictly one at a time, in submission order, per key.
// Each key gets its own worker goroutine; idle workers exit.
type Queue struct {
	mu      sync.Mutex
	workers map[string]*worker
	idle    time.Duration
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewQueue creates a queue whose workers exit after idle without work.
// A non-positive idle uses five minutes.
func NewQueue(idle time.Duration) *Queue {
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Queue{
		workers: make(map[string]*worker),
		idle:    idle,
		done:    make(chan struct{}),
	}
}

// Do enqueues task under key and waits for its result. If ctx ends before the
// task starts, the task is skipped. A task that has started always runs to
// completion and Do returns its result, since it may already have broadcast.
func (q *Queue) Do(ctx context.Context, key string, task Task) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	w, ok := q.workers[key]
	if !ok {
		w = &worker{jobs: make(chan job, jobBuffer)}
		q.workers[key] = w
		q.wg.Add(1)
		go q.run(key, w)
	}
	w.pending++
	q.mu.Unlock()

	res := make(chan result, 1)
	state := new(atomic.Int32)
	w.jobs <- job{ctx: ctx, task: task, result: res, state: state}

	select {
	case r := <-res:
		return r.hash, r.err
	case <-ctx.Done():
		if state.CompareAndSwap(jobQueued, jobAbandoned) {
			return "", ctx.Err()
		}
		r := <-res
		return r.hash, r.err
	}
}

func (q *Queue) run(key string, w *worker) {
	defer q.wg.Done()

	for {
		select {
		case j := <-w.jobs:
			q.execute(w, j)
		case <-time.After(q.idle):
			if q.retire(key, w) {
				return
			}
		case <-q.done:
			if q.retire(key, w) {
				return
			}
			q.execute(w, <-w.jobs)
		}
	}
}

// retire removes the worker if nothing is pending.
func (q *Queue) retire(key string, w *worker) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w.pending > 0 {
		return false
	}
	delete(q.workers, key)
	return true
}

func (q *Queue) execute(w *worker, j job) {
	var r result
	switch {
	case !j.state.CompareAndSwap(jobQueued, jobStarted):
		r.err = context.Canceled
	case j.ctx.Err() != nil:
		r.err = j.ctx.Err()
	default:
		r.hash, r.err = j.task(j.ctx)
	}
	j.result <- r

	q.mu.Lock()
	w.pending--
	q.mu.Unlock()
}

// Close rejects new work and waits for queued tasks to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()
	q.wg.Wait()
}
