package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

var ErrWorkerClosed = errors.New("db worker closed")

type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx      context.Context
	fn       TxFn
	ch       chan error
	queuedAt time.Time
}

// Worker runs every write transaction on one goroutine, so transactions
// never interleave. Reads may use the *sql.DB directly.
type Worker struct {
	db      *sql.DB
	jobs    chan job
	done    chan struct{}
	observe func(wait time.Duration)

	mu     sync.RWMutex
	closed bool
}

type WorkerOption func(*Worker)

// WithWaitObserver reports how long each job sat in the queue before its
// transaction began.
func WithWaitObserver(fn func(wait time.Duration)) WorkerOption {
	return func(w *Worker) { w.observe = fn }
}

func NewWorker(db *sql.DB, opts ...WorkerOption) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w
}

// Close stops accepting jobs, drains the queue and waits for the loop to exit.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
}

// Do runs fn inside a transaction on the worker goroutine and waits for the
// commit. If ctx ends first Do returns ctx.Err(); a job already started still
// runs to completion.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch, queuedAt: time.Now()}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWorkerClosed
	}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		if w.observe != nil {
			w.observe(time.Since(j.queuedAt))
		}
		if err := j.ctx.Err(); err != nil {
			j.ch <- err
			continue
		}

		tx, err := w.db.BeginTx(j.ctx, nil)
		if err != nil {
			j.ch <- err
			continue
		}

		if err := j.fn(j.ctx, tx); err != nil {
			_ = tx.Rollback()
			j.ch <- err
			continue
		}

		j.ch <- tx.Commit()
	}
}
