package server

import (
	"errors"
	"fmt"

	"github.com/chazu/liveobjects/object"
)

// ErrStopped is returned by Do after the worker has been stopped.
var ErrStopped = errors.New("worker stopped")

// workRequest is a unit of work to be executed on the registry goroutine.
type workRequest struct {
	fn   func(*object.Registry) (any, error)
	done chan workResult
}

// workResult holds the return value from a registry operation.
type workResult struct {
	value any
	err   error
}

// Worker serializes all registry access through a single goroutine.
// Objects and their Starlark values are not safe for concurrent use, so
// every handler and the image watcher go through the worker.
type Worker struct {
	reg      *object.Registry
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(reg *object.Registry) *Worker {
	w := &Worker{
		reg:      reg,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn against the registry, recovering from panics.
func (w *Worker) execute(fn func(*object.Registry) (any, error)) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker panic: %v", r)
			result = workResult{err: fmt.Errorf("%v", r)}
		}
	}()
	value, err := fn(w.reg)
	return workResult{value: value, err: err}
}

// Do submits fn for execution on the registry goroutine and blocks until it
// completes. Panics inside fn come back as errors.
func (w *Worker) Do(fn func(*object.Registry) (any, error)) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
}
