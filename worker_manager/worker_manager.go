package worker_manager

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/fornellas/slogxt/log"
)

type workerType struct {
	name       string
	fn         func(context.Context) error
	cancelFunc context.CancelFunc
	errCh      chan error
}

// WorkerManager manages a group of workers and coordinates their execution. The last added worker
// is the main one: when any worker returns, the main worker is cancelled, and once the main worker
// returns, Wait cancels all others.
type WorkerManager struct {
	mu      sync.Mutex
	workers []*workerType
}

// NewWorkerManager creates a new WorkerManager.
func NewWorkerManager() *WorkerManager {
	return &WorkerManager{}
}

// AddWorker registers a worker, to be started by Start.
func (wm *WorkerManager) AddWorker(name string, fn func(context.Context) error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.workers = append([]*workerType{{name: name, fn: fn}}, wm.workers...)
}

// Start starts all workers.
func (wm *WorkerManager) Start(ctx context.Context) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	ctx, logger := log.MustWithGroup(ctx, "Worker Manager > Workers")
	logger.Debug("Starting workers")
	for _, worker := range wm.workers {
		if worker.errCh != nil {
			panic(fmt.Sprintf("bug: worker %s already started", worker.name))
		}
		workerCtx, workerLogger := log.MustWithGroup(ctx, worker.name)
		workerCtx, worker.cancelFunc = context.WithCancel(workerCtx)
		worker.errCh = make(chan error, 1)
		go func() {
			var err error
			defer func() {
				workerLogger.Debug("Finished", "err", err)
				wm.Cancel(workerCtx)
				if r := recover(); r != nil {
					workerLogger.Error("Panic", "recovered", r, "stack", string(debug.Stack()))
					worker.errCh <- fmt.Errorf("panic: %v", r)
				} else {
					worker.errCh <- err
				}
			}()
			workerLogger.Debug("Starting")
			err = worker.fn(workerCtx)
		}()
	}
	logger.Debug("All workers started")
}

// Cancel cancels the main worker.
func (wm *WorkerManager) Cancel(ctx context.Context) {
	logger := log.MustLogger(ctx).WithGroup("Worker Manager > Cancel")
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if len(wm.workers) == 0 {
		return
	}
	worker := wm.workers[0]
	if worker.cancelFunc == nil {
		return
	}
	logger = logger.With("name", worker.name)
	logger.Debug("Cancelling")
	worker.cancelFunc()
}

// Wait waits for the main worker to return, then cancels and waits for all other workers. It
// returns each worker's error by name.
func (wm *WorkerManager) Wait(ctx context.Context) map[string]error {
	logger := log.MustLogger(ctx).WithGroup("Worker Manager > Wait")
	logger.Debug("Waiting for all workers")
	wm.mu.Lock()
	workers := wm.workers
	wm.mu.Unlock()
	errMap := map[string]error{}
	for i, worker := range workers {
		workerLogger := logger.WithGroup(worker.name)
		if i > 0 {
			workerLogger.Debug("Cancelling")
			worker.cancelFunc()
		}
		workerLogger.Debug("Waiting")
		errMap[worker.name] = <-worker.errCh
	}
	wm.mu.Lock()
	wm.workers = nil
	wm.mu.Unlock()
	logger.Debug("All workers returned")
	return errMap
}

// WaitErr is like Wait, but joins all errors other than context.Canceled.
func (wm *WorkerManager) WaitErr(ctx context.Context) error {
	errMap := wm.Wait(ctx)
	names := make([]string, 0, len(errMap))
	for name := range errMap {
		names = append(names, name)
	}
	sort.Strings(names)
	var err error
	for _, name := range names {
		workerErr := errMap[name]
		if workerErr == nil || errors.Is(workerErr, context.Canceled) {
			continue
		}
		err = errors.Join(err, fmt.Errorf("%s: %w", name, workerErr))
	}
	return err
}

// Run starts all workers and calls WaitErr.
func (wm *WorkerManager) Run(ctx context.Context) error {
	wm.Start(ctx)
	return wm.WaitErr(ctx)
}
