package qbf

import "sync"

// backgroundWorker runs a single cancellable goroutine that polls a
// cooperative cancellation flag between units of work. Grounded on
// original_source/src/util/sys/background_worker.hpp's BackgroundWorker,
// the same utility the original uses for QbfJob's run() thread
// (independently of its other use guarding the subprocess adapter's
// revisioning writer in internal/subprocess).
type backgroundWorker struct {
	mu        sync.Mutex
	terminate bool
	running   bool
	wg        sync.WaitGroup
}

func (w *backgroundWorker) run(fn func()) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.terminate = false
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer func() {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			w.wg.Done()
		}()
		fn()
	}()
}

func (w *backgroundWorker) continueRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.terminate
}

func (w *backgroundWorker) stop() {
	w.mu.Lock()
	w.terminate = true
	w.mu.Unlock()
	w.wg.Wait()
}

// stopWithoutWaiting mirrors appl_terminate's use of
// BackgroundWorker::stopWithoutWaiting: signal cancellation but don't
// block the caller on the worker goroutine's exit.
func (w *backgroundWorker) stopWithoutWaiting() {
	w.mu.Lock()
	w.terminate = true
	w.mu.Unlock()
}
