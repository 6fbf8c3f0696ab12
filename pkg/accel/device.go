// Package accel is the acceleration provider: it owns triangle buffers, builds
// a bounding volume hierarchy over them, and answers batched nearest-hit
// queries and shrinking-radius point queries.
package accel

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"go.uber.org/zap"
)

// Rays per task when a batch is split across workers
const parallelGrain = 4096

// Device owns the worker pool and the error reporting hook shared by its scenes
type Device struct {
	workers   int
	errorFunc ErrorFunc
	log       *zap.Logger

	mu   sync.RWMutex
	pool worker.DynamicWorkerPool // nil when serial or closed
}

// DeviceOption configures a Device
type DeviceOption func(*Device)

// WithWorkers sets the number of traversal workers. Values <= 0 use runtime.NumCPU().
func WithWorkers(n int) DeviceOption {
	return func(d *Device) {
		d.workers = n
	}
}

// WithErrorFunc installs a callback invoked for every provider error
func WithErrorFunc(fn ErrorFunc) DeviceOption {
	return func(d *Device) {
		d.errorFunc = fn
	}
}

// WithLogger sets the logger used by the default error function and build reporting
func WithLogger(log *zap.Logger) DeviceOption {
	return func(d *Device) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDevice creates a device
func NewDevice(opts ...DeviceOption) *Device {
	d := &Device{
		workers: runtime.NumCPU(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers <= 0 {
		d.workers = runtime.NumCPU()
	}
	if d.errorFunc == nil {
		d.errorFunc = func(code ErrorCode, message string) {
			d.log.Error("accel error", zap.Stringer("code", code), zap.String("message", message))
		}
	}
	if d.workers > 1 {
		// The pool starts every worker up front and keeps them until Close.
		d.pool = worker.NewDynamicWorkerPool(d.workers, 256, 1*time.Second)
	}
	return d
}

// Close stops the device's workers and waits for them to exit. Queries issued
// after Close run on the calling goroutine. Close is idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	pool := d.pool
	d.pool = nil
	d.mu.Unlock()
	if pool == nil {
		return
	}

	// The pool's Stop signals on a channel shared by all workers, and a worker
	// drops ids that are not its own, so some workers can miss their signal.
	// An exit task ends the goroutine that runs it, so each of the workers
	// takes exactly one.
	var exited sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		exited.Add(1)
		pool.SubmitTask(worker.Task{
			ID: -1 - i,
			Do: func() (any, error) {
				exited.Done()
				runtime.Goexit()
				return nil, nil
			},
		})
	}
	exited.Wait()
	d.log.Debug("device closed", zap.Int("workers", d.workers))
}

// Workers returns the number of traversal workers
func (d *Device) Workers() int {
	return d.workers
}

// report forwards an error to the error function and returns it as *Error
func (d *Device) report(code ErrorCode, format string, args ...any) *Error {
	err := &Error{Code: code, Message: fmt.Sprintf(format, args...)}
	d.errorFunc(err.Code, err.Message)
	return err
}

// parallelFor calls fn over [0, n) in disjoint ranges, blocking until all ranges finish
func (d *Device) parallelFor(n int, fn func(start, end int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.pool == nil || n <= parallelGrain {
		fn(0, n)
		return
	}

	var wg sync.WaitGroup
	taskID := 0
	for start := 0; start < n; start += parallelGrain {
		end := min(start+parallelGrain, n)
		wg.Add(1)
		d.pool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				fn(start, end)
				return nil, nil
			},
		})
		taskID++
	}
	wg.Wait()
}
