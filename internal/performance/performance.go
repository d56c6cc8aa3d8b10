// Package performance provides the worker pool used for scenario fan-out,
// batching for archive writes and runtime memory statistics.
package performance

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs submitted tasks on a fixed set of goroutines.
type WorkerPool struct {
	workers    int
	taskQueue  chan func()
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
	panics     atomic.Uint64
}

// NewWorkerPool creates a pool with the given number of workers. If workers
// is 0 or negative, it defaults to runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*4),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Workers returns the pool size.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run executes one task. A panicking task is counted and does not take
// the worker down.
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
		}
		p.tasksDone.Add(1)
	}()
	task()
}

// SubmitContext queues a task, blocking until there is room, ctx is done
// or the pool stops.
func (p *WorkerPool) SubmitContext(ctx context.Context, task func()) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Stop drains the queue and waits for workers to finish queued tasks.
func (p *WorkerPool) Stop() {
	if !p.running.Swap(false) {
		return
	}

	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		Running:    p.running.Load(),
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		Panics:     p.panics.Load(),
		QueueLen:   len(p.taskQueue),
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	Panics     uint64
	QueueLen   int
}

// ErrPoolStopped is returned when submitting to a pool that is not running.
var ErrPoolStopped = fmt.Errorf("worker pool is not running")

// BatchProcessor collects items and hands them to a processor in batches.
type BatchProcessor[T any] struct {
	batchSize int
	processor func([]T) error
	items     []T
	mu        sync.Mutex
}

// NewBatchProcessor creates a batch processor. A non-positive batchSize
// is treated as 1.
func NewBatchProcessor[T any](batchSize int, processor func([]T) error) *BatchProcessor[T] {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchProcessor[T]{
		batchSize: batchSize,
		processor: processor,
		items:     make([]T, 0, batchSize),
	}
}

// Add appends an item and processes the batch once it is full.
func (b *BatchProcessor[T]) Add(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)
	if len(b.items) >= b.batchSize {
		return b.flush()
	}
	return nil
}

// Flush processes any remaining items.
func (b *BatchProcessor[T]) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush()
}

func (b *BatchProcessor[T]) flush() error {
	if len(b.items) == 0 {
		return nil
	}

	err := b.processor(b.items)
	b.items = b.items[:0]
	return err
}

// MemoryStats returns current memory statistics.
func MemoryStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		HeapAlloc:  m.HeapAlloc,
		HeapInuse:  m.HeapInuse,
		Goroutines: runtime.NumGoroutine(),
	}
}

// MemStats contains memory statistics.
type MemStats struct {
	Alloc      uint64 // bytes allocated and still in use
	TotalAlloc uint64 // bytes allocated (even if freed)
	Sys        uint64 // bytes obtained from system
	NumGC      uint32 // number of completed GC cycles
	HeapAlloc  uint64 // bytes allocated on heap
	HeapInuse  uint64 // bytes in non-idle spans
	Goroutines int    // number of goroutines
}

// FormatBytes formats bytes into human-readable form.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), []string{"KB", "MB", "GB", "TB"}[exp])
}
