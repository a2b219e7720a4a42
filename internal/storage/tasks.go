package storage

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Pool runs fire-and-forget background tasks (chunk cleanup, thumbnail
// work) on a fixed number of workers with a bounded queue. Submissions are
// rejected once the queue is full rather than queuing without limit.
type Pool struct {
	queue chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// DefaultWorkers and DefaultQueueSize are used when a Pool is created with
// non-positive sizing.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// NewPool starts a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	p := &Pool{queue: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		task()
	}
}

// Submit enqueues a task for background execution. It returns ErrQueueFull
// if the queue is at capacity or the pool is shut down, letting the caller
// decide between running inline and dropping the work.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrQueueFull
	}

	select {
	case p.queue <- task:
		if m := GetMetrics(); m != nil {
			m.QueueDepth.Set(float64(len(p.queue)))
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting new tasks, drains the queue, and waits for the
// workers to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// submitOrInline runs task on the pool, falling back to synchronous
// execution when the pool is saturated. Cleanup must happen either way.
func submitOrInline(p *Pool, task func()) {
	if p == nil {
		task()
		return
	}
	if err := p.Submit(task); err != nil {
		log.Debug().Msg("background queue full, running task inline")
		task()
	}
}
