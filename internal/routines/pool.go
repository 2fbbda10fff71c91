// Package routines provides a pool of go-routines that execute queued
// functions.
package routines

import (
	"sync"
)

// Pool is a fixed-size go-routine pool.
// Functions are executed in the order they were queued, the amount of
// queued functions is unbounded, Queue never blocks.
type Pool struct {
	lock    sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool

	wg sync.WaitGroup
}

// NewPool creates a pool and starts workers go-routines.
func NewPool(workers int) *Pool {
	if workers < 1 {
		panic("workers must be >=1")
	}

	p := Pool{}
	p.cond = sync.NewCond(&p.lock)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return &p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.lock.Lock()
		for len(p.pending) == 0 && !p.closed {
			p.cond.Wait()
		}

		if len(p.pending) == 0 {
			p.lock.Unlock()
			return
		}

		fn := p.pending[0]
		p.pending[0] = nil
		p.pending = p.pending[1:]
		p.lock.Unlock()

		fn()
	}
}

// Queue schedules fn for execution.
// Calling Queue after Wait panics.
func (p *Pool) Queue(fn func()) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		panic("routines: Queue called after Wait")
	}

	p.pending = append(p.pending, fn)
	p.cond.Signal()
}

// Wait waits until all queued functions were executed and terminates the
// workers.
func (p *Pool) Wait() {
	p.lock.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.lock.Unlock()

	p.wg.Wait()
}
