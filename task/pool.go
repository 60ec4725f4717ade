// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/featurebasedb/sqlgateway/errors"
)

const (
	ErrPoolClosed errors.Code = "PoolClosed"
)

// Pool runs submitted tasks on an elastic set of goroutines, aiming for a
// given number of unblocked workers. If the Pool's Block method is called,
// this marks one worker as blocked; the Unblock method marks it as
// unblocked. When there are insufficient unblocked workers, more are
// spawned. When there are excess workers, they exit after their current
// task.
//
// The pool can be shut down by calling Close(), setting its target number
// of workers to 0.
type Pool struct {
	mu        sync.Mutex // locker used for cond
	cond      *sync.Cond // notify of exiting workers
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	targetN   int32 // desired number
	unblocked int32 // currently active and unblocked
	live      int32 // currently active including blocked
	stats     PoolStats
}

// PoolStats receives the pool size whenever it changes.
type PoolStats interface {
	PoolSize(int) // reports current pool size
}

// NewPool creates a pool that attempts to keep targetN goroutines
// unblocked. Up to queue submitted tasks wait for a worker before Submit
// blocks. stats, if not nil, is updated with the current size of the pool
// when that changes.
func NewPool(targetN, queue int, stats PoolStats) *Pool {
	if targetN < 1 {
		targetN = 1
	}
	p := &Pool{
		targetN: int32(targetN),
		tasks:   make(chan func(), queue),
		done:    make(chan struct{}),
		stats:   stats,
	}
	p.cond = sync.NewCond(&p.mu)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < targetN; i++ {
		p.addWorker()
	}
	return p
}

// Submit queues fn to run on a worker. It waits for room in the queue until
// ctx is done, and fails once the pool is shut down.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-p.done:
		return errors.New(ErrPoolClosed, "worker pool is closed")
	default:
	}
	select {
	case p.tasks <- fn:
		return nil
	case <-p.done:
		return errors.New(ErrPoolClosed, "worker pool is closed")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for a worker")
	}
}

// Block marks a worker as blocked, indicating that we may need a new worker
// spawned because the caller is about to be blocked for an indeterminate
// period of time. If a new worker is needed, it's spawned immediately before
// Block returns.
func (p *Pool) Block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	unblocked := atomic.AddInt32(&p.unblocked, -1)
	target := atomic.LoadInt32(&p.targetN)
	if unblocked < target {
		p.addWorker()
	}
}

// Unblock marks a worker as unblocked, potentially allowing the pool to
// retire a worker at some point in the future.
func (p *Pool) Unblock() {
	atomic.AddInt32(&p.unblocked, 1)
}

// Shutdown tells a pool to terminate by setting its desired pool size
// to zero, but does not wait for running tasks to stop. Queued tasks which
// have not started are dropped. It is safe to call this before calling
// Close.
func (p *Pool) Shutdown() {
	atomic.StoreInt32(&p.targetN, 0)
	p.closeOnce.Do(func() { close(p.done) })
}

// Stats reports on the pool's current state -- total live workers it
// has, how many it thinks are unblocked, and what its target is.
// These numbers are sampled individually, and there's no locking, so they
// are not guaranteed to be consistent.
func (p *Pool) Stats() (live, unblocked, target int) {
	return int(atomic.LoadInt32(&p.live)), int(atomic.LoadInt32(&p.unblocked)), int(atomic.LoadInt32(&p.targetN))
}

// Close is a Shutdown followed by waiting for all workers to exit.
func (p *Pool) Close() {
	// p.cond.Wait() releases this lock and reacquires it when the wait
	// succeeds, so nothing which uses the lock can run between our read
	// of live and our wait on the condition variable.
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Shutdown()
	live := atomic.LoadInt32(&p.live)
	for live > 0 {
		p.cond.Wait()
		live = atomic.LoadInt32(&p.live)
	}
}

// addWorker increments the number of unblocked things, and starts a worker.
// The unblocked count is technically wrong until the worker gets running, but
// it's right "soon". The live count maintenance is done inside the worker.
func (p *Pool) addWorker() {
	live := atomic.AddInt32(&p.live, 1)
	if p.stats != nil {
		p.stats.PoolSize(int(live))
	}
	atomic.AddInt32(&p.unblocked, 1)
	go p.work()
}

// step runs one queued task, or returns when the pool shuts down.
func (p *Pool) step() {
	select {
	case fn := <-p.tasks:
		fn()
	case <-p.done:
	}
}

// work runs tasks in a loop as long as there's not too many unblocked
// goroutines, otherwise it exits.
func (p *Pool) work() {
	defer func() {
		// The lock keeps our modification of p.live from landing
		// between the read of p.live and the wait on the condition
		// variable in p.Close, which would lose the broadcast.
		p.mu.Lock()
		defer p.mu.Unlock()
		live := atomic.AddInt32(&p.live, -1)
		if p.stats != nil {
			p.stats.PoolSize(int(live))
		}
		if live == 0 {
			p.cond.Broadcast()
		}
	}()
	for {
		unblocked := atomic.LoadInt32(&p.unblocked)
		target := atomic.LoadInt32(&p.targetN)
		for unblocked > target {
			// Might have too many!
			if atomic.CompareAndSwapInt32(&p.unblocked, unblocked, unblocked-1) {
				// we've removed ourselves from the unblocked count; the
				// deferred func removes us from the live count.
				return
			}
			// unblocked changed under us, or someone told us to
			// terminate. Reload both and check again.
			unblocked = atomic.LoadInt32(&p.unblocked)
			target = atomic.LoadInt32(&p.targetN)
		}
		p.step()
	}
}
