// Package sched provides the block/wake primitive the process core
// cooperates with: a WaitQueue parks the calling context until a
// predicate holds, a wakeup arrives, or the wait is interrupted by a
// pending signal. Execution-context switching itself lives outside this
// module; callers run on ordinary goroutines supplied by the scheduler
// layer.
package sched

import (
	"context"
	"errors"
	"sync"
)

// ErrInterrupted reports that a wait was cut short because a signal
// became deliverable to the waiting thread. The syscall layer surfaces
// it as EINTR.
var ErrInterrupted = errors.New("wait interrupted by signal")

// WaitQueue is a broadcast wakeup point. The zero value is ready to use.
type WaitQueue struct {
	mu      sync.Mutex
	waiters map[chan struct{}]struct{}
}

// Broadcast wakes every parked waiter. Waiters re-evaluate their
// predicate and park again if it still does not hold.
func (wq *WaitQueue) Broadcast() {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	for ch := range wq.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (wq *WaitQueue) add() chan struct{} {
	ch := make(chan struct{}, 1)
	wq.mu.Lock()
	if wq.waiters == nil {
		wq.waiters = make(map[chan struct{}]struct{})
	}
	wq.waiters[ch] = struct{}{}
	wq.mu.Unlock()
	return ch
}

func (wq *WaitQueue) remove(ch chan struct{}) {
	wq.mu.Lock()
	delete(wq.waiters, ch)
	wq.mu.Unlock()
}

// Wait parks until cond returns true. interrupt, when non-nil, aborts the
// wait with ErrInterrupted as soon as it is receivable; pass nil for an
// uninterruptible wait. Context cancellation and deadline expiry abort
// the wait with the context's error.
//
// cond is evaluated with no WaitQueue lock held; it must do its own
// synchronization. The waiter is registered before each evaluation so a
// Broadcast between evaluation and parking is never lost.
func (wq *WaitQueue) Wait(ctx context.Context, interrupt <-chan struct{}, cond func() bool) error {
	for {
		ch := wq.add()
		if cond() {
			wq.remove(ch)
			return nil
		}
		select {
		case <-ch:
			wq.remove(ch)
		case <-interrupt:
			wq.remove(ch)
			return ErrInterrupted
		case <-ctx.Done():
			wq.remove(ch)
			return ctx.Err()
		}
	}
}
