package process

import (
	"sync"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
)

// Thread is the kernel-visible identity of one schedulable execution
// context. Threads are owned by the task subsystem; the thread group
// holds only weak tid references to them.
type Thread struct {
	id   pid.ID
	proc *Process

	mu sync.Mutex

	// pending holds thread-directed signals. Process-directed signals
	// live in the thread group's shared queue.
	pending signal.Pending

	// blocked is the thread's signal mask. SIGKILL and SIGSTOP bits are
	// ignored at dequeue even if present.
	blocked abi.SignalSet

	// stack is the sigaltstack registration.
	stack signal.Stack

	// sigwait is non-empty while the thread is parked in WaitSignal,
	// naming the signals it will consume even though they are blocked.
	sigwait abi.SignalSet

	// interrupt pokes an interruptible wait when a signal becomes
	// deliverable. Buffered so a wakeup is never lost and a raiser never
	// blocks.
	interrupt chan struct{}
}

func newThread(id pid.ID, p *Process) *Thread {
	return &Thread{
		id:        id,
		proc:      p,
		interrupt: make(chan struct{}, 1),
	}
}

// ID returns the immutable tid.
func (t *Thread) ID() pid.ID {
	return t.id
}

// Process returns the owning process.
func (t *Thread) Process() *Process {
	return t.proc
}

// Interrupt wakes the thread out of an interruptible wait. Raisers call
// it after enqueuing; it never blocks.
func (t *Thread) Interrupt() {
	select {
	case t.interrupt <- struct{}{}:
	default:
	}
}

// InterruptCh exposes the interrupt channel for parking in interruptible
// waits via sched.WaitQueue.
func (t *Thread) InterruptCh() <-chan struct{} {
	return t.interrupt
}

// Blocked returns the current signal mask.
func (t *Thread) Blocked() abi.SignalSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked
}

// SetMaskHow selects how SetMask combines the new mask.
type SetMaskHow int

const (
	// MaskBlock adds the given signals to the mask.
	MaskBlock SetMaskHow = iota
	// MaskUnblock removes the given signals from the mask.
	MaskUnblock
	// MaskSet replaces the mask.
	MaskSet
)

// SetMask updates the blocked mask per how and returns the previous
// mask. Attempts to block SIGKILL or SIGSTOP are silently dropped.
func (t *Thread) SetMask(how SetMaskHow, set abi.SignalSet) abi.SignalSet {
	t.mu.Lock()
	old := t.blocked
	switch how {
	case MaskBlock:
		t.blocked |= set
	case MaskUnblock:
		t.blocked &^= set
	case MaskSet:
		t.blocked = set
	}
	t.blocked &^= abi.UnblockableSet
	t.mu.Unlock()

	// Unblocking may make a queued signal deliverable.
	if old&^t.Blocked() != 0 {
		t.Interrupt()
	}
	return old
}

// RestoreMask reinstates a mask saved at handler delivery. The trap
// layer calls this from its sigreturn path.
func (t *Thread) RestoreMask(saved abi.SignalSet) {
	t.mu.Lock()
	t.blocked = saved &^ abi.UnblockableSet
	t.mu.Unlock()
	t.Interrupt()
}

// SigAltStack returns the current alternate-stack registration.
func (t *Thread) SigAltStack() signal.Stack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stack
}

// SetSigAltStack installs a new alternate-stack registration and returns
// the previous one.
func (t *Thread) SetSigAltStack(s signal.Stack) signal.Stack {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.stack
	t.stack = s
	return old
}
