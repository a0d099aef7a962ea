package process

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
)

// SendSignal enqueues a process-directed signal. Blocking only defers
// delivery; the occurrence is queued regardless of thread masks. Ignored
// signals that no thread has blocked are dropped at generation, except
// the unblockable ones. SIGKILL terminates the group unconditionally. A
// zombie is still an existing target: the send succeeds with the signal
// discarded, since nothing can ever deliver it.
func (p *Process) SendSignal(info *abi.SignalInfo) error {
	sig := info.Signo
	if !sig.IsValid() {
		return fmt.Errorf("signal %d: %w", int(sig), errdefs.ErrInvalidArgument)
	}
	if p.Zombie() {
		return nil
	}
	if consumed := p.prepareSignal(sig); consumed {
		return nil
	}

	p.tg.mu.Lock()
	err := p.tg.pending.Enqueue(info)
	p.tg.mu.Unlock()
	if err != nil {
		return err
	}
	p.wakeForSignal(sig)
	return nil
}

// SendSignal enqueues a thread-directed signal on t's private queue.
// Group-wide semantics (SIGKILL, stop, continue) still apply to the
// whole thread group.
func (t *Thread) SendSignal(info *abi.SignalInfo) error {
	sig := info.Signo
	if !sig.IsValid() {
		return fmt.Errorf("signal %d: %w", int(sig), errdefs.ErrInvalidArgument)
	}
	p := t.proc
	if p.Zombie() {
		return nil
	}
	if consumed := p.prepareSignal(sig); consumed {
		return nil
	}
	if p.actions.IsIgnored(sig) && !t.Blocked().Contains(sig) {
		return nil
	}

	t.mu.Lock()
	err := t.pending.Enqueue(info)
	wake := !t.blocked.Contains(sig) || t.sigwait.Contains(sig)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if wake {
		t.Interrupt()
	}
	return nil
}

// SendSignal broadcasts to every live member of the group, returning the
// number of processes signaled. Per-member queue exhaustion does not
// stop the broadcast; the send succeeds when at least one member was
// signaled, and the first error is reported only when none was.
func (pg *ProcessGroup) SendSignal(info *abi.SignalInfo) (int, error) {
	var count int
	var firstErr error
	for _, p := range pg.Members() {
		if p.Zombie() {
			continue
		}
		clone := *info
		if err := p.SendSignal(&clone); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
	}
	if count == 0 && firstErr != nil {
		return 0, firstErr
	}
	return count, nil
}

// prepareSignal applies generation-time semantics. It returns true when
// the signal is fully consumed here and must not be queued.
func (p *Process) prepareSignal(sig abi.Signal) bool {
	switch sig {
	case abi.SIGKILL:
		// Unconditional: no mask or disposition applies.
		p.tg.BeginExit(ExitStatus{Signo: abi.SIGKILL})
		return true
	case abi.SIGSTOP:
		// Unblockable and uncatchable; stops at generation.
		p.tg.stop()
		return true
	case abi.SIGCONT:
		// Resumes even if blocked or ignored; a handler, if any, still
		// runs, so the signal is queued as usual.
		p.tg.cont()
	}
	if p.actions.IsIgnored(sig) && !p.anyThreadBlocks(sig) {
		return true
	}
	return false
}

func (p *Process) anyThreadBlocks(sig abi.Signal) bool {
	for _, t := range p.tg.Threads() {
		if t.Blocked().Contains(sig) {
			return true
		}
	}
	return false
}

// wakeForSignal interrupts a thread that can deliver sig now: one that
// has it unblocked, or one parked in WaitSignal consuming it. If every
// thread has it blocked, delivery waits for an unblock.
func (p *Process) wakeForSignal(sig abi.Signal) {
	for _, t := range p.tg.Threads() {
		t.mu.Lock()
		eligible := !t.blocked.Contains(sig) || t.sigwait.Contains(sig)
		t.mu.Unlock()
		if eligible {
			t.Interrupt()
			return
		}
	}
}

// notifyChild queues SIGCHLD (subject to the usual suppression) and
// wakes any waiter parked on this process's child queue.
func (p *Process) notifyChild(info *abi.SignalInfo) {
	_ = p.SendSignal(info)
	p.childWait.Broadcast()
}

// PendingSet returns the numbers pending against t: its own queue plus
// the thread group's shared queue.
func (t *Thread) PendingSet() abi.SignalSet {
	t.mu.Lock()
	set := t.pending.Set()
	t.mu.Unlock()
	tg := t.proc.tg
	tg.mu.Lock()
	set |= tg.pending.Set()
	tg.mu.Unlock()
	return set
}

// Dequeue removes and returns the lowest-numbered deliverable signal for
// t, preferring the thread queue when both hold the same number, or nil
// if everything pending is blocked. The blocked mask never masks
// SIGKILL/SIGSTOP class signals since those are consumed at generation.
func (t *Thread) Dequeue() *abi.SignalInfo {
	return t.dequeue(t.Blocked())
}

// dequeueFromSet removes the lowest pending signal contained in set,
// regardless of the blocked mask, per sigtimedwait semantics.
func (t *Thread) dequeueFromSet(set abi.SignalSet) *abi.SignalInfo {
	return t.dequeue(^set)
}

func (t *Thread) dequeue(mask abi.SignalSet) *abi.SignalInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	tg := t.proc.tg
	tg.mu.Lock()
	defer tg.mu.Unlock()

	tsig, tok := (t.pending.Set() &^ mask).LowestSet()
	gsig, gok := (tg.pending.Set() &^ mask).LowestSet()
	switch {
	case tok && (!gok || tsig <= gsig):
		return t.pending.DequeueSpecific(tsig)
	case gok:
		return tg.pending.DequeueSpecific(gsig)
	default:
		return nil
	}
}

// NextDelivery resolves what t must do on its way back to user mode. It
// dequeues deliverable signals until one needs a user handler, returning
// the delivery descriptor for the trap layer, or nil when nothing
// user-visible remains. Default actions are applied here: terminate and
// core-dump begin a group exit (the caller observes it via the thread
// group), stop marks the group stopped, ignore discards.
func (t *Thread) NextDelivery(ctx context.Context) *signal.Delivery {
	for {
		info := t.Dequeue()
		if info == nil {
			return nil
		}
		sig := info.Signo
		act := t.proc.actions.TakeHandler(sig)
		switch act.Disposition {
		case signal.DispositionIgnore:
			continue
		case signal.DispositionHandler:
			t.mu.Lock()
			saved := t.blocked
			handlerMask := signal.HandlerMask(act, sig, saved)
			t.blocked = handlerMask
			t.mu.Unlock()
			log.G(ctx).WithFields(log.Fields{
				"tid":    t.id,
				"signal": sig.String(),
			}).Debug("delivering signal to handler")
			return &signal.Delivery{
				Info:        info,
				Action:      act,
				SavedMask:   saved,
				HandlerMask: handlerMask,
			}
		default:
			switch sig.DefaultAction() {
			case abi.ActionIgnore, abi.ActionContinue:
				// Continue took effect at generation time.
				continue
			case abi.ActionStop:
				t.proc.tg.stop()
				continue
			case abi.ActionTerminate, abi.ActionCoreDump:
				dump := sig.DefaultAction() == abi.ActionCoreDump
				if t.proc.tg.BeginExit(ExitStatus{Signo: sig, CoreDumped: dump}) {
					log.G(ctx).WithFields(log.Fields{
						"pid":    t.proc.id,
						"signal": sig.String(),
						"core":   dump,
					}).Info("fatal signal")
				}
				return nil
			}
		}
	}
}

// WaitSignal parks t until one of the signals in set is pending, then
// dequeues and returns it. The context's deadline bounds the wait; its
// expiry is returned unwrapped for the syscall layer to map to EAGAIN.
func (t *Thread) WaitSignal(ctx context.Context, set abi.SignalSet) (*abi.SignalInfo, error) {
	t.mu.Lock()
	t.sigwait = set
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.sigwait = 0
		t.mu.Unlock()
	}()

	for {
		if info := t.dequeueFromSet(set); info != nil {
			return info, nil
		}
		select {
		case <-t.interrupt:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
