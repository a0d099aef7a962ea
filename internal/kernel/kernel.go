// Package kernel is the syscall-facing surface of the process and signal
// core. The trap layer resolves the calling thread, invokes one of the
// operations here, and converts any error to a guest errno via Errno.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"golang.org/x/sys/unix"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
	"github.com/aledbf/qemubox/kernel/internal/kernel/process"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
)

// Config carries boot-time parameters.
type Config struct {
	// MaxPID bounds the pid namespace; <= 0 selects the default.
	MaxPID pid.ID
}

// Kernel owns the live-entity registry and exposes the process, job
// control, and signal operations.
type Kernel struct {
	registry *process.Registry
}

// New builds a kernel with an empty process table. Boot must create init
// before any other operation.
func New(cfg Config) *Kernel {
	return &Kernel{registry: process.NewRegistry(cfg.MaxPID)}
}

// Registry exposes the entity registry to collaborators (trap layer,
// loaders) that hold Process and Thread handles directly.
func (k *Kernel) Registry() *process.Registry {
	return k.registry
}

// Boot creates the init process in its own session.
func (k *Kernel) Boot(ctx context.Context, payload process.Payload) (*process.Process, error) {
	return k.registry.CreateProcess(ctx, process.CreateConfig{Payload: payload})
}

// Fork creates a child of parent, inheriting its disposition table and
// process group.
func (k *Kernel) Fork(ctx context.Context, parent *process.Process, payload process.Payload) (*process.Process, error) {
	return k.registry.CreateProcess(ctx, process.CreateConfig{Parent: parent, Payload: payload})
}

// CreateThread adds a thread to caller's thread group.
func (k *Kernel) CreateThread(ctx context.Context, caller *process.Thread) (*process.Thread, error) {
	return k.registry.CreateThread(ctx, caller.Process())
}

// ExitGroup terminates the calling thread's whole thread group with the
// given status code and unwinds the caller. Remaining threads have been
// interrupted and exit as they unwind through the trap layer.
func (k *Kernel) ExitGroup(ctx context.Context, caller *process.Thread, code int32) {
	caller.Process().ThreadGroup().BeginExit(process.ExitStatus{Code: code})
	k.registry.ExitThread(ctx, caller, code)
}

// ExitThread unwinds just the calling thread. The last thread out
// terminates the process with the given code.
func (k *Kernel) ExitThread(ctx context.Context, caller *process.Thread, code int32) {
	k.registry.ExitThread(ctx, caller, code)
}

// WaitForChild implements waitpid for the calling thread. With no
// matching children the error carries ECHILD.
func (k *Kernel) WaitForChild(ctx context.Context, caller *process.Thread, sel process.WaitSelector, opts process.WaitOptions) (pid.ID, process.ExitStatus, error) {
	id, status, err := k.registry.WaitChild(ctx, caller, sel, opts)
	if err != nil && errdefs.IsNotFound(err) {
		return 0, process.ExitStatus{}, fmt.Errorf("%w: %w", unix.ECHILD, err)
	}
	return id, status, err
}

// Kill implements the kill target resolution: target > 0 signals one
// process, 0 the caller's process group, -1 every process except init,
// and < -1 the group -target. Signal 0 probes for existence without
// sending. Broadcasts succeed when at least one process was signaled.
func (k *Kernel) Kill(ctx context.Context, caller *process.Thread, target pid.ID, sig abi.Signal) error {
	if sig != 0 && !sig.IsValid() {
		return fmt.Errorf("signal %d: %w", int(sig), errdefs.ErrInvalidArgument)
	}
	info := abi.UserSignalInfo(sig, int32(caller.Process().ID()))

	switch {
	case target > 0:
		p, err := k.registry.Process(target)
		if err != nil {
			return err
		}
		if sig == 0 {
			return nil
		}
		return p.SendSignal(info)

	case target == 0:
		pg := caller.Process().Group()
		if sig == 0 {
			return nil
		}
		return groupResult(pg.SendSignal(info))

	case target == -1:
		init := k.registry.Init()
		var count int
		var firstErr error
		for _, p := range k.registry.Processes() {
			if p == init || p.Zombie() {
				continue
			}
			if sig == 0 {
				count++
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
		if count == 0 {
			if firstErr != nil {
				return firstErr
			}
			return fmt.Errorf("no processes to signal: %w", errdefs.ErrNotFound)
		}
		log.G(ctx).WithFields(log.Fields{"signal": int(sig), "count": count}).Debug("broadcast signal")
		return nil

	default:
		pg, err := k.registry.Group(-target)
		if err != nil {
			return err
		}
		if sig == 0 {
			return nil
		}
		return groupResult(pg.SendSignal(info))
	}
}

func groupResult(count int, err error) error {
	if count > 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("no live members in process group: %w", errdefs.ErrNotFound)
}

// Tkill sends a thread-directed signal to the thread with the given tid.
func (k *Kernel) Tkill(ctx context.Context, caller *process.Thread, tid pid.ID, sig abi.Signal) error {
	if sig != 0 && !sig.IsValid() {
		return fmt.Errorf("signal %d: %w", int(sig), errdefs.ErrInvalidArgument)
	}
	t, err := k.registry.Thread(tid)
	if err != nil {
		return err
	}
	if sig == 0 {
		return nil
	}
	info := abi.UserSignalInfo(sig, int32(caller.Process().ID()))
	info.Code = abi.CodeTkill
	return t.SendSignal(info)
}

// Tgkill is Tkill with the thread group asserted: it fails with ESRCH
// when tid's thread group does not match tgid.
func (k *Kernel) Tgkill(ctx context.Context, caller *process.Thread, tgid, tid pid.ID, sig abi.Signal) error {
	t, err := k.registry.Thread(tid)
	if err != nil {
		return err
	}
	if t.Process().ID() != tgid {
		return fmt.Errorf("thread %d is not in group %d: %w", tid, tgid, errdefs.ErrNotFound)
	}
	return k.Tkill(ctx, caller, tid, sig)
}

// SetAction implements sigaction for the calling thread's process,
// returning the previous registration. A nil act only queries.
func (k *Kernel) SetAction(caller *process.Thread, sig abi.Signal, act *signal.Action) (signal.Action, error) {
	actions := caller.Process().Actions()
	if act == nil {
		return actions.Get(sig)
	}
	return actions.Set(sig, *act)
}

// SetMask implements sigprocmask for the calling thread, returning the
// previous mask. SIGKILL and SIGSTOP bits are silently dropped.
func (k *Kernel) SetMask(caller *process.Thread, how process.SetMaskHow, set abi.SignalSet) abi.SignalSet {
	return caller.SetMask(how, set)
}

// PendingSignals implements sigpending: the numbers pending against the
// calling thread, private and process-directed combined.
func (k *Kernel) PendingSignals(caller *process.Thread) abi.SignalSet {
	return caller.PendingSet()
}

// SigTimedWait parks the caller until a signal in set is pending and
// dequeues it. A negative timeout waits indefinitely; zero polls. On
// expiry the error carries EAGAIN.
func (k *Kernel) SigTimedWait(ctx context.Context, caller *process.Thread, set abi.SignalSet, timeout time.Duration) (*abi.SignalInfo, error) {
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	info, err := caller.WaitSignal(ctx, set)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no signal in set became pending", unix.EAGAIN)
	}
	return info, err
}

// Setpgid implements setpgid: target 0 names the caller's process. The
// target must be the caller's process or one of its children.
func (k *Kernel) Setpgid(ctx context.Context, caller *process.Thread, target, pgid pid.ID) error {
	p := caller.Process()
	if target != 0 && target != p.ID() {
		c := p.Child(target)
		if c == nil {
			return fmt.Errorf("process %d is not the caller or a child: %w", target, errdefs.ErrNotFound)
		}
		p = c
	}
	if pgid < 0 {
		return fmt.Errorf("pgid %d: %w", pgid, errdefs.ErrInvalidArgument)
	}
	return k.registry.SetGroup(ctx, p, pgid)
}

// Getpgid returns the process group id of target, or of the caller's
// process when target is 0.
func (k *Kernel) Getpgid(caller *process.Thread, target pid.ID) (pid.ID, error) {
	p, err := k.resolve(caller, target)
	if err != nil {
		return 0, err
	}
	return p.Group().ID(), nil
}

// Setsid implements setsid for the calling thread's process, returning
// the new session id.
func (k *Kernel) Setsid(ctx context.Context, caller *process.Thread) (pid.ID, error) {
	s, err := k.registry.NewSession(ctx, caller.Process())
	if err != nil {
		return 0, err
	}
	return s.ID(), nil
}

// Getsid returns the session id of target, or of the caller's process
// when target is 0.
func (k *Kernel) Getsid(caller *process.Thread, target pid.ID) (pid.ID, error) {
	p, err := k.resolve(caller, target)
	if err != nil {
		return 0, err
	}
	return p.Session().ID(), nil
}

func (k *Kernel) resolve(caller *process.Thread, target pid.ID) (*process.Process, error) {
	if target == 0 {
		return caller.Process(), nil
	}
	return k.registry.Process(target)
}
