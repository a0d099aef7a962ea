package process

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
)

// WaitSelector selects which children a wait considers, following the
// waitpid pid argument: >0 an exact child, -1 any child, 0 children in
// the caller's process group, < -1 children in the group -Pid.
type WaitSelector struct {
	Pid pid.ID
}

// WaitOptions modify wait behavior.
type WaitOptions struct {
	// NoHang returns immediately with a zero pid instead of parking when
	// matching children exist but none is reapable.
	NoHang bool
}

func (sel WaitSelector) matches(caller, c *Process) bool {
	switch {
	case sel.Pid > 0:
		return c.ID() == sel.Pid
	case sel.Pid == -1:
		return true
	case sel.Pid == 0:
		return c.Group() == caller.Group()
	default:
		return c.Group().ID() == -sel.Pid
	}
}

// WaitChild blocks the calling thread until a child of its process
// matching sel can be reaped, then reaps it and returns its pid and
// status. With no matching children it fails with ErrNotFound (ECHILD).
// A signal becoming deliverable to t interrupts the wait with
// sched.ErrInterrupted.
func (r *Registry) WaitChild(ctx context.Context, t *Thread, sel WaitSelector, opts WaitOptions) (pid.ID, ExitStatus, error) {
	caller := t.proc
	for {
		var anyMatch bool
		var target *Process
		for _, c := range caller.Children() {
			if !sel.matches(caller, c) {
				continue
			}
			anyMatch = true
			if c.Zombie() {
				target = c
				break
			}
		}
		if !anyMatch {
			return 0, ExitStatus{}, fmt.Errorf("no matching children of %d: %w", caller.ID(), errdefs.ErrNotFound)
		}
		if target != nil {
			status, err := r.Reap(ctx, caller, target.ID())
			if err != nil {
				if errdefs.IsNotFound(err) {
					// Lost a race with another waiter; look again.
					continue
				}
				return 0, ExitStatus{}, err
			}
			return target.ID(), status, nil
		}
		if opts.NoHang {
			return 0, ExitStatus{}, nil
		}

		err := caller.childWait.Wait(ctx, t.InterruptCh(), func() bool {
			for _, c := range caller.Children() {
				if sel.matches(caller, c) && c.Zombie() {
					return true
				}
			}
			return false
		})
		if err != nil {
			return 0, ExitStatus{}, err
		}
	}
}
