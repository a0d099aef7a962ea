package process

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
)

// ExitThread removes t from its thread group as it unwinds. The last
// thread out drives the owning process's exit; code is used as the exit
// status only when no coordinated group exit recorded one.
func (r *Registry) ExitThread(ctx context.Context, t *Thread, code int32) {
	p := t.proc
	r.dropThread(t)
	last, status := p.tg.removeThread(t, code)

	log.G(ctx).WithFields(log.Fields{"tid": t.id, "pid": p.id}).Debug("thread exited")
	if last {
		r.exitProcess(ctx, p, status)
	}
}

// exitProcess turns p into a zombie: records the status, reparents its
// children, leaves its process group, and notifies the parent. p stays
// registered until the parent reaps it.
func (r *Registry) exitProcess(ctx context.Context, p *Process, status ExitStatus) {
	if p == r.Init() {
		// Nothing can reap or reparent to a dead init.
		panic("process: init exited")
	}

	// The zombie flag must be visible before the children map is wiped:
	// CreateProcess re-checks it under p.mu, so a racing fork either lands
	// in the snapshot below or is refused.
	p.mu.Lock()
	p.exitStatus = status
	p.zombie.Store(true)
	children := make([]*Process, 0, len(p.children))
	for _, c := range p.children {
		children = append(children, c)
	}
	p.children = make(map[pid.ID]*Process)
	group := p.group
	p.mu.Unlock()

	// Detach children to the nearest living subreaper ancestor, or init.
	if len(children) > 0 {
		reaper := r.findReaper(p)
		for _, c := range children {
			c.mu.Lock()
			c.parent = reaper
			c.mu.Unlock()
			reaper.mu.Lock()
			reaper.children[c.id] = c
			reaper.mu.Unlock()
		}
		log.G(ctx).WithFields(log.Fields{
			"pid":    p.id,
			"reaper": reaper.id,
			"count":  len(children),
		}).Info("children reparented")
		// Inherited zombies may already be reapable.
		reaper.childWait.Broadcast()
	}

	// Leave the group. The shared reference on p keeps the group object
	// valid for queries against the zombie; the member map no longer
	// lists it.
	group.removeMember(p)
	group.checkOrphaned(ctx)
	for _, c := range children {
		c.Group().checkOrphaned(ctx)
	}

	log.G(ctx).WithFields(log.Fields{
		"pid":    p.id,
		"code":   status.Code,
		"signal": int(status.Signo),
	}).Info("process exited")

	if parent := p.Parent(); parent != nil {
		code, st := abi.CLDExited, status.Code
		if status.Signo != 0 {
			code, st = abi.CLDKilled, int32(status.Signo)
			if status.CoreDumped {
				code = abi.CLDDumped
			}
		}
		parent.notifyChild(abi.ChildSignalInfo(int32(p.id), code, st))
	}
}

// findReaper walks p's ancestry for the nearest living subreaper,
// falling back to init.
func (r *Registry) findReaper(p *Process) *Process {
	for anc := p.Parent(); anc != nil; anc = anc.Parent() {
		anc.mu.Lock()
		ok := anc.subreaper && !anc.zombie.Load()
		anc.mu.Unlock()
		if ok {
			return anc
		}
	}
	return r.Init()
}

// Reap collects the zombie child target of parent: removes it from the
// child map and the registry, releases its payload and pid, and returns
// its exit status. It fails if target is not a child of parent or is not
// yet a zombie.
func (r *Registry) Reap(ctx context.Context, parent *Process, target pid.ID) (ExitStatus, error) {
	parent.mu.Lock()
	c, ok := parent.children[target]
	if !ok {
		parent.mu.Unlock()
		return ExitStatus{}, fmt.Errorf("process %d is not a child of %d: %w", target, parent.id, errdefs.ErrNotFound)
	}
	if !c.zombie.Load() {
		parent.mu.Unlock()
		return ExitStatus{}, fmt.Errorf("process %d has not exited: %w", target, errdefs.ErrFailedPrecondition)
	}
	delete(parent.children, target)
	parent.mu.Unlock()

	status := c.ExitStatus()
	r.dropProcess(c)
	if c.payload != nil {
		c.payload.Release()
	}
	log.G(ctx).WithFields(log.Fields{"pid": target, "parent": parent.id}).Debug("process reaped")
	return status, nil
}
