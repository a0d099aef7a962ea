// Package process implements the process tree, thread groups, job
// control, and signal routing for the kernel personality. Every live
// entity is reachable through a Registry handle; ownership edges
// (parent to child, process to thread group, process to disposition
// table) are exclusive, while back-references are id lookups that return
// absent once the referent is gone.
//
// Lock ordering: Thread before Process, Process (child) before Process
// (parent), Process before ProcessGroup before Session, and Registry
// last. No lock is held across a park on a WaitQueue.
package process

import (
	"sync"
	"sync/atomic"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
	"github.com/aledbf/qemubox/kernel/internal/kernel/sched"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
)

// Payload is the process-private extension data attached exactly once at
// creation: address space, executable image, namespace handles. The core
// never interprets it; Release is called when the process is reaped.
type Payload interface {
	Release()
}

// ExitStatus records how a thread group terminated.
type ExitStatus struct {
	// Code is the exit_group status code, meaningful when Signo is zero.
	Code int32

	// Signo is the fatal signal, zero for a normal exit.
	Signo abi.Signal

	// CoreDumped reports whether the fatal signal's default action dumps
	// core.
	CoreDumped bool
}

// Exited returns true for a normal (non-signal) exit.
func (es ExitStatus) Exited() bool {
	return es.Signo == 0
}

// Wait encodes the status in the classic wait(2) layout: exit code in
// bits 8..15, fatal signal in bits 0..6, core-dump flag in bit 7.
func (es ExitStatus) Wait() uint32 {
	if es.Signo != 0 {
		s := uint32(es.Signo) & 0x7f
		if es.CoreDumped {
			s |= 0x80
		}
		return s
	}
	return uint32(es.Code&0xff) << 8
}

// Process is the unit of resource ownership: one thread group, one
// disposition table, one extension payload, and a place in the process
// tree and in a process group.
type Process struct {
	id       pid.ID
	registry *Registry

	// zombie flips exactly once, after which the process is only
	// reachable for reaping.
	zombie atomic.Bool

	mu sync.Mutex

	// parent is nil only for the init process, and for processes whose
	// reparenting target is still being resolved during a parent's exit.
	parent *Process

	// children maps pid to exclusively owned child processes.
	children map[pid.ID]*Process

	// group is the process group this process is a member of. Shared:
	// the group lives while any member or the registry references it.
	group *ProcessGroup

	// subreaper marks this process as an adoption target for orphaned
	// descendants.
	subreaper bool

	// execed is set by the loader collaborator once a program image has
	// been executed; setpgid is refused afterwards.
	execed bool

	exitStatus ExitStatus

	tg      *ThreadGroup
	actions *signal.Actions
	payload Payload

	// childWait is where this process parks in wait_for_child; exiting
	// children broadcast it.
	childWait sched.WaitQueue
}

// ID returns the immutable pid.
func (p *Process) ID() pid.ID {
	return p.id
}

// Zombie returns true once the process has exited and awaits reaping.
func (p *Process) Zombie() bool {
	return p.zombie.Load()
}

// Parent returns the parent process, or nil for init.
func (p *Process) Parent() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

// Child returns the child with the given pid, or nil.
func (p *Process) Child(id pid.ID) *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.children[id]
}

// Children returns a snapshot of the live and zombie children.
func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Process, 0, len(p.children))
	for _, c := range p.children {
		out = append(out, c)
	}
	return out
}

// ThreadGroup returns the process's thread group.
func (p *Process) ThreadGroup() *ThreadGroup {
	return p.tg
}

// Actions returns the process's signal disposition table.
func (p *Process) Actions() *signal.Actions {
	return p.actions
}

// Group returns the process group this process belongs to.
func (p *Process) Group() *ProcessGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.group
}

// Session returns the session of the process's group.
func (p *Process) Session() *Session {
	return p.Group().Session()
}

// SetSubreaper marks or unmarks the process as a child subreaper.
// Orphaned descendants are adopted by the nearest living subreaper
// ancestor instead of init.
func (p *Process) SetSubreaper(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subreaper = v
}

// NoteExec records that the process has executed a program image. The
// loader collaborator calls this after a successful execve; it resets
// handler dispositions to default and pins the process's group, as
// setpgid is refused from here on.
func (p *Process) NoteExec() {
	p.mu.Lock()
	p.execed = true
	p.mu.Unlock()
	p.actions.ResetForExec()
}

// ExitStatus returns the recorded status. Only meaningful once the
// process is a zombie.
func (p *Process) ExitStatus() ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitStatus
}
