package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
)

// ProcessGroup is a set of processes sharing job-control identity. Its
// pgid equals the pid of the process that created it as leader. The
// member map is non-owning; a group with zero members is dropped from
// its session and the registry.
type ProcessGroup struct {
	id       pid.ID
	registry *Registry
	session  *Session

	mu      sync.Mutex
	members map[pid.ID]*Process
}

// ID returns the pgid.
func (pg *ProcessGroup) ID() pid.ID {
	return pg.id
}

// Session returns the session the group belongs to.
func (pg *ProcessGroup) Session() *Session {
	return pg.session
}

// Members returns a snapshot of the member processes.
func (pg *ProcessGroup) Members() []*Process {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	out := make([]*Process, 0, len(pg.members))
	for _, p := range pg.members {
		out = append(out, p)
	}
	return out
}

func (pg *ProcessGroup) addMember(p *Process) {
	pg.mu.Lock()
	pg.members[p.id] = p
	pg.mu.Unlock()
}

// removeMember drops p and, if the group is now empty, unlinks the group
// from its session and the registry, cascading to the session when its
// last group goes.
func (pg *ProcessGroup) removeMember(p *Process) {
	pg.mu.Lock()
	delete(pg.members, p.id)
	empty := len(pg.members) == 0
	pg.mu.Unlock()

	if !empty {
		return
	}
	pg.session.removeGroup(pg)
	pg.registry.mu.Lock()
	delete(pg.registry.groups, pg.id)
	pg.registry.mu.Unlock()
}

// IsOrphaned reports whether no member has a parent in a different group
// of the same session. Orphaned groups are cut off from job control.
func (pg *ProcessGroup) IsOrphaned() bool {
	for _, m := range pg.Members() {
		parent := m.Parent()
		if parent == nil || parent.Zombie() {
			continue
		}
		if parent.Group() != pg && parent.Session() == pg.Session() {
			return false
		}
	}
	return true
}

// checkOrphaned delivers SIGHUP then SIGCONT to the group if it has just
// become orphaned while holding a stopped member, per POSIX job control.
func (pg *ProcessGroup) checkOrphaned(ctx context.Context) {
	if !pg.IsOrphaned() {
		return
	}
	stopped := false
	for _, m := range pg.Members() {
		if m.ThreadGroup().Stopped() {
			stopped = true
			break
		}
	}
	if !stopped {
		return
	}
	log.G(ctx).WithField("pgid", pg.id).Info("orphaned process group with stopped member, sending SIGHUP+SIGCONT")
	_, _ = pg.SendSignal(abi.KernelSignalInfo(abi.SIGHUP))
	_, _ = pg.SendSignal(abi.KernelSignalInfo(abi.SIGCONT))
}

// Session is a set of process groups sharing a controlling-terminal
// identity. Its sid equals the pid of its founding process.
type Session struct {
	id       pid.ID
	registry *Registry

	mu     sync.Mutex
	groups map[pid.ID]*ProcessGroup
}

// ID returns the sid.
func (s *Session) ID() pid.ID {
	return s.id
}

// Groups returns a snapshot of the member groups.
func (s *Session) Groups() []*ProcessGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ProcessGroup, 0, len(s.groups))
	for _, pg := range s.groups {
		out = append(out, pg)
	}
	return out
}

func (s *Session) addGroup(pg *ProcessGroup) {
	s.mu.Lock()
	s.groups[pg.id] = pg
	s.mu.Unlock()
}

func (s *Session) removeGroup(pg *ProcessGroup) {
	s.mu.Lock()
	delete(s.groups, pg.id)
	empty := len(s.groups) == 0
	s.mu.Unlock()

	if !empty {
		return
	}
	s.registry.mu.Lock()
	delete(s.registry.sessions, s.id)
	s.registry.mu.Unlock()
}

// createSessionFor places p in a fresh session and group that it leads.
func (r *Registry) createSessionFor(p *Process) {
	s := &Session{
		id:       p.id,
		registry: r,
		groups:   make(map[pid.ID]*ProcessGroup),
	}
	pg := &ProcessGroup{
		id:       p.id,
		registry: r,
		session:  s,
		members:  map[pid.ID]*Process{p.id: p},
	}
	s.groups[pg.id] = pg

	r.mu.Lock()
	r.groups[pg.id] = pg
	r.sessions[s.id] = s
	r.mu.Unlock()

	p.mu.Lock()
	p.group = pg
	p.mu.Unlock()
}

// NewSession implements setsid: p leaves its group and becomes the
// leader of a fresh session and group, both numbered p's pid. It fails
// if p already leads its group, or if its pid is in use as a group id by
// a group it does not lead.
func (r *Registry) NewSession(ctx context.Context, p *Process) (*Session, error) {
	old := p.Group()
	if old.ID() == p.id {
		return nil, fmt.Errorf("process %d is already a group leader: %w", p.id, errdefs.ErrFailedPrecondition)
	}
	r.mu.Lock()
	_, pgidInUse := r.groups[p.id]
	r.mu.Unlock()
	if pgidInUse {
		return nil, fmt.Errorf("id %d is in use as a process group: %w", p.id, errdefs.ErrFailedPrecondition)
	}

	r.createSessionFor(p)
	old.removeMember(p)
	old.checkOrphaned(ctx)

	s := p.Session()
	log.G(ctx).WithFields(log.Fields{"pid": p.id, "sid": s.ID()}).Info("session created")
	return s, nil
}

// SetGroup implements setpgid: target equal to p's pid creates a new
// group in the current session led by p; otherwise p joins the existing
// group with that id, which must belong to p's session. It fails once p
// has executed a program image.
func (r *Registry) SetGroup(ctx context.Context, p *Process, target pid.ID) error {
	p.mu.Lock()
	execed := p.execed
	p.mu.Unlock()
	if execed {
		return fmt.Errorf("setpgid after execve: %w", errdefs.ErrFailedPrecondition)
	}
	if target == 0 {
		target = p.id
	}

	old := p.Group()
	if old.ID() == target {
		return nil
	}

	var pg *ProcessGroup
	if target == p.id {
		pg = &ProcessGroup{
			id:       p.id,
			registry: r,
			session:  old.Session(),
			members:  make(map[pid.ID]*Process),
		}
		old.Session().addGroup(pg)
		r.mu.Lock()
		r.groups[pg.id] = pg
		r.mu.Unlock()
	} else {
		var err error
		pg, err = r.Group(target)
		if err != nil {
			return err
		}
		if pg.Session() != old.Session() {
			return fmt.Errorf("process group %d is in a different session: %w", target, errdefs.ErrPermissionDenied)
		}
	}

	pg.addMember(p)
	p.mu.Lock()
	p.group = pg
	p.mu.Unlock()
	old.removeMember(p)
	old.checkOrphaned(ctx)

	log.G(ctx).WithFields(log.Fields{"pid": p.id, "pgid": pg.id}).Info("process group changed")
	return nil
}
