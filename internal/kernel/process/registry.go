package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
)

// Registry is the kernel-lifetime index of live entities: pid to
// Process, tid to Thread, pgid to ProcessGroup, sid to Session. It is
// created at boot, passed explicitly to the components that need it, and
// torn down only at shutdown.
type Registry struct {
	pids *pid.Allocator

	mu        sync.Mutex
	processes map[pid.ID]*Process
	threads   map[pid.ID]*Thread
	groups    map[pid.ID]*ProcessGroup
	sessions  map[pid.ID]*Session
	init      *Process
}

// NewRegistry creates an empty registry whose id namespace is bounded by
// maxID (<= 0 selects the default).
func NewRegistry(maxID pid.ID) *Registry {
	return &Registry{
		pids:      pid.NewAllocator(maxID),
		processes: make(map[pid.ID]*Process),
		threads:   make(map[pid.ID]*Thread),
		groups:    make(map[pid.ID]*ProcessGroup),
		sessions:  make(map[pid.ID]*Session),
	}
}

// Init returns the init process, or nil before bootstrap.
func (r *Registry) Init() *Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.init
}

// Process resolves a pid to a live or zombie process.
func (r *Registry) Process(id pid.ID) (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processes[id]
	if !ok {
		return nil, fmt.Errorf("process %d: %w", id, errdefs.ErrNotFound)
	}
	return p, nil
}

// Thread resolves a tid to a live thread.
func (r *Registry) Thread(id pid.ID) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %d: %w", id, errdefs.ErrNotFound)
	}
	return t, nil
}

// Group resolves a pgid to a live process group.
func (r *Registry) Group(id pid.ID) (*ProcessGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pg, ok := r.groups[id]
	if !ok {
		return nil, fmt.Errorf("process group %d: %w", id, errdefs.ErrNotFound)
	}
	return pg, nil
}

// Session resolves a sid to a live session.
func (r *Registry) Session(id pid.ID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, errdefs.ErrNotFound)
	}
	return s, nil
}

// Processes returns a snapshot of every registered process.
func (r *Registry) Processes() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Process, 0, len(r.processes))
	for _, p := range r.processes {
		out = append(out, p)
	}
	return out
}

// CreateConfig describes a process to create.
type CreateConfig struct {
	// Parent is the forking process. Nil only for the bootstrap call
	// that creates init.
	Parent *Process

	// Payload is the process-private extension data, attached once.
	Payload Payload

	// NewSession places the process in a fresh session and process group
	// that it leads, instead of joining the parent's. Implied for init.
	NewSession bool
}

// CreateProcess allocates a pid, builds the process with its thread
// group leader, links it into the tree, and joins or creates its process
// group and session. It fails if the parent has already exited.
func (r *Registry) CreateProcess(ctx context.Context, cfg CreateConfig) (*Process, error) {
	if cfg.Parent == nil {
		r.mu.Lock()
		bootstrapped := r.init != nil
		r.mu.Unlock()
		if bootstrapped {
			return nil, fmt.Errorf("init already exists, new processes need a parent: %w", errdefs.ErrInvalidArgument)
		}
	} else if cfg.Parent.Zombie() {
		return nil, fmt.Errorf("parent %d has exited: %w", cfg.Parent.ID(), errdefs.ErrNotFound)
	}

	id, err := r.pids.Allocate()
	if err != nil {
		return nil, err
	}

	p := &Process{
		id:       id,
		registry: r,
		children: make(map[pid.ID]*Process),
		payload:  cfg.Payload,
	}
	if cfg.Parent != nil {
		p.actions = cfg.Parent.actions.Fork()
	} else {
		p.actions = signal.NewActions()
	}
	p.tg = newThreadGroup(p)
	leader := newThread(id, p)
	p.tg.addThread(leader)

	// Link into the tree. The zombie re-check under the parent lock
	// closes the race with a concurrent parent exit.
	if cfg.Parent != nil {
		parent := cfg.Parent
		parent.mu.Lock()
		if parent.zombie.Load() {
			parent.mu.Unlock()
			r.pids.Release(id)
			return nil, fmt.Errorf("parent %d has exited: %w", parent.ID(), errdefs.ErrNotFound)
		}
		parent.children[id] = p
		parent.mu.Unlock()
		p.mu.Lock()
		p.parent = parent
		p.mu.Unlock()
	}

	if cfg.Parent == nil || cfg.NewSession {
		r.createSessionFor(p)
	} else {
		cfg.Parent.Group().addMember(p)
		p.mu.Lock()
		p.group = cfg.Parent.Group()
		p.mu.Unlock()
	}

	r.mu.Lock()
	r.processes[id] = p
	r.threads[id] = leader
	if cfg.Parent == nil {
		r.init = p
	}
	r.mu.Unlock()

	log.G(ctx).WithFields(log.Fields{
		"pid":    id,
		"parent": parentID(cfg.Parent),
		"pgid":   p.Group().ID(),
		"sid":    p.Session().ID(),
	}).Info("process created")
	return p, nil
}

func parentID(p *Process) pid.ID {
	if p == nil {
		return 0
	}
	return p.ID()
}

// CreateThread allocates a tid and adds a new thread to p's thread
// group. It fails once the group has begun exiting.
func (r *Registry) CreateThread(ctx context.Context, p *Process) (*Thread, error) {
	if p.Zombie() || p.tg.Exited() {
		return nil, fmt.Errorf("thread group %d has exited: %w", p.ID(), errdefs.ErrFailedPrecondition)
	}
	id, err := r.pids.Allocate()
	if err != nil {
		return nil, err
	}
	t := newThread(id, p)
	if !p.tg.addThread(t) {
		r.pids.Release(id)
		return nil, fmt.Errorf("thread group %d has exited: %w", p.ID(), errdefs.ErrFailedPrecondition)
	}
	r.mu.Lock()
	r.threads[id] = t
	r.mu.Unlock()

	log.G(ctx).WithFields(log.Fields{"tid": id, "pid": p.ID()}).Debug("thread created")
	return t, nil
}

// MainThread returns the thread group leader, or nil once it has exited.
func (p *Process) MainThread() *Thread {
	return p.tg.Thread(p.id)
}

func (r *Registry) dropThread(t *Thread) {
	r.mu.Lock()
	delete(r.threads, t.id)
	r.mu.Unlock()
	// The leader tid doubles as the pid; it is released at reap time.
	if t.id != t.proc.id {
		r.pids.Release(t.id)
	}
}

func (r *Registry) dropProcess(p *Process) {
	r.mu.Lock()
	delete(r.processes, p.id)
	r.mu.Unlock()
	r.pids.Release(p.id)
}
