package process

import (
	"sync"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
)

// ThreadGroup is the set of threads sharing one process identity. The
// group tracks threads weakly: the task subsystem owns them, and the map
// is maintained through addThread/removeThread.
type ThreadGroup struct {
	proc   *Process
	leader pid.ID

	mu sync.Mutex

	threads map[pid.ID]*Thread

	// pending holds process-directed signals, shared by all threads.
	pending signal.Pending

	// exited is set exactly once, by the first group-exit observer. No
	// thread may join afterwards.
	exited     bool
	exitStatus ExitStatus

	// stopped is set while the group is job-control stopped.
	stopped bool
}

func newThreadGroup(p *Process) *ThreadGroup {
	return &ThreadGroup{
		proc:    p,
		leader:  p.id,
		threads: make(map[pid.ID]*Thread),
	}
}

// Process returns the owning process.
func (tg *ThreadGroup) Process() *Process {
	return tg.proc
}

// Leader returns the tid of the thread group leader, which equals the
// pid.
func (tg *ThreadGroup) Leader() pid.ID {
	return tg.leader
}

// Thread returns the member with the given tid, or nil.
func (tg *ThreadGroup) Thread(id pid.ID) *Thread {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.threads[id]
}

// Threads returns a snapshot of the member threads.
func (tg *ThreadGroup) Threads() []*Thread {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	out := make([]*Thread, 0, len(tg.threads))
	for _, t := range tg.threads {
		out = append(out, t)
	}
	return out
}

// Count returns the number of member threads.
func (tg *ThreadGroup) Count() int {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return len(tg.threads)
}

// Exited returns true once a coordinated group exit has begun.
func (tg *ThreadGroup) Exited() bool {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.exited
}

// Stopped returns true while the group is job-control stopped.
func (tg *ThreadGroup) Stopped() bool {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.stopped
}

func (tg *ThreadGroup) addThread(t *Thread) bool {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.exited {
		return false
	}
	tg.threads[t.id] = t
	return true
}

// removeThread drops t from the map and reports whether it was the last
// member, along with the status the process should exit with. The last
// thread out seals the group: when no coordinated exit recorded a status
// first, code becomes the exit status.
func (tg *ThreadGroup) removeThread(t *Thread, code int32) (last bool, status ExitStatus) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	delete(tg.threads, t.id)
	last = len(tg.threads) == 0
	if last && !tg.exited {
		tg.exited = true
		tg.exitStatus = ExitStatus{Code: code}
	}
	return last, tg.exitStatus
}

// BeginExit initiates a coordinated group exit with the given status.
// Only the first caller observes the false-to-true transition and
// performs termination side effects; later callers (racing exit_group,
// fatal signals) are no-ops. All member threads are interrupted so they
// unwind and call ExitThread.
func (tg *ThreadGroup) BeginExit(status ExitStatus) bool {
	tg.mu.Lock()
	if tg.exited {
		tg.mu.Unlock()
		return false
	}
	tg.exited = true
	tg.exitStatus = status
	tg.stopped = false
	threads := make([]*Thread, 0, len(tg.threads))
	for _, t := range tg.threads {
		threads = append(threads, t)
	}
	tg.mu.Unlock()

	for _, t := range threads {
		t.Interrupt()
	}
	return true
}

// stop marks the group job-control stopped and notifies the parent. A
// pending continue no longer applies and is discarded, mirroring what
// cont does to pending stop signals.
func (tg *ThreadGroup) stop() {
	tg.mu.Lock()
	if tg.exited || tg.stopped {
		tg.mu.Unlock()
		return
	}
	tg.stopped = true
	tg.pending.DiscardSpecific(abi.SIGCONT)
	tg.mu.Unlock()

	if parent := tg.proc.Parent(); parent != nil {
		parent.notifyChild(abi.ChildSignalInfo(int32(tg.proc.id), abi.CLDStopped, 0))
	}
}

// cont clears a job-control stop and wakes the member threads.
func (tg *ThreadGroup) cont() {
	tg.mu.Lock()
	if !tg.stopped {
		tg.mu.Unlock()
		return
	}
	tg.stopped = false
	// A stop no longer applies; discard any queued stop signals.
	for _, sig := range []abi.Signal{abi.SIGSTOP, abi.SIGTSTP, abi.SIGTTIN, abi.SIGTTOU} {
		tg.pending.DiscardSpecific(sig)
	}
	threads := make([]*Thread, 0, len(tg.threads))
	for _, t := range tg.threads {
		threads = append(threads, t)
	}
	tg.mu.Unlock()

	for _, t := range threads {
		t.Interrupt()
	}
	if parent := tg.proc.Parent(); parent != nil {
		parent.notifyChild(abi.ChildSignalInfo(int32(tg.proc.id), abi.CLDContinued, 0))
	}
}
