package signal

import (
	"fmt"
	"sync"

	"github.com/containerd/errdefs"

	"github.com/aledbf/qemubox/kernel/internal/abi"
)

// Disposition is the configured response to a signal number.
type Disposition int

const (
	// DispositionDefault runs the signal's fixed default action.
	DispositionDefault Disposition = iota

	// DispositionIgnore discards the signal at delivery.
	DispositionIgnore

	// DispositionHandler invokes a user handler.
	DispositionHandler
)

// ActionFlags mirror the Linux SA_* flag bits.
type ActionFlags uint64

const (
	FlagNoCldStop ActionFlags = 0x00000001
	FlagNoCldWait ActionFlags = 0x00000002
	FlagSigInfo   ActionFlags = 0x00000004
	FlagRestorer  ActionFlags = 0x04000000
	FlagOnStack   ActionFlags = 0x08000000
	FlagRestart   ActionFlags = 0x10000000
	FlagNoDefer   ActionFlags = 0x40000000
	FlagResetHand ActionFlags = 0x80000000

	// knownFlags is the set of flag bits this kernel understands.
	knownFlags = FlagNoCldStop | FlagNoCldWait | FlagSigInfo | FlagRestorer |
		FlagOnStack | FlagRestart | FlagNoDefer | FlagResetHand
)

// Action is one entry of a process's disposition table.
type Action struct {
	// Disposition selects default, ignore, or handler behavior.
	Disposition Disposition

	// Handler is the user handler address, meaningful only with
	// DispositionHandler.
	Handler uint64

	// Restorer is the explicit sigreturn trampoline, meaningful only with
	// FlagRestorer.
	Restorer uint64

	// Flags are the SA_* flags supplied at registration.
	Flags ActionFlags

	// Mask is additionally blocked while the handler runs.
	Mask abi.SignalSet
}

// Actions is a process's signal disposition table. Readers always observe
// a complete action record; Set swaps entries under the table lock.
type Actions struct {
	mu    sync.Mutex
	table [abi.SignalMaximum]Action
}

// NewActions returns a table with every disposition set to default.
func NewActions() *Actions {
	return &Actions{}
}

// Get returns the current action for sig.
func (a *Actions) Get(sig abi.Signal) (Action, error) {
	if !sig.IsValid() {
		return Action{}, fmt.Errorf("signal %d: %w", int(sig), errdefs.ErrInvalidArgument)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table[sig.Index()], nil
}

// Set installs act for sig and returns the previous action, for the
// caller's oact semantics. SIGKILL and SIGSTOP can never leave the
// default disposition.
func (a *Actions) Set(sig abi.Signal, act Action) (Action, error) {
	if !sig.IsValid() {
		return Action{}, fmt.Errorf("signal %d: %w", int(sig), errdefs.ErrInvalidArgument)
	}
	if act.Flags&^knownFlags != 0 {
		return Action{}, fmt.Errorf("unknown action flags %#x: %w", uint64(act.Flags&^knownFlags), errdefs.ErrInvalidArgument)
	}
	if (sig == abi.SIGKILL || sig == abi.SIGSTOP) && act.Disposition != DispositionDefault {
		return Action{}, fmt.Errorf("disposition of %s cannot be changed: %w", sig, errdefs.ErrPermissionDenied)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.table[sig.Index()]
	a.table[sig.Index()] = act
	return old, nil
}

// IsIgnored returns true if delivering sig to a target using this table
// would be a no-op: explicitly ignored, or defaulted with a default
// action of ignore.
func (a *Actions) IsIgnored(sig abi.Signal) bool {
	a.mu.Lock()
	act := a.table[sig.Index()]
	a.mu.Unlock()
	switch act.Disposition {
	case DispositionIgnore:
		return true
	case DispositionDefault:
		return sig.DefaultAction() == abi.ActionIgnore
	default:
		return false
	}
}

// TakeHandler snapshots the action for sig for delivery. If the action
// has FlagResetHand, the table entry is atomically reset to default
// before the snapshot is returned, so one delivery consumes the handler.
func (a *Actions) TakeHandler(sig abi.Signal) Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	act := a.table[sig.Index()]
	if act.Disposition == DispositionHandler && act.Flags&FlagResetHand != 0 {
		a.table[sig.Index()] = Action{}
	}
	return act
}

// Fork returns a copy of the table for a new child process.
func (a *Actions) Fork() *Actions {
	a.mu.Lock()
	defer a.mu.Unlock()
	child := &Actions{}
	child.table = a.table
	return child
}

// ResetForExec resets handler dispositions to default, preserving
// explicit ignores, as execve requires.
func (a *Actions) ResetForExec() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.table {
		if a.table[i].Disposition == DispositionHandler {
			a.table[i] = Action{}
		}
	}
}
