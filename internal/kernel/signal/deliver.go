package signal

import "github.com/aledbf/qemubox/kernel/internal/abi"

// Delivery is what the trap layer needs to splice a handler invocation
// into a thread: the occurrence being delivered, the action snapshot, and
// the blocked-mask transition. SavedMask must be restored verbatim by the
// companion sigreturn path; this core only computes the masks.
type Delivery struct {
	Info   *abi.SignalInfo
	Action Action

	// SavedMask is the thread's blocked mask before delivery.
	SavedMask abi.SignalSet

	// HandlerMask is the blocked mask in effect while the handler runs.
	HandlerMask abi.SignalSet
}

// HandlerMask computes the blocked mask for running act's handler for
// sig, given the thread's current blocked mask. The action's mask is
// unioned in, the delivered signal itself is added unless FlagNoDefer is
// set, and the unblockable signals are always stripped.
func HandlerMask(act Action, sig abi.Signal, blocked abi.SignalSet) abi.SignalSet {
	mask := blocked
	mask.Union(act.Mask)
	if act.Flags&FlagNoDefer == 0 {
		mask.Add(sig)
	}
	mask.Subtract(abi.UnblockableSet)
	return mask
}

// Stack flags for an alternate signal stack.
const (
	StackOnStack uint32 = 1
	StackDisable uint32 = 2
)

// Stack is a thread's alternate signal stack registration. The trap layer
// switches stacks at delivery when the action carries FlagOnStack; this
// core only stores the registration.
type Stack struct {
	Base  uint64
	Size  uint64
	Flags uint32
}

// Contains returns true if sp lies on the stack.
func (s Stack) Contains(sp uint64) bool {
	return s.Base <= sp && sp < s.Base+s.Size
}

// Active returns true if the stack is usable for delivery.
func (s Stack) Active() bool {
	return s.Size != 0 && s.Flags&StackDisable == 0
}
