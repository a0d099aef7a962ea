package abi

import "math/bits"

// SignalSet is a fixed-width bitmask over signal numbers. Bit i is set iff
// signal i+1 is a member.
type SignalSet uint64

// SignalSetOf returns a set containing only sig.
func SignalSetOf(sig Signal) SignalSet {
	return 1 << uint(sig.Index())
}

// MakeSignalSet builds a set from the given signals.
func MakeSignalSet(sigs ...Signal) SignalSet {
	var set SignalSet
	for _, sig := range sigs {
		set |= SignalSetOf(sig)
	}
	return set
}

// UnblockableSet contains the signals whose delivery can never be blocked
// or reconfigured.
const UnblockableSet = SignalSet(1<<uint(SIGKILL-1) | 1<<uint(SIGSTOP-1))

// Contains returns true if sig is a member of the set.
func (s SignalSet) Contains(sig Signal) bool {
	return s&SignalSetOf(sig) != 0
}

// Add adds sig to the set.
func (s *SignalSet) Add(sig Signal) {
	*s |= SignalSetOf(sig)
}

// Remove removes sig from the set.
func (s *SignalSet) Remove(sig Signal) {
	*s &^= SignalSetOf(sig)
}

// Union adds every member of other to the set.
func (s *SignalSet) Union(other SignalSet) {
	*s |= other
}

// Subtract removes every member of other from the set.
func (s *SignalSet) Subtract(other SignalSet) {
	*s &^= other
}

// Empty returns true if the set has no members.
func (s SignalSet) Empty() bool {
	return s == 0
}

// LowestSet returns the lowest-numbered member of the set.
func (s SignalSet) LowestSet() (Signal, bool) {
	if s == 0 {
		return 0, false
	}
	return Signal(bits.TrailingZeros64(uint64(s)) + 1), true
}

// Signals returns the members of the set in ascending order.
func (s SignalSet) Signals() []Signal {
	var sigs []Signal
	for rest := s; rest != 0; {
		sig, _ := rest.LowestSet()
		sigs = append(sigs, sig)
		rest.Remove(sig)
	}
	return sigs
}
