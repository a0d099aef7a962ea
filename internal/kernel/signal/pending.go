// Package signal implements the per-target signal machinery: pending
// queues, the disposition table, and the delivery-time mask computation
// handed to the trap layer.
package signal

import (
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/aledbf/qemubox/kernel/internal/abi"
)

const (
	// stdSignalCap is the most instances of one standard signal that may
	// be pending. Further raises coalesce with the queued instance.
	stdSignalCap = 1

	// rtSignalCap bounds the instances of one realtime signal that may be
	// pending. Raising beyond it fails with resource exhaustion.
	rtSignalCap = 32
)

// Pending holds the signals awaiting delivery to one target. The zero
// value is an empty collection. Pending performs no locking; the owning
// entity synchronizes access.
type Pending struct {
	// queues is indexed by Signal.Index(). Standard numbers hold at most
	// one entry; realtime numbers hold a FIFO of up to rtSignalCap.
	queues [abi.SignalMaximum][]*abi.SignalInfo

	// set has the bit for a number set iff its queue is non-empty.
	set abi.SignalSet
}

// Enqueue adds one occurrence of info's signal. A standard signal that is
// already pending coalesces: the new occurrence is dropped and Enqueue
// reports success. A realtime signal past capacity fails with
// ErrResourceExhausted, leaving the queue untouched.
func (p *Pending) Enqueue(info *abi.SignalInfo) error {
	sig := info.Signo
	if !sig.IsValid() {
		return fmt.Errorf("signal %d: %w", int(sig), errdefs.ErrInvalidArgument)
	}
	q := p.queues[sig.Index()]
	if sig.IsStandard() {
		if len(q) >= stdSignalCap {
			return nil
		}
	} else if len(q) >= rtSignalCap {
		return fmt.Errorf("realtime signal %s queue full: %w", sig, errdefs.ErrResourceExhausted)
	}
	p.queues[sig.Index()] = append(q, info)
	p.set.Add(sig)
	return nil
}

// Dequeue removes and returns the lowest-numbered pending signal not in
// mask, or nil if every pending signal is masked. Standard signals are
// numerically lower than realtime signals, so they win when both are
// eligible; within one realtime number FIFO order is preserved.
func (p *Pending) Dequeue(mask abi.SignalSet) *abi.SignalInfo {
	sig, ok := (p.set &^ mask).LowestSet()
	if !ok {
		return nil
	}
	return p.DequeueSpecific(sig)
}

// DequeueSpecific removes and returns the oldest pending occurrence of
// sig, or nil if none is pending.
func (p *Pending) DequeueSpecific(sig abi.Signal) *abi.SignalInfo {
	q := p.queues[sig.Index()]
	if len(q) == 0 {
		return nil
	}
	info := q[0]
	q = q[1:]
	p.queues[sig.Index()] = q
	if len(q) == 0 {
		p.set.Remove(sig)
	}
	return info
}

// DiscardSpecific drops every pending occurrence of sig.
func (p *Pending) DiscardSpecific(sig abi.Signal) {
	p.queues[sig.Index()] = nil
	p.set.Remove(sig)
}

// Set returns the set of signal numbers with at least one occurrence
// pending.
func (p *Pending) Set() abi.SignalSet {
	return p.set
}

// HasDeliverable returns true if some pending signal is not in mask.
func (p *Pending) HasDeliverable(mask abi.SignalSet) bool {
	return p.set&^mask != 0
}
