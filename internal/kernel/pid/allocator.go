// Package pid implements the process/thread identifier namespace: a
// bitmap of live ids with cyclic scanning, so ids are reused only after
// the space wraps around.
package pid

import (
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
)

// ID is a numeric identifier for a process, thread, process group, or
// session. Groups and sessions take the id of their founding process, so
// they share one namespace.
type ID int32

// DefaultMax is the default upper bound of the namespace, matching the
// conventional PID_MAX_DEFAULT.
const DefaultMax = 1 << 15

// Allocator hands out ids from [1, max]. Allocation scans cyclically from
// the last allocated id, so a released id is not immediately reused.
type Allocator struct {
	mu     sync.Mutex
	bitmap []uint64
	max    ID
	last   ID
}

// NewAllocator creates an allocator for ids 1..max. max <= 0 selects
// DefaultMax.
func NewAllocator(max ID) *Allocator {
	if max <= 0 {
		max = DefaultMax
	}
	return &Allocator{
		bitmap: make([]uint64, (int(max)+64)/64),
		max:    max,
	}
}

// Allocate reserves and returns the next free id. It fails with
// ErrResourceExhausted when the namespace is full.
func (a *Allocator) Allocate() (ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.last + 1
	for scanned := ID(0); scanned < a.max; scanned++ {
		if id > a.max {
			id = 1
		}
		if !a.testLocked(id) {
			a.setLocked(id)
			a.last = id
			return id, nil
		}
		id++
	}
	return 0, fmt.Errorf("id namespace full (max %d): %w", a.max, errdefs.ErrResourceExhausted)
}

// Release returns id to the namespace. Releasing an unallocated id is a
// programming error.
func (a *Allocator) Release(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 1 || id > a.max || !a.testLocked(id) {
		panic(fmt.Sprintf("pid: release of unallocated id %d", id))
	}
	a.bitmap[int(id)/64] &^= 1 << (uint(id) % 64)
}

// Allocated returns true if id is currently reserved.
func (a *Allocator) Allocated(id ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return id >= 1 && id <= a.max && a.testLocked(id)
}

func (a *Allocator) testLocked(id ID) bool {
	return a.bitmap[int(id)/64]&(1<<(uint(id)%64)) != 0
}

func (a *Allocator) setLocked(id ID) {
	a.bitmap[int(id)/64] |= 1 << (uint(id) % 64)
}
