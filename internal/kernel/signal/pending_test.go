package signal

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledbf/qemubox/kernel/internal/abi"
)

func TestEnqueueStandardCoalesces(t *testing.T) {
	var p Pending
	require.NoError(t, p.Enqueue(abi.KernelSignalInfo(abi.SIGTERM)))

	// A second occurrence of a pending standard signal is dropped, and
	// the raise still reports success.
	second := abi.UserSignalInfo(abi.SIGTERM, 42)
	require.NoError(t, p.Enqueue(second))

	info := p.DequeueSpecific(abi.SIGTERM)
	require.NotNil(t, info)
	assert.Equal(t, abi.CodeKernel, info.Code)
	assert.Nil(t, p.DequeueSpecific(abi.SIGTERM))
	assert.True(t, p.Set().Empty())
}

func TestEnqueueRealtimeFIFO(t *testing.T) {
	var p Pending
	const sig = abi.Signal(40)
	for i := uint64(0); i < 3; i++ {
		info := abi.UserSignalInfo(sig, 1)
		info.Value = i
		require.NoError(t, p.Enqueue(info))
	}
	for want := uint64(0); want < 3; want++ {
		info := p.DequeueSpecific(sig)
		require.NotNil(t, info)
		assert.Equal(t, want, info.Value)
	}
	assert.Nil(t, p.DequeueSpecific(sig))
}

func TestEnqueueRealtimeCapacity(t *testing.T) {
	var p Pending
	const sig = abi.Signal(50)
	for i := 0; i < rtSignalCap; i++ {
		require.NoError(t, p.Enqueue(abi.UserSignalInfo(sig, 1)))
	}
	err := p.Enqueue(abi.UserSignalInfo(sig, 1))
	require.Error(t, err)
	assert.True(t, errdefs.IsResourceExhausted(err))

	// The queue is untouched: all earlier occurrences still drain.
	for i := 0; i < rtSignalCap; i++ {
		require.NotNil(t, p.DequeueSpecific(sig))
	}
	assert.Nil(t, p.DequeueSpecific(sig))
}

func TestEnqueueInvalid(t *testing.T) {
	var p Pending
	for _, sig := range []abi.Signal{0, 65, -3} {
		err := p.Enqueue(&abi.SignalInfo{Signo: sig})
		require.Error(t, err)
		assert.True(t, errdefs.IsInvalidArgument(err))
	}
}

func TestDequeueLowestUnmasked(t *testing.T) {
	var p Pending
	require.NoError(t, p.Enqueue(abi.KernelSignalInfo(40)))
	require.NoError(t, p.Enqueue(abi.KernelSignalInfo(abi.SIGTERM)))
	require.NoError(t, p.Enqueue(abi.KernelSignalInfo(abi.SIGHUP)))

	info := p.Dequeue(0)
	require.NotNil(t, info)
	assert.Equal(t, abi.SIGHUP, info.Signo)

	// Masking the lowest remaining number skips it.
	info = p.Dequeue(abi.SignalSetOf(abi.SIGTERM))
	require.NotNil(t, info)
	assert.Equal(t, abi.Signal(40), info.Signo)

	assert.Nil(t, p.Dequeue(abi.SignalSetOf(abi.SIGTERM)))
	assert.True(t, p.HasDeliverable(0))
	assert.False(t, p.HasDeliverable(abi.SignalSetOf(abi.SIGTERM)))
}

func TestDiscardSpecific(t *testing.T) {
	var p Pending
	require.NoError(t, p.Enqueue(abi.KernelSignalInfo(abi.SIGTSTP)))
	require.NoError(t, p.Enqueue(abi.KernelSignalInfo(abi.SIGTERM)))
	p.DiscardSpecific(abi.SIGTSTP)

	assert.False(t, p.Set().Contains(abi.SIGTSTP))
	assert.True(t, p.Set().Contains(abi.SIGTERM))
}
