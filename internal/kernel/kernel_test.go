package kernel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel/process"
	"github.com/aledbf/qemubox/kernel/internal/kernel/sched"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
)

func bootKernel(t *testing.T) (*Kernel, *process.Process) {
	t.Helper()
	k := New(Config{})
	init, err := k.Boot(context.Background(), nil)
	require.NoError(t, err)
	return k, init
}

func TestKillOneProcess(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	child, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)

	require.NoError(t, k.Kill(ctx, init.MainThread(), child.ID(), abi.SIGTERM))
	info := child.MainThread().Dequeue()
	require.NotNil(t, info)
	assert.Equal(t, abi.SIGTERM, info.Signo)
	assert.Equal(t, abi.CodeUser, info.Code)
	assert.Equal(t, int32(init.ID()), info.PID)

	err = k.Kill(ctx, init.MainThread(), 99, abi.SIGTERM)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Equal(t, unix.ESRCH, Errno(err))
}

func TestKillZeroProbesExistence(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	child, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)

	require.NoError(t, k.Kill(ctx, init.MainThread(), child.ID(), 0))
	assert.True(t, child.MainThread().PendingSet().Empty())

	err = k.Kill(ctx, init.MainThread(), 99, 0)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestKillOwnGroup(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	a, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	b, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)

	// Target 0 signals the caller's group, which all three share.
	require.NoError(t, k.Kill(ctx, a.MainThread(), 0, abi.SIGTERM))
	for _, p := range []*process.Process{init, a, b} {
		assert.True(t, p.MainThread().PendingSet().Contains(abi.SIGTERM), "pid %d", p.ID())
	}
}

func TestKillNegativeGroup(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	a, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	b, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	require.NoError(t, k.Setpgid(ctx, init.MainThread(), a.ID(), a.ID()))
	require.NoError(t, k.Setpgid(ctx, init.MainThread(), b.ID(), a.ID()))

	require.NoError(t, k.Kill(ctx, init.MainThread(), -a.ID(), abi.SIGTERM))
	assert.True(t, a.MainThread().PendingSet().Contains(abi.SIGTERM))
	assert.True(t, b.MainThread().PendingSet().Contains(abi.SIGTERM))
	assert.True(t, init.MainThread().PendingSet().Empty())

	err = k.Kill(ctx, init.MainThread(), -99, abi.SIGTERM)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestKillBroadcastSparesInit(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	a, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	b, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)

	require.NoError(t, k.Kill(ctx, init.MainThread(), -1, abi.SIGTERM))
	assert.True(t, init.MainThread().PendingSet().Empty())
	assert.True(t, a.MainThread().PendingSet().Contains(abi.SIGTERM))
	assert.True(t, b.MainThread().PendingSet().Contains(abi.SIGTERM))
}

func TestKillInvalidSignal(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	err := k.Kill(ctx, init.MainThread(), init.ID(), 65)
	assert.True(t, errdefs.IsInvalidArgument(err))
	assert.Equal(t, unix.EINVAL, Errno(err))
}

func TestTkill(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	child, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	t2, err := k.CreateThread(ctx, child.MainThread())
	require.NoError(t, err)

	require.NoError(t, k.Tkill(ctx, init.MainThread(), t2.ID(), abi.SIGUSR1))
	info := t2.Dequeue()
	require.NotNil(t, info)
	assert.Equal(t, abi.CodeTkill, info.Code)
	assert.Nil(t, child.MainThread().Dequeue())
}

func TestTgkillChecksGroup(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	child, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	t2, err := k.CreateThread(ctx, child.MainThread())
	require.NoError(t, err)

	require.NoError(t, k.Tgkill(ctx, init.MainThread(), child.ID(), t2.ID(), abi.SIGUSR1))
	require.NotNil(t, t2.Dequeue())

	err = k.Tgkill(ctx, init.MainThread(), init.ID(), t2.ID(), abi.SIGUSR1)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Equal(t, unix.ESRCH, Errno(err))
}

func TestWaitForChildECHILD(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	_, _, err := k.WaitForChild(ctx, init.MainThread(), process.WaitSelector{Pid: -1}, process.WaitOptions{})
	require.Error(t, err)
	assert.Equal(t, unix.ECHILD, Errno(err))
}

func TestExitGroupAndWait(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	child, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)

	k.ExitGroup(ctx, child.MainThread(), 7)

	id, status, err := k.WaitForChild(ctx, init.MainThread(), process.WaitSelector{Pid: -1}, process.WaitOptions{})
	require.NoError(t, err)
	assert.Equal(t, child.ID(), id)
	assert.Equal(t, uint32(0x0700), status.Wait())
}

func TestSigTimedWait(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	child, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	th := child.MainThread()

	k.SetMask(th, process.MaskBlock, abi.SignalSetOf(abi.SIGUSR1))

	// Expiry maps to EAGAIN.
	_, err = k.SigTimedWait(ctx, th, abi.SignalSetOf(abi.SIGUSR1), 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, unix.EAGAIN, Errno(err))

	require.NoError(t, k.Kill(ctx, init.MainThread(), child.ID(), abi.SIGUSR1))
	info, err := k.SigTimedWait(ctx, th, abi.SignalSetOf(abi.SIGUSR1), time.Second)
	require.NoError(t, err)
	assert.Equal(t, abi.SIGUSR1, info.Signo)
}

func TestSessionAndGroupQueries(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	shell, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)

	sid, err := k.Setsid(ctx, shell.MainThread())
	require.NoError(t, err)
	assert.Equal(t, shell.ID(), sid)

	got, err := k.Getsid(init.MainThread(), shell.ID())
	require.NoError(t, err)
	assert.Equal(t, sid, got)

	got, err = k.Getpgid(shell.MainThread(), 0)
	require.NoError(t, err)
	assert.Equal(t, shell.ID(), got)

	_, err = k.Getpgid(init.MainThread(), 99)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestSetpgidTargetRules(t *testing.T) {
	ctx := context.Background()
	k, init := bootKernel(t)
	a, err := k.Fork(ctx, init, nil)
	require.NoError(t, err)
	b, err := k.Fork(ctx, a, nil)
	require.NoError(t, err)

	// a may move itself and its child b; init is neither.
	require.NoError(t, k.Setpgid(ctx, a.MainThread(), 0, a.ID()))
	require.NoError(t, k.Setpgid(ctx, a.MainThread(), b.ID(), a.ID()))
	assert.Equal(t, a.Group(), b.Group())

	err = k.Setpgid(ctx, a.MainThread(), init.ID(), a.ID())
	assert.True(t, errdefs.IsNotFound(err))

	err = k.Setpgid(ctx, a.MainThread(), 0, -5)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestErrnoMapping(t *testing.T) {
	tests := []struct {
		err  error
		want unix.Errno
	}{
		{nil, 0},
		{fmt.Errorf("x: %w", errdefs.ErrNotFound), unix.ESRCH},
		{fmt.Errorf("x: %w", errdefs.ErrPermissionDenied), unix.EPERM},
		{fmt.Errorf("x: %w", errdefs.ErrInvalidArgument), unix.EINVAL},
		{fmt.Errorf("x: %w", errdefs.ErrResourceExhausted), unix.EAGAIN},
		{fmt.Errorf("x: %w", errdefs.ErrFailedPrecondition), unix.EPERM},
		{sched.ErrInterrupted, unix.EINTR},
		{context.DeadlineExceeded, unix.EAGAIN},
		{context.Canceled, unix.EINTR},
		{fmt.Errorf("%w: no children", unix.ECHILD), unix.ECHILD},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Errno(tc.err), "err %v", tc.err)
	}
}

func TestSetActionRoundTrip(t *testing.T) {
	k, init := bootKernel(t)
	th := init.MainThread()

	old, err := k.SetAction(th, abi.SIGUSR1, &signal.Action{
		Disposition: signal.DispositionHandler,
		Handler:     0x1000,
	})
	require.NoError(t, err)
	assert.Equal(t, signal.DispositionDefault, old.Disposition)

	got, err := k.SetAction(th, abi.SIGUSR1, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), got.Handler)

	_, err = k.SetAction(th, abi.SIGKILL, &signal.Action{Disposition: signal.DispositionIgnore})
	assert.True(t, errdefs.IsPermissionDenied(err))
	assert.Equal(t, unix.EPERM, Errno(err))
}
