package signal

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledbf/qemubox/kernel/internal/abi"
)

func TestActionsSetReturnsPrevious(t *testing.T) {
	a := NewActions()
	handler := Action{Disposition: DispositionHandler, Handler: 0x1000}

	old, err := a.Set(abi.SIGUSR1, handler)
	require.NoError(t, err)
	assert.Equal(t, Action{}, old)

	old, err = a.Set(abi.SIGUSR1, Action{Disposition: DispositionIgnore})
	require.NoError(t, err)
	assert.Equal(t, handler, old)

	got, err := a.Get(abi.SIGUSR1)
	require.NoError(t, err)
	assert.Equal(t, DispositionIgnore, got.Disposition)
}

func TestActionsRejectsUnconfigurable(t *testing.T) {
	a := NewActions()
	for _, sig := range []abi.Signal{abi.SIGKILL, abi.SIGSTOP} {
		_, err := a.Set(sig, Action{Disposition: DispositionIgnore})
		require.Error(t, err)
		assert.True(t, errdefs.IsPermissionDenied(err))

		// Re-asserting the default is allowed.
		_, err = a.Set(sig, Action{})
		assert.NoError(t, err)
	}
}

func TestActionsRejectsInvalid(t *testing.T) {
	a := NewActions()
	_, err := a.Set(0, Action{})
	assert.True(t, errdefs.IsInvalidArgument(err))
	_, err = a.Set(65, Action{})
	assert.True(t, errdefs.IsInvalidArgument(err))
	_, err = a.Set(abi.SIGTERM, Action{Flags: 0x20})
	assert.True(t, errdefs.IsInvalidArgument(err))
	_, err = a.Get(0)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestActionsIsIgnored(t *testing.T) {
	a := NewActions()
	assert.True(t, a.IsIgnored(abi.SIGCHLD), "default for SIGCHLD is ignore")
	assert.False(t, a.IsIgnored(abi.SIGTERM))

	_, err := a.Set(abi.SIGTERM, Action{Disposition: DispositionIgnore})
	require.NoError(t, err)
	assert.True(t, a.IsIgnored(abi.SIGTERM))

	_, err = a.Set(abi.SIGCHLD, Action{Disposition: DispositionHandler, Handler: 0x1000})
	require.NoError(t, err)
	assert.False(t, a.IsIgnored(abi.SIGCHLD))
}

func TestTakeHandlerResetHand(t *testing.T) {
	a := NewActions()
	_, err := a.Set(abi.SIGUSR2, Action{
		Disposition: DispositionHandler,
		Handler:     0x2000,
		Flags:       FlagResetHand,
	})
	require.NoError(t, err)

	act := a.TakeHandler(abi.SIGUSR2)
	assert.Equal(t, DispositionHandler, act.Disposition)

	// One delivery consumes the registration.
	got, err := a.Get(abi.SIGUSR2)
	require.NoError(t, err)
	assert.Equal(t, DispositionDefault, got.Disposition)
}

func TestActionsFork(t *testing.T) {
	a := NewActions()
	_, err := a.Set(abi.SIGUSR1, Action{Disposition: DispositionIgnore})
	require.NoError(t, err)

	child := a.Fork()
	assert.True(t, child.IsIgnored(abi.SIGUSR1))

	// The copy is independent.
	_, err = child.Set(abi.SIGUSR1, Action{})
	require.NoError(t, err)
	assert.True(t, a.IsIgnored(abi.SIGUSR1))
}

func TestActionsResetForExec(t *testing.T) {
	a := NewActions()
	_, err := a.Set(abi.SIGUSR1, Action{Disposition: DispositionHandler, Handler: 0x1000})
	require.NoError(t, err)
	_, err = a.Set(abi.SIGTERM, Action{Disposition: DispositionIgnore})
	require.NoError(t, err)

	a.ResetForExec()

	got, err := a.Get(abi.SIGUSR1)
	require.NoError(t, err)
	assert.Equal(t, DispositionDefault, got.Disposition, "handlers reset across exec")

	got, err = a.Get(abi.SIGTERM)
	require.NoError(t, err)
	assert.Equal(t, DispositionIgnore, got.Disposition, "ignores survive exec")
}
