package kernel

import (
	"context"
	"errors"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"

	"github.com/aledbf/qemubox/kernel/internal/kernel/sched"
)

// Errno converts an operation error into the errno the trap layer
// reports to the guest. Operations embed an explicit errno when the
// class mapping is ambiguous (ECHILD for childless waits, EAGAIN for
// sigtimedwait expiry); otherwise the error class decides.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case errors.Is(err, sched.ErrInterrupted):
		return unix.EINTR
	case errors.Is(err, context.DeadlineExceeded):
		return unix.EAGAIN
	case errors.Is(err, context.Canceled):
		return unix.EINTR
	case errdefs.IsNotFound(err):
		return unix.ESRCH
	case errdefs.IsPermissionDenied(err):
		return unix.EPERM
	case errdefs.IsInvalidArgument(err):
		return unix.EINVAL
	case errdefs.IsResourceExhausted(err):
		return unix.EAGAIN
	case errdefs.IsFailedPrecondition(err):
		return unix.EPERM
	default:
		return unix.EINVAL
	}
}
