package abi

// Codes for SignalInfo.Code describing the origin of a signal. Values
// originate from the Linux siginfo ABI.
const (
	// CodeUser indicates a signal sent from a kill() style syscall.
	CodeUser int32 = 0

	// CodeKernel indicates a signal generated by the kernel itself.
	CodeKernel int32 = 0x80

	// CodeTimer indicates a signal sent by an expired timer.
	CodeTimer int32 = -2

	// CodeQueue indicates a signal sent from sigqueue() with a payload value.
	CodeQueue int32 = -1

	// CodeTkill indicates a signal sent from tkill() or tgkill().
	CodeTkill int32 = -6
)

// CLD_* codes, only meaningful for SIGCHLD.
const (
	CLDExited    int32 = 1
	CLDKilled    int32 = 2
	CLDDumped    int32 = 3
	CLDTrapped   int32 = 4
	CLDStopped   int32 = 5
	CLDContinued int32 = 6
)

// SignalInfo describes one occurrence of a signal: its number, origin,
// and sender- or cause-specific payload. It mirrors the userspace siginfo
// layout closely enough that the trap layer can marshal it directly.
type SignalInfo struct {
	// Signo is the signal number.
	Signo Signal

	// Code describes the origin of the signal (CodeUser, CodeKernel, ...).
	Code int32

	// Errno is the associated errno value, usually zero.
	Errno int32

	// PID is the sending process, for user- and SIGCHLD-origin signals.
	PID int32

	// UID is the sending user, for user-origin signals.
	UID int32

	// Status is the exit status or causing signal, for SIGCHLD.
	Status int32

	// Value is the sigqueue() payload, for queue-origin signals.
	Value uint64
}

// UserSignalInfo returns a SignalInfo for a signal sent by sender via a
// kill() style syscall.
func UserSignalInfo(sig Signal, sender int32) *SignalInfo {
	return &SignalInfo{
		Signo: sig,
		Code:  CodeUser,
		PID:   sender,
	}
}

// KernelSignalInfo returns a SignalInfo for a kernel-generated signal.
func KernelSignalInfo(sig Signal) *SignalInfo {
	return &SignalInfo{
		Signo: sig,
		Code:  CodeKernel,
	}
}

// ChildSignalInfo returns the SIGCHLD payload a parent receives when a
// child changes state. code is one of the CLD_* values.
func ChildSignalInfo(child int32, code, status int32) *SignalInfo {
	return &SignalInfo{
		Signo:  SIGCHLD,
		Code:   code,
		PID:    child,
		Status: status,
	}
}
