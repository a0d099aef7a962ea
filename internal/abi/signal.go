// Package abi defines the guest-visible signal ABI: signal numbering,
// signal sets, siginfo payloads and the per-number default actions.
// The numbering matches the Linux ABI (1..31 standard, 32..64 realtime)
// so signal values cross the syscall boundary unchanged.
package abi

import "fmt"

// Signal is a signal number.
type Signal int

// Signal numbering bounds.
const (
	// SignalMaximum is the highest valid signal number.
	SignalMaximum = 64

	// FirstStdSignal and LastStdSignal bound the standard (legacy) signals.
	FirstStdSignal Signal = 1
	LastStdSignal  Signal = 31

	// FirstRTSignal and LastRTSignal bound the realtime signals.
	FirstRTSignal Signal = 32
	LastRTSignal  Signal = 64
)

// Standard signal numbers.
const (
	SIGHUP    Signal = 1
	SIGINT    Signal = 2
	SIGQUIT   Signal = 3
	SIGILL    Signal = 4
	SIGTRAP   Signal = 5
	SIGABRT   Signal = 6
	SIGBUS    Signal = 7
	SIGFPE    Signal = 8
	SIGKILL   Signal = 9
	SIGUSR1   Signal = 10
	SIGSEGV   Signal = 11
	SIGUSR2   Signal = 12
	SIGPIPE   Signal = 13
	SIGALRM   Signal = 14
	SIGTERM   Signal = 15
	SIGSTKFLT Signal = 16
	SIGCHLD   Signal = 17
	SIGCONT   Signal = 18
	SIGSTOP   Signal = 19
	SIGTSTP   Signal = 20
	SIGTTIN   Signal = 21
	SIGTTOU   Signal = 22
	SIGURG    Signal = 23
	SIGXCPU   Signal = 24
	SIGXFSZ   Signal = 25
	SIGVTALRM Signal = 26
	SIGPROF   Signal = 27
	SIGWINCH  Signal = 28
	SIGIO     Signal = 29
	SIGPWR    Signal = 30
	SIGSYS    Signal = 31
)

// IsValid returns true if sig is a usable signal number.
func (s Signal) IsValid() bool {
	return s >= FirstStdSignal && s <= LastRTSignal
}

// IsStandard returns true if sig is a standard (coalescing) signal.
func (s Signal) IsStandard() bool {
	return s >= FirstStdSignal && s <= LastStdSignal
}

// IsRealtime returns true if sig is a realtime (queueing) signal.
func (s Signal) IsRealtime() bool {
	return s >= FirstRTSignal && s <= LastRTSignal
}

// Index returns the zero-based index for sig, for use with arrays sized
// SignalMaximum. Signal 1 has index 0.
func (s Signal) Index() int {
	return int(s - 1)
}

var signalNames = map[Signal]string{
	SIGHUP:    "SIGHUP",
	SIGINT:    "SIGINT",
	SIGQUIT:   "SIGQUIT",
	SIGILL:    "SIGILL",
	SIGTRAP:   "SIGTRAP",
	SIGABRT:   "SIGABRT",
	SIGBUS:    "SIGBUS",
	SIGFPE:    "SIGFPE",
	SIGKILL:   "SIGKILL",
	SIGUSR1:   "SIGUSR1",
	SIGSEGV:   "SIGSEGV",
	SIGUSR2:   "SIGUSR2",
	SIGPIPE:   "SIGPIPE",
	SIGALRM:   "SIGALRM",
	SIGTERM:   "SIGTERM",
	SIGSTKFLT: "SIGSTKFLT",
	SIGCHLD:   "SIGCHLD",
	SIGCONT:   "SIGCONT",
	SIGSTOP:   "SIGSTOP",
	SIGTSTP:   "SIGTSTP",
	SIGTTIN:   "SIGTTIN",
	SIGTTOU:   "SIGTTOU",
	SIGURG:    "SIGURG",
	SIGXCPU:   "SIGXCPU",
	SIGXFSZ:   "SIGXFSZ",
	SIGVTALRM: "SIGVTALRM",
	SIGPROF:   "SIGPROF",
	SIGWINCH:  "SIGWINCH",
	SIGIO:     "SIGIO",
	SIGPWR:    "SIGPWR",
	SIGSYS:    "SIGSYS",
}

// String returns the conventional name for standard signals and
// "SIGRT(n)" for realtime signals.
func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	if s.IsRealtime() {
		return fmt.Sprintf("SIGRT(%d)", int(s))
	}
	return fmt.Sprintf("signal(%d)", int(s))
}
