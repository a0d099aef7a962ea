package abi

// DefaultAction is the kernel's response to a signal whose disposition is
// default.
type DefaultAction int

const (
	// ActionTerminate kills the whole thread group.
	ActionTerminate DefaultAction = iota

	// ActionCoreDump kills the whole thread group and dumps core.
	ActionCoreDump

	// ActionIgnore discards the signal.
	ActionIgnore

	// ActionStop stops the whole thread group.
	ActionStop

	// ActionContinue resumes a stopped thread group.
	ActionContinue
)

// String returns a human-readable name for the action.
func (a DefaultAction) String() string {
	switch a {
	case ActionTerminate:
		return "terminate"
	case ActionCoreDump:
		return "core-dump"
	case ActionIgnore:
		return "ignore"
	case ActionStop:
		return "stop"
	case ActionContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// defaultActions holds the fixed per-number default for the standard
// signals. Realtime signals all default to terminate.
var defaultActions = map[Signal]DefaultAction{
	SIGHUP:    ActionTerminate,
	SIGINT:    ActionTerminate,
	SIGQUIT:   ActionCoreDump,
	SIGILL:    ActionCoreDump,
	SIGTRAP:   ActionCoreDump,
	SIGABRT:   ActionCoreDump,
	SIGBUS:    ActionCoreDump,
	SIGFPE:    ActionCoreDump,
	SIGKILL:   ActionTerminate,
	SIGUSR1:   ActionTerminate,
	SIGSEGV:   ActionCoreDump,
	SIGUSR2:   ActionTerminate,
	SIGPIPE:   ActionTerminate,
	SIGALRM:   ActionTerminate,
	SIGTERM:   ActionTerminate,
	SIGSTKFLT: ActionTerminate,
	SIGCHLD:   ActionIgnore,
	SIGCONT:   ActionContinue,
	SIGSTOP:   ActionStop,
	SIGTSTP:   ActionStop,
	SIGTTIN:   ActionStop,
	SIGTTOU:   ActionStop,
	SIGURG:    ActionIgnore,
	SIGXCPU:   ActionCoreDump,
	SIGXFSZ:   ActionCoreDump,
	SIGVTALRM: ActionTerminate,
	SIGPROF:   ActionTerminate,
	SIGWINCH:  ActionIgnore,
	SIGIO:     ActionTerminate,
	SIGPWR:    ActionTerminate,
	SIGSYS:    ActionCoreDump,
}

// DefaultAction returns the fixed default action for the signal.
func (s Signal) DefaultAction() DefaultAction {
	if act, ok := defaultActions[s]; ok {
		return act
	}
	return ActionTerminate
}
