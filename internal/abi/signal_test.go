package abi

import "testing"

func TestSignalClassification(t *testing.T) {
	tests := []struct {
		sig      Signal
		valid    bool
		standard bool
		realtime bool
	}{
		{0, false, false, false},
		{SIGHUP, true, true, false},
		{SIGKILL, true, true, false},
		{SIGSYS, true, true, false},
		{FirstRTSignal, true, false, true},
		{LastRTSignal, true, false, true},
		{65, false, false, false},
		{-1, false, false, false},
	}
	for _, tc := range tests {
		if got := tc.sig.IsValid(); got != tc.valid {
			t.Errorf("Signal(%d).IsValid() = %v, want %v", int(tc.sig), got, tc.valid)
		}
		if got := tc.sig.IsStandard(); got != tc.standard {
			t.Errorf("Signal(%d).IsStandard() = %v, want %v", int(tc.sig), got, tc.standard)
		}
		if got := tc.sig.IsRealtime(); got != tc.realtime {
			t.Errorf("Signal(%d).IsRealtime() = %v, want %v", int(tc.sig), got, tc.realtime)
		}
	}
}

func TestSignalString(t *testing.T) {
	tests := []struct {
		sig  Signal
		want string
	}{
		{SIGKILL, "SIGKILL"},
		{SIGCHLD, "SIGCHLD"},
		{40, "SIGRT(40)"},
		{0, "signal(0)"},
	}
	for _, tc := range tests {
		if got := tc.sig.String(); got != tc.want {
			t.Errorf("Signal(%d).String() = %q, want %q", int(tc.sig), got, tc.want)
		}
	}
}

func TestDefaultActions(t *testing.T) {
	tests := []struct {
		sig  Signal
		want DefaultAction
	}{
		{SIGTERM, ActionTerminate},
		{SIGSEGV, ActionCoreDump},
		{SIGCHLD, ActionIgnore},
		{SIGWINCH, ActionIgnore},
		{SIGSTOP, ActionStop},
		{SIGTSTP, ActionStop},
		{SIGCONT, ActionContinue},
		{40, ActionTerminate},
		{LastRTSignal, ActionTerminate},
	}
	for _, tc := range tests {
		if got := tc.sig.DefaultAction(); got != tc.want {
			t.Errorf("%s.DefaultAction() = %s, want %s", tc.sig, got, tc.want)
		}
	}
}
