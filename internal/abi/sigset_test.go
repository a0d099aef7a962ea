package abi

import "testing"

func TestSignalSetMembership(t *testing.T) {
	var set SignalSet
	if !set.Empty() {
		t.Fatal("zero set should be empty")
	}

	set.Add(SIGTERM)
	set.Add(SIGHUP)
	set.Add(40)
	for _, sig := range []Signal{SIGTERM, SIGHUP, 40} {
		if !set.Contains(sig) {
			t.Errorf("set should contain %s", sig)
		}
	}
	if set.Contains(SIGINT) {
		t.Error("set should not contain SIGINT")
	}

	set.Remove(SIGHUP)
	if set.Contains(SIGHUP) {
		t.Error("SIGHUP should be removed")
	}
}

func TestSignalSetLowest(t *testing.T) {
	set := MakeSignalSet(40, SIGTERM, SIGHUP)
	sig, ok := set.LowestSet()
	if !ok || sig != SIGHUP {
		t.Fatalf("LowestSet() = %v, %v, want SIGHUP, true", sig, ok)
	}

	if got := set.Signals(); len(got) != 3 || got[0] != SIGHUP || got[1] != SIGTERM || got[2] != 40 {
		t.Fatalf("Signals() = %v, want ascending [SIGHUP SIGTERM 40]", got)
	}

	if _, ok := SignalSet(0).LowestSet(); ok {
		t.Fatal("empty set should have no lowest member")
	}
}

func TestUnblockableSet(t *testing.T) {
	if !UnblockableSet.Contains(SIGKILL) || !UnblockableSet.Contains(SIGSTOP) {
		t.Fatal("SIGKILL and SIGSTOP must be unblockable")
	}
	if got := UnblockableSet.Signals(); len(got) != 2 {
		t.Fatalf("unexpected unblockable members: %v", got)
	}
}
