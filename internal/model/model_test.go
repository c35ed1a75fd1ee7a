package model

import "testing"

func TestSyncState_Valid(t *testing.T) {
	t.Parallel()
	for _, s := range []SyncState{StatePending, StateSynced, StateError} {
		if !s.Valid() {
			t.Fatalf("%q must be valid", s)
		}
	}
	if SyncState("retrying").Valid() {
		t.Fatalf("unknown state must be invalid")
	}
}

func TestBatchOutcome_Rejected(t *testing.T) {
	t.Parallel()
	o := BatchOutcome{RejectedTanks: []string{"tank-b"}}
	if !o.Rejected("tank-b") {
		t.Fatalf("tank-b must be rejected")
	}
	if o.Rejected("tank-a") {
		t.Fatalf("tank-a must not be rejected")
	}
	if (BatchOutcome{}).Rejected("tank-b") {
		t.Fatalf("empty outcome rejects nothing")
	}
}
