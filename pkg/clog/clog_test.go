package clog

import "testing"

func TestDefaultStatusIsInProgress(t *testing.T) {
	c := New()
	if c.Status(42) != InProgress {
		t.Fatalf("unseen tx id must default to in-progress")
	}
}

func TestMarkCommittedAndAborted(t *testing.T) {
	c := New()
	c.MarkCommitted(1)
	c.MarkAborted(2)

	if !c.IsCommitted(1) {
		t.Fatalf("tx 1 should be committed")
	}
	if !c.IsAborted(2) {
		t.Fatalf("tx 2 should be aborted")
	}
	if c.IsCommitted(2) || c.IsAborted(1) {
		t.Fatalf("cross-contaminated statuses")
	}
}
