package strategy

import "testing"

// TestTrackerCapEnforced tests that the in-flight cap can never be exceeded
func TestTrackerCapEnforced(t *testing.T) {
	tr := newCompletionTracker(8)

	for i := 0; i < 8; i++ {
		if tr.Full() {
			t.Fatalf("tracker full after %d submissions, cap is 8", i)
		}
		if _, err := tr.Submit(128); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	if !tr.Full() {
		t.Error("tracker should be full after 8 submissions")
	}
	if tr.Outstanding() != 8 {
		t.Errorf("Outstanding() = %d, want 8", tr.Outstanding())
	}

	// The 9th submission without a drain is a protocol violation
	if _, err := tr.Submit(128); err == nil {
		t.Error("Submit beyond the cap should have failed")
	}
	if tr.Outstanding() != 8 {
		t.Errorf("failed Submit changed Outstanding() to %d", tr.Outstanding())
	}
}

// TestTrackerSequenceNumbers tests that sequence numbers are assigned in send order
func TestTrackerSequenceNumbers(t *testing.T) {
	tr := newCompletionTracker(4)

	for want := uint32(0); want < 4; want++ {
		seq, err := tr.Submit(64)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if seq != want {
			t.Errorf("Submit assigned seq %d, want %d", seq, want)
		}
	}
}

// TestTrackerComplete tests first-in-first-out completion of confirmed ranges
func TestTrackerComplete(t *testing.T) {
	tr := newCompletionTracker(8)
	for i := 0; i < 6; i++ {
		if _, err := tr.Submit(64); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	// Confirm seq 0..2
	if freed := tr.Complete(2); freed != 3 {
		t.Errorf("Complete(2) freed %d records, want 3", freed)
	}
	if tr.Outstanding() != 3 {
		t.Errorf("Outstanding() = %d, want 3", tr.Outstanding())
	}

	// A repeated notification for an already-confirmed range is a no-op
	if freed := tr.Complete(2); freed != 0 {
		t.Errorf("repeated Complete(2) freed %d records, want 0", freed)
	}

	// Confirm the rest
	if freed := tr.Complete(5); freed != 3 {
		t.Errorf("Complete(5) freed %d records, want 3", freed)
	}
	if tr.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", tr.Outstanding())
	}
}

// TestTrackerCompleteCoversMissedRange tests that a notification confirming a
// later range also reclaims records a dropped earlier notification covered
func TestTrackerCompleteCoversMissedRange(t *testing.T) {
	tr := newCompletionTracker(8)
	for i := 0; i < 4; i++ {
		if _, err := tr.Submit(64); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	// Only the notification for seq 2..3 arrives; 0..1 must be reclaimed too
	if freed := tr.Complete(3); freed != 4 {
		t.Errorf("Complete(3) freed %d records, want 4", freed)
	}
}

// TestTrackerDiscardAll tests the unconditional teardown reclaim
func TestTrackerDiscardAll(t *testing.T) {
	tr := newCompletionTracker(8)
	for i := 0; i < 5; i++ {
		if _, err := tr.Submit(64); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if n := tr.DiscardAll(); n != 5 {
		t.Errorf("DiscardAll() = %d, want 5", n)
	}
	if tr.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after discard, want 0", tr.Outstanding())
	}

	// Discarding twice has the same effect as discarding once
	if n := tr.DiscardAll(); n != 0 {
		t.Errorf("second DiscardAll() = %d, want 0", n)
	}

	// The tracker is reusable after a discard
	if _, err := tr.Submit(64); err != nil {
		t.Errorf("Submit after discard failed: %v", err)
	}
}
