package strategy

import (
	"fmt"

	"github.com/eapache/queue"
)

// inflightRecord associates the sequence number the kernel assigned to a
// zero-copy send with the byte count whose backing segments must not be
// reused until the matching completion notification arrives.
type inflightRecord struct {
	seq   uint32
	bytes int
}

// completionTracker bounds the number of outstanding zero-copy sends and
// reconciles completion notifications against them in submission order.
//
// The tracker is private to the worker owning the connection: records never
// cross worker boundaries, so no locking is needed. Completions are consumed
// strictly first-in-first-out, mirroring the kernel's per-socket zero-copy
// sequence counter.
type completionTracker struct {
	pending *queue.Queue
	cap     int
	nextSeq uint32
}

func newCompletionTracker(cap int) *completionTracker {
	return &completionTracker{
		pending: queue.New(),
		cap:     cap,
	}
}

// Full reports whether the in-flight cap has been reached. A full tracker
// means the next send must first drain at least one completion.
func (t *completionTracker) Full() bool {
	return t.pending.Length() >= t.cap
}

// Outstanding returns the number of submitted, unconfirmed records.
func (t *completionTracker) Outstanding() int {
	return t.pending.Length()
}

// Submit records a successful zero-copy send and returns the sequence number
// assigned to it. Submitting onto a full tracker is a caller bug.
func (t *completionTracker) Submit(bytes int) (uint32, error) {
	if t.Full() {
		return 0, fmt.Errorf("in-flight cap %d exceeded", t.cap)
	}
	seq := t.nextSeq
	t.nextSeq++
	t.pending.Add(inflightRecord{seq: seq, bytes: bytes})
	return seq, nil
}

// Complete marks all records with sequence numbers up to hi as confirmed and
// removes them. The kernel confirms contiguous ranges in submission order, so
// records are only ever removed from the front; anything below the range's
// lower bound was covered by an earlier (possibly dropped) notification and
// is reclaimed here as well. Returns the number of records freed.
func (t *completionTracker) Complete(hi uint32) int {
	freed := 0
	for t.pending.Length() > 0 {
		rec := t.pending.Peek().(inflightRecord)
		if rec.seq > hi {
			break
		}
		t.pending.Remove()
		freed++
	}
	return freed
}

// DiscardAll abandons every outstanding record. Called at connection
// teardown, where the kernel's reference is moot once the socket is closed.
// Safe to call more than once.
func (t *completionTracker) DiscardAll() int {
	discarded := t.pending.Length()
	for t.pending.Length() > 0 {
		t.pending.Remove()
	}
	return discarded
}
