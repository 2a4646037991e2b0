// Package message implements the wire payload model of the benchmark.
//
// A message consists of a fixed number of independently allocated byte
// segments of equal length. Both ends derive the segment length from the
// requested payload size with the same integer truncation, so sender and
// receiver always agree on the exact byte count per message.
package message

import "fmt"

const (
	// NumSegments is the fixed number of segments per message. It is known
	// to both ends at compile time and never negotiated on the wire.
	NumSegments = 8

	// patternBase is the byte value segment 0 is filled with. Segment i is
	// filled with patternBase+i, matching the reference traffic pattern.
	patternBase = byte('A')
)

// SegmentLength returns the per-segment length for a requested payload size.
// Integer truncation is intentional: the effective message size may be
// smaller than the requested payload size.
func SegmentLength(payloadSize int) int {
	segLen := payloadSize / NumSegments
	if segLen == 0 {
		segLen = 1
	}
	return segLen
}

// EffectiveSize returns the total number of bytes a message of the given
// requested payload size carries on the wire.
func EffectiveSize(payloadSize int) int {
	return NumSegments * SegmentLength(payloadSize)
}

// Message is a set of NumSegments equal-length byte segments.
type Message struct {
	segments [][]byte
	segLen   int
}

// Allocate creates a message for the requested payload size. The message is
// allocated once per worker and reused across all iterations of its loop.
func Allocate(payloadSize int) (*Message, error) {
	if payloadSize <= 0 {
		return nil, fmt.Errorf("invalid payload size %d", payloadSize)
	}

	segLen := SegmentLength(payloadSize)
	segments := make([][]byte, NumSegments)
	for i := range segments {
		segments[i] = make([]byte, segLen)
	}

	return &Message{segments: segments, segLen: segLen}, nil
}

// Segments returns the underlying segments. Callers must not resize them.
func (m *Message) Segments() [][]byte {
	return m.segments
}

// SegmentLength returns the length of each segment.
func (m *Message) SegmentLength() int {
	return m.segLen
}

// Size returns the total message length in bytes.
func (m *Message) Size() int {
	return NumSegments * m.segLen
}

// Flatten concatenates the segments in order into one contiguous buffer.
// Only the copy-based strategy pays this extra application-level copy.
func (m *Message) Flatten() []byte {
	buf := make([]byte, 0, m.Size())
	for _, seg := range m.segments {
		buf = append(buf, seg...)
	}
	return buf
}

// FillPattern fills each segment with a deterministic repeating byte value
// offset by the segment index, so receivers can validate content if desired.
func (m *Message) FillPattern() {
	for i, seg := range m.segments {
		b := patternBase + byte(i)
		for j := range seg {
			seg[j] = b
		}
	}
}

// VerifyPattern reports whether buf holds a full flattened message carrying
// the deterministic pattern written by FillPattern.
func (m *Message) VerifyPattern(buf []byte) bool {
	if len(buf) != m.Size() {
		return false
	}
	for i := 0; i < NumSegments; i++ {
		b := patternBase + byte(i)
		for _, got := range buf[i*m.segLen : (i+1)*m.segLen] {
			if got != b {
				return false
			}
		}
	}
	return true
}
