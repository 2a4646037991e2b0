// Package strategy implements the three interchangeable transfer disciplines
// of the benchmark: buffer-copy, scatter-gather and kernel zero-copy with
// asynchronous completion tracking.
//
// A strategy instance is bound to exactly one established connection and one
// pre-allocated message. It is owned by the worker driving that connection
// and is not safe for concurrent use.
package strategy

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/sockbench/sockbench/bench/message"
)

var Logger = logger.GetLogger("strategy")

// Kind selects a transfer strategy.
type Kind string

const (
	// KindCopy is the two-copy baseline: the message is flattened once into
	// a contiguous send buffer and each iteration issues one plain write.
	KindCopy Kind = "copy"
	// KindVector gathers the message segments in a single vectored write,
	// eliminating the application-level flatten copy.
	KindVector Kind = "vector"
	// KindZeroCopy asks the kernel to reference the segment memory directly
	// and confirms buffer release via asynchronous completions.
	KindZeroCopy Kind = "zerocopy"
)

// ErrBackpressure is returned by Send when the kernel repeatedly refused a
// zero-copy submission because too many operations are outstanding. It is
// transient: the caller may retry on the next loop iteration.
var ErrBackpressure = errors.New("zero-copy backpressure: too many outstanding sends")

// Strategy is the per-connection transfer discipline. Send transmits the
// bound message, Receive accumulates exactly len(buf) bytes. Close releases
// any strategy-held resources and must be called at connection teardown.
type Strategy interface {
	// Name returns the strategy kind name
	Name() string
	// Send transmits the bound message and returns the bytes sent
	Send() (int, error)
	// Receive reads until buf is full or the connection closes/errors
	Receive(buf []byte) (int, error)
	// Close reconciles or discards outstanding state at teardown
	Close() error
}

// ParseKind validates a strategy name from configuration.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCopy, KindVector, KindZeroCopy:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("invalid strategy %q (must be one of copy, vector, zerocopy)", s)
	}
}

// New binds a strategy of the given kind to an established connection and a
// pre-allocated message. The kind is selected once at startup from
// configuration, never per message.
func New(kind Kind, conn *net.TCPConn, msg *message.Message) (Strategy, error) {
	switch kind {
	case KindCopy:
		return newCopyStrategy(conn, msg), nil
	case KindVector:
		return newVectorStrategy(conn, msg), nil
	case KindZeroCopy:
		return newZeroCopyStrategy(conn, msg)
	default:
		return nil, fmt.Errorf("invalid strategy %q", kind)
	}
}

// receiveFull accumulates exactly len(buf) bytes from conn. Partial reads
// are normal for stream sockets and never treated as message boundaries.
func receiveFull(conn net.Conn, buf []byte) (int, error) {
	return io.ReadFull(conn, buf)
}
