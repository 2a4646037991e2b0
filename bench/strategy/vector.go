package strategy

import (
	"net"

	"github.com/sockbench/sockbench/bench/message"
)

// vectorStrategy issues one gather write over the message's existing
// segments. The transport layer collects the segments during its own single
// copy into the kernel socket buffer; no application-level flatten happens.
// Receiving is identical to the copy strategy since the reply is read into
// one contiguous buffer anyway.
type vectorStrategy struct {
	conn     *net.TCPConn
	segments [][]byte
	scratch  net.Buffers
}

func newVectorStrategy(conn *net.TCPConn, msg *message.Message) *vectorStrategy {
	return &vectorStrategy{
		conn:     conn,
		segments: msg.Segments(),
		scratch:  make(net.Buffers, message.NumSegments),
	}
}

func (s *vectorStrategy) Name() string { return string(KindVector) }

func (s *vectorStrategy) Send() (int, error) {
	// WriteTo consumes the buffer headers, so the scratch vector is refilled
	// from the message segments on every send.
	copy(s.scratch, s.segments)
	bufs := s.scratch
	n, err := bufs.WriteTo(s.conn)
	return int(n), err
}

func (s *vectorStrategy) Receive(buf []byte) (int, error) {
	return receiveFull(s.conn, buf)
}

func (s *vectorStrategy) Close() error { return nil }
