//go:build !linux

package strategy

import (
	"net"

	"github.com/sockbench/sockbench/bench/message"
)

// Zero-copy transmission with completion tracking needs MSG_ZEROCOPY and the
// socket error queue, which only Linux provides. Other platforms degrade to
// gather writes so the benchmark still produces comparable results. The
// wrapper keeps reporting the requested strategy name, matching the runtime
// fallback on Linux.
type zeroCopyStrategy struct {
	*vectorStrategy
}

func (s *zeroCopyStrategy) Name() string { return string(KindZeroCopy) }

func newZeroCopyStrategy(conn *net.TCPConn, msg *message.Message) (Strategy, error) {
	Logger.Warningf("zero-copy transmission not supported on this platform, degrading to vectored sends")
	return &zeroCopyStrategy{newVectorStrategy(conn, msg)}, nil
}
