package harness

import (
	"net"
	"time"

	"github.com/sockbench/sockbench/bench/common"
)

// tuneConn applies the configured socket options to an established TCP
// connection. Both ends of the benchmark run this after connect/accept.
func tuneConn(conn *net.TCPConn, conf common.TCPConf) error {
	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := conn.SetNoDelay(conf.TCPNoDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if conf.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(conf.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if conf.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(conf.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if conf.TCPKeepAliveSec > 0 {
		if err := conn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := conn.SetKeepAlivePeriod(time.Duration(conf.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	// Set TCP linger option if configured
	if conf.TCPLingerSec >= 0 {
		if err := conn.SetLinger(conf.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}
