//go:build linux

package strategy

import (
	"fmt"
	"net"
	"syscall"
	"time"
	"unsafe"

	"github.com/sockbench/sockbench/bench/message"
	"golang.org/x/sys/unix"
)

const (
	// inflightCap bounds the number of outstanding zero-copy sends per
	// connection. Reaching it forces a completion drain before sending.
	inflightCap = 8

	// drainInterval paces the wait for completions at the cap.
	drainInterval = 50 * time.Microsecond
)

// zeroCopyStrategy transmits via sendmsg(MSG_ZEROCOPY): the kernel pins the
// segment memory and reads from it directly, deferring the copy elimination
// to DMA-capable transmission. Because the kernel retains a reference after
// the call returns, each send is tracked until the matching completion
// notification arrives on the socket's error queue.
type zeroCopyStrategy struct {
	conn     *net.TCPConn
	raw      syscall.RawConn
	segments [][]byte
	size     int
	scratch  [][]byte
	tracker  *completionTracker
	cmsgBuf  []byte

	// fallback carries all traffic when SO_ZEROCOPY is unavailable
	fallback Strategy

	// copiedLogged suppresses repeated deferred-copy notices
	copiedLogged bool
}

func newZeroCopyStrategy(conn *net.TCPConn, msg *message.Message) (Strategy, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("raw conn: %v", err)
	}

	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ZEROCOPY, 1)
	}); err != nil {
		return nil, fmt.Errorf("raw control: %v", err)
	}

	s := &zeroCopyStrategy{
		conn:     conn,
		raw:      raw,
		segments: msg.Segments(),
		size:     msg.Size(),
		scratch:  make([][]byte, 0, message.NumSegments),
		tracker:  newCompletionTracker(inflightCap),
		cmsgBuf:  make([]byte, 128),
	}

	if sockErr != nil {
		// Capability absent on this kernel or socket. The benchmark must
		// still produce comparable results, so degrade to gather writes.
		Logger.Warningf("SO_ZEROCOPY unavailable (%v), degrading to vectored sends", sockErr)
		s.fallback = newVectorStrategy(conn, msg)
	}

	return s, nil
}

func (s *zeroCopyStrategy) Name() string { return string(KindZeroCopy) }

func (s *zeroCopyStrategy) Send() (int, error) {
	if s.fallback != nil {
		return s.fallback.Send()
	}

	// Opportunistic non-blocking drain before every send attempt.
	if _, err := s.poll(); err != nil {
		return 0, err
	}

	// On a non-blocking socket the kernel may accept fewer bytes than
	// submitted, so the unsent tail is resubmitted until the full message
	// is queued. Each accepted submission is tracked under the sequence
	// number the kernel assigned to it.
	sent := 0
	for sent < s.size {
		// Backpressure: at the cap, at least one completion must be
		// observed before the next submission may pin more memory.
		for s.tracker.Full() {
			freed, err := s.poll()
			if err != nil {
				return sent, err
			}
			if freed == 0 {
				time.Sleep(drainInterval)
			}
		}

		n, err := s.sendmsgZC(sent)
		if err == unix.ENOBUFS {
			// The kernel refused the submission because too many zero-copy
			// operations are outstanding. Drain once and retry; a second
			// refusal before the first byte went out surfaces as a
			// transient error. Once part of the message is on the wire the
			// stream position is committed and the send must complete, so
			// later refusals keep draining instead.
			if _, perr := s.poll(); perr != nil {
				return sent, perr
			}
			n, err = s.sendmsgZC(sent)
			for err == unix.ENOBUFS {
				if sent == 0 {
					return 0, ErrBackpressure
				}
				freed, perr := s.poll()
				if perr != nil {
					return sent, perr
				}
				if freed == 0 {
					time.Sleep(drainInterval)
				}
				n, err = s.sendmsgZC(sent)
			}
		}
		if err != nil {
			return sent, err
		}

		if _, err := s.tracker.Submit(n); err != nil {
			return sent + n, err
		}
		sent += n
	}
	return sent, nil
}

func (s *zeroCopyStrategy) Receive(buf []byte) (int, error) {
	if s.fallback != nil {
		return s.fallback.Receive(buf)
	}
	return receiveFull(s.conn, buf)
}

// Close drains completions that are already ready, tolerating "none ready",
// and then discards any records still outstanding: once the socket closes
// the kernel's reference to the segments is moot, so the backing memory is
// released unconditionally regardless of completion state.
func (s *zeroCopyStrategy) Close() error {
	if s.fallback != nil {
		return s.fallback.Close()
	}

	for s.tracker.Outstanding() > 0 {
		freed, err := s.poll()
		if err != nil || freed == 0 {
			break
		}
	}
	if n := s.tracker.DiscardAll(); n > 0 {
		Logger.Debugf("discarded %d unconfirmed zero-copy sends at teardown", n)
	}
	return nil
}

// sendmsgZC submits the message tail starting at the given byte offset in
// one vectored MSG_ZEROCOPY call, waiting for writability and retrying on
// EINTR. The kernel may accept fewer bytes than submitted; the returned
// count tells the caller where the next submission must resume.
func (s *zeroCopyStrategy) sendmsgZC(offset int) (int, error) {
	bufs := s.scratch[:0]
	skip := offset
	for _, seg := range s.segments {
		if skip >= len(seg) {
			skip -= len(seg)
			continue
		}
		bufs = append(bufs, seg[skip:])
		skip = 0
	}
	s.scratch = bufs

	var n int
	var opErr error
	err := s.raw.Write(func(fd uintptr) bool {
		for {
			n, opErr = unix.SendmsgBuffers(int(fd), bufs, nil, nil, unix.MSG_ZEROCOPY)
			if opErr == unix.EINTR {
				continue
			}
			return opErr != unix.EAGAIN
		}
	})
	if err != nil {
		return 0, err
	}
	return n, opErr
}

// poll retrieves every completion notification currently ready on the
// connection's error queue without blocking and reconciles them against the
// in-flight records. Returns the number of records freed.
func (s *zeroCopyStrategy) poll() (int, error) {
	freed := 0
	var pollErr error
	err := s.raw.Control(func(fd uintptr) {
		for {
			_, oobn, _, _, err := unix.Recvmsg(int(fd), nil, s.cmsgBuf, unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err != nil {
				pollErr = err
				return
			}
			freed += s.consumeNotifications(s.cmsgBuf[:oobn])
		}
	})
	if err != nil {
		return freed, err
	}
	return freed, pollErr
}

// consumeNotifications interprets the control messages of one error queue
// read. A notification that cannot be interpreted is a no-op for this poll,
// not a fatal error: the in-flight cap remains the safety net.
func (s *zeroCopyStrategy) consumeNotifications(oob []byte) int {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return 0
	}

	freed := 0
	for _, m := range msgs {
		recvErr := (m.Header.Level == unix.SOL_IP && m.Header.Type == unix.IP_RECVERR) ||
			(m.Header.Level == unix.SOL_IPV6 && m.Header.Type == unix.IPV6_RECVERR)
		if !recvErr || len(m.Data) < int(unsafe.Sizeof(unix.SockExtendedErr{})) {
			continue
		}

		ee := (*unix.SockExtendedErr)(unsafe.Pointer(&m.Data[0]))
		if ee.Origin != unix.SO_EE_ORIGIN_ZEROCOPY || ee.Errno != 0 {
			continue
		}

		if ee.Code&unix.SO_EE_CODE_ZEROCOPY_COPIED != 0 && !s.copiedLogged {
			s.copiedLogged = true
			Logger.Debugf("kernel fell back to copying the payload for this path")
		}

		// ee.Info..ee.Data is the confirmed sequence range.
		freed += s.tracker.Complete(ee.Data)
	}
	return freed
}
