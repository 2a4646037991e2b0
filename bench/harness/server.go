// Package harness establishes connections and drives the configured transfer
// strategy's request/response loop over them: an accept loop with one worker
// per connection on the server side, one worker per simulated client on the
// client side.
package harness

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sockbench/sockbench/bench/common"
	"github.com/sockbench/sockbench/bench/message"
	"github.com/sockbench/sockbench/bench/stats"
	"github.com/sockbench/sockbench/bench/strategy"
)

var Logger = logger.GetLogger("harness")

// acceptPollInterval bounds how long a pending accept can delay shutdown:
// the accept call times out at this interval and re-checks the running flag.
const acceptPollInterval = 1 * time.Second

// Server accepts benchmark connections and echoes every received message
// back with the configured strategy until the peer closes or shutdown is
// signaled.
type Server struct {
	cfg      common.ServerConfig
	kind     strategy.Kind
	listener *net.TCPListener
	running  atomic.Bool
	active   *ActiveCounter
	workers  *xsync.MapOf[uint64, *stats.ConnStats]
	wg       sync.WaitGroup
	nextID   atomic.Uint64
	started  time.Time
}

// NewServer creates a server from the given configuration.
func NewServer(cfg common.ServerConfig) (*Server, error) {
	kind, err := strategy.ParseKind(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if cfg.PayloadSize <= 0 {
		return nil, fmt.Errorf("invalid payload size %d", cfg.PayloadSize)
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("invalid max connections %d", cfg.MaxConnections)
	}

	return &Server{
		cfg:     cfg,
		kind:    kind,
		active:  NewActiveCounter(cfg.MaxConnections),
		workers: xsync.NewMapOf[uint64, *stats.ConnStats](),
	}, nil
}

// ListenAndServe binds the configured endpoint and runs the accept loop
// until Shutdown is called. It returns once all connection workers have
// finished. Bind and listen failures are fatal and returned immediately.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", s.cfg.Endpoint, err)
	}
	s.listener = ln.(*net.TCPListener)
	s.started = time.Now()
	s.running.Store(true)

	if s.cfg.MetricsEndpoint != "" {
		stats.RegisterActiveConnections(func() float64 { return float64(s.active.Count()) })
		stats.ServeMetrics(s.cfg.MetricsEndpoint)
	}

	Logger.Infof("listening on %s (strategy: %s, payload: %d bytes, max connections: %d)",
		ln.Addr(), s.kind, s.cfg.PayloadSize, s.cfg.MaxConnections)

	for s.running.Load() {
		// Time-bounded accept so the loop observes shutdown promptly
		if err := s.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			Logger.Errorf("failed to set accept deadline: %v", err)
			break
		}

		conn, err := s.listener.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.running.Load() {
				Logger.Errorf("accept error: %v", err)
			}
			continue
		}

		// Enforce the connection cap by immediately closing the surplus
		if !s.active.TryAcquire() {
			Logger.Warningf("maximum connections reached, rejecting %s", conn.RemoteAddr())
			conn.Close()
			continue
		}

		if err := tuneConn(conn, s.cfg.TCPConf); err != nil {
			Logger.Warningf("failed to tune connection from %s: %v", conn.RemoteAddr(), err)
		}

		id := s.nextID.Add(1)
		cs := &stats.ConnStats{ID: id}
		s.workers.Store(id, cs)

		s.wg.Add(1)
		go s.handleConnection(conn, cs)
	}

	s.listener.Close()

	// Wait for all dispatched workers before reporting
	s.wg.Wait()
	Logger.Infof("server stopped")
	return nil
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown signals the accept loop and all workers to stop. Cancellation is
// cooperative: loops observe the flag at their heads. Calling Shutdown more
// than once has the same effect as calling it once.
func (s *Server) Shutdown() {
	if s.running.CompareAndSwap(true, false) {
		Logger.Infof("shutdown requested")
	}
}

// ActiveConnections returns the number of currently served connections.
func (s *Server) ActiveConnections() int {
	return s.active.Count()
}

// Summary aggregates the terminal counters of every worker that was
// dispatched. Valid only after ListenAndServe has returned.
func (s *Server) Summary() *stats.Summary {
	var workers []*stats.ConnStats
	s.workers.Range(func(_ uint64, cs *stats.ConnStats) bool {
		workers = append(workers, cs)
		return true
	})
	return stats.Aggregate(workers, time.Since(s.started), nil)
}

// handleConnection runs the server side of the ping-pong loop: receive one
// message-sized request, reply with a message of the same size, repeat.
func (s *Server) handleConnection(conn *net.TCPConn, cs *stats.ConnStats) {
	defer s.wg.Done()
	defer s.active.Release()
	defer conn.Close()

	Logger.Infof("connection %d accepted from %s", cs.ID, conn.RemoteAddr())

	msg, err := message.Allocate(s.cfg.PayloadSize)
	if err != nil {
		Logger.Errorf("connection %d: failed to allocate message: %v", cs.ID, err)
		return
	}
	msg.FillPattern()

	strat, err := strategy.New(s.kind, conn, msg)
	if err != nil {
		Logger.Errorf("connection %d: failed to create strategy: %v", cs.ID, err)
		return
	}
	defer strat.Close()

	recvBuf := make([]byte, msg.Size())

	for s.running.Load() {
		if _, err := strat.Receive(recvBuf); err != nil {
			if errors.Is(err, io.EOF) {
				Logger.Infof("connection %d closed by peer", cs.ID)
			} else if s.running.Load() {
				Logger.Errorf("connection %d: receive error: %v", cs.ID, err)
			}
			break
		}
		cs.BytesReceived += uint64(len(recvBuf))
		cs.MessagesReceived++
		stats.BytesReceivedTotal.Add(len(recvBuf))

		n, err := strat.Send()
		// Transient zero-copy backpressure: the reply must still go out to
		// keep the strict ping-pong alternation, so retry the same send.
		for errors.Is(err, strategy.ErrBackpressure) {
			Logger.Debugf("connection %d: send backpressure, retrying", cs.ID)
			n, err = strat.Send()
		}
		if err != nil {
			Logger.Errorf("connection %d: send error: %v", cs.ID, err)
			break
		}
		cs.BytesSent += uint64(n)
		cs.MessagesSent++
		stats.BytesSentTotal.Add(n)
		stats.MessagesTotal.Inc()
	}

	Logger.Infof("connection %d finished: sent %d bytes (%d msgs), received %d bytes (%d msgs)",
		cs.ID, cs.BytesSent, cs.MessagesSent, cs.BytesReceived, cs.MessagesReceived)
}
