package harness

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sockbench/sockbench/bench/common"
	"github.com/sockbench/sockbench/bench/message"
	"github.com/sockbench/sockbench/bench/stats"
	"github.com/sockbench/sockbench/bench/strategy"
)

// dialTimeout bounds connection establishment per simulated client.
const dialTimeout = 5 * time.Second

// Client simulates a number of concurrent clients, each running the
// configured strategy's request/response loop against the server for a
// fixed wall-clock duration.
type Client struct {
	cfg     common.ClientConfig
	kind    strategy.Kind
	running atomic.Bool
}

// NewClient creates a client from the given configuration.
func NewClient(cfg common.ClientConfig) (*Client, error) {
	kind, err := strategy.ParseKind(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if cfg.PayloadSize <= 0 {
		return nil, fmt.Errorf("invalid payload size %d", cfg.PayloadSize)
	}
	if cfg.Clients <= 0 {
		return nil, fmt.Errorf("invalid client count %d", cfg.Clients)
	}
	if cfg.DurationSec <= 0 {
		return nil, fmt.Errorf("invalid duration %d", cfg.DurationSec)
	}

	return &Client{cfg: cfg, kind: kind}, nil
}

// Stop signals all workers to finish early. Safe to call more than once.
func (c *Client) Stop() {
	c.running.Store(false)
}

// Run establishes one connection per simulated client, drives the workers
// for the configured duration and returns the aggregated summary. Workers
// that fail to connect are skipped; the summary covers only workers that
// ran. Run blocks until every worker has joined.
func (c *Client) Run() (*stats.Summary, error) {
	duration := time.Duration(c.cfg.DurationSec) * time.Second
	deadline := time.Now().Add(duration)
	c.running.Store(true)

	hist := stats.NewLatencyHistogram()
	contexts := make([]*stats.ConnStats, c.cfg.Clients)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Clients; i++ {
		conn, err := net.DialTimeout("tcp", c.cfg.Endpoint, dialTimeout)
		if err != nil {
			// A failed connect skips this worker, it does not abort the run
			Logger.Errorf("client %d: connect to %s failed: %v", i, c.cfg.Endpoint, err)
			continue
		}

		tcpConn := conn.(*net.TCPConn)
		if err := tuneConn(tcpConn, c.cfg.TCPConf); err != nil {
			Logger.Warningf("client %d: failed to tune connection: %v", i, err)
		}

		cs := &stats.ConnStats{ID: uint64(i)}
		contexts[i] = cs

		wg.Add(1)
		go c.worker(tcpConn, cs, deadline, hist, &wg)
	}

	wg.Wait()

	var active []*stats.ConnStats
	for _, cs := range contexts {
		if cs != nil {
			active = append(active, cs)
		}
	}

	return stats.Aggregate(active, duration, hist), nil
}

// worker runs the client side of the ping-pong loop: send one request, wait
// for the full same-sized reply, record the round-trip latency, repeat until
// the deadline passes or the run is stopped.
func (c *Client) worker(conn *net.TCPConn, cs *stats.ConnStats, deadline time.Time, hist *stats.LatencyHistogram, wg *sync.WaitGroup) {
	defer wg.Done()
	defer conn.Close()

	Logger.Infof("client %d started", cs.ID)

	msg, err := message.Allocate(c.cfg.PayloadSize)
	if err != nil {
		Logger.Errorf("client %d: failed to allocate message: %v", cs.ID, err)
		return
	}
	msg.FillPattern()

	strat, err := strategy.New(c.kind, conn, msg)
	if err != nil {
		Logger.Errorf("client %d: failed to create strategy: %v", cs.ID, err)
		return
	}
	defer strat.Close()

	recvBuf := make([]byte, msg.Size())
	start := time.Now()

	for c.running.Load() && time.Now().Before(deadline) {
		iterStart := time.Now()

		n, err := strat.Send()
		if errors.Is(err, strategy.ErrBackpressure) {
			// Transient, retry on the next loop iteration
			continue
		}
		if err != nil {
			Logger.Errorf("client %d: send error: %v", cs.ID, err)
			break
		}
		cs.BytesSent += uint64(n)
		cs.MessagesSent++

		if _, err := strat.Receive(recvBuf); err != nil {
			Logger.Errorf("client %d: receive error: %v", cs.ID, err)
			break
		}

		// Round-trip latency: send issuance to full reply receipt
		rtt := time.Since(iterStart)
		cs.BytesReceived += uint64(len(recvBuf))
		cs.MessagesReceived++
		cs.TotalLatency += rtt
		hist.Update(rtt)
	}

	Logger.Infof("client %d completed after %.2f sec: sent %d bytes (%d msgs), received %d bytes (%d msgs)",
		cs.ID, time.Since(start).Seconds(), cs.BytesSent, cs.MessagesSent, cs.BytesReceived, cs.MessagesReceived)
}
