// Package stats collects per-worker transfer counters and merges them into
// the run summary once all workers have joined.
package stats

import (
	"fmt"
	"strings"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// latencySampleSize bounds the reservoir backing the latency histogram.
const latencySampleSize = 16384

// ConnStats holds the counters of a single connection worker. The worker
// owns them exclusively while it runs; the aggregator reads the terminal
// values only after the worker has joined.
type ConnStats struct {
	ID               uint64
	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	TotalLatency     time.Duration
}

// LatencyHistogram samples per-iteration round-trip latencies across all
// workers of a run. Updates are safe for concurrent use.
type LatencyHistogram struct {
	hist gometrics.Histogram
}

// NewLatencyHistogram creates a histogram over a uniform reservoir sample.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		hist: gometrics.NewHistogram(gometrics.NewUniformSample(latencySampleSize)),
	}
}

// Update records one round-trip latency.
func (h *LatencyHistogram) Update(d time.Duration) {
	h.hist.Update(d.Microseconds())
}

// Percentile returns the given latency quantile (0..1).
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	return time.Duration(h.hist.Snapshot().Percentile(p)) * time.Microsecond
}

// Summary is the aggregate of all workers' terminal counters. It is computed
// once, after every worker has finished, and never mutated concurrently.
type Summary struct {
	// Workers counts the workers that successfully ran
	Workers int

	BytesSent     uint64
	BytesReceived uint64
	Messages      uint64

	// Duration is the configured run duration the throughput refers to
	Duration time.Duration

	// ThroughputBps is bits transferred in both directions per second
	ThroughputBps float64

	// AvgLatency is cumulative round-trip latency divided by total messages
	AvgLatency time.Duration

	// Latency quantiles, zero when no histogram was collected
	LatencyP50 time.Duration
	LatencyP95 time.Duration
	LatencyP99 time.Duration
}

// Aggregate merges the terminal counters of all joined workers. Workers that
// never ran (failed to connect) must not be passed in.
func Aggregate(workers []*ConnStats, duration time.Duration, hist *LatencyHistogram) *Summary {
	s := &Summary{
		Workers:  len(workers),
		Duration: duration,
	}

	var totalLatency time.Duration
	for _, w := range workers {
		s.BytesSent += w.BytesSent
		s.BytesReceived += w.BytesReceived
		s.Messages += w.MessagesSent
		totalLatency += w.TotalLatency
	}

	if duration > 0 {
		s.ThroughputBps = float64(s.BytesSent+s.BytesReceived) * 8 / duration.Seconds()
	}
	if s.Messages > 0 {
		s.AvgLatency = totalLatency / time.Duration(s.Messages)
	}
	if hist != nil && s.Messages > 0 {
		s.LatencyP50 = hist.Percentile(0.50)
		s.LatencyP95 = hist.Percentile(0.95)
		s.LatencyP99 = hist.Percentile(0.99)
	}

	return s
}

// String returns the formatted summary block reported at process exit.
func (s *Summary) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("\nSUMMARY\n")

	if s.Workers == 0 || s.Messages == 0 {
		sb.WriteString("  No successful connections.\n")
		return sb.String()
	}

	addField("Active Workers", fmt.Sprintf("%d", s.Workers))
	addField("Total Bytes Sent", fmt.Sprintf("%d", s.BytesSent))
	addField("Total Bytes Received", fmt.Sprintf("%d", s.BytesReceived))
	addField("Total Messages", fmt.Sprintf("%d", s.Messages))
	addField("Throughput", fmt.Sprintf("%.4f Gbps", s.ThroughputBps/1e9))
	addField("Avg Latency", s.AvgLatency.String())
	if s.LatencyP50 > 0 || s.LatencyP95 > 0 || s.LatencyP99 > 0 {
		addField("Latency p50/p95/p99", fmt.Sprintf("%s / %s / %s", s.LatencyP50, s.LatencyP95, s.LatencyP99))
	}

	return sb.String()
}
