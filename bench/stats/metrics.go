package stats

import (
	"net/http"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("stats")

// Live transfer counters, exported in Prometheus format when the server is
// started with a metrics endpoint. Workers update them as traffic flows;
// the authoritative end-of-run figures still come from Aggregate.
var (
	BytesSentTotal     = vmetrics.GetOrCreateCounter("sockbench_bytes_sent_total")
	BytesReceivedTotal = vmetrics.GetOrCreateCounter("sockbench_bytes_received_total")
	MessagesTotal      = vmetrics.GetOrCreateCounter("sockbench_messages_total")
)

// RegisterActiveConnections exports the current active connection count.
func RegisterActiveConnections(count func() float64) {
	vmetrics.GetOrCreateGauge("sockbench_active_connections", count)
}

// ServeMetrics exposes all registered metrics over HTTP on endpoint. It runs
// in its own goroutine and never stops the benchmark on failure.
func ServeMetrics(endpoint string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})

	go func() {
		if err := http.ListenAndServe(endpoint, mux); err != nil {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()

	Logger.Infof("serving metrics on http://%s/metrics", endpoint)
}
