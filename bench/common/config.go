package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sockbench/sockbench/bench/message"
)

// --------------------------------------------------------------------------
// Socket tuning options
// --------------------------------------------------------------------------

// TCPConf holds the socket level tuning options applied to every
// established connection on both ends of the benchmark.
type TCPConf struct {
	// TCPNoDelay disables Nagle's algorithm
	TCPNoDelay bool
	// TCPKeepAliveSec enables keep-alive with the given period (0 disables)
	TCPKeepAliveSec int
	// TCPLingerSec sets the linger time (negative leaves the OS default)
	TCPLingerSec int
	// WriteBufferSize sets the socket write buffer size in bytes (0 leaves the OS default)
	WriteBufferSize int
	// ReadBufferSize sets the socket read buffer size in bytes (0 leaves the OS default)
	ReadBufferSize int
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for the benchmark server.
type ServerConfig struct {
	// Endpoint is the address the server listens on (e.g. 0.0.0.0:8080)
	Endpoint string

	// PayloadSize is the requested message payload size in bytes
	PayloadSize int

	// MaxConnections is the maximum number of concurrently served connections.
	// Connections accepted beyond this cap are closed immediately.
	MaxConnections int

	// Strategy selects the transfer strategy (copy, vector, zerocopy)
	Strategy string

	// MetricsEndpoint optionally exposes Prometheus metrics over HTTP (empty disables)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string

	TCPConf
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Benchmark Server")
	addField("Endpoint", c.Endpoint)
	addField("Strategy", c.Strategy)
	addField("Payload Size", fmt.Sprintf("%d bytes", c.PayloadSize))
	addField("Effective Msg Size", fmt.Sprintf("%d bytes", message.EffectiveSize(c.PayloadSize)))
	addField("Max Connections", strconv.Itoa(c.MaxConnections))
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	addSection("Socket Options")
	addTCPFields(addField, c.TCPConf)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters for the benchmark client.
type ClientConfig struct {
	// Endpoint is the server address (e.g. 127.0.0.1:8080)
	Endpoint string

	// PayloadSize is the requested message payload size in bytes.
	// It must match the server side or the receive loops will misalign.
	PayloadSize int

	// Clients is the number of concurrently simulated clients
	Clients int

	// DurationSec is the wall-clock run duration in seconds
	DurationSec int

	// Strategy selects the transfer strategy (copy, vector, zerocopy)
	Strategy string

	// Logging configuration
	LogLevel string

	TCPConf
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Benchmark Client")
	addField("Server", c.Endpoint)
	addField("Strategy", c.Strategy)
	addField("Payload Size", fmt.Sprintf("%d bytes", c.PayloadSize))
	addField("Effective Msg Size", fmt.Sprintf("%d bytes", message.EffectiveSize(c.PayloadSize)))
	addField("Clients", strconv.Itoa(c.Clients))
	addField("Duration", fmt.Sprintf("%d sec", c.DurationSec))

	addSection("Socket Options")
	addTCPFields(addField, c.TCPConf)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// addTCPFields renders the shared socket options
func addTCPFields(addField func(name, value string), c TCPConf) {
	addField("TCP NoDelay", fmt.Sprintf("%t", c.TCPNoDelay))
	addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPLingerSec))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))
}
