// Package cmd implements the command-line interface for the sockbench
// network I/O benchmark. It provides a hierarchical command structure with
// operations for running the echo server and driving benchmark load
// against it.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the benchmark server
//   - bench: Commands for running the benchmark client
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See sockbench -help for a list of all commands.
package cmd
