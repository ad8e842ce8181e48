// Package cmd implements the command-line interface for the ordered lock
// service. It provides a hierarchical command structure with operations for
// running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the lock server
//   - lock: Commands for acquiring locks and running commands under them
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See olock -help for a list of all commands.
package cmd
