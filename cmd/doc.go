// Package cmd implements the command-line interface for driveproxy.
//
// This package provides the following commands:
//   - serve: Start the file API server and the metrics server
//   - version: Display version information
package cmd
