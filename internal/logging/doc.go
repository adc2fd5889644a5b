// Package logging configures structured slog logging with size-based file
// rotation under ~/.stratoindex/logs/. Stdio transports (MCP) log to the
// file only so that stdout stays reserved for the protocol stream.
package logging
