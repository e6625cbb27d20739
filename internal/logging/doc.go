// Package logging provides opt-in file-based logging with rotation for OrgMCP.
// When the --debug flag is set, comprehensive logs are written to ~/.orgmcp/logs/
// for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only.
// In MCP serve mode logs go exclusively to the log file: stdout carries the
// JSON-RPC stream and must stay clean.
package logging
