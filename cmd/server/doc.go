// Package main is the entry point for the execbox MCP server.
//
// Configuration is read from ./config.yaml or ./config/config.yaml and may be
// overridden with EXECBOX_ prefixed environment variables, for example
// EXECBOX_SERVER_TRANSPORT=http or EXECBOX_METRICS_ENABLED=true.
package main
