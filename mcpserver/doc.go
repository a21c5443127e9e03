// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The server exposes two tools: execute_code, which runs source code through
// the execution engine and returns the normalized result as JSON, and
// list_languages, which reports every supported language together with the
// backend that runs it.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, router)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
