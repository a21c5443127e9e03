// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and EXECBOX_* environment variables. It covers
// the server transport, logging, metrics, the language to backend routing table
// and the settings of each execution backend.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server transport: %s\n", cfg.Server.Transport)
package config
