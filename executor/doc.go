// Package executor assembles the execution engine from configuration.
//
// It builds the remote, interpreter and native backends and registers each
// language listed in engine.routes on a Router, wiring the metrics collector
// in as the Router's observer.
package executor
