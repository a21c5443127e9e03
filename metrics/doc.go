// Package metrics exposes execution metrics to Prometheus.
//
// The Collector keeps every metric on its own registry and implements
// engine.Observer, so handing it to the Router is all that is needed to
// record executions. The Server publishes the registry on /metrics when
// metrics are enabled in the configuration.
package metrics
