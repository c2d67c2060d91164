// Package observe provides the logging, tracing and metrics primitives used by
// the gateway.
//
// It is a pure instrumentation library: no transport and no I/O beyond
// exporter setup. The trust bootstrap, token client and authorization engine
// receive a Logger, Tracer and Metrics explicitly at construction time.
package observe
