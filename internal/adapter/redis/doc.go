// Package redis provides the Redis-backed latest-position store.
//
// Every client is wrapped by a MetricsHook and a CircuitBreakerHook so a
// Redis outage fails position reads and writes fast instead of piling up
// timeouts behind the tracker.
package redis
