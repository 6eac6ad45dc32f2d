// Package sinks implements event consumers: structured logs, Prometheus
// collectors and run-completed publications.
package sinks
