// Package events carries run lifecycle events from the orchestrator to pluggable
// sinks. Emit never blocks: events are buffered, batched on a background
// goroutine and dropped under backpressure.
package events
