// Package progress narrates a crawl run. The controller emits typed events
// into a non-blocking Hub, which batches them on a background goroutine and
// fans them out to pluggable sinks: structured logs, Prometheus collectors or
// a terminal progress bar.
package progress
