// Package worker loops a unit of work with tracing around each call and
// back-off while there is nothing to do. The system metrics reporter runs on
// it, and it suits any recurring job such as draining a queue-like source.
package worker
