/*
Package system runs the background parts of a service as one unit.

A service is rarely just its API handler. There are servers to listen with,
health checks to expose, pool gauges to report and connections to close on the
way out. System collects all of those, runs them under one errgroup, reports
their metrics on a loop, and on termination drains for a configurable delay
before the cleanups run.

See the example project's main func for canonical usage.
*/
package system
