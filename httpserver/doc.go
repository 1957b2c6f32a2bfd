// Package httpserver serves HTTP APIs with graceful shutdown, connection
// gauges and traced requests.
package httpserver
