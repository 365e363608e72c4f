// Package adapter defines the lifecycle contract shared by the control
// and transfer listeners, plus the Prometheus instrumentation both feed.
package adapter

import "context"

// Adapter is a protocol listener managed by the server.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. Serve() binds the listener and blocks until shutdown
//  3. Stop() initiates graceful shutdown with a deadline
//
// Stop may be called concurrently with Serve and must be idempotent.
type Adapter interface {
	// Serve binds the listener and accepts connections until the
	// context is cancelled or an unrecoverable error occurs. On
	// cancellation it drains active connections before returning.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. When the context expires,
	// remaining connections are force-closed.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics.
	Protocol() string

	// Port returns the bound TCP port, or 0 before Serve.
	Port() int
}
