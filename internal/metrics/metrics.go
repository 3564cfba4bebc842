// Package metrics provides interfaces and implementations for collecting
// notification-daemon metrics. This package defines the Collector interface
// for recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording notification-daemon metrics
// across the TCP control server, the UDP reliable-datagram server, and the
// sticky-notice store.
type Collector interface {
	// TCP control connection metrics
	ConnectionOpened()
	ConnectionClosed()

	// Authentication metrics (sign-on result by dialect)
	AuthAttempt(dialect string, success bool)

	// Command metrics
	CommandProcessed(command string)

	// Registered-client metrics
	ClientRegistered()
	ClientReaped()

	// Notification delivery metrics
	NoticePosted(delivered bool)
	NoticeRetransmitted()

	// Sticky-store metrics
	StickyNoticeStored()
	StickyNoticeCleared(count int)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
