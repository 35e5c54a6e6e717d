package chathub

import "mullmine/backend/internal/models"

// Client is one active connection of a user, whatever the transport.
// The hub treats all client types uniformly through this interface.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string
	// Deliver hands an event to the connection without blocking. It
	// reports false when the event was dropped, either because the
	// connection's buffer is full or because the connection has already
	// closed; delivering to a closed client is always safe.
	Deliver(evt models.Event) bool
	// Run starts the connection's read and write sides.
	Run()
	// Close shuts the connection's outbound side. Idempotent; called by
	// the hub on unregister.
	Close()
}
