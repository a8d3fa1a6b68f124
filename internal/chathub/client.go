package chathub

import (
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"
)

// Client is one live connection registered with the hub.
// The hub never blocks on a client: Send either queues the envelope or
// reports that it could not.
type Client interface {
	// Handle identifies the connection. It is unique per connection, not per user.
	Handle() session.Handle
	// Identity is the authenticated user behind the connection.
	Identity() models.Identity

	// Send queues env for delivery. It returns false when the outbound
	// buffer is full or the client is closed.
	Send(env models.Envelope) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close stops the write pump and closes the connection. Safe to call twice.
	Close()
}

// Inbound is one decoded event received from a client.
type Inbound struct {
	Handle   session.Handle
	Envelope models.Envelope
}
