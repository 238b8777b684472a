// Package eventbroker defines the fan-in/out hub a Bridged Client reports
// its lifecycle events to, and two concrete implementations: an
// in-process broker for tests and single-process deployments, and a
// NATS-backed broker for multi-process ones.
package eventbroker

import "context"

// ClientRef is the minimal view of a Bridged Client the broker needs in
// order to attribute events to a session, without the broker package
// importing bridgedclient: the broker holds a back reference to the
// client it observes, not an owning one, and the client owns the broker,
// not the other way around.
type ClientRef interface {
	InstanceID() string
	HomeUserID() string
	Server() string
}

// Metadata is a human-readable status line delivered back to the home
// side, optionally flagged to bypass verbosity filtering.
type Metadata struct {
	Text        string
	ForceNotice bool
}

// Broker is the interface a Bridged Client depends on. Every method is
// fire-and-forget from the client's perspective: none of them block a
// protocol operation on broker delivery.
type Broker interface {
	// ClientConnected reports that client finished IRC registration.
	ClientConnected(client ClientRef)
	// ClientDisconnected reports that client's connection died, for any
	// reason (explicit Disconnect/Kill, or an upstream drop).
	ClientDisconnected(client ClientRef, reason string)
	// NickChange reports a server-confirmed nick change for client.
	NickChange(client ClientRef, oldNick, newNick string)
	// JoinError reports a hard JOIN failure for client.
	JoinError(client ClientRef, channel, code string)
	// SendMetadata delivers a status line for client to the home side.
	SendMetadata(client ClientRef, meta Metadata)
	// Close releases any resources the broker holds (connections,
	// goroutines) and should not be called again afterward.
	Close(ctx context.Context) error
}
