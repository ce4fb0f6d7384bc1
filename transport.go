package relay

import (
	"errors"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrOutboxFull       = errors.New("outbound queue is full")
	ErrMalformedFrame   = errors.New("malformed frame")
)

type (
	// Peer is one connection held in the server's registry. The ID is
	// assigned on accept and stays the same for the life of the connection.
	Peer interface {
		ID() string
		RemoteAddr() string
		Send(msg string) error
		Close() error
		String() string
	}

	// ServerHooks are invoked by the server transport. Lifecycle hooks run on
	// the goroutine that caused the transition; client hooks run on the
	// connection's own goroutine.
	ServerHooks interface {
		ServerStarted(port int)
		ServerStopped()
		ServerClosed()
		ClientConnected(p Peer)
		ClientDisconnected(p Peer)
		MessageFromClient(msg string, p Peer)
	}

	// ClientHooks are invoked by the client transport.
	ClientHooks interface {
		MessageFromServer(msg string)
		ConnectionException(err error)
		ConnectionClosed()
	}

	ServerTransport interface {
		// Starts (or resumes) accepting connections. A no-op when already listening.
		Listen() error

		// Halts the accept loop. The listening socket stays bound and existing
		// connections remain open.
		StopListening()

		// Stops listening, releases the socket and closes every connection.
		Close() error

		IsListening() bool
		Port() int
		SetPort(port int)

		// Best-effort delivery to every registered connection.
		SendToAll(msg string) error

		ClientCount() int
	}

	ClientTransport interface {
		OpenConnection() error
		CloseConnection() error
		IsConnected() bool
		Host() string
		SetHost(host string)
		Port() int
		SetPort(port int)
		SendToServer(msg string) error
	}

	cxnStateEvent struct {
		newState  cxnState
		eventData any
	}
)
