package hassclient

import "errors"

// Sentinel errors: plain errors.New values, wrapped with
// fmt.Errorf("%w: ...") at the call site when extra context helps.
var (
	// ErrInvalidArgument is returned for a missing URL or access token.
	ErrInvalidArgument = errors.New("hassclient: invalid argument")

	// ErrAlreadyConnected is returned when Connect is called on a session
	// that is already connecting or connected.
	ErrAlreadyConnected = errors.New("hassclient: already connected")

	// ErrSubscribeFailed is returned from Connect when the implicit
	// subscribe_events issued at connect time replies with success=false.
	ErrSubscribeFailed = errors.New("hassclient: implicit event subscription failed")

	// ErrTimeout is returned when a per-call deadline elapses while the
	// session itself remains live.
	ErrTimeout = errors.New("hassclient: call timed out")

	// ErrClosed is returned from any in-flight or subsequent operation once
	// the session has been (or is being) closed.
	ErrClosed = errors.New("hassclient: session closed")

	// ErrNotConnected is returned when an operation requiring an open
	// session is called before Connect or after Close.
	ErrNotConnected = errors.New("hassclient: not connected")

	// ErrTransport wraps a failure from the underlying transport.Conn.
	ErrTransport = errors.New("hassclient: transport error")

	// ErrProtocol is returned when the server's reply does not match the
	// shape the requesting command expected.
	ErrProtocol = errors.New("hassclient: protocol error")
)
