// Package transport abstracts the WebSocket byte pipe the hassclient package
// runs its protocol over. The core never depends on a concrete socket
// library directly; it depends only on this capability set, keeping a
// concrete library such as *websocket.Conn confined to the edges.
package transport

import "context"

// State mirrors the lifecycle a WebSocket connection moves through.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateCloseSent
	StateCloseReceived
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateCloseSent:
		return "close_sent"
	case StateCloseReceived:
		return "close_received"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// FrameKind distinguishes the three frame kinds the core cares about.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FrameClose
)

// Conn is the capability set the session controller requires from a
// connected transport. Implementations must be safe for concurrent Send and
// Receive from different goroutines (the core never calls either
// concurrently with itself, but the write pump and read pump run on separate
// goroutines for the lifetime of the connection).
type Conn interface {
	// Send transmits one complete message as a single frame.
	Send(ctx context.Context, kind FrameKind, data []byte) error

	// Receive blocks until the next frame arrives, returning its kind and
	// payload. Implementations deliver one full message per call; the core
	// does not need partial-frame reassembly from this interface (the
	// coder/websocket-backed implementation reassembles fragmentation
	// itself, matching the semantics websocket.Conn.Read already provides).
	Receive(ctx context.Context) (kind FrameKind, data []byte, err error)

	// CloseOutput starts the close handshake with the given code/reason. An
	// implementation may block for a bounded time waiting for the peer's
	// close frame; the coder/websocket-backed one does.
	CloseOutput(ctx context.Context, code int, reason string) error

	// State reports the connection's current lifecycle state.
	State() State

	// Dispose releases any resources, aborting the connection if still open.
	Dispose() error
}

// Dialer opens a new Conn to url. Implementations may add headers,
// subprotocols, or TLS configuration of their own.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
