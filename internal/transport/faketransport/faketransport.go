// Package faketransport is an in-memory transport.Conn/Dialer test double,
// letting internal/hassclient's tests drive the full auth/command/event
// protocol without a real socket, using an in-process harness rather than a
// live network listener.
package faketransport

import (
	"context"
	"sync"

	"hassws/internal/transport"
)

// Conn is a bidirectional in-memory pipe. The naming follows the client's
// point of view: Receive yields frames the test script enqueues as "server
// sends"; Send appends to Sent for assertions.
type Conn struct {
	mu     sync.Mutex
	state  transport.State
	toRecv chan frame
	Sent   [][]byte

	closeOutputCalled bool
	disposed          bool
}

type frame struct {
	kind transport.FrameKind
	data []byte
	err  error
}

// New returns a ready-to-use fake connection in the Open state.
func New() *Conn {
	return &Conn{
		state:  transport.StateOpen,
		toRecv: make(chan frame, 64),
	}
}

// PushServerMessage enqueues a frame for the next Receive call to return, as
// if the server had sent it.
func (c *Conn) PushServerMessage(data []byte) {
	c.toRecv <- frame{kind: transport.FrameText, data: data}
}

// PushServerClose enqueues a close frame.
func (c *Conn) PushServerClose() {
	c.toRecv <- frame{kind: transport.FrameClose}
}

// PushServerError enqueues a Receive-time error (simulating a transport
// failure unrelated to an orderly close).
func (c *Conn) PushServerError(err error) {
	c.toRecv <- frame{err: err}
}

func (c *Conn) Send(ctx context.Context, kind transport.FrameKind, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	c.mu.Lock()
	c.Sent = append(c.Sent, cp)
	c.mu.Unlock()
	return nil
}

func (c *Conn) Receive(ctx context.Context) (transport.FrameKind, []byte, error) {
	select {
	case f := <-c.toRecv:
		if f.err != nil {
			return transport.FrameText, nil, f.err
		}
		return f.kind, f.data, nil
	case <-ctx.Done():
		return transport.FrameText, nil, ctx.Err()
	}
}

func (c *Conn) CloseOutput(ctx context.Context, code int, reason string) error {
	c.mu.Lock()
	c.closeOutputCalled = true
	c.state = transport.StateCloseSent
	c.mu.Unlock()
	return nil
}

// SentSnapshot returns a copy of every frame written so far via Send, for
// test assertions and for polling until an expected outbound command
// appears (see internal/hassclient's tests).
func (c *Conn) SentSnapshot() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.Sent))
	copy(out, c.Sent)
	return out
}

func (c *Conn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Dispose() error {
	c.mu.Lock()
	c.disposed = true
	c.state = transport.StateClosed
	c.mu.Unlock()
	return nil
}

// Dialer returns a transport.Dialer that always hands back conn, ignoring
// the URL: tests construct the Conn first to retain a handle for scripting
// and assertions.
func Dialer(conn *Conn) transport.Dialer {
	return dialerFunc(func(ctx context.Context, url string) (transport.Conn, error) {
		return conn, nil
	})
}

type dialerFunc func(ctx context.Context, url string) (transport.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, url string) (transport.Conn, error) {
	return f(ctx, url)
}
