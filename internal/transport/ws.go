package transport

import (
	"context"
	"sync/atomic"

	"github.com/coder/websocket"
)

// WSDialer dials real WebSocket connections via github.com/coder/websocket.
type WSDialer struct {
	// Subprotocols is sent as Sec-WebSocket-Protocol. Optional.
	Subprotocols []string
}

func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	opts := &websocket.DialOptions{}
	if len(d.Subprotocols) > 0 {
		opts.Subprotocols = d.Subprotocols
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameBytes)

	return &wsConn{conn: conn, state: int32(StateOpen)}, nil
}

// maxFrameBytes bounds a single inbound frame. It guards against an
// unbounded-allocation peer regardless of which side dials.
const maxFrameBytes = 1 << 20

type wsConn struct {
	conn  *websocket.Conn
	state int32 // atomic State
}

func (c *wsConn) Send(ctx context.Context, kind FrameKind, data []byte) error {
	mt := toMessageType(kind)
	if err := c.conn.Write(ctx, mt, data); err != nil {
		c.setState(StateAborted)
		return err
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) (FrameKind, []byte, error) {
	mt, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			c.setState(StateCloseReceived)
			return FrameClose, nil, err
		}
		c.setState(StateAborted)
		return FrameText, nil, err
	}
	return fromMessageType(mt), data, nil
}

func (c *wsConn) CloseOutput(ctx context.Context, code int, reason string) error {
	c.setState(StateCloseSent)
	err := c.conn.Close(websocket.StatusCode(code), reason)
	c.setState(StateClosed)
	return err
}

func (c *wsConn) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *wsConn) Dispose() error {
	c.setState(StateClosed)
	return c.conn.CloseNow()
}

func (c *wsConn) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

func toMessageType(k FrameKind) websocket.MessageType {
	if k == FrameBinary {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}

func fromMessageType(mt websocket.MessageType) FrameKind {
	if mt == websocket.MessageBinary {
		return FrameBinary
	}
	return FrameText
}

// NormalClosure is the standard WebSocket close code for a graceful
// client-initiated shutdown.
const NormalClosure = int(websocket.StatusNormalClosure)
