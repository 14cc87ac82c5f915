// Package hassclient implements a client for the Home Assistant WebSocket
// API: concurrent read/write pumps, request/response correlation, event
// multiplexing, the auth handshake state machine, and idempotent graceful
// shutdown.
//
// The connection engine runs a reader/writer goroutine pair behind a
// context-cancelled shutdown made idempotent by a mutex-guarded closing
// flag, on the client-dial side of the connection.
package hassclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hassws/internal/ids"
	"hassws/internal/protocol"
	"hassws/internal/transport"
)

// ConnState enumerates the auth-handshake/lifecycle states a Session moves
// through.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateTransportOpening
	StateAwaitingAuthChallenge
	StateSendingAuth
	StateAuthEvaluating
	StateHandshake
	StateReady
	StateClosingGracefully
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateTransportOpening:
		return "transport_opening"
	case StateAwaitingAuthChallenge:
		return "awaiting_auth_challenge"
	case StateSendingAuth:
		return "sending_auth"
	case StateAuthEvaluating:
		return "auth_evaluating"
	case StateHandshake:
		return "handshake"
	case StateReady:
		return "ready"
	case StateClosingGracefully:
		return "closing_gracefully"
	default:
		return "unknown"
	}
}

// Config holds per-session tunables.
type Config struct {
	SocketTimeout time.Duration
	ChannelCapacity int
	MaxCloseWait    time.Duration

	// GetStatesOnConnect, when true, issues get_states right after auth_ok
	// and populates the state mirror before Connect returns.
	GetStatesOnConnect bool

	// SubscribeEvents, when true, issues subscribe_events right after
	// auth_ok (and after the optional get_states above). A success=false
	// reply surfaces ErrSubscribeFailed from Connect.
	SubscribeEvents bool

	// SubscribeEventType restricts the implicit subscription to one event
	// type; empty subscribes to all events, matching the HA API default.
	SubscribeEventType string
}

// DefaultConfig returns sensible default tunables: 5s socket timeout, a
// 200-capacity outbound/event channel, and a 5s close grace period.
func DefaultConfig() Config {
	return Config{
		SocketTimeout:   5 * time.Second,
		ChannelCapacity: 200,
		MaxCloseWait:    5 * time.Second,
	}
}

// Option configures optional Session collaborators.
type Option func(*Session)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithMetrics wires a Metrics recorder (internal/app/metrics in production).
func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is the public façade over the connection engine: Connect,
// GetConfig, CallService, Ping, SubscribeToEvents, GetStates, ReadEvent,
// Close.
type Session struct {
	dialer transport.Dialer
	cfg    Config
	log    *slog.Logger
	metrics Metrics

	correlationID string

	mu      sync.Mutex
	state   ConnState
	closing bool
	conn    transport.Conn
	coord   *coordinator
	outbound chan []byte
	events   chan protocol.EventRecord
	authCh   chan protocol.Envelope
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	shutdownOnce *sync.Once

	mirror *stateMirror
}

// New constructs a Session that dials through dialer. Pass
// transport.WSDialer{} for a real coder/websocket-backed connection, or a
// test double satisfying transport.Dialer.
func New(dialer transport.Dialer, cfg Config, opts ...Option) *Session {
	s := &Session{
		dialer:  dialer,
		cfg:     cfg,
		log:     slog.Default(),
		metrics: noopMetrics{},
		state:   StateDisconnected,
		mirror:  newStateMirror(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.metrics.SetConnState(int(st))
}

// State reports the session's current lifecycle state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials url, performs the auth handshake with token, and, per
// cfg.GetStatesOnConnect/SubscribeEvents, optionally bulk-loads the state
// mirror and subscribes to the server event stream. It returns true once
// auth_ok is confirmed, false on auth_invalid (with a nil error: an
// auth rejection is an expected outcome, not a failure of the call itself).
func (s *Session) Connect(ctx context.Context, url, token string) (bool, error) {
	if url == "" || token == "" {
		return false, ErrInvalidArgument
	}

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return false, ErrAlreadyConnected
	}
	s.state = StateTransportOpening
	s.mu.Unlock()

	corrID, err := ids.New(time.Time{})
	if err != nil {
		corrID = "unknown"
	}
	s.correlationID = corrID
	log := s.log.With("session_id", corrID)

	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		s.setState(StateDisconnected)
		return false, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(sessionCtx)

	s.mu.Lock()
	s.conn = conn
	s.ctx = gctx
	s.cancel = cancel
	s.group = group
	s.shutdownOnce = &sync.Once{}
	s.coord = newCoordinator()
	s.outbound = make(chan []byte, s.cfg.ChannelCapacity)
	s.events = make(chan protocol.EventRecord, s.cfg.ChannelCapacity)
	s.authCh = make(chan protocol.Envelope, 2)
	s.state = StateAwaitingAuthChallenge
	s.mu.Unlock()

	group.Go(func() error { return s.writePump(gctx, log) })
	group.Go(func() error { return s.readPump(gctx, log) })

	ok, err := s.handshake(ctx, gctx, token, log)
	if err != nil || !ok {
		_ = s.Close()
		return ok, err
	}

	s.setState(StateReady)
	log.Info("hassclient.ready")
	return true, nil
}

func (s *Session) handshake(ctx, sessionCtx context.Context, token string, log *slog.Logger) (bool, error) {
	first, err := s.awaitAuthFrame(ctx, sessionCtx)
	if err != nil {
		return false, err
	}

	if first.Type == protocol.TypeAuthRequired {
		s.setState(StateSendingAuth)
		authMsg := protocol.NewAuthMessage(token)
		b, merr := marshal(authMsg)
		if merr != nil {
			return false, fmt.Errorf("%w: %v", ErrProtocol, merr)
		}
		if !tryEnqueue(s.outbound, b) {
			return false, fmt.Errorf("%w: outbound queue full during auth", ErrTransport)
		}
		s.setState(StateAuthEvaluating)
		first, err = s.awaitAuthFrame(ctx, sessionCtx)
		if err != nil {
			return false, err
		}
	}

	switch first.Type {
	case protocol.TypeAuthOK:
		// fallthrough to handshake steps below
	case protocol.TypeAuthInvalid:
		log.Error("hassclient.auth_invalid", "message", first.Message)
		return false, nil
	default:
		log.Error("hassclient.auth_unexpected", "type", first.Type)
		return false, fmt.Errorf("%w: unexpected handshake message %q", ErrProtocol, first.Type)
	}

	s.setState(StateHandshake)

	if s.cfg.GetStatesOnConnect {
		states, err := s.getStates(ctx)
		if err != nil {
			return false, err
		}
		s.mirror.replaceAll(states)
		log.Info("hassclient.states_loaded", "count", len(states))
	}

	if s.cfg.SubscribeEvents {
		if err := s.subscribeEvents(ctx, s.cfg.SubscribeEventType); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (s *Session) awaitAuthFrame(ctx, sessionCtx context.Context) (protocol.Envelope, error) {
	linked, cancelLink := linkContext(ctx, sessionCtx)
	defer cancelLink()
	timeoutCtx, cancelTimeout := context.WithTimeout(linked, s.cfg.SocketTimeout)
	defer cancelTimeout()

	select {
	case env := <-s.authCh:
		return env, nil
	case <-timeoutCtx.Done():
		if sessionCtx.Err() != nil {
			return protocol.Envelope{}, ErrClosed
		}
		if ctx.Err() != nil {
			return protocol.Envelope{}, ctx.Err()
		}
		return protocol.Envelope{}, ErrTimeout
	}
}

// cancelSession cancels the current session context, if any, without
// touching the transport or pump goroutines directly. It is safe to call
// from a pump goroutine itself (e.g. on a peer-initiated close) so the
// other pump and any in-flight mailbox wait unwind without waiting for an
// explicit Close call.
func (s *Session) cancelSession() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close gracefully and idempotently tears down the session: it half-closes
// the transport, cancels the session context (unblocking both pumps and any
// in-flight mailbox wait), waits for both pumps to terminate, and disposes
// the transport. A subsequent Connect call is valid once Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closing || s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.state = StateClosingGracefully
	conn := s.conn
	cancel := s.cancel
	group := s.group
	maxWait := s.cfg.MaxCloseWait
	s.mu.Unlock()

	if conn != nil {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), maxWait)
		_ = conn.CloseOutput(closeCtx, transport.NormalClosure, "bye")
		cancelClose()
	}

	if cancel != nil {
		cancel()
	}

	if group != nil {
		doneCh := make(chan struct{})
		go func() {
			_ = group.Wait()
			close(doneCh)
		}()
		select {
		case <-doneCh:
		case <-time.After(maxWait):
		}
	}

	if conn != nil {
		_ = conn.Dispose()
	}

	s.mu.Lock()
	s.conn = nil
	s.state = StateDisconnected
	s.closing = false
	s.mu.Unlock()

	s.metrics.SetConnState(int(StateDisconnected))
	return nil
}

// linkContext returns a context done when either ctx or other is done, so
// a per-call timeout can be distinguished from session-wide shutdown. Go's
// context package has no multi-parent primitive, so this runs a small
// watcher goroutine; callers must invoke the returned cancel func to stop
// it once done with the context, even when the derived context was never
// itself cancelled.
func linkContext(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-other.Done():
			cancel()
		case <-merged.Done():
		case <-stop:
		}
	}()
	return merged, func() {
		close(stop)
		cancel()
	}
}

func tryEnqueue(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

var errMarshal = errors.New("hassclient: marshal")

func marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMarshal, err)
	}
	return b, nil
}
