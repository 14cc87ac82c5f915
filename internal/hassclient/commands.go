package hassclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hassws/internal/protocol"
)

// sendCommandAndAwait is the request/response coordinator entry point: it
// allocates a monotonic id, registers a one-shot mailbox for it, enqueues
// the marshaled command, and blocks until either the reply arrives, the
// per-call timeout elapses, or the session is closed. The latter two are
// distinguished via the linked context built from ctx and the session's
// own context.
func (s *Session) sendCommandAndAwait(ctx context.Context, commandType string, build func(id int64) protocol.CommandMessage, timeout time.Duration) (protocol.ResultMessage, error) {
	s.mu.Lock()
	sessionCtx := s.ctx
	coord := s.coord
	outbound := s.outbound
	s.mu.Unlock()

	if sessionCtx == nil || coord == nil {
		return protocol.ResultMessage{}, ErrNotConnected
	}
	if sessionCtx.Err() != nil {
		return protocol.ResultMessage{}, ErrClosed
	}

	id, mbox := coord.register(commandType)
	cmd := build(id)
	b, err := marshal(cmd)
	if err != nil {
		coord.abandon(id)
		return protocol.ResultMessage{}, err
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveCommandDuration(commandType, time.Since(start))
	}()

	linked, cancelLink := linkContext(ctx, sessionCtx)
	defer cancelLink()
	timeoutCtx, cancelTimeout := context.WithTimeout(linked, timeout)
	defer cancelTimeout()

	if !tryEnqueue(outbound, b) {
		coord.abandon(id)
		s.metrics.IncCommandsTotal(commandType, "error")
		return protocol.ResultMessage{}, fmt.Errorf("%w: outbound queue full", ErrTransport)
	}
	s.metrics.SetPendingCommands(coord.size())

	select {
	case msg := <-mbox:
		outcome := "ok"
		if !msg.Success {
			outcome = "failed"
		}
		s.metrics.IncCommandsTotal(commandType, outcome)
		return msg, nil
	case <-timeoutCtx.Done():
		coord.abandon(id)
		if sessionCtx.Err() != nil {
			s.metrics.IncCommandsTotal(commandType, "cancelled")
			return protocol.ResultMessage{}, ErrClosed
		}
		if ctx.Err() != nil {
			s.metrics.IncCommandsTotal(commandType, "cancelled")
			return protocol.ResultMessage{}, ctx.Err()
		}
		s.metrics.IncCommandsTotal(commandType, "timeout")
		return protocol.ResultMessage{}, ErrTimeout
	}
}

// GetConfig issues get_config and returns the decoded HassConfig.
func (s *Session) GetConfig(ctx context.Context) (protocol.HassConfig, error) {
	rm, err := s.sendCommandAndAwait(ctx, protocol.TypeGetConfig, func(id int64) protocol.CommandMessage {
		return protocol.CommandMessage{ID: id, Type: protocol.TypeGetConfig}
	}, s.cfg.SocketTimeout)
	if err != nil {
		return protocol.HassConfig{}, err
	}
	cfg, ok := rm.Decoded.(protocol.HassConfig)
	if !rm.Success || !ok {
		return protocol.HassConfig{}, fmt.Errorf("%w: get_config", ErrProtocol)
	}
	return cfg, nil
}

// getStates issues get_states and returns the decoded slice, used both by
// the optional connect-time bulk load and by the public GetStates below.
func (s *Session) getStates(ctx context.Context) ([]protocol.HassState, error) {
	rm, err := s.sendCommandAndAwait(ctx, protocol.TypeGetStates, func(id int64) protocol.CommandMessage {
		return protocol.CommandMessage{ID: id, Type: protocol.TypeGetStates}
	}, s.cfg.SocketTimeout)
	if err != nil {
		return nil, err
	}
	states, ok := rm.Decoded.([]protocol.HassState)
	if !rm.Success || !ok {
		return nil, fmt.Errorf("%w: get_states", ErrProtocol)
	}
	return states, nil
}

// GetStates issues get_states on demand, independent of any connect-time
// bulk load. It does not itself update the state mirror, which stays a
// connect-time-only snapshot.
func (s *Session) GetStates(ctx context.Context) ([]protocol.HassState, error) {
	return s.getStates(ctx)
}

// CallService invokes domain.service with the given service_data and
// reports the server's success flag. A per-call timeout resolves to
// (false, nil), a negative but expected outcome, while a closed session
// resolves to (false, ErrClosed).
func (s *Session) CallService(ctx context.Context, domain, service string, data map[string]any) (bool, error) {
	rm, err := s.sendCommandAndAwait(ctx, protocol.TypeCallService, func(id int64) protocol.CommandMessage {
		return protocol.CommandMessage{
			ID:          id,
			Type:        protocol.TypeCallService,
			Domain:      domain,
			Service:     service,
			ServiceData: data,
		}
	}, s.cfg.SocketTimeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	return rm.Success, nil
}

// Ping sends a ping command and waits up to timeout for its matching pong.
// It returns false on timeout or transport error rather than surfacing an
// error, since it is meant to be used as a simple liveness probe.
func (s *Session) Ping(ctx context.Context, timeout time.Duration) bool {
	_, err := s.sendCommandAndAwait(ctx, protocol.TypePing, func(id int64) protocol.CommandMessage {
		return protocol.CommandMessage{ID: id, Type: protocol.TypePing}
	}, timeout)
	return err == nil
}

// subscribeEvents issues subscribe_events, used both by the implicit
// connect-time subscription and the public SubscribeToEvents below.
func (s *Session) subscribeEvents(ctx context.Context, eventType string) error {
	rm, err := s.sendCommandAndAwait(ctx, protocol.TypeSubscribeEvent, func(id int64) protocol.CommandMessage {
		return protocol.CommandMessage{ID: id, Type: protocol.TypeSubscribeEvent, EventType: eventType}
	}, s.cfg.SocketTimeout)
	if err != nil {
		return err
	}
	if !rm.Success {
		msg := "subscribe_events rejected"
		if rm.Error != nil {
			msg = rm.Error.Message
		}
		return fmt.Errorf("%w: %s", ErrSubscribeFailed, msg)
	}
	return nil
}

// SubscribeToEvents requests server-pushed events of eventType (empty
// subscribes to all event types) be delivered to ReadEvent.
func (s *Session) SubscribeToEvents(ctx context.Context, eventType string) error {
	return s.subscribeEvents(ctx, eventType)
}

// ReadEvent blocks for the next event pushed by the server. It returns
// ErrClosed once the session is closing, or ctx.Err() if ctx is done first.
func (s *Session) ReadEvent(ctx context.Context) (protocol.EventRecord, error) {
	s.mu.Lock()
	events := s.events
	sessionCtx := s.ctx
	s.mu.Unlock()

	if events == nil || sessionCtx == nil {
		return protocol.EventRecord{}, ErrNotConnected
	}

	select {
	case ev, ok := <-events:
		if !ok {
			return protocol.EventRecord{}, ErrClosed
		}
		return ev, nil
	case <-sessionCtx.Done():
		return protocol.EventRecord{}, ErrClosed
	case <-ctx.Done():
		return protocol.EventRecord{}, ctx.Err()
	}
}
