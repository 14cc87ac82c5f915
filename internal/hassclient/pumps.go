package hassclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"hassws/internal/protocol"
	"hassws/internal/transport"
)

// decodeBackoff bounds the reader's retry pace on malformed frames, so a
// misbehaving peer cannot spin the goroutine into a busy-loop. Malformed
// frames are logged and skipped rather than tearing down the connection.
const decodeBackoff = 20 * time.Millisecond

// writePump drains the outbound queue and writes one frame per message. It
// is the sole writer to the transport for the lifetime of the session.
func (s *Session) writePump(ctx context.Context, log *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-s.outbound:
			if !ok {
				return nil
			}
			if err := s.conn.Send(ctx, transport.FrameText, b); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("hassclient.write.fail", "err", err)
				time.Sleep(decodeBackoff)
				return fmt.Errorf("%w: %v", ErrTransport, err)
			}
		}
	}
}

// readPump owns the transport's receive side: it reassembles frames into
// complete messages (handled by transport.Conn.Receive already for the
// coder/websocket implementation), discriminates by type, and routes each
// message to the auth channel, the pending-commands registry, or the event
// channel.
func (s *Session) readPump(ctx context.Context, log *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind, data, err := s.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if kind == transport.FrameClose {
				log.Info("hassclient.read.peer_closed")
				s.cancelSession()
				return nil
			}
			log.Info("hassclient.read.fail", "err", err)
			s.cancelSession()
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if kind == transport.FrameClose {
			log.Info("hassclient.read.close_frame")
			s.cancelSession()
			return nil
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug("hassclient.read.bad_json", "err", err)
			time.Sleep(decodeBackoff)
			continue
		}
		if err := env.Validate(); err != nil {
			log.Debug("hassclient.read.invalid_envelope", "err", err)
			continue
		}

		s.dispatch(env, log)
	}
}

func (s *Session) dispatch(env protocol.Envelope, log *slog.Logger) {
	switch env.Type {
	case protocol.TypeAuthRequired, protocol.TypeAuthOK, protocol.TypeAuthInvalid:
		select {
		case s.authCh <- env:
		default:
			log.Warn("hassclient.auth_frame_dropped", "type", env.Type)
		}

	case protocol.TypeEvent:
		s.dispatchEvent(env, log)

	case protocol.TypeResult:
		s.dispatchResult(env, log)

	case protocol.TypePong:
		msg := protocol.ResultMessage{ID: env.ID, Type: protocol.TypePong, Success: true}
		if !s.coord.deliver(env.ID, msg) {
			log.Debug("hassclient.pong.unmatched", "id", env.ID)
		}

	default:
		log.Debug("hassclient.read.unhandled_type", "type", env.Type)
	}
}

func (s *Session) dispatchEvent(env protocol.Envelope, log *slog.Logger) {
	var ed protocol.EventData
	if err := json.Unmarshal(env.Event, &ed); err != nil {
		log.Debug("hassclient.event.bad_payload", "err", err)
		return
	}
	rec := protocol.EventRecord{
		EventType: ed.EventType,
		Origin:    ed.Origin,
		TimeFired: ed.TimeFired,
		Data:      ed.Data,
	}
	select {
	case s.events <- rec:
		s.metrics.IncEventsReceived()
	default:
		s.metrics.IncEventsDropped()
		log.Warn("hassclient.event.dropped", "event_type", rec.EventType)
	}
}

func (s *Session) dispatchResult(env protocol.Envelope, log *slog.Logger) {
	commandType, known := s.coord.lookup(env.ID)

	rm := protocol.ResultMessage{
		ID:     env.ID,
		Type:   protocol.TypeResult,
		Result: env.Result,
	}
	if env.Success != nil {
		rm.Success = *env.Success
	}
	if len(env.Error) > 0 {
		var re protocol.ResultError
		if err := json.Unmarshal(env.Error, &re); err == nil {
			rm.Error = &re
		}
	}

	if known {
		decodeResult(&rm, commandType)
	}

	if !s.coord.deliver(env.ID, rm) {
		log.Debug("hassclient.result.unmatched", "id", env.ID, "command_type", commandType)
	}
	s.metrics.SetPendingCommands(s.coord.size())
}

// decodeResult performs the lazy, command-type-directed decode of the
// polymorphic "result" field: only the reader, which alone knows the
// command type associated with an id, can decide how to shape the payload.
func decodeResult(rm *protocol.ResultMessage, commandType string) {
	if !rm.Success || len(rm.Result) == 0 {
		return
	}
	switch commandType {
	case protocol.TypeGetConfig:
		var cfg protocol.HassConfig
		if err := json.Unmarshal(rm.Result, &cfg); err == nil {
			rm.Decoded = cfg
		}
	case protocol.TypeGetStates:
		var states []protocol.HassState
		if err := json.Unmarshal(rm.Result, &states); err == nil {
			rm.Decoded = states
		}
	default:
		// call_service / subscribe_events / ping carry no typed result the
		// core needs to decode further; callers only inspect rm.Success.
	}
}
