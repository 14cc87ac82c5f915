// Package sink archives protocol.EventRecord values read off
// hassclient.Session.ReadEvent. It is an optional, non-core collaborator:
// the session never calls into it directly, a caller's own event loop does
// (see internal/app, which cmd/hassws runs).
//
// One small interface, one in-memory dev implementation, one pgx-backed
// production implementation.
package sink

import (
	"context"

	"hassws/internal/protocol"
)

// Sink persists EventRecords and serves recent history back out.
type Sink interface {
	Append(ctx context.Context, rec protocol.EventRecord) error
	FetchRecent(ctx context.Context, limit int) ([]protocol.EventRecord, error)
	Close() error
}
