// Package ids mints correlation identifiers for log lines. These are
// distinct from the wire-level monotonic command id the coordinator assigns
// (protocol.CommandMessage.ID): hassclient mints one ULID per session at
// Connect to tag its structured log entries, and it is never sent over the
// wire.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a new ULID string (26 chars), lexicographically sortable by
// creation time.
func New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNew is New but panics on entropy-source failure, for call sites
// where the caller has no sensible fallback.
func MustNew(now time.Time) string {
	id, err := New(now)
	if err != nil {
		panic(err)
	}
	return id
}
