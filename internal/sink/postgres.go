package sink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hassws/internal/protocol"
)

// Postgres is a Sink backed by PostgreSQL: the pool is owned by the caller
// (Close is a no-op), and the target schema is validated and safely quoted
// rather than interpolated.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures Postgres behavior.
type PostgresOption func(*Postgres) error

// WithSchema sets the schema holding the archived_events table (default
// "hassws"). The identifier is validated before use.
func WithSchema(schema string) PostgresOption {
	return func(p *Postgres) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("sink: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("sink: invalid schema identifier")
		}
		p.schema = schema
		return nil
	}
}

// NewPostgres constructs a Postgres-backed Sink.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	p := &Postgres{pool: pool, schema: "hassws"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.pool == nil {
		return nil, errors.New("sink: nil pool")
	}
	return p, nil
}

// Close is a no-op; the pool is owned by the caller.
func (p *Postgres) Close() error { return nil }

// Append inserts rec into the archived_events table.
func (p *Postgres) Append(ctx context.Context, rec protocol.EventRecord) error {
	if p == nil || p.pool == nil {
		return errors.New("sink: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fired := rec.TimeFired
	if fired.IsZero() {
		fired = time.Now().UTC()
	}

	table := pgIdent(p.schema, "archived_events")
	_, err := p.pool.Exec(ctx,
		`INSERT INTO `+table+` (event_type, origin, time_fired, data, archived_at)
		 VALUES ($1, $2, $3, $4, now())`,
		rec.EventType, rec.Origin, fired, []byte(rec.Data),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// FetchRecent returns up to limit of the most recently archived events,
// ordered oldest first within the returned window.
func (p *Postgres) FetchRecent(ctx context.Context, limit int) ([]protocol.EventRecord, error) {
	if p == nil || p.pool == nil {
		return nil, errors.New("sink: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	table := pgIdent(p.schema, "archived_events")
	rows, err := p.pool.Query(ctx,
		`SELECT event_type, origin, time_fired, data
		   FROM `+table+`
		  ORDER BY archived_at DESC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]protocol.EventRecord, 0, limit)
	for rows.Next() {
		var rec protocol.EventRecord
		var data []byte
		if err := rows.Scan(&rec.EventType, &rec.Origin, &rec.TimeFired, &data); err != nil {
			return nil, err
		}
		rec.Data = data
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query orders newest-first for an efficient LIMIT; reverse so callers
	// see oldest-first like Memory.FetchRecent.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
