package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/lib/pq/oid"
	"github.com/rs/zerolog/log"

	"github.com/hobeen-kim/postgres-mcp/internal/policy"
	"github.com/hobeen-kim/postgres-mcp/internal/telemetry"
)

// Proxy serves the PostgreSQL wire protocol in front of a single upstream.
// Every statement passes the access-mode gate first; denied statements never
// reach the upstream and surface to the client as query errors carrying the
// denial reason.
type Proxy struct {
	pool *pgxpool.Pool
	gate *policy.Gate
	addr string
}

func New(pool *pgxpool.Pool, gate *policy.Gate, addr string) *Proxy {
	return &Proxy{pool: pool, gate: gate, addr: addr}
}

// ListenAndServe blocks serving the wire protocol on the configured address.
func (p *Proxy) ListenAndServe() error {
	log.Info().
		Str("addr", p.addr).
		Str("mode", p.gate.Mode().String()).
		Msg("starting proxy")
	return wire.ListenAndServe(p.addr, p.queryHandler)
}

func (p *Proxy) queryHandler(ctx context.Context, query string) (wire.PreparedStatements, error) {
	start := time.Now()

	decision := p.gate.Check(query)
	if !decision.Allowed {
		telemetry.ObserveStatement("proxy", "deny", start)
		return nil, decision.Err(p.gate.Mode())
	}

	columns, err := p.describe(ctx, query)
	if err != nil {
		telemetry.ObserveStatement("proxy", "error", start)
		log.Warn().Err(err).Msg("upstream rejected statement")
		return nil, err
	}
	return p.execute(query, columns, start), nil
}

// describe asks the upstream for the statement's result shape without running
// it, so the row description is known when the statement is prepared. The
// unnamed statement keeps the pooled connection clean. Statements that return
// no rows describe to zero columns.
func (p *Proxy) describe(ctx context.Context, query string) (wire.Columns, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	sd, err := conn.Conn().Prepare(ctx, "", query)
	if err != nil {
		return nil, err
	}

	columns := make(wire.Columns, len(sd.Fields))
	for i, fd := range sd.Fields {
		columns[i] = wire.Column{Name: fd.Name, Oid: oid.T_text, Width: -1}
	}
	return columns, nil
}

// execute forwards the statement to the upstream once the client runs it,
// streaming rows back in text form and finishing with the upstream command
// tag.
func (p *Proxy) execute(query string, columns wire.Columns, start time.Time) wire.PreparedStatements {
	handler := func(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
		rows, err := p.pool.Query(ctx, query)
		if err != nil {
			telemetry.ObserveStatement("proxy", "error", start)
			log.Warn().Err(err).Msg("upstream query failed")
			return err
		}
		defer rows.Close()

		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			row := make([]any, len(values))
			for i, v := range values {
				if v != nil {
					row[i] = fmt.Sprintf("%v", v)
				}
			}
			if err := writer.Row(row); err != nil {
				return err
			}
		}
		if err := rows.Err(); err != nil {
			telemetry.ObserveStatement("proxy", "error", start)
			return err
		}

		telemetry.ObserveStatement("proxy", "allow", start)
		return writer.Complete(rows.CommandTag().String())
	}
	return wire.Prepared(wire.NewStatement(handler, wire.WithColumns(columns)))
}
