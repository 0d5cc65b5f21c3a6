package mcpserver

import (
	"context"
	stdlog "log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/hobeen-kim/postgres-mcp/internal/database"
	"github.com/hobeen-kim/postgres-mcp/internal/policy"
)

// Executor is the database surface the tools run against. *database.DB
// implements it; tests substitute a recorder to prove denied statements never
// reach the database.
type Executor interface {
	Healthcheck(ctx context.Context) (database.HealthInfo, error)
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]database.TableInfo, error)
	DescribeTable(ctx context.Context, schema, table string) ([]database.ColumnInfo, error)
	Query(ctx context.Context, sql string, params []any, maxRows int) (*database.QueryResult, error)
	Execute(ctx context.Context, sql string, params []any) (string, error)
}

const instructions = "Inspect PostgreSQL schemas and tables, or run SQL with pg_query and pg_execute. " +
	"Every statement is checked against the configured access mode before it executes; " +
	"denied statements return the denial reason and touch nothing."

// Server exposes the Postgres tools over MCP.
type Server struct {
	gate    *policy.Gate
	db      Executor
	maxRows int
	mcp     *server.MCPServer
}

// New wires the tool set into an MCP server instance.
func New(gate *policy.Gate, db Executor, maxRows int, version string) *Server {
	s := &Server{gate: gate, db: db, maxRows: maxRows}
	s.mcp = server.NewMCPServer(
		"postgres-mcp",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout. Logging stays on stderr;
// stdout carries the protocol.
func (s *Server) ServeStdio() error {
	log.Info().Str("mode", s.gate.Mode().String()).Msg("serving MCP over stdio")
	return server.ServeStdio(s.mcp, server.WithErrorLogger(stdlog.New(log.Logger, "", 0)))
}
