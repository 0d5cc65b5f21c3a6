package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hobeen-kim/postgres-mcp/internal/telemetry"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("pg_healthcheck",
		mcp.WithDescription("Check database connectivity and report the server version."),
	), s.handleHealthcheck)

	s.mcp.AddTool(mcp.NewTool("pg_list_schemas",
		mcp.WithDescription("List all schema names in the database."),
	), s.handleListSchemas)

	s.mcp.AddTool(mcp.NewTool("pg_list_tables",
		mcp.WithDescription("List tables and views in a schema."),
		mcp.WithString("schema",
			mcp.Description("Schema to inspect. Defaults to public."),
		),
	), s.handleListTables)

	s.mcp.AddTool(mcp.NewTool("pg_describe_table",
		mcp.WithDescription("Describe the columns of a table: name, type, nullability, default."),
		mcp.WithString("schema",
			mcp.Required(),
			mcp.Description("Schema containing the table."),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table to describe."),
		),
	), s.handleDescribeTable)

	s.mcp.AddTool(mcp.NewTool("pg_query",
		mcp.WithDescription("Run a rows-returning SQL statement. Results are capped at a row limit and flagged when truncated."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("SQL text. Use $1, $2, ... for parameters."),
		),
		mcp.WithArray("params",
			mcp.Description("Positional parameter values."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Row cap for this call. Defaults to the configured maximum."),
		),
	), s.handleQuery)

	s.mcp.AddTool(mcp.NewTool("pg_execute",
		mcp.WithDescription("Run a SQL statement without fetching rows (INSERT, UPDATE, DDL, ...). Returns the server command tag."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("SQL text. Use $1, $2, ... for parameters."),
		),
		mcp.WithArray("params",
			mcp.Description("Positional parameter values."),
		),
	), s.handleExecute)
}

func (s *Server) handleHealthcheck(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.db.Healthcheck(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("healthcheck failed: %v", err)), nil
	}
	return jsonResult(info)
}

func (s *Server) handleListSchemas(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schemas, err := s.db.ListSchemas(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list schemas: %v", err)), nil
	}
	return jsonResult(map[string]any{"schemas": schemas})
}

func (s *Server) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schema := req.GetString("schema", "public")
	tables, err := s.db.ListTables(ctx, schema)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
	}
	return jsonResult(map[string]any{"schema": schema, "tables": tables})
}

func (s *Server) handleDescribeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schema, err := req.RequireString("schema")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	table, err := req.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	columns, err := s.db.DescribeTable(ctx, schema, table)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
	}
	if len(columns) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("table %s.%s not found", schema, table)), nil
	}
	return jsonResult(map[string]any{"schema": schema, "table": table, "columns": columns})
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	sqlText, err := req.RequireString("sql")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if d := s.gate.Check(sqlText); !d.Allowed {
		telemetry.ObserveStatement("mcp", "deny", start)
		return mcp.NewToolResultError(d.Err(s.gate.Mode()).Error()), nil
	}

	limit := req.GetInt("limit", s.maxRows)
	res, err := s.db.Query(ctx, sqlText, params(req), limit)
	if err != nil {
		telemetry.ObserveStatement("mcp", "error", start)
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	telemetry.ObserveStatement("mcp", "allow", start)
	return jsonResult(res)
}

func (s *Server) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	sqlText, err := req.RequireString("sql")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if d := s.gate.Check(sqlText); !d.Allowed {
		telemetry.ObserveStatement("mcp", "deny", start)
		return mcp.NewToolResultError(d.Err(s.gate.Mode()).Error()), nil
	}

	status, err := s.db.Execute(ctx, sqlText, params(req))
	if err != nil {
		telemetry.ObserveStatement("mcp", "error", start)
		return mcp.NewToolResultError(fmt.Sprintf("execute failed: %v", err)), nil
	}
	telemetry.ObserveStatement("mcp", "allow", start)
	return jsonResult(map[string]string{"status": status})
}

// params pulls the optional positional parameter array out of the request
// arguments. A missing or mistyped value is an empty parameter list.
func params(req mcp.CallToolRequest) []any {
	args := req.GetArguments()
	values, _ := args["params"].([]any)
	return values
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
