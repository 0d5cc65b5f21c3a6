package e2e

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hobeen-kim/postgres-mcp/internal/database"
	"github.com/hobeen-kim/postgres-mcp/internal/policy"
)

func TestHealthcheck(t *testing.T) {
	info, err := db.Healthcheck(context.Background())
	require.NoError(t, err)
	assert.True(t, info.OK)
	assert.Equal(t, "app", info.Database)
	assert.Contains(t, info.Version, "PostgreSQL")
}

func TestIntrospection(t *testing.T) {
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `CREATE TABLE introspect_me (id SERIAL PRIMARY KEY, name TEXT NOT NULL, note TEXT)`)
	require.NoError(t, err)
	defer db.Pool().Exec(ctx, `DROP TABLE introspect_me`)

	schemas, err := db.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Contains(t, schemas, "public")
	assert.Contains(t, schemas, "information_schema")

	tables, err := db.ListTables(ctx, "public")
	require.NoError(t, err)
	var names []string
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.Contains(t, names, "introspect_me")

	columns, err := db.DescribeTable(ctx, "public", "introspect_me")
	require.NoError(t, err)
	require.Len(t, columns, 3)
	assert.Equal(t, "id", columns[0].Name)
	assert.Equal(t, "integer", columns[0].Type)
	assert.False(t, columns[0].Nullable)
	assert.Equal(t, "name", columns[1].Name)
	assert.False(t, columns[1].Nullable)
	assert.Equal(t, "note", columns[2].Name)
	assert.True(t, columns[2].Nullable)

	missing, err := db.DescribeTable(ctx, "public", "no_such_table")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestQueryRowCap(t *testing.T) {
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `CREATE TABLE capped (id INT)`)
	require.NoError(t, err)
	defer db.Pool().Exec(ctx, `DROP TABLE capped`)

	for i := 1; i <= 10; i++ {
		_, err := db.Pool().Exec(ctx, `INSERT INTO capped (id) VALUES ($1)`, i)
		require.NoError(t, err)
	}

	res, err := db.Query(ctx, "SELECT id FROM capped ORDER BY id", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, res.Columns)
	assert.Equal(t, 3, res.RowCount)
	assert.True(t, res.Truncated)

	res, err = db.Query(ctx, "SELECT id FROM capped ORDER BY id", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, res.RowCount)
	assert.False(t, res.Truncated)

	res, err = db.Query(ctx, "SELECT id FROM capped WHERE id > $1 ORDER BY id", []any{8}, 200)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.EqualValues(t, 9, res.Rows[0]["id"])

	_, err = db.Query(ctx, "SELECT 1", nil, 0)
	require.Error(t, err)
}

func TestExecuteCommandTag(t *testing.T) {
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `CREATE TABLE tagged (id INT, v TEXT)`)
	require.NoError(t, err)
	defer db.Pool().Exec(ctx, `DROP TABLE tagged`)

	status, err := db.Execute(ctx, `INSERT INTO tagged (id, v) VALUES ($1, $2)`, []any{1, "a"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT 0 1", status)

	status, err = db.Execute(ctx, `UPDATE tagged SET v = 'b' WHERE id = 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE 1", status)

	// The write committed.
	res, err := db.Query(ctx, "SELECT v FROM tagged WHERE id = 1", nil, 1)
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, "b", res.Rows[0]["v"])
}

func TestStatementTimeout(t *testing.T) {
	ctx := context.Background()

	shortCfg := dbCfg
	shortCfg.StatementTimeoutMS = 200
	shortDB, err := database.Connect(ctx, shortCfg)
	require.NoError(t, err)
	defer shortDB.Close()

	_, err = shortDB.Query(ctx, "SELECT pg_sleep(2)", nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement timeout")
}

func TestProxyLimited(t *testing.T) {
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `CREATE TABLE proxy_limited (id INT, v TEXT)`)
	require.NoError(t, err)
	defer db.Pool().Exec(ctx, `DROP TABLE proxy_limited`)

	connStr := startProxy(t, policy.ModeLimited, 16432)
	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	defer conn.Close(ctx)

	// Allowed: INSERT and guarded writes.
	_, err = conn.Exec(ctx, "INSERT INTO proxy_limited (id, v) VALUES (1, 'a')")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "INSERT INTO proxy_limited (id, v) VALUES (2, 'b')")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "DELETE FROM proxy_limited WHERE id = 2")
	require.NoError(t, err)

	// Denied: bare DELETE, destructive DDL. Nothing reaches the upstream.
	_, err = conn.Exec(ctx, "DELETE FROM proxy_limited")
	require.Error(t, err)
	assert.Contains(t, err.Error(), policy.ReasonNoWhere)

	_, err = conn.Exec(ctx, "DROP TABLE proxy_limited")
	require.Error(t, err)
	assert.Contains(t, err.Error(), policy.ReasonDestructiveDDL)

	// The denied statements changed nothing.
	var count int
	require.NoError(t, db.Pool().QueryRow(ctx, "SELECT count(*) FROM proxy_limited").Scan(&count))
	assert.Equal(t, 1, count)

	// Reads flow through with the row description and rows intact.
	rows, err := conn.Query(ctx, "SELECT id, v FROM proxy_limited ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	fds := rows.FieldDescriptions()
	require.Len(t, fds, 2)
	assert.Equal(t, "id", fds[0].Name)
	assert.Equal(t, "v", fds[1].Name)
	var got []string
	for rows.Next() {
		var id, v string
		require.NoError(t, rows.Scan(&id, &v))
		got = append(got, fmt.Sprintf("%s=%s", id, v))
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"1=a"}, got)
}

func TestProxyReadonly(t *testing.T) {
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `CREATE TABLE proxy_ro (id INT)`)
	require.NoError(t, err)
	defer db.Pool().Exec(ctx, `DROP TABLE proxy_ro`)
	_, err = db.Pool().Exec(ctx, `INSERT INTO proxy_ro (id) VALUES (7)`)
	require.NoError(t, err)

	connStr := startProxy(t, policy.ModeReadonly, 16433)
	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	defer conn.Close(ctx)

	var id string
	require.NoError(t, conn.QueryRow(ctx, "SELECT id FROM proxy_ro").Scan(&id))
	assert.Equal(t, "7", id)

	// NULLs survive the text re-encoding.
	var note *string
	require.NoError(t, conn.QueryRow(ctx, "SELECT NULL").Scan(&note))
	assert.Nil(t, note)

	_, err = conn.Exec(ctx, "INSERT INTO proxy_ro (id) VALUES (8)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), policy.ReasonReadonlyBlocked)
}

func TestProxyUnrestricted(t *testing.T) {
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `CREATE TABLE proxy_unrestricted (id INT)`)
	require.NoError(t, err)

	connStr := startProxy(t, policy.ModeUnrestricted, 16434)
	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, "DELETE FROM proxy_unrestricted")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "DROP TABLE proxy_unrestricted")
	require.NoError(t, err)

	var exists bool
	require.NoError(t, db.Pool().QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'proxy_unrestricted')").Scan(&exists))
	assert.False(t, exists)
}
