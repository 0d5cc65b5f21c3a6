package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
)

// Introspection reads information_schema through goqu-built statements. These
// run on the same transaction rails as user statements but bypass the policy
// gate: they are fixed read-only shapes, not caller SQL.

var pgDialect = goqu.Dialect("postgres")

func schemasQuery() (string, []any, error) {
	return pgDialect.From(goqu.S("information_schema").Table("schemata")).
		Select("schema_name").
		Order(goqu.C("schema_name").Asc()).
		Prepared(true).
		ToSQL()
}

// ListSchemas returns every schema name in the database.
func (db *DB) ListSchemas(ctx context.Context) ([]string, error) {
	sql, args, err := schemasQuery()
	if err != nil {
		return nil, err
	}
	schemas := []string{}
	err = db.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			schemas = append(schemas, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return schemas, nil
}

// TableInfo describes one table or view.
type TableInfo struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

func tablesQuery(schema string) (string, []any, error) {
	return pgDialect.From(goqu.S("information_schema").Table("tables")).
		Select("table_schema", "table_name", "table_type").
		Where(goqu.C("table_schema").Eq(schema)).
		Order(goqu.C("table_name").Asc()).
		Prepared(true).
		ToSQL()
}

// ListTables returns the tables and views in a schema.
func (db *DB) ListTables(ctx context.Context, schema string) ([]TableInfo, error) {
	sql, args, err := tablesQuery(schema)
	if err != nil {
		return nil, err
	}
	tables := []TableInfo{}
	err = db.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t TableInfo
			if err := rows.Scan(&t.Schema, &t.Name, &t.Type); err != nil {
				return err
			}
			tables = append(tables, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
	Position int     `json:"position"`
}

func columnsQuery(schema, table string) (string, []any, error) {
	return pgDialect.From(goqu.S("information_schema").Table("columns")).
		Select("column_name", "data_type", "is_nullable", "column_default", "ordinal_position").
		Where(goqu.Ex{"table_schema": schema, "table_name": table}).
		Order(goqu.C("ordinal_position").Asc()).
		Prepared(true).
		ToSQL()
}

// DescribeTable returns column metadata in ordinal order. A missing table
// yields an empty slice, not an error; the caller decides how to present it.
func (db *DB) DescribeTable(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	sql, args, err := columnsQuery(schema, table)
	if err != nil {
		return nil, err
	}
	columns := []ColumnInfo{}
	err = db.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c ColumnInfo
			var nullable string
			if err := rows.Scan(&c.Name, &c.Type, &nullable, &c.Default, &c.Position); err != nil {
				return err
			}
			c.Nullable = nullable == "YES"
			columns = append(columns, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}
