package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// QueryResult is the pg_query payload: column order as returned by the
// server, rows as name/value maps, and a truncation flag when the row cap
// cut the result short.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// Query runs a rows-returning statement with positional parameters, capping
// the result at maxRows.
func (db *DB) Query(ctx context.Context, sql string, params []any, maxRows int) (*QueryResult, error) {
	if maxRows < 1 {
		return nil, fmt.Errorf("row limit must be at least 1, got %d", maxRows)
	}

	res := &QueryResult{Columns: []string{}, Rows: []map[string]any{}}
	err := db.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, params...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for _, fd := range rows.FieldDescriptions() {
			res.Columns = append(res.Columns, fd.Name)
		}

		for rows.Next() {
			if len(res.Rows) == maxRows {
				res.Truncated = true
				break
			}
			values, err := rows.Values()
			if err != nil {
				return err
			}
			row := make(map[string]any, len(values))
			for i, v := range values {
				row[res.Columns[i]] = jsonable(v)
			}
			res.Rows = append(res.Rows, row)
		}
		rows.Close()
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// Execute runs a statement that returns no rows and reports the server
// command tag, e.g. "INSERT 0 1".
func (db *DB) Execute(ctx context.Context, sql string, params []any) (string, error) {
	var status string
	err := db.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, params...)
		if err != nil {
			return err
		}
		status = tag.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}
