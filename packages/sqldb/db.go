package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	connectTimeout = 5 * time.Second
	queryTimeout   = 30 * time.Second
)

// open dials the database named by a connection string like
// sqlite:./test.db or sqlite:///path/to/db.sqlite and verifies the
// connection with a ping.
func open(connStr string) (*sql.DB, error) {
	driver, dsn, err := parseConnectionString(connStr)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func parseConnectionString(connStr string) (driver, dsn string, err error) {
	connStr = strings.TrimSpace(connStr)
	switch {
	case strings.HasPrefix(connStr, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(connStr, "sqlite://"), nil
	case strings.HasPrefix(connStr, "sqlite:"):
		return "sqlite3", strings.TrimPrefix(connStr, "sqlite:"), nil
	case connStr == "":
		return "", "", fmt.Errorf("database_url is not configured")
	default:
		return "", "", fmt.Errorf("unsupported database url %q", connStr)
	}
}

// queryRows runs the query and materializes every row, converting
// []byte cells to strings so verifiers can compare them to YAML values.
func queryRows(db *sql.DB, query string, args ...any) (columns []string, out []map[string]any, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err = rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	out = make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, out, nil
}
