// Package store is the durable warehouse behind the evaluation pipeline.
//
// Everything goes through Warehouse.Execute with positional parameters;
// statements never span a transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Row is one result row keyed by column name
type Row map[string]any

// Warehouse runs a parameterized statement.
// Statements that produce no rows return a nil slice.
type Warehouse interface {
	Execute(ctx context.Context, query string, params ...any) ([]Row, error)
}

// SQLWarehouse is a Warehouse over database/sql
type SQLWarehouse struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens and pings the database. For sqlite the parent directory is
// created and the pool is limited to one writer.
func Open(driver, dsn string, logger *zap.Logger) (*SQLWarehouse, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if driver == "" {
		driver = "sqlite"
	}

	if driver == "sqlite" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	return &SQLWarehouse{db: db, logger: logger}, nil
}

// Execute runs query. SELECT, WITH and RETURNING statements yield rows.
func (w *SQLWarehouse) Execute(ctx context.Context, query string, params ...any) ([]Row, error) {
	start := time.Now()
	defer func() {
		w.logger.Debug("warehouse statement",
			zap.String("statement", firstWord(query)),
			zap.Duration("duration", time.Since(start)))
	}()

	if !returnsRows(query) {
		if _, err := w.db.ExecContext(ctx, query, params...); err != nil {
			return nil, fmt.Errorf("exec: %w", err)
		}
		return nil, nil
	}

	rows, err := w.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[strings.ToUpper(c)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Close closes the database
func (w *SQLWarehouse) Close() error {
	return w.db.Close()
}

func returnsRows(query string) bool {
	switch firstWord(query) {
	case "SELECT", "WITH", "PRAGMA":
		return true
	}
	return strings.Contains(strings.ToUpper(query), "RETURNING")
}

func firstWord(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// Int64 returns the column as an integer, nil when NULL or absent
func (r Row) Int64(col string) *int64 {
	switch v := r[col].(type) {
	case int64:
		return &v
	case int:
		n := int64(v)
		return &n
	case float64:
		n := int64(v)
		return &n
	}
	return nil
}

// String returns the column as text, "" when NULL or absent
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the column as a float, 0 when NULL or absent
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Time returns the column as a time, zero when NULL or unparseable
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
