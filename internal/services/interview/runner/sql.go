package runner

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/devready/devready/internal/platform/storage/sqlitemigrate"
	"github.com/devready/devready/internal/platform/timeouts"
)

//go:embed migrations/*.sql
var sandboxMigrations embed.FS

// readOnlyStatement matches the statement forms allowed against the sandbox.
var readOnlyStatement = regexp.MustCompile(`(?i)^(select|with|pragma|explain)\b`)

// SeedSandboxDB creates the SQL sandbox database at path and applies the
// fixture schema. Safe to call on every startup; migrations apply once.
func SeedSandboxDB(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("sandbox db path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sandbox db: %w", err)
	}
	defer db.Close()

	if err := sqlitemigrate.ApplyMigrations(db, sandboxMigrations, "migrations"); err != nil {
		return fmt.Errorf("apply sandbox migrations: %w", err)
	}
	return nil
}

// runQuery executes a single read-only statement against the sandbox
// database and renders the rows as an ASCII table.
func (e *Exec) runQuery(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(e.SandboxDBPath) == "" {
		return "SQL sandbox is not configured on this server.", nil
	}

	stmt := strings.TrimSpace(code)
	stmt = strings.TrimRight(stmt, "; \t\r\n")
	if !readOnlyStatement.MatchString(stmt) {
		return "Only read queries are allowed (SELECT/WITH/PRAGMA/EXPLAIN) in this mode.", nil
	}

	db, err := sql.Open("sqlite", "file:"+e.SandboxDBPath+"?mode=ro")
	if err != nil {
		return "SQL open error: " + err.Error(), nil
	}
	defer db.Close()

	queryCtx, cancel := context.WithTimeout(ctx, timeouts.RunQuery)
	defer cancel()

	rows, err := db.QueryContext(queryCtx, stmt)
	if err != nil {
		return "SQL error: " + err.Error(), nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "SQL error: " + err.Error(), nil
	}

	var table [][]string
	for rows.Next() {
		values := make([]any, len(columns))
		for i := range values {
			var cell sql.NullString
			values[i] = &cell
		}
		if err := rows.Scan(values...); err != nil {
			return "SQL error: " + err.Error(), nil
		}
		row := make([]string, len(columns))
		for i, v := range values {
			cell := v.(*sql.NullString)
			if cell.Valid {
				row[i] = cell.String
			} else {
				row[i] = "NULL"
			}
		}
		table = append(table, row)
	}
	if err := rows.Err(); err != nil {
		return "SQL error: " + err.Error(), nil
	}

	return renderTable(columns, table), nil
}
