package warehouse

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DatasetExecutor serves SQL against a caller-uploaded CSV dataset. The CSV
// is loaded into an in-memory SQLite database for the lifetime of one
// request, so the same generate-execute pipeline works on inline data with
// no warehouse round trip.
type DatasetExecutor struct {
	db      *sql.DB
	columns []string
	types   []string
}

// DatasetTable is the table name generated SQL should reference.
const DatasetTable = "dataset"

var identCleaner = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func sanitizeIdent(name string) string {
	name = identCleaner.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "c_" + name
	}
	return name
}

func sniffType(values []string) string {
	seen := false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "TEXT"
		}
		seen = true
	}
	if !seen {
		return "TEXT"
	}
	return "REAL"
}

// LoadCSVDataset reads a CSV stream with a header row into an in-memory
// SQLite table. Column types are sniffed so numeric columns stay numeric
// under aggregation.
func LoadCSVDataset(ctx context.Context, r io.Reader) (*DatasetExecutor, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 1 || len(records[0]) == 0 {
		return nil, fmt.Errorf("CSV has no header row")
	}

	header := records[0]
	rows := records[1:]

	columns := make([]string, len(header))
	types := make([]string, len(header))
	for i, name := range header {
		columns[i] = sanitizeIdent(name)
		colValues := make([]string, 0, len(rows))
		for _, row := range rows {
			if i < len(row) {
				colValues = append(colValues, row[i])
			}
		}
		types[i] = sniffType(colValues)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	defs := make([]string, len(columns))
	for i := range columns {
		defs[i] = fmt.Sprintf("%q %s", columns[i], types[i])
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", DatasetTable, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create dataset table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	insertStmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", DatasetTable, placeholders)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin dataset load: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, fmt.Errorf("failed to prepare dataset insert: %w", err)
	}
	for _, row := range rows {
		args := make([]any, len(columns))
		for i := range columns {
			var raw string
			if i < len(row) {
				raw = strings.TrimSpace(row[i])
			}
			switch {
			case raw == "":
				args[i] = nil
			case types[i] == "REAL":
				f, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					args[i] = raw
				} else {
					args[i] = f
				}
			default:
				args[i] = raw
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			db.Close()
			return nil, fmt.Errorf("failed to load dataset row: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to commit dataset load: %w", err)
	}

	return &DatasetExecutor{db: db, columns: columns, types: types}, nil
}

func (e *DatasetExecutor) Close() error {
	return e.db.Close()
}

// SchemaContext describes the dataset table in the same shape the semantic
// schema file uses, so the SQL generation prompt can be grounded on uploaded
// data.
func (e *DatasetExecutor) SchemaContext() string {
	var sb strings.Builder
	sb.WriteString("tables:\n")
	sb.WriteString(fmt.Sprintf("  %s:\n", DatasetTable))
	sb.WriteString("    description: user-uploaded CSV dataset\n")
	sb.WriteString("    columns:\n")
	for i, col := range e.columns {
		kind := "text"
		if e.types[i] == "REAL" {
			kind = "numeric"
		}
		sb.WriteString(fmt.Sprintf("      %s: %s\n", col, kind))
	}
	return sb.String()
}

func (e *DatasetExecutor) ExecuteQuery(ctx context.Context, sqlText string) (*QueryResult, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, accessError("query failed: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, accessError("failed to read columns: %v", err)
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, accessError("failed to read row: %v", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, accessError("query failed: %v", err)
	}
	return result, nil
}
