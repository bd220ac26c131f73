package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresExecutor runs queries against the retail warehouse over a pgx
// connection pool.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

func NewPostgresExecutor(ctx context.Context, dsn string) (*PostgresExecutor, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse pool: %w", err)
	}
	return &PostgresExecutor{pool: pool}, nil
}

func (e *PostgresExecutor) Close() {
	e.pool.Close()
}

func (e *PostgresExecutor) ExecuteQuery(ctx context.Context, sql string) (*QueryResult, error) {
	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return nil, accessError("query failed: %v", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, accessError("failed to read row: %v", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, accessError("query failed: %v", err)
	}
	return result, nil
}
