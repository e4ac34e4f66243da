package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// RowError ties a failed row to its index within the flushed batch.
type RowError struct {
	Index int
	Err   error
}

// BatchInserter flushes batches of rows with a two-tier strategy: a single
// COPY first, and only when that fails, row-at-a-time INSERTs so that one
// bad row does not discard the rest of its batch.
type BatchInserter struct {
	pool      Pool
	table     string
	columns   []string
	insertSQL string
}

// NewBatchInserter builds an inserter for the given table and column list.
func NewBatchInserter(pool Pool, table string, columns []string) *BatchInserter {
	placeholders := make([]string, len(columns))
	quoted := make([]string, len(columns))
	for i, c := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	return &BatchInserter{
		pool:    pool,
		table:   table,
		columns: columns,
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			pgx.Identifier{table}.Sanitize(),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "),
		),
	}
}

// Flush inserts the batch. It returns the number of rows that made it in
// and a RowError per row that did not. The bulk path either inserts the
// whole batch or degrades to the row path; it never rolls back rows that
// succeeded individually.
func (b *BatchInserter) Flush(ctx context.Context, rows [][]any) (int, []RowError) {
	if len(rows) == 0 {
		return 0, nil
	}

	if _, err := CopyFrom(ctx, b.pool, b.table, b.columns, rows); err == nil {
		return len(rows), nil
	}

	var inserted int
	var rowErrs []RowError
	for i, row := range rows {
		if _, err := b.pool.Exec(ctx, b.insertSQL, row...); err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, Err: eris.Wrapf(err, "db: insert into %s", b.table)})
			continue
		}
		inserted++
	}
	return inserted, rowErrs
}
