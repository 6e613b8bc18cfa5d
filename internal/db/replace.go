package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// RunRows is the row set of one resolution run in a table keyed by run.
type RunRows struct {
	Table     string   // target table, optionally schema-qualified
	RunColumn string   // column holding the run id
	RunID     string
	Columns   []string // COPY column order; must include RunColumn
	Rows      [][]any
}

// ReplaceRunRows swaps the stored rows of a run for rs.Rows in one
// transaction: the run's existing rows are deleted, then the new ones are
// copied in. An empty rs.Rows clears the run. It returns the number of rows
// copied.
func ReplaceRunRows(ctx context.Context, pool Pool, rs RunRows) (int64, error) {
	if rs.RunID == "" {
		return 0, eris.New("db: replace rows: empty run id")
	}
	if len(rs.Rows) > 0 && !containsColumn(rs.Columns, rs.RunColumn) {
		return 0, eris.Errorf("db: replace rows: columns must include %q", rs.RunColumn)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace rows: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		identifier(rs.Table).Sanitize(),
		pgx.Identifier{rs.RunColumn}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, deleteSQL, rs.RunID); err != nil {
		return 0, eris.Wrapf(err, "db: replace rows: clear run %s", rs.RunID)
	}

	n, err := CopyFrom(ctx, tx, rs.Table, rs.Columns, rs.Rows)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace rows: copy run %s", rs.RunID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace rows: commit tx")
	}
	return n, nil
}

// identifier splits schema-qualified table names like "pcoder.runs".
func identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

func containsColumn(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
