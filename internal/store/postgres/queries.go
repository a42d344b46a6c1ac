package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/store"
)

// runColumns is the column list used for SELECT statements on the ledger.
const runColumns = `id, entity, batch_size, total_records, total_batches, started_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryTables(ctx context.Context, db executor, schema string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func queryColumns(ctx context.Context, db executor, schema, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func queryPrimaryKey(ctx context.Context, db executor, schema, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.table_schema = tc.table_schema
		 AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// table arguments below are already quoted with pq.QuoteIdentifier.

func queryCount(ctx context.Context, db executor, table string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

func queryWindow(ctx context.Context, db executor, table string, keys []string, offset, limit int) ([]model.Record, error) {
	order := make([]string, len(keys))
	for i, k := range keys {
		order[i] = pq.QuoteIdentifier(k)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT * FROM `+table+` ORDER BY `+strings.Join(order, ", ")+` LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func queryRecord(ctx context.Context, db executor, table, key, id string) (model.Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT * FROM `+table+` WHERE `+pq.QuoteIdentifier(key)+` = $1 LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

func queryInsertRun(ctx context.Context, db executor, r model.BackfillRun) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO fieldship_backfill_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Entity, r.BatchSize, r.TotalRecords, r.TotalBatches, r.StartedAt,
	)
	return err
}

func queryListRuns(ctx context.Context, db executor, entity string, limit int) ([]model.BackfillRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if entity == "" {
		rows, err = db.QueryContext(ctx, `
			SELECT `+runColumns+` FROM fieldship_backfill_runs
			ORDER BY started_at DESC LIMIT $1`, limit)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT `+runColumns+` FROM fieldship_backfill_runs
			WHERE entity = $1
			ORDER BY started_at DESC LIMIT $2`, entity, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func queryInstallTrigger(ctx context.Context, db executor, table, key string) error {
	if _, err := db.ExecContext(ctx, `DROP TRIGGER IF EXISTS `+triggerName+` ON `+table); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TRIGGER %s AFTER INSERT OR UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION %s(%s)`,
		triggerName, table, triggerName, pq.QuoteLiteral(key),
	))
	return err
}

// notFound maps sql.ErrNoRows to store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
