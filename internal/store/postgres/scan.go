package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanRecords reads every row into a column-keyed record. Byte slices
// (text, numeric, bytea and other non-native types under lib/pq) become
// strings; see model.BytesText for binary content.
func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var recs []model.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(model.Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = model.BytesText(b)
				continue
			}
			rec[col] = values[i]
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRun(row scannable) (model.BackfillRun, error) {
	var r model.BackfillRun
	err := row.Scan(&r.ID, &r.Entity, &r.BatchSize, &r.TotalRecords, &r.TotalBatches, &r.StartedAt)
	return r, notFound(err)
}

func scanRuns(rows *sql.Rows) ([]model.BackfillRun, error) {
	var runs []model.BackfillRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
