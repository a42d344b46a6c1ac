package model

import (
	"encoding/hex"
	"time"
	"unicode/utf8"
)

// Record is the attribute map of one stored row, keyed by column name.
type Record map[string]any

// BytesText returns raw column bytes as text. Valid UTF-8 is kept as is;
// anything else (binary bytea content) is rendered in PostgreSQL's hex
// output format, `\x` followed by lowercase hex digits, so no byte is lost
// when the value is JSON encoded.
func BytesText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return `\x` + hex.EncodeToString(b)
}

// BatchJob is the payload of one backfill page. Workers re-fetch the window
// [Offset, Offset+Limit) rather than carrying the records themselves.
type BatchJob struct {
	RunID        string `json:"run_id"`
	Entity       string `json:"entity"`
	BatchIndex   int    `json:"batch_index"`
	Offset       int    `json:"offset"`
	Limit        int    `json:"limit"`
	TotalBatches int    `json:"total_batches"`
}

// IsLast reports whether the job covers the final page of its run.
func (j BatchJob) IsLast() bool {
	return j.BatchIndex == j.TotalBatches-1
}

// BackfillRun is the ledger entry written when a backfill is scheduled.
type BackfillRun struct {
	ID           string    `json:"id"`
	Entity       string    `json:"entity"`
	BatchSize    int       `json:"batch_size"`
	TotalRecords int       `json:"total_records"`
	TotalBatches int       `json:"total_batches"`
	StartedAt    time.Time `json:"started_at"`
}
