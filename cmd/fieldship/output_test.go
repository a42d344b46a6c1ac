package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/ui"
)

func init() {
	ui.SetColor(false)
}

func sampleConfigError() *model.ConfigurationError {
	return &model.ConfigurationError{
		Gaps:      []*model.ClassificationGap{{Entity: "candidates", Attribute: "phone"}},
		Stale:     []*model.StaleClassification{{List: "fields.yml", Entity: "candidates", Attribute: "fax"}},
		Conflicts: []*model.ClassificationConflict{{Entity: "candidates", Attribute: "email", Reason: "exported and blocklisted"}},
		Settings:  []model.FieldError{{Field: "FIELDSHIP_S3_BUCKET", Message: "is required"}},
	}
}

func TestPrintCheckReport(t *testing.T) {
	var ok bytes.Buffer
	printCheckReport(&ok, []string{"candidates", "schools"}, nil)
	if !strings.Contains(ok.String(), "ok 2 governed entities") {
		t.Errorf("pass output = %q", ok.String())
	}

	var failed bytes.Buffer
	printCheckReport(&failed, []string{"candidates"}, sampleConfigError())
	out := failed.String()
	for _, want := range []string{
		"check failed",
		"unclassified candidates.phone",
		"stale fields.yml names candidates.fax",
		"conflict candidates.email: exported and blocklisted",
		"setting FIELDSHIP_S3_BUCKET is required",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckReportJSON(t *testing.T) {
	var buf bytes.Buffer
	printJSON(&buf, newCheckReport([]string{"candidates"}, sampleConfigError()))

	var got struct {
		OK   bool `json:"ok"`
		Gaps []struct {
			Entity    string `json:"entity"`
			Attribute string `json:"attribute"`
		} `json:"gaps"`
		Stale []map[string]string `json:"stale"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got.OK {
		t.Error("ok should be false")
	}
	if len(got.Gaps) != 1 || got.Gaps[0].Attribute != "phone" {
		t.Errorf("gaps = %+v", got.Gaps)
	}
	if len(got.Stale) != 1 || got.Stale[0]["list"] != "fields.yml" {
		t.Errorf("stale = %+v", got.Stale)
	}

	buf.Reset()
	printJSON(&buf, newCheckReport([]string{"candidates"}, nil))
	if !strings.Contains(buf.String(), `"ok": true`) || strings.Contains(buf.String(), "gaps") {
		t.Errorf("passing report = %s", buf.String())
	}
}

func TestPrintError(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want string
	}{
		{"Silent", errSilent, ""},
		{"WrappedSilent", fmt.Errorf("check: %w", errSilent), ""},
		{"Plain", errors.New("connection refused"), "Error: connection refused\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tc.err)
			if buf.String() != tc.want {
				t.Errorf("printError = %q, want %q", buf.String(), tc.want)
			}
		})
	}

	var buf bytes.Buffer
	printError(&buf, sampleConfigError())
	if !strings.HasPrefix(buf.String(), "Configuration error:\n") || !strings.Contains(buf.String(), "candidates.phone") {
		t.Errorf("configuration error output = %q", buf.String())
	}
}

func TestPrintFieldsTable(t *testing.T) {
	rows := []fieldRow{
		{Attribute: "id", Classification: model.ClassExportPlain},
		{Attribute: "email", Classification: model.ClassExportPII},
		{Attribute: "password_digest", Classification: model.ClassBlocked},
	}

	var buf bytes.Buffer
	printFieldsTable(&buf, "candidates", true, rows)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[0], "ATTRIBUTE") || !strings.Contains(lines[2], "export_pii") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}

	buf.Reset()
	printFieldsTable(&buf, "sessions", false, nil)
	if !strings.Contains(buf.String(), "sessions is not governed") {
		t.Errorf("ungoverned note missing:\n%s", buf.String())
	}
}

func TestPrintRunSummary(t *testing.T) {
	run := model.BackfillRun{ID: "run-abc", Entity: "candidates", BatchSize: 200, TotalRecords: 450, TotalBatches: 3}

	var buf bytes.Buffer
	printRunSummary(&buf, run, false)
	if got := buf.String(); got != "run-abc candidates: 450 records in 3 pages of 200 scheduled\n" {
		t.Errorf("summary = %q", got)
	}

	buf.Reset()
	printRunSummary(&buf, model.BackfillRun{ID: "run-x", Entity: "candidates", BatchSize: 200}, true)
	if !strings.Contains(buf.String(), "has no records, nothing processed") {
		t.Errorf("empty summary = %q", buf.String())
	}
}

func TestPrintRunsTable(t *testing.T) {
	runs := []model.BackfillRun{
		{ID: "run-b", Entity: "candidates", BatchSize: 200, TotalRecords: 10, TotalBatches: 1, StartedAt: time.Now()},
		{ID: "run-a", Entity: "schools", BatchSize: 50, TotalRecords: 0, TotalBatches: 0, StartedAt: time.Now()},
	}
	var buf bytes.Buffer
	printRunsTable(&buf, runs)
	out := buf.String()
	if !strings.Contains(out, "run-b") || !strings.Contains(out, "schools") || !strings.HasSuffix(out, "2 runs\n") {
		t.Errorf("unexpected table:\n%s", out)
	}
}
