package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/ui"
)

// errSilent makes the process exit non-zero after output was already printed.
var errSilent = errors.New("")

func printError(w io.Writer, err error) {
	if errors.Is(err, errSilent) {
		return
	}
	var cerr *model.ConfigurationError
	if errors.As(err, &cerr) {
		fmt.Fprintln(w, ui.RenderFail("Configuration error:"))
		printProblems(w, cerr)
		return
	}
	fmt.Fprintf(w, "%s %v\n", ui.RenderFail("Error:"), err)
}

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

// checkReport is the JSON shape of `fieldship check --json`.
type checkReport struct {
	OK        bool                            `json:"ok"`
	Governed  []string                        `json:"governed"`
	Gaps      []*model.ClassificationGap      `json:"gaps,omitempty"`
	Stale     []*model.StaleClassification    `json:"stale,omitempty"`
	Conflicts []*model.ClassificationConflict `json:"conflicts,omitempty"`
}

func newCheckReport(governed []string, cerr *model.ConfigurationError) checkReport {
	r := checkReport{OK: cerr == nil, Governed: governed}
	if cerr != nil {
		r.Gaps, r.Stale, r.Conflicts = cerr.Gaps, cerr.Stale, cerr.Conflicts
	}
	return r
}

func printCheckReport(w io.Writer, governed []string, cerr *model.ConfigurationError) {
	if cerr == nil {
		fmt.Fprintf(w, "%s %d governed entities, every attribute classified\n", ui.RenderPass("ok"), len(governed))
		return
	}
	fmt.Fprintln(w, ui.RenderFail("check failed"))
	printProblems(w, cerr)
}

func printProblems(w io.Writer, cerr *model.ConfigurationError) {
	for _, fe := range cerr.Settings {
		fmt.Fprintf(w, "  %s %s %s\n", ui.RenderFail("setting"), fe.Field, fe.Message)
	}
	for _, g := range cerr.Gaps {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderFail("unclassified"), g.Error())
	}
	for _, s := range cerr.Stale {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderWarn("stale"), s.Error())
	}
	for _, c := range cerr.Conflicts {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderFail("conflict"), c.Error())
	}
}

type fieldRow struct {
	Attribute      string               `json:"attribute"`
	Classification model.Classification `json:"classification"`
}

func printFieldsTable(w io.Writer, entity string, governed bool, rows []fieldRow) {
	if !governed {
		fmt.Fprintf(w, "%s %s is not governed: nothing is exported\n", ui.RenderWarn("note"), entity)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTRIBUTE\tCLASSIFICATION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.Attribute, ui.RenderClass(r.Classification))
	}
	tw.Flush()
}

func printRunSummary(w io.Writer, run model.BackfillRun, inline bool) {
	verb := "scheduled"
	if inline {
		verb = "processed"
	}
	if run.TotalBatches == 0 {
		fmt.Fprintf(w, "%s %s has no records, nothing %s\n", ui.RenderMuted(run.ID), run.Entity, verb)
		return
	}
	fmt.Fprintf(w, "%s %s: %d records in %d pages of %d %s\n",
		ui.RenderAccent(run.ID), run.Entity, run.TotalRecords, run.TotalBatches, run.BatchSize, verb)
}

func printRunsTable(w io.Writer, runs []model.BackfillRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENTITY\tRECORDS\tPAGES\tBATCH\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID,
			r.Entity,
			r.TotalRecords,
			r.TotalBatches,
			r.BatchSize,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}
