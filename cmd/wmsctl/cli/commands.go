// Package cli implements the wmsctl operator commands. Each command writes to
// the supplied streams and returns a process exit code.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/importer"
	"github.com/odyssey-erp/odyssey-wms/internal/warehouseorders"
)

// Exit codes shared by every command.
const (
	ExitOK     = 0
	ExitFailed = 1
	// ExitAttention signals a successful run whose output needs review, such
	// as skipped import rows or repaired drift.
	ExitAttention = 10
)

// Output collects the streams and rendering mode of a command.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *Output) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

func (o Output) fail(cmd string, format string, args ...any) int {
	_, _ = fmt.Fprintf(o.Stderr, cmd+": "+format+"\n", args...)
	return ExitFailed
}

func (o Output) encode(cmd string, v any) int {
	enc := json.NewEncoder(o.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return o.fail(cmd, "encode json: %v", err)
	}
	return ExitOK
}

// ImportOptions defines the flags of the import command.
type ImportOptions struct {
	Output
	Path   string
	DryRun bool
}

// ImportCommand reads a spreadsheet and creates one line per surviving row.
func ImportCommand(ctx context.Context, im *importer.Importer, opts ImportOptions) int {
	opts.defaults()
	if strings.TrimSpace(opts.Path) == "" {
		return opts.fail("import", "-file is required")
	}
	records, err := importer.ReadFile(opts.Path)
	if err != nil {
		return opts.fail("import", "%v", err)
	}
	report, err := im.Run(ctx, records, opts.DryRun)
	if err != nil {
		return opts.fail("import", "%v", err)
	}
	if opts.JSONOutput {
		if code := opts.encode("import", report); code != ExitOK {
			return code
		}
	} else {
		renderImport(opts.Stdout, report)
	}
	if len(report.Issues) > 0 {
		return ExitAttention
	}
	return ExitOK
}

func renderImport(out io.Writer, report importer.Report) {
	verb := "Imported"
	if report.DryRun {
		verb = "Would import"
	}
	_, _ = fmt.Fprintf(out, "%s %d line(s)\n", verb, len(report.Results))
	for _, r := range report.Results {
		id := r.LineID
		if id == "" {
			id = "-"
		}
		_, _ = fmt.Fprintf(out, " row %-4d %-14s %-8s %s: %d single / %d sellable\n",
			r.Line, id, r.Client, r.Product, r.Expected.ExpectedSingleUnits, r.Expected.ExpectedSellableUnits)
	}
	if len(report.Issues) > 0 {
		_, _ = fmt.Fprintf(out, "%d issue(s):\n", len(report.Issues))
		for _, is := range report.Issues {
			_, _ = fmt.Fprintf(out, " - %s\n", is)
		}
	}
}

// LineRepairer replays the ledger of one line.
type LineRepairer interface {
	RepairLine(ctx context.Context, lineID string) (warehouseorders.RepairResult, error)
}

// RepairOptions defines the flags of the repair command.
type RepairOptions struct {
	Output
	LineID string
}

// RepairCommand rebuilds one line from its ledger and reports any drift.
func RepairCommand(ctx context.Context, repairer LineRepairer, opts RepairOptions) int {
	opts.defaults()
	lineID := strings.TrimSpace(opts.LineID)
	if lineID == "" {
		return opts.fail("repair", "-line is required")
	}
	result, err := repairer.RepairLine(ctx, lineID)
	if err != nil {
		return opts.fail("repair", "%v", err)
	}
	if opts.JSONOutput {
		if code := opts.encode("repair", result); code != ExitOK {
			return code
		}
	} else if result.Drifted {
		_, _ = fmt.Fprintf(opts.Stdout, "%s: drift repaired after replaying %d event(s)\n", result.LineID, result.Events)
		_, _ = fmt.Fprintf(opts.Stdout, "  before: good=%d damaged=%d status=%s\n", result.Before.ReceivedGoodUnits, result.Before.ReceivedDamagedUnits, result.Before.Status)
		_, _ = fmt.Fprintf(opts.Stdout, "  after:  good=%d damaged=%d status=%s\n", result.After.ReceivedGoodUnits, result.After.ReceivedDamagedUnits, result.After.Status)
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%s: consistent with %d event(s)\n", result.LineID, result.Events)
	}
	if result.Drifted {
		return ExitAttention
	}
	return ExitOK
}

// DriftSweeper replays every line.
type DriftSweeper interface {
	SweepDrift(ctx context.Context, batch int) (warehouseorders.SweepReport, error)
}

// SweepOptions defines the flags of the sweep command.
type SweepOptions struct {
	Output
	Batch int
}

// SweepCommand replays every line in batches and lists the repaired ones.
func SweepCommand(ctx context.Context, sweeper DriftSweeper, opts SweepOptions) int {
	opts.defaults()
	report, err := sweeper.SweepDrift(ctx, opts.Batch)
	if err != nil {
		return opts.fail("sweep", "%v (checked %d line(s) before failing)", err, report.Checked)
	}
	if opts.JSONOutput {
		if code := opts.encode("sweep", report); code != ExitOK {
			return code
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "Checked %d line(s), repaired %d\n", report.Checked, len(report.Repaired))
		for _, id := range report.Repaired {
			_, _ = fmt.Fprintf(opts.Stdout, " - %s\n", id)
		}
	}
	if len(report.Repaired) > 0 {
		return ExitAttention
	}
	return ExitOK
}

// EnqueueOptions defines the flags of repair and sweep when run through the queue.
type EnqueueOptions struct {
	Output
	LineID string
	Batch  int
}

// EnqueueRepairCommand hands a line repair to the worker.
func EnqueueRepairCommand(ctx context.Context, c *JobsCLI, opts EnqueueOptions) int {
	opts.defaults()
	if strings.TrimSpace(opts.LineID) == "" {
		return opts.fail("repair", "-line is required")
	}
	info, err := c.Repair(ctx, strings.TrimSpace(opts.LineID))
	if err != nil {
		return opts.fail("repair", "enqueue: %v", err)
	}
	if info == nil {
		_, _ = fmt.Fprintf(opts.Stdout, "repair of %s already queued\n", opts.LineID)
		return ExitOK
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return ExitOK
}

// EnqueueSweepCommand hands a drift sweep to the worker.
func EnqueueSweepCommand(ctx context.Context, c *JobsCLI, opts EnqueueOptions) int {
	opts.defaults()
	info, err := c.Sweep(ctx, opts.Batch)
	if err != nil {
		return opts.fail("sweep", "enqueue: %v", err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return ExitOK
}

// QueueOptions defines the flags of the queue command.
type QueueOptions struct {
	Output
	Scheduled int
}

// QueueCommand prints queue depths and, optionally, upcoming scheduled tasks.
func QueueCommand(ctx context.Context, c *JobsCLI, opts QueueOptions) int {
	opts.defaults()
	stats, err := c.InspectQueues(ctx)
	if err != nil {
		return opts.fail("queue", "%v", err)
	}
	type scheduled struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		NextRunAt string `json:"next_run_at"`
	}
	var upcoming []scheduled
	if opts.Scheduled > 0 {
		tasks, err := c.ListScheduled(ctx, opts.Scheduled)
		if err != nil {
			return opts.fail("queue", "list scheduled: %v", err)
		}
		for _, t := range tasks {
			upcoming = append(upcoming, scheduled{ID: t.ID, Type: t.Type, NextRunAt: t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z")})
		}
	}
	if opts.JSONOutput {
		return opts.encode("queue", map[string]any{"queues": stats, "scheduled": upcoming})
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%-12s %8s %8s %9s %6s %7s\n", "QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "FAILED")
	for _, s := range stats {
		_, _ = fmt.Fprintf(opts.Stdout, "%-12s %8d %8d %9d %6d %7d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Failed)
	}
	for _, u := range upcoming {
		_, _ = fmt.Fprintf(opts.Stdout, "next: %s %s at %s\n", u.Type, u.ID, u.NextRunAt)
	}
	return ExitOK
}

// SchemaMigrator applies schema migrations.
type SchemaMigrator interface {
	Up() error
	Down(n int) error
	Version() (uint, bool, error)
}

// MigrateOptions defines the flags of the migrate command.
type MigrateOptions struct {
	Output
	Down int
}

// MigrateCommand applies pending migrations, or rolls back Down steps, and
// prints the resulting schema version.
func MigrateCommand(m SchemaMigrator, opts MigrateOptions) int {
	opts.defaults()
	var err error
	if opts.Down > 0 {
		err = m.Down(opts.Down)
	} else {
		err = m.Up()
	}
	if err != nil {
		return opts.fail("migrate", "%v", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return opts.fail("migrate", "read version: %v", err)
	}
	if opts.JSONOutput {
		return opts.encode("migrate", map[string]any{"version": version, "dirty": dirty})
	}
	_, _ = fmt.Fprintf(opts.Stdout, "schema at version %d\n", version)
	if dirty {
		_, _ = fmt.Fprintln(opts.Stderr, "migrate: schema is dirty, fix the failed migration and force the version")
		return ExitAttention
	}
	return ExitOK
}
