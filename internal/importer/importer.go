package importer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
	"github.com/odyssey-erp/odyssey-wms/internal/warehouseorders"
)

// LineCreator persists one order line.
type LineCreator interface {
	CreateLine(ctx context.Context, input warehouseorders.CreateLineInput) (warehouseorders.Line, error)
}

// Result reports the outcome for one surviving row.
type Result struct {
	Line     int                     `json:"line"`
	LineID   string                  `json:"line_id,omitempty"`
	Client   string                  `json:"client_code"`
	Product  string                  `json:"product_name"`
	Config   reconcile.OrderConfig   `json:"config"`
	Expected reconcile.ExpectedUnits `json:"expected"`
}

// Report summarises an import run.
type Report struct {
	DryRun  bool     `json:"dry_run"`
	Results []Result `json:"results"`
	Issues  []Issue  `json:"issues"`
}

// Importer turns spreadsheet records into order lines.
type Importer struct {
	creator LineCreator
	logger  *slog.Logger
}

// New builds an Importer. creator may be nil for dry runs only.
func New(creator LineCreator, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{creator: creator, logger: logger.With(slog.String("module", "importer"))}
}

// Run parses, dedupes and then previews or creates every surviving row. Row
// level failures are reported as issues; only context cancellation and a
// missing creator abort the run.
func (im *Importer) Run(ctx context.Context, records [][]string, dryRun bool) (Report, error) {
	if !dryRun && im.creator == nil {
		return Report{}, errors.New("importer: line creator not configured")
	}
	rows, issues, err := ParseRows(records)
	if err != nil {
		return Report{}, err
	}
	rows, dupIssues := Dedupe(rows)
	report := Report{DryRun: dryRun, Issues: append(issues, dupIssues...)}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, issue, ok := im.apply(ctx, row, dryRun)
		if !ok {
			report.Issues = append(report.Issues, issue)
			continue
		}
		report.Results = append(report.Results, result)
	}
	im.logger.Info("import finished",
		slog.Bool("dry_run", dryRun),
		slog.Int("rows", len(rows)),
		slog.Int("imported", len(report.Results)),
		slog.Int("issues", len(report.Issues)),
	)
	return report, nil
}

func (im *Importer) apply(ctx context.Context, row Row, dryRun bool) (Result, Issue, bool) {
	result := Result{Line: row.Line, Client: row.ClientCode, Product: row.ProductName, Config: row.Config}
	expected, err := reconcile.ComputeExpectedUnits(row.Config)
	if err != nil {
		return Result{}, issueFrom(row.Line, err), false
	}
	result.Expected = expected
	if dryRun {
		if err := warehouseorders.ValidateClientCode(row.ClientCode); err != nil {
			return Result{}, issueFrom(row.Line, err), false
		}
		if row.ProductName == "" {
			return Result{}, Issue{Line: row.Line, Field: ColProductName, Message: "is required"}, false
		}
		return result, Issue{}, true
	}

	line, err := im.creator.CreateLine(ctx, warehouseorders.CreateLineInput{
		ClientCode:  row.ClientCode,
		SKU:         row.SKU,
		UPC:         row.UPC,
		ASIN:        row.ASIN,
		ProductName: row.ProductName,
		Config:      row.Config,
	})
	if err != nil {
		im.logger.Warn("import row failed", slog.Int("line", row.Line), slog.Any("error", err))
		return Result{}, issueFrom(row.Line, err), false
	}
	result.LineID = line.ID
	return result, Issue{}, true
}

func issueFrom(line int, err error) Issue {
	if verr, ok := reconcile.AsValidation(err); ok {
		return Issue{Line: line, Field: verr.Field, Message: verr.Message}
	}
	return Issue{Line: line, Message: err.Error()}
}
