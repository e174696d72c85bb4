package warehouseorders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-wms/internal/audit"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

const (
	idempotencyModule = "warehouse.receiving"
	defaultSweepBatch = 100
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLine(ctx context.Context, id string) (Line, error)
	ListLines(ctx context.Context, filter ListFilter) ([]Line, int, error)
	ListEvents(ctx context.Context, lineID string) ([]ReceivingRecord, error)
	CountByStatus(ctx context.Context, clientCode string) (map[reconcile.Status]int64, error)
	SumUnits(ctx context.Context, clientCode string) (UnitTotals, error)
	ListLineIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards receiving submissions against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort receives domain counters.
type MetricsPort interface {
	RecordLineCreated()
	RecordReceiving(status string, good, damaged int64)
	RecordRepair(drifted bool)
}

// ServiceDeps groups optional collaborators. Nil members are skipped.
type ServiceDeps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Cache       *cache.Cache
	Metrics     MetricsPort
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service coordinates warehouse order lines and their receiving ledger.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       *cache.Cache
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      logger.With(slog.String("module", "warehouseorders")),
		now:         now,
	}
}

// CreateLineInput carries a new line's product identity and bundle configuration.
type CreateLineInput struct {
	ClientCode  string
	SKU         string
	UPC         string
	ASIN        string
	ProductName string
	Config      reconcile.OrderConfig
}

// ReceiveInput is one receiving submission from the dock.
type ReceiveInput struct {
	GoodUnits      int64
	DamagedUnits   int64
	ReceivedAt     time.Time
	Note           string
	IdempotencyKey string
}

// PreviewExpectedUnits computes expected units without persisting anything.
func (s *Service) PreviewExpectedUnits(cfg reconcile.OrderConfig) (reconcile.ExpectedUnits, error) {
	return reconcile.ComputeExpectedUnits(cfg)
}

// CreateLine allocates a line id and persists the line in the awaiting state.
func (s *Service) CreateLine(ctx context.Context, input CreateLineInput) (Line, error) {
	code := NormalizeClientCode(input.ClientCode)
	principal, hasPrincipal := shared.PrincipalFromContext(ctx)
	if hasPrincipal && principal.IsClient() {
		if code == "" {
			code = NormalizeClientCode(principal.ClientCode)
		}
		if code != NormalizeClientCode(principal.ClientCode) {
			return Line{}, fmt.Errorf("%w: client %s cannot order for %s", shared.ErrForbidden, principal.ClientCode, code)
		}
	}
	if err := ValidateClientCode(code); err != nil {
		return Line{}, err
	}
	name := strings.TrimSpace(input.ProductName)
	if name == "" {
		return Line{}, reconcile.ValidationError{Field: "product_name", Message: "is required"}
	}
	sku, upc, asin := strings.TrimSpace(input.SKU), strings.TrimSpace(input.UPC), strings.TrimSpace(input.ASIN)
	if err := ValidateProductCodes(sku, upc, asin); err != nil {
		return Line{}, err
	}
	order, err := reconcile.NewOrder(input.Config)
	if err != nil {
		return Line{}, err
	}

	now := s.now()
	line := Line{
		ClientCode:  code,
		SKU:         sku,
		UPC:         upc,
		ASIN:        asin,
		ProductName: name,
		Order:       order,
		Version:     1,
		CreatedBy:   principal.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, code)
		if err != nil {
			return err
		}
		id, err := FormatLineID(code, seq)
		if err != nil {
			return err
		}
		line.ID = id
		line.Sequence = seq
		return tx.InsertLine(ctx, line)
	})
	if err != nil {
		return Line{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordLineCreated()
	}
	s.invalidateSummaries(ctx)
	s.recordAudit(ctx, "LINE_CREATE", line.ID, map[string]any{
		"client_code":             line.ClientCode,
		"purchase_bundle_count":   order.Config.PurchaseBundleCount,
		"selling_bundle_count":    order.Config.SellingBundleCount,
		"purchase_order_quantity": order.Config.PurchaseOrderQuantity,
		"expected_single_units":   order.ExpectedSingleUnits,
	})
	return line, nil
}

// UpdateConfig replaces the bundle configuration while nothing has been received.
func (s *Service) UpdateConfig(ctx context.Context, lineID string, cfg reconcile.OrderConfig) (Line, error) {
	if _, err := reconcile.ComputeExpectedUnits(cfg); err != nil {
		return Line{}, err
	}
	var updated Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := s.lockLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if line.Order.Cancelled {
			return fmt.Errorf("%w: line %s is cancelled", ErrInvalidState, lineID)
		}
		if line.Order.HasReceipts() {
			return fmt.Errorf("%w: line %s already has receipts", ErrInvalidState, lineID)
		}
		line.Order, err = reconcile.Reconfigure(line.Order, cfg)
		if err != nil {
			return err
		}
		line.UpdatedAt = s.now()
		updated, err = tx.UpdateLine(ctx, line)
		return err
	})
	if err != nil {
		return Line{}, err
	}
	s.invalidateLine(ctx, lineID)
	s.recordAudit(ctx, "LINE_CONFIG_UPDATE", lineID, map[string]any{
		"purchase_bundle_count":   cfg.PurchaseBundleCount,
		"selling_bundle_count":    cfg.SellingBundleCount,
		"purchase_order_quantity": cfg.PurchaseOrderQuantity,
	})
	return updated, nil
}

// RecordReceiving appends one receiving event to the ledger and folds it into
// the line snapshot in the same transaction.
func (s *Service) RecordReceiving(ctx context.Context, lineID string, input ReceiveInput) (Line, ReceivingRecord, error) {
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	evt := reconcile.ReceivingEvent{GoodUnits: input.GoodUnits, DamagedUnits: input.DamagedUnits, OccurredAt: receivedAt.UTC()}
	if err := reconcile.ValidateEvent(evt); err != nil {
		return Line{}, ReceivingRecord{}, err
	}

	principal, _ := shared.PrincipalFromContext(ctx)
	rec := ReceivingRecord{
		ID:           uuid.New(),
		LineID:       lineID,
		GoodUnits:    evt.GoodUnits,
		DamagedUnits: evt.DamagedUnits,
		ReceivedAt:   evt.OccurredAt,
		ReceivedBy:   principal.ActorID,
		Note:         strings.TrimSpace(input.Note),
		CreatedAt:    s.now(),
	}

	var idemKey string
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		idemKey = "RCV:" + lineID + ":" + key
		rec.ID = uuid.NewSHA1(uuid.Nil, []byte(idemKey))
		if s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					return Line{}, ReceivingRecord{}, ErrDuplicateSubmission
				}
				return Line{}, ReceivingRecord{}, err
			}
		}
	}

	var (
		updated Line
		before  reconcile.Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := s.lockLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if line.Order.Cancelled {
			return fmt.Errorf("%w: line %s is cancelled", ErrInvalidState, lineID)
		}
		before = line.Order.Status
		line.Order, err = reconcile.ApplyReceivingEvent(line.Order, evt)
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, rec); err != nil {
			return err
		}
		line.UpdatedAt = s.now()
		updated, err = tx.UpdateLine(ctx, line)
		return err
	})
	if err != nil {
		if idemKey != "" && s.idempotency != nil && !errors.Is(err, ErrDuplicateSubmission) {
			if delErr := s.idempotency.Delete(ctx, idemKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("line_id", lineID), slog.Any("error", delErr))
			}
		}
		return Line{}, ReceivingRecord{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordReceiving(string(updated.Order.Status), rec.GoodUnits, rec.DamagedUnits)
	}
	s.invalidateLine(ctx, lineID)
	s.logger.Info("receiving recorded",
		slog.String("line_id", lineID),
		slog.Int64("good", rec.GoodUnits),
		slog.Int64("damaged", rec.DamagedUnits),
		slog.String("status_before", string(before)),
		slog.String("status", string(updated.Order.Status)),
	)
	s.recordAudit(ctx, "RECEIVING_RECORD", lineID, map[string]any{
		"event_id":      rec.ID.String(),
		"good_units":    rec.GoodUnits,
		"damaged_units": rec.DamagedUnits,
		"status":        updated.Order.Status,
	})
	return updated, rec, nil
}

// CancelLine cancels a line on which no good units were received.
func (s *Service) CancelLine(ctx context.Context, lineID string) (Line, error) {
	var updated Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := s.lockLine(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if line.Order.Cancelled {
			return fmt.Errorf("%w: line %s is already cancelled", ErrInvalidState, lineID)
		}
		if line.Order.ReceivedGoodUnits > 0 {
			return fmt.Errorf("%w: line %s has %d good units received", ErrInvalidState, lineID, line.Order.ReceivedGoodUnits)
		}
		line.Order = reconcile.Cancel(line.Order)
		line.CancelledAt = s.now()
		line.UpdatedAt = line.CancelledAt
		updated, err = tx.UpdateLine(ctx, line)
		return err
	})
	if err != nil {
		return Line{}, err
	}
	s.invalidateLine(ctx, lineID)
	s.recordAudit(ctx, "LINE_CANCEL", lineID, nil)
	return updated, nil
}

// GetLine returns a line through the snapshot cache.
func (s *Service) GetLine(ctx context.Context, lineID string) (Line, error) {
	if _, _, err := ParseLineID(lineID); err != nil {
		return Line{}, err
	}
	var line Line
	err := s.cache.FetchEntryJSON(ctx, &line, func(ctx context.Context) (any, error) {
		return s.repo.GetLine(ctx, lineID)
	}, "line", lineID)
	if err != nil {
		return Line{}, err
	}
	if err := authorizeLine(ctx, line); err != nil {
		return Line{}, err
	}
	return line, nil
}

// ListLines returns a page of lines. Client principals only see their own.
func (s *Service) ListLines(ctx context.Context, filter ListFilter) ([]Line, shared.Pagination, error) {
	filter.ClientCode = NormalizeClientCode(filter.ClientCode)
	if p, ok := shared.PrincipalFromContext(ctx); ok && p.IsClient() {
		filter.ClientCode = NormalizeClientCode(p.ClientCode)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, reconcile.ValidationError{Field: "status", Message: "unknown status"}
	}
	filter.Limit = shared.NormalizeLimit(filter.Limit)
	lines, total, err := s.repo.ListLines(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return lines, shared.NewPagination(filter.Limit, filter.Offset, total), nil
}

// ListEvents returns the receiving ledger of a line.
func (s *Service) ListEvents(ctx context.Context, lineID string) ([]ReceivingRecord, error) {
	if _, err := s.GetLine(ctx, lineID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, lineID)
}

// Progress returns the good/damaged progress bar segments of a line.
func (s *Service) Progress(ctx context.Context, lineID string) (reconcile.Progress, error) {
	line, err := s.GetLine(ctx, lineID)
	if err != nil {
		return reconcile.Progress{}, err
	}
	return reconcile.ProgressFraction(line.Order), nil
}

// Summary rolls up status counts and unit totals for a client, or the whole
// warehouse when clientCode is empty.
func (s *Service) Summary(ctx context.Context, clientCode string) (Summary, error) {
	code := NormalizeClientCode(clientCode)
	if p, ok := shared.PrincipalFromContext(ctx); ok && p.IsClient() {
		code = NormalizeClientCode(p.ClientCode)
	}
	scope := code
	if scope == "" {
		scope = "all"
	}
	key, err := s.cache.VersionedKey(ctx, "summary", scope)
	if err != nil {
		s.logger.Warn("summary cache version", slog.Any("error", err))
		return s.loadSummary(ctx, code)
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.loadSummary(ctx, code)
	})
	return summary, err
}

func (s *Service) loadSummary(ctx context.Context, code string) (Summary, error) {
	summary := Summary{ClientCode: code}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.CountByStatus(gctx, code)
		if err != nil {
			return fmt.Errorf("count by status: %w", err)
		}
		summary.ByStatus = counts
		return nil
	})
	g.Go(func() error {
		totals, err := s.repo.SumUnits(gctx, code)
		if err != nil {
			return fmt.Errorf("sum units: %w", err)
		}
		summary.Units = totals
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// RepairLine replays the ledger of a line and rewrites the accumulators when
// they disagree with the replay.
func (s *Service) RepairLine(ctx context.Context, lineID string) (RepairResult, error) {
	result := RepairResult{LineID: lineID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		records, err := tx.ListEvents(ctx, lineID)
		if err != nil {
			return err
		}
		events := make([]reconcile.ReceivingEvent, 0, len(records))
		for _, rec := range records {
			events = append(events, rec.Event())
		}
		rebuilt, err := reconcile.Rebuild(line.Order.Config, line.Order.Cancelled, events)
		if err != nil {
			return fmt.Errorf("rebuild %s: %w", lineID, err)
		}
		result.Events = len(records)
		result.Before = line.Snapshot()
		result.After = reconcile.Snapshot(rebuilt)
		if !drifted(line.Order, rebuilt) {
			return nil
		}
		result.Drifted = true
		line.Order = rebuilt
		line.UpdatedAt = s.now()
		_, err = tx.UpdateLine(ctx, line)
		return err
	})
	if err != nil {
		return RepairResult{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordRepair(result.Drifted)
	}
	if result.Drifted {
		s.invalidateLine(ctx, lineID)
		s.logger.Warn("line accumulators drifted from ledger",
			slog.String("line_id", lineID),
			slog.Int64("good_before", result.Before.ReceivedGoodUnits),
			slog.Int64("good_after", result.After.ReceivedGoodUnits),
			slog.Int64("damaged_before", result.Before.ReceivedDamagedUnits),
			slog.Int64("damaged_after", result.After.ReceivedDamagedUnits),
		)
		s.recordAudit(ctx, "LINE_REPAIR", lineID, map[string]any{"events": result.Events, "before": result.Before, "after": result.After})
	}
	return result, nil
}

// SweepDrift repairs every line, paging through ids in batches.
func (s *Service) SweepDrift(ctx context.Context, batch int) (SweepReport, error) {
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	report := SweepReport{Repaired: []string{}}
	after := ""
	for {
		ids, err := s.repo.ListLineIDsAfter(ctx, after, batch)
		if err != nil {
			return report, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			res, err := s.RepairLine(ctx, id)
			if err != nil {
				return report, fmt.Errorf("repair %s: %w", id, err)
			}
			report.Checked++
			if res.Drifted {
				report.Repaired = append(report.Repaired, id)
			}
		}
		if len(ids) < batch {
			return report, nil
		}
		after = ids[len(ids)-1]
	}
}

func (s *Service) lockLine(ctx context.Context, tx TxRepository, lineID string) (Line, error) {
	if _, _, err := ParseLineID(lineID); err != nil {
		return Line{}, err
	}
	line, err := tx.GetLineForUpdate(ctx, lineID)
	if err != nil {
		return Line{}, err
	}
	if err := authorizeLine(ctx, line); err != nil {
		return Line{}, err
	}
	return line, nil
}

// authorizeLine hides lines of other clients from client principals.
func authorizeLine(ctx context.Context, line Line) error {
	p, ok := shared.PrincipalFromContext(ctx)
	if !ok || !p.IsClient() {
		return nil
	}
	if NormalizeClientCode(p.ClientCode) != line.ClientCode {
		return fmt.Errorf("%w: line %s", ErrNotFound, line.ID)
	}
	return nil
}

func drifted(stored, rebuilt reconcile.Order) bool {
	return stored.ReceivedGoodUnits != rebuilt.ReceivedGoodUnits ||
		stored.ReceivedDamagedUnits != rebuilt.ReceivedDamagedUnits ||
		stored.ReceivedSellableUnits != rebuilt.ReceivedSellableUnits ||
		stored.ExpectedSingleUnits != rebuilt.ExpectedSingleUnits ||
		stored.ExpectedSellableUnits != rebuilt.ExpectedSellableUnits ||
		stored.Status != rebuilt.Status ||
		!stored.FirstReceivedAt.Equal(rebuilt.FirstReceivedAt) ||
		!stored.LastReceivedAt.Equal(rebuilt.LastReceivedAt)
}

func (s *Service) invalidateLine(ctx context.Context, lineID string) {
	if err := s.cache.BumpEntry(ctx, "line", lineID); err != nil {
		s.logger.Warn("invalidate line cache", slog.String("line_id", lineID), slog.Any("error", err))
	}
	s.invalidateSummaries(ctx)
}

func (s *Service) invalidateSummaries(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump summary cache", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, lineID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: audit.EntityLine, EntityID: lineID, Meta: meta, At: s.now()}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.String("line_id", lineID), slog.Any("error", err))
	}
}
