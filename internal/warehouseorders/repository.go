package warehouseorders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Repository persists order lines and the receiving ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations that must share one transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, clientCode string) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	GetLineForUpdate(ctx context.Context, id string) (Line, error)
	UpdateLine(ctx context.Context, line Line) (Line, error)
	InsertEvent(ctx context.Context, rec ReceivingRecord) error
	ListEvents(ctx context.Context, lineID string) ([]ReceivingRecord, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn inside a read-committed transaction. Writers on the same line
// are serialized by the row lock taken in GetLineForUpdate.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("warehouseorders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const lineColumns = `id, client_code, sequence, sku, upc, asin, product_name,
purchase_bundle_count, selling_bundle_count, purchase_order_quantity,
expected_single_units, expected_sellable_units,
received_good_units, received_damaged_units, received_sellable_units,
status, cancelled, first_received_at, last_received_at,
version, created_by, created_at, updated_at, cancelled_at`

func scanLine(row pgx.Row) (Line, error) {
	var (
		line                     Line
		status                   string
		first, last, cancelledAt *time.Time
	)
	err := row.Scan(
		&line.ID, &line.ClientCode, &line.Sequence, &line.SKU, &line.UPC, &line.ASIN, &line.ProductName,
		&line.Order.Config.PurchaseBundleCount, &line.Order.Config.SellingBundleCount, &line.Order.Config.PurchaseOrderQuantity,
		&line.Order.ExpectedSingleUnits, &line.Order.ExpectedSellableUnits,
		&line.Order.ReceivedGoodUnits, &line.Order.ReceivedDamagedUnits, &line.Order.ReceivedSellableUnits,
		&status, &line.Order.Cancelled, &first, &last,
		&line.Version, &line.CreatedBy, &line.CreatedAt, &line.UpdatedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, ErrNotFound
		}
		return Line{}, err
	}
	line.Order.Status = reconcile.Status(status)
	line.Order.FirstReceivedAt = derefTime(first)
	line.Order.LastReceivedAt = derefTime(last)
	line.CancelledAt = derefTime(cancelledAt)
	return line, nil
}

// GetLine loads a single line.
func (r *Repository) GetLine(ctx context.Context, id string) (Line, error) {
	return scanLine(r.pool.QueryRow(ctx, `SELECT `+lineColumns+` FROM warehouse_order_lines WHERE id=$1`, id))
}

// ListLines returns a page of lines matching filter and the total match count.
func (r *Repository) ListLines(ctx context.Context, filter ListFilter) ([]Line, int, error) {
	where, args := buildLineFilter(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouse_order_lines`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := shared.NormalizeLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	sql := fmt.Sprintf(`SELECT %s FROM warehouse_order_lines%s ORDER BY client_code ASC, sequence DESC LIMIT $%d OFFSET $%d`,
		lineColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, 0, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return lines, total, nil
}

func buildLineFilter(filter ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.ClientCode != "" {
		args = append(args, filter.ClientCode)
		clauses = append(clauses, fmt.Sprintf("client_code=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+strings.ToLower(term)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(LOWER(product_name) LIKE $%d OR LOWER(sku) LIKE $%d OR LOWER(upc) LIKE $%d OR LOWER(asin) LIKE $%d OR LOWER(id) LIKE $%d)", n, n, n, n, n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListEvents returns the receiving ledger of a line in insertion order.
func (r *Repository) ListEvents(ctx context.Context, lineID string) ([]ReceivingRecord, error) {
	return listEvents(ctx, r.pool, lineID)
}

// CountByStatus counts lines per status, optionally scoped to one client.
func (r *Repository) CountByStatus(ctx context.Context, clientCode string) (map[reconcile.Status]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM warehouse_order_lines
WHERE ($1 = '' OR client_code = $1)
GROUP BY status`, clientCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[reconcile.Status]int64{}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[reconcile.Status(status)] = n
	}
	return counts, rows.Err()
}

// SumUnits totals expected and received units, optionally scoped to one client.
// Cancelled lines are excluded.
func (r *Repository) SumUnits(ctx context.Context, clientCode string) (UnitTotals, error) {
	var totals UnitTotals
	err := r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(expected_single_units), 0), COALESCE(SUM(expected_sellable_units), 0),
COALESCE(SUM(received_good_units), 0), COALESCE(SUM(received_damaged_units), 0),
COALESCE(SUM(received_sellable_units), 0)
FROM warehouse_order_lines
WHERE NOT cancelled AND ($1 = '' OR client_code = $1)`, clientCode).Scan(
		&totals.ExpectedSingleUnits, &totals.ExpectedSellableUnits,
		&totals.ReceivedGoodUnits, &totals.ReceivedDamagedUnits, &totals.ReceivedSellableUnits,
	)
	return totals, err
}

// ListLineIDsAfter pages line ids in key order for sweeps.
func (r *Repository) ListLineIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM warehouse_order_lines WHERE id > $1 ORDER BY id ASC LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepository) NextSequence(ctx context.Context, clientCode string) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_client_sequences (client_code, last_value) VALUES ($1, 1)
ON CONFLICT (client_code) DO UPDATE SET last_value = warehouse_client_sequences.last_value + 1
RETURNING last_value`, clientCode).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) error {
	o := line.Order
	_, err := r.tx.Exec(ctx, `INSERT INTO warehouse_order_lines (`+lineColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		line.ID, line.ClientCode, line.Sequence, line.SKU, line.UPC, line.ASIN, line.ProductName,
		o.Config.PurchaseBundleCount, o.Config.SellingBundleCount, o.Config.PurchaseOrderQuantity,
		o.ExpectedSingleUnits, o.ExpectedSellableUnits,
		o.ReceivedGoodUnits, o.ReceivedDamagedUnits, o.ReceivedSellableUnits,
		string(o.Status), o.Cancelled, nullTime(o.FirstReceivedAt), nullTime(o.LastReceivedAt),
		line.Version, line.CreatedBy, line.CreatedAt, line.UpdatedAt, nullTime(line.CancelledAt),
	)
	if shared.IsUniqueViolation(err) {
		return fmt.Errorf("%w: line %s already exists", ErrConflict, line.ID)
	}
	return err
}

func (r *txRepository) GetLineForUpdate(ctx context.Context, id string) (Line, error) {
	return scanLine(r.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM warehouse_order_lines WHERE id=$1 FOR UPDATE`, id))
}

// UpdateLine writes configuration, accumulators and status. The stored version
// must still equal line.Version; the returned line carries the bumped version.
func (r *txRepository) UpdateLine(ctx context.Context, line Line) (Line, error) {
	o := line.Order
	tag, err := r.tx.Exec(ctx, `UPDATE warehouse_order_lines SET
purchase_bundle_count=$2, selling_bundle_count=$3, purchase_order_quantity=$4,
expected_single_units=$5, expected_sellable_units=$6,
received_good_units=$7, received_damaged_units=$8, received_sellable_units=$9,
status=$10, cancelled=$11, first_received_at=$12, last_received_at=$13,
cancelled_at=$14, updated_at=$15, version=version+1
WHERE id=$1 AND version=$16`,
		line.ID,
		o.Config.PurchaseBundleCount, o.Config.SellingBundleCount, o.Config.PurchaseOrderQuantity,
		o.ExpectedSingleUnits, o.ExpectedSellableUnits,
		o.ReceivedGoodUnits, o.ReceivedDamagedUnits, o.ReceivedSellableUnits,
		string(o.Status), o.Cancelled, nullTime(o.FirstReceivedAt), nullTime(o.LastReceivedAt),
		nullTime(line.CancelledAt), line.UpdatedAt, line.Version,
	)
	if err != nil {
		return Line{}, err
	}
	if tag.RowsAffected() == 0 {
		return Line{}, fmt.Errorf("%w: line %s version %d", ErrConflict, line.ID, line.Version)
	}
	line.Version++
	return line, nil
}

func (r *txRepository) InsertEvent(ctx context.Context, rec ReceivingRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO warehouse_receiving_events
(id, line_id, good_units, damaged_units, received_at, received_by, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.LineID, rec.GoodUnits, rec.DamagedUnits, rec.ReceivedAt, rec.ReceivedBy, rec.Note, rec.CreatedAt)
	if shared.IsUniqueViolation(err) {
		return ErrDuplicateSubmission
	}
	return err
}

func (r *txRepository) ListEvents(ctx context.Context, lineID string) ([]ReceivingRecord, error) {
	return listEvents(ctx, r.tx, lineID)
}

type rowsQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listEvents(ctx context.Context, q rowsQueryer, lineID string) ([]ReceivingRecord, error) {
	rows, err := q.Query(ctx, `SELECT id, line_id, good_units, damaged_units, received_at, received_by, note, created_at
FROM warehouse_receiving_events
WHERE line_id=$1
ORDER BY seq ASC`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []ReceivingRecord{}
	for rows.Next() {
		var rec ReceivingRecord
		if err := rows.Scan(&rec.ID, &rec.LineID, &rec.GoodUnits, &rec.DamagedUnits, &rec.ReceivedAt, &rec.ReceivedBy, &rec.Note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
