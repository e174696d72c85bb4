package warehouseorders

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
)

// Line is one purchasable warehouse order line for a client product.
type Line struct {
	ID          string
	ClientCode  string
	Sequence    int64
	SKU         string
	UPC         string
	ASIN        string
	ProductName string
	Order       reconcile.Order
	Version     int64
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt time.Time
}

// Snapshot renders the reconciliation read model of the line.
func (l Line) Snapshot() reconcile.OrderSnapshot {
	return reconcile.Snapshot(l.Order)
}

// ReceivingRecord is a persisted, immutable receiving ledger entry.
type ReceivingRecord struct {
	ID           uuid.UUID `json:"id"`
	LineID       string    `json:"line_id"`
	GoodUnits    int64     `json:"received_good_units"`
	DamagedUnits int64     `json:"received_damaged_units"`
	ReceivedAt   time.Time `json:"received_at"`
	ReceivedBy   int64     `json:"received_by"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event converts the record into an engine event.
func (r ReceivingRecord) Event() reconcile.ReceivingEvent {
	return reconcile.ReceivingEvent{GoodUnits: r.GoodUnits, DamagedUnits: r.DamagedUnits, OccurredAt: r.ReceivedAt}
}

// ListFilter narrows line listings.
type ListFilter struct {
	ClientCode string
	Status     reconcile.Status
	Search     string
	Limit      int
	Offset     int
}

// UnitTotals aggregates unit counts across lines.
type UnitTotals struct {
	ExpectedSingleUnits   int64 `json:"expected_single_units"`
	ExpectedSellableUnits int64 `json:"expected_sellable_units"`
	ReceivedGoodUnits     int64 `json:"received_good_units"`
	ReceivedDamagedUnits  int64 `json:"received_damaged_units"`
	ReceivedSellableUnits int64 `json:"received_sellable_units"`
}

// Summary is the dashboard rollup for one client or the whole warehouse.
type Summary struct {
	ClientCode string                     `json:"client_code,omitempty"`
	ByStatus   map[reconcile.Status]int64 `json:"by_status"`
	Units      UnitTotals                 `json:"units"`
}

// RepairResult reports the outcome of replaying a line's ledger.
type RepairResult struct {
	LineID  string                  `json:"line_id"`
	Events  int                     `json:"events"`
	Drifted bool                    `json:"drifted"`
	Before  reconcile.OrderSnapshot `json:"before"`
	After   reconcile.OrderSnapshot `json:"after"`
}

// SweepReport summarises a drift sweep.
type SweepReport struct {
	Checked  int      `json:"checked"`
	Repaired []string `json:"repaired"`
}

var (
	// ErrNotFound indicates the line does not exist.
	ErrNotFound = errors.New("warehouseorders: not found")
	// ErrInvalidState occurs when an action violates the line lifecycle.
	ErrInvalidState = errors.New("warehouseorders: invalid state transition")
	// ErrConflict indicates a concurrent write won the version check.
	ErrConflict = errors.New("warehouseorders: concurrent update")
	// ErrDuplicateSubmission indicates the idempotency key was already used.
	ErrDuplicateSubmission = errors.New("warehouseorders: receiving already recorded")
	// ErrSequenceExhausted indicates the client ran out of 7-digit line numbers.
	ErrSequenceExhausted = errors.New("warehouseorders: line sequence exhausted")
)
