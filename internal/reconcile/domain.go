package reconcile

import "time"

// Status is the derived receiving status of an order line.
type Status string

const (
	StatusAwaiting   Status = "awaiting"
	StatusPartial    Status = "partial"
	StatusComplete   Status = "complete"
	StatusExtraUnits Status = "extra_units"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAwaiting, StatusPartial, StatusComplete, StatusExtraUnits, StatusCancelled:
		return true
	}
	return false
}

// OrderConfig is the bundle configuration set by the ordering party.
type OrderConfig struct {
	PurchaseBundleCount   int64 `json:"purchase_bundle_count"`
	SellingBundleCount    int64 `json:"selling_bundle_count"`
	PurchaseOrderQuantity int64 `json:"purchase_order_quantity"`
}

// ExpectedUnits holds the quantities derived from an OrderConfig.
type ExpectedUnits struct {
	ExpectedSingleUnits   int64 `json:"expected_single_units"`
	ExpectedSellableUnits int64 `json:"expected_sellable_units"`
}

// ReceivingEvent is one incremental delivery against a line.
type ReceivingEvent struct {
	GoodUnits    int64
	DamagedUnits int64
	OccurredAt   time.Time
}

// Order is the reconciliation state of a single warehouse order line.
type Order struct {
	Config                OrderConfig
	ExpectedSingleUnits   int64
	ExpectedSellableUnits int64
	ReceivedGoodUnits     int64
	ReceivedDamagedUnits  int64
	ReceivedSellableUnits int64
	Cancelled             bool
	Status                Status
	FirstReceivedAt       time.Time
	LastReceivedAt        time.Time
}

// ReceivedUnits is the sum of good and damaged units received so far.
func (o Order) ReceivedUnits() int64 {
	return o.ReceivedGoodUnits + o.ReceivedDamagedUnits
}

// HasReceipts reports whether any event was folded into the order.
func (o Order) HasReceipts() bool {
	return o.ReceivedUnits() > 0 || !o.FirstReceivedAt.IsZero()
}

// OrderSnapshot is the read model rendered by dashboards.
type OrderSnapshot struct {
	ExpectedSingleUnits   int64      `json:"expected_single_units"`
	ExpectedSellableUnits int64      `json:"expected_sellable_units"`
	ReceivedGoodUnits     int64      `json:"received_good_units"`
	ReceivedDamagedUnits  int64      `json:"received_damaged_units"`
	ReceivedSellableUnits int64      `json:"received_sellable_units"`
	Status                Status     `json:"status"`
	FirstReceivedAt       *time.Time `json:"first_received_at"`
	LastReceivedAt        *time.Time `json:"last_received_at"`
}

// Progress splits the receiving progress bar into good and damaged segments.
type Progress struct {
	Good    float64 `json:"good"`
	Damaged float64 `json:"damaged"`
}

// Total returns the filled fraction of the bar.
func (p Progress) Total() float64 {
	return p.Good + p.Damaged
}
