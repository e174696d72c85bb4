// Package reconcile turns bundle configuration and receiving events into
// expected, received and sellable unit counts and a derived line status.
//
// Every function here is pure: no I/O, no clock, no shared state. Callers are
// responsible for serializing writes to the same order line.
package reconcile

import "math"

// ComputeExpectedUnits derives expected single and sellable units.
// Sellable units use floor division; a partial selling bundle is never counted.
func ComputeExpectedUnits(cfg OrderConfig) (ExpectedUnits, error) {
	if err := validateConfig(cfg); err != nil {
		return ExpectedUnits{}, err
	}
	single := cfg.PurchaseBundleCount * cfg.PurchaseOrderQuantity
	return ExpectedUnits{
		ExpectedSingleUnits:   single,
		ExpectedSellableUnits: single / cfg.SellingBundleCount,
	}, nil
}

// ClampConfig moves out-of-range values to their nearest valid bound. It is the
// form/import side of the contract; ComputeExpectedUnits itself never clamps.
func ClampConfig(cfg OrderConfig) OrderConfig {
	if cfg.PurchaseBundleCount < 1 {
		cfg.PurchaseBundleCount = 1
	}
	if cfg.SellingBundleCount < 1 {
		cfg.SellingBundleCount = 1
	}
	if cfg.PurchaseOrderQuantity < 0 {
		cfg.PurchaseOrderQuantity = 0
	}
	return cfg
}

// NewOrder builds an order in the awaiting state from its configuration.
func NewOrder(cfg OrderConfig) (Order, error) {
	expected, err := ComputeExpectedUnits(cfg)
	if err != nil {
		return Order{}, err
	}
	order := Order{
		Config:                cfg,
		ExpectedSingleUnits:   expected.ExpectedSingleUnits,
		ExpectedSellableUnits: expected.ExpectedSellableUnits,
	}
	order.Status = statusOf(order)
	return order, nil
}

// Reconfigure replaces the configuration and recomputes expected units while
// keeping accumulators untouched.
func Reconfigure(order Order, cfg OrderConfig) (Order, error) {
	expected, err := ComputeExpectedUnits(cfg)
	if err != nil {
		return order, err
	}
	order.Config = cfg
	order.ExpectedSingleUnits = expected.ExpectedSingleUnits
	order.ExpectedSellableUnits = expected.ExpectedSellableUnits
	order.ReceivedSellableUnits = order.ReceivedGoodUnits / cfg.SellingBundleCount
	order.Status = statusOf(order)
	return order, nil
}

// ApplyReceivingEvent folds one event into the order and returns the result.
// The order argument is a value; the caller's copy is left as it was.
func ApplyReceivingEvent(order Order, evt ReceivingEvent) (Order, error) {
	if err := ValidateEvent(evt); err != nil {
		return order, err
	}
	if order.Config.SellingBundleCount < 1 {
		return order, invalid("selling_bundle_count", "must be at least 1")
	}
	if order.ReceivedGoodUnits > math.MaxInt64-evt.GoodUnits || order.ReceivedDamagedUnits > math.MaxInt64-evt.DamagedUnits {
		return order, invalid("event", "received units overflow")
	}

	order.ReceivedGoodUnits += evt.GoodUnits
	order.ReceivedDamagedUnits += evt.DamagedUnits
	// Recomputed from the running total so partial deliveries never compound rounding.
	order.ReceivedSellableUnits = order.ReceivedGoodUnits / order.Config.SellingBundleCount

	if order.FirstReceivedAt.IsZero() {
		order.FirstReceivedAt = evt.OccurredAt
	}
	order.LastReceivedAt = evt.OccurredAt
	order.Status = statusOf(order)
	return order, nil
}

// ValidateEvent checks event quantities without touching any order.
func ValidateEvent(evt ReceivingEvent) error {
	if evt.GoodUnits < 0 {
		return invalid("received_good_units", "must not be negative")
	}
	if evt.DamagedUnits < 0 {
		return invalid("received_damaged_units", "must not be negative")
	}
	if evt.GoodUnits == 0 && evt.DamagedUnits == 0 {
		return invalid("event", "event carries no units")
	}
	if evt.OccurredAt.IsZero() {
		return invalid("received_at", "timestamp is required")
	}
	return nil
}

// Cancel marks the order cancelled. Whether cancellation is allowed
// (nothing received as good units) is decided by the caller.
func Cancel(order Order) Order {
	order.Cancelled = true
	order.Status = statusOf(order)
	return order
}

// DeriveStatus compares received units against the expectation. There is no
// transition table: the status is recomputed from totals on every call.
func DeriveStatus(good, damaged, expected int64, cancelled bool) Status {
	if cancelled {
		return StatusCancelled
	}
	received := good + damaged
	switch {
	case received == 0:
		return StatusAwaiting
	case received < expected:
		return StatusPartial
	case received == expected:
		return StatusComplete
	default:
		return StatusExtraUnits
	}
}

// ProgressFraction returns the good and damaged share of the expected units.
// Orders expecting zero units report zero progress instead of NaN or Inf.
func ProgressFraction(order Order) Progress {
	if order.ExpectedSingleUnits <= 0 {
		return Progress{}
	}
	expected := float64(order.ExpectedSingleUnits)
	good := math.Min(float64(order.ReceivedGoodUnits)/expected, 1)
	damaged := math.Min(float64(order.ReceivedDamagedUnits)/expected, 1-good)
	return Progress{Good: good, Damaged: damaged}
}

// Rebuild replays a full ledger, in insertion order, over a fresh order. It
// exists for audit and repair; the normal write path folds events one at a time.
func Rebuild(cfg OrderConfig, cancelled bool, events []ReceivingEvent) (Order, error) {
	order, err := NewOrder(cfg)
	if err != nil {
		return Order{}, err
	}
	for _, evt := range events {
		order, err = ApplyReceivingEvent(order, evt)
		if err != nil {
			return Order{}, err
		}
	}
	if cancelled {
		order = Cancel(order)
	}
	return order, nil
}

// Snapshot renders the order into its read model.
func Snapshot(order Order) OrderSnapshot {
	snap := OrderSnapshot{
		ExpectedSingleUnits:   order.ExpectedSingleUnits,
		ExpectedSellableUnits: order.ExpectedSellableUnits,
		ReceivedGoodUnits:     order.ReceivedGoodUnits,
		ReceivedDamagedUnits:  order.ReceivedDamagedUnits,
		ReceivedSellableUnits: order.ReceivedSellableUnits,
		Status:                statusOf(order),
	}
	if !order.FirstReceivedAt.IsZero() {
		first := order.FirstReceivedAt
		snap.FirstReceivedAt = &first
	}
	if !order.LastReceivedAt.IsZero() {
		last := order.LastReceivedAt
		snap.LastReceivedAt = &last
	}
	return snap
}

func statusOf(order Order) Status {
	return DeriveStatus(order.ReceivedGoodUnits, order.ReceivedDamagedUnits, order.ExpectedSingleUnits, order.Cancelled)
}

func validateConfig(cfg OrderConfig) error {
	if cfg.PurchaseBundleCount < 1 {
		return invalid("purchase_bundle_count", "must be at least 1")
	}
	if cfg.SellingBundleCount < 1 {
		return invalid("selling_bundle_count", "must be at least 1")
	}
	if cfg.PurchaseOrderQuantity < 0 {
		return invalid("purchase_order_quantity", "must not be negative")
	}
	if cfg.PurchaseOrderQuantity > math.MaxInt64/cfg.PurchaseBundleCount {
		return invalid("purchase_order_quantity", "expected units overflow")
	}
	return nil
}
