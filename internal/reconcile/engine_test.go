package reconcile

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func mustOrder(t *testing.T, cfg OrderConfig) Order {
	t.Helper()
	order, err := NewOrder(cfg)
	require.NoError(t, err)
	return order
}

func TestComputeExpectedUnitsFloorsSellable(t *testing.T) {
	got, err := ComputeExpectedUnits(OrderConfig{PurchaseBundleCount: 4, SellingBundleCount: 6, PurchaseOrderQuantity: 10})
	require.NoError(t, err)
	require.Equal(t, int64(40), got.ExpectedSingleUnits)
	require.Equal(t, int64(6), got.ExpectedSellableUnits)

	again, err := ComputeExpectedUnits(OrderConfig{PurchaseBundleCount: 4, SellingBundleCount: 6, PurchaseOrderQuantity: 10})
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestComputeExpectedUnitsFloorLaw(t *testing.T) {
	for pbc := int64(1); pbc <= 7; pbc++ {
		for sbc := int64(1); sbc <= 9; sbc++ {
			for qty := int64(0); qty <= 25; qty++ {
				got, err := ComputeExpectedUnits(OrderConfig{PurchaseBundleCount: pbc, SellingBundleCount: sbc, PurchaseOrderQuantity: qty})
				require.NoError(t, err)
				require.LessOrEqual(t, got.ExpectedSellableUnits*sbc, got.ExpectedSingleUnits)
				require.Less(t, got.ExpectedSingleUnits, (got.ExpectedSellableUnits+1)*sbc)
			}
		}
	}
}

func TestComputeExpectedUnitsRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name  string
		cfg   OrderConfig
		field string
	}{
		{"zero purchase bundle", OrderConfig{PurchaseBundleCount: 0, SellingBundleCount: 1, PurchaseOrderQuantity: 1}, "purchase_bundle_count"},
		{"negative selling bundle", OrderConfig{PurchaseBundleCount: 1, SellingBundleCount: -2, PurchaseOrderQuantity: 1}, "selling_bundle_count"},
		{"negative quantity", OrderConfig{PurchaseBundleCount: 1, SellingBundleCount: 1, PurchaseOrderQuantity: -1}, "purchase_order_quantity"},
		{"overflow", OrderConfig{PurchaseBundleCount: 2, SellingBundleCount: 1, PurchaseOrderQuantity: math.MaxInt64}, "purchase_order_quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeExpectedUnits(tc.cfg)
			require.ErrorIs(t, err, ErrValidation)
			verr, ok := AsValidation(err)
			require.True(t, ok)
			require.Equal(t, tc.field, verr.Field)
			require.Equal(t, "ValidationError", verr.Kind())
		})
	}
}

func TestClampConfig(t *testing.T) {
	got := ClampConfig(OrderConfig{PurchaseBundleCount: 0, SellingBundleCount: -3, PurchaseOrderQuantity: -9})
	require.Equal(t, OrderConfig{PurchaseBundleCount: 1, SellingBundleCount: 1, PurchaseOrderQuantity: 0}, got)
	_, err := ComputeExpectedUnits(got)
	require.NoError(t, err)
}

func TestApplyReceivingEventCompletesExactMatch(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 4, SellingBundleCount: 6, PurchaseOrderQuantity: 10})
	require.Equal(t, StatusAwaiting, order.Status)

	updated, err := ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 40, OccurredAt: t0})
	require.NoError(t, err)
	require.Equal(t, StatusComplete, updated.Status)
	require.Equal(t, int64(6), updated.ReceivedSellableUnits)
	require.Equal(t, t0, updated.FirstReceivedAt)
	require.Equal(t, t0, updated.LastReceivedAt)

	require.Equal(t, int64(0), order.ReceivedGoodUnits, "input order must not change")
}

func TestApplyReceivingEventExtraUnitsAcrossDeliveries(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 4, SellingBundleCount: 6, PurchaseOrderQuantity: 10})

	order, err := ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 20, OccurredAt: t0})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, order.Status)
	require.Equal(t, int64(3), order.ReceivedSellableUnits)

	later := t0.Add(2 * time.Hour)
	order, err = ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 25, OccurredAt: later})
	require.NoError(t, err)
	require.Equal(t, int64(45), order.ReceivedGoodUnits)
	require.Equal(t, StatusExtraUnits, order.Status)
	require.Equal(t, int64(7), order.ReceivedSellableUnits)
	require.Equal(t, t0, order.FirstReceivedAt)
	require.Equal(t, later, order.LastReceivedAt)
}

func TestApplyReceivingEventSellableDoesNotCompoundRounding(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 1, SellingBundleCount: 4, PurchaseOrderQuantity: 12})
	for i := 0; i < 4; i++ {
		var err error
		order, err = ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 3, OccurredAt: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	// Per-event flooring would give 4 x floor(3/4) = 0.
	require.Equal(t, int64(3), order.ReceivedSellableUnits)
	require.Equal(t, StatusComplete, order.Status)
}

func TestApplyReceivingEventOvershootFromAwaiting(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 2, SellingBundleCount: 1, PurchaseOrderQuantity: 3})
	order, err := ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 5, DamagedUnits: 2, OccurredAt: t0})
	require.NoError(t, err)
	require.Equal(t, StatusExtraUnits, order.Status)
}

func TestApplyReceivingEventRejectsEmptyAndNegative(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 1, SellingBundleCount: 1, PurchaseOrderQuantity: 5})

	_, err := ApplyReceivingEvent(order, ReceivingEvent{OccurredAt: t0})
	verr, ok := AsValidation(err)
	require.True(t, ok)
	require.Equal(t, ValidationError{Field: "event", Message: "event carries no units"}, verr)

	_, err = ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: -1, DamagedUnits: 3, OccurredAt: t0})
	verr, ok = AsValidation(err)
	require.True(t, ok)
	require.Equal(t, "received_good_units", verr.Field)

	_, err = ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 1, DamagedUnits: -3, OccurredAt: t0})
	verr, ok = AsValidation(err)
	require.True(t, ok)
	require.Equal(t, "received_damaged_units", verr.Field)

	_, err = ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 1})
	require.ErrorIs(t, err, ErrValidation)
}

func TestAccumulatorsAreMonotonic(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 3, SellingBundleCount: 2, PurchaseOrderQuantity: 7})
	events := []ReceivingEvent{
		{GoodUnits: 4, OccurredAt: t0},
		{DamagedUnits: 1, OccurredAt: t0.Add(time.Minute)},
		{GoodUnits: 0, DamagedUnits: 0, OccurredAt: t0.Add(2 * time.Minute)},
		{GoodUnits: 10, DamagedUnits: 2, OccurredAt: t0.Add(3 * time.Minute)},
		{GoodUnits: 9, OccurredAt: t0.Add(4 * time.Minute)},
	}
	for _, evt := range events {
		prev := order
		next, err := ApplyReceivingEvent(order, evt)
		if err != nil {
			require.Equal(t, prev, next)
			continue
		}
		require.GreaterOrEqual(t, next.ReceivedGoodUnits, prev.ReceivedGoodUnits)
		require.GreaterOrEqual(t, next.ReceivedDamagedUnits, prev.ReceivedDamagedUnits)
		require.GreaterOrEqual(t, next.ReceivedSellableUnits, prev.ReceivedSellableUnits)

		sum := next.ReceivedUnits()
		require.Equal(t, sum == next.ExpectedSingleUnits, next.Status == StatusComplete)
		require.Equal(t, sum > next.ExpectedSingleUnits, next.Status == StatusExtraUnits)
		require.NotEqual(t, StatusCancelled, next.Status)
		order = next
	}
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, StatusAwaiting, DeriveStatus(0, 0, 10, false))
	require.Equal(t, StatusPartial, DeriveStatus(3, 2, 10, false))
	require.Equal(t, StatusComplete, DeriveStatus(8, 2, 10, false))
	require.Equal(t, StatusExtraUnits, DeriveStatus(11, 0, 10, false))
	require.Equal(t, StatusExtraUnits, DeriveStatus(0, 1, 0, false))
	require.Equal(t, StatusAwaiting, DeriveStatus(0, 0, 0, false))
	require.Equal(t, StatusCancelled, DeriveStatus(5, 0, 10, true))
}

func TestCancelIsTerminalForDerivedStatus(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 1, SellingBundleCount: 1, PurchaseOrderQuantity: 5})
	order = Cancel(order)
	require.Equal(t, StatusCancelled, order.Status)

	order, err := ApplyReceivingEvent(order, ReceivingEvent{DamagedUnits: 2, OccurredAt: t0})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, order.Status)
}

func TestProgressFraction(t *testing.T) {
	zero := mustOrder(t, OrderConfig{PurchaseBundleCount: 4, SellingBundleCount: 1, PurchaseOrderQuantity: 0})
	require.Equal(t, Progress{}, ProgressFraction(zero))

	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 10, SellingBundleCount: 1, PurchaseOrderQuantity: 1})
	order, err := ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 6, DamagedUnits: 2, OccurredAt: t0})
	require.NoError(t, err)
	p := ProgressFraction(order)
	require.InDelta(t, 0.6, p.Good, 1e-9)
	require.InDelta(t, 0.2, p.Damaged, 1e-9)

	order, err = ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 3, DamagedUnits: 5, OccurredAt: t0})
	require.NoError(t, err)
	p = ProgressFraction(order)
	require.InDelta(t, 0.9, p.Good, 1e-9)
	require.InDelta(t, 0.1, p.Damaged, 1e-9)
	require.InDelta(t, 1.0, p.Total(), 1e-9)
	require.False(t, math.IsNaN(p.Total()))
}

func TestRebuildMatchesIncrementalFold(t *testing.T) {
	cfg := OrderConfig{PurchaseBundleCount: 6, SellingBundleCount: 4, PurchaseOrderQuantity: 3}
	events := []ReceivingEvent{
		{GoodUnits: 5, OccurredAt: t0},
		{GoodUnits: 7, DamagedUnits: 1, OccurredAt: t0.Add(time.Hour)},
		{GoodUnits: 2, OccurredAt: t0.Add(2 * time.Hour)},
	}
	incremental := mustOrder(t, cfg)
	for _, evt := range events {
		var err error
		incremental, err = ApplyReceivingEvent(incremental, evt)
		require.NoError(t, err)
	}
	rebuilt, err := Rebuild(cfg, false, events)
	require.NoError(t, err)
	require.Equal(t, incremental, rebuilt)

	cancelled, err := Rebuild(cfg, true, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestReconfigureKeepsAccumulators(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 2, SellingBundleCount: 1, PurchaseOrderQuantity: 5})
	order, err := Reconfigure(order, OrderConfig{PurchaseBundleCount: 3, SellingBundleCount: 2, PurchaseOrderQuantity: 5})
	require.NoError(t, err)
	require.Equal(t, int64(15), order.ExpectedSingleUnits)
	require.Equal(t, int64(7), order.ExpectedSellableUnits)

	_, err = Reconfigure(order, OrderConfig{PurchaseBundleCount: 0, SellingBundleCount: 2})
	require.True(t, errors.Is(err, ErrValidation))
}

func TestSnapshotOmitsUnsetTimestamps(t *testing.T) {
	order := mustOrder(t, OrderConfig{PurchaseBundleCount: 1, SellingBundleCount: 1, PurchaseOrderQuantity: 2})
	snap := Snapshot(order)
	require.Nil(t, snap.FirstReceivedAt)
	require.Nil(t, snap.LastReceivedAt)
	require.Equal(t, StatusAwaiting, snap.Status)

	order, err := ApplyReceivingEvent(order, ReceivingEvent{GoodUnits: 1, OccurredAt: t0})
	require.NoError(t, err)
	snap = Snapshot(order)
	require.NotNil(t, snap.FirstReceivedAt)
	require.Equal(t, t0, *snap.LastReceivedAt)
}

func TestValidationErrorJSON(t *testing.T) {
	raw, err := ValidationError{Field: "event", Message: "event carries no units"}.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"ValidationError","field":"event","message":"event carries no units"}`, string(raw))
}
