package reconciliation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantflow/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fill(side model.OrderSide, qty, px string, ts uint64) Fill {
	return Fill{Side: side, Qty: d(qty), Px: d(px), Ts: model.UnixNanos(ts)}
}

func TestSimulatePositionNetting(t *testing.T) {
	fills := []Fill{
		fill(model.Buy, "100", "1.20", 1),
		fill(model.Buy, "100", "1.40", 2),
		fill(model.Sell, "50", "1.50", 3),
	}
	qty, avg := SimulatePosition(fills)
	assert.True(t, qty.Equal(d("150")))
	assert.True(t, avg.Equal(d("1.3")), avg.String())
}

func TestSimulatePositionFlipResetsAverage(t *testing.T) {
	fills := []Fill{
		fill(model.Buy, "100", "1.20", 1),
		fill(model.Sell, "150", "1.30", 2),
	}
	qty, avg := SimulatePosition(fills)
	assert.True(t, qty.Equal(d("-50")))
	assert.True(t, avg.Equal(d("1.30")))
}

func TestSimulatePositionFlatClearsAverage(t *testing.T) {
	fills := []Fill{
		fill(model.Buy, "100", "1.20", 1),
		fill(model.Sell, "100", "1.30", 2),
	}
	qty, avg := SimulatePosition(fills)
	assert.True(t, qty.IsZero())
	assert.True(t, avg.IsZero())
}

func TestDetectZeroCrossings(t *testing.T) {
	fills := []Fill{
		fill(model.Buy, "100", "1.00", 1),
		fill(model.Sell, "100", "1.00", 2), // lands flat
		fill(model.Buy, "50", "1.00", 3),
		fill(model.Sell, "80", "1.00", 4), // sign change
	}
	assert.Equal(t, []int{1, 3}, DetectZeroCrossings(fills))
	assert.Empty(t, DetectZeroCrossings(fills[:1]))
}

func TestCheckPositionMatch(t *testing.T) {
	tol := d("0.000001")
	assert.True(t, CheckPositionMatch(d("100"), d("1.20"), d("100"), d("1.20"), tol))
	assert.True(t, CheckPositionMatch(d("0"), d("0"), d("0"), d("0"), tol))
	assert.False(t, CheckPositionMatch(d("100"), d("1.20"), d("99"), d("1.20"), tol))
	assert.False(t, CheckPositionMatch(d("100"), d("1.20"), d("100"), d("1.25"), tol))
	// Inside relative tolerance.
	assert.True(t, CheckPositionMatch(d("100"), d("1.2000000001"), d("100"), d("1.20"), tol))
}

func TestCalculateReconciliationPrice(t *testing.T) {
	// Close to flat: current average.
	px, ok := CalculateReconciliationPrice(d("100"), d("1.20"), d("0"), d("0"))
	require.True(t, ok)
	assert.True(t, px.Equal(d("1.20")))

	// Flat to position: target average.
	px, ok = CalculateReconciliationPrice(d("0"), d("0"), d("100"), d("1.25"))
	require.True(t, ok)
	assert.True(t, px.Equal(d("1.25")))

	// Flip long 100 @ 1.20 to short 100 @ 1.25: target average.
	px, ok = CalculateReconciliationPrice(d("100"), d("1.20"), d("-100"), d("1.25"))
	require.True(t, ok)
	assert.True(t, px.Equal(d("1.25")))

	// Accumulation: weighted average inversion.
	// 100 @ 1.20 accumulating to 200 @ 1.30 means 100 bought at 1.40.
	px, ok = CalculateReconciliationPrice(d("100"), d("1.20"), d("200"), d("1.30"))
	require.True(t, ok)
	assert.True(t, px.Equal(d("1.4")), px.String())

	// Inconsistent averages yielding a non-positive price are rejected.
	_, ok = CalculateReconciliationPrice(d("100"), d("2.00"), d("200"), d("0.50"))
	assert.False(t, ok)

	// No quantity difference means nothing to reconcile.
	_, ok = CalculateReconciliationPrice(d("100"), d("1.20"), d("100"), d("1.20"))
	assert.False(t, ok)
}

func TestAdjustFillsFiltersPreviousLifecycle(t *testing.T) {
	fills := []Fill{
		fill(model.Buy, "50", "1.00", 1),
		fill(model.Sell, "50", "1.10", 2), // flat, lifecycle ends
		fill(model.Buy, "100", "1.20", 3),
	}
	out, adj := AdjustFillsForPartialWindow(fills, d("100"), d("1.20"))
	assert.Equal(t, FilteredToCurrentLifecycle, adj)
	require.Len(t, out, 1)
	assert.EqualValues(t, 3, out[0].Ts)
}

func TestAdjustFillsAddsSyntheticOpening(t *testing.T) {
	// Window only saw a 40 buy, venue reports 100 @ 1.30.
	fills := []Fill{fill(model.Buy, "40", "1.20", 10)}
	out, adj := AdjustFillsForPartialWindow(fills, d("100"), d("1.30"))
	assert.Equal(t, AddedSyntheticOpening, adj)
	require.Len(t, out, 2)

	synthetic := out[0]
	assert.Equal(t, model.Buy, synthetic.Side)
	assert.True(t, synthetic.Qty.Equal(d("60")))
	assert.EqualValues(t, 9, synthetic.Ts)

	// The synthetic price makes the full set land on the target.
	qty, _ := SimulatePosition(out)
	assert.True(t, qty.Equal(d("100")))
}

func TestAdjustFillsSyntheticTsSaturatesAtZero(t *testing.T) {
	fills := []Fill{fill(model.Buy, "40", "1.20", 0)}
	out, adj := AdjustFillsForPartialWindow(fills, d("100"), d("1.30"))
	assert.Equal(t, AddedSyntheticOpening, adj)
	assert.EqualValues(t, 0, out[0].Ts)
}

func TestAdjustFillsMatchingWindowUntouched(t *testing.T) {
	fills := []Fill{fill(model.Buy, "100", "1.20", 5)}
	out, adj := AdjustFillsForPartialWindow(fills, d("100"), d("1.20"))
	assert.Equal(t, NoAdjustment, adj)
	assert.Equal(t, fills, out)
}

func TestAdjustFillsEmptyWindowUntouched(t *testing.T) {
	out, adj := AdjustFillsForPartialWindow(nil, d("100"), d("1.25"))
	assert.Equal(t, NoAdjustment, adj)
	assert.Empty(t, out)
}

func TestAdjustFillsFlatTargetUntouched(t *testing.T) {
	fills := []Fill{fill(model.Buy, "100", "1.20", 1000)}
	out, adj := AdjustFillsForPartialWindow(fills, d("0"), d("0"))
	assert.Equal(t, NoAdjustment, adj)
	assert.Equal(t, fills, out)
}

func TestAdjustFillsReplacesMismatchedLifecycle(t *testing.T) {
	// The lifecycle after the flat point holds 100 @ 1.20 but the venue
	// reports 250 @ 1.50; no prepended fill can reconcile a window whose
	// remainder is kept, so the lifecycle is swapped for one synthetic fill.
	fills := []Fill{
		fill(model.Buy, "50", "1.00", 1),
		fill(model.Sell, "50", "1.10", 2), // flat, lifecycle ends
		fill(model.Buy, "100", "1.20", 1000),
	}
	out, adj := AdjustFillsForPartialWindow(fills, d("250"), d("1.50"))
	assert.Equal(t, ReplacedCurrentLifecycle, adj)
	require.Len(t, out, 1)

	synthetic := out[0]
	assert.Equal(t, model.TradeId("SYNTHETIC-RECON"), synthetic.TradeId)
	assert.Equal(t, model.Buy, synthetic.Side)
	assert.True(t, synthetic.Qty.Equal(d("250")))
	assert.True(t, synthetic.Px.Equal(d("1.50")))
	assert.EqualValues(t, 999, synthetic.Ts)
}
