package reconciliation

import (
	"github.com/shopspring/decimal"

	"quantflow/internal/model"
)

// Fill is one execution report used to rebuild a position history.
type Fill struct {
	TradeId model.TradeId
	Side    model.OrderSide
	Qty     decimal.Decimal
	Px      decimal.Decimal
	Ts      model.UnixNanos
}

func (f Fill) signedQty() decimal.Decimal {
	if f.Side == model.Sell {
		return f.Qty.Neg()
	}
	return f.Qty
}

// SimulatePosition replays fills through netting arithmetic and returns the
// resulting signed quantity and average price. Same-direction fills
// accumulate value, opposite fills reduce proportionally keeping the average,
// and a flip resets the average to the flipping fill's price.
func SimulatePosition(fills []Fill) (signedQty, avgPx decimal.Decimal) {
	for _, fill := range fills {
		signed := fill.signedQty()
		newQty := signedQty.Add(signed)
		switch {
		case signedQty.IsZero():
			avgPx = fill.Px
		case signedQty.Sign() == signed.Sign():
			value := signedQty.Abs().Mul(avgPx).Add(fill.Qty.Mul(fill.Px))
			avgPx = value.Div(signedQty.Abs().Add(fill.Qty))
		case newQty.Sign() != 0 && newQty.Sign() != signedQty.Sign():
			avgPx = fill.Px
		}
		signedQty = newQty
	}
	if signedQty.IsZero() {
		avgPx = decimal.Zero
	}
	return signedQty, avgPx
}

// DetectZeroCrossings returns the indices of fills after which the running
// position either lands exactly on zero or has changed sign.
func DetectZeroCrossings(fills []Fill) []int {
	var crossings []int
	running := decimal.Zero
	for i, fill := range fills {
		next := running.Add(fill.signedQty())
		if !running.IsZero() && (next.IsZero() || next.Sign() != running.Sign()) {
			crossings = append(crossings, i)
		}
		running = next
	}
	return crossings
}

// CheckPositionMatch compares a simulated position against the venue-reported
// target. Quantities must match exactly; average prices match within a
// relative tolerance.
func CheckPositionMatch(simQty, simAvg, targetQty, targetAvg, tolerance decimal.Decimal) bool {
	if !simQty.Equal(targetQty) {
		return false
	}
	if simQty.IsZero() {
		return true
	}
	if targetAvg.IsZero() {
		return simAvg.IsZero()
	}
	diff := simAvg.Sub(targetAvg).Abs()
	return diff.Div(targetAvg.Abs()).LessThanOrEqual(tolerance)
}

// CalculateReconciliationPrice computes the price a synthetic fill must trade
// at so the current position becomes the target position.
//
// Four cases: closing to flat uses the current average, opening from flat
// uses the target average, a flip uses the target average, and an
// accumulation or reduction inverts the weighted average. The inversion can
// produce a non-positive price when the reported averages are inconsistent;
// that is reported as not computable.
func CalculateReconciliationPrice(currentQty, currentAvg, targetQty, targetAvg decimal.Decimal) (decimal.Decimal, bool) {
	qtyDiff := targetQty.Sub(currentQty)
	if qtyDiff.IsZero() {
		return decimal.Zero, false
	}

	switch {
	case targetQty.IsZero():
		if currentAvg.IsPositive() {
			return currentAvg, true
		}
		return decimal.Zero, false
	case currentQty.IsZero():
		if targetAvg.IsPositive() {
			return targetAvg, true
		}
		return decimal.Zero, false
	case targetQty.Sign() != currentQty.Sign():
		if targetAvg.IsPositive() {
			return targetAvg, true
		}
		return decimal.Zero, false
	default:
		currentValue := currentQty.Mul(currentAvg)
		targetValue := targetQty.Mul(targetAvg)
		price := targetValue.Sub(currentValue).Div(qtyDiff)
		if !price.IsPositive() {
			return decimal.Zero, false
		}
		return price, true
	}
}
