package reconciliation

import (
	"github.com/shopspring/decimal"

	"quantflow/internal/model"
	"quantflow/logger"
)

// Adjustment names the transformation applied to a partial fill window.
type Adjustment int

const (
	NoAdjustment Adjustment = iota
	// FilteredToCurrentLifecycle dropped fills from before the last flat
	// point; the remainder already reproduces the target.
	FilteredToCurrentLifecycle
	// AddedSyntheticOpening prepended a synthetic fill carrying the position
	// state from before the window.
	AddedSyntheticOpening
	// ReplacedCurrentLifecycle discarded the window entirely in favor of a
	// single synthetic fill, used when no consistent price exists.
	ReplacedCurrentLifecycle
)

func (a Adjustment) String() string {
	switch a {
	case FilteredToCurrentLifecycle:
		return "FILTERED_TO_CURRENT_LIFECYCLE"
	case AddedSyntheticOpening:
		return "ADDED_SYNTHETIC_OPENING"
	case ReplacedCurrentLifecycle:
		return "REPLACED_CURRENT_LIFECYCLE"
	default:
		return "NO_ADJUSTMENT"
	}
}

// avgPxTolerance is the relative tolerance for average price agreement.
var avgPxTolerance = decimal.RequireFromString("0.000001")

// AdjustFillsForPartialWindow reconciles a fill window that may not span the
// whole position lifecycle against the venue-reported target position.
//
// An empty window or a flat venue position needs no adjustment. Fills before
// the last flat point belong to a previous lifecycle and are dropped; if the
// remaining lifecycle cannot reproduce the target it is replaced outright by
// a single synthetic fill carrying the venue state. A window with no flat
// point that misses the target gets a synthetic opening fill prepended at the
// reconciliation price, timestamped one nanosecond before the first real fill
// (saturating at zero).
func AdjustFillsForPartialWindow(fills []Fill, targetQty, targetAvg decimal.Decimal) ([]Fill, Adjustment) {
	log := logger.WithComponent("reconciliation")

	if len(fills) == 0 || targetQty.IsZero() {
		return fills, NoAdjustment
	}

	if crossings := DetectZeroCrossings(fills); len(crossings) > 0 {
		last := crossings[len(crossings)-1]
		boundary := last
		// A crossing that lands exactly flat ends its lifecycle; a sign
		// change starts the new lifecycle at the crossing fill itself.
		running := decimal.Zero
		for i := 0; i <= last; i++ {
			running = running.Add(fills[i].signedQty())
		}
		if running.IsZero() {
			boundary = last + 1
		}
		lifecycle := fills[boundary:]
		if len(lifecycle) == 0 {
			return fills, NoAdjustment
		}

		simQty, simAvg := SimulatePosition(lifecycle)
		if CheckPositionMatch(simQty, simAvg, targetQty, targetAvg, avgPxTolerance) {
			return lifecycle, FilteredToCurrentLifecycle
		}

		// The current lifecycle cannot reproduce the venue state; it is
		// discarded in favor of one fill holding the reported position.
		log.WithFields(logger.Fields{
			"target_qty":    targetQty.String(),
			"target_avg_px": targetAvg.String(),
		}).Warn("Current lifecycle does not match venue position, replacing fill window")
		side := model.Buy
		if targetQty.IsNegative() {
			side = model.Sell
		}
		return []Fill{{
			TradeId: "SYNTHETIC-RECON",
			Side:    side,
			Qty:     targetQty.Abs(),
			Px:      targetAvg,
			Ts:      lifecycle[0].Ts.SaturatingSub(1),
		}}, ReplacedCurrentLifecycle
	}

	// Single lifecycle.
	simQty, simAvg := SimulatePosition(fills)
	if CheckPositionMatch(simQty, simAvg, targetQty, targetAvg, avgPxTolerance) {
		return fills, NoAdjustment
	}

	// The synthetic fill must move a flat position to the state that,
	// followed by the window's fills, lands on the target.
	openingQty := targetQty.Sub(simQty)
	price, ok := CalculateReconciliationPrice(simQty, simAvg, targetQty, targetAvg)
	if !ok || openingQty.IsZero() {
		log.WithFields(logger.Fields{
			"target_qty":    targetQty.String(),
			"target_avg_px": targetAvg.String(),
		}).Warn("No consistent reconciliation price for fill window")
		return fills, NoAdjustment
	}

	side := model.Buy
	if openingQty.IsNegative() {
		side = model.Sell
	}
	synthetic := Fill{
		TradeId: "SYNTHETIC-OPENING",
		Side:    side,
		Qty:     openingQty.Abs(),
		Px:      price,
		Ts:      fills[0].Ts.SaturatingSub(1),
	}
	out := make([]Fill, 0, len(fills)+1)
	out = append(out, synthetic)
	out = append(out, fills...)
	return out, AddedSyntheticOpening
}
