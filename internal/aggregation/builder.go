package aggregation

import (
	"quantflow/internal/model"
)

// BarBuilder accumulates updates into the working bar for one bar type.
type BarBuilder struct {
	barType     model.BarType
	partial     bool
	open        model.Price
	high        model.Price
	low         model.Price
	close       model.Price
	volume      model.Quantity
	count       int
	tsLast      model.UnixNanos
	initialized bool
}

func NewBarBuilder(barType model.BarType) *BarBuilder {
	return &BarBuilder{barType: barType}
}

// Count returns the number of updates folded into the working bar.
func (b *BarBuilder) Count() int { return b.count }

// Initialized reports whether the working bar has at least one price.
func (b *BarBuilder) Initialized() bool { return b.initialized }

// SetPartial seeds the working bar from a previously built bar, used when an
// aggregator restarts mid-interval. It only applies before the first update.
func (b *BarBuilder) SetPartial(bar model.Bar) {
	if b.initialized {
		return
	}
	b.open = bar.Open
	b.high = bar.High
	b.low = bar.Low
	b.close = bar.Close
	b.volume = bar.Volume
	b.tsLast = bar.TsEvent
	b.initialized = true
	b.partial = true
}

// Update folds one price/size observation in. Out-of-order updates are
// dropped to keep the bar monotonic.
func (b *BarBuilder) Update(price model.Price, size model.Quantity, tsEvent model.UnixNanos) {
	if b.initialized && tsEvent < b.tsLast {
		return
	}
	if !b.initialized {
		b.open = price
		b.high = price
		b.low = price
		b.initialized = true
	} else {
		if price.Raw > b.high.Raw {
			b.high = price
		}
		if price.Raw < b.low.Raw {
			b.low = price
		}
	}
	b.close = price
	b.volume = b.volume.Add(size)
	b.count++
	b.tsLast = tsEvent
}

// UpdateBar merges a sub-bar in, for aggregators composed from bars.
func (b *BarBuilder) UpdateBar(bar model.Bar) {
	if b.initialized && bar.TsEvent < b.tsLast {
		return
	}
	if !b.initialized {
		b.open = bar.Open
		b.high = bar.High
		b.low = bar.Low
		b.initialized = true
	} else {
		if bar.High.Raw > b.high.Raw {
			b.high = bar.High
		}
		if bar.Low.Raw < b.low.Raw {
			b.low = bar.Low
		}
	}
	b.close = bar.Close
	b.volume = b.volume.Add(bar.Volume)
	b.count++
	b.tsLast = bar.TsEvent
}

// Build emits the completed bar stamped with tsEvent/tsInit and resets the
// builder for the next interval. The next bar opens at the last close.
func (b *BarBuilder) Build(tsEvent, tsInit model.UnixNanos) model.Bar {
	bar := model.Bar{
		BarType: b.barType,
		Open:    b.open,
		High:    b.high,
		Low:     b.low,
		Close:   b.close,
		Volume:  b.volume,
		TsEvent: tsEvent,
		TsInit:  tsInit,
	}
	// Carry the close forward so an empty next interval still has prices.
	b.open = b.close
	b.high = b.close
	b.low = b.close
	b.volume = model.Quantity{Precision: b.volume.Precision}
	b.count = 0
	b.partial = false
	return bar
}
