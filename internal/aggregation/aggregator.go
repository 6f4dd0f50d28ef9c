package aggregation

import (
	"github.com/shopspring/decimal"

	"quantflow/internal/model"
)

// BarHandler receives each completed bar.
type BarHandler func(bar model.Bar)

// Aggregator folds market updates into bars of one bar type.
type Aggregator interface {
	BarType() model.BarType
	HandleQuote(quote model.QuoteTick)
	HandleTrade(trade model.TradeTick)
	HandleBar(bar model.Bar)
	Stop()
}

// TickBarAggregator emits a bar every step updates.
type TickBarAggregator struct {
	barType model.BarType
	builder *BarBuilder
	handler BarHandler
}

func NewTickBarAggregator(barType model.BarType, handler BarHandler) *TickBarAggregator {
	return &TickBarAggregator{
		barType: barType,
		builder: NewBarBuilder(barType),
		handler: handler,
	}
}

func (a *TickBarAggregator) BarType() model.BarType { return a.barType }

func (a *TickBarAggregator) HandleQuote(quote model.QuoteTick) {
	priceType := a.barType.Spec.PriceType
	a.apply(quote.ExtractPrice(priceType), quote.ExtractSize(priceType), quote.TsEvent)
}

func (a *TickBarAggregator) HandleTrade(trade model.TradeTick) {
	a.apply(trade.Price, trade.Size, trade.TsEvent)
}

func (a *TickBarAggregator) HandleBar(bar model.Bar) {
	a.builder.UpdateBar(bar)
	if a.builder.Count() >= a.barType.Spec.Step {
		a.handler(a.builder.Build(bar.TsEvent, bar.TsInit))
	}
}

func (a *TickBarAggregator) Stop() {}

func (a *TickBarAggregator) apply(price model.Price, size model.Quantity, ts model.UnixNanos) {
	a.builder.Update(price, size, ts)
	if a.builder.Count() >= a.barType.Spec.Step {
		a.handler(a.builder.Build(ts, ts))
	}
}

// VolumeBarAggregator emits a bar each time step units of size accumulate.
// Oversized updates split across consecutive bars.
type VolumeBarAggregator struct {
	barType   model.BarType
	builder   *BarBuilder
	handler   BarHandler
	cumVolume decimal.Decimal
}

func NewVolumeBarAggregator(barType model.BarType, handler BarHandler) *VolumeBarAggregator {
	return &VolumeBarAggregator{
		barType: barType,
		builder: NewBarBuilder(barType),
		handler: handler,
	}
}

func (a *VolumeBarAggregator) BarType() model.BarType { return a.barType }

func (a *VolumeBarAggregator) HandleQuote(quote model.QuoteTick) {
	priceType := a.barType.Spec.PriceType
	a.apply(quote.ExtractPrice(priceType), quote.ExtractSize(priceType), quote.TsEvent)
}

func (a *VolumeBarAggregator) HandleTrade(trade model.TradeTick) {
	a.apply(trade.Price, trade.Size, trade.TsEvent)
}

func (a *VolumeBarAggregator) HandleBar(bar model.Bar) {
	a.builder.UpdateBar(bar)
	a.cumVolume = a.cumVolume.Add(bar.Volume.Decimal())
	a.drain(bar.TsEvent)
}

func (a *VolumeBarAggregator) Stop() {}

func (a *VolumeBarAggregator) apply(price model.Price, size model.Quantity, ts model.UnixNanos) {
	threshold := decimal.NewFromInt(int64(a.barType.Spec.Step))
	remaining := size.Decimal()
	for remaining.IsPositive() {
		headroom := threshold.Sub(a.cumVolume)
		take := decimal.Min(remaining, headroom)
		a.builder.Update(price, model.QuantityFromDecimal(take, size.Precision), ts)
		a.cumVolume = a.cumVolume.Add(take)
		remaining = remaining.Sub(take)
		if a.cumVolume.GreaterThanOrEqual(threshold) {
			a.handler(a.builder.Build(ts, ts))
			a.cumVolume = decimal.Zero
		}
	}
}

func (a *VolumeBarAggregator) drain(ts model.UnixNanos) {
	threshold := decimal.NewFromInt(int64(a.barType.Spec.Step))
	for a.cumVolume.GreaterThanOrEqual(threshold) {
		a.handler(a.builder.Build(ts, ts))
		a.cumVolume = a.cumVolume.Sub(threshold)
	}
}

// ValueBarAggregator emits a bar each time step units of notional value
// (price times size) accumulate.
type ValueBarAggregator struct {
	barType  model.BarType
	builder  *BarBuilder
	handler  BarHandler
	cumValue decimal.Decimal
}

func NewValueBarAggregator(barType model.BarType, handler BarHandler) *ValueBarAggregator {
	return &ValueBarAggregator{
		barType: barType,
		builder: NewBarBuilder(barType),
		handler: handler,
	}
}

func (a *ValueBarAggregator) BarType() model.BarType { return a.barType }

func (a *ValueBarAggregator) HandleQuote(quote model.QuoteTick) {
	priceType := a.barType.Spec.PriceType
	a.apply(quote.ExtractPrice(priceType), quote.ExtractSize(priceType), quote.TsEvent)
}

func (a *ValueBarAggregator) HandleTrade(trade model.TradeTick) {
	a.apply(trade.Price, trade.Size, trade.TsEvent)
}

func (a *ValueBarAggregator) HandleBar(bar model.Bar) {
	a.builder.UpdateBar(bar)
	a.cumValue = a.cumValue.Add(bar.Close.Decimal().Mul(bar.Volume.Decimal()))
	threshold := decimal.NewFromInt(int64(a.barType.Spec.Step))
	for a.cumValue.GreaterThanOrEqual(threshold) {
		a.handler(a.builder.Build(bar.TsEvent, bar.TsInit))
		a.cumValue = a.cumValue.Sub(threshold)
	}
}

func (a *ValueBarAggregator) Stop() {}

func (a *ValueBarAggregator) apply(price model.Price, size model.Quantity, ts model.UnixNanos) {
	threshold := decimal.NewFromInt(int64(a.barType.Spec.Step))
	px := price.Decimal()
	if !px.IsPositive() {
		return
	}
	remaining := size.Decimal()
	for remaining.IsPositive() {
		headroomValue := threshold.Sub(a.cumValue)
		headroomQty := headroomValue.Div(px)
		take := decimal.Min(remaining, headroomQty)
		a.builder.Update(price, model.QuantityFromDecimal(take, size.Precision), ts)
		a.cumValue = a.cumValue.Add(take.Mul(px))
		remaining = remaining.Sub(take)
		if a.cumValue.GreaterThanOrEqual(threshold) {
			a.handler(a.builder.Build(ts, ts))
			a.cumValue = decimal.Zero
		}
	}
}
