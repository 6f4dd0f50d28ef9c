package aggregation

import (
	"quantflow/internal/model"
)

// RenkoBarAggregator emits fixed-height bricks whenever price travels a full
// brick from the previous brick close. Step counts price increments per
// brick.
type RenkoBarAggregator struct {
	barType   model.BarType
	handler   BarHandler
	brickRaw  int64
	lastClose model.Price
	volume    model.Quantity
	seeded    bool
}

func NewRenkoBarAggregator(barType model.BarType, priceIncrement model.Price, handler BarHandler) *RenkoBarAggregator {
	return &RenkoBarAggregator{
		barType:  barType,
		handler:  handler,
		brickRaw: priceIncrement.Raw * int64(barType.Spec.Step),
	}
}

func (a *RenkoBarAggregator) BarType() model.BarType { return a.barType }

func (a *RenkoBarAggregator) HandleQuote(quote model.QuoteTick) {
	priceType := a.barType.Spec.PriceType
	a.apply(quote.ExtractPrice(priceType), quote.ExtractSize(priceType), quote.TsEvent)
}

func (a *RenkoBarAggregator) HandleTrade(trade model.TradeTick) {
	a.apply(trade.Price, trade.Size, trade.TsEvent)
}

func (a *RenkoBarAggregator) HandleBar(bar model.Bar) {
	a.apply(bar.Close, bar.Volume, bar.TsEvent)
}

func (a *RenkoBarAggregator) Stop() {}

func (a *RenkoBarAggregator) apply(price model.Price, size model.Quantity, ts model.UnixNanos) {
	if !a.seeded {
		a.lastClose = price
		a.seeded = true
		return
	}
	a.volume = a.volume.Add(size)

	for price.Raw-a.lastClose.Raw >= a.brickRaw {
		open := a.lastClose
		close := model.Price{Raw: open.Raw + a.brickRaw, Precision: open.Precision}
		a.emit(open, close, close, open, ts)
		a.lastClose = close
	}
	for a.lastClose.Raw-price.Raw >= a.brickRaw {
		open := a.lastClose
		close := model.Price{Raw: open.Raw - a.brickRaw, Precision: open.Precision}
		a.emit(open, close, open, close, ts)
		a.lastClose = close
	}
}

func (a *RenkoBarAggregator) emit(open, close, high, low model.Price, ts model.UnixNanos) {
	a.handler(model.Bar{
		BarType: a.barType,
		Open:    open,
		High:    high,
		Low:     low,
		Close:   close,
		Volume:  a.volume,
		TsEvent: ts,
		TsInit:  ts,
	})
	a.volume = model.Quantity{Precision: a.volume.Precision}
}
