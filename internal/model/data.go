package model

import (
	"fmt"
)

// Delta flag bits. FlagLast terminates a logical batch of book deltas.
const (
	FlagLast     uint8 = 1 << 7
	FlagSnapshot uint8 = 1 << 6
)

// Bar is an immutable OHLCV aggregation over a bar type's binning rule.
type Bar struct {
	BarType BarType
	Open    Price
	High    Price
	Low     Price
	Close   Price
	Volume  Quantity
	TsEvent UnixNanos
	TsInit  UnixNanos
}

// NewBar validates the OHLC invariants: high >= open, high >= low,
// high >= close, low <= open, low <= close.
func NewBar(barType BarType, open, high, low, close Price, volume Quantity, tsEvent, tsInit UnixNanos) (Bar, error) {
	if high.Raw < open.Raw || high.Raw < low.Raw || high.Raw < close.Raw {
		return Bar{}, fmt.Errorf("invalid bar %s: high %s must dominate open %s, low %s, close %s",
			barType, high, open, low, close)
	}
	if low.Raw > open.Raw || low.Raw > close.Raw {
		return Bar{}, fmt.Errorf("invalid bar %s: low %s must not exceed open %s or close %s",
			barType, low, open, close)
	}
	return Bar{
		BarType: barType,
		Open:    open,
		High:    high,
		Low:     low,
		Close:   close,
		Volume:  volume,
		TsEvent: tsEvent,
		TsInit:  tsInit,
	}, nil
}

// QuoteTick is a top-of-book update.
type QuoteTick struct {
	InstrumentId InstrumentId
	BidPrice     Price
	AskPrice     Price
	BidSize      Quantity
	AskSize      Quantity
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// ExtractPrice returns the price of the requested type.
func (q QuoteTick) ExtractPrice(priceType PriceType) Price {
	switch priceType {
	case Bid:
		return q.BidPrice
	case Ask:
		return q.AskPrice
	case Mid:
		raw := (q.BidPrice.Raw + q.AskPrice.Raw) / 2
		return Price{Raw: raw, Precision: q.BidPrice.Precision}
	default:
		return q.BidPrice
	}
}

// ExtractSize returns the size of the requested type.
func (q QuoteTick) ExtractSize(priceType PriceType) Quantity {
	switch priceType {
	case Bid:
		return q.BidSize
	case Ask:
		return q.AskSize
	case Mid:
		raw := (q.BidSize.Raw + q.AskSize.Raw) / 2
		return Quantity{Raw: raw, Precision: q.BidSize.Precision}
	default:
		return q.BidSize
	}
}

// TradeTick is a single executed trade print.
type TradeTick struct {
	InstrumentId InstrumentId
	Price        Price
	Size         Quantity
	AggressorSide AggressorSide
	TradeId      TradeId
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// BookOrder is one order (or level, for MBP books) inside a delta.
type BookOrder struct {
	Side    OrderSide
	Price   Price
	Size    Quantity
	OrderId uint64
}

// OrderBookDelta is a single mutation to an order book.
type OrderBookDelta struct {
	InstrumentId InstrumentId
	Action       BookAction
	Order        BookOrder
	Flags        uint8
	Sequence     uint64
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// IsLast reports whether this delta terminates a logical batch.
func (d OrderBookDelta) IsLast() bool { return d.Flags&FlagLast != 0 }

// OrderBookDeltas is an atomic batch of deltas for one instrument.
type OrderBookDeltas struct {
	InstrumentId InstrumentId
	Deltas       []OrderBookDelta
}

// BookLevel is one aggregated price level in a snapshot.
type BookLevel struct {
	Price Price
	Size  Quantity
}

// OrderBookDepth10 is a fixed-depth snapshot emitted for depth subscriptions.
type OrderBookDepth10 struct {
	InstrumentId InstrumentId
	Bids         [10]BookLevel
	Asks         [10]BookLevel
	BidCounts    [10]uint32
	AskCounts    [10]uint32
	Sequence     uint64
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// BookSnapshot is a bounded-depth view of one book side pair.
type BookSnapshot struct {
	InstrumentId InstrumentId
	Bids         []BookLevel
	Asks         []BookLevel
	Sequence     uint64
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// MarkPriceUpdate is a venue mark price publication.
type MarkPriceUpdate struct {
	InstrumentId InstrumentId
	Value        Price
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// IndexPriceUpdate is a venue index price publication.
type IndexPriceUpdate struct {
	InstrumentId InstrumentId
	Value        Price
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// FundingRateUpdate is a venue funding rate publication.
type FundingRateUpdate struct {
	InstrumentId InstrumentId
	Rate         float64
	NextFundingNs UnixNanos
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// InstrumentClose marks an instrument closing price event.
type InstrumentClose struct {
	InstrumentId InstrumentId
	ClosePrice   Price
	TsEvent      UnixNanos
	TsInit       UnixNanos
}
