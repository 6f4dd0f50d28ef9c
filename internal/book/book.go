package book

import (
	"fmt"

	"quantflow/internal/model"
	"quantflow/logger"
)

// OrderBook maintains one instrument's resting liquidity from a delta stream.
// L1_MBP tracks the touch only, L2_MBP aggregates by price level, and L3_MBO
// tracks individual orders.
//
// Not safe for concurrent use; the owning engine serializes access.
type OrderBook struct {
	InstrumentId model.InstrumentId
	BookType     model.BookType

	bids *ladder
	asks *ladder

	seqNum uint64
	count  uint64
	tsLast model.UnixNanos

	log *logger.Entry
}

func NewOrderBook(instrumentId model.InstrumentId, bookType model.BookType) *OrderBook {
	return &OrderBook{
		InstrumentId: instrumentId,
		BookType:     bookType,
		bids:         newLadder(model.Buy),
		asks:         newLadder(model.Sell),
		log: logger.WithComponent("order_book").
			WithField("instrument", instrumentId.String()),
	}
}

// Count returns the number of deltas applied since creation or last clear.
func (b *OrderBook) Count() uint64 { return b.count }

// Sequence returns the venue sequence of the last applied delta.
func (b *OrderBook) Sequence() uint64 { return b.seqNum }

// TsLast returns ts_event of the last applied delta.
func (b *OrderBook) TsLast() model.UnixNanos { return b.tsLast }

// ApplyDelta applies a single mutation. Deltas whose sequence is lower than
// the last applied one are rejected and logged; equal sequences are valid
// because every delta of one venue frame carries that frame's update id.
func (b *OrderBook) ApplyDelta(delta model.OrderBookDelta) error {
	if delta.InstrumentId != b.InstrumentId {
		return fmt.Errorf("delta instrument %s does not match book %s",
			delta.InstrumentId, b.InstrumentId)
	}
	if delta.Action != model.BookClear && delta.Sequence != 0 && delta.Sequence < b.seqNum {
		b.log.WithFields(logger.Fields{
			"sequence":      delta.Sequence,
			"book_sequence": b.seqNum,
		}).Warn("Rejecting stale book delta")
		return fmt.Errorf("stale delta sequence %d (book at %d)", delta.Sequence, b.seqNum)
	}

	switch delta.Action {
	case model.BookClear:
		b.bids.clear()
		b.asks.clear()
	case model.BookAdd:
		b.sideFor(delta.Order.Side).add(delta.Order)
	case model.BookUpdate:
		b.sideFor(delta.Order.Side).update(delta.Order, b.BookType == model.L3_MBO)
	case model.BookDelete:
		side := b.sideFor(delta.Order.Side)
		if b.BookType == model.L3_MBO {
			side.deleteOrder(delta.Order.OrderId)
		} else {
			side.deleteLevel(delta.Order.Price)
		}
	default:
		return fmt.Errorf("unknown book action %v", delta.Action)
	}

	if b.BookType == model.L1_MBP {
		b.truncateToTop()
	}
	b.seqNum = delta.Sequence
	b.tsLast = delta.TsEvent
	b.count++
	return nil
}

// ApplyDeltas applies a batch atomically in order. The caller buffers until
// FlagLast when batch semantics are required upstream.
func (b *OrderBook) ApplyDeltas(deltas model.OrderBookDeltas) error {
	for _, delta := range deltas.Deltas {
		if err := b.ApplyDelta(delta); err != nil {
			return err
		}
	}
	return nil
}

func (b *OrderBook) sideFor(side model.OrderSide) *ladder {
	if side == model.Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) truncateToTop() {
	if len(b.bids.levels) > 1 {
		b.bids.levels = b.bids.levels[:1]
	}
	if len(b.asks.levels) > 1 {
		b.asks.levels = b.asks.levels[:1]
	}
}

// BestBid returns the highest resting bid.
func (b *OrderBook) BestBid() (model.Price, bool) {
	if top := b.bids.top(); top != nil {
		return top.price, true
	}
	return model.Price{}, false
}

// BestAsk returns the lowest resting ask.
func (b *OrderBook) BestAsk() (model.Price, bool) {
	if top := b.asks.top(); top != nil {
		return top.price, true
	}
	return model.Price{}, false
}

// BestBidSize returns the size resting at the best bid.
func (b *OrderBook) BestBidSize() (model.Quantity, bool) {
	if top := b.bids.top(); top != nil {
		return top.size(), true
	}
	return model.Quantity{}, false
}

// BestAskSize returns the size resting at the best ask.
func (b *OrderBook) BestAskSize() (model.Quantity, bool) {
	if top := b.asks.top(); top != nil {
		return top.size(), true
	}
	return model.Quantity{}, false
}

// Spread returns ask minus bid, when both sides are present.
func (b *OrderBook) Spread() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Float64() - bid.Float64(), true
}

// MidPrice returns the midpoint of the touch, when both sides are present.
func (b *OrderBook) MidPrice() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (ask.Float64() + bid.Float64()) / 2, true
}

// Snapshot returns up to depth levels per side, best first. depth of zero
// means all levels.
func (b *OrderBook) Snapshot(depth int) model.BookSnapshot {
	return model.BookSnapshot{
		InstrumentId: b.InstrumentId,
		Bids:         levelsOut(b.bids, depth),
		Asks:         levelsOut(b.asks, depth),
		Sequence:     b.seqNum,
		TsEvent:      b.tsLast,
		TsInit:       b.tsLast,
	}
}

// Depth10 returns the fixed ten-level view with per-level order counts.
func (b *OrderBook) Depth10() model.OrderBookDepth10 {
	depth := model.OrderBookDepth10{
		InstrumentId: b.InstrumentId,
		Sequence:     b.seqNum,
		TsEvent:      b.tsLast,
		TsInit:       b.tsLast,
	}
	for i, lvl := range b.bids.levels {
		if i >= 10 {
			break
		}
		depth.Bids[i] = model.BookLevel{Price: lvl.price, Size: lvl.size()}
		depth.BidCounts[i] = lvl.orderCount()
	}
	for i, lvl := range b.asks.levels {
		if i >= 10 {
			break
		}
		depth.Asks[i] = model.BookLevel{Price: lvl.price, Size: lvl.size()}
		depth.AskCounts[i] = lvl.orderCount()
	}
	return depth
}

// BidLevels exposes the bid side best first, for fill walks.
func (b *OrderBook) BidLevels() []model.BookLevel { return levelsOut(b.bids, 0) }

// AskLevels exposes the ask side best first, for fill walks.
func (b *OrderBook) AskLevels() []model.BookLevel { return levelsOut(b.asks, 0) }

func levelsOut(l *ladder, depth int) []model.BookLevel {
	n := len(l.levels)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]model.BookLevel, n)
	for i := 0; i < n; i++ {
		out[i] = model.BookLevel{Price: l.levels[i].price, Size: l.levels[i].size()}
	}
	return out
}

// UpdateQuote overwrites the touch from a top-of-book quote, for L1 books
// maintained from quote streams.
func (b *OrderBook) UpdateQuote(quote model.QuoteTick) {
	b.bids.clear()
	b.asks.clear()
	b.bids.add(model.BookOrder{Side: model.Buy, Price: quote.BidPrice, Size: quote.BidSize})
	b.asks.add(model.BookOrder{Side: model.Sell, Price: quote.AskPrice, Size: quote.AskSize})
	b.tsLast = quote.TsEvent
	b.count++
}
