package bybit

import (
	"fmt"
	"strconv"

	"quantflow/internal/model"
)

const msToNs = 1_000_000

// ParseOrderbook converts an orderbook frame into a delta batch. Snapshots
// open with a Clear delta; the final delta carries the last-in-batch flag.
func ParseOrderbook(msg OrderbookMessage, venue string, tsInit model.UnixNanos) (model.OrderBookDeltas, error) {
	instrumentId := model.NewInstrumentId(msg.Data.Symbol, venue)
	tsEvent := model.UnixNanos(msg.Ts * msToNs)
	sequence := uint64(msg.Data.UpdateId)

	var deltas []model.OrderBookDelta
	if msg.Snapshot {
		deltas = append(deltas, model.OrderBookDelta{
			InstrumentId: instrumentId,
			Action:       model.BookClear,
			Flags:        model.FlagSnapshot,
			Sequence:     sequence,
			TsEvent:      tsEvent,
			TsInit:       tsInit,
		})
	}

	appendSide := func(levels [][]string, side model.OrderSide) error {
		for _, level := range levels {
			if len(level) < 2 {
				return fmt.Errorf("malformed %s level: %v", side, level)
			}
			price, err := model.PriceFromString(level[0])
			if err != nil {
				return fmt.Errorf("parse level price: %w", err)
			}
			size, err := model.QuantityFromString(level[1])
			if err != nil {
				return fmt.Errorf("parse level size: %w", err)
			}
			action := model.BookUpdate
			if msg.Snapshot {
				action = model.BookAdd
			} else if size.Raw == 0 {
				action = model.BookDelete
			}
			deltas = append(deltas, model.OrderBookDelta{
				InstrumentId: instrumentId,
				Action:       action,
				Order:        model.BookOrder{Side: side, Price: price, Size: size},
				Sequence:     sequence,
				TsEvent:      tsEvent,
				TsInit:       tsInit,
			})
		}
		return nil
	}
	if err := appendSide(msg.Data.Bids, model.Buy); err != nil {
		return model.OrderBookDeltas{}, err
	}
	if err := appendSide(msg.Data.Asks, model.Sell); err != nil {
		return model.OrderBookDeltas{}, err
	}
	if len(deltas) == 0 {
		return model.OrderBookDeltas{}, fmt.Errorf("orderbook frame for %s carried no levels", msg.Data.Symbol)
	}
	deltas[len(deltas)-1].Flags |= model.FlagLast
	return model.OrderBookDeltas{InstrumentId: instrumentId, Deltas: deltas}, nil
}

// ParseTrades converts the public trade frame into trade ticks.
func ParseTrades(msg TradeMessage, venue string, tsInit model.UnixNanos) ([]model.TradeTick, error) {
	ticks := make([]model.TradeTick, 0, len(msg.Trades))
	for _, t := range msg.Trades {
		price, err := model.PriceFromString(t.Price)
		if err != nil {
			return nil, fmt.Errorf("parse trade price: %w", err)
		}
		size, err := model.QuantityFromString(t.Size)
		if err != nil {
			return nil, fmt.Errorf("parse trade size: %w", err)
		}
		aggressor := model.NoAggressor
		switch t.Side {
		case "Buy":
			aggressor = model.Buyer
		case "Sell":
			aggressor = model.Seller
		}
		ticks = append(ticks, model.TradeTick{
			InstrumentId:  model.NewInstrumentId(t.Symbol, venue),
			Price:         price,
			Size:          size,
			AggressorSide: aggressor,
			TradeId:       model.TradeId(t.TradeId),
			TsEvent:       model.UnixNanos(t.Timestamp * msToNs),
			TsInit:        tsInit,
		})
	}
	return ticks, nil
}

// ParseQuote converts a ticker frame carrying top-of-book fields into a
// quote tick.
func ParseQuote(msg QuoteMessage, venue string, tsInit model.UnixNanos) (model.QuoteTick, error) {
	bidPrice, err := model.PriceFromString(msg.Data.Bid1Price)
	if err != nil {
		return model.QuoteTick{}, fmt.Errorf("parse bid price: %w", err)
	}
	askPrice, err := model.PriceFromString(msg.Data.Ask1Price)
	if err != nil {
		return model.QuoteTick{}, fmt.Errorf("parse ask price: %w", err)
	}
	bidSize, err := model.QuantityFromString(msg.Data.Bid1Size)
	if err != nil {
		return model.QuoteTick{}, fmt.Errorf("parse bid size: %w", err)
	}
	askSize, err := model.QuantityFromString(msg.Data.Ask1Size)
	if err != nil {
		return model.QuoteTick{}, fmt.Errorf("parse ask size: %w", err)
	}
	return model.QuoteTick{
		InstrumentId: model.NewInstrumentId(msg.Symbol, venue),
		BidPrice:     bidPrice,
		AskPrice:     askPrice,
		BidSize:      bidSize,
		AskSize:      askSize,
		TsEvent:      model.UnixNanos(msg.Ts * msToNs),
		TsInit:       tsInit,
	}, nil
}

// ParseTicker extracts the mark price, index price and funding rate updates
// a ticker frame carries. Absent fields produce no update.
func ParseTicker(msg TickerMessage, venue string, tsInit model.UnixNanos) []any {
	instrumentId := model.NewInstrumentId(msg.Symbol, venue)
	tsEvent := model.UnixNanos(msg.Ts * msToNs)
	var out []any
	if msg.Data.MarkPrice != "" {
		if px, err := model.PriceFromString(msg.Data.MarkPrice); err == nil {
			out = append(out, model.MarkPriceUpdate{
				InstrumentId: instrumentId, Value: px, TsEvent: tsEvent, TsInit: tsInit,
			})
		}
	}
	if msg.Data.IndexPrice != "" {
		if px, err := model.PriceFromString(msg.Data.IndexPrice); err == nil {
			out = append(out, model.IndexPriceUpdate{
				InstrumentId: instrumentId, Value: px, TsEvent: tsEvent, TsInit: tsInit,
			})
		}
	}
	if msg.Data.FundingRate != "" {
		if rate, err := strconv.ParseFloat(msg.Data.FundingRate, 64); err == nil {
			update := model.FundingRateUpdate{
				InstrumentId: instrumentId,
				Rate:         rate,
				TsEvent:      tsEvent,
				TsInit:       tsInit,
			}
			if next, err := strconv.ParseInt(msg.Data.NextFundingTs, 10, 64); err == nil {
				update.NextFundingNs = model.UnixNanos(next * msToNs)
			}
			out = append(out, update)
		}
	}
	return out
}

// ParseKlines converts confirmed kline entries into bars of the given type.
// Unconfirmed (still forming) entries are skipped.
func ParseKlines(msg KlineMessage, barType model.BarType, tsInit model.UnixNanos) ([]model.Bar, error) {
	var bars []model.Bar
	for _, k := range msg.Bars {
		if !k.Confirm {
			continue
		}
		open, err := model.PriceFromString(k.Open)
		if err != nil {
			return nil, fmt.Errorf("parse kline open: %w", err)
		}
		high, err := model.PriceFromString(k.High)
		if err != nil {
			return nil, fmt.Errorf("parse kline high: %w", err)
		}
		low, err := model.PriceFromString(k.Low)
		if err != nil {
			return nil, fmt.Errorf("parse kline low: %w", err)
		}
		closePx, err := model.PriceFromString(k.Close)
		if err != nil {
			return nil, fmt.Errorf("parse kline close: %w", err)
		}
		volume, err := model.QuantityFromString(k.Volume)
		if err != nil {
			return nil, fmt.Errorf("parse kline volume: %w", err)
		}
		// The close timestamp is the end of the interval, exclusive.
		tsEvent := model.UnixNanos((k.End + 1) * msToNs)
		bar, err := model.NewBar(barType, open, high, low, closePx, volume, tsEvent, tsInit)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
