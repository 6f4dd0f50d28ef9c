package bybit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantflow/internal/book"
	"quantflow/internal/model"
)

func TestParseOrderbookSnapshot(t *testing.T) {
	msg := OrderbookMessage{
		Topic:    "orderbook.50.BTCUSDT",
		Symbol:   "BTCUSDT",
		Snapshot: true,
		Ts:       1000,
		Data: OrderbookData{
			Symbol:   "BTCUSDT",
			Bids:     [][]string{{"100.50", "2"}, {"100.00", "1"}},
			Asks:     [][]string{{"101.00", "3"}},
			UpdateId: 42,
		},
	}
	deltas, err := ParseOrderbook(msg, "BYBIT", 5)
	require.NoError(t, err)
	require.Len(t, deltas.Deltas, 4)

	first := deltas.Deltas[0]
	assert.Equal(t, model.BookClear, first.Action)
	assert.NotZero(t, first.Flags&model.FlagSnapshot)
	assert.EqualValues(t, 42, first.Sequence)
	assert.EqualValues(t, 1000*msToNs, first.TsEvent)

	last := deltas.Deltas[3]
	assert.Equal(t, model.BookAdd, last.Action)
	assert.True(t, last.IsLast())
	assert.Equal(t, model.Sell, last.Order.Side)
}

func TestParsedFrameAppliesToBook(t *testing.T) {
	id := model.NewInstrumentId("BTCUSDT", "BYBIT")
	b := book.NewOrderBook(id, model.L2_MBP)

	snapshot := OrderbookMessage{
		Symbol:   "BTCUSDT",
		Snapshot: true,
		Ts:       1000,
		Data: OrderbookData{
			Symbol:   "BTCUSDT",
			Bids:     [][]string{{"100.50", "2"}, {"100.00", "1"}},
			Asks:     [][]string{{"101.00", "3"}, {"101.50", "4"}},
			UpdateId: 42,
		},
	}
	deltas, err := ParseOrderbook(snapshot, "BYBIT", 5)
	require.NoError(t, err)
	require.NoError(t, b.ApplyDeltas(deltas))

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, model.NewPrice(100.50, 2), bid)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, model.NewPrice(101.00, 2), ask)
	assert.EqualValues(t, 42, b.Sequence())

	update := OrderbookMessage{
		Symbol: "BTCUSDT",
		Ts:     1100,
		Data: OrderbookData{
			Symbol:   "BTCUSDT",
			Bids:     [][]string{{"100.50", "0"}, {"100.25", "6"}},
			UpdateId: 43,
		},
	}
	deltas, err = ParseOrderbook(update, "BYBIT", 6)
	require.NoError(t, err)
	require.NoError(t, b.ApplyDeltas(deltas))

	bid, ok = b.BestBid()
	require.True(t, ok)
	assert.Equal(t, model.NewPrice(100.25, 2), bid)

	// A frame older than the book is rejected wholesale.
	stale := update
	stale.Data.UpdateId = 41
	deltas, err = ParseOrderbook(stale, "BYBIT", 7)
	require.NoError(t, err)
	assert.Error(t, b.ApplyDeltas(deltas))
}

func TestParseOrderbookDeltaZeroSizeDeletes(t *testing.T) {
	msg := OrderbookMessage{
		Symbol: "BTCUSDT",
		Ts:     2000,
		Data: OrderbookData{
			Symbol:   "BTCUSDT",
			Bids:     [][]string{{"100.50", "0"}},
			UpdateId: 43,
		},
	}
	deltas, err := ParseOrderbook(msg, "BYBIT", 5)
	require.NoError(t, err)
	require.Len(t, deltas.Deltas, 1)
	assert.Equal(t, model.BookDelete, deltas.Deltas[0].Action)
	assert.True(t, deltas.Deltas[0].IsLast())
}

func TestParseTrades(t *testing.T) {
	msg := TradeMessage{
		Symbol: "BTCUSDT",
		Trades: []TradeData{{
			Timestamp: 1672304486865,
			Symbol:    "BTCUSDT",
			Side:      "Sell",
			Size:      "0.001",
			Price:     "16578.50",
			TradeId:   "t-1",
		}},
	}
	ticks, err := ParseTrades(msg, "BYBIT", 9)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, model.Seller, ticks[0].AggressorSide)
	assert.Equal(t, model.TradeId("t-1"), ticks[0].TradeId)
	assert.EqualValues(t, uint8(2), ticks[0].Price.Precision)
}

func TestParseQuote(t *testing.T) {
	msg := QuoteMessage{
		Symbol: "BTCUSDT",
		Ts:     3000,
		Data: TickerData{
			Bid1Price: "16593.00",
			Bid1Size:  "1",
			Ask1Price: "16593.50",
			Ask1Size:  "2",
		},
	}
	q, err := ParseQuote(msg, "BYBIT", 7)
	require.NoError(t, err)
	assert.Equal(t, model.NewInstrumentId("BTCUSDT", "BYBIT"), q.InstrumentId)
	assert.Equal(t, "16593.00", q.BidPrice.String())
	assert.EqualValues(t, 3000*msToNs, q.TsEvent)
}

func TestParseTickerEmitsMarkIndexFunding(t *testing.T) {
	msg := TickerMessage{
		Symbol: "BTCUSDT",
		Ts:     4000,
		Data: TickerData{
			MarkPrice:     "16596.00",
			IndexPrice:    "16598.54",
			FundingRate:   "-0.000004",
			NextFundingTs: "1673280000000",
		},
	}
	updates := ParseTicker(msg, "BYBIT", 1)
	require.Len(t, updates, 3)

	mark, ok := updates[0].(model.MarkPriceUpdate)
	require.True(t, ok)
	assert.Equal(t, "16596.00", mark.Value.String())

	funding, ok := updates[2].(model.FundingRateUpdate)
	require.True(t, ok)
	assert.InDelta(t, -0.000004, funding.Rate, 1e-12)
	assert.EqualValues(t, uint64(1673280000000)*msToNs, funding.NextFundingNs)
}

func TestParseKlinesSkipsUnconfirmed(t *testing.T) {
	bt, err := model.ParseBarType("BTCUSDT.BYBIT-5-MINUTE-LAST-EXTERNAL")
	require.NoError(t, err)
	msg := KlineMessage{Bars: []KlineData{
		{Start: 0, End: 299999, Open: "100", High: "110", Low: "90", Close: "105", Volume: "2.5", Confirm: true},
		{Start: 300000, End: 599999, Open: "105", High: "106", Low: "104", Close: "105", Volume: "0.5", Confirm: false},
	}}
	bars, err := ParseKlines(msg, bt, 11)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.EqualValues(t, uint64(300000)*msToNs, bars[0].TsEvent)
}

func TestKlineIntervalMapping(t *testing.T) {
	spec := func(step int, agg model.BarAggregation) model.BarSpecification {
		return model.BarSpecification{Step: step, Aggregation: agg, PriceType: model.Last}
	}
	cases := map[string]model.BarSpecification{
		"1":   spec(1, model.Minute),
		"60":  spec(1, model.Hour),
		"240": spec(4, model.Hour),
		"D":   spec(1, model.Day),
		"W":   spec(1, model.Week),
		"M":   spec(1, model.Month),
	}
	for want, s := range cases {
		got, err := KlineInterval(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := KlineInterval(spec(7, model.Minute))
	assert.Error(t, err)
}

func TestBuildAuthSignature(t *testing.T) {
	// HMAC-SHA256("GET/realtime1700000000000") keyed by "secret".
	sig := BuildAuthSignature("secret", 1700000000000)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, BuildAuthSignature("secret", 1700000000000))
	assert.NotEqual(t, sig, BuildAuthSignature("other", 1700000000000))
}

func TestIsIndexSymbol(t *testing.T) {
	assert.True(t, IsIndexSymbol(".BTCUSDT"))
	assert.False(t, IsIndexSymbol("BTCUSDT"))
}
