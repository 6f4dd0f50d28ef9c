package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantflow/internal/model"
)

var instrument = model.NewInstrumentId("BTCUSDT", "BYBIT")

func delta(action model.BookAction, side model.OrderSide, px float64, size float64, seq uint64) model.OrderBookDelta {
	return model.OrderBookDelta{
		InstrumentId: instrument,
		Action:       action,
		Order: model.BookOrder{
			Side:  side,
			Price: model.NewPrice(px, 2),
			Size:  model.NewQuantity(size, 0),
		},
		Sequence: seq,
		TsEvent:  model.UnixNanos(seq),
	}
}

func TestL2BookBestAndSpread(t *testing.T) {
	b := NewOrderBook(instrument, model.L2_MBP)

	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, 100.00, 5, 1)))
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, 99.50, 3, 2)))
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Sell, 100.50, 2, 3)))
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Sell, 101.00, 4, 4)))

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, model.NewPrice(100.00, 2), bid)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, model.NewPrice(100.50, 2), ask)

	spread, ok := b.Spread()
	require.True(t, ok)
	assert.InDelta(t, 0.50, spread, 1e-9)
	assert.EqualValues(t, 4, b.Count())
}

func TestStaleSequenceRejected(t *testing.T) {
	b := NewOrderBook(instrument, model.L2_MBP)

	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, 100, 5, 10)))
	err := b.ApplyDelta(delta(model.BookAdd, model.Buy, 99, 5, 9))
	assert.Error(t, err)
	assert.EqualValues(t, 1, b.Count())

	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, 99, 5, 11)))
	assert.EqualValues(t, 2, b.Count())
}

func TestEqualSequenceAppliesWithinFrame(t *testing.T) {
	b := NewOrderBook(instrument, model.L2_MBP)

	// Levels of one venue frame all carry the frame's update id.
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, 100, 5, 42)))
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, 99.50, 3, 42)))
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Sell, 100.50, 2, 42)))
	assert.EqualValues(t, 3, b.Count())
	assert.EqualValues(t, 42, b.Sequence())

	_, ok := b.BestBid()
	assert.True(t, ok)
	_, ok = b.BestAsk()
	assert.True(t, ok)
}

func TestClearResetsBook(t *testing.T) {
	b := NewOrderBook(instrument, model.L2_MBP)
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, 100, 5, 1)))
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Sell, 101, 5, 2)))

	require.NoError(t, b.ApplyDelta(delta(model.BookClear, model.Buy, 0, 0, 3)))
	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestL2UpdateAndDeleteLevels(t *testing.T) {
	b := NewOrderBook(instrument, model.L2_MBP)
	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Sell, 101, 5, 1)))
	require.NoError(t, b.ApplyDelta(delta(model.BookUpdate, model.Sell, 101, 9, 2)))

	size, ok := b.BestAskSize()
	require.True(t, ok)
	assert.Equal(t, model.NewQuantity(9, 0), size)

	// Zero-size update removes the level.
	require.NoError(t, b.ApplyDelta(delta(model.BookUpdate, model.Sell, 101, 0, 3)))
	_, ok = b.BestAsk()
	assert.False(t, ok)

	require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Sell, 102, 5, 4)))
	require.NoError(t, b.ApplyDelta(delta(model.BookDelete, model.Sell, 102, 0, 5)))
	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestL3TracksIndividualOrders(t *testing.T) {
	b := NewOrderBook(instrument, model.L3_MBO)

	d1 := delta(model.BookAdd, model.Buy, 100, 5, 1)
	d1.Order.OrderId = 11
	d2 := delta(model.BookAdd, model.Buy, 100, 3, 2)
	d2.Order.OrderId = 12
	require.NoError(t, b.ApplyDelta(d1))
	require.NoError(t, b.ApplyDelta(d2))

	size, ok := b.BestBidSize()
	require.True(t, ok)
	assert.Equal(t, model.NewQuantity(8, 0), size)
	assert.EqualValues(t, 2, b.Depth10().BidCounts[0])

	d3 := delta(model.BookDelete, model.Buy, 100, 0, 3)
	d3.Order.OrderId = 11
	require.NoError(t, b.ApplyDelta(d3))

	size, ok = b.BestBidSize()
	require.True(t, ok)
	assert.Equal(t, model.NewQuantity(3, 0), size)
	assert.EqualValues(t, 1, b.Depth10().BidCounts[0])
}

func TestSnapshotDepthBounded(t *testing.T) {
	b := NewOrderBook(instrument, model.L2_MBP)
	seq := uint64(1)
	for _, px := range []float64{100, 99, 98, 97} {
		require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Buy, px, 1, seq)))
		seq++
	}
	for _, px := range []float64{101, 102, 103} {
		require.NoError(t, b.ApplyDelta(delta(model.BookAdd, model.Sell, px, 1, seq)))
		seq++
	}

	snap := b.Snapshot(2)
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, model.NewPrice(100, 2), snap.Bids[0].Price)
	assert.Equal(t, model.NewPrice(99, 2), snap.Bids[1].Price)
	assert.Equal(t, model.NewPrice(101, 2), snap.Asks[0].Price)
}

func TestL1KeepsTouchOnly(t *testing.T) {
	b := NewOrderBook(instrument, model.L1_MBP)
	b.UpdateQuote(model.QuoteTick{
		InstrumentId: instrument,
		BidPrice:     model.NewPrice(100, 2),
		AskPrice:     model.NewPrice(100.5, 2),
		BidSize:      model.NewQuantity(5, 0),
		AskSize:      model.NewQuantity(3, 0),
		TsEvent:      1,
	})

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, model.NewPrice(100, 2), bid)
	snap := b.Snapshot(0)
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 1)
}
