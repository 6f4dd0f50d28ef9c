package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantflow/internal/clock"
	"quantflow/internal/model"
)

func mustBarType(t *testing.T, s string) model.BarType {
	t.Helper()
	bt, err := model.ParseBarType(s)
	require.NoError(t, err)
	return bt
}

func trade(px, size float64, ts uint64) model.TradeTick {
	return model.TradeTick{
		InstrumentId: model.NewInstrumentId("BTCUSDT", "BYBIT"),
		Price:        model.NewPrice(px, 2),
		Size:         model.NewQuantity(size, 0),
		TsEvent:      model.UnixNanos(ts),
	}
}

func TestTickBarAggregator(t *testing.T) {
	bt := mustBarType(t, "BTCUSDT.BYBIT-3-TICK-LAST-INTERNAL")
	var bars []model.Bar
	a := NewTickBarAggregator(bt, func(b model.Bar) { bars = append(bars, b) })

	a.HandleTrade(trade(100, 1, 1))
	a.HandleTrade(trade(102, 1, 2))
	assert.Empty(t, bars)
	a.HandleTrade(trade(99, 1, 3))

	require.Len(t, bars, 1)
	assert.Equal(t, model.NewPrice(100, 2), bars[0].Open)
	assert.Equal(t, model.NewPrice(102, 2), bars[0].High)
	assert.Equal(t, model.NewPrice(99, 2), bars[0].Low)
	assert.Equal(t, model.NewPrice(99, 2), bars[0].Close)
	assert.Equal(t, model.NewQuantity(3, 0), bars[0].Volume)
}

func TestVolumeBarAggregatorSplitsLargeTrade(t *testing.T) {
	bt := mustBarType(t, "BTCUSDT.BYBIT-10-VOLUME-LAST-INTERNAL")
	var bars []model.Bar
	a := NewVolumeBarAggregator(bt, func(b model.Bar) { bars = append(bars, b) })

	// 25 units at once: two full bars and 5 left over.
	a.HandleTrade(trade(100, 25, 1))
	require.Len(t, bars, 2)
	assert.Equal(t, model.NewQuantity(10, 0), bars[0].Volume)
	assert.Equal(t, model.NewQuantity(10, 0), bars[1].Volume)

	a.HandleTrade(trade(101, 5, 2))
	require.Len(t, bars, 3)
	assert.Equal(t, model.NewQuantity(10, 0), bars[2].Volume)
}

func TestValueBarAggregator(t *testing.T) {
	bt := mustBarType(t, "BTCUSDT.BYBIT-1000-VALUE-LAST-INTERNAL")
	var bars []model.Bar
	a := NewValueBarAggregator(bt, func(b model.Bar) { bars = append(bars, b) })

	// 5 @ 100 = 500 notional, half a bar.
	a.HandleTrade(trade(100, 5, 1))
	assert.Empty(t, bars)
	// Another 500 completes it.
	a.HandleTrade(trade(100, 5, 2))
	require.Len(t, bars, 1)
	assert.Equal(t, model.NewQuantity(10, 0), bars[0].Volume)
}

func TestRenkoBricksBothDirections(t *testing.T) {
	bt := mustBarType(t, "BTCUSDT.BYBIT-5-RENKO-LAST-INTERNAL")
	var bars []model.Bar
	a := NewRenkoBarAggregator(bt, model.NewPrice(1, 2), func(b model.Bar) { bars = append(bars, b) })

	a.HandleTrade(trade(100, 1, 1)) // seed
	a.HandleTrade(trade(111, 1, 2)) // two up bricks (100->105->110)
	require.Len(t, bars, 2)
	assert.Equal(t, model.NewPrice(105, 2), bars[0].Close)
	assert.Equal(t, model.NewPrice(110, 2), bars[1].Close)

	a.HandleTrade(trade(104, 1, 3)) // one down brick (110->105)
	require.Len(t, bars, 3)
	assert.Equal(t, bars[1].Close, bars[2].Open)
}

func TestGetTimeBarStartAlignment(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 37, 42, 0, time.UTC) // Wednesday

	spec := model.BarSpecification{Step: 1, Aggregation: model.Minute, PriceType: model.Last}
	start, err := GetTimeBarStart(now, spec, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 37, 0, 0, time.UTC), start)

	spec = model.BarSpecification{Step: 5, Aggregation: model.Minute, PriceType: model.Last}
	start, err = GetTimeBarStart(now, spec, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 35, 0, 0, time.UTC), start)

	spec = model.BarSpecification{Step: 1, Aggregation: model.Hour, PriceType: model.Last}
	start, err = GetTimeBarStart(now, spec, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC), start)

	spec = model.BarSpecification{Step: 1, Aggregation: model.Week, PriceType: model.Last}
	start, err = GetTimeBarStart(now, spec, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)

	spec = model.BarSpecification{Step: 3, Aggregation: model.Month, PriceType: model.Last}
	start, err = GetTimeBarStart(now, spec, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestTimeBarAggregatorRightOpen(t *testing.T) {
	c := clock.NewTestClock()
	c.SetTime(0)
	bt := mustBarType(t, "BTCUSDT.BYBIT-1-MINUTE-LAST-INTERNAL")
	var bars []model.Bar
	cfg := TimeBarConfig{TimestampOnClose: true, IntervalType: RightOpen}
	a, err := NewTimeBarAggregator(c, bt, cfg, func(b model.Bar) { bars = append(bars, b) })
	require.NoError(t, err)

	minute := uint64(60 * 1_000_000_000)
	a.HandleTrade(trade(100, 1, 10))
	a.HandleTrade(trade(105, 1, 30))
	// Boundary trade opens the next bar under right-open intervals.
	a.HandleTrade(trade(110, 1, minute))

	require.Len(t, bars, 1)
	assert.Equal(t, model.NewPrice(100, 2), bars[0].Open)
	assert.Equal(t, model.NewPrice(105, 2), bars[0].Close)
	assert.EqualValues(t, minute, bars[0].TsEvent)
	assert.Equal(t, model.NewQuantity(2, 0), bars[0].Volume)
}

func TestTimeBarAggregatorBuildWithNoUpdates(t *testing.T) {
	c := clock.NewTestClock()
	c.SetTime(0)
	bt := mustBarType(t, "BTCUSDT.BYBIT-1-MINUTE-LAST-INTERNAL")
	var bars []model.Bar
	cfg := TimeBarConfig{BuildWithNoUpdates: true, TimestampOnClose: true}
	a, err := NewTimeBarAggregator(c, bt, cfg, func(b model.Bar) { bars = append(bars, b) })
	require.NoError(t, err)

	minute := uint64(60 * 1_000_000_000)
	a.HandleTrade(trade(100, 1, 10))
	// Three minutes later: one traded bar plus two empty carries.
	a.HandleTrade(trade(101, 1, 3*minute+10))

	require.Len(t, bars, 3)
	assert.Equal(t, model.NewPrice(100, 2), bars[1].Open)
	assert.Equal(t, model.NewPrice(100, 2), bars[1].Close)
	assert.True(t, bars[1].Volume.IsZero())
}

func TestValidateComposite(t *testing.T) {
	good := mustBarType(t, "BTCUSDT.BYBIT-5-MINUTE-LAST-INTERNAL@1-MINUTE-EXTERNAL")
	assert.NoError(t, ValidateComposite(good))

	bad := mustBarType(t, "BTCUSDT.BYBIT-5-MINUTE-LAST-INTERNAL@2-MINUTE-EXTERNAL")
	assert.Error(t, ValidateComposite(bad))

	inverted := mustBarType(t, "BTCUSDT.BYBIT-1-MINUTE-LAST-INTERNAL@5-MINUTE-EXTERNAL")
	assert.Error(t, ValidateComposite(inverted))
}
