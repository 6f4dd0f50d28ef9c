package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceFixedPoint(t *testing.T) {
	p := NewPrice(1.2345, 4)
	assert.Equal(t, int64(12345), p.Raw)
	assert.Equal(t, "1.2345", p.String())
	assert.InDelta(t, 1.2345, p.Float64(), 1e-9)

	// Equal prices compare equal as values.
	assert.Equal(t, NewPrice(50000.5, 1), NewPrice(50000.5, 1))
}

func TestPriceFromString(t *testing.T) {
	p, err := PriceFromString("100.25")
	require.NoError(t, err)
	assert.Equal(t, uint8(2), p.Precision)
	assert.Equal(t, int64(10025), p.Raw)

	p, err = PriceFromString("100")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), p.Precision)
	assert.Equal(t, int64(100), p.Raw)

	_, err = PriceFromString("not-a-price")
	assert.Error(t, err)
}

func TestQuantityClampsAtZero(t *testing.T) {
	q := NewQuantity(10, 0)
	assert.Equal(t, uint64(0), q.Sub(NewQuantity(15, 0)).Raw)
	assert.Equal(t, uint64(5), q.Sub(NewQuantity(5, 0)).Raw)
	assert.Equal(t, uint64(0), NewQuantity(-3, 0).Raw)

	_, err := QuantityFromString("-1")
	assert.Error(t, err)
}

func TestQuantityMin(t *testing.T) {
	a := NewQuantity(3, 1)
	b := NewQuantity(7, 1)
	assert.Equal(t, a, a.Min(b))
	assert.Equal(t, a, b.Min(a))
}

func TestMoneyFromString(t *testing.T) {
	m, err := MoneyFromString("100.50 USDT")
	require.NoError(t, err)
	assert.Equal(t, "USDT", m.Currency)
	assert.True(t, m.Amount.Equal(decimal.RequireFromString("100.50")))

	_, err = MoneyFromString("100.50")
	assert.Error(t, err)
}

func TestParseInstrumentId(t *testing.T) {
	id, err := ParseInstrumentId("BTCUSDT-PERP.BINANCE")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT-PERP", id.Symbol)
	assert.Equal(t, "BINANCE", id.Venue)
	assert.Equal(t, "BTCUSDT-PERP.BINANCE", id.String())

	id, err = ParseInstrumentId(".BTCUSDT.BYBIT")
	require.NoError(t, err)
	assert.Equal(t, ".BTCUSDT", id.Symbol)
	assert.True(t, id.IsIndex())

	for _, bad := range []string{"", "BTCUSDT", "BTCUSDT.", ".BYBIT"} {
		_, err := ParseInstrumentId(bad)
		assert.Error(t, err, bad)
	}
}

func TestBarOHLCValidation(t *testing.T) {
	bt, err := ParseBarType("BTCUSDT.BYBIT-1-MINUTE-LAST-EXTERNAL")
	require.NoError(t, err)

	_, err = NewBar(bt, NewPrice(10, 0), NewPrice(9, 0), NewPrice(8, 0), NewPrice(9, 0), NewQuantity(1, 0), 0, 0)
	assert.Error(t, err, "high below open must fail")

	_, err = NewBar(bt, NewPrice(10, 0), NewPrice(12, 0), NewPrice(11, 0), NewPrice(11, 0), NewQuantity(1, 0), 0, 0)
	assert.Error(t, err, "low above open must fail")

	bar, err := NewBar(bt, NewPrice(10, 0), NewPrice(12, 0), NewPrice(9, 0), NewPrice(11, 0), NewQuantity(5, 0), 100, 100)
	require.NoError(t, err)
	assert.Equal(t, NewPrice(11, 0), bar.Close)
}
