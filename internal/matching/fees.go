package matching

import (
	"github.com/shopspring/decimal"

	"quantflow/internal/model"
)

// FeeModel prices the commission of one fill.
type FeeModel interface {
	Commission(instrument model.Instrument, qty model.Quantity, px model.Price, side model.LiquiditySide) model.Money
}

// MakerTakerFeeModel charges notional times the instrument's maker or taker
// rate, in the quote currency.
type MakerTakerFeeModel struct{}

func (MakerTakerFeeModel) Commission(instrument model.Instrument, qty model.Quantity, px model.Price, side model.LiquiditySide) model.Money {
	rate := instrument.TakerFee
	if side == model.Maker {
		rate = instrument.MakerFee
	}
	notional := px.Decimal().Mul(qty.Decimal())
	if instrument.Multiplier > 0 && instrument.Multiplier != 1 {
		notional = notional.Mul(decimal.NewFromFloat(instrument.Multiplier))
	}
	return model.Money{
		Amount:   notional.Mul(decimal.NewFromFloat(rate)),
		Currency: instrument.QuoteCurrency,
	}
}

// FixedFeeModel charges a flat amount per fill, for venues with subscription
// pricing.
type FixedFeeModel struct {
	Fee model.Money
}

func (m FixedFeeModel) Commission(model.Instrument, model.Quantity, model.Price, model.LiquiditySide) model.Money {
	return m.Fee
}
