package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a fixed-point price with a per-instrument precision. Raw carries
// the mantissa scaled by 10^Precision so equal prices compare equal and map
// keys are cheap.
type Price struct {
	Raw       int64
	Precision uint8
}

// NewPrice quantizes value to the given precision.
func NewPrice(value float64, precision uint8) Price {
	d := decimal.NewFromFloat(value).Round(int32(precision))
	return Price{Raw: d.Shift(int32(precision)).IntPart(), Precision: precision}
}

// PriceFromDecimal quantizes d to the given precision.
func PriceFromDecimal(d decimal.Decimal, precision uint8) Price {
	return Price{Raw: d.Round(int32(precision)).Shift(int32(precision)).IntPart(), Precision: precision}
}

// PriceFromString parses a decimal string, inferring precision from the
// fractional digits present.
func PriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return PriceFromDecimal(d, inferPrecision(s)), nil
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.New(p.Raw, -int32(p.Precision))
}

func (p Price) Float64() float64 {
	f, _ := p.Decimal().Float64()
	return f
}

func (p Price) String() string {
	return p.Decimal().StringFixed(int32(p.Precision))
}

func (p Price) IsZero() bool { return p.Raw == 0 }

// Quantity is a fixed-point non-negative size with per-instrument precision.
type Quantity struct {
	Raw       uint64
	Precision uint8
}

// NewQuantity quantizes value to the given precision. Negative inputs clamp
// to zero.
func NewQuantity(value float64, precision uint8) Quantity {
	if value <= 0 {
		return Quantity{Precision: precision}
	}
	d := decimal.NewFromFloat(value).Round(int32(precision))
	return Quantity{Raw: uint64(d.Shift(int32(precision)).IntPart()), Precision: precision}
}

// QuantityFromDecimal quantizes d to the given precision.
func QuantityFromDecimal(d decimal.Decimal, precision uint8) Quantity {
	if d.IsNegative() {
		return Quantity{Precision: precision}
	}
	return Quantity{Raw: uint64(d.Round(int32(precision)).Shift(int32(precision)).IntPart()), Precision: precision}
}

// QuantityFromString parses a decimal string, inferring precision from the
// fractional digits present.
func QuantityFromString(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if d.IsNegative() {
		return Quantity{}, fmt.Errorf("invalid quantity %q: negative", s)
	}
	return QuantityFromDecimal(d, inferPrecision(s)), nil
}

func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q.Raw), -int32(q.Precision))
}

func (q Quantity) Float64() float64 {
	f, _ := q.Decimal().Float64()
	return f
}

func (q Quantity) String() string {
	return q.Decimal().StringFixed(int32(q.Precision))
}

func (q Quantity) IsZero() bool { return q.Raw == 0 }

// Sub subtracts other, clamping at zero.
func (q Quantity) Sub(other Quantity) Quantity {
	if other.Raw >= q.Raw {
		return Quantity{Precision: q.Precision}
	}
	return Quantity{Raw: q.Raw - other.Raw, Precision: q.Precision}
}

// Add returns the sum preserving q's precision.
func (q Quantity) Add(other Quantity) Quantity {
	return Quantity{Raw: q.Raw + other.Raw, Precision: q.Precision}
}

// Min returns the smaller of the two quantities.
func (q Quantity) Min(other Quantity) Quantity {
	if other.Raw < q.Raw {
		return other
	}
	return q
}

func inferPrecision(s string) uint8 {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return uint8(len(s) - i - 1)
	}
	return 0
}

// Money is an amount of a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// MoneyFromString parses "100.50 USDT" style strings.
func MoneyFromString(s string) (Money, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) != 2 {
		return Money{}, fmt.Errorf("invalid money %q: expected '{amount} {currency}'", s)
	}
	amount, err := decimal.NewFromString(parts[0])
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", parts[0], err)
	}
	return Money{Amount: amount, Currency: parts[1]}, nil
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}

// AccountBalance is the per-currency balance triple.
type AccountBalance struct {
	Currency string
	Total    decimal.Decimal
	Locked   decimal.Decimal
	Free     decimal.Decimal
}

// MarginBalance is the per-instrument margin pair.
type MarginBalance struct {
	InstrumentId InstrumentId
	Initial      decimal.Decimal
	Maintenance  decimal.Decimal
}
