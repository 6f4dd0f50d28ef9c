package model

import "fmt"

// Instrument is the tradable definition the engines validate against.
type Instrument struct {
	Id             InstrumentId
	Class          InstrumentClass
	BaseCurrency   string
	QuoteCurrency  string
	PricePrecision uint8
	SizePrecision  uint8
	PriceIncrement Price
	SizeIncrement  Quantity
	MakerFee       float64
	TakerFee       float64
	Multiplier     float64
	// ActivationNs / ExpirationNs bound the instrument's live window; zero
	// means unbounded on that end.
	ActivationNs UnixNanos
	ExpirationNs UnixNanos
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// IsSynthetic reports whether the instrument is a synthetic composite, which
// cannot be book-subscribed.
func (i Instrument) IsSynthetic() bool {
	return i.Id.Venue == "SYNTH"
}

// IsActiveAt reports whether ts falls inside the instrument's live window.
func (i Instrument) IsActiveAt(ts UnixNanos) bool {
	if i.ActivationNs != 0 && ts < i.ActivationNs {
		return false
	}
	if i.ExpirationNs != 0 && ts >= i.ExpirationNs {
		return false
	}
	return true
}

// MakePrice quantizes a price to the instrument's precision.
func (i Instrument) MakePrice(value float64) Price {
	return NewPrice(value, i.PricePrecision)
}

// MakeQty quantizes a quantity to the instrument's precision.
func (i Instrument) MakeQty(value float64) Quantity {
	return NewQuantity(value, i.SizePrecision)
}

func (i Instrument) String() string {
	return fmt.Sprintf("Instrument(%s, %s)", i.Id, i.Class)
}
