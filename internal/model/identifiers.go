package model

import (
	"fmt"
	"strings"
)

// UnixNanos is a timestamp in nanoseconds since the Unix epoch.
type UnixNanos uint64

// SaturatingSub subtracts n, clamping at zero.
func (u UnixNanos) SaturatingSub(n uint64) UnixNanos {
	if uint64(u) < n {
		return 0
	}
	return UnixNanos(uint64(u) - n)
}

// InstrumentId uniquely identifies an instrument on a venue.
//
// Symbols may be composite (sub-parts separated by '-') and may carry a
// leading '.' to denote an index, which never publishes trades or quotes.
type InstrumentId struct {
	Symbol string
	Venue  string
}

func NewInstrumentId(symbol, venue string) InstrumentId {
	return InstrumentId{Symbol: symbol, Venue: venue}
}

// ParseInstrumentId parses the canonical "{symbol}.{venue}" form. The venue
// is everything after the last dot so composite symbols keep their dots.
func ParseInstrumentId(s string) (InstrumentId, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return InstrumentId{}, fmt.Errorf("invalid instrument id %q: expected '{symbol}.{venue}'", s)
	}
	return InstrumentId{Symbol: s[:idx], Venue: s[idx+1:]}, nil
}

func (i InstrumentId) String() string {
	return i.Symbol + "." + i.Venue
}

// IsIndex reports whether the symbol denotes an index series.
func (i InstrumentId) IsIndex() bool {
	return strings.HasPrefix(i.Symbol, ".")
}

// IsZero reports whether the id is unset.
func (i InstrumentId) IsZero() bool {
	return i.Symbol == "" && i.Venue == ""
}

// Less provides the semantic ordering: venue first, then symbol.
func (i InstrumentId) Less(other InstrumentId) bool {
	if i.Venue != other.Venue {
		return i.Venue < other.Venue
	}
	return i.Symbol < other.Symbol
}

// ClientOrderId identifies an order on the client side.
type ClientOrderId string

func (c ClientOrderId) String() string { return string(c) }

// VenueOrderId identifies an order on the venue side.
type VenueOrderId string

func (v VenueOrderId) String() string { return string(v) }

// TradeId identifies a single fill.
type TradeId string

func (t TradeId) String() string { return string(t) }

// PositionId identifies a position.
type PositionId string

func (p PositionId) String() string { return string(p) }

// AccountId identifies a venue account.
type AccountId string

func (a AccountId) String() string { return string(a) }

// ClientId identifies a data or execution client (adapter).
type ClientId string

func (c ClientId) String() string { return string(c) }
