package model

import "fmt"

// OrderSide is the side of an order or fill.
type OrderSide uint8

const (
	NoOrderSide OrderSide = iota
	Buy
	Sell
)

func (s OrderSide) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "NO_ORDER_SIDE"
	}
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return NoOrderSide
	}
}

// OrderType is the execution instruction type.
type OrderType uint8

const (
	Market OrderType = iota
	Limit
	StopMarket
	StopLimit
	MarketIfTouched
	LimitIfTouched
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case StopMarket:
		return "STOP_MARKET"
	case StopLimit:
		return "STOP_LIMIT"
	case MarketIfTouched:
		return "MARKET_IF_TOUCHED"
	case LimitIfTouched:
		return "LIMIT_IF_TOUCHED"
	default:
		return fmt.Sprintf("ORDER_TYPE(%d)", t)
	}
}

// TimeInForce controls how long an order remains in force.
type TimeInForce uint8

const (
	GTC TimeInForce = iota
	IOC
	FOK
	GTD
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTD:
		return "GTD"
	default:
		return fmt.Sprintf("TIME_IN_FORCE(%d)", t)
	}
}

// OrderStatus is derived exclusively from the order's event log.
type OrderStatus uint8

const (
	OrderInitialized OrderStatus = iota
	OrderSubmitted
	OrderAccepted
	OrderTriggered
	OrderPartiallyFilled
	OrderFilledStatus
	OrderCanceledStatus
	OrderExpiredStatus
	OrderRejectedStatus
)

func (s OrderStatus) String() string {
	switch s {
	case OrderInitialized:
		return "INITIALIZED"
	case OrderSubmitted:
		return "SUBMITTED"
	case OrderAccepted:
		return "ACCEPTED"
	case OrderTriggered:
		return "TRIGGERED"
	case OrderPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderFilledStatus:
		return "FILLED"
	case OrderCanceledStatus:
		return "CANCELED"
	case OrderExpiredStatus:
		return "EXPIRED"
	case OrderRejectedStatus:
		return "REJECTED"
	default:
		return fmt.Sprintf("ORDER_STATUS(%d)", s)
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilledStatus, OrderCanceledStatus, OrderExpiredStatus, OrderRejectedStatus:
		return true
	default:
		return false
	}
}

// ContingencyType links orders into OCO/OTO groups.
type ContingencyType uint8

const (
	NoContingency ContingencyType = iota
	OCO
	OTO
)

func (c ContingencyType) String() string {
	switch c {
	case OCO:
		return "OCO"
	case OTO:
		return "OTO"
	default:
		return "NO_CONTINGENCY"
	}
}

// LiquiditySide classifies a fill for fee purposes.
type LiquiditySide uint8

const (
	NoLiquiditySide LiquiditySide = iota
	Maker
	Taker
)

func (l LiquiditySide) String() string {
	switch l {
	case Maker:
		return "MAKER"
	case Taker:
		return "TAKER"
	default:
		return "NO_LIQUIDITY_SIDE"
	}
}

// BookType is the order book granularity.
type BookType uint8

const (
	L1_MBP BookType = iota + 1
	L2_MBP
	L3_MBO
)

func (b BookType) String() string {
	switch b {
	case L1_MBP:
		return "L1_MBP"
	case L2_MBP:
		return "L2_MBP"
	case L3_MBO:
		return "L3_MBO"
	default:
		return fmt.Sprintf("BOOK_TYPE(%d)", b)
	}
}

// BookAction mutates an order book.
type BookAction uint8

const (
	BookAdd BookAction = iota + 1
	BookUpdate
	BookDelete
	BookClear
)

func (a BookAction) String() string {
	switch a {
	case BookAdd:
		return "ADD"
	case BookUpdate:
		return "UPDATE"
	case BookDelete:
		return "DELETE"
	case BookClear:
		return "CLEAR"
	default:
		return fmt.Sprintf("BOOK_ACTION(%d)", a)
	}
}

// BarAggregation is the binning rule for bars.
type BarAggregation uint8

const (
	Millisecond BarAggregation = iota
	Second
	Minute
	Hour
	Day
	Week
	Month
	Tick
	Volume
	Value
	Renko
)

var barAggregationNames = map[BarAggregation]string{
	Millisecond: "MILLISECOND",
	Second:      "SECOND",
	Minute:      "MINUTE",
	Hour:        "HOUR",
	Day:         "DAY",
	Week:        "WEEK",
	Month:       "MONTH",
	Tick:        "TICK",
	Volume:      "VOLUME",
	Value:       "VALUE",
	Renko:       "RENKO",
}

func (a BarAggregation) String() string {
	if s, ok := barAggregationNames[a]; ok {
		return s
	}
	return fmt.Sprintf("BAR_AGGREGATION(%d)", a)
}

// ParseBarAggregation parses the canonical upper-case name.
func ParseBarAggregation(s string) (BarAggregation, error) {
	for agg, name := range barAggregationNames {
		if name == s {
			return agg, nil
		}
	}
	return 0, fmt.Errorf("invalid bar aggregation %q", s)
}

// IsTimeBased reports whether the aggregation bins by wall time.
func (a BarAggregation) IsTimeBased() bool {
	switch a {
	case Millisecond, Second, Minute, Hour, Day, Week, Month:
		return true
	default:
		return false
	}
}

// PriceType selects which price stream feeds an aggregation.
type PriceType uint8

const (
	Bid PriceType = iota
	Ask
	Mid
	Last
	Mark
)

var priceTypeNames = map[PriceType]string{
	Bid:  "BID",
	Ask:  "ASK",
	Mid:  "MID",
	Last: "LAST",
	Mark: "MARK",
}

func (p PriceType) String() string {
	if s, ok := priceTypeNames[p]; ok {
		return s
	}
	return fmt.Sprintf("PRICE_TYPE(%d)", p)
}

// ParsePriceType parses the canonical upper-case name.
func ParsePriceType(s string) (PriceType, error) {
	for pt, name := range priceTypeNames {
		if name == s {
			return pt, nil
		}
	}
	return 0, fmt.Errorf("invalid price type %q", s)
}

// AggregationSource indicates where bars are aggregated.
type AggregationSource uint8

const (
	External AggregationSource = iota
	Internal
)

func (a AggregationSource) String() string {
	if a == Internal {
		return "INTERNAL"
	}
	return "EXTERNAL"
}

// ParseAggregationSource parses the canonical upper-case name.
func ParseAggregationSource(s string) (AggregationSource, error) {
	switch s {
	case "EXTERNAL":
		return External, nil
	case "INTERNAL":
		return Internal, nil
	default:
		return 0, fmt.Errorf("invalid aggregation source %q", s)
	}
}

// AccountType distinguishes cash from margin accounts.
type AccountType uint8

const (
	CashAccount AccountType = iota
	MarginAccount
)

func (a AccountType) String() string {
	if a == MarginAccount {
		return "MARGIN"
	}
	return "CASH"
}

// InstrumentClass is the broad instrument category.
type InstrumentClass uint8

const (
	Spot InstrumentClass = iota
	Perpetual
	FutureContract
	IndexInstrument
)

func (c InstrumentClass) String() string {
	switch c {
	case Perpetual:
		return "PERPETUAL"
	case FutureContract:
		return "FUTURE"
	case IndexInstrument:
		return "INDEX"
	default:
		return "SPOT"
	}
}

// IsDerivative reports whether short inventory is possible.
func (c InstrumentClass) IsDerivative() bool {
	return c == Perpetual || c == FutureContract
}

// PositionSide is the direction of an open position.
type PositionSide uint8

const (
	Flat PositionSide = iota
	Long
	Short
)

func (p PositionSide) String() string {
	switch p {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// AggressorSide is the initiating side of a trade.
type AggressorSide uint8

const (
	NoAggressor AggressorSide = iota
	Buyer
	Seller
)

func (a AggressorSide) String() string {
	switch a {
	case Buyer:
		return "BUYER"
	case Seller:
		return "SELLER"
	default:
		return "NO_AGGRESSOR"
	}
}
