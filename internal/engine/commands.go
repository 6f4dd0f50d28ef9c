package engine

import (
	"time"

	"quantflow/internal/model"
)

// SubscriptionKind selects which data stream a command addresses.
type SubscriptionKind int

const (
	SubBookDeltas SubscriptionKind = iota + 1
	SubBookSnapshots
	SubQuotes
	SubTrades
	SubBars
	SubInstrument
	SubMarkPrices
	SubIndexPrices
	SubFundingRates
)

func (k SubscriptionKind) String() string {
	switch k {
	case SubBookDeltas:
		return "BOOK_DELTAS"
	case SubBookSnapshots:
		return "BOOK_SNAPSHOTS"
	case SubQuotes:
		return "QUOTES"
	case SubTrades:
		return "TRADES"
	case SubBars:
		return "BARS"
	case SubInstrument:
		return "INSTRUMENT"
	case SubMarkPrices:
		return "MARK_PRICES"
	case SubIndexPrices:
		return "INDEX_PRICES"
	case SubFundingRates:
		return "FUNDING_RATES"
	default:
		return "UNKNOWN"
	}
}

// Command is the sealed set the data engine executes.
type Command interface {
	isCommand()
}

// Subscribe starts a data stream. ClientId wins over Venue for routing; both
// empty falls back to the default client.
type Subscribe struct {
	ClientId     string
	Venue        string
	Kind         SubscriptionKind
	InstrumentId model.InstrumentId
	BarType      model.BarType
	// Interval applies to book snapshot subscriptions.
	Interval time.Duration
	// Depth bounds snapshot levels; zero means 10.
	Depth int
}

// Unsubscribe tears a stream down symmetrically to Subscribe.
type Unsubscribe struct {
	ClientId     string
	Venue        string
	Kind         SubscriptionKind
	InstrumentId model.InstrumentId
	BarType      model.BarType
	Interval     time.Duration
}

// RequestKind selects what a data request fetches.
type RequestKind int

const (
	ReqInstruments RequestKind = iota + 1
	ReqQuotes
	ReqTrades
	ReqBars
)

// Request asks an adapter for historical or reference data. The response
// comes back through DataEngine.OnResponse keyed by CorrelationId.
type Request struct {
	CorrelationId string
	ClientId      string
	Venue         string
	Kind          RequestKind
	InstrumentId  model.InstrumentId
	BarType       model.BarType
	Start         model.UnixNanos
	End           model.UnixNanos
	Limit         int
}

func (Subscribe) isCommand()   {}
func (Unsubscribe) isCommand() {}
func (Request) isCommand()     {}

// DataResponse carries requested data back to the registered handler.
type DataResponse struct {
	CorrelationId string
	Data          interface{}
}

// DataClient is the adapter surface the engine routes commands to.
type DataClient interface {
	ClientId() string
	Venue() string
	Subscribe(cmd Subscribe) error
	Unsubscribe(cmd Unsubscribe) error
	Request(cmd Request) error
}
