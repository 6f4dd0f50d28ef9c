package bus

import (
	"fmt"
	"time"

	"quantflow/internal/model"
)

// Topic derivation lives here so producers and consumers can never drift on
// the string format.

const ExecEngineProcessTopic = "exec_engine.process"

func BookDeltasTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.book.deltas.%s.%s", id.Venue, id.Symbol)
}

func BookDepth10Topic(id model.InstrumentId) string {
	return fmt.Sprintf("data.book.depth10.%s.%s", id.Venue, id.Symbol)
}

func BookSnapshotsTopic(id model.InstrumentId, interval time.Duration) string {
	return fmt.Sprintf("data.book.snapshots.%s.%s.%d", id.Venue, id.Symbol, interval.Milliseconds())
}

func QuotesTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.quotes.%s.%s", id.Venue, id.Symbol)
}

func TradesTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.trades.%s.%s", id.Venue, id.Symbol)
}

func BarsTopic(barType model.BarType) string {
	return fmt.Sprintf("data.bars.%s", barType)
}

func InstrumentTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.instrument.%s.%s", id.Venue, id.Symbol)
}

func MarkPriceTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.mark_price.%s.%s", id.Venue, id.Symbol)
}

func IndexPriceTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.index_price.%s.%s", id.Venue, id.Symbol)
}

func FundingRateTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.funding_rate.%s.%s", id.Venue, id.Symbol)
}

func InstrumentCloseTopic(id model.InstrumentId) string {
	return fmt.Sprintf("data.venue.close_price.%s.%s", id.Venue, id.Symbol)
}
