package bybit

import (
	"context"
	"fmt"
	"sync"

	"quantflow/config"
	"quantflow/internal/clock"
	"quantflow/internal/engine"
	"quantflow/internal/model"
	"quantflow/logger"
)

// defaultBookDepth is the orderbook stream depth subscribed per instrument.
const defaultBookDepth = 50

// DataClient adapts the websocket client to the data engine: commands become
// wire topics, decoded frames become normalized model events.
type DataClient struct {
	clientId string
	venue    string
	clk      clock.Clock
	process  func(data interface{})
	log      *logger.Entry

	client *Client

	mu        sync.Mutex
	klineBars map[string]model.BarType
}

// NewDataClient builds the adapter. process receives every normalized event,
// typically DataEngine.Process.
func NewDataClient(clientId string, cfg config.VenueConfig, clk clock.Clock, process func(data interface{})) *DataClient {
	d := &DataClient{
		clientId:  clientId,
		venue:     cfg.Name,
		clk:       clk,
		process:   process,
		log:       logger.WithComponent("bybit_data_client"),
		klineBars: make(map[string]model.BarType),
	}
	d.client = NewClient(cfg, d.onMessage)
	return d
}

// Connect establishes the stream; see Client.Connect.
func (d *DataClient) Connect(ctx context.Context) error {
	return d.client.Connect(ctx)
}

// Close shuts the underlying stream down.
func (d *DataClient) Close() error {
	return d.client.Close()
}

func (d *DataClient) ClientId() string { return d.clientId }
func (d *DataClient) Venue() string    { return d.venue }

// Subscribe maps one engine subscription onto wire topics. Index symbols
// (leading dot) are only served on the ticker channel, so book and trade
// subscriptions for them are dropped.
func (d *DataClient) Subscribe(cmd engine.Subscribe) error {
	topics, err := d.topicsFor(cmd.Kind, cmd.InstrumentId, cmd.BarType, cmd.Depth)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return nil
	}
	d.client.Subscribe(topics)
	return nil
}

// Unsubscribe tears the wire topics down symmetrically.
func (d *DataClient) Unsubscribe(cmd engine.Unsubscribe) error {
	topics, err := d.topicsFor(cmd.Kind, cmd.InstrumentId, cmd.BarType, 0)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return nil
	}
	if cmd.Kind == engine.SubBars {
		d.mu.Lock()
		for _, topic := range topics {
			delete(d.klineBars, topic)
		}
		d.mu.Unlock()
	}
	d.client.Unsubscribe(topics)
	return nil
}

// Request is unsupported on the stream transport.
func (d *DataClient) Request(cmd engine.Request) error {
	return fmt.Errorf("historical requests are not supported on the %s stream", d.venue)
}

func (d *DataClient) topicsFor(kind engine.SubscriptionKind, id model.InstrumentId, barType model.BarType, depth int) ([]string, error) {
	switch kind {
	case engine.SubBookDeltas:
		if IsIndexSymbol(id.Symbol) {
			d.log.WithField("symbol", id.Symbol).Debug("Dropping book subscription for index symbol")
			return nil, nil
		}
		if depth <= 0 {
			depth = defaultBookDepth
		}
		return []string{OrderbookTopic(depth, id.Symbol)}, nil
	case engine.SubTrades:
		if IsIndexSymbol(id.Symbol) {
			d.log.WithField("symbol", id.Symbol).Debug("Dropping trade subscription for index symbol")
			return nil, nil
		}
		return []string{TradeTopic(id.Symbol)}, nil
	case engine.SubQuotes, engine.SubInstrument, engine.SubMarkPrices, engine.SubIndexPrices, engine.SubFundingRates:
		return []string{TickerTopic(id.Symbol)}, nil
	case engine.SubBars:
		interval, err := KlineInterval(barType.Spec)
		if err != nil {
			return nil, err
		}
		topic := KlineTopic(interval, barType.InstrumentId.Symbol)
		d.mu.Lock()
		d.klineBars[topic] = barType
		d.mu.Unlock()
		return []string{topic}, nil
	case engine.SubBookSnapshots:
		// Snapshots are cache derived; no wire stream exists for them.
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported subscription kind %s", kind)
	}
}

// onMessage normalizes one decoded frame and forwards it to the engine.
func (d *DataClient) onMessage(msg Message) {
	tsInit := d.clk.TimestampNs()
	switch m := msg.(type) {
	case OrderbookMessage:
		deltas, err := ParseOrderbook(m, d.venue, tsInit)
		if err != nil {
			d.log.WithError(err).Warn("Dropping orderbook frame")
			return
		}
		d.process(deltas)
	case TradeMessage:
		ticks, err := ParseTrades(m, d.venue, tsInit)
		if err != nil {
			d.log.WithError(err).Warn("Dropping trade frame")
			return
		}
		for _, tick := range ticks {
			d.process(tick)
		}
	case QuoteMessage:
		quote, err := ParseQuote(m, d.venue, tsInit)
		if err != nil {
			d.log.WithError(err).Warn("Dropping quote frame")
			return
		}
		d.process(quote)
	case TickerMessage:
		for _, update := range ParseTicker(m, d.venue, tsInit) {
			d.process(update)
		}
	case KlineMessage:
		d.mu.Lock()
		barType, ok := d.klineBars[m.Topic]
		d.mu.Unlock()
		if !ok {
			d.log.WithField("topic", m.Topic).Debug("Kline frame without bar subscription")
			return
		}
		bars, err := ParseKlines(m, barType, tsInit)
		if err != nil {
			d.log.WithError(err).Warn("Dropping kline frame")
			return
		}
		for _, bar := range bars {
			d.process(bar)
		}
	}
}
