package engine

import (
	"fmt"
	"strings"

	"quantflow/config"
	"quantflow/internal/aggregation"
	"quantflow/internal/book"
	"quantflow/internal/bus"
	"quantflow/internal/cache"
	"quantflow/internal/clock"
	"quantflow/internal/model"
	"quantflow/logger"
)

// enginePriority puts engine-owned handlers (book updaters, aggregator feeds)
// ahead of user handlers on shared topics.
const enginePriority = 10

type aggregatorEntry struct {
	agg      aggregation.Aggregator
	upstream *bus.Subscription
}

// DataEngine routes subscribe/unsubscribe/request commands to adapters,
// owns per-instrument books and bar aggregators, and publishes normalized
// events onto the message bus. All mutation happens on the dispatch
// goroutine.
type DataEngine struct {
	bus   *bus.MessageBus
	cache *cache.Cache
	clk   clock.Clock
	cfg   config.DataEngineConfig
	log   *logger.Entry

	clients       map[string]DataClient
	routing       map[string]string
	defaultClient string
	external      map[string]struct{}

	// mirror suppresses duplicate downstream subscription calls.
	mirror       map[string]struct{}
	bookUpdaters map[model.InstrumentId]*bus.Subscription
	snapTimers   map[string]string
	aggregators  map[string]*aggregatorEntry

	deltaBuffers map[model.InstrumentId][]model.OrderBookDelta
	lastBars     map[string]model.Bar
}

func NewDataEngine(b *bus.MessageBus, c *cache.Cache, clk clock.Clock, cfg config.DataEngineConfig) *DataEngine {
	external := make(map[string]struct{}, len(cfg.ExternalClients))
	for _, id := range cfg.ExternalClients {
		external[id] = struct{}{}
	}
	return &DataEngine{
		bus:          b,
		cache:        c,
		clk:          clk,
		cfg:          cfg,
		log:          logger.WithComponent("data_engine"),
		clients:      make(map[string]DataClient),
		routing:      make(map[string]string),
		external:     external,
		mirror:       make(map[string]struct{}),
		bookUpdaters: make(map[model.InstrumentId]*bus.Subscription),
		snapTimers:   make(map[string]string),
		aggregators:  make(map[string]*aggregatorEntry),
		deltaBuffers: make(map[model.InstrumentId][]model.OrderBookDelta),
		lastBars:     make(map[string]model.Bar),
	}
}

// RegisterClient adds an adapter and routes its venue to it.
func (e *DataEngine) RegisterClient(client DataClient) {
	e.clients[client.ClientId()] = client
	if client.Venue() != "" {
		e.routing[client.Venue()] = client.ClientId()
	}
	e.log.WithFields(logger.Fields{
		"client_id": client.ClientId(),
		"venue":     client.Venue(),
	}).Info("Registered data client")
}

// RegisterDefaultClient nominates the fallback adapter for commands that
// name neither a client nor a routable venue.
func (e *DataEngine) RegisterDefaultClient(client DataClient) {
	e.RegisterClient(client)
	e.defaultClient = client.ClientId()
}

// resolveClient picks the adapter for a command. Explicit client id wins,
// then venue routing, then the default client. External client ids resolve
// to no adapter without error.
func (e *DataEngine) resolveClient(clientId, venue string) (DataClient, error) {
	if clientId != "" {
		if client, ok := e.clients[clientId]; ok {
			return client, nil
		}
		if _, ok := e.external[clientId]; ok {
			return nil, nil
		}
		return nil, fmt.Errorf("no data client registered for client id %q", clientId)
	}
	if venue != "" {
		if id, ok := e.routing[venue]; ok {
			return e.clients[id], nil
		}
	}
	if e.defaultClient != "" {
		return e.clients[e.defaultClient], nil
	}
	return nil, fmt.Errorf("no data client for venue %q and no default client", venue)
}

// Execute runs one command. Subscriptions are idempotent.
func (e *DataEngine) Execute(cmd Command) error {
	switch c := cmd.(type) {
	case Subscribe:
		return e.executeSubscribe(c)
	case Unsubscribe:
		return e.executeUnsubscribe(c)
	case Request:
		return e.executeRequest(c)
	default:
		return fmt.Errorf("unknown command type %T", cmd)
	}
}

func subscriptionKey(kind SubscriptionKind, cmd Subscribe) string {
	switch kind {
	case SubBars:
		return fmt.Sprintf("%s:%s", kind, cmd.BarType)
	case SubBookSnapshots:
		return fmt.Sprintf("%s:%s:%d", kind, cmd.InstrumentId, cmd.Interval.Milliseconds())
	default:
		return fmt.Sprintf("%s:%s", kind, cmd.InstrumentId)
	}
}

func (e *DataEngine) executeSubscribe(cmd Subscribe) error {
	key := subscriptionKey(cmd.Kind, cmd)
	if _, ok := e.mirror[key]; ok {
		return nil
	}
	client, err := e.resolveClient(cmd.ClientId, cmd.Venue)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case SubBookDeltas:
		if err := e.subscribeBookDeltas(cmd); err != nil {
			return err
		}
	case SubBookSnapshots:
		if err := e.subscribeBookSnapshots(cmd); err != nil {
			return err
		}
	case SubBars:
		done, err := e.subscribeBars(cmd, client)
		if err != nil {
			return err
		}
		if done {
			e.mirror[key] = struct{}{}
			return nil
		}
	}

	if client != nil {
		if err := client.Subscribe(cmd); err != nil {
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
	}
	e.mirror[key] = struct{}{}
	e.log.WithField("subscription", key).Debug("Subscribed")
	return nil
}

func (e *DataEngine) subscribeBookDeltas(cmd Subscribe) error {
	id := cmd.InstrumentId
	if inst, ok := e.cache.Instrument(id); ok && inst.IsSynthetic() {
		return fmt.Errorf("cannot subscribe book deltas for synthetic instrument %s", id)
	}
	if _, ok := e.cache.Book(id); !ok {
		e.cache.AddBook(book.NewOrderBook(id, model.L2_MBP))
	}
	if _, ok := e.bookUpdaters[id]; !ok {
		// The updater runs at engine priority so the cached book is current
		// before any user handler observes the deltas.
		sub := e.bus.Subscribe(bus.BookDeltasTopic(id), func(msg interface{}) {
			deltas, ok := msg.(model.OrderBookDeltas)
			if !ok {
				return
			}
			if b, ok := e.cache.Book(id); ok {
				if err := b.ApplyDeltas(deltas); err != nil {
					e.log.WithError(err).WithField("instrument", id.String()).
						Warn("Book update failed")
				}
			}
		}, enginePriority)
		e.bookUpdaters[id] = sub
	}
	return nil
}

func (e *DataEngine) subscribeBookSnapshots(cmd Subscribe) error {
	if cmd.Interval <= 0 {
		return fmt.Errorf("book snapshot interval must be positive")
	}
	id := cmd.InstrumentId
	if _, ok := e.cache.Book(id); !ok {
		e.cache.AddBook(book.NewOrderBook(id, model.L2_MBP))
	}
	depth := cmd.Depth
	if depth <= 0 {
		depth = 10
	}
	topic := bus.BookSnapshotsTopic(id, cmd.Interval)
	timerName := "snapshots-" + topic
	intervalNs := uint64(cmd.Interval.Nanoseconds())

	// Align the first fire to the next interval boundary.
	now := uint64(e.clk.TimestampNs())
	start := model.UnixNanos((now/intervalNs + 1) * intervalNs)
	err := e.clk.SetTimer(timerName, intervalNs, start, 0, func(ev clock.TimeEvent) {
		if b, ok := e.cache.Book(id); ok {
			e.bus.Publish(topic, b.Snapshot(depth))
		}
	})
	if err != nil {
		return err
	}
	e.snapTimers[topic] = timerName
	return nil
}

// subscribeBars wires a bar stream. The returned done flag is true when the
// subscription is fully handled locally (internal aggregation) and no wire
// subscription should be sent.
func (e *DataEngine) subscribeBars(cmd Subscribe, client DataClient) (bool, error) {
	barType := cmd.BarType
	if barType.Source == model.External {
		return false, nil
	}

	key := barType.String()
	if _, ok := e.aggregators[key]; ok {
		return true, nil
	}

	instrument, _ := e.cache.Instrument(barType.InstrumentId)
	agg, err := aggregation.NewAggregator(e.clk, barType, instrument, e.timeBarConfig(barType), func(bar model.Bar) {
		e.publishBar(bar)
	})
	if err != nil {
		return true, err
	}

	var upstreamTopic string
	var handler bus.Handler
	upstreamCmd := Subscribe{ClientId: cmd.ClientId, Venue: cmd.Venue, InstrumentId: barType.InstrumentId}
	switch {
	case barType.IsComposite():
		upstreamTopic = bus.BarsTopic(barType.Composite())
		handler = func(msg interface{}) {
			if bar, ok := msg.(model.Bar); ok {
				agg.HandleBar(bar)
			}
		}
		upstreamCmd.Kind = SubBars
		upstreamCmd.BarType = barType.Composite()
	case barType.Spec.PriceType == model.Last:
		upstreamTopic = bus.TradesTopic(barType.InstrumentId)
		handler = func(msg interface{}) {
			if trade, ok := msg.(model.TradeTick); ok {
				agg.HandleTrade(trade)
			}
		}
		upstreamCmd.Kind = SubTrades
	default:
		upstreamTopic = bus.QuotesTopic(barType.InstrumentId)
		handler = func(msg interface{}) {
			if quote, ok := msg.(model.QuoteTick); ok {
				agg.HandleQuote(quote)
			}
		}
		upstreamCmd.Kind = SubQuotes
	}

	sub := e.bus.Subscribe(upstreamTopic, handler, enginePriority)
	e.aggregators[key] = &aggregatorEntry{agg: agg, upstream: sub}

	if timeAgg, ok := agg.(*aggregation.TimeBarAggregator); ok {
		if err := timeAgg.StartTimer(); err != nil {
			e.log.WithError(err).WithField("bar_type", key).Warn("Bar timer not started")
		}
	}

	// The aggregator needs its upstream stream flowing from the venue.
	if err := e.executeSubscribe(upstreamCmd); err != nil {
		e.log.WithError(err).WithField("bar_type", key).
			Warn("Upstream subscription for internal bars failed")
	}
	return true, nil
}

func (e *DataEngine) timeBarConfig(barType model.BarType) aggregation.TimeBarConfig {
	cfg := aggregation.TimeBarConfig{
		BuildWithNoUpdates: e.cfg.TimeBarsBuildWithNoUpdates,
		TimestampOnClose:   e.cfg.TimeBarsTimestampOnClose,
		IntervalType:       aggregation.IntervalType(e.cfg.TimeBarsIntervalType),
	}
	if origin, ok := e.cfg.TimeBarsOrigins[strings.ToLower(barType.Spec.Aggregation.String())]; ok {
		cfg.Origin = origin
	}
	return cfg
}

func (e *DataEngine) executeUnsubscribe(cmd Unsubscribe) error {
	key := subscriptionKey(cmd.Kind, Subscribe{
		Kind: cmd.Kind, InstrumentId: cmd.InstrumentId, BarType: cmd.BarType, Interval: cmd.Interval,
	})
	if _, ok := e.mirror[key]; !ok {
		return nil
	}
	client, err := e.resolveClient(cmd.ClientId, cmd.Venue)
	if err != nil {
		return err
	}

	wire := true
	switch cmd.Kind {
	case SubBookDeltas:
		if sub, ok := e.bookUpdaters[cmd.InstrumentId]; ok {
			e.bus.Unsubscribe(sub)
			delete(e.bookUpdaters, cmd.InstrumentId)
		}
		delete(e.deltaBuffers, cmd.InstrumentId)
	case SubBookSnapshots:
		topic := bus.BookSnapshotsTopic(cmd.InstrumentId, cmd.Interval)
		if timerName, ok := e.snapTimers[topic]; ok {
			e.clk.CancelTimer(timerName)
			delete(e.snapTimers, topic)
		}
		wire = false
	case SubBars:
		if entry, ok := e.aggregators[cmd.BarType.String()]; ok {
			e.bus.Unsubscribe(entry.upstream)
			entry.agg.Stop()
			delete(e.aggregators, cmd.BarType.String())
			delete(e.lastBars, cmd.BarType.String())
			wire = false
		}
	}

	if wire && client != nil {
		if err := client.Unsubscribe(cmd); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", key, err)
		}
	}
	delete(e.mirror, key)
	e.log.WithField("subscription", key).Debug("Unsubscribed")
	return nil
}

func (e *DataEngine) executeRequest(cmd Request) error {
	if cmd.CorrelationId == "" {
		return fmt.Errorf("data request requires a correlation id")
	}
	client, err := e.resolveClient(cmd.ClientId, cmd.Venue)
	if err != nil {
		return err
	}
	if client == nil {
		// External clients answer out of band through OnResponse.
		return nil
	}
	return client.Request(cmd)
}

// OnResponse mirrors requested data into the cache, then routes the response
// to the handler registered under the correlation id.
func (e *DataEngine) OnResponse(resp DataResponse) {
	switch data := resp.Data.(type) {
	case model.Instrument:
		e.cache.AddInstrument(data)
	case []model.Instrument:
		for _, inst := range data {
			e.cache.AddInstrument(inst)
		}
	case []model.QuoteTick:
		for _, quote := range data {
			e.cache.AddQuote(quote)
		}
	case []model.TradeTick:
		for _, trade := range data {
			e.cache.AddTrade(trade)
		}
	case []model.Bar:
		for _, bar := range data {
			e.cache.AddBar(bar)
		}
	}
	e.bus.SendResponse(resp.CorrelationId, resp)
}

// Process ingests one normalized event: cache write first, then publish.
// Cache insert problems are logged, never fatal to the publish.
func (e *DataEngine) Process(data interface{}) {
	switch d := data.(type) {
	case model.QuoteTick:
		e.cache.AddQuote(d)
		e.bus.Publish(bus.QuotesTopic(d.InstrumentId), d)
	case model.TradeTick:
		e.cache.AddTrade(d)
		e.bus.Publish(bus.TradesTopic(d.InstrumentId), d)
	case model.Bar:
		e.publishBar(d)
	case model.OrderBookDeltas:
		e.processDeltas(d)
	case model.OrderBookDepth10:
		e.bus.Publish(bus.BookDepth10Topic(d.InstrumentId), d)
	case model.Instrument:
		e.cache.AddInstrument(d)
		e.bus.Publish(bus.InstrumentTopic(d.Id), d)
	case model.MarkPriceUpdate:
		e.bus.Publish(bus.MarkPriceTopic(d.InstrumentId), d)
	case model.IndexPriceUpdate:
		e.bus.Publish(bus.IndexPriceTopic(d.InstrumentId), d)
	case model.FundingRateUpdate:
		e.bus.Publish(bus.FundingRateTopic(d.InstrumentId), d)
	case model.InstrumentClose:
		e.bus.Publish(bus.InstrumentCloseTopic(d.InstrumentId), d)
	default:
		e.log.WithField("type", fmt.Sprintf("%T", data)).Warn("Unroutable data event")
	}
}

// processDeltas publishes a delta batch, accumulating partial batches until
// the last-in-batch flag when buffering is enabled.
func (e *DataEngine) processDeltas(deltas model.OrderBookDeltas) {
	if !e.cfg.BufferDeltas {
		e.bus.Publish(bus.BookDeltasTopic(deltas.InstrumentId), deltas)
		return
	}
	id := deltas.InstrumentId
	e.deltaBuffers[id] = append(e.deltaBuffers[id], deltas.Deltas...)
	if len(deltas.Deltas) == 0 || !deltas.Deltas[len(deltas.Deltas)-1].IsLast() {
		return
	}
	merged := model.OrderBookDeltas{InstrumentId: id, Deltas: e.deltaBuffers[id]}
	delete(e.deltaBuffers, id)
	e.bus.Publish(bus.BookDeltasTopic(id), merged)
}

// publishBar applies the sequence validation rule, caches and publishes.
func (e *DataEngine) publishBar(bar model.Bar) {
	key := bar.BarType.String()
	if e.cfg.ValidateDataSequence {
		if last, ok := e.lastBars[key]; ok {
			if bar.TsEvent < last.TsEvent || bar.TsInit < last.TsInit {
				e.log.WithFields(logger.Fields{
					"bar_type": key,
					"ts_event": uint64(bar.TsEvent),
					"last":     uint64(last.TsEvent),
				}).Warn("Dropping out-of-sequence bar")
				return
			}
		}
	}
	e.lastBars[key] = bar
	e.cache.AddBar(bar)
	e.bus.Publish(bus.BarsTopic(bar.BarType), bar)
}

// Stop cancels snapshot timers and stops every aggregator.
func (e *DataEngine) Stop() {
	for topic, timerName := range e.snapTimers {
		e.clk.CancelTimer(timerName)
		delete(e.snapTimers, topic)
	}
	for key, entry := range e.aggregators {
		e.bus.Unsubscribe(entry.upstream)
		entry.agg.Stop()
		delete(e.aggregators, key)
	}
	e.log.Info("Data engine stopped")
}

// SubscriptionCount reports how many distinct subscriptions are mirrored.
func (e *DataEngine) SubscriptionCount() int {
	return len(e.mirror)
}
