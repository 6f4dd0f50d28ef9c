package main

import (
	"flag"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"quantflow/config"
	"quantflow/internal/bus"
	"quantflow/internal/cache"
	"quantflow/internal/catalog"
	"quantflow/internal/clock"
	"quantflow/internal/engine"
	"quantflow/internal/model"
	"quantflow/internal/simulation"
	"quantflow/logger"
)

type replayEvent struct {
	ts    model.UnixNanos
	quote *model.QuoteTick
	trade *model.TradeTick
}

func main() {
	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	symbol := flag.String("symbol", "BTCUSDT", "instrument symbol to replay")
	start := flag.Uint64("start", 0, "replay window start, unix nanoseconds (0 = unbounded)")
	end := flag.Uint64("end", 0, "replay window end, unix nanoseconds (0 = unbounded)")
	pricePrecision := flag.Uint("price-precision", 2, "instrument price precision")
	sizePrecision := flag.Uint("size-precision", 3, "instrument size precision")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		logger.WithError(err).Fatal("Failed to configure logging")
	}
	log := logger.WithComponent("backtest")

	instrumentId := model.NewInstrumentId(*symbol, cfg.Venue.Name)
	instrument := model.Instrument{
		Id:             instrumentId,
		Class:          model.Perpetual,
		QuoteCurrency:  "USDT",
		PricePrecision: uint8(*pricePrecision),
		SizePrecision:  uint8(*sizePrecision),
		PriceIncrement: model.Price{Raw: 1, Precision: uint8(*pricePrecision)},
		SizeIncrement:  model.Quantity{Raw: 1, Precision: uint8(*sizePrecision)},
		MakerFee:       0.0002,
		TakerFee:       0.00055,
		Multiplier:     1,
	}

	messageBus := bus.NewMessageBus()
	dataCache := cache.NewCache()
	clk := clock.NewTestClock()
	dataCache.AddInstrument(instrument)

	dataEngine := engine.NewDataEngine(messageBus, dataCache, clk, cfg.DataEngine)
	defer dataEngine.Stop()

	exchange := simulation.NewSimulatedExchange(simulationConfig(cfg), clk, messageBus)
	if err := exchange.AddInstrument(instrument); err != nil {
		log.WithError(err).Fatal("Failed to add instrument")
	}

	// The exchange consumes the same normalized streams strategies see.
	messageBus.Subscribe(bus.QuotesTopic(instrumentId), func(msg interface{}) {
		if quote, ok := msg.(model.QuoteTick); ok {
			exchange.ProcessQuote(quote)
		}
	}, 0)
	messageBus.Subscribe(bus.TradesTopic(instrumentId), func(msg interface{}) {
		if trade, ok := msg.(model.TradeTick); ok {
			exchange.ProcessTrade(trade)
		}
	}, 0)

	events, err := loadEvents(cfg, instrument, *start, *end)
	if err != nil {
		log.WithError(err).Fatal("Failed to load catalog data")
	}
	if len(events) == 0 {
		log.Warn("No data in replay window")
		return
	}
	log.WithFields(logger.Fields{
		"instrument": instrumentId.String(),
		"events":     len(events),
	}).Info("Replay starting")

	for _, ev := range events {
		clk.AdvanceTime(ev.ts)
		switch {
		case ev.quote != nil:
			dataEngine.Process(*ev.quote)
		case ev.trade != nil:
			dataEngine.Process(*ev.trade)
		}
		exchange.Process(ev.ts)
	}
	log.WithField("final_ts", uint64(events[len(events)-1].ts)).Info("Replay finished")
}

func simulationConfig(cfg *config.Config) simulation.Config {
	accountType := model.CashAccount
	if strings.EqualFold(cfg.Simulation.AccountType, "margin") {
		accountType = model.MarginAccount
	}
	var balances []model.Money
	for _, s := range cfg.Simulation.StartingBalances {
		money, err := model.MoneyFromString(s)
		if err != nil {
			logger.WithError(err).Fatal("Invalid starting balance")
		}
		balances = append(balances, money)
	}
	return simulation.Config{
		Venue:             cfg.Venue.Name,
		AccountId:         model.AccountId(cfg.Venue.Name + "-SIM-001"),
		AccountType:       accountType,
		StartingBalances:  balances,
		DefaultLeverage:   cfg.Simulation.DefaultLeverage,
		FrozenAccount:     cfg.Simulation.FrozenAccount,
		BarExecution:      cfg.Simulation.BarExecution,
		RejectStopOrders:  cfg.Simulation.RejectStopOrders,
		SupportGtdOrders:  cfg.Simulation.SupportGTDOrders,
		SupportContingent: cfg.Simulation.SupportContingentOrders,
		UseReduceOnly:     cfg.Simulation.UseReduceOnly,
		UseMessageQueue:   cfg.Simulation.UseMessageQueue,
	}
}

// loadEvents reads quotes and trades from the catalog and merges them into a
// single ts_init-ordered stream.
func loadEvents(cfg *config.Config, instrument model.Instrument, start, end uint64) ([]replayEvent, error) {
	c := catalog.NewCatalog(cfg.Catalog.Root, cfg.Catalog.EnsureContiguous)

	var events []replayEvent
	quoteRows, err := c.ReadQuotes(instrument.Id, start, end)
	if err != nil {
		return nil, err
	}
	for _, r := range quoteRows {
		quote, err := catalog.RowToQuote(r, instrument.PricePrecision, instrument.SizePrecision)
		if err != nil {
			return nil, err
		}
		events = append(events, replayEvent{ts: quote.TsInit, quote: &quote})
	}

	tradeRows, err := c.ReadTrades(instrument.Id, start, end)
	if err != nil {
		return nil, err
	}
	for _, r := range tradeRows {
		trade, err := catalog.RowToTrade(r, instrument.PricePrecision, instrument.SizePrecision)
		if err != nil {
			return nil, err
		}
		events = append(events, replayEvent{ts: trade.TsInit, trade: &trade})
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].ts < events[j].ts })
	return events, nil
}
