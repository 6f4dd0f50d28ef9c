package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"quantflow/config"
	"quantflow/internal/bus"
	"quantflow/internal/cache"
	"quantflow/internal/clock"
	"quantflow/internal/engine"
	"quantflow/internal/model"
	"quantflow/internal/venue/bybit"
	"quantflow/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	flag.Parse()

	// Secrets come from the environment; .env is a development convenience.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		logger.WithError(err).Fatal("Failed to configure logging")
	}
	log := logger.WithComponent("main")
	log.WithFields(logger.Fields{
		"name":    cfg.Quantflow.Name,
		"version": cfg.Quantflow.Version,
		"venue":   cfg.Venue.Name,
	}).Info("Starting live node")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	messageBus := bus.NewMessageBus()
	dataCache := cache.NewCache()
	clk := clock.NewLiveClock()
	dataEngine := engine.NewDataEngine(messageBus, dataCache, clk, cfg.DataEngine)

	client := bybit.NewDataClient(cfg.Venue.Name+"-DATA", cfg.Venue, clk, dataEngine.Process)
	dataEngine.RegisterDefaultClient(client)

	if err := client.Connect(ctx); err != nil {
		log.WithError(err).Fatal("Venue connection failed")
	}
	defer client.Close()
	defer dataEngine.Stop()

	for _, symbol := range cfg.Venue.Symbols {
		id := model.NewInstrumentId(symbol, cfg.Venue.Name)
		subs := []engine.Subscribe{
			{Kind: engine.SubBookDeltas, InstrumentId: id, Depth: cfg.Venue.BookDepth},
			{Kind: engine.SubTrades, InstrumentId: id},
			{Kind: engine.SubQuotes, InstrumentId: id},
		}
		for _, sub := range subs {
			if err := dataEngine.Execute(sub); err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"symbol": symbol,
					"kind":   sub.Kind.String(),
				}).Error("Subscription failed")
			}
		}
	}
	log.WithField("symbols", len(cfg.Venue.Symbols)).Info("Subscriptions issued")

	<-ctx.Done()
	log.Info("Shutting down")
}

func handleShutdown(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	cancel()
}
