package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "tickflow/config"
	"tickflow/internal/analytics"
	"tickflow/internal/channel"
	"tickflow/internal/metrics"
	"tickflow/internal/symbols"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/processor"
	"tickflow/reader"
	"tickflow/reader/binance"
	"tickflow/reader/bitfinex"
	"tickflow/reader/coinbase"
	"tickflow/reader/kraken"
	"tickflow/reader/okx"
	"tickflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tickflow.Name,
		"version": cfg.Tickflow.Version,
	}).Info("starting tickflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	mapper, err := symbols.NewMapper(cfg.SymbolMappings)
	if err != nil {
		log.WithError(err).Error("failed to build symbol mapper")
		os.Exit(1)
	}

	if cfg.SymbolMappings.AutoDiscover {
		discoverSymbols(ctx, cfg, mapper, log)
	}

	channels := channel.NewChannels(cfg.Channels.MessageBuffer)
	defer channels.Close()

	go channels.StartMetricsReporting(ctx)

	m := metrics.New()
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg, m)
		if err := metricsServer.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start metrics server")
			os.Exit(1)
		}
	}

	var engine *analytics.Engine
	if cfg.Analytics.Enabled {
		engine = analytics.NewEngine(cfg.Analytics.LargeTradeThreshold, cfg.Analytics.ReportInterval)
		go engine.Run(ctx)
	}

	buffer := writer.NewDataBuffer(cfg.Recorder.DataPath)
	proc := processor.NewProcessor(cfg, channels, buffer, engine, m)
	if err := proc.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start processor")
		os.Exit(1)
	}

	runners := startRunners(ctx, cfg, channels, mapper, m, log)
	if len(runners) == 0 {
		log.WithComponent("main").Warn("no exchange connections configured")
	}

	var archiver *writer.Archiver
	if cfg.Storage.S3.Enabled {
		archiver, err = writer.NewArchiver(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 archiving disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		log.Info("stopping exchange runners")
		for _, r := range runners {
			r.Stop()
		}

		if archiver != nil {
			log.Info("stopping archiver")
			archiver.Stop()
		}

		log.Info("stopping processor")
		proc.Stop()

		if metricsServer != nil {
			log.Info("stopping metrics server")
			metricsServer.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("tickflow stopped")
}

type symbolDiscoverer interface {
	Discover(ctx context.Context) ([]models.Symbol, error)
}

// discoverSymbols fetches the tradable universe from the exchanges that offer
// a public listing endpoint, registers the exact mappings, and fills in any
// exchange whose symbol list was left empty in the config.
func discoverSymbols(ctx context.Context, cfg *appconfig.Config, mapper *symbols.Mapper, log *logger.Log) {
	sources := []struct {
		id      models.ExchangeID
		enabled bool
		symbols *[]string
		disc    symbolDiscoverer
	}{
		{models.Binance, cfg.Exchanges.Binance.Enabled, &cfg.Exchanges.Binance.Symbols, binance.NewDiscoverer(cfg.Exchanges.Binance.RestEndpoint)},
		{models.Coinbase, cfg.Exchanges.Coinbase.Enabled, &cfg.Exchanges.Coinbase.Symbols, coinbase.NewDiscoverer(cfg.Exchanges.Coinbase.RestEndpoint)},
		{models.Kraken, cfg.Exchanges.Kraken.Enabled, &cfg.Exchanges.Kraken.Symbols, kraken.NewDiscoverer(cfg.Exchanges.Kraken.RestEndpoint)},
		{models.OKX, cfg.Exchanges.Okx.Enabled, &cfg.Exchanges.Okx.Symbols, okx.NewDiscoverer(cfg.Exchanges.Okx.RestEndpoint)},
		{models.Bitfinex, cfg.Exchanges.Bitfinex.Enabled, &cfg.Exchanges.Bitfinex.Symbols, bitfinex.NewDiscoverer(cfg.Exchanges.Bitfinex.RestEndpoint)},
	}

	for _, src := range sources {
		if !src.enabled {
			continue
		}
		discovered, err := src.disc.Discover(ctx)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"exchange": src.id.String(),
			}).Warn("symbol discovery failed, using heuristic normalization")
			continue
		}
		for _, sym := range discovered {
			mapper.Register(sym)
		}
		if len(*src.symbols) == 0 {
			for _, sym := range discovered {
				*src.symbols = append(*src.symbols, sym.Symbol)
			}
			log.WithComponent("main").WithFields(logger.Fields{
				"exchange": src.id.String(),
				"symbols":  len(*src.symbols),
			}).Info("using discovered symbol list")
		}
	}
}

// startRunners builds one runner per connection batch for every enabled
// exchange and starts them.
func startRunners(ctx context.Context, cfg *appconfig.Config, channels *channel.Channels, mapper *symbols.Mapper, m *metrics.Metrics, log *logger.Log) []*reader.Runner {
	type exchangeEntry struct {
		id  models.ExchangeID
		cfg appconfig.ExchangeConfig
		new func(url string, syms []string) reader.Connection
	}

	entries := []exchangeEntry{
		{models.Coinbase, cfg.Exchanges.Coinbase, func(url string, syms []string) reader.Connection {
			return coinbase.New(url, syms, channels, mapper)
		}},
		{models.Binance, cfg.Exchanges.Binance, func(url string, syms []string) reader.Connection {
			return binance.New(url, syms, channels, mapper)
		}},
		{models.Kraken, cfg.Exchanges.Kraken, func(url string, syms []string) reader.Connection {
			return kraken.New(url, syms, channels, mapper)
		}},
		{models.OKX, cfg.Exchanges.Okx, func(url string, syms []string) reader.Connection {
			return okx.New(url, syms, channels, mapper)
		}},
		{models.Bitfinex, cfg.Exchanges.Bitfinex, func(url string, syms []string) reader.Connection {
			return bitfinex.New(url, syms, channels, mapper)
		}},
	}

	var runners []*reader.Runner
	for _, entry := range entries {
		if !entry.cfg.Enabled || len(entry.cfg.Symbols) == 0 {
			continue
		}

		batches := reader.DistributeSymbols(entry.cfg.Symbols, entry.cfg.SymbolsPerConnection)
		if len(batches) > entry.cfg.MaxConnections {
			log.WithComponent("main").WithFields(logger.Fields{
				"exchange":        entry.id.String(),
				"batches":         len(batches),
				"max_connections": entry.cfg.MaxConnections,
			}).Warn("symbol batches exceed configured connection limit")
		}

		for _, batch := range batches {
			conn := entry.new(entry.cfg.WsEndpoint, batch)
			runner := reader.NewRunner(conn, entry.cfg, m)
			if err := runner.Start(ctx); err != nil {
				log.WithError(err).WithFields(logger.Fields{"exchange": entry.id.String()}).Warn("runner failed to start")
				continue
			}
			runners = append(runners, runner)
		}

		log.WithComponent("main").WithFields(logger.Fields{
			"exchange":    entry.id.String(),
			"symbols":     len(entry.cfg.Symbols),
			"connections": len(batches),
		}).Info("exchange runners started")
	}
	return runners
}
