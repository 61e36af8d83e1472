// Command btx follows the market of one BTX event: it polls project
// snapshots, listens to live price updates and serves the local view over HTTP.
//
// Usage:
//
//	btx --config config.yaml
//	btx --event <id> (uses CLI arguments)
//	btx --setup (interactive wizard, writes config.gen.yaml)
//
// Environment variables:
//
//	BTX_AUTH_TOKEN: bearer token for portfolio and trade requests
//	BTX_WS_URL: push endpoint override
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ubc-biztech/btx/config"
	"github.com/ubc-biztech/btx/internal"
	"github.com/ubc-biztech/btx/internal/clients"
	"github.com/ubc-biztech/btx/internal/metrics"
	"github.com/ubc-biztech/btx/internal/setup"
	"github.com/ubc-biztech/btx/internal/storage/pricetape"
	"github.com/ubc-biztech/btx/internal/storage/session"
	"github.com/ubc-biztech/btx/internal/storage/tradejournal"
	"github.com/ubc-biztech/btx/internal/web"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		if err := setup.RunTUI(setup.DefaultFile); err != nil {
			log.Fatal(err)
		}
		flags.ConfigPath = setup.DefaultFile
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("btx stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	m := metrics.New(true)
	opts := []internal.Option{internal.WithLogger(logger), internal.WithMetrics(m)}

	var tape *pricetape.WALStore
	if cfg.TapeEnabled {
		var err error
		tape, err = pricetape.NewWALStore(cfg.TapeDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := tape.Close(); err != nil {
				logger.Warn("Failed to close price tape", zap.Error(err))
			}
		}()
		opts = append(opts, internal.WithTape(tape))
	}

	journal, err := tradejournal.NewWALStore("")
	if err != nil {
		return err
	}
	defer journal.Close()
	opts = append(opts, internal.WithJournal(journal))

	if store, err := session.NewStore(cfg.EventID); err != nil {
		logger.Warn("Session persistence disabled", zap.Error(err))
	} else {
		opts = append(opts, internal.WithSession(store))
	}

	exchange, err := internal.NewExchange(internal.ExchangeConfig{
		EventID:       cfg.EventID,
		UserID:        cfg.UserID,
		PollInterval:  cfg.PollInterval,
		TradesLimit:   cfg.TradesLimit,
		HistoryLimit:  cfg.HistoryLimit,
		PushEnabled:   cfg.PushEnabled,
		PushURL:       cfg.PushURL,
		PushReconnect: cfg.Reconnect,
		Overlay:       cfg.Overlay,
	}, clients.NewBTXClient(cfg.APIURL, cfg.AuthToken), opts...)
	if err != nil {
		return err
	}
	defer exchange.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exchange.Run(gctx)
	})

	if cfg.WebAddr != "" {
		srv := web.NewServer(cfg.WebAddr, exchange, nil, m.Handler(), logger)
		srv.Journal = journal
		if tape != nil {
			srv.Tape = tape
		}
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	logger.Info("btx started",
		zap.String("event", cfg.EventID),
		zap.String("api", cfg.APIURL),
		zap.Bool("push", cfg.PushEnabled),
		zap.String("web", cfg.WebAddr))

	return g.Wait()
}
