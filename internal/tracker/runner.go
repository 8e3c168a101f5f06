package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/config"
	"github.com/sketchxpress/curvetrack/internal/events"
	"github.com/sketchxpress/curvetrack/internal/export"
	"github.com/sketchxpress/curvetrack/internal/history"
	"github.com/sketchxpress/curvetrack/internal/indexer"
	"github.com/sketchxpress/curvetrack/internal/live"
	"github.com/sketchxpress/curvetrack/internal/schema"
)

// Runner assembles the engine from configuration and drives one end-to-end
// reconstruction: page backward until the history is complete, export it if
// requested, then follow live updates until interrupted.
type Runner struct {
	logger     *zap.Logger
	cfg        *config.Config
	bus        *events.Bus
	store      *history.Store
	service    Service
	exporter   *export.HistoryExporter
	liveActive bool
	shutdownCh chan os.Signal
}

func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	client := indexer.NewClient(indexer.Config{
		RPCURL:      cfg.RPCURL,
		EnhancedURL: cfg.EnhancedAPIURL,
		APIKey:      cfg.APIKey,
		MaxRetries:  cfg.Retries,
		RetryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
	}, logger)

	bus := events.NewBus(logger, 256)
	store := history.NewStore()
	decoder := schema.NewDecoder(schema.BondingCurveRegistry(), logger)
	engine := history.NewPriceEngine(client, cfg.DustThreshold, logger)
	fetcher := history.NewFetcher(store, client, decoder, engine, bus, history.FetcherConfig{
		Program:     cfg.Program(),
		PageLimit:   cfg.PageLimit,
		PageTimeout: time.Duration(cfg.FetchTimeoutSec) * time.Second,
	}, logger)

	var listener LiveListener
	liveActive := false
	if cfg.WebSocketURL != "" && !cfg.DisableLiveUpdates {
		wsClient := live.NewWSClient(cfg.WebSocketURL, logger)
		listener = live.NewListener(store, wsClient, client, bus, logger)
		liveActive = true
	}

	return &Runner{
		logger: logger.Named("runner"),
		cfg:    cfg,
		bus:    bus,
		store:  store,
		service: NewService(ServiceConfig{
			Store:    store,
			Fetcher:  fetcher,
			Listener: listener,
			Logger:   logger,
		}),
		exporter:   export.NewHistoryExporter(logger),
		liveActive: liveActive,
		shutdownCh: make(chan os.Signal, 1),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	pool, ok := r.cfg.Pool()
	if !ok {
		return errors.New("no pool_address configured")
	}

	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("Signal received: " + sig.String())
			cancel()
		case <-runCtx.Done():
		}
	}()

	defer r.service.Close()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = r.bus.Shutdown(shutdownCtx)
	}()

	sub := r.bus.SubscribeFunc(events.TypeSupplyChanged, func(_ context.Context, e events.Event) error {
		changed := e.(events.SupplyChanged)
		r.logger.Info("Live supply change",
			zap.Uint64("supply", changed.Supply),
			zap.Uint64("price", changed.Price))
		return nil
	})
	defer sub.Unsubscribe()

	if err := r.service.Watch(runCtx, pool); err != nil {
		return fmt.Errorf("failed to start tracking %s: %w", pool, err)
	}

	for r.service.HasMore() {
		if err := r.service.LoadMore(runCtx); err != nil {
			return fmt.Errorf("history reconstruction stopped: %w", err)
		}
		if runCtx.Err() != nil {
			return runCtx.Err()
		}
	}

	entries := r.service.History()
	r.logger.Info("History reconstructed",
		zap.String("pool", pool.String()),
		zap.Int("entries", len(entries)))

	if r.cfg.ExportDir != "" && len(entries) > 0 {
		path, err := r.exporter.ExportEntries(entries, export.ExportOptions{
			Format:    export.FormatCSV,
			OutputDir: r.cfg.ExportDir,
		})
		if err != nil {
			r.logger.Warn("Export failed", zap.Error(err))
		} else {
			r.logger.Info("History exported", zap.String("file", path))
		}
	}

	if !r.liveActive {
		return nil
	}

	r.logger.Info("Following live updates, Ctrl-C to stop")
	<-runCtx.Done()
	return nil
}
