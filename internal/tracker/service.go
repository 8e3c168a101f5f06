// Package tracker is the consumer-facing surface of the history engine. It
// wires the store, the page fetcher and the live listener behind one service
// so callers deal with a single watch/read/load-more API.
package tracker

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/history"
)

// PageFetcher is the paginated side of the engine.
type PageFetcher interface {
	LoadMore(ctx context.Context) error
	Err() error
	Loading() bool
	Reset()
}

// LiveListener is the forward-extending side of the engine.
type LiveListener interface {
	Watch(ctx context.Context, pool solana.PublicKey) error
	Stop()
}

// Service coordinates history reconstruction for one watched pool at a time.
type Service interface {
	// Watch resets all state and starts tracking a pool: the first backward
	// page is fetched and the live subscription is opened.
	Watch(ctx context.Context, pool solana.PublicKey) error

	// History returns the current entries, newest first.
	History() []history.Entry

	// LoadMore fetches the next backward page. No-op once exhausted.
	LoadMore(ctx context.Context) error

	// HasMore reports whether another backward page may exist.
	HasMore() bool

	// Loading reports whether a page fetch is in flight.
	Loading() bool

	// Err returns the terminal fetch error, if any.
	Err() error

	// Retry clears a terminal error and restarts pagination from the top.
	Retry(ctx context.Context) error

	// Close tears down the live subscription.
	Close()
}

// ServiceConfig carries the assembled components.
type ServiceConfig struct {
	Store    *history.Store
	Fetcher  PageFetcher
	Listener LiveListener
	Logger   *zap.Logger
}

type service struct {
	store    *history.Store
	fetcher  PageFetcher
	listener LiveListener
	logger   *zap.Logger
}

func NewService(cfg ServiceConfig) Service {
	return &service{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		listener: cfg.Listener,
		logger:   cfg.Logger.Named("tracker"),
	}
}

func (s *service) Watch(ctx context.Context, pool solana.PublicKey) error {
	s.logger.Info("Switching watched pool", zap.String("pool", pool.String()))

	// Reset first: any page still in flight for the old pool becomes stale
	// and will be discarded on arrival.
	s.fetcher.Reset()

	// Live updates are an enhancement; history still works without them.
	if s.listener != nil {
		if err := s.listener.Watch(ctx, pool); err != nil {
			s.logger.Warn("Live subscription unavailable",
				zap.String("pool", pool.String()),
				zap.Error(err))
		}
	}

	return s.fetcher.LoadMore(ctx)
}

func (s *service) History() []history.Entry {
	return s.store.Snapshot()
}

func (s *service) LoadMore(ctx context.Context) error {
	return s.fetcher.LoadMore(ctx)
}

func (s *service) HasMore() bool {
	return s.store.HasMore()
}

func (s *service) Loading() bool {
	return s.fetcher.Loading()
}

func (s *service) Err() error {
	return s.fetcher.Err()
}

func (s *service) Retry(ctx context.Context) error {
	s.fetcher.Reset()
	return s.fetcher.LoadMore(ctx)
}

func (s *service) Close() {
	if s.listener != nil {
		s.listener.Stop()
	}
}
