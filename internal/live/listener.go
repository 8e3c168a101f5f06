// Package live extends the reconstructed history forward in time. It watches
// the pool account over a websocket subscription, derives supply changes from
// the account state, and appends synthesized entries priced with the curve
// formula until the real transactions land in the indexer.
package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/curve"
	"github.com/sketchxpress/curvetrack/internal/events"
	"github.com/sketchxpress/curvetrack/internal/history"
)

// State describes the listener's subscription lifecycle.
type State int32

const (
	StateUnsubscribed State = iota
	StateSubscribed
)

func (s State) String() string {
	if s == StateSubscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// Listener watches one pool account and turns supply changes into history
// entries. Watch replaces the previous subscription; duplicate notifications
// for an unchanged supply are ignored, so redelivery is harmless.
type Listener struct {
	store    *history.Store
	client   SubscriptionClient
	accounts curve.AccountFetcher
	bus      events.Publisher
	logger   *zap.Logger

	state atomic.Int32

	mu         sync.Mutex
	pool       solana.PublicKey
	lastSupply uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewListener(store *history.Store, client SubscriptionClient, accounts curve.AccountFetcher,
	bus events.Publisher, logger *zap.Logger) *Listener {
	return &Listener{
		store:    store,
		client:   client,
		accounts: accounts,
		bus:      bus,
		logger:   logger.Named("live"),
	}
}

// State returns the current subscription state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Watch subscribes to the pool account. Any previous subscription is torn
// down first. The baseline supply is read from the account before the
// subscription starts, so only changes after this call produce entries.
func (l *Listener) Watch(ctx context.Context, pool solana.PublicKey) error {
	l.Stop()

	data, err := l.accounts.GetAccountData(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to read pool account %s: %w", pool, err)
	}
	state, err := curve.DecodePool(data)
	if err != nil {
		return fmt.Errorf("pool account %s: %w", pool, err)
	}

	sub, err := l.client.Subscribe(ctx, pool)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.pool = pool
	l.lastSupply = state.CurrentSupply
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	l.state.Store(int32(StateSubscribed))
	l.logger.Info("Watching pool",
		zap.String("pool", pool.String()),
		zap.Uint64("supply", state.CurrentSupply))

	go l.run(runCtx, pool, sub, done)
	return nil
}

// Stop tears down the active subscription, if any, and waits for the read
// loop to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.state.Store(int32(StateUnsubscribed))
}

func (l *Listener) run(ctx context.Context, pool solana.PublicKey, sub Subscription, done chan struct{}) {
	defer close(done)
	// The deferred receiver must track reconnects, hence the closure.
	defer func() { sub.Unsubscribe() }()
	defer l.state.Store(int32(StateUnsubscribed))

	for {
		data, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("Subscription read failed, reconnecting", zap.Error(err))
			sub.Unsubscribe()

			sub, err = l.resubscribe(ctx, pool)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Error("Resubscribe failed", zap.Error(err))
					if l.bus != nil {
						_ = l.bus.Publish(events.FetchFailed{Err: err})
					}
				}
				// Unsubscribe on a nil sub would panic; the deferred call
				// needs a live value.
				sub = noopSubscription{}
				return
			}
			continue
		}
		l.handleUpdate(pool, data)
	}
}

func (l *Listener) resubscribe(ctx context.Context, pool solana.PublicKey) (Subscription, error) {
	return backoff.Retry(ctx, func() (Subscription, error) {
		return l.client.Subscribe(ctx, pool)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.logger.Debug("Retrying subscription",
				zap.Error(err),
				zap.Duration("backoff", next))
		}))
}

// handleUpdate reconciles one account notification against the last known
// supply. Undecodable payloads and unchanged supplies are dropped.
func (l *Listener) handleUpdate(pool solana.PublicKey, data []byte) {
	state, err := curve.DecodePool(data)
	if err != nil {
		l.logger.Warn("Dropping undecodable account update", zap.Error(err))
		return
	}

	l.mu.Lock()
	previous := l.lastSupply
	if state.CurrentSupply == previous {
		l.mu.Unlock()
		return
	}
	l.lastSupply = state.CurrentSupply
	l.mu.Unlock()

	entry := l.synthesize(pool, state, previous)
	if !l.store.Append(entry) {
		return
	}

	l.logger.Info("Supply changed",
		zap.Uint64("previous", previous),
		zap.Uint64("supply", state.CurrentSupply),
		zap.String("instruction", entry.InstructionName))

	if l.bus != nil {
		_ = l.bus.Publish(events.EntriesMerged{Signatures: []string{entry.Signature}, Added: 1, Live: true})
		changed := events.SupplyChanged{
			Pool:     pool.String(),
			Supply:   state.CurrentSupply,
			Previous: previous,
		}
		if entry.Price != nil {
			changed.Price = *entry.Price
		}
		_ = l.bus.Publish(changed)
	}
}

// synthesize builds the placeholder entry for a supply change. The signature
// is a generated id because the real transaction signature is unknown; the
// nil timestamp makes the entry sort newest until the indexer catches up.
func (l *Listener) synthesize(pool solana.PublicKey, state *curve.PoolState, previous uint64) history.Entry {
	name := "mint_nft"
	if state.CurrentSupply < previous {
		name = "sell_nft"
	}

	entry := history.Entry{
		Signature:       "live-" + uuid.NewString(),
		Timestamp:       nil,
		InstructionName: name,
		DecodedArgs: map[string]any{
			"supply":          state.CurrentSupply,
			"previous_supply": previous,
		},
		PoolAddress: pool.String(),
		Synthesized: true,
	}

	// The unit price at the lower supply boundary: what a mint just paid, or
	// what a sell just received back.
	boundary := state.CurrentSupply
	if previous < boundary {
		boundary = previous
	}
	price, err := state.Constants().PriceAt(boundary)
	if err != nil {
		l.logger.Warn("Price synthesis failed",
			zap.Uint64("supply", boundary),
			zap.Error(err))
		return entry
	}
	entry.Price = &price
	return entry
}

type noopSubscription struct{}

func (noopSubscription) Recv(context.Context) ([]byte, error) { return nil, context.Canceled }
func (noopSubscription) Unsubscribe()                         {}
