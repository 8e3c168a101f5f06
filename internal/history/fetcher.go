package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sketchxpress/curvetrack/internal/events"
	"github.com/sketchxpress/curvetrack/internal/indexer"
	"github.com/sketchxpress/curvetrack/internal/schema"
)

// IndexerAPI is the slice of the indexing service the fetcher needs.
type IndexerAPI interface {
	ListSignatures(ctx context.Context, program solana.PublicKey, limit int, before string) ([]indexer.SignatureInfo, error)
	GetTransactions(ctx context.Context, signatures []string) ([]indexer.Transaction, error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Program     solana.PublicKey
	PageLimit   int
	PageTimeout time.Duration
}

// Fetcher pulls history pages backward from the indexing API, runs each
// transaction through decoding and price inference, and merges the results
// into the store.
//
// Calls are single-flight: a LoadMore issued while a page is in flight joins
// that flight instead of starting a second fetch, so the cursor never
// advances twice for one page. The page timeout bounds how long the flight
// can hold the guard.
type Fetcher struct {
	store   *Store
	api     IndexerAPI
	decoder *schema.Decoder
	engine  *PriceEngine
	bus     events.Publisher
	logger  *zap.Logger

	program     solana.PublicKey
	programID   string
	pageLimit   int
	pageTimeout time.Duration

	flight  singleflight.Group
	loading atomic.Bool

	mu      sync.Mutex
	termErr error
	termGen uint64
}

func NewFetcher(store *Store, api IndexerAPI, decoder *schema.Decoder, engine *PriceEngine,
	bus events.Publisher, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 25
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	return &Fetcher{
		store:       store,
		api:         api,
		decoder:     decoder,
		engine:      engine,
		bus:         bus,
		logger:      logger.Named("fetcher"),
		program:     cfg.Program,
		programID:   cfg.Program.String(),
		pageLimit:   cfg.PageLimit,
		pageTimeout: cfg.PageTimeout,
	}
}

// Err returns the terminal fetch error, if any. While set, LoadMore refuses
// to fetch; Reset clears it.
func (f *Fetcher) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// A failure recorded for an earlier generation belongs to an abandoned
	// watch; a reset racing terminate must not leave its error behind.
	if f.termErr != nil && f.store.Generation() != f.termGen {
		f.termErr = nil
	}
	return f.termErr
}

// Loading reports whether a page fetch is currently in flight.
func (f *Fetcher) Loading() bool {
	return f.loading.Load()
}

// Reset clears the terminal error and the store, starting pagination over
// from the newest transaction.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	f.termErr = nil
	f.mu.Unlock()
	f.store.Reset()
}

// LoadMore fetches the next backward page. A call while a fetch is in flight
// joins the in-flight result; a call after exhaustion or a terminal error is
// a no-op (the latter returns the stored error).
func (f *Fetcher) LoadMore(ctx context.Context) error {
	if err := f.Err(); err != nil {
		return err
	}
	if !f.store.HasMore() {
		return nil
	}

	// Keyed by generation so a flight for a stale watch never satisfies a
	// call made after a reset.
	key := fmt.Sprintf("page-%d", f.store.Generation())
	_, err, _ := f.flight.Do(key, func() (any, error) {
		f.loading.Store(true)
		defer f.loading.Store(false)
		return nil, f.fetchPage(ctx)
	})
	return err
}

func (f *Fetcher) fetchPage(ctx context.Context) error {
	generation := f.store.Generation()
	cursor := f.store.Cursor()

	ctx, cancel := context.WithTimeout(ctx, f.pageTimeout)
	defer cancel()

	sigs, err := f.api.ListSignatures(ctx, f.program, f.pageLimit, cursor)
	if err != nil {
		return f.terminate(generation, fmt.Errorf("signature listing failed: %w", err))
	}
	if len(sigs) == 0 {
		f.store.ExhaustPagesAt(generation)
		return nil
	}

	signatures := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		signatures = append(signatures, sig.Signature)
	}

	txs, err := f.api.GetTransactions(ctx, signatures)
	if err != nil {
		return f.terminate(generation, fmt.Errorf("transaction batch failed: %w", err))
	}

	bySignature := make(map[string]*indexer.Transaction, len(txs))
	for i := range txs {
		bySignature[txs[i].Signature] = &txs[i]
	}

	entries := make([]Entry, 0, len(sigs))
	for _, sig := range sigs {
		entries = append(entries, f.buildEntry(ctx, sig, bySignature[sig.Signature]))
	}

	// The watched address may have changed while we were on the network;
	// results for a stale generation must not touch the new state. The
	// generation check happens inside each store mutation so a reset can
	// never slip in between checking and merging.
	added, current := f.store.MergeAt(generation, entries)
	if !current {
		f.logger.Debug("Discarding stale page", zap.Uint64("generation", generation))
		return nil
	}
	if !f.store.AdvanceCursorAt(generation, sigs[len(sigs)-1].Signature, len(sigs) >= f.pageLimit) {
		// Reset raced in after the merge; it already wiped the entries.
		f.logger.Debug("Discarding stale page", zap.Uint64("generation", generation))
		return nil
	}

	f.logger.Info("History page merged",
		zap.Int("page_size", len(sigs)),
		zap.Int("added", len(added)),
		zap.Bool("has_more", f.store.HasMore()))

	if f.bus != nil && len(added) > 0 {
		_ = f.bus.Publish(events.EntriesMerged{Signatures: added, Added: len(added)})
	}
	return nil
}

// terminate records err as the terminal fetch state unless the page belongs
// to a stale generation, in which case the error is irrelevant and dropped.
func (f *Fetcher) terminate(generation uint64, err error) error {
	if !f.store.ExhaustPagesAt(generation) {
		return nil
	}

	// The error is tagged with its generation; Err ignores it once a reset
	// moves the store on, even if the reset landed right after the check
	// above.
	f.mu.Lock()
	f.termErr = err
	f.termGen = generation
	f.mu.Unlock()

	f.logger.Error("Page fetch failed", zap.Error(err))
	if f.bus != nil {
		_ = f.bus.Publish(events.FetchFailed{Err: err})
	}
	return err
}

// buildEntry reconstructs one history entry. Decode and inference failures
// degrade this entry only; the rest of the page is unaffected.
func (f *Fetcher) buildEntry(ctx context.Context, sig indexer.SignatureInfo, tx *indexer.Transaction) Entry {
	entry := Entry{
		Signature:       sig.Signature,
		Timestamp:       sig.Timestamp,
		InstructionName: InstructionUnknown,
		DecodedArgs:     map[string]any{},
	}
	if tx == nil {
		// The detail batch omitted this signature; keep the bare listing row.
		f.logger.Warn("No detail for signature", zap.String("signature", sig.Signature))
		return entry
	}

	if tx.Timestamp > 0 {
		ts := tx.Timestamp
		entry.Timestamp = &ts
	}
	entry.TxError = tx.TransactionError

	insIndex := -1
	for i := range tx.Instructions {
		if tx.Instructions[i].ProgramID == f.programID {
			insIndex = i
			break
		}
	}
	if insIndex == -1 {
		return entry
	}

	instruction := tx.Instructions[insIndex]
	entry.InvolvedAccounts = instruction.Accounts

	decoded, err := f.decoder.DecodeBase58(instruction.Data)
	if err != nil {
		f.logger.Warn("Instruction decode failed",
			zap.String("signature", sig.Signature),
			zap.Error(err))
		return entry
	}

	entry.InstructionName = decoded.Name
	entry.DecodedArgs = decoded.Args
	if poolIdx := decoded.Instruction.AccountIndex(schema.RolePool); poolIdx >= 0 && poolIdx < len(instruction.Accounts) {
		entry.PoolAddress = instruction.Accounts[poolIdx]
	}

	// Failed transactions stay in the history but never carry a price.
	if tx.Failed() {
		return entry
	}

	entry.Price = f.engine.Infer(ctx, tx, decoded, insIndex)
	return entry
}
