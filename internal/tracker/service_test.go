package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/history"
)

type fakeFetcher struct {
	loadCalls  int
	resetCalls int
	loadErr    error
	termErr    error
	loading    bool
	store      *history.Store
}

func (f *fakeFetcher) LoadMore(context.Context) error {
	f.loadCalls++
	return f.loadErr
}

func (f *fakeFetcher) Err() error    { return f.termErr }
func (f *fakeFetcher) Loading() bool { return f.loading }

func (f *fakeFetcher) Reset() {
	f.resetCalls++
	f.termErr = nil
	f.store.Reset()
}

type fakeListener struct {
	watched  []solana.PublicKey
	watchErr error
	stopped  bool
}

func (l *fakeListener) Watch(_ context.Context, pool solana.PublicKey) error {
	l.watched = append(l.watched, pool)
	return l.watchErr
}

func (l *fakeListener) Stop() { l.stopped = true }

var pool = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")

func newTestService() (Service, *history.Store, *fakeFetcher, *fakeListener) {
	store := history.NewStore()
	fetcher := &fakeFetcher{store: store}
	listener := &fakeListener{}
	svc := NewService(ServiceConfig{
		Store:    store,
		Fetcher:  fetcher,
		Listener: listener,
		Logger:   zap.NewNop(),
	})
	return svc, store, fetcher, listener
}

func TestWatchResetsAndFetchesFirstPage(t *testing.T) {
	svc, store, fetcher, listener := newTestService()

	ts := int64(100)
	store.Merge([]history.Entry{{Signature: "stale", Timestamp: &ts}})
	gen := store.Generation()

	require.NoError(t, svc.Watch(context.Background(), pool))

	assert.Equal(t, 1, fetcher.resetCalls)
	assert.Equal(t, 1, fetcher.loadCalls)
	assert.Equal(t, gen+1, store.Generation())
	assert.Zero(t, store.Len(), "old pool's entries must not survive a switch")
	assert.Equal(t, []solana.PublicKey{pool}, listener.watched)
}

func TestWatchSurvivesLiveFailure(t *testing.T) {
	svc, _, fetcher, listener := newTestService()
	listener.watchErr = errors.New("websocket down")

	require.NoError(t, svc.Watch(context.Background(), pool))
	assert.Equal(t, 1, fetcher.loadCalls, "pagination proceeds without live updates")
}

func TestHistoryAndHasMoreDelegate(t *testing.T) {
	svc, store, _, _ := newTestService()

	ts := int64(100)
	store.Merge([]history.Entry{{Signature: "a", Timestamp: &ts}})
	assert.Len(t, svc.History(), 1)
	assert.True(t, svc.HasMore())

	store.ExhaustPages()
	assert.False(t, svc.HasMore())
}

func TestRetryClearsErrorAndRefetches(t *testing.T) {
	svc, _, fetcher, _ := newTestService()
	fetcher.termErr = errors.New("terminal")
	require.Error(t, svc.Err())

	require.NoError(t, svc.Retry(context.Background()))
	assert.NoError(t, svc.Err())
	assert.Equal(t, 1, fetcher.resetCalls)
	assert.Equal(t, 1, fetcher.loadCalls)
}

func TestCloseStopsListener(t *testing.T) {
	svc, _, _, listener := newTestService()
	svc.Close()
	assert.True(t, listener.stopped)
}
