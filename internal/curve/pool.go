package curve

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// PoolState mirrors the on-chain BondingCurvePool account. Field order must
// match the program's layout exactly; it is decoded with borsh after the
// 8-byte Anchor account discriminator.
type PoolState struct {
	Collection    solana.PublicKey
	BasePrice     uint64
	GrowthFactor  uint64
	CurrentSupply uint64
	ProtocolFee   uint64
	Creator       solana.PublicKey
	TotalEscrowed uint64
	IsActive      bool
	Bump          uint8
}

// poolAccountName is the Anchor struct name the discriminator is derived from.
const poolAccountName = "BondingCurvePool"

// poolDataLen is the serialized size of PoolState without the discriminator.
const poolDataLen = 32 + 8 + 8 + 8 + 8 + 32 + 8 + 1 + 1

// PoolDiscriminator returns the 8-byte Anchor account discriminator,
// sha256("account:BondingCurvePool")[:8].
func PoolDiscriminator() []byte {
	hash := sha256.Sum256([]byte("account:" + poolAccountName))
	return hash[:8]
}

// DecodePool parses raw account data into a PoolState. The discriminator is
// verified so that foreign accounts pushed through a subscription are rejected
// instead of silently misread.
func DecodePool(data []byte) (*PoolState, error) {
	if len(data) < 8+poolDataLen {
		return nil, fmt.Errorf("pool account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], PoolDiscriminator()) {
		return nil, fmt.Errorf("unexpected account discriminator %x", data[:8])
	}

	var state PoolState
	decoder := bin.NewBorshDecoder(data[8:])
	if err := decoder.Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode pool state: %w", err)
	}
	return &state, nil
}

// Constants extracts the immutable pricing parameters from a pool state.
func (p *PoolState) Constants() Constants {
	return Constants{BasePrice: p.BasePrice, GrowthFactor: p.GrowthFactor}
}

// AccountFetcher reads raw account data from the chain.
type AccountFetcher interface {
	GetAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error)
}

// ConstantsCache caches pool constants per pool address. Constants never
// change after create_pool, so one fetch per watched pool is enough; the cache
// is invalidated when the watched address changes.
type ConstantsCache struct {
	mu      sync.Mutex
	fetcher AccountFetcher
	logger  *zap.Logger

	pool      solana.PublicKey
	constants *Constants
}

func NewConstantsCache(fetcher AccountFetcher, logger *zap.Logger) *ConstantsCache {
	return &ConstantsCache{
		fetcher: fetcher,
		logger:  logger.Named("curve-constants"),
	}
}

// Get returns the cached constants for the pool, fetching and decoding the
// account on the first call or after the pool address changed.
func (c *ConstantsCache) Get(ctx context.Context, pool solana.PublicKey) (Constants, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.constants != nil && c.pool.Equals(pool) {
		return *c.constants, nil
	}

	data, err := c.fetcher.GetAccountData(ctx, pool)
	if err != nil {
		return Constants{}, fmt.Errorf("failed to fetch pool account %s: %w", pool, err)
	}
	state, err := DecodePool(data)
	if err != nil {
		return Constants{}, err
	}

	constants := state.Constants()
	c.pool = pool
	c.constants = &constants

	c.logger.Debug("Cached pool constants",
		zap.String("pool", pool.String()),
		zap.Uint64("base_price", constants.BasePrice),
		zap.Uint64("growth_factor", constants.GrowthFactor))

	return constants, nil
}

// Invalidate drops the cached constants. Called when the watched pool changes.
func (c *ConstantsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.constants = nil
	c.pool = solana.PublicKey{}
}
