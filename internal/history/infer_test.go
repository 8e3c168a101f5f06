package history

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/indexer"
	"github.com/sketchxpress/curvetrack/internal/schema"
)

type fakeBalances struct {
	calls    int
	snapshot *indexer.BalanceSnapshot
	err      error
}

func (f *fakeBalances) GetTransactionBalances(context.Context, string) (*indexer.BalanceSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}

func testDecoded(t *testing.T, name string) *schema.Decoded {
	t.Helper()
	ins, ok := schema.BondingCurveRegistry().ByName(name)
	require.True(t, ok)
	return &schema.Decoded{Name: name, Args: map[string]any{}, Instruction: ins}
}

// mintTx builds a transaction whose program instruction has the mint_nft
// account shape: payer at 0, escrow at 2.
func mintTx(transfers []indexer.NativeTransfer) *indexer.Transaction {
	return &indexer.Transaction{
		Signature:       "sig-mint",
		FeePayer:        "payer",
		NativeTransfers: transfers,
		Instructions: []indexer.Instruction{
			{Accounts: []string{"payer", "nft-mint", "escrow", "pool"}},
		},
	}
}

func sellTx(transfers []indexer.NativeTransfer) *indexer.Transaction {
	return &indexer.Transaction{
		Signature:       "sig-sell",
		FeePayer:        "payer",
		NativeTransfers: transfers,
		Instructions: []indexer.Instruction{
			{Accounts: []string{"payer", "pool", "escrow", "creator"}},
		},
	}
}

func systemTransferData(t *testing.T, amount uint64) string {
	t.Helper()
	raw := make([]byte, 12)
	binary.LittleEndian.PutUint32(raw[:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(raw[4:], amount)
	return base58.Encode(raw)
}

func TestInferDirectTransferPicksLargestMatch(t *testing.T) {
	balances := &fakeBalances{}
	engine := NewPriceEngine(balances, 0, zap.NewNop())

	tx := mintTx([]indexer.NativeTransfer{
		{FromUserAccount: "payer", ToUserAccount: "escrow", Amount: 12_000},   // fee skim
		{FromUserAccount: "payer", ToUserAccount: "escrow", Amount: 1_200_000},
		{FromUserAccount: "payer", ToUserAccount: "other", Amount: 9_999_999},
	})

	price := engine.Infer(context.Background(), tx, testDecoded(t, "mint_nft"), 0)
	require.NotNil(t, price)
	assert.Equal(t, uint64(1_200_000), *price)
	assert.Zero(t, balances.calls, "direct match must not fetch balances")
}

func TestInferSellOrientation(t *testing.T) {
	engine := NewPriceEngine(&fakeBalances{}, 0, zap.NewNop())

	tx := sellTx([]indexer.NativeTransfer{
		{FromUserAccount: "payer", ToUserAccount: "escrow", Amount: 500_000},
		{FromUserAccount: "escrow", ToUserAccount: "payer", Amount: 950_000},
	})

	price := engine.Infer(context.Background(), tx, testDecoded(t, "sell_nft"), 0)
	require.NotNil(t, price)
	assert.Equal(t, uint64(950_000), *price, "a sell matches escrow to payer, not the reverse")
}

func TestInferNeutralInstruction(t *testing.T) {
	balances := &fakeBalances{}
	engine := NewPriceEngine(balances, 0, zap.NewNop())

	tx := mintTx([]indexer.NativeTransfer{
		{FromUserAccount: "payer", ToUserAccount: "escrow", Amount: 1_000_000},
	})

	assert.Nil(t, engine.Infer(context.Background(), tx, testDecoded(t, "create_pool"), 0))
	assert.Zero(t, balances.calls)
}

func TestInferInnerTransfersWhenDirectMisses(t *testing.T) {
	balances := &fakeBalances{}
	engine := NewPriceEngine(balances, 0, zap.NewNop())

	tx := mintTx(nil)
	tx.Instructions[0].InnerInstructions = []indexer.InnerInstruction{
		{
			ProgramID: systemProgramID,
			Accounts:  []string{"payer", "escrow"},
			Data:      systemTransferData(t, 1_440_000),
		},
		{
			// Not the system program, must be ignored.
			ProgramID: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
			Accounts:  []string{"payer", "escrow"},
			Data:      systemTransferData(t, 9_999_999),
		},
	}

	price := engine.Infer(context.Background(), tx, testDecoded(t, "mint_nft"), 0)
	require.NotNil(t, price)
	assert.Equal(t, uint64(1_440_000), *price)
	assert.Zero(t, balances.calls)
}

func TestInferDirectTransferBeatsInner(t *testing.T) {
	engine := NewPriceEngine(&fakeBalances{}, 0, zap.NewNop())

	tx := mintTx([]indexer.NativeTransfer{
		{FromUserAccount: "payer", ToUserAccount: "escrow", Amount: 1_000_000},
	})
	tx.Instructions[0].InnerInstructions = []indexer.InnerInstruction{
		{
			ProgramID: systemProgramID,
			Accounts:  []string{"payer", "escrow"},
			Data:      systemTransferData(t, 2_000_000),
		},
	}

	price := engine.Infer(context.Background(), tx, testDecoded(t, "mint_nft"), 0)
	require.NotNil(t, price)
	assert.Equal(t, uint64(1_000_000), *price)
}

func TestInferBalanceDeltaFallback(t *testing.T) {
	balances := &fakeBalances{
		snapshot: &indexer.BalanceSnapshot{
			AccountKeys:  []string{"payer", "escrow"},
			PreBalances:  []uint64{10_000_000, 0},
			PostBalances: []uint64{8_760_000, 1_200_000},
		},
	}
	engine := NewPriceEngine(balances, 0, zap.NewNop())

	price := engine.Infer(context.Background(), mintTx(nil), testDecoded(t, "mint_nft"), 0)
	require.NotNil(t, price)
	assert.Equal(t, uint64(1_240_000), *price, "a mint prices the fee payer's spend")
	assert.Equal(t, 1, balances.calls)
}

func TestInferBalanceDeltaSellUsesEscrow(t *testing.T) {
	balances := &fakeBalances{
		snapshot: &indexer.BalanceSnapshot{
			AccountKeys:  []string{"payer", "escrow"},
			PreBalances:  []uint64{1_000_000, 5_000_000},
			PostBalances: []uint64{1_945_000, 4_050_000},
		},
	}
	engine := NewPriceEngine(balances, 0, zap.NewNop())

	price := engine.Infer(context.Background(), sellTx(nil), testDecoded(t, "sell_nft"), 0)
	require.NotNil(t, price)
	assert.Equal(t, uint64(950_000), *price)
}

func TestInferBalanceDeltaDustIsUnknownNotZero(t *testing.T) {
	balances := &fakeBalances{
		snapshot: &indexer.BalanceSnapshot{
			AccountKeys:  []string{"payer"},
			PreBalances:  []uint64{1_000_000},
			PostBalances: []uint64{995_000},
		},
	}
	engine := NewPriceEngine(balances, 0, zap.NewNop())

	price := engine.Infer(context.Background(), mintTx(nil), testDecoded(t, "mint_nft"), 0)
	assert.Nil(t, price, "a sub-dust delta is no signal, not a zero price")
}

func TestInferBalanceFetchErrorYieldsUnknown(t *testing.T) {
	balances := &fakeBalances{err: errors.New("rpc down")}
	engine := NewPriceEngine(balances, 0, zap.NewNop())

	assert.Nil(t, engine.Infer(context.Background(), mintTx(nil), testDecoded(t, "mint_nft"), 0))
}
