package history

import (
	"context"
	"encoding/binary"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/indexer"
	"github.com/sketchxpress/curvetrack/internal/schema"
)

// DefaultDustThreshold is the lamport floor below which a balance delta is
// treated as noise (rent, fee remainders) rather than a price signal.
const DefaultDustThreshold uint64 = 10_000

// systemProgramID is the native program whose inner instructions carry plain
// lamport transfers.
const systemProgramID = "11111111111111111111111111111111"

// systemTransferIndex is the system program's transfer instruction tag.
const systemTransferIndex uint32 = 2

// BalanceFetcher lazily loads the pre/post balances of one transaction. It is
// a network round-trip, so the engine only calls it when the cheaper
// strategies fail.
type BalanceFetcher interface {
	GetTransactionBalances(ctx context.Context, signature string) (*indexer.BalanceSnapshot, error)
}

// PriceEngine infers the economic value a transaction moved. Strategies run
// in strict priority order and the first success wins; results are never
// combined. A nil result means "unknown", which callers must keep distinct
// from a zero price.
type PriceEngine struct {
	balances      BalanceFetcher
	dustThreshold uint64
	logger        *zap.Logger
}

func NewPriceEngine(balances BalanceFetcher, dustThreshold uint64, logger *zap.Logger) *PriceEngine {
	if dustThreshold == 0 {
		dustThreshold = DefaultDustThreshold
	}
	return &PriceEngine{
		balances:      balances,
		dustThreshold: dustThreshold,
		logger:        logger.Named("price-engine"),
	}
}

// Infer returns the price in lamports for the decoded instruction at
// insIndex, or nil when no strategy produced a signal.
func (e *PriceEngine) Infer(ctx context.Context, tx *indexer.Transaction, decoded *schema.Decoded, insIndex int) *uint64 {
	if decoded == nil || decoded.Instruction.Class == schema.ClassNeutral {
		return nil
	}

	escrow := e.roleAddress(tx, decoded, insIndex, schema.RoleEscrow)

	// Strategy 1: direct transfers between the fee payer and the escrow.
	if price := e.matchTransfers(tx.NativeTransfers, decoded.Instruction.Class, tx.FeePayer, escrow); price != nil {
		return price
	}

	// Strategy 2: transfers nested under the decoded instruction. Providers
	// that do not expose inner instructions simply skip this.
	if price := e.matchInnerTransfers(tx, decoded.Instruction.Class, insIndex, escrow); price != nil {
		return price
	}

	// Strategy 3: balance deltas, fetched lazily because it costs a round-trip.
	return e.balanceDelta(ctx, tx, decoded.Instruction.Class, escrow)
}

// roleAddress resolves a schema role to the concrete address in the
// transaction's account list. Empty when the role is absent (-1) or the
// account list is shorter than the schema expects.
func (e *PriceEngine) roleAddress(tx *indexer.Transaction, decoded *schema.Decoded, insIndex int, role string) string {
	idx := decoded.Instruction.AccountIndex(role)
	if idx < 0 || insIndex < 0 || insIndex >= len(tx.Instructions) {
		return ""
	}
	accounts := tx.Instructions[insIndex].Accounts
	if idx >= len(accounts) {
		return ""
	}
	return accounts[idx]
}

// matchTransfers scans a flat transfer list for movements between the fee
// payer and the escrow, oriented by instruction class, and picks the largest
// match. The max rule keeps incidental small transfers (rent, fee skims) from
// shadowing the real payment.
func (e *PriceEngine) matchTransfers(transfers []indexer.NativeTransfer, class schema.Class, feePayer, escrow string) *uint64 {
	if feePayer == "" || escrow == "" {
		return nil
	}

	from, to := feePayer, escrow
	if class == schema.ClassSell {
		from, to = escrow, feePayer
	}

	var best *uint64
	for _, transfer := range transfers {
		if transfer.FromUserAccount != from || transfer.ToUserAccount != to {
			continue
		}
		if transfer.Amount <= 0 {
			continue
		}
		amount := uint64(transfer.Amount)
		if best == nil || amount > *best {
			value := amount
			best = &value
		}
	}
	return best
}

// matchInnerTransfers repeats the direct match scoped to the system-program
// transfers executed inside the decoded instruction.
func (e *PriceEngine) matchInnerTransfers(tx *indexer.Transaction, class schema.Class, insIndex int, escrow string) *uint64 {
	if insIndex < 0 || insIndex >= len(tx.Instructions) {
		return nil
	}

	var transfers []indexer.NativeTransfer
	for _, inner := range tx.Instructions[insIndex].InnerInstructions {
		if transfer, ok := decodeSystemTransfer(inner); ok {
			transfers = append(transfers, transfer)
		}
	}
	return e.matchTransfers(transfers, class, tx.FeePayer, escrow)
}

// decodeSystemTransfer parses an inner instruction as a system-program
// lamport transfer: u32 tag 2 followed by a u64 amount, accounts [from, to].
func decodeSystemTransfer(inner indexer.InnerInstruction) (indexer.NativeTransfer, bool) {
	if inner.ProgramID != systemProgramID || len(inner.Accounts) < 2 {
		return indexer.NativeTransfer{}, false
	}
	raw, err := base58.Decode(inner.Data)
	if err != nil || len(raw) < 12 {
		return indexer.NativeTransfer{}, false
	}
	if binary.LittleEndian.Uint32(raw[:4]) != systemTransferIndex {
		return indexer.NativeTransfer{}, false
	}
	return indexer.NativeTransfer{
		FromUserAccount: inner.Accounts[0],
		ToUserAccount:   inner.Accounts[1],
		Amount:          int64(binary.LittleEndian.Uint64(raw[4:12])),
	}, true
}

// balanceDelta derives the price from the transaction's pre/post balances:
// the escrow's payout for a sell, the fee payer's spend for a mint. Deltas
// below the dust threshold are "no signal", never a zero price.
func (e *PriceEngine) balanceDelta(ctx context.Context, tx *indexer.Transaction, class schema.Class, escrow string) *uint64 {
	account := escrow
	if class == schema.ClassMint {
		account = tx.FeePayer
	}
	if account == "" {
		return nil
	}

	snapshot, err := e.balances.GetTransactionBalances(ctx, tx.Signature)
	if err != nil {
		e.logger.Debug("Balance fallback unavailable",
			zap.String("signature", tx.Signature),
			zap.Error(err))
		return nil
	}

	delta, ok := snapshot.Delta(account)
	if !ok {
		return nil
	}

	// Both orientations spend from the tracked account, so the price is the
	// pre-minus-post decrease.
	spent := -delta
	if spent <= 0 || uint64(spent) < e.dustThreshold {
		return nil
	}
	value := uint64(spent)
	return &value
}
