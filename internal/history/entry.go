// Package history reconstructs the transaction history of a bonding-curve
// pool: decoded instructions, inferred prices, deduplicated and time-ordered,
// paginated backward and extended forward by live updates.
package history

import "math"

// InstructionUnknown marks entries whose payload could not be decoded. The
// entry is still recorded so the history stays complete.
const InstructionUnknown = "Unknown"

// Entry is one reconstructed history item. Immutable once created: in
// particular the price is fixed at creation and never enriched later.
type Entry struct {
	// Signature uniquely identifies the transaction and is the primary key.
	Signature string
	// Timestamp is unix seconds, nil for synthesized entries whose exact
	// transaction time is not yet known.
	Timestamp *int64
	// InstructionName is the decoded instruction tag, or InstructionUnknown.
	InstructionName string
	// DecodedArgs maps argument names to values, empty when decoding failed.
	DecodedArgs map[string]any
	// InvolvedAccounts lists account addresses in instruction order.
	InvolvedAccounts []string
	// PoolAddress is the account in the schema's pool role, when present.
	PoolAddress string
	// Price is the inferred value in lamports; nil means no inference
	// strategy succeeded, which is distinct from a zero price.
	Price *uint64
	// TxError is the opaque on-chain error payload; non-nil entries failed
	// on-chain and always carry a nil price.
	TxError any
	// Synthesized marks entries produced by the live listener from account
	// state instead of a parsed transaction.
	Synthesized bool
}

// effectiveTime is the sort key: entries without a timestamp are pending
// confirmation and sort as the most recent.
func (e *Entry) effectiveTime() int64 {
	if e.Timestamp == nil {
		return math.MaxInt64
	}
	return *e.Timestamp
}
