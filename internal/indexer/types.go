package indexer

// Payload shapes returned by the enhanced transactions API. Only the fields
// the reconstruction engine reads are mapped.

// SignatureInfo is one element of a signature listing page, newest first.
type SignatureInfo struct {
	Signature string
	Timestamp *int64 // unix seconds; nil when the node has not timestamped the slot yet
}

// Transaction is the enriched view of one confirmed transaction.
type Transaction struct {
	Signature        string           `json:"signature"`
	Timestamp        int64            `json:"timestamp"`
	Fee              int64            `json:"fee"`
	FeePayer         string           `json:"feePayer"`
	Slot             int64            `json:"slot"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
	AccountData      []AccountData    `json:"accountData"`
	Instructions     []Instruction    `json:"instructions"`
	TransactionError any              `json:"transactionError"`
}

// Failed reports whether the transaction errored on-chain. Failed transactions
// are still part of the history; they just carry no price.
func (t *Transaction) Failed() bool {
	return t.TransactionError != nil
}

// NativeTransfer is a flat lamport movement observed in the transaction.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// AccountData carries the per-account balance change of the transaction.
type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}

// Instruction is one top-level instruction with its opaque payload and, when
// the provider exposes them, the transfers executed on its behalf.
type Instruction struct {
	ProgramID         string             `json:"programId"`
	Accounts          []string           `json:"accounts"`
	Data              string             `json:"data"` // base58
	InnerInstructions []InnerInstruction `json:"innerInstructions"`
}

// InnerInstruction is a nested effect of a top-level instruction. Not every
// provider populates these; their absence is normal.
type InnerInstruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
}

// BalanceSnapshot is the pre/post lamport balance view of one transaction,
// fetched lazily for the balance-delta pricing fallback.
type BalanceSnapshot struct {
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
}

// Delta returns postBalance-preBalance for the given account, or false if the
// account does not appear in the transaction.
func (s *BalanceSnapshot) Delta(account string) (int64, bool) {
	for i, key := range s.AccountKeys {
		if key != account {
			continue
		}
		if i >= len(s.PreBalances) || i >= len(s.PostBalances) {
			return 0, false
		}
		return int64(s.PostBalances[i]) - int64(s.PreBalances[i]), true
	}
	return 0, false
}
