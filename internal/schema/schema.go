// Package schema describes the bonding-curve program's instruction surface as
// a static, validated lookup table: Anchor discriminator -> instruction name,
// ordered account roles and argument layout. The table replaces ad hoc string
// matching at call sites; decoding is pure and side-effect free.
package schema

import (
	"crypto/sha256"
	"fmt"
)

// ArgType enumerates the borsh-encoded argument types the program uses.
type ArgType int

const (
	ArgU8 ArgType = iota
	ArgU32
	ArgU64
	ArgI64
	ArgBool
	ArgString
	ArgPublicKey
	ArgOptionU32
	ArgOptionU64
)

// ArgSpec is one named argument in an instruction's payload, in wire order.
type ArgSpec struct {
	Name string
	Type ArgType
}

// AccountRole binds a semantic role name to a position in the instruction's
// account list.
type AccountRole struct {
	Role  string
	Index int
}

// Class describes which way value flows for an instruction, which the price
// inference engine uses to orient its transfer matching.
type Class int

const (
	// ClassNeutral instructions move no inferable value.
	ClassNeutral Class = iota
	// ClassMint instructions move value from the fee payer into escrow.
	ClassMint
	// ClassSell instructions move value from escrow back to the fee payer.
	ClassSell
)

// Instruction is one entry of the program schema.
type Instruction struct {
	Name     string
	Class    Class
	Accounts []AccountRole
	Args     []ArgSpec
}

// AccountIndex resolves a role to its position in the account list, or -1 if
// the instruction has no account in that role. Callers must tolerate -1.
func (ins *Instruction) AccountIndex(role string) int {
	for _, acc := range ins.Accounts {
		if acc.Role == role {
			return acc.Index
		}
	}
	return -1
}

// Discriminator returns the 8-byte Anchor instruction discriminator,
// sha256("global:<name>")[:8].
func Discriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], hash[:8])
	return d
}

// Registry holds the validated schema, keyed by discriminator.
type Registry struct {
	byDiscriminator map[[8]byte]*Instruction
	byName          map[string]*Instruction
}

// NewRegistry validates the instruction set and builds the lookup table.
func NewRegistry(instructions []Instruction) (*Registry, error) {
	r := &Registry{
		byDiscriminator: make(map[[8]byte]*Instruction, len(instructions)),
		byName:          make(map[string]*Instruction, len(instructions)),
	}

	for i := range instructions {
		ins := &instructions[i]
		if ins.Name == "" {
			return nil, fmt.Errorf("schema: instruction %d has no name", i)
		}
		if _, dup := r.byName[ins.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate instruction %q", ins.Name)
		}
		seen := make(map[string]bool, len(ins.Accounts))
		for _, acc := range ins.Accounts {
			if acc.Index < 0 {
				return nil, fmt.Errorf("schema: %s role %q has negative index", ins.Name, acc.Role)
			}
			if seen[acc.Role] {
				return nil, fmt.Errorf("schema: %s declares role %q twice", ins.Name, acc.Role)
			}
			seen[acc.Role] = true
		}

		d := Discriminator(ins.Name)
		if prev, dup := r.byDiscriminator[d]; dup {
			return nil, fmt.Errorf("schema: discriminator collision between %q and %q", prev.Name, ins.Name)
		}
		r.byDiscriminator[d] = ins
		r.byName[ins.Name] = ins
	}

	return r, nil
}

// Lookup returns the instruction for a discriminator.
func (r *Registry) Lookup(d [8]byte) (*Instruction, bool) {
	ins, ok := r.byDiscriminator[d]
	return ins, ok
}

// ByName returns the instruction with the given name.
func (r *Registry) ByName(name string) (*Instruction, bool) {
	ins, ok := r.byName[name]
	return ins, ok
}

// Names returns the instruction names in the registry, unordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Role names shared across instructions.
const (
	RolePool   = "pool"
	RoleEscrow = "escrow"
	RolePayer  = "payer"
)

// BondingCurveInstructions is the schema of the bonding-curve program. The
// account orders mirror the program's Accounts contexts.
func BondingCurveInstructions() []Instruction {
	return []Instruction{
		{
			Name:  "create_pool",
			Class: ClassNeutral,
			Accounts: []AccountRole{
				{Role: "creator", Index: 0},
				{Role: "collection_mint", Index: 1},
				{Role: RolePool, Index: 2},
				{Role: "system_program", Index: 3},
			},
			Args: []ArgSpec{
				{Name: "base_price", Type: ArgU64},
				{Name: "growth_factor", Type: ArgU64},
			},
		},
		{
			Name:  "create_collection_nft",
			Class: ClassNeutral,
			Accounts: []AccountRole{
				{Role: RolePayer, Index: 0},
				{Role: "collection_mint", Index: 1},
				{Role: "metadata", Index: 2},
				{Role: "master_edition", Index: 3},
				{Role: "token_program", Index: 4},
				{Role: "token_metadata_program", Index: 5},
				{Role: "system_program", Index: 6},
				{Role: "rent", Index: 7},
			},
			Args: []ArgSpec{
				{Name: "name", Type: ArgString},
				{Name: "symbol", Type: ArgString},
				{Name: "uri", Type: ArgString},
			},
		},
		{
			Name:  "mint_nft",
			Class: ClassMint,
			Accounts: []AccountRole{
				{Role: RolePayer, Index: 0},
				{Role: "nft_mint", Index: 1},
				{Role: RoleEscrow, Index: 2},
				{Role: RolePool, Index: 3},
				{Role: "token_account", Index: 4},
				{Role: "token_metadata_program", Index: 5},
				{Role: "metadata", Index: 6},
				{Role: "master_edition", Index: 7},
				{Role: "collection_mint", Index: 8},
				{Role: "collection_metadata", Index: 9},
				{Role: "token_program", Index: 10},
				{Role: "associated_token_program", Index: 11},
				{Role: "system_program", Index: 12},
				{Role: "rent", Index: 13},
			},
			Args: []ArgSpec{
				{Name: "name", Type: ArgString},
				{Name: "symbol", Type: ArgString},
				{Name: "uri", Type: ArgString},
			},
		},
		{
			// Secondary purchase settles directly between buyer and seller,
			// so there is no escrow role here.
			Name:  "buy_nft",
			Class: ClassMint,
			Accounts: []AccountRole{
				{Role: "buyer", Index: 0},
				{Role: "buyer_account", Index: 1},
				{Role: "seller_account", Index: 2},
				{Role: "nft_data", Index: 3},
				{Role: "nft_mint", Index: 4},
				{Role: "seller_token_account", Index: 5},
				{Role: "buyer_token_account", Index: 6},
				{Role: RolePool, Index: 7},
				{Role: "minter_tracker", Index: 8},
				{Role: "collection_distribution", Index: 9},
				{Role: "platform_wallet", Index: 10},
				{Role: "original_minter", Index: 11},
				{Role: "token_program", Index: 12},
				{Role: "system_program", Index: 13},
			},
			Args: []ArgSpec{
				{Name: "offered_price", Type: ArgU64},
			},
		},
		{
			Name:  "sell_nft",
			Class: ClassSell,
			Accounts: []AccountRole{
				{Role: "seller", Index: 0},
				{Role: RolePool, Index: 1},
				{Role: RoleEscrow, Index: 2},
				{Role: "creator", Index: 3},
				{Role: "nft_mint", Index: 4},
				{Role: "seller_token_account", Index: 5},
				{Role: "token_metadata_program", Index: 6},
				{Role: "metadata", Index: 7},
				{Role: "master_edition", Index: 8},
				{Role: "collection_mint", Index: 9},
				{Role: "token_program", Index: 10},
				{Role: "system_program", Index: 11},
			},
		},
		{
			Name:  "list_for_bids",
			Class: ClassNeutral,
			Accounts: []AccountRole{
				{Role: "seller", Index: 0},
				{Role: "nft_mint", Index: 1},
				{Role: "seller_token_account", Index: 2},
				{Role: "bid_listing", Index: 3},
				{Role: "token_program", Index: 4},
				{Role: "system_program", Index: 5},
			},
			Args: []ArgSpec{
				{Name: "min_bid", Type: ArgU64},
				{Name: "duration_hours", Type: ArgOptionU32},
			},
		},
		{
			Name:  "place_bid",
			Class: ClassMint,
			Accounts: []AccountRole{
				{Role: "bidder", Index: 0},
				{Role: "nft_mint", Index: 1},
				{Role: "bid_listing", Index: 2},
				{Role: "bid", Index: 3},
				{Role: RoleEscrow, Index: 4},
				{Role: "system_program", Index: 5},
			},
			Args: []ArgSpec{
				{Name: "bid_id", Type: ArgU64},
				{Name: "amount", Type: ArgU64},
				{Name: "duration_hours", Type: ArgOptionU32},
				{Name: "previous_bid_id", Type: ArgOptionU64},
			},
		},
		{
			Name:  "accept_bid",
			Class: ClassSell,
			Accounts: []AccountRole{
				{Role: "minter", Index: 0},
				{Role: "bidder", Index: 1},
				{Role: "nft_mint", Index: 2},
				{Role: "bid", Index: 3},
				{Role: "bid_listing", Index: 4},
				{Role: RoleEscrow, Index: 5},
				{Role: RolePool, Index: 6},
				{Role: "token_program", Index: 7},
				{Role: "system_program", Index: 8},
			},
			Args: []ArgSpec{
				{Name: "bid_id", Type: ArgU64},
			},
		},
		{
			Name:  "cancel_bid",
			Class: ClassSell,
			Accounts: []AccountRole{
				{Role: "bidder", Index: 0},
				{Role: "bid", Index: 1},
				{Role: "bid_listing", Index: 2},
				{Role: RoleEscrow, Index: 3},
				{Role: "system_program", Index: 4},
			},
			Args: []ArgSpec{
				{Name: "bid_id", Type: ArgU64},
			},
		},
		{
			Name:  "distribute_collection_fees",
			Class: ClassNeutral,
			Accounts: []AccountRole{
				{Role: "authority", Index: 0},
				{Role: RolePool, Index: 1},
				{Role: "collection_distribution", Index: 2},
				{Role: "system_program", Index: 3},
			},
		},
		{
			Name:  "migrate_to_tensor",
			Class: ClassNeutral,
			Accounts: []AccountRole{
				{Role: "authority", Index: 0},
				{Role: RolePool, Index: 1},
				{Role: "system_program", Index: 2},
			},
		},
	}
}

// BondingCurveRegistry builds the registry for the bonding-curve program.
// The table is static, so a validation failure is a programming error.
func BondingCurveRegistry() *Registry {
	r, err := NewRegistry(BondingCurveInstructions())
	if err != nil {
		panic(err)
	}
	return r
}
