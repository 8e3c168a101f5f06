package curve

import (
	"errors"
	"math"
)

// Scale is the fixed-point denominator used by the on-chain program.
// A growth factor of 1_200_000 means each minted unit raises the price by 20%.
const Scale uint64 = 1_000_000

// Fee percentages mirrored from the on-chain program.
const (
	MintFeePercent        uint64 = 1 // platform fee on mint
	CreatorRoyaltyPercent uint64 = 5 // creator royalty on secondary sales
)

var ErrMathOverflow = errors.New("curve: arithmetic overflow")

// Constants holds the immutable pricing parameters of a pool. They are read
// once from the pool account and cached for the lifetime of a subscription.
type Constants struct {
	BasePrice    uint64 // lamports at supply 0
	GrowthFactor uint64 // fixed-point, scaled by Scale
}

// Price returns the unit price at the given supply, in lamports.
//
// The computation is the same repeated fixed-point multiplication the program
// performs on-chain: starting from the base price, multiply by the growth
// factor and divide by the scale once per unit of supply. Integer arithmetic
// only; each step truncates exactly like the on-chain math, so results match
// bit-for-bit. Supply 0 returns the base price unchanged.
func Price(basePrice, growthFactor, supply uint64) (uint64, error) {
	price := basePrice
	for i := uint64(0); i < supply; i++ {
		next, err := mulDivChecked(price, growthFactor, Scale)
		if err != nil {
			return 0, err
		}
		price = next
	}
	return price, nil
}

// PriceAt is Price with the pool's cached constants.
func (c Constants) PriceAt(supply uint64) (uint64, error) {
	return Price(c.BasePrice, c.GrowthFactor, supply)
}

// BuyCost returns the total lamports needed to mint amount units starting at
// the given supply: the average of the boundary prices times the amount,
// exactly as the program computes it.
func (c Constants) BuyCost(supply, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, errors.New("curve: amount must be positive")
	}
	current, err := c.PriceAt(supply)
	if err != nil {
		return 0, err
	}
	if supply > math.MaxUint64-amount {
		return 0, ErrMathOverflow
	}
	next, err := c.PriceAt(supply + amount)
	if err != nil {
		return 0, err
	}
	avg, err := addChecked(current, next)
	if err != nil {
		return 0, err
	}
	return mulChecked(avg/2, amount)
}

// SellReturn returns the lamports paid out when burning amount units at the
// given supply. Amount may not exceed the supply.
func (c Constants) SellReturn(supply, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, errors.New("curve: amount must be positive")
	}
	if amount > supply {
		return 0, errors.New("curve: amount exceeds supply")
	}
	current, err := c.PriceAt(supply)
	if err != nil {
		return 0, err
	}
	next, err := c.PriceAt(supply - amount)
	if err != nil {
		return 0, err
	}
	avg, err := addChecked(current, next)
	if err != nil {
		return 0, err
	}
	return mulChecked(avg/2, amount)
}

// MintFee returns the platform fee for a mint of the given total cost.
func MintFee(totalCost uint64) (uint64, error) {
	v, err := mulChecked(totalCost, MintFeePercent)
	if err != nil {
		return 0, err
	}
	return v / 100, nil
}

// CreatorRoyalty returns the creator royalty for a secondary sale.
func CreatorRoyalty(totalCost uint64) (uint64, error) {
	v, err := mulChecked(totalCost, CreatorRoyaltyPercent)
	if err != nil {
		return 0, err
	}
	return v / 100, nil
}

// mulDivChecked computes a*b/div with the same failure mode as the on-chain
// checked_mul: an intermediate product that does not fit in 64 bits is an
// overflow even if the quotient would.
func mulDivChecked(a, b, div uint64) (uint64, error) {
	product, err := mulChecked(a, b)
	if err != nil {
		return 0, err
	}
	return product / div, nil
}

func mulChecked(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrMathOverflow
	}
	return a * b, nil
}

func addChecked(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}
