package domain

import (
	"fmt"
	"math/bits"
	"time"
)

const (
	BasisPoints   = 10000
	MaxFeeRateBps = 1000
)

// Treasury accumulates the protocol fee taken on every sale.
type Treasury struct {
	FeeRateBps     uint32
	AccruedBalance uint64
	TotalCollected uint64
	TotalWithdrawn uint64
	UpdatedAt      int64
}

func NewTreasury(feeRateBps uint32) (*Treasury, error) {
	if feeRateBps > MaxFeeRateBps {
		return nil, fmt.Errorf("fee rate %d bps above cap of %d bps", feeRateBps, MaxFeeRateBps)
	}
	return &Treasury{FeeRateBps: feeRateBps, UpdatedAt: time.Now().Unix()}, nil
}

// ComputeFee splits price into the protocol fee, rounded down, and the seller proceeds.
// The product is computed on 128 bits so it never overflows.
func ComputeFee(price uint64, feeRateBps uint32) (fee, proceeds uint64) {
	hi, lo := bits.Mul64(price, uint64(feeRateBps))
	fee, _ = bits.Div64(hi, lo, BasisPoints)
	return fee, price - fee
}

func (t *Treasury) SetFeeRate(feeRateBps uint32) error {
	if feeRateBps > MaxFeeRateBps {
		return fmt.Errorf("fee rate %d bps above cap of %d bps", feeRateBps, MaxFeeRateBps)
	}
	t.FeeRateBps = feeRateBps
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// Accrue adds fee to the balance. Totals are capped at MaxPrice, the highest amount every
// store can persist. TotalCollected is never below AccruedBalance.
func (t *Treasury) Accrue(fee uint64) error {
	if fee > MaxPrice || t.TotalCollected > MaxPrice-fee {
		return fmt.Errorf(
			"accruing fee of %d would exceed max collectable amount of %d", fee, uint64(MaxPrice),
		)
	}
	t.AccruedBalance += fee
	t.TotalCollected += fee
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// Drain zeroes the accrued balance and returns the amount that was there.
func (t *Treasury) Drain() uint64 {
	amount := t.AccruedBalance
	t.AccruedBalance = 0
	t.TotalWithdrawn += amount
	t.UpdatedAt = time.Now().Unix()
	return amount
}
