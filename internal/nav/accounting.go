package nav

import (
	"errors"
	"fmt"

	"PoolHub/internal/pool"
)

// ErrInvalidNAV: ledger account balances are inconsistent with their expected
// polarity, or the derived NAV is negative. Fatal for the pool's pricing.
var ErrInvalidNAV = errors.New("invalid nav")

// Account enumerates the four account categories that make up a pool's NAV.
type Account uint8

const (
	AccountEquity Account = iota
	AccountGain
	AccountLoss
	AccountLiability
)

func (a Account) String() string {
	switch a {
	case AccountEquity:
		return "equity"
	case AccountGain:
		return "gain"
	case AccountLoss:
		return "loss"
	case AccountLiability:
		return "liability"
	default:
		return "unknown"
	}
}

// Accounting is the query surface of the external double-entry ledger.
// AccountValue reports the balance magnitude and whether the account sits on
// its expected (positive) side.
type Accounting interface {
	AccountValue(p pool.PoolID, account Account) (isPositive bool, amount int64, err error)
}

// PoolNAV derives the hub-side NAV from ledger balances:
// equity + gain - loss - liability. Every account must sit on its expected
// polarity; a flipped sign or a negative result fails with ErrInvalidNAV
// rather than propagating a corrupt price.
func PoolNAV(acc Accounting, p pool.PoolID) (int64, error) {
	total := int64(0)
	for _, account := range []Account{AccountEquity, AccountGain, AccountLoss, AccountLiability} {
		isPositive, amount, err := acc.AccountValue(p, account)
		if err != nil {
			return 0, fmt.Errorf("account %s for pool %d: %w", account, p, err)
		}
		if !isPositive && amount != 0 {
			return 0, fmt.Errorf("%w: account %s for pool %d has unexpected polarity", ErrInvalidNAV, account, p)
		}
		switch account {
		case AccountEquity, AccountGain:
			total += amount
		case AccountLoss, AccountLiability:
			total -= amount
		}
	}
	if total < 0 {
		return 0, fmt.Errorf("%w: derived nav %d is negative for pool %d", ErrInvalidNAV, total, p)
	}
	return total, nil
}
