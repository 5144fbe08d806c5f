package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PoolHub/internal/nav"
	"PoolHub/internal/pool"
)

// AccountBalances reads hub-side pool account balances from the external
// double-entry ledger's balance table. Implements nav.Accounting for the
// hub valuation path: nav = equity + gain - loss - liability.
type AccountBalances struct {
	db *sql.DB
}

func NewAccountBalances(db *sql.DB) *AccountBalances {
	return &AccountBalances{db: db}
}

// AccountValue returns the balance magnitude of one account category and
// whether it sits on its expected side. A missing row reads as a zero
// balance on the expected side.
func (ab *AccountBalances) AccountValue(p pool.PoolID, account nav.Account) (bool, int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var balance int64
	err := ab.db.QueryRowContext(ctx, `
		SELECT balance
		FROM accounting.pool_balances
		WHERE pool = $1 AND account = $2
	`, uint64(p), account.String()).Scan(&balance)

	if err == sql.ErrNoRows {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read %s balance for pool %d: %w", account, p, err)
	}

	if balance < 0 {
		return false, -balance, nil
	}
	return true, balance, nil
}
