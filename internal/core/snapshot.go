package core

import (
	"fmt"

	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// Read-side snapshots. Each accessor takes the same lock the write path
// takes, so every snapshot is a consistent point-in-time view of one
// partition.

// KeySnapshot is the settlement state of one (shareClass, asset) key.
type KeySnapshot struct {
	Pool       pool.PoolID       `json:"pool"`
	ShareClass pool.ShareClassID `json:"share_class"`
	Asset      pool.AssetID      `json:"asset"`

	NowDepositEpoch uint32 `json:"now_deposit_epoch"`
	NowIssueEpoch   uint32 `json:"now_issue_epoch"`
	NowRedeemEpoch  uint32 `json:"now_redeem_epoch"`
	NowRevokeEpoch  uint32 `json:"now_revoke_epoch"`

	PendingDeposits int64 `json:"pending_deposits"`
	PendingRedeems  int64 `json:"pending_redeems"`

	// Approved-but-unsettled epoch counts per direction.
	DepositBacklog uint32 `json:"deposit_backlog"`
	RedeemBacklog  uint32 `json:"redeem_backlog"`
}

// InvestorSnapshot is one investor's request state for one direction.
type InvestorSnapshot struct {
	Investor  uuid.UUID `json:"investor"`
	Direction string    `json:"direction"`

	Pending    int64  `json:"pending"`
	Cursor     uint32 `json:"cursor"`
	LastUpdate uint32 `json:"last_update"`

	Locked              bool `json:"locked"`
	PendingCancellation bool `json:"pending_cancellation"`
}

// PoolPriceSnapshot is the aggregator state of one pool.
type PoolPriceSnapshot struct {
	Pool          pool.PoolID      `json:"pool"`
	PricePerShare string           `json:"price_per_share"` // D18 raw
	Halted        bool             `json:"halted"`
	TotalIssuance int64            `json:"total_issuance"`
	TotalNAV      int64            `json:"total_nav"`
	Networks      []pool.NetworkID `json:"networks"`
}

// SnapshotKey returns the settlement state of one key.
func (e *Engine) SnapshotKey(p pool.PoolID, k pool.Key) KeySnapshot {
	ks := e.keyState(p, k)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	return KeySnapshot{
		Pool:            p,
		ShareClass:      k.ShareClass,
		Asset:           k.Asset,
		NowDepositEpoch: ks.led.NowDepositEpoch(),
		NowIssueEpoch:   ks.led.NowIssueEpoch(),
		NowRedeemEpoch:  ks.led.NowRedeemEpoch(),
		NowRevokeEpoch:  ks.led.NowRevokeEpoch(),
		PendingDeposits: ks.book.PendingTotal(pool.DirectionDeposit),
		PendingRedeems:  ks.book.PendingTotal(pool.DirectionRedeem),
		DepositBacklog:  ks.led.NowDepositEpoch() - ks.led.NowIssueEpoch(),
		RedeemBacklog:   ks.led.NowRedeemEpoch() - ks.led.NowRevokeEpoch(),
	}
}

// SnapshotInvestor returns one investor's request state for one direction.
func (e *Engine) SnapshotInvestor(p pool.PoolID, k pool.Key, investor uuid.UUID, d pool.Direction) InvestorSnapshot {
	ks := e.keyState(p, k)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	o := ks.book.OrderOf(investor, d)
	return InvestorSnapshot{
		Investor:            investor,
		Direction:           d.String(),
		Pending:             o.Pending,
		Cursor:              o.Cursor,
		LastUpdate:          o.LastUpdate,
		Locked:              ks.book.Locked(investor, d),
		PendingCancellation: ks.book.HasCancellation(investor, d),
	}
}

// SnapshotPoolPrice returns the aggregator state of one pool.
func (e *Engine) SnapshotPoolPrice(p pool.PoolID) (PoolPriceSnapshot, error) {
	agg := e.poolState(p).nav

	price, err := agg.PricePerShare()
	snap := PoolPriceSnapshot{
		Pool:          p,
		Halted:        agg.Halted(),
		TotalIssuance: agg.TotalIssuance(),
		TotalNAV:      agg.TotalNAV(),
		Networks:      agg.Networks(),
	}
	if err != nil {
		// Halted pools still report their last-known totals; the price is
		// withheld because nothing may settle against it.
		return snap, fmt.Errorf("pool %d: %w", p, err)
	}
	snap.PricePerShare = price.RawString()
	return snap, nil
}
