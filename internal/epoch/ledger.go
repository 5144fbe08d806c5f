package epoch

import (
	"errors"
	"fmt"

	"PoolHub/internal/fp"
	"PoolHub/internal/pool"
)

var (
	// ErrNoPendingEpoch: issue/revoke was called with no approved-but-unsettled
	// epoch in the backlog.
	ErrNoPendingEpoch = errors.New("no pending epoch")

	// ErrEpochOutOfOrder: an epoch id that does not exist or is not yet
	// finalized was referenced.
	ErrEpochOutOfOrder = errors.New("epoch out of order")
)

// Approved is one approved epoch for one direction of one (shareClass, asset)
// key. ApprovedAmount and Price are frozen at approval time and immutable;
// NavPerShare and SettledAmount are fixed exactly once by the matching
// issue/revoke.
type Approved struct {
	EpochID uint32

	// ApprovedAmount is in asset units for the deposit direction and in
	// share units for the redeem direction.
	ApprovedAmount int64

	// PendingTotal is the pool-wide pending amount snapshotted at approval
	// time: the pro-rata denominator used at claim time.
	PendingTotal int64

	// Price is the asset valuation (pool-currency per asset unit) frozen
	// at approval time.
	Price fp.D18

	// NavPerShare is the pool NAV per share observed when the epoch was
	// issued/revoked, not at approval time.
	NavPerShare fp.D18

	// SettledAmount is the share amount issued (deposit) or the asset
	// amount paid out (redeem) when the epoch was finalized.
	SettledAmount int64
}

// directionLog is the backlog-as-queue for one direction: an append-only
// epoch log plus two cursors. approved == len(epochs) is the newest epoch id;
// settled trails it and advances by exactly one per issue/revoke.
type directionLog struct {
	epochs   []*Approved
	approved uint32
	settled  uint32
}

func (l *directionLog) open(amount, pendingTotal int64, price fp.D18) uint32 {
	l.approved++
	l.epochs = append(l.epochs, &Approved{
		EpochID:        l.approved,
		ApprovedAmount: amount,
		PendingTotal:   pendingTotal,
		Price:          price,
	})
	return l.approved
}

func (l *directionLog) oldestUnsettled() (*Approved, error) {
	if l.settled >= l.approved {
		return nil, ErrNoPendingEpoch
	}
	return l.epochs[l.settled], nil
}

func (l *directionLog) get(id uint32) (*Approved, error) {
	if id == 0 || id > l.settled {
		return nil, fmt.Errorf("%w: epoch %d (settled through %d)", ErrEpochOutOfOrder, id, l.settled)
	}
	return l.epochs[id-1], nil
}

// Ledger holds the epoch counters and approved-epoch logs for one
// (shareClass, asset) key. Pure state: no external calls, no locking —
// callers serialize per key.
type Ledger struct {
	key     pool.Key
	deposit directionLog
	redeem  directionLog
}

func NewLedger(key pool.Key) *Ledger {
	return &Ledger{key: key}
}

func (l *Ledger) Key() pool.Key { return l.key }

// Counters. Invariant: NowIssue <= NowDeposit and NowRevoke <= NowRedeem.
func (l *Ledger) NowDepositEpoch() uint32 { return l.deposit.approved }
func (l *Ledger) NowIssueEpoch() uint32   { return l.deposit.settled }
func (l *Ledger) NowRedeemEpoch() uint32  { return l.redeem.approved }
func (l *Ledger) NowRevokeEpoch() uint32  { return l.redeem.settled }

// OpenDepositApproval records a new approved deposit epoch and returns its id.
// Approvals may outrun issuance: each approval is its own epoch and the
// backlog drains via IssueEpoch in FIFO order.
func (l *Ledger) OpenDepositApproval(assetAmount, pendingTotal int64, price fp.D18) uint32 {
	return l.deposit.open(assetAmount, pendingTotal, price)
}

// IssueEpoch converts the oldest unissued deposit epoch's approved asset
// amount into shares at navPerShare and advances the issue cursor.
// The asset amount was frozen at approval; the NAV is the one observed now.
func (l *Ledger) IssueEpoch(navPerShare fp.D18) (uint32, int64, error) {
	e, err := l.deposit.oldestUnsettled()
	if err != nil {
		return 0, 0, err
	}
	if navPerShare.IsZero() {
		return 0, 0, fmt.Errorf("issue epoch %d: zero nav per share", e.EpochID)
	}

	poolAmount := e.Price.MulDown(e.ApprovedAmount)
	shares := navPerShare.DivDown(poolAmount)

	e.NavPerShare = navPerShare
	e.SettledAmount = shares
	l.deposit.settled++
	return e.EpochID, shares, nil
}

// OpenRedeemApproval records a new approved redeem epoch (share units).
func (l *Ledger) OpenRedeemApproval(shareAmount, pendingTotal int64, price fp.D18) uint32 {
	return l.redeem.open(shareAmount, pendingTotal, price)
}

// RevokeEpoch converts the oldest unrevoked redeem epoch's approved share
// amount into assets at navPerShare and advances the revoke cursor.
func (l *Ledger) RevokeEpoch(navPerShare fp.D18) (uint32, int64, error) {
	e, err := l.redeem.oldestUnsettled()
	if err != nil {
		return 0, 0, err
	}
	if e.Price.IsZero() {
		return 0, 0, fmt.Errorf("revoke epoch %d: zero asset price", e.EpochID)
	}

	poolAmount := navPerShare.MulDown(e.ApprovedAmount)
	assets := e.Price.DivDown(poolAmount)

	e.NavPerShare = navPerShare
	e.SettledAmount = assets
	l.redeem.settled++
	return e.EpochID, assets, nil
}

// DepositEpoch returns the finalized deposit epoch with the given id.
// Only issued epochs are visible; anything else is ErrEpochOutOfOrder.
func (l *Ledger) DepositEpoch(id uint32) (*Approved, error) {
	return l.deposit.get(id)
}

// RedeemEpoch returns the finalized redeem epoch with the given id.
func (l *Ledger) RedeemEpoch(id uint32) (*Approved, error) {
	return l.redeem.get(id)
}
