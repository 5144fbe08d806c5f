package settle

import (
	"errors"
	"fmt"

	"PoolHub/internal/epoch"
	"PoolHub/internal/fp"
	"PoolHub/internal/pool"
	"PoolHub/internal/request"
)

// ErrMismatchedEpochs: a convenience operation that requires an empty backlog
// was invoked while approvals had outrun issuance (or the redeem analog).
var ErrMismatchedEpochs = errors.New("mismatched epochs")

// QuoteSource is the external valuation collaborator, queried synchronously
// at approval time. If the quote is unavailable the approval fails; retrying
// is the caller's concern.
type QuoteSource interface {
	Quote(asset pool.AssetID) (fp.D18, error)
}

// NavSource supplies the pool NAV per share at issuance/revocation time.
// Implemented by the price aggregator.
type NavSource interface {
	PricePerShare(p pool.PoolID) (fp.D18, error)
}

// Engine drives approvals, issuance and revocation against one
// (shareClass, asset) key at a time. It owns no state of its own: epoch
// ledger and request book are passed in by the caller, which also provides
// per-key serialization.
type Engine struct {
	quotes QuoteSource
	nav    NavSource
}

func NewEngine(quotes QuoteSource, nav NavSource) *Engine {
	return &Engine{quotes: quotes, nav: nav}
}

// ApproveDeposits freezes the asset quote and records a new approved deposit
// epoch consuming assetAmount from the pool-wide pending pool. Returns the
// new epoch id and the frozen price.
func (e *Engine) ApproveDeposits(
	led *epoch.Ledger,
	book *request.Book,
	assetAmount int64,
) (uint32, fp.D18, error) {
	price, err := e.quotes.Quote(led.Key().Asset)
	if err != nil {
		return 0, fp.D18{}, fmt.Errorf("quote %s: %w", led.Key().Asset, err)
	}
	epochID, err := e.ApproveDepositsAt(led, book, assetAmount, price)
	return epochID, price, err
}

// ApproveDepositsAt approves with an already-frozen price. Used by replay,
// where the price recorded at original processing time must be reused
// instead of re-quoting.
func (e *Engine) ApproveDepositsAt(
	led *epoch.Ledger,
	book *request.Book,
	assetAmount int64,
	price fp.D18,
) (uint32, error) {
	if assetAmount <= 0 {
		return 0, fmt.Errorf("approve deposits: non-positive amount %d", assetAmount)
	}
	pending := book.PendingTotal(pool.DirectionDeposit)
	if assetAmount > pending {
		return 0, fmt.Errorf("approve deposits: amount %d exceeds pending %d", assetAmount, pending)
	}
	if price.IsZero() {
		return 0, fmt.Errorf("approve deposits %s: zero price", led.Key().Asset)
	}

	epochID := led.OpenDepositApproval(assetAmount, pending, price)
	if err := book.MarkApproved(pool.DirectionDeposit, epochID, assetAmount); err != nil {
		return 0, err
	}
	return epochID, nil
}

// ApproveRedeems is the share-direction analog of ApproveDeposits.
func (e *Engine) ApproveRedeems(
	led *epoch.Ledger,
	book *request.Book,
	shareAmount int64,
) (uint32, fp.D18, error) {
	price, err := e.quotes.Quote(led.Key().Asset)
	if err != nil {
		return 0, fp.D18{}, fmt.Errorf("quote %s: %w", led.Key().Asset, err)
	}
	epochID, err := e.ApproveRedeemsAt(led, book, shareAmount, price)
	return epochID, price, err
}

// ApproveRedeemsAt approves the redeem direction with an already-frozen price.
func (e *Engine) ApproveRedeemsAt(
	led *epoch.Ledger,
	book *request.Book,
	shareAmount int64,
	price fp.D18,
) (uint32, error) {
	if shareAmount <= 0 {
		return 0, fmt.Errorf("approve redeems: non-positive amount %d", shareAmount)
	}
	pending := book.PendingTotal(pool.DirectionRedeem)
	if shareAmount > pending {
		return 0, fmt.Errorf("approve redeems: amount %d exceeds pending %d", shareAmount, pending)
	}
	if price.IsZero() {
		return 0, fmt.Errorf("approve redeems %s: zero price", led.Key().Asset)
	}

	epochID := led.OpenRedeemApproval(shareAmount, pending, price)
	if err := book.MarkApproved(pool.DirectionRedeem, epochID, shareAmount); err != nil {
		return 0, err
	}
	return epochID, nil
}

// IssueShares finalizes the oldest unissued deposit epoch. The NAV per share
// is the one observed now, never a stale one from approval time; only the
// approved asset amount is carried over frozen. Each call drains exactly one
// epoch of the backlog.
func (e *Engine) IssueShares(p pool.PoolID, led *epoch.Ledger) (uint32, int64, error) {
	nav, err := e.nav.PricePerShare(p)
	if err != nil {
		return 0, 0, fmt.Errorf("nav for pool %d: %w", p, err)
	}
	return led.IssueEpoch(nav)
}

// RevokeShares finalizes the oldest unrevoked redeem epoch at the current NAV.
func (e *Engine) RevokeShares(p pool.PoolID, led *epoch.Ledger) (uint32, int64, error) {
	nav, err := e.nav.PricePerShare(p)
	if err != nil {
		return 0, 0, fmt.Errorf("nav for pool %d: %w", p, err)
	}
	return led.RevokeEpoch(nav)
}

// ApproveAndIssue is the no-backlog convenience wrapper: it fails with
// ErrMismatchedEpochs unless issuance is fully caught up, then approves and
// immediately issues the new epoch.
func (e *Engine) ApproveAndIssue(
	p pool.PoolID,
	led *epoch.Ledger,
	book *request.Book,
	assetAmount int64,
) (uint32, int64, error) {
	if led.NowDepositEpoch() != led.NowIssueEpoch() {
		return 0, 0, fmt.Errorf("%w: deposit epoch %d, issue epoch %d",
			ErrMismatchedEpochs, led.NowDepositEpoch(), led.NowIssueEpoch())
	}
	epochID, _, err := e.ApproveDeposits(led, book, assetAmount)
	if err != nil {
		return 0, 0, err
	}
	_, shares, err := e.IssueShares(p, led)
	if err != nil {
		return 0, 0, err
	}
	return epochID, shares, nil
}

// ApproveAndRevoke is the redeem-direction analog of ApproveAndIssue.
func (e *Engine) ApproveAndRevoke(
	p pool.PoolID,
	led *epoch.Ledger,
	book *request.Book,
	shareAmount int64,
) (uint32, int64, error) {
	if led.NowRedeemEpoch() != led.NowRevokeEpoch() {
		return 0, 0, fmt.Errorf("%w: redeem epoch %d, revoke epoch %d",
			ErrMismatchedEpochs, led.NowRedeemEpoch(), led.NowRevokeEpoch())
	}
	epochID, _, err := e.ApproveRedeems(led, book, shareAmount)
	if err != nil {
		return 0, 0, err
	}
	_, assets, err := e.RevokeShares(p, led)
	if err != nil {
		return 0, 0, err
	}
	return epochID, assets, nil
}
