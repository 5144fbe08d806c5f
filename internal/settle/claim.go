package settle

import (
	"fmt"

	"PoolHub/internal/epoch"
	"PoolHub/internal/fp"
	"PoolHub/internal/pool"
	"PoolHub/internal/request"

	"github.com/google/uuid"
)

// DrainResult aggregates one claim-drain call. Totals accumulate across all
// epochs processed in the call, so outbound message volume stays independent
// of how many epochs accrued between claims.
type DrainResult struct {
	// Payout is what the investor receives: shares for deposit claims,
	// assets for redeem claims.
	Payout int64

	// Payment is what the investor paid into the epochs: assets for
	// deposit claims, shares for redeem claims.
	Payment int64

	// Cancelled is the resolved cancellation amount, folded in exactly once.
	Cancelled int64

	// EpochFrom/EpochTo bound the claimed epoch range (zero when no epoch
	// was processed). The range never re-emits: the claim cursor only
	// advances forward.
	EpochFrom uint32
	EpochTo   uint32

	// MoreRemaining is true when maxIterations expired before the cursor
	// reached the last finalized epoch.
	MoreRemaining bool
}

// HasEffect reports whether the drain settled anything. A no-op claim emits
// no message and mutates nothing.
func (r DrainResult) HasEffect() bool {
	return r.Payout > 0 || r.Payment > 0 || r.Cancelled > 0
}

// Drain walks the investor's unclaimed finalized epochs, computing the lazy
// pro-rata share of each from the snapshots taken at approval time:
//
//	payment = pendingAtEpoch * approvedAmount / pendingTotalAtEpoch
//	payout  = settledAmount  * payment        / approvedAmount
//
// Both divisions truncate toward zero; dust stays in the pool, and the sum of
// payouts across investors can never exceed the epoch's settled amount.
func Drain(
	led *epoch.Ledger,
	book *request.Book,
	investor uuid.UUID,
	d pool.Direction,
	maxIterations int,
) (DrainResult, error) {
	var res DrainResult

	settledThrough := led.NowIssueEpoch()
	if d == pool.DirectionRedeem {
		settledThrough = led.NowRevokeEpoch()
	}

	for i := 0; i < maxIterations; i++ {
		cursor := book.OrderOf(investor, d).Cursor
		if cursor == 0 || cursor > settledThrough {
			break
		}

		var e *epoch.Approved
		var err error
		if d == pool.DirectionDeposit {
			e, err = led.DepositEpoch(cursor)
		} else {
			e, err = led.RedeemEpoch(cursor)
		}
		if err != nil {
			return DrainResult{}, fmt.Errorf("claim %s: %w", d, err)
		}

		pending := book.OrderOf(investor, d).Pending
		var payment, payout int64
		if pending > 0 && e.PendingTotal > 0 {
			payment = fp.MulDiv(pending, e.ApprovedAmount, e.PendingTotal)
			if payment > 0 {
				payout = fp.MulDiv(e.SettledAmount, payment, e.ApprovedAmount)
			}
		}

		if err := book.ApplyClaim(investor, d, cursor, payment); err != nil {
			return DrainResult{}, err
		}

		if res.EpochFrom == 0 {
			res.EpochFrom = cursor
		}
		res.EpochTo = cursor
		res.Payment += payment
		res.Payout += payout
	}

	// Fold in an outstanding cancellation exactly once, even when no epoch
	// was claimable in this call.
	res.Cancelled = book.TakeCancellation(investor, d)

	cursor := book.OrderOf(investor, d).Cursor
	res.MoreRemaining = cursor != 0 && cursor <= settledThrough
	return res, nil
}
