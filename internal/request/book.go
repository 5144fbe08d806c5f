package request

import (
	"errors"
	"fmt"

	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

var (
	// ErrRequestLocked: the investor's pending amount was captured by an
	// approval they have not yet claimed; the request cannot be mutated.
	ErrRequestLocked = errors.New("request locked by unclaimed approval")

	// ErrNothingToCancel: the pending amount was already captured by an
	// approval; the investor must claim first, then cancel the remainder.
	ErrNothingToCancel = errors.New("nothing to cancel")

	// ErrCancellationPending: a cancellation record is already outstanding
	// and has not yet been resolved by a claim.
	ErrCancellationPending = errors.New("cancellation already pending")
)

// Order is one investor's pending request for one direction.
type Order struct {
	// Pending is the uncommitted request amount (asset units for deposit,
	// share units for redeem).
	Pending int64

	// LastUpdate is the first epoch id the current pending amount is
	// eligible for: nowEpoch+1 at request time, claimedEpoch+1 after a
	// claim. The canMutate predicate compares it against the pool-wide
	// last approval epoch.
	LastUpdate uint32

	// Cursor is the next unclaimed epoch id for this investor. Created on
	// first request, advanced only by claims, never decreased.
	Cursor uint32
}

// directionBook holds one direction's orders plus the pool-wide pending
// total and approval watermark for one (shareClass, asset) key.
type directionBook struct {
	orders  map[uuid.UUID]*Order
	cancels map[uuid.UUID]int64

	// pendingTotal is the uncaptured pool-wide pending amount: grows with
	// requests, shrinks with approvals and cancellations.
	pendingTotal int64

	// lastApproval is the most recent epoch id that consumed from the
	// pending pool. Together with each order's LastUpdate it answers
	// "was this investor part of an approval they have not observed".
	lastApproval uint32
}

func newDirectionBook() *directionBook {
	return &directionBook{
		orders:  make(map[uuid.UUID]*Order),
		cancels: make(map[uuid.UUID]int64),
	}
}

func (b *directionBook) order(investor uuid.UUID) *Order {
	o, ok := b.orders[investor]
	if !ok {
		o = &Order{}
		b.orders[investor] = o
	}
	return o
}

// canMutate: latestApproval == 0 OR pending == 0 OR lastUpdate > latestApproval.
func (b *directionBook) canMutate(o *Order) bool {
	return b.lastApproval == 0 || o.Pending == 0 || o.LastUpdate > b.lastApproval
}

// Book is the request book for one (shareClass, asset) key. Pure state,
// serialized per key by the caller.
type Book struct {
	key   pool.Key
	books [2]*directionBook
}

func NewBook(key pool.Key) *Book {
	return &Book{
		key:   key,
		books: [2]*directionBook{newDirectionBook(), newDirectionBook()},
	}
}

func (b *Book) Key() pool.Key { return b.key }

func (b *Book) dir(d pool.Direction) *directionBook {
	return b.books[d]
}

// RecordRequest adds amount to the investor's pending request. nowEpoch is
// the current approval counter for the direction (nowDepositEpoch or
// nowRedeemEpoch); a fresh request is eligible from epoch nowEpoch+1.
func (b *Book) RecordRequest(investor uuid.UUID, d pool.Direction, amount int64, nowEpoch uint32) error {
	if amount <= 0 {
		return fmt.Errorf("record request: non-positive amount %d", amount)
	}
	db := b.dir(d)
	o := db.order(investor)
	if !db.canMutate(o) {
		return fmt.Errorf("%w: investor %s %s", ErrRequestLocked, investor, d)
	}
	if o.Pending == 0 && o.Cursor <= nowEpoch {
		// Skip epochs approved before the investor (re)joined the pool.
		o.Cursor = nowEpoch + 1
	}
	o.Pending += amount
	o.LastUpdate = nowEpoch + 1
	db.pendingTotal += amount
	return nil
}

// RecordCancellation zeroes the investor's pending amount and records a
// cancellation for that amount, provided no part of it has been captured by
// an unclaimed approval. A zero pending amount with no outstanding record is
// a no-op. At most one cancellation record may be outstanding at a time, and
// it is never pro-rated across epochs.
func (b *Book) RecordCancellation(investor uuid.UUID, d pool.Direction, nowEpoch uint32) (int64, error) {
	db := b.dir(d)
	o := db.order(investor)

	if o.Pending == 0 {
		return 0, nil
	}
	if !db.canMutate(o) {
		return 0, fmt.Errorf("%w: investor %s %s", ErrNothingToCancel, investor, d)
	}
	if _, exists := db.cancels[investor]; exists {
		return 0, fmt.Errorf("%w: investor %s %s", ErrCancellationPending, investor, d)
	}

	cancelled := o.Pending
	o.Pending = 0
	o.LastUpdate = nowEpoch + 1
	db.pendingTotal -= cancelled
	db.cancels[investor] = cancelled
	return cancelled, nil
}

// MarkApproved consumes amount from the pool-wide pending pool on behalf of
// epoch epochID. Individual investors' shares are computed lazily at claim
// time from the epoch's snapshot.
func (b *Book) MarkApproved(d pool.Direction, epochID uint32, amount int64) error {
	db := b.dir(d)
	if amount > db.pendingTotal {
		return fmt.Errorf("approve %s epoch %d: amount %d exceeds pending %d",
			d, epochID, amount, db.pendingTotal)
	}
	db.pendingTotal -= amount
	db.lastApproval = epochID
	return nil
}

// PendingTotal returns the uncaptured pool-wide pending amount.
func (b *Book) PendingTotal(d pool.Direction) int64 {
	return b.dir(d).pendingTotal
}

// LastApproval returns the most recent approval epoch for the direction.
func (b *Book) LastApproval(d pool.Direction) uint32 {
	return b.dir(d).lastApproval
}

// OrderOf returns a copy of the investor's order state.
func (b *Book) OrderOf(investor uuid.UUID, d pool.Direction) Order {
	db := b.dir(d)
	if o, ok := db.orders[investor]; ok {
		return *o
	}
	return Order{}
}

// Locked reports whether the investor's request is currently locked by an
// unclaimed approval.
func (b *Book) Locked(investor uuid.UUID, d pool.Direction) bool {
	db := b.dir(d)
	o, ok := db.orders[investor]
	if !ok {
		return false
	}
	return !db.canMutate(o)
}

// ApplyClaim consumes payment from the investor's pending amount for the
// claimed epoch and advances the claim cursor past it.
func (b *Book) ApplyClaim(investor uuid.UUID, d pool.Direction, epochID uint32, payment int64) error {
	db := b.dir(d)
	o := db.order(investor)
	if epochID < o.Cursor {
		return fmt.Errorf("claim %s epoch %d: cursor already at %d", d, epochID, o.Cursor)
	}
	if payment > o.Pending {
		return fmt.Errorf("claim %s epoch %d: payment %d exceeds pending %d",
			d, epochID, payment, o.Pending)
	}
	o.Pending -= payment
	o.Cursor = epochID + 1
	o.LastUpdate = epochID + 1
	return nil
}

// TakeCancellation removes and returns the outstanding cancellation record,
// or 0 if none exists. Called exactly once by the claim that resolves it.
func (b *Book) TakeCancellation(investor uuid.UUID, d pool.Direction) int64 {
	db := b.dir(d)
	amount, ok := db.cancels[investor]
	if !ok {
		return 0
	}
	delete(db.cancels, investor)
	return amount
}

// HasCancellation reports whether a cancellation record is outstanding.
func (b *Book) HasCancellation(investor uuid.UUID, d pool.Direction) bool {
	_, ok := b.dir(d).cancels[investor]
	return ok
}
