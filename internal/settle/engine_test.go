package settle

import (
	"errors"
	"fmt"
	"testing"

	"PoolHub/internal/epoch"
	"PoolHub/internal/fp"
	"PoolHub/internal/pool"
	"PoolHub/internal/request"

	"github.com/google/uuid"
)

// stubQuotes returns a fixed price per asset, or an error when price is zero.
type stubQuotes struct {
	price fp.D18
	calls int
}

func (s *stubQuotes) Quote(asset pool.AssetID) (fp.D18, error) {
	s.calls++
	if s.price.IsZero() {
		return fp.D18{}, fmt.Errorf("no quote for %s", asset)
	}
	return s.price, nil
}

// stubNav returns a fixed pool NAV per share.
type stubNav struct {
	nav fp.D18
}

func (s *stubNav) PricePerShare(p pool.PoolID) (fp.D18, error) {
	if s.nav.IsZero() {
		return fp.D18{}, fmt.Errorf("no nav for pool %d", p)
	}
	return s.nav, nil
}

func newTestEngine(price, nav fp.D18) (*Engine, *epoch.Ledger, *request.Book) {
	key := pool.NewKey("SC-A", "USDC")
	return NewEngine(&stubQuotes{price: price}, &stubNav{nav: nav}),
		epoch.NewLedger(key),
		request.NewBook(key)
}

func TestDepositLifecycle(t *testing.T) {
	eng, led, book := newTestEngine(fp.One(), fp.One())
	inv := uuid.New()

	// Request 1000, approve 700, issue, claim.
	if err := book.RecordRequest(inv, pool.DirectionDeposit, 1000, led.NowDepositEpoch()); err != nil {
		t.Fatalf("RecordRequest: %v", err)
	}

	epochID, price, err := eng.ApproveDeposits(led, book, 700)
	if err != nil {
		t.Fatalf("ApproveDeposits: %v", err)
	}
	if epochID != 1 {
		t.Errorf("epoch id = %d, want 1", epochID)
	}
	if price.Cmp(fp.One()) != 0 {
		t.Errorf("frozen price = %s, want 1", price)
	}
	if book.PendingTotal(pool.DirectionDeposit) != 300 {
		t.Errorf("pool pending after approval = %d, want 300", book.PendingTotal(pool.DirectionDeposit))
	}

	_, shares, err := eng.IssueShares(7, led)
	if err != nil {
		t.Fatalf("IssueShares: %v", err)
	}
	if shares != 700 {
		t.Errorf("issued shares = %d, want 700", shares)
	}

	res, err := Drain(led, book, inv, pool.DirectionDeposit, 10)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Payment != 700 {
		t.Errorf("payment = %d, want 700", res.Payment)
	}
	if res.Payout != 700 {
		t.Errorf("payout = %d, want 700", res.Payout)
	}
	if res.EpochFrom != 1 || res.EpochTo != 1 {
		t.Errorf("epoch range = [%d, %d], want [1, 1]", res.EpochFrom, res.EpochTo)
	}
	if res.MoreRemaining {
		t.Error("MoreRemaining = true, want false")
	}

	o := book.OrderOf(inv, pool.DirectionDeposit)
	if o.Pending != 300 {
		t.Errorf("residual pending = %d, want 300", o.Pending)
	}
}

func TestRedeemLifecycle(t *testing.T) {
	// Asset price 2.0, nav 1.0: 700 shares -> 700 pool currency -> 350 assets.
	eng, led, book := newTestEngine(fp.FromInt(2), fp.One())
	inv := uuid.New()

	if err := book.RecordRequest(inv, pool.DirectionRedeem, 700, led.NowRedeemEpoch()); err != nil {
		t.Fatalf("RecordRequest: %v", err)
	}
	if _, _, err := eng.ApproveRedeems(led, book, 700); err != nil {
		t.Fatalf("ApproveRedeems: %v", err)
	}

	_, assets, err := eng.RevokeShares(7, led)
	if err != nil {
		t.Fatalf("RevokeShares: %v", err)
	}
	if assets != 350 {
		t.Errorf("revoked assets = %d, want 350", assets)
	}

	res, err := Drain(led, book, inv, pool.DirectionRedeem, 10)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Payment != 700 {
		t.Errorf("payment (shares) = %d, want 700", res.Payment)
	}
	if res.Payout != 350 {
		t.Errorf("payout (assets) = %d, want 350", res.Payout)
	}
}

func TestProRataConservation(t *testing.T) {
	eng, led, book := newTestEngine(fp.One(), fp.One())
	a, b := uuid.New(), uuid.New()

	// A pends 333, B pends 667; 500 of the 1000 approved.
	book.RecordRequest(a, pool.DirectionDeposit, 333, 0)
	book.RecordRequest(b, pool.DirectionDeposit, 667, 0)
	if _, _, err := eng.ApproveDeposits(led, book, 500); err != nil {
		t.Fatalf("ApproveDeposits: %v", err)
	}
	_, settled, err := eng.IssueShares(7, led)
	if err != nil {
		t.Fatalf("IssueShares: %v", err)
	}

	resA, err := Drain(led, book, a, pool.DirectionDeposit, 10)
	if err != nil {
		t.Fatalf("Drain A: %v", err)
	}
	resB, err := Drain(led, book, b, pool.DirectionDeposit, 10)
	if err != nil {
		t.Fatalf("Drain B: %v", err)
	}

	// 333*500/1000 = 166 (truncated), 667*500/1000 = 333.
	if resA.Payment != 166 {
		t.Errorf("A payment = %d, want 166", resA.Payment)
	}
	if resB.Payment != 333 {
		t.Errorf("B payment = %d, want 333", resB.Payment)
	}

	// Payouts never exceed the settled amount; dust stays in the pool.
	totalPayout := resA.Payout + resB.Payout
	if totalPayout > settled {
		t.Errorf("total payout %d exceeds settled %d", totalPayout, settled)
	}
	if settled-totalPayout > 1 {
		t.Errorf("dust %d larger than expected", settled-totalPayout)
	}
}

func TestDrainIsIdempotent(t *testing.T) {
	eng, led, book := newTestEngine(fp.One(), fp.One())
	inv := uuid.New()

	book.RecordRequest(inv, pool.DirectionDeposit, 1000, 0)
	eng.ApproveDeposits(led, book, 700)
	eng.IssueShares(7, led)

	first, err := Drain(led, book, inv, pool.DirectionDeposit, 10)
	if err != nil {
		t.Fatalf("first Drain: %v", err)
	}
	if !first.HasEffect() {
		t.Fatal("first Drain had no effect")
	}

	second, err := Drain(led, book, inv, pool.DirectionDeposit, 10)
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if second.HasEffect() {
		t.Errorf("second Drain settled again: %+v", second)
	}
}

func TestDrainRespectsMaxIterations(t *testing.T) {
	eng, led, book := newTestEngine(fp.One(), fp.One())
	inv := uuid.New()

	book.RecordRequest(inv, pool.DirectionDeposit, 1000, 0)

	// Two settled epochs in the backlog.
	for i := 0; i < 2; i++ {
		if _, _, err := eng.ApproveDeposits(led, book, 200); err != nil {
			t.Fatalf("ApproveDeposits #%d: %v", i+1, err)
		}
		if _, _, err := eng.IssueShares(7, led); err != nil {
			t.Fatalf("IssueShares #%d: %v", i+1, err)
		}
		// Unlock the investor so the next approval can capture again.
		if _, err := Drain(led, book, inv, pool.DirectionDeposit, 1); err != nil {
			t.Fatalf("unlock Drain #%d: %v", i+1, err)
		}
	}

	// All epochs already claimed by the unlock drains above. Build a fresh
	// two-epoch backlog for a second investor instead.
	inv2 := uuid.New()
	book.RecordRequest(inv2, pool.DirectionDeposit, 600, led.NowDepositEpoch())
	for i := 0; i < 2; i++ {
		if _, _, err := eng.ApproveDeposits(led, book, 100); err != nil {
			t.Fatalf("ApproveDeposits for inv2 #%d: %v", i+1, err)
		}
		if _, _, err := eng.IssueShares(7, led); err != nil {
			t.Fatalf("IssueShares for inv2 #%d: %v", i+1, err)
		}
	}

	res, err := Drain(led, book, inv2, pool.DirectionDeposit, 1)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !res.MoreRemaining {
		t.Error("MoreRemaining = false with one epoch left")
	}

	res, err = Drain(led, book, inv2, pool.DirectionDeposit, 1)
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if res.MoreRemaining {
		t.Error("MoreRemaining = true after draining the backlog")
	}
}

func TestDrainResolvesCancellation(t *testing.T) {
	key := pool.NewKey("SC-A", "USDC")
	led := epoch.NewLedger(key)
	book := request.NewBook(key)
	inv := uuid.New()

	book.RecordRequest(inv, pool.DirectionDeposit, 500, 0)
	cancelled, err := book.RecordCancellation(inv, pool.DirectionDeposit, 0)
	if err != nil {
		t.Fatalf("RecordCancellation: %v", err)
	}
	if cancelled != 500 {
		t.Fatalf("cancelled = %d, want 500", cancelled)
	}

	// No settled epochs: the drain still folds in the cancellation, once.
	res, err := Drain(led, book, inv, pool.DirectionDeposit, 10)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Cancelled != 500 {
		t.Errorf("Cancelled = %d, want 500", res.Cancelled)
	}
	if res.Payment != 0 || res.Payout != 0 {
		t.Errorf("payment/payout = %d/%d, want 0/0", res.Payment, res.Payout)
	}

	res, err = Drain(led, book, inv, pool.DirectionDeposit, 10)
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if res.Cancelled != 0 {
		t.Errorf("second Drain Cancelled = %d, want 0", res.Cancelled)
	}
}

func TestApproveDepositsValidation(t *testing.T) {
	eng, led, book := newTestEngine(fp.One(), fp.One())
	inv := uuid.New()
	book.RecordRequest(inv, pool.DirectionDeposit, 100, 0)

	if _, _, err := eng.ApproveDeposits(led, book, 0); err == nil {
		t.Error("ApproveDeposits(0): expected error")
	}
	if _, _, err := eng.ApproveDeposits(led, book, 200); err == nil {
		t.Error("ApproveDeposits beyond pending: expected error")
	}
	// Failed approvals must not open epochs.
	if led.NowDepositEpoch() != 0 {
		t.Errorf("NowDepositEpoch = %d after failed approvals, want 0", led.NowDepositEpoch())
	}
}

func TestApproveFailsWithoutQuote(t *testing.T) {
	key := pool.NewKey("SC-A", "USDC")
	eng := NewEngine(&stubQuotes{}, &stubNav{nav: fp.One()}) // zero price -> quote error
	led := epoch.NewLedger(key)
	book := request.NewBook(key)
	inv := uuid.New()

	book.RecordRequest(inv, pool.DirectionDeposit, 100, 0)

	if _, _, err := eng.ApproveDeposits(led, book, 100); err == nil {
		t.Fatal("ApproveDeposits without quote: expected error")
	}
	if led.NowDepositEpoch() != 0 {
		t.Errorf("NowDepositEpoch = %d after quote failure, want 0", led.NowDepositEpoch())
	}
	if book.PendingTotal(pool.DirectionDeposit) != 100 {
		t.Errorf("pending = %d after quote failure, want 100", book.PendingTotal(pool.DirectionDeposit))
	}
}

func TestApproveAtSkipsQuote(t *testing.T) {
	key := pool.NewKey("SC-A", "USDC")
	quotes := &stubQuotes{price: fp.One()}
	eng := NewEngine(quotes, &stubNav{nav: fp.One()})
	led := epoch.NewLedger(key)
	book := request.NewBook(key)
	inv := uuid.New()

	book.RecordRequest(inv, pool.DirectionDeposit, 100, 0)

	frozen := fp.FromInt(3)
	if _, err := eng.ApproveDepositsAt(led, book, 100, frozen); err != nil {
		t.Fatalf("ApproveDepositsAt: %v", err)
	}
	if quotes.calls != 0 {
		t.Errorf("quote source called %d times during replay approval, want 0", quotes.calls)
	}

	if _, _, err := eng.IssueShares(7, led); err != nil {
		t.Fatalf("IssueShares: %v", err)
	}
	e, err := led.DepositEpoch(1)
	if err != nil {
		t.Fatalf("DepositEpoch: %v", err)
	}
	if e.Price.Cmp(frozen) != 0 {
		t.Errorf("epoch price = %s, want 3", e.Price)
	}
}

func TestApproveAndIssueRequiresEmptyBacklog(t *testing.T) {
	eng, led, book := newTestEngine(fp.One(), fp.One())
	inv := uuid.New()

	book.RecordRequest(inv, pool.DirectionDeposit, 1000, 0)
	if _, _, err := eng.ApproveDeposits(led, book, 200); err != nil {
		t.Fatalf("ApproveDeposits: %v", err)
	}

	// One approved-unissued epoch in the backlog.
	if _, _, err := eng.ApproveAndIssue(7, led, book, 200); !errors.Is(err, ErrMismatchedEpochs) {
		t.Errorf("ApproveAndIssue with backlog: err = %v, want ErrMismatchedEpochs", err)
	}

	// Drain the backlog, then the combined operation works.
	if _, _, err := eng.IssueShares(7, led); err != nil {
		t.Fatalf("IssueShares: %v", err)
	}
	if _, err := Drain(led, book, inv, pool.DirectionDeposit, 10); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	epochID, shares, err := eng.ApproveAndIssue(7, led, book, 200)
	if err != nil {
		t.Fatalf("ApproveAndIssue: %v", err)
	}
	if epochID != 2 {
		t.Errorf("epoch id = %d, want 2", epochID)
	}
	if shares != 200 {
		t.Errorf("shares = %d, want 200", shares)
	}
}

func TestApproveAndRevokeRequiresEmptyBacklog(t *testing.T) {
	eng, led, book := newTestEngine(fp.One(), fp.One())
	inv := uuid.New()

	book.RecordRequest(inv, pool.DirectionRedeem, 500, 0)
	if _, _, err := eng.ApproveRedeems(led, book, 100); err != nil {
		t.Fatalf("ApproveRedeems: %v", err)
	}

	if _, _, err := eng.ApproveAndRevoke(7, led, book, 100); !errors.Is(err, ErrMismatchedEpochs) {
		t.Errorf("ApproveAndRevoke with backlog: err = %v, want ErrMismatchedEpochs", err)
	}
}
