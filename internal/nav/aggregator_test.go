package nav

import (
	"errors"
	"fmt"
	"testing"

	"PoolHub/internal/fp"
	"PoolHub/internal/pool"
)

func TestInitialPriceIsOne(t *testing.T) {
	agg := NewAggregator(1)

	price, err := agg.PricePerShare()
	if err != nil {
		t.Fatalf("PricePerShare: %v", err)
	}
	if price.Cmp(fp.One()) != 0 {
		t.Errorf("initial price = %s, want 1", price)
	}
}

func TestTwoNetworkPrice(t *testing.T) {
	agg := NewAggregator(1)

	// Network 1: 600 shares backed by 5400. Network 2: 400 shares backed by 3600.
	// Pool: 1000 shares, 9000 NAV -> 9.0 per share.
	if _, err := agg.OnNetworkUpdate(1, 600, 5400); err != nil {
		t.Fatalf("OnNetworkUpdate(1): %v", err)
	}
	price, err := agg.OnNetworkUpdate(2, 400, 3600)
	if err != nil {
		t.Fatalf("OnNetworkUpdate(2): %v", err)
	}

	if price.String() != "9" {
		t.Errorf("price = %s, want 9", price)
	}
	if agg.TotalIssuance() != 1000 {
		t.Errorf("TotalIssuance = %d, want 1000", agg.TotalIssuance())
	}
	if agg.TotalNAV() != 9000 {
		t.Errorf("TotalNAV = %d, want 9000", agg.TotalNAV())
	}
}

func TestRepeatReportIsDelta(t *testing.T) {
	agg := NewAggregator(1)

	agg.OnNetworkUpdate(1, 600, 5400)
	agg.OnNetworkUpdate(2, 400, 3600)

	// Network 1 re-reports with 100 newly issued shares. Totals move by the
	// delta only.
	if _, err := agg.OnNetworkUpdate(1, 700, 6300); err != nil {
		t.Fatalf("re-report: %v", err)
	}
	if agg.TotalIssuance() != 1100 {
		t.Errorf("TotalIssuance = %d, want 1100", agg.TotalIssuance())
	}
	if agg.TotalNAV() != 9900 {
		t.Errorf("TotalNAV = %d, want 9900", agg.TotalNAV())
	}
}

func TestTransferNetting(t *testing.T) {
	agg := NewAggregator(1)

	agg.OnNetworkUpdate(1, 600, 5400)
	agg.OnNetworkUpdate(2, 400, 3600)

	// 30 shares move from network 1 to network 2; pool totals must be
	// invariant as both sides report the moved balance.
	if err := agg.OnTransfer(1, 2, 30); err != nil {
		t.Fatalf("OnTransfer: %v", err)
	}
	if agg.TotalIssuance() != 1000 {
		t.Errorf("TotalIssuance right after transfer = %d, want 1000", agg.TotalIssuance())
	}

	// Sender reports its lowered issuance: delta = (570+30) - (600+0) = 0.
	if _, err := agg.OnNetworkUpdate(1, 570, 5130); err != nil {
		t.Fatalf("sender report: %v", err)
	}
	if agg.TotalIssuance() != 1000 {
		t.Errorf("TotalIssuance after sender report = %d, want 1000", agg.TotalIssuance())
	}

	// Receiver reports its raised issuance: delta = (430+0) - (400+30) = 0.
	if _, err := agg.OnNetworkUpdate(2, 430, 3870); err != nil {
		t.Fatalf("receiver report: %v", err)
	}
	if agg.TotalIssuance() != 1000 {
		t.Errorf("TotalIssuance after receiver report = %d, want 1000", agg.TotalIssuance())
	}
}

func TestTransferToUnseenNetworkRegistersIt(t *testing.T) {
	agg := NewAggregator(1)

	agg.OnNetworkUpdate(1, 100, 100)
	if err := agg.OnTransfer(1, 9, 10); err != nil {
		t.Fatalf("OnTransfer: %v", err)
	}

	networks := agg.Networks()
	if len(networks) != 2 || networks[0] != 1 || networks[1] != 9 {
		t.Errorf("Networks() = %v, want [1 9]", networks)
	}
}

func TestTransferValidation(t *testing.T) {
	agg := NewAggregator(1)

	if err := agg.OnTransfer(1, 2, 0); err == nil {
		t.Error("OnTransfer(0): expected error")
	}
	if err := agg.OnTransfer(1, 2, -10); err == nil {
		t.Error("OnTransfer(-10): expected error")
	}
	if err := agg.OnTransfer(3, 3, 10); err == nil {
		t.Error("OnTransfer to self: expected error")
	}
}

func TestHaltOnNegativeReport(t *testing.T) {
	agg := NewAggregator(1)

	if _, err := agg.OnNetworkUpdate(1, -5, 100); !errors.Is(err, ErrInvalidNAV) {
		t.Errorf("negative issuance: err = %v, want ErrInvalidNAV", err)
	}
	if !agg.Halted() {
		t.Error("aggregator not halted after negative report")
	}

	// Halted pools refuse prices and further updates.
	if _, err := agg.PricePerShare(); !errors.Is(err, ErrPricingHalted) {
		t.Errorf("PricePerShare on halted pool: err = %v, want ErrPricingHalted", err)
	}
	if _, err := agg.OnNetworkUpdate(2, 100, 100); !errors.Is(err, ErrPricingHalted) {
		t.Errorf("update on halted pool: err = %v, want ErrPricingHalted", err)
	}
}

func TestHaltOnNegativeTotals(t *testing.T) {
	agg := NewAggregator(1)

	agg.OnNetworkUpdate(1, 100, 1000)
	// 80 shares transferred out, then the sender reports 0 left. Receiver
	// never reports, then the sender claims another drop below what it has:
	// delta = (0+80) - (100+0) = -20, total 80. Still fine. Push it negative
	// with a second transfer out that was never backed by issuance.
	agg.OnTransfer(1, 2, 80)
	if _, err := agg.OnNetworkUpdate(1, 0, 200); err != nil {
		t.Fatalf("sender report: %v", err)
	}
	if agg.TotalIssuance() != 80 {
		t.Fatalf("TotalIssuance = %d, want 80", agg.TotalIssuance())
	}

	// Receiver reports fewer shares than the transfer accumulator implies:
	// delta = (0+0) - (0+80) = -80, total -0 ... 80-80 = 0 is legal.
	if _, err := agg.OnNetworkUpdate(2, 0, 0); err != nil {
		t.Fatalf("receiver report: %v", err)
	}
	if agg.TotalIssuance() != 0 {
		t.Fatalf("TotalIssuance = %d, want 0", agg.TotalIssuance())
	}

	// Any further under-report drives the total negative and halts the pool.
	agg.OnTransfer(1, 2, 10)
	if _, err := agg.OnNetworkUpdate(2, 0, 0); !errors.Is(err, ErrInvalidNAV) {
		t.Errorf("corrupting report: err = %v, want ErrInvalidNAV", err)
	}
	if !agg.Halted() {
		t.Error("aggregator not halted after negative total")
	}
}

func TestZeroIssuancePriceIsOne(t *testing.T) {
	agg := NewAggregator(1)

	agg.OnNetworkUpdate(1, 100, 900)
	// All shares revoked: price resets to 1.0, not 0 or a division error.
	price, err := agg.OnNetworkUpdate(1, 0, 0)
	if err != nil {
		t.Fatalf("OnNetworkUpdate: %v", err)
	}
	if price.Cmp(fp.One()) != 0 {
		t.Errorf("price with zero issuance = %s, want 1", price)
	}
}

func TestPriceTruncates(t *testing.T) {
	agg := NewAggregator(1)

	// 1000 NAV over 3 shares: 333.333... truncated at 18 decimals.
	price, err := agg.OnNetworkUpdate(1, 3, 1000)
	if err != nil {
		t.Fatalf("OnNetworkUpdate: %v", err)
	}
	want := "333333333333333333333" // raw D18 of 333.333...
	if price.RawString() != want {
		t.Errorf("price raw = %s, want %s", price.RawString(), want)
	}
}

// --- PoolNAV ---

type stubAccounting struct {
	values map[Account]struct {
		positive bool
		amount   int64
	}
	err error
}

func (s *stubAccounting) AccountValue(p pool.PoolID, account Account) (bool, int64, error) {
	if s.err != nil {
		return false, 0, s.err
	}
	v, ok := s.values[account]
	if !ok {
		return true, 0, nil
	}
	return v.positive, v.amount, nil
}

func TestPoolNAV(t *testing.T) {
	acc := &stubAccounting{values: map[Account]struct {
		positive bool
		amount   int64
	}{
		AccountEquity:    {true, 10_000},
		AccountGain:      {true, 2_000},
		AccountLoss:      {true, 500},
		AccountLiability: {true, 1_500},
	}}

	nav, err := PoolNAV(acc, 1)
	if err != nil {
		t.Fatalf("PoolNAV: %v", err)
	}
	if nav != 10_000 {
		t.Errorf("nav = %d, want 10000 (10000+2000-500-1500)", nav)
	}
}

func TestPoolNAVRejectsFlippedPolarity(t *testing.T) {
	acc := &stubAccounting{values: map[Account]struct {
		positive bool
		amount   int64
	}{
		AccountEquity: {false, 100},
	}}

	if _, err := PoolNAV(acc, 1); !errors.Is(err, ErrInvalidNAV) {
		t.Errorf("flipped polarity: err = %v, want ErrInvalidNAV", err)
	}
}

func TestPoolNAVRejectsNegativeResult(t *testing.T) {
	acc := &stubAccounting{values: map[Account]struct {
		positive bool
		amount   int64
	}{
		AccountEquity:    {true, 100},
		AccountLiability: {true, 500},
	}}

	if _, err := PoolNAV(acc, 1); !errors.Is(err, ErrInvalidNAV) {
		t.Errorf("negative nav: err = %v, want ErrInvalidNAV", err)
	}
}

func TestPoolNAVPropagatesLedgerError(t *testing.T) {
	acc := &stubAccounting{err: fmt.Errorf("ledger offline")}

	if _, err := PoolNAV(acc, 1); err == nil {
		t.Error("ledger error not propagated")
	}
}
