package epoch

import (
	"errors"
	"testing"

	"PoolHub/internal/fp"
	"PoolHub/internal/pool"
)

func testKey() pool.Key {
	return pool.NewKey("SC-A", "USDC")
}

func TestCountersStartAtZero(t *testing.T) {
	led := NewLedger(testKey())

	if led.NowDepositEpoch() != 0 || led.NowIssueEpoch() != 0 {
		t.Errorf("deposit counters = (%d, %d), want (0, 0)", led.NowDepositEpoch(), led.NowIssueEpoch())
	}
	if led.NowRedeemEpoch() != 0 || led.NowRevokeEpoch() != 0 {
		t.Errorf("redeem counters = (%d, %d), want (0, 0)", led.NowRedeemEpoch(), led.NowRevokeEpoch())
	}
}

func TestOpenDepositApprovalAdvancesCounter(t *testing.T) {
	led := NewLedger(testKey())

	id := led.OpenDepositApproval(700, 1000, fp.One())
	if id != 1 {
		t.Errorf("first epoch id = %d, want 1", id)
	}
	if led.NowDepositEpoch() != 1 {
		t.Errorf("NowDepositEpoch = %d, want 1", led.NowDepositEpoch())
	}
	if led.NowIssueEpoch() != 0 {
		t.Errorf("NowIssueEpoch = %d, want 0 (not yet issued)", led.NowIssueEpoch())
	}
}

func TestIssueEpochConvertsAtNav(t *testing.T) {
	led := NewLedger(testKey())

	// 700 asset units at price 1.0 -> 700 pool currency; nav 1.0 -> 700 shares
	led.OpenDepositApproval(700, 1000, fp.One())

	id, shares, err := led.IssueEpoch(fp.One())
	if err != nil {
		t.Fatalf("IssueEpoch: %v", err)
	}
	if id != 1 {
		t.Errorf("issued epoch id = %d, want 1", id)
	}
	if shares != 700 {
		t.Errorf("shares = %d, want 700", shares)
	}
	if led.NowIssueEpoch() != 1 {
		t.Errorf("NowIssueEpoch = %d, want 1", led.NowIssueEpoch())
	}
}

func TestIssueEpochPriceAndNavInteract(t *testing.T) {
	led := NewLedger(testKey())

	// 500 asset units at asset price 2.0 -> 1000 pool currency.
	// NAV per share 4.0 -> 250 shares.
	led.OpenDepositApproval(500, 500, fp.FromInt(2))

	_, shares, err := led.IssueEpoch(fp.FromInt(4))
	if err != nil {
		t.Fatalf("IssueEpoch: %v", err)
	}
	if shares != 250 {
		t.Errorf("shares = %d, want 250", shares)
	}
}

func TestIssueWithoutApprovalFails(t *testing.T) {
	led := NewLedger(testKey())

	if _, _, err := led.IssueEpoch(fp.One()); !errors.Is(err, ErrNoPendingEpoch) {
		t.Errorf("IssueEpoch on empty backlog: err = %v, want ErrNoPendingEpoch", err)
	}
}

func TestIssueZeroNavFails(t *testing.T) {
	led := NewLedger(testKey())
	led.OpenDepositApproval(100, 100, fp.One())

	if _, _, err := led.IssueEpoch(fp.Zero()); err == nil {
		t.Error("IssueEpoch with zero nav: expected error")
	}
	// The cursor must not advance on failure.
	if led.NowIssueEpoch() != 0 {
		t.Errorf("NowIssueEpoch = %d after failed issue, want 0", led.NowIssueEpoch())
	}
}

func TestBacklogDrainsFIFO(t *testing.T) {
	led := NewLedger(testKey())

	// Approvals outrun issuance: three epochs in the backlog.
	led.OpenDepositApproval(100, 1000, fp.One())
	led.OpenDepositApproval(200, 900, fp.One())
	led.OpenDepositApproval(300, 700, fp.One())

	if led.NowDepositEpoch() != 3 || led.NowIssueEpoch() != 0 {
		t.Fatalf("counters = (%d, %d), want (3, 0)", led.NowDepositEpoch(), led.NowIssueEpoch())
	}

	for i, wantShares := range []int64{100, 200, 300} {
		id, shares, err := led.IssueEpoch(fp.One())
		if err != nil {
			t.Fatalf("IssueEpoch #%d: %v", i+1, err)
		}
		if id != uint32(i+1) {
			t.Errorf("IssueEpoch #%d id = %d, want %d", i+1, id, i+1)
		}
		if shares != wantShares {
			t.Errorf("IssueEpoch #%d shares = %d, want %d", i+1, shares, wantShares)
		}
	}

	if _, _, err := led.IssueEpoch(fp.One()); !errors.Is(err, ErrNoPendingEpoch) {
		t.Errorf("fourth IssueEpoch: err = %v, want ErrNoPendingEpoch", err)
	}
}

func TestRevokeEpochConvertsAtNav(t *testing.T) {
	led := NewLedger(testKey())

	// 700 shares at nav 1.0 -> 700 pool currency; asset price 2.0 -> 350 assets
	led.OpenRedeemApproval(700, 700, fp.FromInt(2))

	id, assets, err := led.RevokeEpoch(fp.One())
	if err != nil {
		t.Fatalf("RevokeEpoch: %v", err)
	}
	if id != 1 {
		t.Errorf("revoked epoch id = %d, want 1", id)
	}
	if assets != 350 {
		t.Errorf("assets = %d, want 350", assets)
	}
	if led.NowRevokeEpoch() != 1 {
		t.Errorf("NowRevokeEpoch = %d, want 1", led.NowRevokeEpoch())
	}
}

func TestRevokeWithoutApprovalFails(t *testing.T) {
	led := NewLedger(testKey())

	if _, _, err := led.RevokeEpoch(fp.One()); !errors.Is(err, ErrNoPendingEpoch) {
		t.Errorf("RevokeEpoch on empty backlog: err = %v, want ErrNoPendingEpoch", err)
	}
}

func TestDirectionsAreIndependent(t *testing.T) {
	led := NewLedger(testKey())

	led.OpenDepositApproval(100, 100, fp.One())
	led.OpenRedeemApproval(50, 50, fp.One())

	if led.NowDepositEpoch() != 1 || led.NowRedeemEpoch() != 1 {
		t.Fatalf("approved counters = (%d, %d), want (1, 1)",
			led.NowDepositEpoch(), led.NowRedeemEpoch())
	}

	// Issuing the deposit side must not move the redeem side.
	if _, _, err := led.IssueEpoch(fp.One()); err != nil {
		t.Fatalf("IssueEpoch: %v", err)
	}
	if led.NowRevokeEpoch() != 0 {
		t.Errorf("NowRevokeEpoch = %d, want 0", led.NowRevokeEpoch())
	}
}

func TestFinalizedEpochVisibility(t *testing.T) {
	led := NewLedger(testKey())

	led.OpenDepositApproval(400, 1000, fp.One())

	// Approved but not yet issued: not visible.
	if _, err := led.DepositEpoch(1); !errors.Is(err, ErrEpochOutOfOrder) {
		t.Errorf("DepositEpoch(1) before issue: err = %v, want ErrEpochOutOfOrder", err)
	}

	if _, _, err := led.IssueEpoch(fp.One()); err != nil {
		t.Fatalf("IssueEpoch: %v", err)
	}

	e, err := led.DepositEpoch(1)
	if err != nil {
		t.Fatalf("DepositEpoch(1): %v", err)
	}
	if e.ApprovedAmount != 400 {
		t.Errorf("ApprovedAmount = %d, want 400", e.ApprovedAmount)
	}
	if e.PendingTotal != 1000 {
		t.Errorf("PendingTotal = %d, want 1000", e.PendingTotal)
	}
	if e.SettledAmount != 400 {
		t.Errorf("SettledAmount = %d, want 400", e.SettledAmount)
	}

	// Epoch 0 and future epochs are never valid ids.
	if _, err := led.DepositEpoch(0); !errors.Is(err, ErrEpochOutOfOrder) {
		t.Errorf("DepositEpoch(0): err = %v, want ErrEpochOutOfOrder", err)
	}
	if _, err := led.DepositEpoch(2); !errors.Is(err, ErrEpochOutOfOrder) {
		t.Errorf("DepositEpoch(2): err = %v, want ErrEpochOutOfOrder", err)
	}
}

func TestApprovalSnapshotIsFrozen(t *testing.T) {
	led := NewLedger(testKey())

	led.OpenDepositApproval(300, 800, fp.FromInt(3))
	if _, _, err := led.IssueEpoch(fp.One()); err != nil {
		t.Fatalf("IssueEpoch: %v", err)
	}

	e, err := led.DepositEpoch(1)
	if err != nil {
		t.Fatalf("DepositEpoch: %v", err)
	}
	if e.Price.Cmp(fp.FromInt(3)) != 0 {
		t.Errorf("frozen price = %s, want 3", e.Price)
	}
	if e.NavPerShare.Cmp(fp.One()) != 0 {
		t.Errorf("nav per share = %s, want 1", e.NavPerShare)
	}
}
