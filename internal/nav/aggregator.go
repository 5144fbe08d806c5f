package nav

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"PoolHub/internal/fp"
	"PoolHub/internal/pool"
)

// ErrPricingHalted: the pool's aggregator observed an invariant violation
// (InvalidNAV, negative totals) and refuses to propagate further prices.
var ErrPricingHalted = errors.New("pricing halted")

// networkState accumulates one network's contribution since its last
// reported update.
type networkState struct {
	issuance       int64
	nav            int64
	transferredIn  int64
	transferredOut int64
}

// Aggregator tracks per-network issuance and NAV for one pool and computes
// the pool-wide price per share. Transfers between networks are netted so
// that asynchronous reports never double-count or lose units: the pool-wide
// issuance total is invariant under transfers alone.
//
// Safe for concurrent use; all state is guarded by one mutex per pool.
type Aggregator struct {
	mu sync.Mutex

	poolID   pool.PoolID
	networks map[pool.NetworkID]*networkState

	totalIssuance int64
	totalNAV      int64
	price         fp.D18
	halted        bool
}

func NewAggregator(poolID pool.PoolID) *Aggregator {
	return &Aggregator{
		poolID:   poolID,
		networks: make(map[pool.NetworkID]*networkState),
		price:    fp.One(),
	}
}

func (a *Aggregator) PoolID() pool.PoolID { return a.poolID }

func (a *Aggregator) network(id pool.NetworkID) *networkState {
	st, ok := a.networks[id]
	if !ok {
		st = &networkState{}
		a.networks[id] = st
	}
	return st
}

// OnNetworkUpdate applies a network's report to the pool-wide totals.
//
// The issuance delta nets out transfers recorded since the network's last
// update:
//
//	delta = (reportedIssuance + transferredOut) - (storedIssuance + transferredIn)
//
// A transfer lowers the sender's reported issuance and raises the receiver's;
// adding back transferredOut (and subtracting transferredIn) cancels the
// movement on both sides, so only genuinely new issuance or revocation moves
// the pool total — even when the two sides report asynchronously or transfers
// run in both directions between updates.
//
// Returns the recomputed pool price per share.
func (a *Aggregator) OnNetworkUpdate(network pool.NetworkID, reportedIssuance, reportedNAV int64) (fp.D18, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.halted {
		return fp.D18{}, fmt.Errorf("%w: pool %d", ErrPricingHalted, a.poolID)
	}
	if reportedIssuance < 0 || reportedNAV < 0 {
		a.halted = true
		return fp.D18{}, fmt.Errorf("%w: pool %d network %d reported issuance=%d nav=%d",
			ErrInvalidNAV, a.poolID, network, reportedIssuance, reportedNAV)
	}

	st := a.network(network)
	issuanceDelta := (reportedIssuance + st.transferredOut) - (st.issuance + st.transferredIn)
	navDelta := reportedNAV - st.nav

	totalIssuance := a.totalIssuance + issuanceDelta
	totalNAV := a.totalNAV + navDelta
	if totalIssuance < 0 || totalNAV < 0 {
		// A corrupt total must not become a price. Halt the pool.
		a.halted = true
		return fp.D18{}, fmt.Errorf("%w: pool %d totals issuance=%d nav=%d after network %d update",
			ErrInvalidNAV, a.poolID, totalIssuance, totalNAV, network)
	}

	a.totalIssuance = totalIssuance
	a.totalNAV = totalNAV
	st.issuance = reportedIssuance
	st.nav = reportedNAV
	st.transferredIn = 0
	st.transferredOut = 0

	if a.totalIssuance == 0 {
		a.price = fp.One()
	} else {
		a.price = fp.Ratio(a.totalNAV, a.totalIssuance)
	}
	return a.price, nil
}

// OnTransfer records a share transfer between two networks. Pool-wide totals
// are untouched: they only move on the next OnNetworkUpdate for either side,
// where the accumulated transfer amounts net against the reported issuance.
func (a *Aggregator) OnTransfer(from, to pool.NetworkID, shareAmount int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if shareAmount <= 0 {
		return fmt.Errorf("transfer pool %d: non-positive share amount %d", a.poolID, shareAmount)
	}
	if from == to {
		return fmt.Errorf("transfer pool %d: from and to are both network %d", a.poolID, from)
	}
	a.network(from).transferredOut += shareAmount
	a.network(to).transferredIn += shareAmount
	return nil
}

// PricePerShare returns the last computed pool price (1.0 before any update).
func (a *Aggregator) PricePerShare() (fp.D18, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.halted {
		return fp.D18{}, fmt.Errorf("%w: pool %d", ErrPricingHalted, a.poolID)
	}
	return a.price, nil
}

// Halted reports whether pricing for this pool has been stopped.
func (a *Aggregator) Halted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}

// TotalIssuance returns the pool-wide issuance total.
func (a *Aggregator) TotalIssuance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalIssuance
}

// TotalNAV returns the pool-wide NAV total.
func (a *Aggregator) TotalNAV() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalNAV
}

// Networks returns the ids of every network seen by this pool, sorted.
// Every one of them is notified when the pool price changes.
func (a *Aggregator) Networks() []pool.NetworkID {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]pool.NetworkID, 0, len(a.networks))
	for id := range a.networks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
