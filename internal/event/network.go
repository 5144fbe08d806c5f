package event

import (
	"fmt"

	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// NetworkReport is a network's issuance/NAV report consumed by the price
// aggregator. Reports may interleave arbitrarily across networks but must
// arrive in order within one network: the partition is (pool, network).
type NetworkReport struct {
	ReportID  uuid.UUID
	Pool      pool.PoolID
	Network   pool.NetworkID
	Issuance  int64 // total shares outstanding on the network
	NAV       int64 // pool-currency value backing them
	Sequence  int64
	Timestamp int64
}

func (e *NetworkReport) IdempotencyKey() string { return e.ReportID.String() }
func (e *NetworkReport) EventType() EventType   { return EventTypeNetworkReport }
func (e *NetworkReport) Partition() string {
	return fmt.Sprintf("pool:%d:network:%d", e.Pool, e.Network)
}
func (e *NetworkReport) SourceSequence() int64 { return e.Sequence }

// ShareTransfer records a cross-network share movement. It touches only the
// transfer accumulators; pool totals move on the next report from either side.
type ShareTransfer struct {
	TransferID  uuid.UUID
	Pool        pool.PoolID
	FromNetwork pool.NetworkID
	ToNetwork   pool.NetworkID
	Amount      int64 // share units
	Sequence    int64
	Timestamp   int64
}

func (e *ShareTransfer) IdempotencyKey() string { return e.TransferID.String() }
func (e *ShareTransfer) EventType() EventType   { return EventTypeShareTransfer }
func (e *ShareTransfer) Partition() string {
	return fmt.Sprintf("pool:%d:transfers", e.Pool)
}
func (e *ShareTransfer) SourceSequence() int64 { return e.Sequence }
