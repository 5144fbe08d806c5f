package event

import (
	"fmt"

	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// Pool-manager operations. Manager ops for one settlement key share a
// sequence domain separate from investor requests: the manager re-sequences
// after an ordering failure, investors do not.

func managerPartition(p pool.PoolID, k pool.Key) string {
	return fmt.Sprintf("pool:%d:key:%s:manager", p, k)
}

type ApproveDeposits struct {
	OpID       uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Amount     int64 // asset units consumed from the pending pool
	Sequence   int64
	Timestamp  int64

	// Price is empty on the wire; the engine backfills the frozen D18 quote
	// before the event is logged, so replay reuses it instead of re-quoting.
	Price string `json:",omitempty"`
}

func (e *ApproveDeposits) IdempotencyKey() string { return e.OpID.String() }
func (e *ApproveDeposits) EventType() EventType   { return EventTypeApproveDeposits }
func (e *ApproveDeposits) Partition() string {
	return managerPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *ApproveDeposits) SourceSequence() int64 { return e.Sequence }

type ApproveRedeems struct {
	OpID       uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Amount     int64 // share units consumed from the pending pool
	Sequence   int64
	Timestamp  int64

	// Backfilled frozen quote, as in ApproveDeposits.
	Price string `json:",omitempty"`
}

func (e *ApproveRedeems) IdempotencyKey() string { return e.OpID.String() }
func (e *ApproveRedeems) EventType() EventType   { return EventTypeApproveRedeems }
func (e *ApproveRedeems) Partition() string {
	return managerPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *ApproveRedeems) SourceSequence() int64 { return e.Sequence }

// IssueShares finalizes the oldest unissued deposit epoch. The manager calls
// it repeatedly to drain a backlog; each event settles exactly one epoch.
type IssueShares struct {
	OpID       uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Sequence   int64
	Timestamp  int64
}

func (e *IssueShares) IdempotencyKey() string { return e.OpID.String() }
func (e *IssueShares) EventType() EventType   { return EventTypeIssueShares }
func (e *IssueShares) Partition() string {
	return managerPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *IssueShares) SourceSequence() int64 { return e.Sequence }

type RevokeShares struct {
	OpID       uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Sequence   int64
	Timestamp  int64
}

func (e *RevokeShares) IdempotencyKey() string { return e.OpID.String() }
func (e *RevokeShares) EventType() EventType   { return EventTypeRevokeShares }
func (e *RevokeShares) Partition() string {
	return managerPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *RevokeShares) SourceSequence() int64 { return e.Sequence }
