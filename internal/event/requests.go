package event

import (
	"fmt"

	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// Investor-facing request events, forwarded from spoke vaults by the
// cross-network transport.

// KeyPartition is the sequence domain for investor requests on one
// settlement key.
func KeyPartition(p pool.PoolID, k pool.Key) string {
	return fmt.Sprintf("pool:%d:key:%s:requests", p, k)
}

type DepositRequest struct {
	RequestID  uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Investor   uuid.UUID
	Amount     int64 // asset units
	Sequence   int64
	Timestamp  int64 // microseconds, producer clock
}

func (e *DepositRequest) IdempotencyKey() string { return e.RequestID.String() }
func (e *DepositRequest) EventType() EventType   { return EventTypeDepositRequest }
func (e *DepositRequest) Partition() string {
	return KeyPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *DepositRequest) SourceSequence() int64 { return e.Sequence }

type RedeemRequest struct {
	RequestID  uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Investor   uuid.UUID
	Amount     int64 // share units
	Sequence   int64
	Timestamp  int64
}

func (e *RedeemRequest) IdempotencyKey() string { return e.RequestID.String() }
func (e *RedeemRequest) EventType() EventType   { return EventTypeRedeemRequest }
func (e *RedeemRequest) Partition() string {
	return KeyPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *RedeemRequest) SourceSequence() int64 { return e.Sequence }

type CancelDepositRequest struct {
	RequestID  uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Investor   uuid.UUID
	Sequence   int64
	Timestamp  int64
}

func (e *CancelDepositRequest) IdempotencyKey() string { return e.RequestID.String() }
func (e *CancelDepositRequest) EventType() EventType   { return EventTypeCancelDepositRequest }
func (e *CancelDepositRequest) Partition() string {
	return KeyPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *CancelDepositRequest) SourceSequence() int64 { return e.Sequence }

type CancelRedeemRequest struct {
	RequestID  uuid.UUID
	Pool       pool.PoolID
	ShareClass pool.ShareClassID
	Asset      pool.AssetID
	Investor   uuid.UUID
	Sequence   int64
	Timestamp  int64
}

func (e *CancelRedeemRequest) IdempotencyKey() string { return e.RequestID.String() }
func (e *CancelRedeemRequest) EventType() EventType   { return EventTypeCancelRedeemRequest }
func (e *CancelRedeemRequest) Partition() string {
	return KeyPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *CancelRedeemRequest) SourceSequence() int64 { return e.Sequence }

type ClaimDeposit struct {
	OpID          uuid.UUID
	Pool          pool.PoolID
	ShareClass    pool.ShareClassID
	Asset         pool.AssetID
	Investor      uuid.UUID
	MaxIterations int
	Sequence      int64
	Timestamp     int64
}

func (e *ClaimDeposit) IdempotencyKey() string { return e.OpID.String() }
func (e *ClaimDeposit) EventType() EventType   { return EventTypeClaimDeposit }
func (e *ClaimDeposit) Partition() string {
	return KeyPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *ClaimDeposit) SourceSequence() int64 { return e.Sequence }

type ClaimRedeem struct {
	OpID          uuid.UUID
	Pool          pool.PoolID
	ShareClass    pool.ShareClassID
	Asset         pool.AssetID
	Investor      uuid.UUID
	MaxIterations int
	Sequence      int64
	Timestamp     int64
}

func (e *ClaimRedeem) IdempotencyKey() string { return e.OpID.String() }
func (e *ClaimRedeem) EventType() EventType   { return EventTypeClaimRedeem }
func (e *ClaimRedeem) Partition() string {
	return KeyPartition(e.Pool, pool.NewKey(e.ShareClass, e.Asset))
}
func (e *ClaimRedeem) SourceSequence() int64 { return e.Sequence }
