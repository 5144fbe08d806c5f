package event

import (
	"time"

	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// SettlementMessage is the single aggregated record emitted per claim-drain
// call. Delivery is at-least-once with arbitrary latency; receivers must be
// idempotent. The hub never emits a message describing the same epoch range
// twice because the claim cursor only advances forward.
type SettlementMessage struct {
	MessageID  uuid.UUID         `json:"message_id"`
	Pool       pool.PoolID       `json:"pool"`
	ShareClass pool.ShareClassID `json:"share_class"`
	Asset      pool.AssetID      `json:"asset"`
	Investor   uuid.UUID         `json:"investor"`
	Direction  string            `json:"direction"`

	// FulfilledAmount is what the investor paid in (assets for deposit,
	// shares for redeem); FulfilledCounterAmount is what they received.
	FulfilledAmount        int64 `json:"fulfilled_amount"`
	FulfilledCounterAmount int64 `json:"fulfilled_counter_amount"`
	CancelledAmount        int64 `json:"cancelled_amount"`

	EpochFrom uint32    `json:"epoch_from"`
	EpochTo   uint32    `json:"epoch_to"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceNotice tells one network the pool's recomputed price per share.
// Every registered network receives one after each accepted report.
type PriceNotice struct {
	Pool          pool.PoolID    `json:"pool"`
	Network       pool.NetworkID `json:"network"`
	PricePerShare string         `json:"price_per_share"` // D18 raw, base 10
	Timestamp     time.Time      `json:"timestamp"`
}
