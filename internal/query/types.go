package query

import (
	"encoding/json"
	"time"

	"PoolHub/internal/core"
	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// KeyStateResponse wraps a key snapshot with freshness metadata.
type KeyStateResponse struct {
	core.KeySnapshot
	AsOfSequence int64 `json:"as_of_sequence"`
}

// InvestorStateResponse carries both directions of one investor's state.
type InvestorStateResponse struct {
	Pool         pool.PoolID           `json:"pool"`
	ShareClass   pool.ShareClassID     `json:"share_class"`
	Asset        pool.AssetID          `json:"asset"`
	Deposit      core.InvestorSnapshot `json:"deposit"`
	Redeem       core.InvestorSnapshot `json:"redeem"`
	AsOfSequence int64                 `json:"as_of_sequence"`
}

// PoolPriceResponse wraps a pool price snapshot with freshness metadata.
type PoolPriceResponse struct {
	core.PoolPriceSnapshot
	AsOfSequence int64 `json:"as_of_sequence"`
}

// SettlementHistoryEntry is one settlement message from the durable log.
type SettlementHistoryEntry struct {
	MessageID              string      `json:"message_id"`
	Sequence               int64       `json:"sequence"`
	Pool                   pool.PoolID `json:"pool"`
	ShareClass             string      `json:"share_class"`
	Asset                  string      `json:"asset"`
	Investor               uuid.UUID   `json:"investor"`
	Direction              string      `json:"direction"`
	FulfilledAmount        int64       `json:"fulfilled_amount"`
	FulfilledCounterAmount int64       `json:"fulfilled_counter_amount"`
	CancelledAmount        int64       `json:"cancelled_amount"`
	EpochFrom              int64       `json:"epoch_from"`
	EpochTo                int64       `json:"epoch_to"`
	Timestamp              time.Time   `json:"timestamp"`
	AsOfSequence           int64       `json:"as_of_sequence"`
}

// PriceHistoryEntry is one published pool price from the durable log.
type PriceHistoryEntry struct {
	Pool          pool.PoolID `json:"pool"`
	Sequence      int64       `json:"sequence"`
	PricePerShare string      `json:"price_per_share"`
	Timestamp     time.Time   `json:"timestamp"`
	AsOfSequence  int64       `json:"as_of_sequence"`
}

// EventHistoryEntry is one raw event log row.
type EventHistoryEntry struct {
	Partition      string          `json:"partition"`
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	SourceSequence int64           `json:"source_sequence"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
}
