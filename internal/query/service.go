package query

import (
	"context"
	"database/sql"
	"fmt"

	"PoolHub/internal/core"
	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// QueryService serves reads. Live settlement state (epoch counters, pending
// totals, investor orders, pool prices) comes from consistent engine
// snapshots; history (settlement messages, price notices) comes from the
// Postgres event log. All responses carry as_of_sequence for freshness.
type QueryService struct {
	db     *sql.DB
	engine *core.Engine
}

func NewQueryService(db *sql.DB, engine *core.Engine) *QueryService {
	return &QueryService{db: db, engine: engine}
}

// GetKeyState returns the settlement state of one (shareClass, asset) key.
func (qs *QueryService) GetKeyState(
	ctx context.Context,
	p pool.PoolID,
	k pool.Key,
) (*KeyStateResponse, error) {
	snap := qs.engine.SnapshotKey(p, k)
	return &KeyStateResponse{
		KeySnapshot:  snap,
		AsOfSequence: qs.engine.Sequence(),
	}, nil
}

// GetInvestorState returns one investor's request state for both directions.
func (qs *QueryService) GetInvestorState(
	ctx context.Context,
	p pool.PoolID,
	k pool.Key,
	investor uuid.UUID,
) (*InvestorStateResponse, error) {
	deposit := qs.engine.SnapshotInvestor(p, k, investor, pool.DirectionDeposit)
	redeem := qs.engine.SnapshotInvestor(p, k, investor, pool.DirectionRedeem)
	return &InvestorStateResponse{
		Pool:         p,
		ShareClass:   k.ShareClass,
		Asset:        k.Asset,
		Deposit:      deposit,
		Redeem:       redeem,
		AsOfSequence: qs.engine.Sequence(),
	}, nil
}

// GetPoolPrice returns the live aggregator state of one pool. A halted pool
// returns its totals with halted=true and no price.
func (qs *QueryService) GetPoolPrice(
	ctx context.Context,
	p pool.PoolID,
) (*PoolPriceResponse, error) {
	snap, err := qs.engine.SnapshotPoolPrice(p)
	resp := &PoolPriceResponse{
		PoolPriceSnapshot: snap,
		AsOfSequence:      qs.engine.Sequence(),
	}
	if err != nil && !snap.Halted {
		return nil, err
	}
	return resp, nil
}

// GetSettlementHistory returns an investor's settlement messages, newest
// first, with cursor-based pagination on the engine sequence.
func (qs *QueryService) GetSettlementHistory(
	ctx context.Context,
	p pool.PoolID,
	investor uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]SettlementHistoryEntry, error) {
	query := `
		SELECT message_id, sequence, share_class, asset, direction,
		       fulfilled_amount, fulfilled_counter_amount, cancelled_amount,
		       epoch_from, epoch_to, timestamp
		FROM event_log.settlement_messages
		WHERE pool = $1 AND investor = $2
	`
	args := []interface{}{uint64(p), investor}
	argIdx := 3

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	asOfSeq := qs.engine.Sequence()
	var entries []SettlementHistoryEntry
	for rows.Next() {
		e := SettlementHistoryEntry{
			Pool:         p,
			Investor:     investor,
			AsOfSequence: asOfSeq,
		}
		if err := rows.Scan(
			&e.MessageID, &e.Sequence, &e.ShareClass, &e.Asset, &e.Direction,
			&e.FulfilledAmount, &e.FulfilledCounterAmount, &e.CancelledAmount,
			&e.EpochFrom, &e.EpochTo, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetPriceHistory returns a pool's published prices, newest first.
func (qs *QueryService) GetPriceHistory(
	ctx context.Context,
	p pool.PoolID,
	limit int,
	afterSequence *int64,
) ([]PriceHistoryEntry, error) {
	query := `
		SELECT DISTINCT ON (sequence) sequence, price_per_share, timestamp
		FROM event_log.price_notices
		WHERE pool = $1
	`
	args := []interface{}{uint64(p)}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	asOfSeq := qs.engine.Sequence()
	var entries []PriceHistoryEntry
	for rows.Next() {
		e := PriceHistoryEntry{
			Pool:         p,
			AsOfSequence: asOfSeq,
		}
		if err := rows.Scan(&e.Sequence, &e.PricePerShare, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetEventHistory returns the raw event log for one partition, oldest first.
// Admin surface for debugging ordering incidents.
func (qs *QueryService) GetEventHistory(
	ctx context.Context,
	partition string,
	limit int,
	fromSequence int64,
) ([]EventHistoryEntry, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, source_sequence, timestamp, payload
		FROM event_log.events
		WHERE partition = $1 AND sequence >= $2
		ORDER BY sequence ASC
		LIMIT $3
	`, partition, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EventHistoryEntry
	for rows.Next() {
		e := EventHistoryEntry{Partition: partition}
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey,
			&e.SourceSequence, &e.Timestamp, &e.Payload,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
