package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// RecoveryManager rebuilds engine state on restart. The engine state is a
// pure function of the event log, so recovery is a full replay from
// sequence 0 in batches, plus warming the dedup LRU and the per-partition
// ordering watermarks.
type RecoveryManager struct {
	db *sql.DB
}

func NewRecoveryManager(db *sql.DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// LoadEventsFrom loads events from a given sequence for replay, in order.
func (rm *RecoveryManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := rm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, partition, payload,
		       timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition,
			&e.Payload, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (rm *RecoveryManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := rm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}

// LoadPartitionWatermarks returns, per partition, the next expected source
// sequence. Used to restore the sequence validator when replay is skipped
// (e.g. read-only tooling); full replay restores the watermarks naturally.
func (rm *RecoveryManager) LoadPartitionWatermarks(ctx context.Context) (map[string]int64, error) {
	rows, err := rm.db.QueryContext(ctx, `
		SELECT partition, MAX(source_sequence) + 1
		FROM event_log.events
		GROUP BY partition
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	watermarks := make(map[string]int64)
	for rows.Next() {
		var partition string
		var next int64
		if err := rows.Scan(&partition, &next); err != nil {
			return nil, err
		}
		watermarks[partition] = next
	}
	return watermarks, rows.Err()
}

// LoadRecentIdempotencyKeys returns the most recent composite dedup keys
// ("EventType:key") for warming the in-memory LRU.
func (rm *RecoveryManager) LoadRecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := rm.db.QueryContext(ctx, `
		SELECT event_type, idempotency_key
		FROM event_log.events
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var eventType, key string
		if err := rows.Scan(&eventType, &key); err != nil {
			return nil, err
		}
		keys = append(keys, fmt.Sprintf("%s:%s", eventType, key))
	}
	return keys, rows.Err()
}
