package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PoolHub/internal/core"
)

// EventLogWriter writes the event log and outbound settlement records to
// Postgres using batched multi-row INSERTs. Writes are idempotent: replays
// after a crash hit ON CONFLICT DO NOTHING.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Partition      string
	Payload        []byte // JSON-encoded event payload
	Timestamp      time.Time
	SourceSequence int64
}

// MessageRow represents a row in event_log.settlement_messages.
type MessageRow struct {
	MessageID              string
	Sequence               int64
	Pool                   uint64
	ShareClass             string
	Asset                  string
	Investor               string
	Direction              string
	FulfilledAmount        int64
	FulfilledCounterAmount int64
	CancelledAmount        int64
	EpochFrom              int64
	EpochTo                int64
	Timestamp              time.Time
}

// PriceRow represents a row in event_log.price_notices.
type PriceRow struct {
	Sequence      int64
	Pool          uint64
	Network       uint32
	PricePerShare string // D18 raw, base 10
	Timestamp     time.Time
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// RowsFromOutput flattens one engine output into persistence rows.
func RowsFromOutput(out core.Output) (EventRow, []MessageRow, []PriceRow) {
	env := out.Envelope
	eventRow := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Partition:      env.Partition,
		Payload:        env.Payload,
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	}

	messages := make([]MessageRow, 0, len(out.Settlements))
	for _, m := range out.Settlements {
		messages = append(messages, MessageRow{
			MessageID:              m.MessageID.String(),
			Sequence:               env.Sequence,
			Pool:                   uint64(m.Pool),
			ShareClass:             string(m.ShareClass),
			Asset:                  string(m.Asset),
			Investor:               m.Investor.String(),
			Direction:              m.Direction,
			FulfilledAmount:        m.FulfilledAmount,
			FulfilledCounterAmount: m.FulfilledCounterAmount,
			CancelledAmount:        m.CancelledAmount,
			EpochFrom:              int64(m.EpochFrom),
			EpochTo:                int64(m.EpochTo),
			Timestamp:              m.Timestamp,
		})
	}

	prices := make([]PriceRow, 0, len(out.PriceNotices))
	for _, n := range out.PriceNotices {
		prices = append(prices, PriceRow{
			Sequence:      env.Sequence,
			Pool:          uint64(n.Pool),
			Network:       uint32(n.Network),
			PricePerShare: n.PricePerShare,
			Timestamp:     n.Timestamp,
		})
	}

	return eventRow, messages, prices
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, partition, payload, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Partition,
			e.Payload, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteMessageBatch writes a batch of settlement messages.
func (w *EventLogWriter) WriteMessageBatch(ctx context.Context, tx *sql.Tx, messages []MessageRow) error {
	if len(messages) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.settlement_messages
		(message_id, sequence, pool, share_class, asset, investor, direction,
		 fulfilled_amount, fulfilled_counter_amount, cancelled_amount,
		 epoch_from, epoch_to, timestamp)
		VALUES `

	values := make([]string, 0, len(messages))
	args := make([]interface{}, 0, len(messages)*13)

	for i, m := range messages {
		base := i * 13
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
			base+8, base+9, base+10, base+11, base+12, base+13,
		))
		args = append(args,
			m.MessageID, m.Sequence, m.Pool, m.ShareClass, m.Asset,
			m.Investor, m.Direction, m.FulfilledAmount, m.FulfilledCounterAmount,
			m.CancelledAmount, m.EpochFrom, m.EpochTo, m.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (message_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WritePriceBatch writes a batch of price notices.
func (w *EventLogWriter) WritePriceBatch(ctx context.Context, tx *sql.Tx, prices []PriceRow) error {
	if len(prices) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.price_notices
		(sequence, pool, network, price_per_share, timestamp)
		VALUES `

	values := make([]string, 0, len(prices))
	args := make([]interface{}, 0, len(prices)*5)

	for i, p := range prices {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, p.Sequence, p.Pool, p.Network, p.PricePerShare, p.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence, pool, network) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
