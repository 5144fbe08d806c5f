package persistence

import (
	"context"
	"testing"
	"time"

	"PoolHub/internal/core"
	"PoolHub/internal/event"
	"PoolHub/internal/testutil"

	"github.com/google/uuid"
)

func sampleOutput() core.Output {
	msgID := uuid.New()
	investor := uuid.New()
	ts := time.UnixMicro(1_700_000_000_000_000)

	return core.Output{
		Envelope: &event.Envelope{
			Sequence:       42,
			IdempotencyKey: "op-1",
			EventType:      event.EventTypeClaimDeposit,
			Partition:      "pool:7:key:SC-A:USDC:requests",
			Timestamp:      ts,
			SourceSequence: 3,
			Payload:        []byte(`{"Amount":700}`),
		},
		Settlements: []event.SettlementMessage{{
			MessageID:              msgID,
			Pool:                   7,
			ShareClass:             "SC-A",
			Asset:                  "USDC",
			Investor:               investor,
			Direction:              "deposit",
			FulfilledAmount:        700,
			FulfilledCounterAmount: 700,
			CancelledAmount:        0,
			EpochFrom:              1,
			EpochTo:                1,
			Timestamp:              ts,
		}},
		PriceNotices: []event.PriceNotice{
			{Pool: 7, Network: 1, PricePerShare: "9000000000000000000", Timestamp: ts},
			{Pool: 7, Network: 2, PricePerShare: "9000000000000000000", Timestamp: ts},
		},
	}
}

func TestRowsFromOutput(t *testing.T) {
	out := sampleOutput()
	eventRow, messages, prices := RowsFromOutput(out)

	if eventRow.Sequence != 42 {
		t.Errorf("event Sequence = %d, want 42", eventRow.Sequence)
	}
	if eventRow.EventType != "ClaimDeposit" {
		t.Errorf("event EventType = %q, want ClaimDeposit", eventRow.EventType)
	}
	if eventRow.Partition != "pool:7:key:SC-A:USDC:requests" {
		t.Errorf("event Partition = %q", eventRow.Partition)
	}
	if eventRow.SourceSequence != 3 {
		t.Errorf("event SourceSequence = %d, want 3", eventRow.SourceSequence)
	}

	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	m := messages[0]
	if m.Sequence != 42 {
		t.Errorf("message Sequence = %d, want 42 (envelope sequence)", m.Sequence)
	}
	if m.Pool != 7 || m.ShareClass != "SC-A" || m.Asset != "USDC" {
		t.Errorf("message key = (%d, %s, %s)", m.Pool, m.ShareClass, m.Asset)
	}
	if m.FulfilledAmount != 700 || m.FulfilledCounterAmount != 700 {
		t.Errorf("message amounts = (%d, %d), want (700, 700)", m.FulfilledAmount, m.FulfilledCounterAmount)
	}
	if m.Investor != out.Settlements[0].Investor.String() {
		t.Errorf("message Investor = %q", m.Investor)
	}

	if len(prices) != 2 {
		t.Fatalf("prices = %d, want 2", len(prices))
	}
	for i, p := range prices {
		if p.Sequence != 42 {
			t.Errorf("price %d Sequence = %d, want 42", i, p.Sequence)
		}
		if p.PricePerShare != "9000000000000000000" {
			t.Errorf("price %d = %q", i, p.PricePerShare)
		}
	}
	if prices[0].Network != 1 || prices[1].Network != 2 {
		t.Errorf("price networks = (%d, %d), want (1, 2)", prices[0].Network, prices[1].Network)
	}
}

func TestWriteAndRecoverEventBatch(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	writer := NewEventLogWriter(db)

	out := sampleOutput()
	eventRow, messages, prices := RowsFromOutput(out)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, []EventRow{eventRow}); err != nil {
		t.Fatalf("WriteEventBatch: %v", err)
	}
	if err := writer.WriteMessageBatch(ctx, tx, messages); err != nil {
		t.Fatalf("WriteMessageBatch: %v", err)
	}
	if err := writer.WritePriceBatch(ctx, tx, prices); err != nil {
		t.Fatalf("WritePriceBatch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Rewriting the same batch is a no-op (crash-replay idempotency).
	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, []EventRow{eventRow}); err != nil {
		t.Fatalf("rewrite WriteEventBatch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit rewrite: %v", err)
	}

	recovery := NewRecoveryManager(db)
	latest, err := recovery.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("GetLatestSequence: %v", err)
	}
	if latest != 42 {
		t.Errorf("latest sequence = %d, want 42", latest)
	}

	events, err := recovery.LoadEventsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("LoadEventsFrom: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("loaded events = %d, want 1", len(events))
	}
	if events[0].EventType != "ClaimDeposit" || events[0].SourceSequence != 3 {
		t.Errorf("loaded event = %+v", events[0])
	}

	watermarks, err := recovery.LoadPartitionWatermarks(ctx)
	if err != nil {
		t.Fatalf("LoadPartitionWatermarks: %v", err)
	}
	if next := watermarks["pool:7:key:SC-A:USDC:requests"]; next != 4 {
		t.Errorf("partition watermark = %d, want 4", next)
	}
}
