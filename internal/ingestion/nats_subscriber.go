package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events into
// the settlement engine via the eventChan. JetStream is the primary ingestion
// surface: spoke vaults, pool managers and network gateways all publish here.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the received-but-untyped message from NATS, ready for the shell
// to parse into a typed event.Event before handing to the engine.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Each event type
// has its own consumer so the directions scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "pool.requests.deposit.>", EventType: "DepositRequest", ConsumerName: "hub-req-deposit", StreamName: "POOL_REQUESTS"},
		{Subject: "pool.requests.redeem.>", EventType: "RedeemRequest", ConsumerName: "hub-req-redeem", StreamName: "POOL_REQUESTS"},
		{Subject: "pool.requests.cancel_deposit.>", EventType: "CancelDepositRequest", ConsumerName: "hub-cancel-deposit", StreamName: "POOL_REQUESTS"},
		{Subject: "pool.requests.cancel_redeem.>", EventType: "CancelRedeemRequest", ConsumerName: "hub-cancel-redeem", StreamName: "POOL_REQUESTS"},
		{Subject: "pool.requests.claim_deposit.>", EventType: "ClaimDeposit", ConsumerName: "hub-claim-deposit", StreamName: "POOL_REQUESTS"},
		{Subject: "pool.requests.claim_redeem.>", EventType: "ClaimRedeem", ConsumerName: "hub-claim-redeem", StreamName: "POOL_REQUESTS"},
		{Subject: "pool.manager.approve_deposits.>", EventType: "ApproveDeposits", ConsumerName: "hub-approve-deposits", StreamName: "POOL_MANAGER"},
		{Subject: "pool.manager.approve_redeems.>", EventType: "ApproveRedeems", ConsumerName: "hub-approve-redeems", StreamName: "POOL_MANAGER"},
		{Subject: "pool.manager.issue.>", EventType: "IssueShares", ConsumerName: "hub-issue", StreamName: "POOL_MANAGER"},
		{Subject: "pool.manager.revoke.>", EventType: "RevokeShares", ConsumerName: "hub-revoke", StreamName: "POOL_MANAGER"},
		{Subject: "pool.reports.>", EventType: "NetworkReport", ConsumerName: "hub-reports", StreamName: "POOL_REPORTS"},
		{Subject: "pool.transfers.>", EventType: "ShareTransfer", ConsumerName: "hub-transfers", StreamName: "POOL_TRANSFERS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "POOL_REQUESTS",
			Subjects:  []string{"pool.requests.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "POOL_MANAGER",
			Subjects:  []string{"pool.manager.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "POOL_REPORTS",
			Subjects:  []string{"pool.reports.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "POOL_TRANSFERS",
			Subjects:  []string{"pool.transfers.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
