package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"PoolHub/internal/core"

	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes settlement messages and price notices to NATS
// for the spoke networks. Publishing is best-effort: delivery is
// at-least-once and downstream consumers can recover from the event log.
//
// Subjects:
//
//	pool.hub.settlements.{pool}
//	pool.hub.prices.{pool}.{network}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan core.Output) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			for _, msg := range out.Settlements {
				subject := fmt.Sprintf("pool.hub.settlements.%d", msg.Pool)
				if err := op.publish(ctx, subject, msg); err != nil {
					log.Printf("WARN: settlement publish failed seq=%d: %v", out.Envelope.Sequence, err)
				}
			}
			for _, notice := range out.PriceNotices {
				subject := fmt.Sprintf("pool.hub.prices.%d.%d", notice.Pool, notice.Network)
				if err := op.publish(ctx, subject, notice); err != nil {
					log.Printf("WARN: price notice publish failed seq=%d: %v", out.Envelope.Sequence, err)
				}
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound: %w", err)
	}
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound stream for hub-originated
// messages.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "POOL_HUB_OUT",
		Subjects:  []string{"pool.hub.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream POOL_HUB_OUT")
	return nil
}
