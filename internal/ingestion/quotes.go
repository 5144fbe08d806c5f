package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"PoolHub/internal/fp"
	"PoolHub/internal/pool"

	"github.com/nats-io/nats.go"
)

// NATSQuoteSource resolves asset valuations over NATS request-reply against
// the external quote service. Approvals fail when the quote service does not
// answer; the manager retries the approval.
type NATSQuoteSource struct {
	nc      *nats.Conn
	timeout time.Duration
}

type quoteReplyJSON struct {
	Asset string `json:"asset"`
	Price string `json:"price"` // D18 raw, base 10
}

func NewNATSQuoteSource(nc *nats.Conn, timeout time.Duration) *NATSQuoteSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSQuoteSource{nc: nc, timeout: timeout}
}

// Quote implements settle.QuoteSource.
func (q *NATSQuoteSource) Quote(asset pool.AssetID) (fp.D18, error) {
	subject := fmt.Sprintf("pool.quotes.%s", asset)
	msg, err := q.nc.Request(subject, nil, q.timeout)
	if err != nil {
		return fp.D18{}, fmt.Errorf("quote request %s: %w", asset, err)
	}

	var reply quoteReplyJSON
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fp.D18{}, fmt.Errorf("quote reply %s: %w", asset, err)
	}

	price, err := fp.ParseRaw(reply.Price)
	if err != nil {
		return fp.D18{}, fmt.Errorf("quote reply %s: %w", asset, err)
	}
	return price, nil
}
