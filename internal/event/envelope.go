package event

import "time"

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDepositRequest
	EventTypeRedeemRequest
	EventTypeCancelDepositRequest
	EventTypeCancelRedeemRequest
	EventTypeApproveDeposits
	EventTypeApproveRedeems
	EventTypeIssueShares
	EventTypeRevokeShares
	EventTypeClaimDeposit
	EventTypeClaimRedeem
	EventTypeNetworkReport
	EventTypeShareTransfer
)

// Envelope wraps every event in the log
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Serialization partition (settlement key or pool/network)
	Partition string

	// Versioned input timestamp from the producer (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the serialization key: operations within one
	// partition apply in strict order, across partitions no ordering is
	// guaranteed or required
	Partition() string

	// SourceSequence returns the upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDepositRequest:
		return "DepositRequest"
	case EventTypeRedeemRequest:
		return "RedeemRequest"
	case EventTypeCancelDepositRequest:
		return "CancelDepositRequest"
	case EventTypeCancelRedeemRequest:
		return "CancelRedeemRequest"
	case EventTypeApproveDeposits:
		return "ApproveDeposits"
	case EventTypeApproveRedeems:
		return "ApproveRedeems"
	case EventTypeIssueShares:
		return "IssueShares"
	case EventTypeRevokeShares:
		return "RevokeShares"
	case EventTypeClaimDeposit:
		return "ClaimDeposit"
	case EventTypeClaimRedeem:
		return "ClaimRedeem"
	case EventTypeNetworkReport:
		return "NetworkReport"
	case EventTypeShareTransfer:
		return "ShareTransfer"
	default:
		return "Unknown"
	}
}
