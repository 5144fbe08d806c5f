package event

import (
	"encoding/json"
	"fmt"
)

// UnmarshalPayload decodes a stored envelope payload back into its typed
// event. Payloads are written by the engine with encoding/json, so this is
// the exact inverse used during recovery replay.
func UnmarshalPayload(et EventType, data []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypeDepositRequest:
		evt = &DepositRequest{}
	case EventTypeRedeemRequest:
		evt = &RedeemRequest{}
	case EventTypeCancelDepositRequest:
		evt = &CancelDepositRequest{}
	case EventTypeCancelRedeemRequest:
		evt = &CancelRedeemRequest{}
	case EventTypeApproveDeposits:
		evt = &ApproveDeposits{}
	case EventTypeApproveRedeems:
		evt = &ApproveRedeems{}
	case EventTypeIssueShares:
		evt = &IssueShares{}
	case EventTypeRevokeShares:
		evt = &RevokeShares{}
	case EventTypeClaimDeposit:
		evt = &ClaimDeposit{}
	case EventTypeClaimRedeem:
		evt = &ClaimRedeem{}
	case EventTypeNetworkReport:
		evt = &NetworkReport{}
	case EventTypeShareTransfer:
		evt = &ShareTransfer{}
	default:
		return nil, fmt.Errorf("unknown event type %d", et)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", et, err)
	}
	return evt, nil
}

// ParseEventType maps the stored string form back to the discriminator.
func ParseEventType(s string) (EventType, error) {
	for et := EventTypeDepositRequest; et <= EventTypeShareTransfer; et++ {
		if et.String() == s {
			return et, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("unknown event type %q", s)
}
