package ingestion

import (
	"encoding/json"
	"fmt"

	"PoolHub/internal/event"
	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates and converts raw messages
// before anything reaches the engine.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "DepositRequest":
		return parseDepositRequest(raw.Data)
	case "RedeemRequest":
		return parseRedeemRequest(raw.Data)
	case "CancelDepositRequest":
		return parseCancelDepositRequest(raw.Data)
	case "CancelRedeemRequest":
		return parseCancelRedeemRequest(raw.Data)
	case "ClaimDeposit":
		return parseClaimDeposit(raw.Data)
	case "ClaimRedeem":
		return parseClaimRedeem(raw.Data)
	case "ApproveDeposits":
		return parseApproveDeposits(raw.Data)
	case "ApproveRedeems":
		return parseApproveRedeems(raw.Data)
	case "IssueShares":
		return parseIssueShares(raw.Data)
	case "RevokeShares":
		return parseRevokeShares(raw.Data)
	case "NetworkReport":
		return parseNetworkReport(raw.Data)
	case "ShareTransfer":
		return parseShareTransfer(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type requestJSON struct {
	RequestID   string `json:"request_id"`
	Pool        uint64 `json:"pool"`
	ShareClass  string `json:"share_class"`
	Asset       string `json:"asset"`
	Investor    string `json:"investor"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDepositRequest(data []byte) (*event.DepositRequest, error) {
	var j requestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositRequest: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	investor, err := uuid.Parse(j.Investor)
	if err != nil {
		return nil, fmt.Errorf("parse investor: %w", err)
	}
	return &event.DepositRequest{
		RequestID:  requestID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Investor:   investor,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

func parseRedeemRequest(data []byte) (*event.RedeemRequest, error) {
	var j requestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RedeemRequest: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	investor, err := uuid.Parse(j.Investor)
	if err != nil {
		return nil, fmt.Errorf("parse investor: %w", err)
	}
	return &event.RedeemRequest{
		RequestID:  requestID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Investor:   investor,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type cancelJSON struct {
	RequestID   string `json:"request_id"`
	Pool        uint64 `json:"pool"`
	ShareClass  string `json:"share_class"`
	Asset       string `json:"asset"`
	Investor    string `json:"investor"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCancelDepositRequest(data []byte) (*event.CancelDepositRequest, error) {
	var j cancelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelDepositRequest: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	investor, err := uuid.Parse(j.Investor)
	if err != nil {
		return nil, fmt.Errorf("parse investor: %w", err)
	}
	return &event.CancelDepositRequest{
		RequestID:  requestID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Investor:   investor,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

func parseCancelRedeemRequest(data []byte) (*event.CancelRedeemRequest, error) {
	var j cancelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelRedeemRequest: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	investor, err := uuid.Parse(j.Investor)
	if err != nil {
		return nil, fmt.Errorf("parse investor: %w", err)
	}
	return &event.CancelRedeemRequest{
		RequestID:  requestID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Investor:   investor,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type claimJSON struct {
	OpID          string `json:"op_id"`
	Pool          uint64 `json:"pool"`
	ShareClass    string `json:"share_class"`
	Asset         string `json:"asset"`
	Investor      string `json:"investor"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseClaimDeposit(data []byte) (*event.ClaimDeposit, error) {
	var j claimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimDeposit: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	investor, err := uuid.Parse(j.Investor)
	if err != nil {
		return nil, fmt.Errorf("parse investor: %w", err)
	}
	return &event.ClaimDeposit{
		OpID:          opID,
		Pool:          pool.PoolID(j.Pool),
		ShareClass:    pool.ShareClassID(j.ShareClass),
		Asset:         pool.AssetID(j.Asset),
		Investor:      investor,
		MaxIterations: j.MaxIterations,
		Sequence:      j.Sequence,
		Timestamp:     j.TimestampUs,
	}, nil
}

func parseClaimRedeem(data []byte) (*event.ClaimRedeem, error) {
	var j claimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimRedeem: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	investor, err := uuid.Parse(j.Investor)
	if err != nil {
		return nil, fmt.Errorf("parse investor: %w", err)
	}
	return &event.ClaimRedeem{
		OpID:          opID,
		Pool:          pool.PoolID(j.Pool),
		ShareClass:    pool.ShareClassID(j.ShareClass),
		Asset:         pool.AssetID(j.Asset),
		Investor:      investor,
		MaxIterations: j.MaxIterations,
		Sequence:      j.Sequence,
		Timestamp:     j.TimestampUs,
	}, nil
}

type managerOpJSON struct {
	OpID        string `json:"op_id"`
	Pool        uint64 `json:"pool"`
	ShareClass  string `json:"share_class"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseApproveDeposits(data []byte) (*event.ApproveDeposits, error) {
	var j managerOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ApproveDeposits: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	return &event.ApproveDeposits{
		OpID:       opID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

func parseApproveRedeems(data []byte) (*event.ApproveRedeems, error) {
	var j managerOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ApproveRedeems: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	return &event.ApproveRedeems{
		OpID:       opID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

func parseIssueShares(data []byte) (*event.IssueShares, error) {
	var j managerOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse IssueShares: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	return &event.IssueShares{
		OpID:       opID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

func parseRevokeShares(data []byte) (*event.RevokeShares, error) {
	var j managerOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RevokeShares: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	return &event.RevokeShares{
		OpID:       opID,
		Pool:       pool.PoolID(j.Pool),
		ShareClass: pool.ShareClassID(j.ShareClass),
		Asset:      pool.AssetID(j.Asset),
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type networkReportJSON struct {
	ReportID    string `json:"report_id"`
	Pool        uint64 `json:"pool"`
	Network     uint32 `json:"network"`
	Issuance    int64  `json:"issuance"`
	NAV         int64  `json:"nav"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseNetworkReport(data []byte) (*event.NetworkReport, error) {
	var j networkReportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NetworkReport: %w", err)
	}
	reportID, err := uuid.Parse(j.ReportID)
	if err != nil {
		return nil, fmt.Errorf("parse report_id: %w", err)
	}
	return &event.NetworkReport{
		ReportID:  reportID,
		Pool:      pool.PoolID(j.Pool),
		Network:   pool.NetworkID(j.Network),
		Issuance:  j.Issuance,
		NAV:       j.NAV,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type shareTransferJSON struct {
	TransferID  string `json:"transfer_id"`
	Pool        uint64 `json:"pool"`
	FromNetwork uint32 `json:"from_network"`
	ToNetwork   uint32 `json:"to_network"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseShareTransfer(data []byte) (*event.ShareTransfer, error) {
	var j shareTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ShareTransfer: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	return &event.ShareTransfer{
		TransferID:  transferID,
		Pool:        pool.PoolID(j.Pool),
		FromNetwork: pool.NetworkID(j.FromNetwork),
		ToNetwork:   pool.NetworkID(j.ToNetwork),
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}
