package ingestion

import (
	"context"
	"fmt"
	"time"

	"PoolHub/internal/event"
	"PoolHub/internal/pool"

	"github.com/google/uuid"
)

// AdminInjectService provides manual event injection for operators. It is for
// low-volume corrective actions, not for high-throughput ingestion (use NATS
// for that). Injected events skip source-sequence assignment by the producer;
// the caller supplies the next expected sequence for the partition.
type AdminInjectService struct {
	eventChan chan<- event.Event
}

func NewAdminInjectService(eventChan chan<- event.Event) *AdminInjectService {
	return &AdminInjectService{eventChan: eventChan}
}

// InjectApproveDeposits manually injects an ApproveDeposits operation.
func (s *AdminInjectService) InjectApproveDeposits(
	ctx context.Context,
	p pool.PoolID,
	shareClass pool.ShareClassID,
	asset pool.AssetID,
	amount int64,
	sequence int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.ApproveDeposits{
		OpID:       uuid.New(),
		Pool:       p,
		ShareClass: shareClass,
		Asset:      asset,
		Amount:     amount,
		Sequence:   sequence,
		Timestamp:  time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectApproveRedeems manually injects an ApproveRedeems operation.
func (s *AdminInjectService) InjectApproveRedeems(
	ctx context.Context,
	p pool.PoolID,
	shareClass pool.ShareClassID,
	asset pool.AssetID,
	amount int64,
	sequence int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.ApproveRedeems{
		OpID:       uuid.New(),
		Pool:       p,
		ShareClass: shareClass,
		Asset:      asset,
		Amount:     amount,
		Sequence:   sequence,
		Timestamp:  time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectIssueShares manually injects an IssueShares operation.
func (s *AdminInjectService) InjectIssueShares(
	ctx context.Context,
	p pool.PoolID,
	shareClass pool.ShareClassID,
	asset pool.AssetID,
	sequence int64,
) error {
	evt := &event.IssueShares{
		OpID:       uuid.New(),
		Pool:       p,
		ShareClass: shareClass,
		Asset:      asset,
		Sequence:   sequence,
		Timestamp:  time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectRevokeShares manually injects a RevokeShares operation.
func (s *AdminInjectService) InjectRevokeShares(
	ctx context.Context,
	p pool.PoolID,
	shareClass pool.ShareClassID,
	asset pool.AssetID,
	sequence int64,
) error {
	evt := &event.RevokeShares{
		OpID:       uuid.New(),
		Pool:       p,
		ShareClass: shareClass,
		Asset:      asset,
		Sequence:   sequence,
		Timestamp:  time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectNetworkReport manually injects a NetworkReport, e.g. to unblock a
// network whose gateway lost its producer state.
func (s *AdminInjectService) InjectNetworkReport(
	ctx context.Context,
	p pool.PoolID,
	network pool.NetworkID,
	issuance, nav int64,
	sequence int64,
) error {
	evt := &event.NetworkReport{
		ReportID:  uuid.New(),
		Pool:      p,
		Network:   network,
		Issuance:  issuance,
		NAV:       nav,
		Sequence:  sequence,
		Timestamp: time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
