package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"PoolHub/internal/epoch"
	"PoolHub/internal/event"
	"PoolHub/internal/fp"
	"PoolHub/internal/nav"
	"PoolHub/internal/observability"
	"PoolHub/internal/pool"
	"PoolHub/internal/request"
	"PoolHub/internal/settle"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Output is what the engine emits per applied event: the envelope for the
// event log plus any outbound records the event produced.
type Output struct {
	Envelope     *event.Envelope
	Settlements  []event.SettlementMessage
	PriceNotices []event.PriceNotice
}

// keyState is one (shareClass, asset) settlement partition. The mutex is
// held for the duration of one logical operation; no operation blocks on
// external I/O while holding it (the price quote is fetched by the
// settlement engine before any state mutates irreversibly, and quote
// failures abort with no partial mutation).
type keyState struct {
	mu   sync.Mutex
	led  *epoch.Ledger
	book *request.Book
}

type poolState struct {
	mu   sync.Mutex
	keys map[pool.Key]*keyState
	nav  *nav.Aggregator
}

// Engine is the settlement facade: it owns all pool state, runs the
// idempotency and ordering checks, dispatches events to the settlement
// engine or the price aggregator under the right per-key lock, and emits
// outputs. Operations on disjoint keys run in parallel; operations on the
// same key serialize.
type Engine struct {
	settler     *settle.Engine
	accounting  nav.Accounting
	hubNetwork  pool.NetworkID
	idempotency *IdempotencyChecker
	seqValid    *SequenceValidator
	metrics     *observability.Metrics
	log         zerolog.Logger

	claimMaxIterations int

	sequence atomic.Int64

	mu    sync.Mutex
	pools map[pool.PoolID]*poolState

	persistChan chan<- Output
	publishChan chan<- Output
}

type Config struct {
	Quotes             settle.QuoteSource
	Accounting         nav.Accounting
	HubNetwork         pool.NetworkID
	ClaimMaxIterations int
	IdempotencyLRU     int
	DBChecker          DBIdempotencyChecker
	Metrics            *observability.Metrics
	Logger             zerolog.Logger
}

func NewEngine(cfg Config, persistChan, publishChan chan<- Output) *Engine {
	e := &Engine{
		accounting:         cfg.Accounting,
		hubNetwork:         cfg.HubNetwork,
		idempotency:        NewIdempotencyChecker(cfg.IdempotencyLRU, cfg.DBChecker),
		seqValid:           NewSequenceValidator(),
		metrics:            cfg.Metrics,
		log:                cfg.Logger,
		claimMaxIterations: cfg.ClaimMaxIterations,
		pools:              make(map[pool.PoolID]*poolState),
		persistChan:        persistChan,
		publishChan:        publishChan,
	}
	if e.claimMaxIterations <= 0 {
		e.claimMaxIterations = 50
	}
	// The engine is its own NAV source: issuance reads the price the
	// aggregator computed from the latest network reports.
	e.settler = settle.NewEngine(cfg.Quotes, e)
	return e
}

// PricePerShare implements settle.NavSource.
func (e *Engine) PricePerShare(p pool.PoolID) (fp.D18, error) {
	return e.poolState(p).nav.PricePerShare()
}

func (e *Engine) poolState(p pool.PoolID) *poolState {
	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok := e.pools[p]
	if !ok {
		ps = &poolState{
			keys: make(map[pool.Key]*keyState),
			nav:  nav.NewAggregator(p),
		}
		e.pools[p] = ps
	}
	return ps
}

func (e *Engine) keyState(p pool.PoolID, k pool.Key) *keyState {
	ps := e.poolState(p)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ks, ok := ps.keys[k]
	if !ok {
		ks = &keyState{
			led:  epoch.NewLedger(k),
			book: request.NewBook(k),
		}
		ps.keys[k] = ks
	}
	return ks
}

// ProcessEvent runs the full pipeline for one inbound event:
// dedup -> ordering -> dispatch (under the partition lock) -> emit.
// Every failure aborts the call with no partial state mutation.
func (e *Engine) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	isDuplicate := e.idempotency.IsDuplicate(eventType, idempotencyKey)

	if err := e.seqValid.ValidateSequence(evt.Partition(), evt.SourceSequence(), isDuplicate); err != nil {
		if e.metrics != nil {
			e.metrics.EventsRejected.WithLabelValues(eventType, "ordering").Inc()
		}
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	if isDuplicate {
		if e.metrics != nil {
			e.metrics.EventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	settlements, notices, err := e.dispatch(evt)
	if err != nil {
		if e.metrics != nil {
			e.metrics.EventsRejected.WithLabelValues(eventType, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	output := Output{
		Envelope: &event.Envelope{
			Sequence:       e.sequence.Add(1) - 1,
			IdempotencyKey: idempotencyKey,
			EventType:      evt.EventType(),
			Partition:      evt.Partition(),
			Timestamp:      e.eventTimestamp(evt),
			SourceSequence: evt.SourceSequence(),
			Payload:        payload,
		},
		Settlements:  settlements,
		PriceNotices: notices,
	}

	// Persistence: blocking send — the engine stalls until the persistence
	// worker drains. No applied event is ever lost.
	e.persistChan <- output

	// Publishing: non-blocking send with drop. Cross-network delivery is
	// at-least-once anyway and downstream can recover from the event log.
	if len(output.Settlements) > 0 || len(output.PriceNotices) > 0 {
		select {
		case e.publishChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
			e.log.Warn().
				Int64("sequence", output.Envelope.Sequence).
				Msg("publish channel full, outbound dropped")
		}
	}

	e.idempotency.MarkProcessed(eventType, idempotencyKey)

	if e.metrics != nil {
		e.metrics.EventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.EventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.EngineSequence.Set(float64(e.sequence.Load()))
	}
	return nil
}

func (e *Engine) dispatch(evt event.Event) ([]event.SettlementMessage, []event.PriceNotice, error) {
	switch ev := evt.(type) {
	case *event.DepositRequest:
		return nil, nil, e.handleRequest(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), ev.Investor, pool.DirectionDeposit, ev.Amount)
	case *event.RedeemRequest:
		return nil, nil, e.handleRequest(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), ev.Investor, pool.DirectionRedeem, ev.Amount)
	case *event.CancelDepositRequest:
		return nil, nil, e.handleCancel(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), ev.Investor, pool.DirectionDeposit)
	case *event.CancelRedeemRequest:
		return nil, nil, e.handleCancel(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), ev.Investor, pool.DirectionRedeem)
	case *event.ApproveDeposits:
		return nil, nil, e.handleApprove(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), pool.DirectionDeposit, ev.Amount, &ev.Price)
	case *event.ApproveRedeems:
		return nil, nil, e.handleApprove(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), pool.DirectionRedeem, ev.Amount, &ev.Price)
	case *event.IssueShares:
		return nil, nil, e.handleSettleEpoch(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), pool.DirectionDeposit)
	case *event.RevokeShares:
		return nil, nil, e.handleSettleEpoch(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), pool.DirectionRedeem)
	case *event.ClaimDeposit:
		msg, err := e.handleClaim(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), ev.Investor, pool.DirectionDeposit, ev.MaxIterations, ev.Timestamp)
		return msg, nil, err
	case *event.ClaimRedeem:
		msg, err := e.handleClaim(ev.Pool, pool.NewKey(ev.ShareClass, ev.Asset), ev.Investor, pool.DirectionRedeem, ev.MaxIterations, ev.Timestamp)
		return msg, nil, err
	case *event.NetworkReport:
		return e.handleNetworkReport(ev)
	case *event.ShareTransfer:
		return nil, nil, e.poolState(ev.Pool).nav.OnTransfer(ev.FromNetwork, ev.ToNetwork, ev.Amount)
	default:
		return nil, nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (e *Engine) handleRequest(p pool.PoolID, k pool.Key, investor uuid.UUID, d pool.Direction, amount int64) error {
	ks := e.keyState(p, k)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	nowEpoch := ks.led.NowDepositEpoch()
	if d == pool.DirectionRedeem {
		nowEpoch = ks.led.NowRedeemEpoch()
	}
	return ks.book.RecordRequest(investor, d, amount, nowEpoch)
}

func (e *Engine) handleCancel(p pool.PoolID, k pool.Key, investor uuid.UUID, d pool.Direction) error {
	ks := e.keyState(p, k)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	nowEpoch := ks.led.NowDepositEpoch()
	if d == pool.DirectionRedeem {
		nowEpoch = ks.led.NowRedeemEpoch()
	}
	cancelled, err := ks.book.RecordCancellation(investor, d, nowEpoch)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		e.log.Debug().
			Uint64("pool", uint64(p)).
			Stringer("key", k).
			Stringer("investor", investor).
			Str("direction", d.String()).
			Int64("amount", cancelled).
			Msg("cancellation recorded")
	}
	return nil
}

// handleApprove freezes a quote and opens an approval epoch. frozenPrice is
// the event's backfill slot: empty on first processing (quote now, record
// for the log), populated on replay (reuse, never re-quote).
func (e *Engine) handleApprove(p pool.PoolID, k pool.Key, d pool.Direction, amount int64, frozenPrice *string) error {
	ks := e.keyState(p, k)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var epochID uint32
	var price fp.D18
	var err error
	if *frozenPrice != "" {
		price, err = fp.ParseRaw(*frozenPrice)
		if err != nil {
			return fmt.Errorf("frozen price: %w", err)
		}
		if d == pool.DirectionDeposit {
			epochID, err = e.settler.ApproveDepositsAt(ks.led, ks.book, amount, price)
		} else {
			epochID, err = e.settler.ApproveRedeemsAt(ks.led, ks.book, amount, price)
		}
	} else {
		if d == pool.DirectionDeposit {
			epochID, price, err = e.settler.ApproveDeposits(ks.led, ks.book, amount)
		} else {
			epochID, price, err = e.settler.ApproveRedeems(ks.led, ks.book, amount)
		}
	}
	if err != nil {
		return err
	}
	*frozenPrice = price.RawString()

	if e.metrics != nil {
		e.metrics.EpochsApproved.WithLabelValues(d.String()).Inc()
	}
	e.log.Info().
		Uint64("pool", uint64(p)).
		Stringer("key", k).
		Str("direction", d.String()).
		Uint32("epoch", epochID).
		Int64("amount", amount).
		Str("price", price.String()).
		Msg("epoch approved")
	return nil
}

func (e *Engine) handleSettleEpoch(p pool.PoolID, k pool.Key, d pool.Direction) error {
	ks := e.keyState(p, k)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var epochID uint32
	var settled int64
	var err error
	if d == pool.DirectionDeposit {
		epochID, settled, err = e.settler.IssueShares(p, ks.led)
	} else {
		epochID, settled, err = e.settler.RevokeShares(p, ks.led)
	}
	if err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.EpochsSettled.WithLabelValues(d.String()).Inc()
	}
	e.log.Info().
		Uint64("pool", uint64(p)).
		Stringer("key", k).
		Str("direction", d.String()).
		Uint32("epoch", epochID).
		Int64("settled", settled).
		Msg("epoch settled")
	return nil
}

func (e *Engine) handleClaim(
	p pool.PoolID,
	k pool.Key,
	investor uuid.UUID,
	d pool.Direction,
	maxIterations int,
	timestampUs int64,
) ([]event.SettlementMessage, error) {
	ks := e.keyState(p, k)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if maxIterations <= 0 || maxIterations > e.claimMaxIterations {
		maxIterations = e.claimMaxIterations
	}

	res, err := settle.Drain(ks.led, ks.book, investor, d, maxIterations)
	if err != nil {
		return nil, err
	}
	if !res.HasEffect() {
		// No-op claim: nothing settled, nothing emitted.
		return nil, nil
	}

	if e.metrics != nil {
		e.metrics.ClaimsDrained.WithLabelValues(d.String()).Inc()
		e.metrics.SettlementMessages.WithLabelValues(d.String()).Inc()
	}
	return []event.SettlementMessage{{
		MessageID:              uuid.New(),
		Pool:                   p,
		ShareClass:             k.ShareClass,
		Asset:                  k.Asset,
		Investor:               investor,
		Direction:              d.String(),
		FulfilledAmount:        res.Payment,
		FulfilledCounterAmount: res.Payout,
		CancelledAmount:        res.Cancelled,
		EpochFrom:              res.EpochFrom,
		EpochTo:                res.EpochTo,
		Timestamp:              time.UnixMicro(timestampUs),
	}}, nil
}

func (e *Engine) handleNetworkReport(ev *event.NetworkReport) ([]event.SettlementMessage, []event.PriceNotice, error) {
	ps := e.poolState(ev.Pool)

	price, err := ps.nav.OnNetworkUpdate(ev.Network, ev.Issuance, ev.NAV)
	if err != nil {
		if errors.Is(err, nav.ErrInvalidNAV) && e.metrics != nil {
			e.metrics.PoolsHalted.Inc()
		}
		return nil, nil, err
	}

	if e.metrics != nil {
		e.metrics.NetworkReports.Inc()
		e.metrics.PoolPrice.WithLabelValues(fmt.Sprintf("%d", ev.Pool)).Set(priceGauge(price))
	}

	// Every network that has ever touched the pool learns the new price.
	networks := ps.nav.Networks()
	notices := make([]event.PriceNotice, 0, len(networks))
	ts := time.UnixMicro(ev.Timestamp)
	for _, n := range networks {
		notices = append(notices, event.PriceNotice{
			Pool:          ev.Pool,
			Network:       n,
			PricePerShare: price.RawString(),
			Timestamp:     ts,
		})
	}
	if e.metrics != nil {
		e.metrics.PriceNotices.Add(float64(len(notices)))
	}
	return nil, notices, nil
}

// ReportHubValuation derives the hub's NAV from the accounting ledger and
// feeds it through the normal report pipeline, so hub-side valuation updates
// share ordering, dedup and persistence with spoke reports.
func (e *Engine) ReportHubValuation(p pool.PoolID, issuance int64) error {
	if e.accounting == nil {
		return fmt.Errorf("no accounting ledger configured")
	}
	derived, err := nav.PoolNAV(e.accounting, p)
	if err != nil {
		return err
	}

	report := &event.NetworkReport{
		ReportID:  uuid.New(),
		Pool:      p,
		Network:   e.hubNetwork,
		Issuance:  issuance,
		NAV:       derived,
		Timestamp: time.Now().UnixMicro(),
	}
	report.Sequence = e.seqValid.ExpectedSequence(report.Partition())
	return e.ProcessEvent(report)
}

// eventTimestamp extracts the versioned producer timestamp. The engine never
// stamps applied events with its own wall clock.
func (e *Engine) eventTimestamp(evt event.Event) time.Time {
	switch ev := evt.(type) {
	case *event.DepositRequest:
		return time.UnixMicro(ev.Timestamp)
	case *event.RedeemRequest:
		return time.UnixMicro(ev.Timestamp)
	case *event.CancelDepositRequest:
		return time.UnixMicro(ev.Timestamp)
	case *event.CancelRedeemRequest:
		return time.UnixMicro(ev.Timestamp)
	case *event.ApproveDeposits:
		return time.UnixMicro(ev.Timestamp)
	case *event.ApproveRedeems:
		return time.UnixMicro(ev.Timestamp)
	case *event.IssueShares:
		return time.UnixMicro(ev.Timestamp)
	case *event.RevokeShares:
		return time.UnixMicro(ev.Timestamp)
	case *event.ClaimDeposit:
		return time.UnixMicro(ev.Timestamp)
	case *event.ClaimRedeem:
		return time.UnixMicro(ev.Timestamp)
	case *event.NetworkReport:
		return time.UnixMicro(ev.Timestamp)
	case *event.ShareTransfer:
		return time.UnixMicro(ev.Timestamp)
	default:
		return time.Time{}
	}
}

// priceGauge renders a D18 as a float for the metrics gauge only; settlement
// arithmetic never goes through floats.
func priceGauge(p fp.D18) float64 {
	var f float64
	fmt.Sscanf(p.String(), "%g", &f)
	return f
}

// Sequence returns the next global sequence the engine will assign.
func (e *Engine) Sequence() int64 {
	return e.sequence.Load()
}

// ReplayEvent re-applies one event from the durable log during recovery.
// State mutates exactly as in ProcessEvent, but nothing is persisted or
// published: the log row already exists and downstream already saw the
// outputs. Events must be replayed in global sequence order.
func (e *Engine) ReplayEvent(evt event.Event) error {
	if err := e.seqValid.ValidateSequence(evt.Partition(), evt.SourceSequence(), false); err != nil {
		return fmt.Errorf("replay sequence validation: %w", err)
	}

	if _, _, err := e.dispatch(evt); err != nil {
		return fmt.Errorf("replay dispatch %s: %w", evt.EventType(), err)
	}

	e.sequence.Add(1)
	e.idempotency.MarkProcessed(evt.EventType().String(), evt.IdempotencyKey())
	return nil
}

// RestoreSequence sets the next global sequence after recovery. Only valid
// before the engine starts accepting live events.
func (e *Engine) RestoreSequence(next int64) {
	e.sequence.Store(next)
}

// WarmIdempotency preloads composite dedup keys into the LRU.
func (e *Engine) WarmIdempotency(keys []string) {
	e.idempotency.WarmLRU(keys)
}
