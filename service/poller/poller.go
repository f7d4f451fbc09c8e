package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/gatewatch/gatewatch/service/db"
	"github.com/gatewatch/gatewatch/service/metrics"
	"github.com/gatewatch/gatewatch/service/nats"
	"github.com/gatewatch/gatewatch/service/registry"
	"github.com/gatewatch/gatewatch/service/solana"
)

// LedgerClient is the slice of the ledger layer the poller needs.
type LedgerClient interface {
	FetchActivitySince(ctx context.Context, params solana.FetchActivityParams) ([]*solana.ActivityRecord, error)
}

// EventStore is the slice of the persistence layer the poller needs.
type EventStore interface {
	InsertActivityEvent(ctx context.Context, params db.InsertActivityEventParams) (bool, error)
}

// WatchSource is the slice of the registry the poller needs.
type WatchSource interface {
	List(ctx context.Context) ([]registry.WatchedAddress, error)
	CommitCursor(ctx context.Context, address, cursor string) error
	PollNow() <-chan string
}

// Broadcaster delivers envelopes to live subscribers. Delivery is best
// effort and must never block the polling path.
type Broadcaster interface {
	Broadcast(messageType string, data interface{})
}

// Message types mirrored from the subscription hub so the poller does not
// depend on the transport package.
const (
	msgActivityCreated   = "activity:created"
	msgActivityConfirmed = "activity:confirmed"
	msgActivityFailed    = "activity:failed"
)

// sinkFailure wraps persistence errors. A failing sink aborts the remainder
// of the tick, unlike a ledger error which only skips one address.
type sinkFailure struct{ err error }

func (e sinkFailure) Error() string { return e.err.Error() }
func (e sinkFailure) Unwrap() error { return e.err }

// Poller drives the reconcile loop: on every tick it walks the watched
// addresses sequentially, fetches activity past each cursor, classifies,
// persists, broadcasts and finally commits the cursor. Ticks never overlap
// because the loop is a single goroutine that blocks on the tick.
type Poller struct {
	ledger     LedgerClient
	store      EventStore
	watches    WatchSource
	hub        Broadcaster
	publisher  nats.Publisher
	classifier *Classifier

	interval  time.Duration
	pageLimit int

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPoller creates a poller. hub and publisher may be nil, in which case
// events are persisted but not fanned out.
func NewPoller(
	ledger LedgerClient,
	store EventStore,
	watches WatchSource,
	hub Broadcaster,
	publisher nats.Publisher,
	classifier *Classifier,
	interval time.Duration,
	pageLimit int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		ledger:     ledger,
		store:      store,
		watches:    watches,
		hub:        hub,
		publisher:  publisher,
		classifier: classifier,
		interval:   interval,
		pageLimit:  pageLimit,
		logger:     logger,
		metrics:    m,
	}
}

// Run executes the poll loop until ctx is cancelled. It returns only after
// any in-flight tick has finished, so callers can sequence shutdown behind
// it. Out-of-cycle poll requests from the registry are served between ticks.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.interval, "page_limit", p.pageLimit)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			p.Tick(ctx)
		case address := <-p.watches.PollNow():
			p.pollAddressNow(ctx, address)
		}
	}
}

// Tick reconciles every watched address once. A ledger failure skips that
// address until the next tick; a sink failure aborts the remainder of the
// tick so nothing is processed ahead of a broken store.
func (p *Poller) Tick(ctx context.Context) {
	start := time.Now()
	status := "success"

	watches, err := p.watches.List(ctx)
	if err != nil {
		p.logger.Error("failed to snapshot watched addresses", "error", err)
		if p.metrics != nil {
			p.metrics.RecordPollTick("error", time.Since(start).Seconds())
		}
		return
	}

	for _, w := range watches {
		if ctx.Err() != nil {
			status = "cancelled"
			break
		}

		if err := p.pollAddress(ctx, w); err != nil {
			var sink sinkFailure
			if errors.As(err, &sink) {
				p.logger.Error("event sink failed, aborting tick",
					"address", w.Address,
					"error", err,
				)
				status = "aborted"
				break
			}
			// Ledger trouble is scoped to this address; the cursor did not
			// move, so the next tick retries the same window.
			p.logger.Warn("skipping address for this tick",
				"address", w.Address,
				"error", err,
			)
			if p.metrics != nil {
				p.metrics.RecordAddressSkipped("ledger_error")
			}
		}
	}

	if p.metrics != nil {
		p.metrics.RecordPollTick(status, time.Since(start).Seconds())
	}
}

// pollAddressNow serves the immediate poll that follows a registration.
func (p *Poller) pollAddressNow(ctx context.Context, address string) {
	watches, err := p.watches.List(ctx)
	if err != nil {
		p.logger.Error("failed to snapshot watched addresses", "error", err)
		return
	}
	for _, w := range watches {
		if w.Address != address {
			continue
		}
		if err := p.pollAddress(ctx, w); err != nil {
			p.logger.Warn("immediate poll failed", "address", address, "error", err)
		}
		return
	}
}

// pollAddress fetches, classifies, persists and broadcasts everything newer
// than the address cursor, then commits the cursor. The cursor only moves
// after the whole batch persisted, so a crash mid-batch re-fetches records
// that the sink's dedup then absorbs.
func (p *Poller) pollAddress(ctx context.Context, w registry.WatchedAddress) error {
	address, err := solanago.PublicKeyFromBase58(w.Address)
	if err != nil {
		return fmt.Errorf("invalid watched address %s: %w", w.Address, err)
	}

	params := solana.FetchActivityParams{
		Address: address,
		Limit:   p.pageLimit,
	}
	if w.Cursor != nil {
		sig, err := solanago.SignatureFromBase58(*w.Cursor)
		if err != nil {
			return fmt.Errorf("invalid cursor for %s: %w", w.Address, err)
		}
		params.UntilCursor = &sig
	}

	records, err := p.ledger.FetchActivitySince(ctx, params)
	if err != nil {
		return fmt.Errorf("fetch activity for %s: %w", w.Address, err)
	}
	if len(records) == 0 {
		return nil
	}

	// The ledger returns newest first; process oldest first so subscribers
	// and the store observe events in chronological order.
	for i := len(records) - 1; i >= 0; i-- {
		if err := p.processRecord(ctx, w.Address, records[i]); err != nil {
			return err
		}
	}

	// Everything behind records[0] is persisted, so it is safe to never
	// fetch this window again.
	if err := p.watches.CommitCursor(ctx, w.Address, records[0].ID); err != nil {
		return fmt.Errorf("commit cursor for %s: %w", w.Address, err)
	}

	p.logger.Info("reconciled address",
		"address", w.Address,
		"records", len(records),
		"cursor", records[0].ID,
	)
	return nil
}

// processRecord normalizes one ledger record, persists it and fans it out.
// Fan-out happens only for rows the insert actually created; replayed
// records stay silent.
func (p *Poller) processRecord(ctx context.Context, ownerAddress string, rec *solana.ActivityRecord) error {
	outcome := outcomeFor(rec)
	class, confidence := p.classifier.Classify(rec)

	params := db.InsertActivityEventParams{
		ActivityID:         rec.ID,
		OwnerAddress:       ownerAddress,
		Outcome:            outcome,
		DeliveryClass:      class,
		DeliveryConfidence: confidence,
		CostEstimate:       int64(rec.Fee),
		DetailCount:        rec.DetailCount,
	}
	if !rec.ObservedAt.IsZero() {
		observedAt := rec.ObservedAt
		params.ObservedAt = &observedAt
	}

	created, err := p.store.InsertActivityEvent(ctx, params)
	if err != nil {
		return sinkFailure{err: fmt.Errorf("persist activity event %s: %w", rec.ID, err)}
	}

	if !created {
		if p.metrics != nil {
			p.metrics.RecordEventDuplicate(ownerAddress)
		}
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordEventPersisted(ownerAddress)
	}

	event := &db.ActivityEvent{
		ActivityID:         params.ActivityID,
		OwnerAddress:       params.OwnerAddress,
		Outcome:            params.Outcome,
		DeliveryClass:      params.DeliveryClass,
		DeliveryConfidence: params.DeliveryConfidence,
		CostEstimate:       params.CostEstimate,
		DetailCount:        params.DetailCount,
		ObservedAt:         params.ObservedAt,
		CreatedAt:          time.Now().UTC(),
	}

	if p.hub != nil {
		p.hub.Broadcast(msgActivityCreated, event)
		switch outcome {
		case OutcomeConfirmed:
			p.hub.Broadcast(msgActivityConfirmed, event)
		case OutcomeFailed:
			p.hub.Broadcast(msgActivityFailed, event)
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishActivityEvent(ctx, nats.FromActivityEvent(event)); err != nil {
			// Live distribution is best effort; the store already has the
			// row and the read path covers any gap.
			p.logger.Error("failed to publish activity event",
				"activity_id", event.ActivityID,
				"error", err,
			)
		}
	}

	return nil
}
