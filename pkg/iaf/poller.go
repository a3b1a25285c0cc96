package iaf

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/evplatform/eventplane/pkg/metrics"
)

const defaultPollerConcurrency = 16

// Poller implements spec §4.2's polling path: on each tick it walks every
// connection with polling capability, fetches due provider events via the
// adapter, maps them into the canonical envelope and submits them to SIN,
// advancing the connection's cursor even when a cycle returns no events.
type Poller struct {
	Connections ActiveConnectionLister
	Cursors     CursorStore
	Budget      BudgetChecker
	Registry    *Registry
	Breakers    *Manager
	Mapper      *SignalMapper
	Submitter   SignalSubmitter
	Receipts    ReceiptSink
	Logger      *logrus.Logger
	Concurrency int
	Now         func() time.Time
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Poller) logger() *logrus.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}

// Tick runs one polling sweep across all pollable connections, bounded to
// Concurrency workers (default defaultPollerConcurrency).
func (p *Poller) Tick(ctx context.Context) error {
	conns, err := p.Connections.ListPollable(ctx)
	if err != nil {
		return err
	}

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = defaultPollerConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, conn := range conns {
		conn := conn
		if p.now().Sub(conn.LastPolledAt) < conn.PollInterval {
			continue
		}
		g.Go(func() error {
			p.pollOne(gctx, conn)
			return nil
		})
	}
	return g.Wait()
}

// pollOne polls a single connection. Errors are logged and metered, never
// propagated, so one connection's failure never stalls the sweep.
func (p *Poller) pollOne(ctx context.Context, conn PollableConnection) {
	if allowed, err := p.Budget.Allow(ctx, conn.ConnectionID); err == nil && !allowed {
		p.logger().WithField("connection_id", conn.ConnectionID).Debug("poll skipped: budget exhausted")
		return
	}

	adapter, err := p.Registry.Get(ctx, conn.ConnectionID)
	if err != nil {
		p.logger().WithError(err).WithField("connection_id", conn.ConnectionID).Warn("poll: adapter resolution failed")
		return
	}

	cursor, err := p.Cursors.GetCursor(ctx, conn.ConnectionID)
	if err != nil {
		p.logger().WithError(err).WithField("connection_id", conn.ConnectionID).Warn("poll: cursor load failed")
		return
	}

	breaker := p.Breakers.Get(conn.ConnectionID)

	var events []ProviderEvent
	var nextCursor string
	err = breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		events, nextCursor, callErr = adapter.PollEvents(ctx, cursor)
		return callErr
	})

	if err != nil {
		metrics.RecordPollCycle("error")
		p.logger().WithError(err).WithField("connection_id", conn.ConnectionID).Warn("poll cycle failed")
		return
	}
	metrics.RecordPollCycle("success")

	for _, event := range events {
		envelope, mapErr := p.Mapper.Map(conn.ProviderID, conn.ConnectionID, conn.TenantID, event.EventType, event.Payload, event.OccurredAt)
		if mapErr != nil {
			p.logger().WithError(mapErr).WithField("connection_id", conn.ConnectionID).Warn("poll: event mapping failed")
			continue
		}
		if subErr := p.Submitter.Submit(ctx, envelope); subErr != nil {
			p.logger().WithError(subErr).WithField("connection_id", conn.ConnectionID).Warn("poll: signal submission failed")
			continue
		}
		if p.Receipts != nil {
			p.Receipts.Record(ctx, Receipt{
				Kind:         "poll",
				ConnectionID: conn.ConnectionID,
				TenantID:     conn.TenantID,
				ReferenceID:  event.ID,
				Status:       "submitted",
				OccurredAt:   p.now(),
			})
		}
	}

	// last_polled_at advances even on an empty result, so an idle
	// connection is not revisited every tick.
	if nextCursor == "" {
		nextCursor = cursor
	}
	if saveErr := p.Cursors.SaveCursor(ctx, conn.ConnectionID, nextCursor); saveErr != nil {
		p.logger().WithError(saveErr).WithField("connection_id", conn.ConnectionID).Warn("poll: cursor save failed")
	}
}
