// Package telemetry buffers outbound events and delivers them at least
// once over an intermittent transport.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safehold-systems/safehold/internal/fabric"
	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/internal/protocol"
	"github.com/safehold-systems/safehold/pkg/types"
)

const (
	DefaultRingCapacity = 64

	defaultRetryTimeout  = 10 * time.Second
	defaultSweepInterval = 1 * time.Second
	defaultDrainPace     = 25 * time.Millisecond
)

// Options tunes the delivery buffer.
type Options struct {
	// RingCapacity bounds the number of buffered events; the oldest is
	// evicted when a new event arrives at capacity.
	RingCapacity int
	// RetryTimeout is how long an unacknowledged publish stays pending
	// before it is resent.
	RetryTimeout time.Duration
	// SweepInterval is how often the buffer is scanned for work.
	SweepInterval time.Duration
	// DrainPace is the gap between sends while draining a backlog after
	// a reconnect.
	DrainPace time.Duration
}

func (o Options) withDefaults() Options {
	if o.RingCapacity <= 0 {
		o.RingCapacity = DefaultRingCapacity
	}
	if o.RetryTimeout <= 0 {
		o.RetryTimeout = defaultRetryTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.DrainPace <= 0 {
		o.DrainPace = defaultDrainPace
	}
	return o
}

// Publisher owns the delivery ring and is the only goroutine that touches
// it. Events come in on a fabric channel, go out through the transport,
// and stay buffered until the broker acknowledges them.
type Publisher struct {
	transport Transport
	events    *fabric.Chan[types.Event]
	ring      *Ring
	opts      Options
	logger    *slog.Logger

	buffered atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher creates a publisher draining events into transport.
func NewPublisher(transport Transport, events *fabric.Chan[types.Event], opts Options, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Publisher{
		transport: transport,
		events:    events,
		ring:      NewRing(opts.RingCapacity),
		opts:      opts,
		logger:    logger,
	}
}

// Start begins the delivery loop.
func (p *Publisher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("publisher started",
		"ring_capacity", p.opts.RingCapacity,
		"retry_timeout", p.opts.RetryTimeout)
}

// Stop signals the delivery loop to stop and waits for it to finish.
// Undelivered events are discarded with the process.
func (p *Publisher) Stop(_ context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("publisher stopped", "undelivered", p.ring.Len())
}

// Buffered reports how many events are awaiting delivery.
func (p *Publisher) Buffered() int {
	return int(p.buffered.Load())
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events.C():
			p.handleEvent(ev)
		case id := <-p.transport.Acks():
			p.handleAck(id)
		case <-p.transport.Reconnects():
			p.drain(ctx)
		case <-ticker.C:
			p.sweep(time.Now())
		}
	}
}

// handleEvent buffers a new event and, when the broker is reachable,
// sends it immediately.
func (p *Publisher) handleEvent(ev types.Event) {
	victim, evicted := p.ring.Append(BufferedEvent{Event: ev, EnqueuedAt: time.Now()})
	if evicted {
		metrics.EventsEvicted.Add(1)
		p.logger.Warn("delivery buffer full, dropping oldest event",
			"dropped_id", victim.Event.ID,
			"dropped_kind", victim.Event.Kind)
	}
	p.buffered.Store(int64(p.ring.Len()))

	if p.transport.Connected() {
		p.attempt(p.ring.Len()-1, time.Now())
	}
}

// handleAck removes the confirmed entry. An unmatched id belongs to an
// entry already evicted, or to a send superseded by a retry.
func (p *Publisher) handleAck(id uint32) {
	be, ok := p.ring.Remove(id)
	if !ok {
		p.logger.Debug("unmatched delivery ack", "delivery_id", id)
		return
	}
	metrics.EventsAcked.Add(1)
	p.buffered.Store(int64(p.ring.Len()))
	p.logger.Debug("event delivered", "event_id", be.Event.ID, "delivery_id", id)
}

// sweep resends pending entries whose acknowledgement is overdue and
// gives idle entries a fresh attempt while connected.
func (p *Publisher) sweep(now time.Time) {
	connected := p.transport.Connected()
	for i := 0; i < p.ring.Len(); i++ {
		be := p.ring.At(i)
		switch {
		case be.Pending && now.Sub(be.AttemptedAt) >= p.opts.RetryTimeout:
			if !connected {
				// Mark idle so the next drain or connected sweep
				// picks it up.
				p.ring.ClearPending(i)
				continue
			}
			metrics.EventsRetried.Add(1)
			p.logger.Info("retrying unacknowledged event",
				"event_id", be.Event.ID,
				"delivery_id", be.DeliveryID)
			p.attempt(i, now)
		case !be.Pending && connected:
			p.attempt(i, now)
		}
	}
}

// drain walks the backlog oldest-first after a reconnect, pacing sends so
// a long outage's worth of events does not flood the broker.
func (p *Publisher) drain(ctx context.Context) {
	if p.ring.Len() == 0 {
		return
	}
	p.logger.Info("connection restored, draining buffered events", "buffered", p.ring.Len())

	for i := 0; i < p.ring.Len(); i++ {
		if !p.transport.Connected() {
			p.logger.Warn("drain interrupted, connection lost again",
				"remaining", p.ring.Len()-i)
			return
		}
		if p.ring.At(i).Pending {
			continue
		}
		if !p.attempt(i, time.Now()) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.DrainPace):
		}
	}
}

// attempt hands entry i to the transport and reports whether the payload
// was handed off. The entry stays buffered until its ack arrives.
func (p *Publisher) attempt(i int, now time.Time) bool {
	be := p.ring.At(i)
	payload, err := protocol.EncodeEvent(be.Event)
	if err != nil {
		// An unencodable event can never deliver; keeping it would wedge
		// the ring slot forever.
		p.logger.Error("dropping unencodable event", "event_id", be.Event.ID, "error", err)
		p.ring.removeAt(i)
		p.buffered.Store(int64(p.ring.Len()))
		return false
	}

	id, err := p.transport.Publish(payload)
	if err != nil {
		p.logger.Debug("publish deferred", "event_id", be.Event.ID, "reason", err)
		return false
	}

	p.ring.MarkAttempt(i, id, now)
	metrics.EventsPublished.Add(1)
	p.logger.Debug("event publish initiated",
		"event_id", be.Event.ID,
		"delivery_id", id,
		"kind", be.Event.Kind)
	return true
}
