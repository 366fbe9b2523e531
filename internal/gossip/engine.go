package gossip

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shrirambalaji/gossip-protocols/internal/telemetry"
	"github.com/shrirambalaji/gossip-protocols/internal/topology"
)

// Sender delivers a gossip message carrying value to a peer. Sends are
// fire-and-forget: a failed or dropped send is repaired by retry, so there
// is nothing useful for the engine to do with an error here.
type Sender interface {
	Gossip(dest string, value int64)
}

// pendingKey identifies one unacknowledged send.
type pendingKey struct {
	Neighbor string
	Value    int64
}

// pending tracks retry state for one (neighbor, value) pair. Owned by the
// engine mutex; never shared outside it.
type pending struct {
	attempts int
	deadline time.Time
}

// Engine drives value dissemination. All table mutation happens under one
// mutex; the inbound protocol handlers and the tick loop are the only
// callers.
type Engine struct {
	mu    sync.Mutex
	table map[pendingKey]*pending

	topo     *topology.Manager
	sender   Sender
	backoff  Backoff
	interval time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine that fans out over topo's current neighbors via
// sender, ticking every interval once started.
func New(topo *topology.Manager, sender Sender, interval time.Duration, backoff Backoff, log *zap.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		table:    make(map[pendingKey]*pending),
		topo:     topo,
		sender:   sender,
		backoff:  backoff,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnNewValue fans v out to every current neighbor that does not already
// have a pending entry for it. The neighbor set is read at call time, not
// cached, so a topology replacement takes effect on the next new value.
func (e *Engine) OnNewValue(v int64) {
	neighbors := e.topo.Neighbors()
	now := time.Now()

	e.mu.Lock()
	targets := make([]string, 0, len(neighbors))
	for _, neighbor := range neighbors {
		key := pendingKey{Neighbor: neighbor, Value: v}
		if _, ok := e.table[key]; ok {
			continue
		}
		e.table[key] = &pending{attempts: 0, deadline: now.Add(e.backoff.Next(0))}
		targets = append(targets, neighbor)
	}
	e.mu.Unlock()

	for _, neighbor := range targets {
		e.sender.Gossip(neighbor, v)
		telemetry.GossipSent.WithLabelValues(telemetry.SendFirst).Inc()
	}
}

// OnAck removes the pending entry for (neighbor, v). Acks with no matching
// entry are possible under duplication and are a logged no-op.
func (e *Engine) OnAck(neighbor string, v int64) {
	key := pendingKey{Neighbor: neighbor, Value: v}

	e.mu.Lock()
	_, matched := e.table[key]
	delete(e.table, key)
	e.mu.Unlock()

	if matched {
		telemetry.Acks.WithLabelValues(telemetry.AckMatched).Inc()
		return
	}
	telemetry.Acks.WithLabelValues(telemetry.AckUnknown).Inc()
	e.log.Debug("ack without pending entry",
		zap.String("neighbor", neighbor),
		zap.Int64("value", v))
}

// Tick re-sends every pending entry whose deadline has elapsed, bumping
// its attempt counter and arming the next deadline from the backoff
// schedule. O(pending entries) per call.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	due := make([]pendingKey, 0)
	for key, p := range e.table {
		if p.deadline.After(now) {
			continue
		}
		p.attempts++
		p.deadline = now.Add(e.backoff.Next(p.attempts))
		due = append(due, key)
	}
	e.mu.Unlock()

	for _, key := range due {
		e.sender.Gossip(key.Neighbor, key.Value)
		telemetry.GossipSent.WithLabelValues(telemetry.SendRetry).Inc()
	}
}

// PendingCount returns the current pending-ack table depth.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.table)
}

// Start launches the tick loop. Stop must be called to release it.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				e.Tick(time.Now())
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}
