// Package bus implements the in-process publish/subscribe channel carrying
// agent lifecycle events, with a bounded replay history.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/event"
)

// Handler consumes one published message. Handlers for a given type are
// invoked in subscription order. A panicking or slow handler never stops
// delivery to the remaining handlers.
type Handler func(msg event.Message)

// Bus is the in-process event channel. History is a bounded ring buffer;
// the oldest message is evicted first. Subscribers that join after
// publication can only observe what the ring still holds.
type Bus struct {
	mu      sync.RWMutex
	subs    map[event.Type][]Handler
	allSubs []Handler
	history []event.Message
	start   int // index of the oldest retained message
	count   int
	budget  time.Duration
	now     func() time.Time // for testing
	last    time.Time        // last stamped timestamp
}

// New creates a Bus retaining up to historySize messages and giving each
// handler at most budget to return before the publisher moves on.
func New(historySize int, budget time.Duration) *Bus {
	if historySize < 1 {
		historySize = 1
	}
	if budget <= 0 {
		budget = 100 * time.Millisecond
	}
	return &Bus{
		subs:    make(map[event.Type][]Handler),
		history: make([]event.Message, historySize),
		budget:  budget,
		now:     time.Now,
	}
}

// Subscribe registers a handler for messages of the given type.
func (b *Bus) Subscribe(t event.Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers a handler for every message regardless of type.
// Wildcard handlers run after the type-specific ones.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, h)
}

// Publish records msg in the history and delivers it to subscribers of its
// type, in subscription order. Delivery is synchronous up to the per-handler
// budget; a handler that overruns keeps running but no longer blocks the
// publisher.
func (b *Bus) Publish(msg event.Message) {
	b.mu.Lock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
		// Keep stamps strictly increasing so causal order per agent is
		// observable even on coarse clocks.
		if !msg.Timestamp.After(b.last) {
			msg.Timestamp = b.last.Add(time.Nanosecond)
		}
		b.last = msg.Timestamp
	}
	b.append(msg)
	handlers := make([]Handler, 0, len(b.subs[msg.Type])+len(b.allSubs))
	handlers = append(handlers, b.subs[msg.Type]...)
	handlers = append(handlers, b.allSubs...)
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, msg)
	}
}

// deliver invokes one handler with panic isolation and the time budget.
func (b *Bus) deliver(h Handler, msg event.Message) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("event handler panicked", "type", msg.Type, "agent_id", msg.AgentID, "panic", r)
			}
		}()
		h(msg)
	}()

	timer := time.NewTimer(b.budget)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		slog.Warn("event handler exceeded budget", "type", msg.Type, "agent_id", msg.AgentID, "budget", b.budget)
	}
}

// append must be called with b.mu held.
func (b *Bus) append(msg event.Message) {
	capacity := len(b.history)
	if b.count < capacity {
		b.history[(b.start+b.count)%capacity] = msg
		b.count++
		return
	}
	// Full: overwrite the oldest slot.
	b.history[b.start] = msg
	b.start = (b.start + 1) % capacity
}

// Query returns retained messages in publish order (oldest first). An empty
// agentID matches all agents. limit <= 0 means no limit; otherwise the most
// recent limit matches are returned.
func (b *Bus) Query(agentID string, limit int) []event.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []event.Message
	for i := range b.count {
		msg := b.history[(b.start+i)%len(b.history)]
		if agentID == "" || msg.AgentID == agentID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Size returns the number of retained messages.
func (b *Bus) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
