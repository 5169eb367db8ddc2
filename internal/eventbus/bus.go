// Package eventbus provides a debounced, priority-sorted event fan-out to
// per-session and global subscribers.
//
// It layers priority ordering and per-session debounce batching on top of a
// watermill gochannel, the same "watermill infrastructure, direct-call
// semantics preserved" split the upstream event bus this was adapted from
// uses — the gochannel carries the wire-format copy of every event for
// future middleware/routing, while the typed payload and its debounce
// scheduling are handled directly in Go.
package eventbus

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/happyclaw/supervisor/internal/logging"
	"github.com/happyclaw/supervisor/internal/types"
)

const (
	// DefaultDebounce is the window a non-permission batch waits for more
	// events before flushing.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultMaxBatch forces an immediate flush once a pending batch
	// reaches this size.
	DefaultMaxBatch = 20

	topic = "session-events"
)

// Handler receives a flushed batch of events for one session.
type Handler func(batch []types.SessionEvent)

type subscriberEntry struct {
	id uint64
	fn Handler
}

// Bus debounces, prioritizes, and routes SessionEvents.
type Bus struct {
	debounce time.Duration
	maxBatch int

	pubsub *gochannel.GoChannel

	mu          sync.Mutex
	subscribers map[string][]subscriberEntry // sessionID -> handlers
	global      []subscriberEntry
	pending     map[string][]types.SessionEvent
	timers      map[string]*time.Timer

	nextID uint64
	closed bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithDebounce overrides the default 500ms debounce window.
func WithDebounce(d time.Duration) Option {
	return func(b *Bus) { b.debounce = d }
}

// WithMaxBatchSize overrides the default max batch size of 20.
func WithMaxBatchSize(n int) Option {
	return func(b *Bus) { b.maxBatch = n }
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		debounce:    DefaultDebounce,
		maxBatch:    DefaultMaxBatch,
		pubsub:      gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 100}, watermill.NopLogger{}),
		subscribers: make(map[string][]subscriberEntry),
		pending:     make(map[string][]types.SessionEvent),
		timers:      make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers h for events on sessionID. Returns an unsubscribe
// func. A handler may be registered multiple times; each registration
// receives its own delivery.
func (b *Bus) Subscribe(sessionID string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.subscribers[sessionID] = append(b.subscribers[sessionID], subscriberEntry{id: id, fn: h})
	return func() { b.unsubscribe(sessionID, id) }
}

// SubscribeAll registers h for events on every session.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: h})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(sessionID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[sessionID]
	for i, e := range subs {
		if e.id == id {
			b.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.global {
		if e.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish submits ev for delivery. permission_request events bypass
// batching and are delivered synchronously as their own one-event batch;
// every other kind is appended to sessionID's pending batch, flushed either
// immediately (batch reached maxBatch) or after the debounce window.
func (b *Bus) Publish(ev types.SessionEvent) {
	b.publishToPubSub(ev)

	if ev.Kind == types.EventPermissionRequest {
		b.deliver(ev.SessionID, []types.SessionEvent{ev})
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending[ev.SessionID] = append(b.pending[ev.SessionID], ev)
	reachedMax := len(b.pending[ev.SessionID]) >= b.maxBatch
	sessionID := ev.SessionID

	if reachedMax {
		if t, ok := b.timers[sessionID]; ok {
			t.Stop()
			delete(b.timers, sessionID)
		}
		batch := b.pending[sessionID]
		delete(b.pending, sessionID)
		b.mu.Unlock()
		b.flushBatch(sessionID, batch)
		return
	}

	if t, ok := b.timers[sessionID]; ok {
		t.Stop()
	}
	b.timers[sessionID] = time.AfterFunc(b.debounce, func() { b.flushTimer(sessionID) })
	b.mu.Unlock()
}

func (b *Bus) flushTimer(sessionID string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	delete(b.timers, sessionID)
	batch := b.pending[sessionID]
	delete(b.pending, sessionID)
	b.mu.Unlock()

	if len(batch) > 0 {
		b.flushBatch(sessionID, batch)
	}
}

func (b *Bus) flushBatch(sessionID string, batch []types.SessionEvent) {
	sortByPriority(batch)
	b.deliver(sessionID, batch)
}

// sortByPriority sorts batch by (priority ascending, timestamp ascending),
// stable on ties.
func sortByPriority(batch []types.SessionEvent) {
	sort.SliceStable(batch, func(i, j int) bool {
		pi, pj := batch[i].Kind.Priority(), batch[j].Kind.Priority()
		if pi != pj {
			return pi < pj
		}
		return batch[i].Timestamp.Before(batch[j].Timestamp)
	})
}

func (b *Bus) deliver(sessionID string, batch []types.SessionEvent) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subscribers[sessionID])+len(b.global))
	for _, e := range b.subscribers[sessionID] {
		handlers = append(handlers, e.fn)
	}
	for _, e := range b.global {
		handlers = append(handlers, e.fn)
	}
	b.mu.Unlock()

	b.deliverTo(handlers, batch)
}

func (b *Bus) deliverTo(handlers []Handler, batch []types.SessionEvent) {
	for _, h := range handlers {
		b.callSafely(h, batch)
	}
}

// callSafely invokes h, recovering any panic so one bad subscriber can't
// break the fan-out (mirrors the spec's "handler exceptions are swallowed").
func (b *Bus) callSafely(h Handler, batch []types.SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger().Error().Interface("panic", r).Msg("eventbus: subscriber panicked, recovered")
		}
	}()
	h(batch)
}

func (b *Bus) publishToPubSub(ev types.SessionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
}

// RemoveSession flushes any pending batch for id (even without subscribers)
// then drops all bus state for it.
func (b *Bus) RemoveSession(id string) {
	b.mu.Lock()
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	batch := b.pending[id]
	delete(b.pending, id)

	handlers := make([]Handler, 0, len(b.subscribers[id])+len(b.global))
	for _, e := range b.subscribers[id] {
		handlers = append(handlers, e.fn)
	}
	for _, e := range b.global {
		handlers = append(handlers, e.fn)
	}
	delete(b.subscribers, id)
	b.mu.Unlock()

	if len(batch) > 0 {
		sortByPriority(batch)
		b.deliverTo(handlers, batch)
	}
}

// Dispose flushes every session then clears all bus state.
func (b *Bus) Dispose() {
	b.mu.Lock()
	b.closed = true

	type pendingFlush struct {
		sessionID string
		batch     []types.SessionEvent
		handlers  []Handler
	}
	flushes := make([]pendingFlush, 0, len(b.pending))
	for id, batch := range b.pending {
		if len(batch) == 0 {
			continue
		}
		handlers := make([]Handler, 0, len(b.subscribers[id])+len(b.global))
		for _, e := range b.subscribers[id] {
			handlers = append(handlers, e.fn)
		}
		for _, e := range b.global {
			handlers = append(handlers, e.fn)
		}
		flushes = append(flushes, pendingFlush{sessionID: id, batch: batch, handlers: handlers})
	}

	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = make(map[string]*time.Timer)
	b.pending = make(map[string][]types.SessionEvent)
	b.subscribers = make(map[string][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	for _, f := range flushes {
		sortByPriority(f.batch)
		b.deliverTo(f.handlers, f.batch)
	}

	_ = b.pubsub.Close()
}
