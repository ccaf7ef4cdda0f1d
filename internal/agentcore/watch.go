package agentcore

import "sync"

// WatchChannel is a single-producer, multi-consumer primitive that
// publishes the latest AgentStatus to subscribers; closing the sender
// signals completion. Grounded in the same idea as Temporal's workflow
// signal-channel, but usable from plain goroutines on the worker/CLI
// side where no workflow.Context is available (the EventStream
// broadcaster and the single-target wait fast path both subscribe here).
//
// No pack dependency supplies a generic single-value pub/sub primitive,
// so this is the one deliberately stdlib-only piece of the data model.
type WatchChannel struct {
	mu     sync.Mutex
	value  AgentStatus
	closed bool
	subs   []chan struct{}
}

func NewWatchChannel(initial AgentStatus) *WatchChannel {
	return &WatchChannel{value: initial}
}

// Send publishes a new value and wakes all current subscribers.
func (w *WatchChannel) Send(v AgentStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.value = v
	w.notifyLocked()
}

// Close marks the channel closed; subsequent Send calls are no-ops.
func (w *WatchChannel) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.notifyLocked()
}

func (w *WatchChannel) notifyLocked() {
	for _, ch := range w.subs {
		close(ch)
	}
	w.subs = nil
}

// Value returns the current value and whether the channel is closed.
func (w *WatchChannel) Value() (AgentStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.closed
}

// Changed returns a channel that is closed the next time Send or Close
// is called.
func (w *WatchChannel) Changed() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan struct{})
	if w.closed {
		close(ch)
		return ch
	}
	w.subs = append(w.subs, ch)
	return ch
}

// Broadcaster fans a Registry's status updates out to per-thread
// WatchChannels, backing AgentControl's subscribe_status operation.
type Broadcaster struct {
	mu       sync.Mutex
	channels map[ThreadId]*WatchChannel
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{channels: make(map[ThreadId]*WatchChannel)}
}

// Subscribe returns the WatchChannel for id, creating it with the given
// initial value if this is the first subscription.
func (b *Broadcaster) Subscribe(id ThreadId, initial AgentStatus) *WatchChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.channels[id]; ok {
		return ch
	}
	ch := NewWatchChannel(initial)
	b.channels[id] = ch
	return ch
}

// Publish sends a status update to id's channel, creating it if absent.
func (b *Broadcaster) Publish(id ThreadId, status AgentStatus) {
	b.mu.Lock()
	ch, ok := b.channels[id]
	if !ok {
		ch = NewWatchChannel(status)
		b.channels[id] = ch
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	ch.Send(status)
}

// Close closes id's channel if present.
func (b *Broadcaster) Close(id ThreadId) {
	b.mu.Lock()
	ch, ok := b.channels[id]
	b.mu.Unlock()
	if ok {
		ch.Close()
	}
}
