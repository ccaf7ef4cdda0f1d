package tui

import "github.com/agentmesh/ccmesh/internal/events"

// UiDispatcher routes streaming events to the right thread's ActiveCell and
// TranscriptCache, and decides whether an approval/escalation/user-input
// prompt should interrupt the view immediately or wait behind that thread's
// InterruptQueue. Generalizes the single-cell bookkeeping teacher's
// Model.renderNewItems/appendToViewport do inline for its one workflow
// across an arbitrary number of concurrently running agent threads.
type UiDispatcher struct {
	cells   map[string]*ActiveCell
	caches  map[string]*TranscriptCache
	queue   *InterruptQueue
	ticks   map[string]int
}

// NewUiDispatcher creates an empty dispatcher.
func NewUiDispatcher() *UiDispatcher {
	return &UiDispatcher{
		cells:  make(map[string]*ActiveCell),
		caches: make(map[string]*TranscriptCache),
		queue:  NewInterruptQueue(),
		ticks:  make(map[string]int),
	}
}

func (d *UiDispatcher) cellFor(threadID string) *ActiveCell {
	c, ok := d.cells[threadID]
	if !ok {
		c = NewActiveCell(threadID)
		d.cells[threadID] = c
	}
	return c
}

func (d *UiDispatcher) cacheFor(threadID string) *TranscriptCache {
	c, ok := d.caches[threadID]
	if !ok {
		c = &TranscriptCache{}
		d.caches[threadID] = c
	}
	return c
}

// Dispatch folds one streaming event into threadID's active cell, arming
// or disarming its InterruptQueue write-cycle as appropriate, and returns
// the cell and its current cache key so the caller can look up (or
// populate) a cached render. It returns ok=false for event kinds this
// dispatcher doesn't track (turn lifecycle, collab, token/error events),
// which the caller renders directly without going through the cache.
func (d *UiDispatcher) Dispatch(threadID string, msg events.Msg) (cell *ActiveCell, key TranscriptCacheKey, ok bool) {
	switch msg.Kind {
	case events.AgentMessageDelta, events.AgentReasoningDelta, events.AgentReasoningRawContentDelta:
		cell = d.cellFor(threadID)
		d.queue.Arm(threadID)
		cell.AppendDelta(msg.Delta)
		ok = true
	case events.AgentReasoningSectionBreak:
		cell = d.cellFor(threadID)
		d.queue.Arm(threadID)
		cell.SetHeader(msg.Message)
		ok = true
	case events.ExecCommandOutputDelta:
		cell = d.cellFor(threadID)
		d.queue.Arm(threadID)
		cell.AppendExecOutput(msg.Chunk)
		ok = true
	case events.ExecCommandEnd, events.McpToolCallEnd:
		cell = d.cellFor(threadID)
		cell.CompleteMcpCall(msg.FormattedOutput)
		ok = true
	case events.TurnComplete, events.TurnAborted, events.StreamError:
		d.EndCell(threadID)
	}
	if cell != nil {
		key = TranscriptCacheKey{
			Revision:             cell.Revision(),
			IsStreamContinuation: cell.IsStreamContinuation,
			AnimationTick:        d.ticks[threadID],
		}
	}
	return cell, key, ok
}

// RenderCached returns the cached frame for threadID/key if present, along
// with whether it was a hit.
func (d *UiDispatcher) RenderCached(threadID string, key TranscriptCacheKey) (string, bool) {
	return d.cacheFor(threadID).Get(key)
}

// StoreRendered records frame as the rendered output for threadID/key.
func (d *UiDispatcher) StoreRendered(threadID string, key TranscriptCacheKey, frame string) {
	d.cacheFor(threadID).Put(key, frame)
}

// Tick advances threadID's animation tick (e.g. a spinner frame), which
// participates in the cache key so an otherwise-unchanged cell still
// re-renders its spinner.
func (d *UiDispatcher) Tick(threadID string) {
	d.ticks[threadID]++
}

// EndCell tears down threadID's active cell and cache at turn end,
// disarming its InterruptQueue and returning any events that had queued up
// during the write cycle for the caller to act on now.
func (d *UiDispatcher) EndCell(threadID string) []InterruptEvent {
	delete(d.cells, threadID)
	if c, ok := d.caches[threadID]; ok {
		c.Invalidate()
	}
	delete(d.ticks, threadID)
	return d.queue.Disarm(threadID)
}

// Queue exposes the dispatcher's InterruptQueue so the caller can Push
// approval/escalation/user-input events through the same arm/disarm
// lifecycle as streaming deltas.
func (d *UiDispatcher) Queue() *InterruptQueue {
	return d.queue
}

// Cell returns threadID's active cell, or nil if it has none in flight.
func (d *UiDispatcher) Cell(threadID string) *ActiveCell {
	return d.cells[threadID]
}
