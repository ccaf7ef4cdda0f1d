// Package tui holds the framework-agnostic pieces of the multi-agent
// collaboration UI: per-thread active-cell tracking, the transcript render
// cache it keys, a deferred-interrupt queue, and the bottom-pane overlays
// (approval/escalation/request-user-input). None of these depend on
// bubbletea directly, matching the split the teacher already draws between
// internal/cli's Model (bubbletea glue) and the state it holds; the
// bubbletea-facing pieces (styles, key bindings, rendering) stay in
// internal/cli and wrap these types.
//
// Grounded on codex-rs/tui2/src/chatwidget.rs (the streaming active-cell /
// transcript-cache machinery) and internal/cli/model.go's single-thread
// equivalent, generalized across an agent_id-keyed set of concurrently
// streaming threads — the teacher only ever has one.
package tui

// ActiveCell tracks the in-progress rendering state for one thread's
// (agent's) current turn: the streaming reasoning/answer text accumulated
// so far, whether it is a continuation of a previous delta burst, and a
// revision counter bumped on every in-place mutation so a cache consumer
// can tell whether it needs to re-render.
type ActiveCell struct {
	ThreadID string

	// Header is the bold-extracted reasoning header, if any, teacher's
	// "**bold**" header-extraction convention generalized per-thread.
	Header string
	// Body is the accumulated streaming text for the active cell.
	Body string
	// IsStreamContinuation is true once at least one delta has been
	// appended to this cell; the first delta starts a new cell.
	IsStreamContinuation bool

	revision uint64
}

// NewActiveCell starts a fresh cell for a thread's new turn.
func NewActiveCell(threadID string) *ActiveCell {
	return &ActiveCell{ThreadID: threadID}
}

// Revision returns the current revision counter.
func (c *ActiveCell) Revision() uint64 {
	return c.revision
}

// AppendDelta appends a streamed text delta to the cell body, bumping the
// revision. The first call on a fresh cell marks IsStreamContinuation so
// subsequent cache lookups know this cell has prior content to diff
// against rather than being a brand-new write cycle.
func (c *ActiveCell) AppendDelta(delta string) {
	if delta == "" {
		return
	}
	c.Body += delta
	c.IsStreamContinuation = true
	c.revision++
}

// SetHeader records (or replaces) the bold-extracted header for the cell,
// bumping the revision. Matches teacher's stream-error-header-override
// behavior: a later call always wins.
func (c *ActiveCell) SetHeader(header string) {
	c.Header = header
	c.revision++
}

// AppendExecOutput folds exec-tool output into the active cell body,
// bumping the revision — teacher's exec-cell folding generalized to the
// per-thread cell.
func (c *ActiveCell) AppendExecOutput(output string) {
	if output == "" {
		return
	}
	c.Body += output
	c.revision++
}

// CompleteMcpCall marks an MCP tool call's result as folded into the cell,
// bumping the revision. Takes the rendered call text so callers don't need
// a second cell type for MCP vs. exec completions.
func (c *ActiveCell) CompleteMcpCall(rendered string) {
	c.Body += rendered
	c.revision++
}
