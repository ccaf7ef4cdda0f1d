package tui

import "github.com/agentmesh/ccmesh/internal/workflow"

// TaskRunning computes the derived "is anything happening" status flag per
// §4.3.2: task_running = agent_turn_running OR mcp_startup_in_progress.
// Generalizes teacher's PhaseMessage, which only ever looks at TurnPhase,
// to also fold in MCP server startup — a state teacher's TurnStatus never
// carried.
func TaskRunning(phase workflow.TurnPhase, mcpStartupInProgress bool) bool {
	if mcpStartupInProgress {
		return true
	}
	switch phase {
	case workflow.PhaseLLMCalling, workflow.PhaseToolExecuting:
		return true
	default:
		return false
	}
}

// OverlayKind tags which bottom-pane overlay is currently on top of the
// stack for a given thread.
type OverlayKind int

const (
	OverlayNone OverlayKind = iota
	OverlayApproval
	OverlayEscalation
	OverlayUserInput
)

// overlayFrame is one entry in a thread's overlay stack.
type overlayFrame struct {
	kind     OverlayKind
	userIn   *UserInputOverlay
}

// BottomPane tracks, per thread, a stack of overlays (approval/escalation/
// request-user-input) competing for the composer area. Generalizes
// teacher's single `selector *SelectorModel` field (one overlay, one
// thread) to an arbitrary number of concurrently running agent threads,
// each of which can independently have its own prompt pending. Stacks are
// kept per thread: overlays pushed for the same thread stack atop one
// another, so the user answers them one at a time rather than the last one
// silently clobbering the first, and one thread's overlays never affect
// another thread's stack.
type BottomPane struct {
	stacks map[string][]overlayFrame
}

// NewBottomPane creates an empty BottomPane.
func NewBottomPane() *BottomPane {
	return &BottomPane{stacks: make(map[string][]overlayFrame)}
}

// PushApproval/PushEscalation mark threadID as having an approval or
// escalation prompt pending, on top of whatever else is queued for it.
func (b *BottomPane) PushApproval(threadID string) {
	b.stacks[threadID] = append(b.stacks[threadID], overlayFrame{kind: OverlayApproval})
}

func (b *BottomPane) PushEscalation(threadID string) {
	b.stacks[threadID] = append(b.stacks[threadID], overlayFrame{kind: OverlayEscalation})
}

// PushUserInput pushes a request-user-input overlay for threadID.
func (b *BottomPane) PushUserInput(threadID string, overlay *UserInputOverlay) {
	b.stacks[threadID] = append(b.stacks[threadID], overlayFrame{kind: OverlayUserInput, userIn: overlay})
}

// Top returns the overlay currently on top of threadID's stack, and its
// kind. Returns OverlayNone if the thread has no pending overlay.
func (b *BottomPane) Top(threadID string) (OverlayKind, *UserInputOverlay) {
	stack := b.stacks[threadID]
	if len(stack) == 0 {
		return OverlayNone, nil
	}
	top := stack[len(stack)-1]
	return top.kind, top.userIn
}

// Pop removes the top overlay for threadID, revealing whatever was pushed
// before it (or nothing).
func (b *BottomPane) Pop(threadID string) {
	stack := b.stacks[threadID]
	if len(stack) == 0 {
		return
	}
	b.stacks[threadID] = stack[:len(stack)-1]
}

// Depth returns how many overlays are currently stacked for threadID.
func (b *BottomPane) Depth(threadID string) int {
	return len(b.stacks[threadID])
}
