package collab

import "github.com/agentmesh/ccmesh/internal/agentcore"

// WakeupReason tags why a wait/wait_agents call returned.
//
// Maps to: codex-rs/core/src/tools/handlers/collab.rs WaitWakeupReason.
type WakeupReason string

const (
	WakeupAnyCompleted WakeupReason = "any_completed"
	WakeupAllCompleted WakeupReason = "all_completed"
	WakeupTimeout      WakeupReason = "timeout"
	WakeupNoTargets    WakeupReason = "no_targets"
)

// WaitMode selects the completion predicate for wait_agents.
type WaitMode string

const (
	WaitModeAny WaitMode = "any"
	WaitModeAll WaitMode = "all"
)

// ParseWaitMode defaults an empty/unknown string to WaitModeAny, matching
// the spec's `mode?: Any|All (default Any)`.
func ParseWaitMode(s string) WaitMode {
	if s == "all" {
		return WaitModeAll
	}
	return WaitModeAny
}

// WaitResult is the outcome of a single-or-small-set `wait` call.
type WaitResult struct {
	Status       map[agentcore.ThreadId]agentcore.AgentStatus
	TimedOut     bool
	WakeupReason WakeupReason
}

// WaitAgentsResult is the outcome of a polling `wait_agents` call.
type WaitAgentsResult struct {
	Status            map[agentcore.ThreadId]agentcore.AgentStatus
	CompletedAgentIDs []agentcore.ThreadId
	TimedOut          bool
	WakeupReason       WakeupReason
}

// EvaluateWaitAgentsSnapshot applies the wait_agents completion predicate
// (§4.2.2) to one polling snapshot: done = (mode=Any && completed non-empty)
// || (mode=All && completed.len == snap.len). It does not sleep or loop —
// the Temporal-side polling loop in internal/workflow calls this once per
// tick so the sleep itself can use workflow.AwaitWithTimeout.
func EvaluateWaitAgentsSnapshot(snap map[agentcore.ThreadId]agentcore.AgentStatus, mode WaitMode) (done bool, completed []agentcore.ThreadId, reason WakeupReason) {
	for id, st := range snap {
		if st.IsFinal() {
			completed = append(completed, id)
		}
	}
	switch mode {
	case WaitModeAll:
		done = len(completed) == len(snap)
		reason = WakeupAllCompleted
	default:
		done = len(completed) > 0
		reason = WakeupAnyCompleted
	}
	return done, completed, reason
}

// ResolveWaitAgentsTargets computes the wait_agents target set per §4.2.2:
// if ids is empty, target = active (non-final) children of self; otherwise
// duplicates and self are removed but explicitly-named closed children are
// kept (reported immediately as their final status, per the Open Question
// in spec.md §9 resolved in favor of the literal algorithm text).
func ResolveWaitAgentsTargets(self agentcore.ThreadId, ids []agentcore.ThreadId, activeChildren []agentcore.ThreadId) []agentcore.ThreadId {
	if len(ids) == 0 {
		out := make([]agentcore.ThreadId, 0, len(activeChildren))
		for _, id := range activeChildren {
			if id != self {
				out = append(out, id)
			}
		}
		return out
	}
	seen := make(map[agentcore.ThreadId]bool, len(ids))
	out := make([]agentcore.ThreadId, 0, len(ids))
	for _, id := range ids {
		if id == self || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
