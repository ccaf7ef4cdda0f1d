// Package agentcore holds the thread/agent data model shared by the
// collaboration dispatcher, the wait engine, and the spawn policy: thread
// identity, agent status, and the agent record registry with its
// lifecycle invariants.
//
// Maps to: the ThreadId/AgentStatus/ListAgentItem types used throughout
// codex-rs/core/src/tools/handlers/collab.rs (imported there from
// codex_protocol::ThreadId and crate::agent::AgentStatus, neither of which
// is itself part of this retrieval pack).
package agentcore

import (
	"fmt"
	"strings"
)

// ThreadId is an opaque identifier for an agent/thread.
type ThreadId string

// ParseThreadID validates and wraps a raw string as a ThreadId.
func ParseThreadID(raw string) (ThreadId, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("thread id must not be empty")
	}
	return ThreadId(raw), nil
}

func (t ThreadId) String() string { return string(t) }

// AgentStatusKind tags the variant carried by an AgentStatus.
type AgentStatusKind int

const (
	StatusPendingInit AgentStatusKind = iota
	StatusRunning
	StatusShutdown
	StatusNotFound
	StatusCompleted
	StatusErrored
)

func (k AgentStatusKind) String() string {
	switch k {
	case StatusPendingInit:
		return "pending_init"
	case StatusRunning:
		return "running"
	case StatusShutdown:
		return "shutdown"
	case StatusNotFound:
		return "not_found"
	case StatusCompleted:
		return "completed"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// AgentStatus is the tagged-union status of a thread. Completed and
// Errored carry a message; the other variants are bare.
type AgentStatus struct {
	Kind    AgentStatusKind
	Message string // final_message for Completed, error_message for Errored
}

func PendingInit() AgentStatus { return AgentStatus{Kind: StatusPendingInit} }
func Running() AgentStatus     { return AgentStatus{Kind: StatusRunning} }
func Shutdown() AgentStatus    { return AgentStatus{Kind: StatusShutdown} }
func NotFound() AgentStatus    { return AgentStatus{Kind: StatusNotFound} }

func Completed(finalMessage string) AgentStatus {
	return AgentStatus{Kind: StatusCompleted, Message: finalMessage}
}

func Errored(errorMessage string) AgentStatus {
	return AgentStatus{Kind: StatusErrored, Message: errorMessage}
}

// IsFinal reports whether the status is a terminal one:
// Completed | Errored | Shutdown | NotFound.
func (s AgentStatus) IsFinal() bool {
	switch s.Kind {
	case StatusCompleted, StatusErrored, StatusShutdown, StatusNotFound:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether an Errored status's message indicates a
// timeout, matched case-insensitively against "timed out" or "timeout".
func (s AgentStatus) IsTimeout() bool {
	if s.Kind != StatusErrored {
		return false
	}
	lower := strings.ToLower(s.Message)
	return strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout")
}

func (s AgentStatus) String() string {
	switch s.Kind {
	case StatusCompleted, StatusErrored:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Message)
	default:
		return s.Kind.String()
	}
}
