// Package events defines the EventMsg schema streamed from the core to
// the UI (spec.md §6.1), including the Collab{Spawn,Interaction,
// Waiting,Close,Resume}{Begin,End} pairs the collaboration dispatcher
// emits for every tool call.
//
// Maps to: codex-rs/core/src/protocol.rs EventMsg.
package events

import "github.com/agentmesh/ccmesh/internal/agentcore"

type Kind string

const (
	SessionConfigured Kind = "session_configured"

	TurnStarted  Kind = "turn_started"
	TurnComplete Kind = "turn_complete"
	TurnAborted  Kind = "turn_aborted"

	AgentMessage      Kind = "agent_message"
	AgentMessageDelta Kind = "agent_message_delta"

	AgentReasoning                 Kind = "agent_reasoning"
	AgentReasoningDelta            Kind = "agent_reasoning_delta"
	AgentReasoningRawContent       Kind = "agent_reasoning_raw_content"
	AgentReasoningRawContentDelta  Kind = "agent_reasoning_raw_content_delta"
	AgentReasoningSectionBreak     Kind = "agent_reasoning_section_break"

	ExecCommandBegin       Kind = "exec_command_begin"
	ExecCommandOutputDelta Kind = "exec_command_output_delta"
	ExecCommandEnd         Kind = "exec_command_end"

	PatchApplyBegin Kind = "patch_apply_begin"
	PatchApplyEnd   Kind = "patch_apply_end"

	McpToolCallBegin  Kind = "mcp_tool_call_begin"
	McpToolCallEnd    Kind = "mcp_tool_call_end"
	McpStartupUpdate  Kind = "mcp_startup_update"
	McpStartupComplete Kind = "mcp_startup_complete"

	ExecApprovalRequest    Kind = "exec_approval_request"
	ApplyPatchApprovalReq  Kind = "apply_patch_approval_request"
	ElicitationRequest     Kind = "elicitation_request"
	RequestUserInput       Kind = "request_user_input"

	CollabAgentSpawnBegin       Kind = "collab_agent_spawn_begin"
	CollabAgentSpawnEnd         Kind = "collab_agent_spawn_end"
	CollabAgentInteractionBegin Kind = "collab_agent_interaction_begin"
	CollabAgentInteractionEnd   Kind = "collab_agent_interaction_end"
	CollabWaitingBegin          Kind = "collab_waiting_begin"
	CollabWaitingEnd            Kind = "collab_waiting_end"
	CollabCloseBegin            Kind = "collab_close_begin"
	CollabCloseEnd              Kind = "collab_close_end"
	CollabResumeBegin           Kind = "collab_resume_begin"
	CollabResumeEnd             Kind = "collab_resume_end"

	TokenCount    Kind = "token_count"
	Warning       Kind = "warning"
	Error         Kind = "error"
	StreamError   Kind = "stream_error"
	BackgroundEvt Kind = "background_event"
)

// TurnAbortReason tags why a turn ended without completing normally.
type TurnAbortReason string

const (
	AbortInterrupted TurnAbortReason = "interrupted"
	AbortReplaced    TurnAbortReason = "replaced"
	AbortReviewEnded TurnAbortReason = "review_ended"
)

// Event is the envelope `{id, msg}` every variant travels in. Replayed
// (session-restore) events use a synthetic id.
type Event struct {
	ID  string
	Msg Msg
}

// Msg is a flat struct carrying the union of all variant payloads; only
// the fields relevant to Kind are populated. This mirrors the teacher's
// existing flat-struct protocol style (state.go) rather than introducing
// a Go interface-per-variant hierarchy, since the wire shape (one JSON
// object per event with a kind discriminator) is what must round-trip.
type Msg struct {
	Kind Kind `json:"kind"`

	// session_configured
	SessionID         string   `json:"session_id,omitempty"`
	Model             string   `json:"model,omitempty"`
	RolloutPath       string   `json:"rollout_path,omitempty"`
	HistoryLogID      int64    `json:"history_log_id,omitempty"`
	HistoryEntryCount int      `json:"history_entry_count,omitempty"`
	InitialMessages   []string `json:"initial_messages,omitempty"`

	// turn_complete / turn_aborted
	LastAgentMessage string          `json:"last_agent_message,omitempty"`
	AbortReason      TurnAbortReason `json:"reason,omitempty"`

	// agent_message(_delta), reasoning, stream_error, warning, error, background_event
	Message           string `json:"message,omitempty"`
	Delta             string `json:"delta,omitempty"`
	Text              string `json:"text,omitempty"`
	AdditionalDetails string `json:"additional_details,omitempty"`

	// exec_*
	CallID           string   `json:"call_id,omitempty"`
	Command          []string `json:"command,omitempty"`
	ParsedCmd        string   `json:"parsed_cmd,omitempty"`
	Source           string   `json:"source,omitempty"`
	InteractionInput string   `json:"interaction_input,omitempty"`
	Chunk            string   `json:"chunk,omitempty"`
	ExitCode         int      `json:"exit_code,omitempty"`
	DurationMs       int64    `json:"duration_ms,omitempty"`
	FormattedOutput  string   `json:"formatted_output,omitempty"`
	AggregatedOutput string   `json:"aggregated_output,omitempty"`

	// patch_apply_*
	Changes []string `json:"changes,omitempty"`
	Success bool     `json:"success,omitempty"`
	Stderr  string   `json:"stderr,omitempty"`

	// mcp_*
	Invocation string `json:"invocation,omitempty"`
	Result     string `json:"result,omitempty"`
	Server     string `json:"server,omitempty"`
	Status     string `json:"status,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	Cancelled  []string `json:"cancelled,omitempty"`

	// approvals / elicitation / request_user_input
	Reason                      string     `json:"reason,omitempty"`
	ProposedExecpolicyAmendment string     `json:"proposed_execpolicy_amendment,omitempty"`
	TurnID                      string     `json:"turn_id,omitempty"`
	GrantRoot                   bool       `json:"grant_root,omitempty"`
	ServerName                  string     `json:"server_name,omitempty"`
	Questions                   []Question `json:"questions,omitempty"`

	// collab events
	SenderThreadID   string              `json:"sender_thread_id,omitempty"`
	ReceiverThreadID string              `json:"receiver_thread_id,omitempty"`
	ReceiverThreadIDs []string           `json:"receiver_thread_ids,omitempty"`
	NewThreadID      string              `json:"new_thread_id,omitempty"`
	Prompt           string              `json:"prompt,omitempty"`
	AgentStatus      *agentcore.AgentStatus `json:"agent_status,omitempty"`
	AgentStatuses    map[string]agentcore.AgentStatus `json:"agent_statuses,omitempty"`

	// token_count
	RateLimits string `json:"rate_limits,omitempty"`
}

// Question is one entry of a RequestUserInput event's `questions` list.
type Question struct {
	ID       string           `json:"id"`
	Header   string           `json:"header"`
	Question string           `json:"question"`
	IsOther  bool             `json:"is_other"`
	IsSecret bool             `json:"is_secret"`
	Options  []QuestionOption `json:"options,omitempty"`
}

type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}
