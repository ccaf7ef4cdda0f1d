// Package models contains shared types for the codex-temporal-go project.
//
// Corresponds to: codex-rs/core/src/protocol/models.rs
package models

// ConversationItemType represents the type of a conversation item
type ConversationItemType string

const (
	ItemTypeUserMessage      ConversationItemType = "user_message"
	ItemTypeAssistantMessage ConversationItemType = "assistant_message"
	ItemTypeFunctionCall     ConversationItemType = "function_call"
	ItemTypeFunctionCallOutput ConversationItemType = "function_call_output"
	ItemTypeTurnStarted      ConversationItemType = "turn_started"
	ItemTypeTurnComplete     ConversationItemType = "turn_complete"
	ItemTypeModelSwitch      ConversationItemType = "model_switch"
	ItemTypeToolCall         ConversationItemType = "tool_call"
	ItemTypeToolResult       ConversationItemType = "tool_result"
)

// FunctionCallOutputPayload is the result of a function_call_output item:
// the tool output content plus whether the call succeeded.
//
// Maps to: codex-rs/core/src/protocol/models.rs FunctionCallOutputPayload
type FunctionCallOutputPayload struct {
	Content string `json:"content"`
	Success *bool  `json:"success,omitempty"`
}

// ConversationItem represents a single item in the conversation history.
// Only the fields relevant to Type are populated, matching the flat
// per-turn-item shape the LLM clients and the renderer operate on.
//
// Maps to: codex-rs/core/src/protocol/models.rs ConversationItem
type ConversationItem struct {
	Seq  int                  `json:"seq"`
	Type ConversationItemType `json:"type"`

	// user_message / assistant_message
	Content string `json:"content,omitempty"`

	// turn_started / turn_complete
	TurnID string `json:"turn_id,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output *FunctionCallOutputPayload `json:"output,omitempty"`

	// model_switch
	Model string `json:"model,omitempty"`

	// Legacy aggregate tool-call representation, kept for ToolCall/ToolResult
	// consumers that operate on a batch rather than one item per call.
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolOutput string     `json:"tool_output,omitempty"`
	ToolError  string     `json:"tool_error,omitempty"`
}

// ToolCall represents a request to call a tool
//
// Maps to: codex-rs/core/src/protocol/models.rs ToolCall
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult represents the result of a tool execution
//
// Maps to: codex-rs/core/src/tools/types.rs ToolResult
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FinishReason indicates why the LLM stopped generating
type FinishReason string

const (
	FinishReasonStop         FinishReason = "stop"          // Natural completion
	FinishReasonToolCalls    FinishReason = "tool_calls"    // LLM wants to call tools
	FinishReasonLength       FinishReason = "length"        // Hit token limit
	FinishReasonContentFilter FinishReason = "content_filter" // Content filtered
)

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
}
