// Collaboration tool specifications for subagent orchestration.
//
// Maps to: codex-rs/core/src/tools/spec.rs (collaboration tool definitions)
// See also: codex-rs/core/src/tools/handlers/collab.rs (the handler these
// specs are dispatched to).
package tools

func init() {
	RegisterSpec(SpecEntry{Name: "spawn_agent", Constructor: NewSpawnAgentToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "send_input", Constructor: NewSendInputToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "wait", Constructor: NewWaitToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "wait_agents", Constructor: NewWaitAgentsToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "list_agents", Constructor: NewListAgentsToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "rename_agent", Constructor: NewRenameAgentToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "close_agent", Constructor: NewCloseAgentToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "close_agents", Constructor: NewCloseAgentsToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "resume_agent", Constructor: NewResumeAgentToolSpec, Group: "collab"})
}

func itemsArrayParam(name, description string) ToolParameter {
	return ToolParameter{
		Name:        name,
		Type:        "array",
		Description: description,
		Required:    true,
		Items: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind":      map[string]interface{}{"type": "string", "enum": []string{"text", "image", "file"}},
				"text":      map[string]interface{}{"type": "string"},
				"path":      map[string]interface{}{"type": "string"},
				"mime_type": map[string]interface{}{"type": "string"},
			},
			"required": []string{"kind"},
		},
	}
}

// NewSpawnAgentToolSpec creates the specification for the spawn_agent tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_spawn_agent_tool
func NewSpawnAgentToolSpec() ToolSpec {
	return ToolSpec{
		Name: "spawn_agent",
		Description: `Spawn a new child agent to work on a task. The child runs independently ` +
			`with its own conversation history. Use this when a subtask can be worked on in parallel ` +
			`or when you want to delegate focused work (e.g., code exploration, research, running tests).`,
		Parameters: []ToolParameter{
			itemsArrayParam("items", "The task content to give to the child agent, as a list of text/image/file items."),
			{
				Name:        "preset",
				Type:        "string",
				Description: "Capability preset for the child. Options: 'edit', 'read', 'grep', 'run', 'websearch'.",
				Required:    false,
			},
			{
				Name:        "agent_type",
				Type:        "string",
				Description: "Legacy alias for preset/role. Options: 'default', 'orchestrator', 'worker', 'explorer', 'planner'.",
				Required:    false,
			},
			{
				Name:        "name",
				Type:        "string",
				Description: "A human-readable name for the child agent, used by list_agents/rename_agent. Defaults to its agent ID.",
				Required:    false,
			},
			{
				Name:        "acceptance_criteria",
				Type:        "array",
				Description: "Criteria the child's work must satisfy before the task is considered done.",
				Required:    false,
				Items:       map[string]interface{}{"type": "string"},
			},
			{
				Name:        "test_commands",
				Type:        "array",
				Description: "Shell commands the child should run to validate its own work.",
				Required:    false,
				Items:       map[string]interface{}{"type": "string"},
			},
			{
				Name:        "allow_nested_agents",
				Type:        "boolean",
				Description: "Whether the child is itself allowed to spawn further agents. Default: false.",
				Required:    false,
			},
			{
				Name:        "model",
				Type:        "string",
				Description: "Override the model the child agent uses. Must be a currently available model.",
				Required:    false,
			},
			{
				Name:        "reasoning_effort",
				Type:        "string",
				Description: "Override the child's reasoning effort. Options: 'minimal', 'low', 'medium', 'high'.",
				Required:    false,
			},
			{
				Name:        "reasoning_summary",
				Type:        "string",
				Description: "Override the child's reasoning summary verbosity.",
				Required:    false,
			},
			{
				Name:        "approval_policy",
				Type:        "string",
				Description: "Override the child's approval policy. Cannot be more permissive than this agent's own, unless escalation is allowed.",
				Required:    false,
			},
			{
				Name:        "sandbox_mode",
				Type:        "string",
				Description: "Override the child's sandbox mode. Cannot be more permissive than this agent's own, unless escalation is allowed.",
				Required:    false,
			},
		},
	}
}

// NewSendInputToolSpec creates the specification for the send_input tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_send_input_tool
func NewSendInputToolSpec() ToolSpec {
	return ToolSpec{
		Name: "send_input",
		Description: `Send a message to a running child agent. The message is delivered ` +
			`as a new user input to the child's conversation.`,
		Parameters: []ToolParameter{
			{
				Name:        "agent_id",
				Type:        "string",
				Description: "The agent ID returned by spawn_agent.",
				Required:    true,
			},
			itemsArrayParam("items", "The content to send to the child agent, as a list of text/image/file items."),
			{
				Name:        "interrupt",
				Type:        "boolean",
				Description: "If true, interrupt the child's current turn before delivering the message.",
				Required:    false,
			},
		},
	}
}

// NewWaitToolSpec creates the specification for the wait tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_wait_tool
func NewWaitToolSpec() ToolSpec {
	return ToolSpec{
		Name: "wait",
		Description: `Wait for one or more specific child agents to each reach a terminal state ` +
			`(completed, errored, shutdown). Returns the status of every requested agent. ` +
			`Times out if the agents don't finish within the timeout.`,
		Parameters: []ToolParameter{
			{
				Name:        "agent_ids",
				Type:        "array",
				Description: "Array of agent IDs to wait for.",
				Required:    true,
				Items:       map[string]interface{}{"type": "string"},
			},
			{
				Name:        "timeout_ms",
				Type:        "number",
				Description: "Maximum time to wait in milliseconds. Range: 100-300000. Default: the session's configured wait timeout.",
				Required:    false,
			},
		},
	}
}

// NewWaitAgentsToolSpec creates the specification for the wait_agents tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_wait_agents_tool
func NewWaitAgentsToolSpec() ToolSpec {
	return ToolSpec{
		Name: "wait_agents",
		Description: `Wait for a group of child agents (or all currently active children, if agent_ids ` +
			`is omitted) to reach a terminal state, either as soon as any one of them finishes ('any') ` +
			`or only once all of them finish ('all'). Use this instead of repeated wait calls when ` +
			`polling a fan-out of children.`,
		Parameters: []ToolParameter{
			{
				Name:        "agent_ids",
				Type:        "array",
				Description: "Array of agent IDs to wait for. Omit to wait on every currently active child.",
				Required:    false,
				Items:       map[string]interface{}{"type": "string"},
			},
			{
				Name:        "mode",
				Type:        "string",
				Description: "'any' returns as soon as one target finishes; 'all' waits for every target. Default: 'all'.",
				Required:    false,
			},
			{
				Name:        "timeout_ms",
				Type:        "number",
				Description: "Maximum time to wait in milliseconds. Range: 100-300000. Default: the session's configured wait timeout.",
				Required:    false,
			},
		},
	}
}

// NewListAgentsToolSpec creates the specification for the list_agents tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_list_agents_tool
func NewListAgentsToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "list_agents",
		Description: `List every child agent spawned by this agent, along with its status, name, and preset.`,
		Parameters: []ToolParameter{
			{
				Name:        "include_closed",
				Type:        "boolean",
				Description: "If true, include agents that have already been closed. Default: false.",
				Required:    false,
			},
		},
	}
}

// NewRenameAgentToolSpec creates the specification for the rename_agent tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_rename_agent_tool
func NewRenameAgentToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "rename_agent",
		Description: `Give a child agent a new human-readable name, as shown by list_agents.`,
		Parameters: []ToolParameter{
			{
				Name:        "agent_id",
				Type:        "string",
				Description: "The agent ID to rename.",
				Required:    true,
			},
			{
				Name:        "name",
				Type:        "string",
				Description: "The new name.",
				Required:    true,
			},
		},
	}
}

// NewCloseAgentToolSpec creates the specification for the close_agent tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_close_agent_tool
func NewCloseAgentToolSpec() ToolSpec {
	return ToolSpec{
		Name: "close_agent",
		Description: `Shut down a running child agent. Sends a shutdown signal and waits briefly ` +
			`for the child to complete. Returns the child's final status.`,
		Parameters: []ToolParameter{
			{
				Name:        "agent_id",
				Type:        "string",
				Description: "The agent ID to shut down.",
				Required:    true,
			},
		},
	}
}

// NewCloseAgentsToolSpec creates the specification for the close_agents tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_close_agents_tool
func NewCloseAgentsToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "close_agents",
		Description: `Shut down several child agents at once.`,
		Parameters: []ToolParameter{
			{
				Name:        "agent_ids",
				Type:        "array",
				Description: "Array of agent IDs to shut down.",
				Required:    true,
				Items:       map[string]interface{}{"type": "string"},
			},
			{
				Name:        "ignore_missing",
				Type:        "boolean",
				Description: "If true, agent IDs that are unknown or already closed are skipped instead of failing the whole call.",
				Required:    false,
			},
		},
	}
}

// NewResumeAgentToolSpec creates the specification for the resume_agent tool.
// This tool is intercepted by the workflow (not dispatched as an activity).
//
// Maps to: codex-rs/core/src/tools/spec.rs create_resume_agent_tool, whose
// ResumeAgentArgs (see handlers/collab.rs resume_agent::handle) takes only
// agent_id — the agent's prior conversation is restored from its rollout,
// not re-seeded from a caller-supplied message.
func NewResumeAgentToolSpec() ToolSpec {
	return ToolSpec{
		Name: "resume_agent",
		Description: `Resume a previously closed agent from its persisted conversation history, ` +
			`continuing its role and nesting depth. Use send_input afterward to give it new work.`,
		Parameters: []ToolParameter{
			{
				Name:        "agent_id",
				Type:        "string",
				Description: "The agent ID to resume.",
				Required:    true,
			},
		},
	}
}
