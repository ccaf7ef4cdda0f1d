package models

import "github.com/agentmesh/ccmesh/internal/mcp"

// ApprovalMode names an approval policy level.
//
// Maps to: codex-rs/core/src/protocol/config_types.rs AskForApproval.
type ApprovalMode string

const (
	ApprovalNever         ApprovalMode = "never"
	ApprovalUnlessTrusted ApprovalMode = "unless_trusted"
	ApprovalOnRequest     ApprovalMode = "on_request"
	ApprovalOnFailure     ApprovalMode = "on_failure"
)

// SandboxMode names a sandbox policy level.
//
// Maps to: codex-rs/core/src/protocol/config_types.rs SandboxPolicy.
type SandboxMode string

const (
	SandboxReadOnly        SandboxMode = "read_only"
	SandboxWorkspaceWrite  SandboxMode = "workspace_write"
	SandboxDangerFullAccess SandboxMode = "danger_full_access"
	SandboxExternal        SandboxMode = "external_sandbox"
)

// ModelConfig configures the LLM model parameters.
//
// Maps to: codex-rs/core/src/codex.rs SessionConfiguration (model config part)
type ModelConfig struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	ContextWindow    int     `json:"context_window"`
	ReasoningEffort  string  `json:"reasoning_effort,omitempty"`
	ReasoningSummary string  `json:"reasoning_summary,omitempty"`
}

// DefaultModelConfig returns a sensible default configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:      "openai",
		Model:         "gpt-4o-mini",
		Temperature:   0.7,
		MaxTokens:     4096,
		ContextWindow: 128000,
	}
}

// ToolsConfig configures which tools are enabled.
//
// Maps to: codex-rs/core/src/codex.rs SessionConfiguration (tools config part)
type ToolsConfig struct {
	EnableShell      bool `json:"enable_shell"`
	EnableReadFile   bool `json:"enable_read_file"`
	EnableWriteFile  bool `json:"enable_write_file,omitempty"`
	EnableListDir    bool `json:"enable_list_dir,omitempty"`
	EnableGrepFiles  bool `json:"enable_grep_files,omitempty"`
	EnableApplyPatch bool `json:"enable_apply_patch,omitempty"`
	EnableUpdatePlan bool `json:"enable_update_plan,omitempty"`
	EnableCollab     bool `json:"enable_collab,omitempty"`

	// EnabledTools, when non-empty, is the full set of tool names exposed to
	// the model this turn (collab-spawned children mutate their own copy via
	// RemoveTools rather than the parent's).
	EnabledTools []string `json:"enabled_tools,omitempty"`
}

// RemoveTools removes the named tools from EnabledTools, and clears the
// matching Enable* flag for the handful of tools that have one. A no-op
// for names not present.
func (t *ToolsConfig) RemoveTools(names ...string) {
	remove := make(map[string]bool, len(names))
	for _, n := range names {
		remove[n] = true
	}
	if len(t.EnabledTools) > 0 {
		kept := t.EnabledTools[:0]
		for _, n := range t.EnabledTools {
			if !remove[n] {
				kept = append(kept, n)
			}
		}
		t.EnabledTools = kept
	}
	if remove["write_file"] {
		t.EnableWriteFile = false
	}
	if remove["apply_patch"] {
		t.EnableApplyPatch = false
	}
	if remove["shell"] {
		t.EnableShell = false
	}
	if remove["grep_files"] {
		t.EnableGrepFiles = false
	}
	if remove["list_dir"] {
		t.EnableListDir = false
	}
	if remove["update_plan"] {
		t.EnableUpdatePlan = false
	}
	if remove["collab"] {
		t.EnableCollab = false
	}
}

// DefaultToolsConfig returns default tools configuration.
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		EnableShell:      true,
		EnableReadFile:   true,
		EnableWriteFile:  true,
		EnableListDir:    true,
		EnableGrepFiles:  true,
		EnableApplyPatch: true,
		EnableUpdatePlan: true,
		EnableCollab:     true,
		EnabledTools: []string{
			"shell", "read_file", "list_dir", "grep_files", "apply_patch",
			"update_plan", "collab", "request_user_input",
		},
	}
}

// SubagentPreset is one entry of the subagent preset table (spec.md §6.4):
// edit|read|grep|run|websearch, each with optional model/reasoning-effort
// overrides and a tool allow-list applied on top of the spawn config.
type SubagentPreset struct {
	Model           string   `json:"model,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	EnabledTools    []string `json:"enabled_tools,omitempty"`
}

// DefaultSubagentPresets mirrors the teacher's role-to-config mapping
// (subagent.go applyRoleOverrides), expressed as the spec's preset table.
func DefaultSubagentPresets() map[string]SubagentPreset {
	return map[string]SubagentPreset{
		"edit": {
			EnabledTools: []string{"shell", "read_file", "list_dir", "grep_files", "apply_patch"},
		},
		"read": {
			Model:           ExplorerPresetModel,
			ReasoningEffort: "medium",
			EnabledTools:    []string{"shell", "read_file", "list_dir", "grep_files"},
		},
		"grep": {
			EnabledTools: []string{"shell", "grep_files", "read_file", "list_dir"},
		},
		"run": {
			EnabledTools: []string{"shell", "read_file", "list_dir"},
		},
		"websearch": {
			EnabledTools: []string{"web_search", "read_file"},
		},
	}
}

// ExplorerPresetModel is the cheaper model used for the "read" (explorer)
// preset, carried over from the teacher's ExplorerModel constant.
const ExplorerPresetModel = "gpt-5.1-codex-mini"

// CollabLimits configures the agent-collaboration controller (spec.md §6.4).
type CollabLimits struct {
	MaxSpawnDepth                     int                       `json:"max_spawn_depth"`
	MaxActiveSubagentsPerThread       int                       `json:"max_active_subagents_per_thread"`
	DefaultWaitTimeoutMs              int64                     `json:"default_wait_timeout_ms"`
	AllowSubagentPermissionEscalation bool                      `json:"allow_subagent_permission_escalation"`
	AutoCloseOnParentShutdown         bool                      `json:"auto_close_on_parent_shutdown"`
	Presets                           map[string]SubagentPreset `json:"presets,omitempty"`
}

// DefaultCollabLimits returns sensible collaboration-controller defaults.
func DefaultCollabLimits() CollabLimits {
	return CollabLimits{
		MaxSpawnDepth:               1,
		MaxActiveSubagentsPerThread: 8,
		DefaultWaitTimeoutMs:        30_000,
		AutoCloseOnParentShutdown:   true,
		Presets:                     DefaultSubagentPresets(),
	}
}

// SessionConfiguration configures a complete agentic session.
//
// Maps to: codex-rs/core/src/codex.rs SessionConfiguration
type SessionConfiguration struct {
	// Instructions hierarchy (3-tier system).
	BaseInstructions      string `json:"base_instructions,omitempty"`
	DeveloperInstructions string `json:"developer_instructions,omitempty"`
	UserInstructions      string `json:"user_instructions,omitempty"`

	// Model and tool configuration.
	Model ModelConfig `json:"model"`
	Tools ToolsConfig `json:"tools"`

	// Execution context.
	Cwd       string `json:"cwd,omitempty"`
	CodexHome string `json:"codex_home,omitempty"`

	// Policy.
	ApprovalMode         ApprovalMode `json:"approval_mode,omitempty"`
	SandboxMode          string       `json:"sandbox_mode,omitempty"`
	SandboxWritableRoots []string     `json:"sandbox_writable_roots,omitempty"`
	SandboxNetworkAccess bool         `json:"sandbox_network_access,omitempty"`
	ExecPolicyRules      string       `json:"exec_policy_rules,omitempty"`

	// Temporal wiring.
	SessionTaskQueue string `json:"session_task_queue,omitempty"`

	// MCP servers keyed by name.
	McpServers map[string]mcp.McpServerConfig `json:"mcp_servers,omitempty"`

	// Collaboration controller limits and subagent presets.
	Collab CollabLimits `json:"collab"`

	// Misc.
	DisableSuggestions bool   `json:"disable_suggestions,omitempty"`
	SessionSource      string `json:"session_source,omitempty"` // "cli", "api", "exec"
}

// DefaultSessionConfiguration returns sensible defaults.
func DefaultSessionConfiguration() SessionConfiguration {
	return SessionConfiguration{
		Model:  DefaultModelConfig(),
		Tools:  DefaultToolsConfig(),
		Collab: DefaultCollabLimits(),
	}
}
