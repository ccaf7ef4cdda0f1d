// Package config loads the on-disk configuration surface of
// models.SessionConfiguration (spec.md §6.4: model defaults, enabled
// tools, and the collaboration-controller limits/subagent preset table)
// from a TOML file, the way internal/models/profile.go layers provider/
// model profiles: every field is optional, and an absent field inherits
// from models.DefaultSessionConfiguration rather than zeroing it out.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/agentmesh/ccmesh/internal/models"
)

// FileConfig is the on-disk shape. Every field is a pointer or zero-value
// "unset" so Resolve can tell "not present in the file" apart from
// "explicitly set to the zero value".
type FileConfig struct {
	Model  *ModelSection  `toml:"model"`
	Tools  *ToolsSection  `toml:"tools"`
	Collab *CollabSection `toml:"collab"`

	ApprovalMode string `toml:"approval_mode"`
	SandboxMode  string `toml:"sandbox_mode"`
	Cwd          string `toml:"cwd"`
	CodexHome    string `toml:"codex_home"`
}

// ModelSection overrides models.ModelConfig.
type ModelSection struct {
	Provider         string   `toml:"provider"`
	Model            string   `toml:"model"`
	Temperature      *float64 `toml:"temperature"`
	MaxTokens        int      `toml:"max_tokens"`
	ContextWindow    int      `toml:"context_window"`
	ReasoningEffort  string   `toml:"reasoning_effort"`
	ReasoningSummary string   `toml:"reasoning_summary"`
}

// ToolsSection overrides models.ToolsConfig.
type ToolsSection struct {
	EnableShell      *bool    `toml:"enable_shell"`
	EnableReadFile   *bool    `toml:"enable_read_file"`
	EnableWriteFile  *bool    `toml:"enable_write_file"`
	EnableListDir    *bool    `toml:"enable_list_dir"`
	EnableGrepFiles  *bool    `toml:"enable_grep_files"`
	EnableApplyPatch *bool    `toml:"enable_apply_patch"`
	EnableUpdatePlan *bool    `toml:"enable_update_plan"`
	EnableCollab     *bool    `toml:"enable_collab"`
	EnabledTools     []string `toml:"enabled_tools"`
}

// CollabSection overrides models.CollabLimits — the spec's
// max_spawn_depth/max_active_subagents_per_thread/etc. configuration
// surface (§6.4).
type CollabSection struct {
	MaxSpawnDepth                     *int                              `toml:"max_spawn_depth"`
	MaxActiveSubagentsPerThread       *int                              `toml:"max_active_subagents_per_thread"`
	DefaultWaitTimeoutMs              *int64                            `toml:"default_wait_timeout_ms"`
	AllowSubagentPermissionEscalation *bool                             `toml:"allow_subagent_permission_escalation"`
	AutoCloseOnParentShutdown         *bool                             `toml:"auto_close_on_parent_shutdown"`
	Presets                           map[string]models.SubagentPreset `toml:"presets"`
}

// Load parses the TOML file at path. An empty path, or a path that does not
// exist, is not an error — it yields a zero FileConfig, which Resolve turns
// into pure defaults.
func Load(path string) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fc, nil
	}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// Resolve merges fc on top of models.DefaultSessionConfiguration(), the same
// "absent field inherits" layering models.ModelProfile uses for provider/
// model resolution (internal/models/profile.go mergeProfiles).
func Resolve(fc FileConfig) models.SessionConfiguration {
	cfg := models.DefaultSessionConfiguration()

	if m := fc.Model; m != nil {
		if m.Provider != "" {
			cfg.Model.Provider = m.Provider
		}
		if m.Model != "" {
			cfg.Model.Model = m.Model
		}
		if m.Temperature != nil {
			cfg.Model.Temperature = *m.Temperature
		}
		if m.MaxTokens != 0 {
			cfg.Model.MaxTokens = m.MaxTokens
		}
		if m.ContextWindow != 0 {
			cfg.Model.ContextWindow = m.ContextWindow
		}
		if m.ReasoningEffort != "" {
			cfg.Model.ReasoningEffort = m.ReasoningEffort
		}
		if m.ReasoningSummary != "" {
			cfg.Model.ReasoningSummary = m.ReasoningSummary
		}
	}

	if t := fc.Tools; t != nil {
		if t.EnableShell != nil {
			cfg.Tools.EnableShell = *t.EnableShell
		}
		if t.EnableReadFile != nil {
			cfg.Tools.EnableReadFile = *t.EnableReadFile
		}
		if t.EnableWriteFile != nil {
			cfg.Tools.EnableWriteFile = *t.EnableWriteFile
		}
		if t.EnableListDir != nil {
			cfg.Tools.EnableListDir = *t.EnableListDir
		}
		if t.EnableGrepFiles != nil {
			cfg.Tools.EnableGrepFiles = *t.EnableGrepFiles
		}
		if t.EnableApplyPatch != nil {
			cfg.Tools.EnableApplyPatch = *t.EnableApplyPatch
		}
		if t.EnableUpdatePlan != nil {
			cfg.Tools.EnableUpdatePlan = *t.EnableUpdatePlan
		}
		if t.EnableCollab != nil {
			cfg.Tools.EnableCollab = *t.EnableCollab
		}
		if len(t.EnabledTools) > 0 {
			cfg.Tools.EnabledTools = t.EnabledTools
		}
	}

	if c := fc.Collab; c != nil {
		if c.MaxSpawnDepth != nil {
			cfg.Collab.MaxSpawnDepth = *c.MaxSpawnDepth
		}
		if c.MaxActiveSubagentsPerThread != nil {
			cfg.Collab.MaxActiveSubagentsPerThread = *c.MaxActiveSubagentsPerThread
		}
		if c.DefaultWaitTimeoutMs != nil {
			cfg.Collab.DefaultWaitTimeoutMs = *c.DefaultWaitTimeoutMs
		}
		if c.AllowSubagentPermissionEscalation != nil {
			cfg.Collab.AllowSubagentPermissionEscalation = *c.AllowSubagentPermissionEscalation
		}
		if c.AutoCloseOnParentShutdown != nil {
			cfg.Collab.AutoCloseOnParentShutdown = *c.AutoCloseOnParentShutdown
		}
		if len(c.Presets) > 0 {
			cfg.Collab.Presets = c.Presets
		}
	}

	if fc.ApprovalMode != "" {
		cfg.ApprovalMode = models.ApprovalMode(fc.ApprovalMode)
	}
	if fc.SandboxMode != "" {
		cfg.SandboxMode = fc.SandboxMode
	}
	if fc.Cwd != "" {
		cfg.Cwd = fc.Cwd
	}
	if fc.CodexHome != "" {
		cfg.CodexHome = fc.CodexHome
	}

	return cfg
}

// LoadSessionConfiguration loads and resolves path in one step. An empty or
// missing path yields models.DefaultSessionConfiguration() unchanged.
func LoadSessionConfiguration(path string) (models.SessionConfiguration, error) {
	fc, err := Load(path)
	if err != nil {
		return models.SessionConfiguration{}, err
	}
	return Resolve(fc), nil
}
