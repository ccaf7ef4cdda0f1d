package collab

import (
	"strings"

	"github.com/agentmesh/ccmesh/internal/agentcore"
)

// ModelCatalog is the offline view of which models are available and what
// reasoning-effort levels they support, used by apply_spawn_model_overrides
// (§4.4.2) to validate a spawn/resume override without a network round
// trip. Callers populate Models from whatever internal/llm has last fetched
// (or a static fallback list); an empty catalog means "only the current
// turn's model is known to be available".
type ModelCatalog struct {
	Models []string
}

// reasoningCapableModel reports whether id is a reasoning-effort model:
// model ids starting with o1, o3, o4 or gpt-5 are treated as reasoning-capable.
func reasoningCapableModel(id string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// SupportedReasoningEfforts returns the reasoning-effort levels a model
// supports. Non-reasoning models (gpt-4o, claude-*, ...) support none.
func SupportedReasoningEfforts(model string) []string {
	if !reasoningCapableModel(model) {
		return nil
	}
	return []string{"minimal", "low", "medium", "high"}
}

// Contains reports whether model is present in the catalog.
func (c ModelCatalog) Contains(model string) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	return false
}

// ModelOverrideInputs bundles the precedence chain for a single field:
// explicit override (from the tool call) > preset's stored value > the
// current turn's value.
type ModelOverrideInputs struct {
	Explicit     string
	Preset       string
	CurrentValue string
}

// Resolve applies the §4.4.2 precedence: explicit > preset > current.
func (in ModelOverrideInputs) Resolve() string {
	if in.Explicit != "" {
		return in.Explicit
	}
	if in.Preset != "" {
		return in.Preset
	}
	return in.CurrentValue
}

// ResolvedModelConfig is the outcome of apply_spawn_model_overrides:
// the model and reasoning effort/summary a spawned or resumed agent will
// actually run with.
type ResolvedModelConfig struct {
	Model            string
	ReasoningEffort  string
	ReasoningSummary string
}

// ApplySpawnModelOverrides implements apply_spawn_model_overrides (§4.4.2):
//   - model precedence: explicit > preset > current turn's model.
//   - the resolved model must be in the catalog or equal the current model.
//   - reasoning_effort precedence is independent of model's; if set it must
//     be one of the resolved model's supported levels.
//   - if the resolved model supports no reasoning levels and none was
//     explicitly requested, the reasoning effort is cleared.
func ApplySpawnModelOverrides(
	catalog ModelCatalog,
	currentModel string,
	modelIn ModelOverrideInputs,
	effortIn ModelOverrideInputs,
	summaryIn ModelOverrideInputs,
) (ResolvedModelConfig, error) {
	model := modelIn.Resolve()
	if model != currentModel && !catalog.Contains(model) {
		return ResolvedModelConfig{}, ModelUnavailableError(model)
	}

	supported := SupportedReasoningEfforts(model)
	effort := effortIn.Resolve()
	if effort != "" {
		if !containsStr(supported, effort) {
			return ResolvedModelConfig{}, ReasoningEffortUnsupportedError(effort, supported)
		}
	}
	if len(supported) == 0 {
		effort = ""
	}

	return ResolvedModelConfig{
		Model:            model,
		ReasoningEffort:  effort,
		ReasoningSummary: summaryIn.Resolve(),
	}, nil
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// PermissionOverrideInputs bundles an approval or sandbox override request
// against the parent's own level, for apply_spawn_permission_overrides
// (§4.4.3).
type PermissionOverrideInputs struct {
	RequestedApproval string // "" = not requested
	RequestedSandbox  string // "" = not requested
	ParentApproval    agentcore.ApprovalLevel
	ParentSandbox     agentcore.SandboxLevel
	AllowEscalation   bool
}

// ResolvedPermissions is the outcome of apply_spawn_permission_overrides.
type ResolvedPermissions struct {
	Approval agentcore.ApprovalLevel
	Sandbox  agentcore.SandboxLevel
}

// ApplySpawnPermissionOverrides implements apply_spawn_permission_overrides
// (§4.4.3): a requested approval/sandbox override is parsed, then rejected
// unless it is at or below (i.e. no more permissive than) the parent's own
// level, unless AllowEscalation is set. Omitted fields inherit the parent's
// level unchanged.
func ApplySpawnPermissionOverrides(in PermissionOverrideInputs) (ResolvedPermissions, error) {
	approval := in.ParentApproval
	if in.RequestedApproval != "" {
		lvl, err := agentcore.ParseApprovalLevel(in.RequestedApproval)
		if err != nil {
			return ResolvedPermissions{}, SetterError("approval_policy", err)
		}
		if lvl > in.ParentApproval && !in.AllowEscalation {
			return ResolvedPermissions{}, EscalationRejectedError(
				"approval_policy", lvl.String(), in.ParentApproval.String())
		}
		approval = lvl
	}

	sandbox := in.ParentSandbox
	if in.RequestedSandbox != "" {
		lvl, err := agentcore.ParseSandboxLevel(in.RequestedSandbox)
		if err != nil {
			return ResolvedPermissions{}, SetterError("sandbox_mode", err)
		}
		if lvl > in.ParentSandbox && !in.AllowEscalation {
			return ResolvedPermissions{}, EscalationRejectedError(
				"sandbox_mode", lvl.String(), in.ParentSandbox.String())
		}
		sandbox = lvl
	}

	return ResolvedPermissions{Approval: approval, Sandbox: sandbox}, nil
}

// SpawnLimits bundles the limits validate_spawn_limits checks against.
type SpawnLimits struct {
	MaxDepth          int
	MaxActiveFanOut   int
	AllowNestedAgents bool
}

// ValidateSpawnLimits implements validate_spawn_limits (§4.1.1 step 2 /
// §4.4.1): depth, nested-spawn permission, and active-fan-out checks, in
// that order, against the parent agent's own record.
func ValidateSpawnLimits(limits SpawnLimits, nextDepth int, activeFanOut int) error {
	if nextDepth > limits.MaxDepth {
		return DepthLimitError(limits.MaxDepth)
	}
	if !limits.AllowNestedAgents && nextDepth > 1 {
		return NestedDisabledError()
	}
	if activeFanOut >= limits.MaxActiveFanOut {
		return FanOutLimitError(limits.MaxActiveFanOut)
	}
	return nil
}

// build_agent_spawn_config / build_agent_resume_config (§4.4.4) are
// implemented directly against models.SessionConfiguration in
// internal/workflow/subagent.go (buildAgentSpawnConfig /
// buildAgentResumeConfig / buildAgentSharedConfig), since the workflow
// already owns the full child WorkflowInput shape and a parallel
// ChildConfig abstraction here would just be copied in and out of it.
