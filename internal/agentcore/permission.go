package agentcore

import "fmt"

// ApprovalLevel orders approval policies for the escalation lattice.
//
// Maps to: codex-rs/core/src/tools/handlers/collab.rs approval_policy_level.
type ApprovalLevel int

const (
	ApprovalNever ApprovalLevel = iota
	ApprovalUnlessTrusted
	ApprovalOnRequest
	ApprovalOnFailure
)

func (l ApprovalLevel) String() string {
	switch l {
	case ApprovalNever:
		return "never"
	case ApprovalUnlessTrusted:
		return "unless_trusted"
	case ApprovalOnRequest:
		return "on_request"
	case ApprovalOnFailure:
		return "on_failure"
	default:
		return "unknown"
	}
}

// ParseApprovalLevel parses a policy name into its lattice level.
func ParseApprovalLevel(s string) (ApprovalLevel, error) {
	switch s {
	case "never":
		return ApprovalNever, nil
	case "unless_trusted":
		return ApprovalUnlessTrusted, nil
	case "on_request":
		return ApprovalOnRequest, nil
	case "on_failure":
		return ApprovalOnFailure, nil
	default:
		return 0, fmt.Errorf("approval_policy is invalid: unknown value %q", s)
	}
}

// SandboxLevel orders sandbox modes for the escalation lattice.
// DangerFullAccess and ExternalSandbox share the top level.
//
// Maps to: codex-rs/core/src/tools/handlers/collab.rs sandbox_policy_level.
type SandboxLevel int

const (
	SandboxReadOnly SandboxLevel = iota
	SandboxWorkspaceWrite
	SandboxTop // danger_full_access | external_sandbox
)

func (l SandboxLevel) String() string {
	switch l {
	case SandboxReadOnly:
		return "read_only"
	case SandboxWorkspaceWrite:
		return "workspace_write"
	case SandboxTop:
		return "danger_full_access"
	default:
		return "unknown"
	}
}

// ParseSandboxLevel parses a sandbox mode name into its lattice level.
func ParseSandboxLevel(s string) (SandboxLevel, error) {
	switch s {
	case "read_only":
		return SandboxReadOnly, nil
	case "workspace_write":
		return SandboxWorkspaceWrite, nil
	case "danger_full_access", "external_sandbox":
		return SandboxTop, nil
	default:
		return 0, fmt.Errorf("sandbox_policy is invalid: unknown value %q", s)
	}
}
