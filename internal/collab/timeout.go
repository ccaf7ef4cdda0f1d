// Package collab implements the framework-agnostic pieces of the
// collaboration dispatcher: timeout clamping, argument parsing, and the
// spawn-policy checks (§4.1, §4.2.3, §4.4 of the collaboration
// specification). None of these depend on workflow.Context, so they are
// exercised directly by unit tests; the Temporal-specific orchestration
// (starting/signaling/awaiting child workflows) lives in
// internal/workflow/subagent.go and calls into this package.
//
// Maps to: codex-rs/core/src/tools/handlers/collab.rs (MIN/DEFAULT/MAX_WAIT_TIMEOUT_MS,
// wait_agents::resolve_wait_timeout_ms).
package collab

import "fmt"

// Wait-timeout clamps, per spec.md §4.2.3. Intentionally distinct from
// whatever a deployment's default_wait_timeout_ms is configured to.
const (
	MinWaitTimeoutMs = 100
	MaxWaitTimeoutMs = 300_000
)

// ResolveWaitTimeoutMs implements resolve_wait_timeout_ms:
//   - requested < 0 is rejected.
//   - requested == 0 means non-blocking, returned as-is.
//   - otherwise the value is clamped to [MinWaitTimeoutMs, MaxWaitTimeoutMs].
//
// requested == nil means "omitted"; defaultMs is used in that case and is
// itself clamped (it is not required to already be in range).
func ResolveWaitTimeoutMs(requested *int64, defaultMs int64) (int64, error) {
	v := defaultMs
	if requested != nil {
		v = *requested
	}
	if v < 0 {
		return 0, fmt.Errorf("timeout_ms must not be negative")
	}
	if v == 0 {
		return 0, nil
	}
	if v < MinWaitTimeoutMs {
		v = MinWaitTimeoutMs
	}
	if v > MaxWaitTimeoutMs {
		v = MaxWaitTimeoutMs
	}
	return v, nil
}
