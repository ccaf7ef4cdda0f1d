package collab

import (
	"encoding/json"
	"strings"

	"github.com/agentmesh/ccmesh/internal/collaberr"
	"github.com/agentmesh/ccmesh/internal/ops"
)

// ParseArguments unmarshals a collab tool call's JSON `arguments` string
// into dst, mapping a decode failure to the standard RespondToModel message
// (§4.1.8 / §7).
func ParseArguments(arguments string, dst interface{}) *collaberr.Error {
	if err := json.Unmarshal([]byte(arguments), dst); err != nil {
		return collaberr.ArgParseFailure(err)
	}
	return nil
}

// RequireField rejects an empty string field with the standard
// "Provide required field: {name}" message.
func RequireField(value string, name string) *collaberr.Error {
	if strings.TrimSpace(value) == "" {
		return collaberr.MissingField(name)
	}
	return nil
}

// RequireItems rejects a missing or empty `items` argument.
func RequireItems(items []ops.UserInput) *collaberr.Error {
	if items == nil {
		return collaberr.MissingField("items")
	}
	if len(items) == 0 {
		return collaberr.EmptyItems()
	}
	return nil
}

// RejectLegacyLabel implements the explicit rejection of the legacy
// `label` spawn_agent field (§4.1.1).
func RejectLegacyLabel(label *string) *collaberr.Error {
	if label != nil {
		return collaberr.NewRespondToModel(
			"label is no longer supported; use name instead / pass the agent's name via the `name` field")
	}
	return nil
}

// ParsePreset validates a preset name: empty/whitespace maps to "" (none);
// an unknown name is rejected listing the allowed set (§4.1.1 step 1).
func ParsePreset(raw string, allowed []string) (string, *collaberr.Error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	for _, a := range allowed {
		if trimmed == a {
			return trimmed, nil
		}
	}
	return "", collaberr.NewRespondToModel(
		"unknown preset %q; allowed presets are: %s", trimmed, strings.Join(allowed, ", "))
}

// FlattenTextItems joins the text content of `items` with newlines, the
// way spawn_agent/send_input build a single prompt string from a
// UserInput list for the child's initial message.
func FlattenTextItems(items []ops.UserInput) string {
	var parts []string
	for _, it := range items {
		if it.Kind == ops.UserInputText && it.Text != "" {
			parts = append(parts, it.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// DedupPreserveOrder removes duplicate ids, keeping first occurrence —
// used by close_agents (§4.1.7/§8).
func DedupPreserveOrder(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// DepthLimitError formats the depth-limit rejection message (§4.1.1 step 2,
// and the literal scenario in §8.3): "maximum spawn depth ({limit}) reached".
func DepthLimitError(limit int) *collaberr.Error {
	return collaberr.NewRespondToModel("maximum spawn depth (%d) reached", limit)
}

// NestedDisabledError formats the §8 scenario for a parent with
// allow_nested_agents=false.
func NestedDisabledError() *collaberr.Error {
	return collaberr.NewRespondToModel("nested agent spawning is disabled for this agent")
}

// FanOutLimitError formats the active-fan-out rejection message.
func FanOutLimitError(limit int) *collaberr.Error {
	return collaberr.NewRespondToModel("maximum active sub-agents (%d) reached for this agent", limit)
}

// ModelUnavailableError formats the §4.4.2 model-catalog rejection.
func ModelUnavailableError(model string) *collaberr.Error {
	return collaberr.NewRespondToModel("model %s is not available", model)
}

// ReasoningEffortUnsupportedError formats the §4.4.2 unsupported-level rejection.
func ReasoningEffortUnsupportedError(effort string, supported []string) *collaberr.Error {
	return collaberr.NewRespondToModel(
		"reasoning_effort %q is not supported; supported values are: %s", effort, strings.Join(supported, ", "))
}

// EscalationRejectedError formats the §4.4.3 permission-escalation rejection.
func EscalationRejectedError(field, requested, parent string) *collaberr.Error {
	return collaberr.NewRespondToModel(
		"%s override %q exceeds the parent's %q and subagent permission escalation is not allowed", field, requested, parent)
}

// SetterError maps a config setter failure per §4.4.3. ParseApprovalLevel
// and ParseSandboxLevel already format their own "field is invalid: ..."
// message, so it is forwarded verbatim rather than wrapped again.
func SetterError(field string, err error) *collaberr.Error {
	return collaberr.NewRespondToModel("%s", err.Error())
}
