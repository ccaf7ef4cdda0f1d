// Package workflow contains Temporal workflow definitions.
//
// approval_gate.go wraps the exec-policy-driven approval classification in a
// small stateful type, mirroring how ToolExecutor wraps tool dispatch in
// tool_execution.go. The classification and decision logic itself lives in
// classifyToolsForApproval/applyApprovalDecision in agentic.go.
package workflow

import "github.com/agentmesh/ccmesh/internal/models"

// ApprovalGate classifies tool calls against the session's approval mode and
// exec policy rules, and applies the user's approve/deny decision to a
// pending batch.
type ApprovalGate struct {
	mode        models.ApprovalMode
	policyRules string
}

// NewApprovalGate creates an ApprovalGate for the given approval mode and
// serialized exec policy rules.
func NewApprovalGate(mode models.ApprovalMode, policyRules string) *ApprovalGate {
	return &ApprovalGate{mode: mode, policyRules: policyRules}
}

// Classify splits functionCalls into those needing user approval and those
// forbidden outright by exec policy.
func (g *ApprovalGate) Classify(functionCalls []models.ConversationItem) (needsApproval []PendingApproval, forbidden []models.ConversationItem) {
	return classifyToolsForApproval(functionCalls, g.mode, g.policyRules)
}

// ApplyDecision filters calls by the user's approval response, returning the
// approved calls and the FunctionCallOutput items for denied ones.
func (g *ApprovalGate) ApplyDecision(calls []models.ConversationItem, resp *ApprovalResponse) (approved, denied []models.ConversationItem) {
	return applyApprovalDecision(calls, resp)
}
