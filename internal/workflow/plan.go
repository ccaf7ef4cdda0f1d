// update_plan interception — maintains the session's visible task plan.
//
// Maps to: codex-rs/core/src/tools/handlers/plan.rs UpdatePlanHandler
package workflow

import (
	"encoding/json"
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/agentmesh/ccmesh/internal/models"
)

// handleUpdatePlan intercepts the update_plan tool call, replacing the
// session's current plan rather than dispatching it as an activity.
func (s *SessionState) handleUpdatePlan(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	var args struct {
		Explanation string `json:"explanation"`
		Plan        []PlanStep `json:"plan"`
	}
	if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
		return collabErrorOutput(fc.CallID, fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	s.Plan = args.Plan
	logger.Info("Updated plan", "steps", len(args.Plan))

	return collabSuccessOutput(fc.CallID, map[string]interface{}{
		"plan_steps": len(args.Plan),
	}), nil
}
