package activities

import (
	"context"

	"github.com/agentmesh/ccmesh/internal/models"
	"github.com/agentmesh/ccmesh/internal/rollout"
)

// SaveRolloutInput is the input for the SaveRollout activity.
type SaveRolloutInput struct {
	CodexHome string                     `json:"codex_home"`
	AgentID   string                     `json:"agent_id"`
	Items     []models.ConversationItem `json:"items"`
}

// SaveRolloutOutput is the output from the SaveRollout activity.
type SaveRolloutOutput struct{}

// LoadRolloutInput is the input for the LoadRollout activity.
type LoadRolloutInput struct {
	CodexHome string `json:"codex_home"`
	AgentID   string `json:"agent_id"`
}

// LoadRolloutOutput is the output from the LoadRollout activity.
type LoadRolloutOutput struct {
	Items []models.ConversationItem `json:"items,omitempty"`
	Found bool                       `json:"found"`
}

// RolloutActivities contains agent rollout persistence activities.
// Mirrors InstructionActivities: file I/O lives here, outside workflow code,
// since workflow code must stay deterministic.
type RolloutActivities struct{}

// NewRolloutActivities creates a new RolloutActivities instance.
func NewRolloutActivities() *RolloutActivities {
	return &RolloutActivities{}
}

// SaveRollout writes a closed agent's conversation history to its rollout
// file on the worker's filesystem. Runs on the session task queue, like
// LoadExecPolicy, so it lands on the same machine as the session's other
// file-backed activities.
func (a *RolloutActivities) SaveRollout(_ context.Context, input SaveRolloutInput) (SaveRolloutOutput, error) {
	if err := rollout.Save(input.CodexHome, input.AgentID, input.Items); err != nil {
		return SaveRolloutOutput{}, err
	}
	return SaveRolloutOutput{}, nil
}

// LoadRollout reads a persisted agent's conversation history back, if one
// exists. Non-fatal on a missing file: Found is false rather than an error.
func (a *RolloutActivities) LoadRollout(_ context.Context, input LoadRolloutInput) (LoadRolloutOutput, error) {
	items, found, err := rollout.Load(input.CodexHome, input.AgentID)
	if err != nil {
		return LoadRolloutOutput{}, err
	}
	return LoadRolloutOutput{Items: items, Found: found}, nil
}
