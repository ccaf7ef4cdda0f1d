// Package workflow contains Temporal workflow definitions.
//
// Corresponds to: codex-rs/core/src/codex.rs (run_turn, run_sampling_request)
package workflow

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/agentmesh/ccmesh/internal/activities"
	"github.com/agentmesh/ccmesh/internal/agentcore"
	"github.com/agentmesh/ccmesh/internal/execpolicy"
	"github.com/agentmesh/ccmesh/internal/history"
	"github.com/agentmesh/ccmesh/internal/instructions"
	"github.com/agentmesh/ccmesh/internal/models"
	"github.com/agentmesh/ccmesh/internal/tools"
	"github.com/agentmesh/ccmesh/internal/version"
)

// IdleTimeout is how long the workflow waits for user input before triggering ContinueAsNew.
const IdleTimeout = 24 * time.Hour

// maxIterationsBeforeCAN is the total iteration count across all turns in a
// single workflow run before triggering ContinueAsNew to keep history bounded.
const maxIterationsBeforeCAN = 100

// maxRepeatToolCalls is the number of consecutive identical tool call batches
// before the turn is ended early to prevent tight loops.
const maxRepeatToolCalls = 3

// AgenticWorkflow is the main durable agentic loop.
//
// Maps to: codex-rs/core/src/codex.rs run_turn
func AgenticWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	state := SessionState{
		ConversationID:    input.ConversationID,
		AgentID:           input.AgentID,
		History:           history.NewInMemoryHistory(),
		Config:            input.Config,
		MaxIterations:     20,
		IterationCount:    0,
		AgentCtl:          NewAgentControl(input.Depth),
		AllowNestedAgents: input.AllowNestedAgents,
	}

	// Resolve the model profile first; buildToolSpecs and resolveInstructions
	// both depend on it (tool overrides, AGENTS.md file name priority, prompt suffix).
	state.resolveProfile()

	// Build tool specs based on configuration and profile overrides
	state.ToolSpecs = buildToolSpecs(input.Config.Tools, state.ResolvedProfile)

	// Resolve instructions (load worker-side AGENTS.md, merge all sources)
	state.resolveInstructions(ctx)

	// Load exec policy rules from worker filesystem
	state.loadExecPolicy(ctx)

	// Generate initial turn ID
	turnID := generateTurnID(ctx)
	state.CurrentTurnID = turnID

	if len(input.ResumedItems) > 0 {
		// Resumed agent: restore the persisted rollout instead of starting
		// a fresh conversation. See resume_agent/loadAgentRollout.
		for _, item := range input.ResumedItems {
			if err := state.History.AddItem(item); err != nil {
				return WorkflowResult{}, fmt.Errorf("failed to restore rollout item: %w", err)
			}
		}
		if err := state.History.AddItem(models.ConversationItem{
			Type:   models.ItemTypeTurnStarted,
			TurnID: turnID,
		}); err != nil {
			return WorkflowResult{}, fmt.Errorf("failed to add turn started: %w", err)
		}
		if input.UserMessage != "" {
			if err := state.History.AddItem(models.ConversationItem{
				Type:    models.ItemTypeUserMessage,
				Content: input.UserMessage,
				TurnID:  turnID,
			}); err != nil {
				return WorkflowResult{}, fmt.Errorf("failed to add resume message: %w", err)
			}
			state.PendingUserInput = true
		}
		// With no UserMessage, the resumed agent goes straight to waiting
		// for its next send_input, matching its pre-close state.
	} else {
		// Add initial TurnStarted marker
		if err := state.History.AddItem(models.ConversationItem{
			Type:   models.ItemTypeTurnStarted,
			TurnID: turnID,
		}); err != nil {
			return WorkflowResult{}, fmt.Errorf("failed to add turn started: %w", err)
		}

		// Add environment context as the first user message
		if state.Config.Cwd != "" {
			envCtx := instructions.BuildEnvironmentContext(state.Config.Cwd, "")
			if err := state.History.AddItem(models.ConversationItem{
				Type:    models.ItemTypeUserMessage,
				Content: envCtx,
				TurnID:  turnID,
			}); err != nil {
				return WorkflowResult{}, fmt.Errorf("failed to add environment context: %w", err)
			}
		}

		// Add initial user message to history
		if err := state.History.AddItem(models.ConversationItem{
			Type:    models.ItemTypeUserMessage,
			Content: input.UserMessage,
			TurnID:  turnID,
		}); err != nil {
			return WorkflowResult{}, fmt.Errorf("failed to add user message: %w", err)
		}

		// Mark that we have pending input for the first turn
		state.PendingUserInput = true
	}

	// Register handlers and run multi-turn loop
	state.registerHandlers(ctx)
	return state.runMultiTurnLoop(ctx)
}

// AgenticWorkflowContinued handles ContinueAsNew.
func AgenticWorkflowContinued(ctx workflow.Context, state SessionState) (WorkflowResult, error) {
	// Restore History interface from serialized HistoryItems
	state.initHistory()
	// Restore the collaboration controller's transient child-future map,
	// lost across ContinueAsNew; Agents survived via JSON.
	if state.AgentCtl == nil {
		state.AgentCtl = NewAgentControl(0)
	} else {
		state.AgentCtl.ensureChildFutures()
	}
	// Re-register handlers after ContinueAsNew
	state.registerHandlers(ctx)
	return state.runMultiTurnLoop(ctx)
}

// registerHandlers registers query and update handlers on the workflow.
func (s *SessionState) registerHandlers(ctx workflow.Context) {
	logger := workflow.GetLogger(ctx)

	// Query: get_conversation_items
	// Maps to: Codex ContextManager::raw_items()
	err := workflow.SetQueryHandler(ctx, QueryGetConversationItems, func() ([]models.ConversationItem, error) {
		return s.History.GetRawItems()
	})
	if err != nil {
		logger.Error("Failed to register get_conversation_items query handler", "error", err)
	}

	// Query: get_turn_status
	// Returns current turn phase and stats for CLI polling.
	err = workflow.SetQueryHandler(ctx, QueryGetTurnStatus, func() (TurnStatus, error) {
		return s.buildTurnStatus(), nil
	})
	if err != nil {
		logger.Error("Failed to register get_turn_status query handler", "error", err)
	}

	// Update: user_input
	// Maps to: Codex Op::UserInput / turn/start
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateUserInput,
		func(ctx workflow.Context, input UserInput) (UserInputAccepted, error) {
			turnID := generateTurnID(ctx)

			// Add TurnStarted marker
			if err := s.History.AddItem(models.ConversationItem{
				Type:   models.ItemTypeTurnStarted,
				TurnID: turnID,
			}); err != nil {
				return UserInputAccepted{}, fmt.Errorf("failed to add turn started: %w", err)
			}

			// Add user message
			if err := s.History.AddItem(models.ConversationItem{
				Type:    models.ItemTypeUserMessage,
				Content: input.Content,
				TurnID:  turnID,
			}); err != nil {
				return UserInputAccepted{}, fmt.Errorf("failed to add user message: %w", err)
			}

			s.CurrentTurnID = turnID
			s.PendingUserInput = true

			return UserInputAccepted{TurnID: turnID}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, input UserInput) error {
				if input.Content == "" {
					return fmt.Errorf("content must not be empty")
				}
				if s.ShutdownRequested {
					return fmt.Errorf("session is shutting down")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register user_input update handler", "error", err)
	}

	// Update: interrupt
	// Maps to: Codex Op::Interrupt
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateInterrupt,
		func(ctx workflow.Context, req InterruptRequest) (InterruptResponse, error) {
			s.Interrupted = true

			// Add TurnComplete marker for interrupted turn
			if s.CurrentTurnID != "" {
				_ = s.History.AddItem(models.ConversationItem{
					Type:    models.ItemTypeTurnComplete,
					TurnID:  s.CurrentTurnID,
					Content: "interrupted",
				})
			}

			return InterruptResponse{Acknowledged: true}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req InterruptRequest) error {
				if s.ShutdownRequested {
					return fmt.Errorf("session is shutting down")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register interrupt update handler", "error", err)
	}

	// Update: shutdown
	// Maps to: Codex Op::Shutdown
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateShutdown,
		func(ctx workflow.Context, req ShutdownRequest) (ShutdownResponse, error) {
			s.ShutdownRequested = true
			s.Interrupted = true // Also interrupt current turn
			s.cascadeShutdownChildren(ctx)
			return ShutdownResponse{Acknowledged: true}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req ShutdownRequest) error {
				if s.ShutdownRequested {
					return fmt.Errorf("session is already shutting down")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register shutdown update handler", "error", err)
	}

	// Update: approval_response
	// Maps to: Codex approval flow (user approves/denies tool calls)
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateApprovalResponse,
		func(ctx workflow.Context, resp ApprovalResponse) (ApprovalResponseAck, error) {
			s.ApprovalResponse = &resp
			s.ApprovalReceived = true
			return ApprovalResponseAck{}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, resp ApprovalResponse) error {
				if s.Phase != PhaseApprovalPending {
					return fmt.Errorf("no approval pending")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register approval_response update handler", "error", err)
	}

	// Update: escalation_response
	// Maps to: Codex on-failure escalation flow
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateEscalationResponse,
		func(ctx workflow.Context, resp EscalationResponse) (EscalationResponseAck, error) {
			s.EscalationResponse = &resp
			s.EscalationReceived = true
			return EscalationResponseAck{}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, resp EscalationResponse) error {
				if s.Phase != PhaseEscalationPending {
					return fmt.Errorf("no escalation pending")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register escalation_response update handler", "error", err)
	}

	// Update: user_input_question_response
	// Maps to: Codex request_user_input flow (user answers multi-choice questions)
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateUserInputQuestionResponse,
		func(ctx workflow.Context, resp UserInputQuestionResponse) (UserInputQuestionResponseAck, error) {
			s.UserInputQResponse = &resp
			s.UserInputQReceived = true
			return UserInputQuestionResponseAck{}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, resp UserInputQuestionResponse) error {
				if s.Phase != PhaseUserInputPending {
					return fmt.Errorf("no user input question pending")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register user_input_question_response update handler", "error", err)
	}

	// Update: update_model
	// Allows the CLI to change the model used for subsequent LLM calls.
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateModel,
		func(ctx workflow.Context, req UpdateModelRequest) (UpdateModelResponse, error) {
			// Save previous model info so maybeCompactBeforeLLM can notify the
			// new model about the switch on the next turn.
			s.PreviousModel = s.Config.Model.Model
			s.PreviousContextWindow = s.Config.Model.ContextWindow

			s.Config.Model.Provider = req.Provider
			s.Config.Model.Model = req.Model
			s.resolveProfile()
			if req.ContextWindow > 0 {
				s.Config.Model.ContextWindow = req.ContextWindow
			}

			// Reset response chaining and incremental history tracking so the
			// next LLM call resends the full history under the new model.
			s.LastResponseID = ""
			s.lastSentHistoryLen = 0
			s.modelSwitched = true

			return UpdateModelResponse{Acknowledged: true}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req UpdateModelRequest) error {
				if req.Provider == "" {
					return fmt.Errorf("provider must not be empty")
				}
				if req.Model == "" {
					return fmt.Errorf("model must not be empty")
				}
				if s.ShutdownRequested {
					return fmt.Errorf("session is shutting down")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register update_model update handler", "error", err)
	}

	// Update: compact
	// Triggers manual context compaction from the CLI /compact command.
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateCompact,
		func(ctx workflow.Context, req CompactRequest) (CompactResponse, error) {
			s.CompactRequested = true
			return CompactResponse{Acknowledged: true}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req CompactRequest) error {
				if s.ShutdownRequested {
					return fmt.Errorf("session is shutting down")
				}
				if s.Phase == PhaseCompacting {
					return fmt.Errorf("compaction already in progress")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register compact update handler", "error", err)
	}

	// Update: plan_request
	// Spawns a planner child workflow directly (no LLM round-trip through the
	// spawn_agent tool) and returns its workflow ID so the CLI can query it.
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdatePlanRequest,
		func(ctx workflow.Context, req PlanRequest) (PlanRequestAccepted, error) {
			childDepth := s.AgentCtl.ParentDepth + 1
			maxDepth := s.Config.Collab.MaxSpawnDepth
			if childDepth > maxDepth {
				return PlanRequestAccepted{}, fmt.Errorf("cannot spawn planner: maximum nesting depth (%d) exceeded", maxDepth)
			}

			agentID := nextAgentID(ctx)
			childInput := buildAgentSpawnConfig(s.Config, AgentRolePlanner, req.Message, childDepth, agentID, false)

			nowMs := workflow.Now(ctx).UnixMilli()
			info := &AgentInfo{
				AgentID:     agentID,
				Name:        agentID,
				Preset:      "planner",
				Role:        AgentRolePlanner,
				Status:      agentcore.PendingInit(),
				Goal:        req.Message,
				Depth:       childDepth,
				TaskMessage: req.Message,
				CreatedAtMs: nowMs,
				UpdatedAtMs: nowMs,
			}
			s.AgentCtl.Agents[agentID] = info

			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
				WorkflowID: s.ConversationID + "/" + agentID,
			})
			future := workflow.ExecuteChildWorkflow(childCtx, "AgenticWorkflow", childInput)

			var childExec workflow.Execution
			if err := future.GetChildWorkflowExecution().Get(ctx, &childExec); err != nil {
				info.Status = agentcore.Errored(err.Error())
				return PlanRequestAccepted{}, fmt.Errorf("failed to start planner workflow: %w", err)
			}

			info.WorkflowID = childExec.ID
			info.RunID = childExec.RunID
			info.Status = agentcore.Running()

			s.AgentCtl.childFutures[agentID] = future
			s.startChildCompletionWatcher(ctx, agentID, future)

			logger.Info("Spawned planner agent", "agent_id", agentID, "child_workflow_id", childExec.ID)

			return PlanRequestAccepted{
				AgentID:    agentID,
				WorkflowID: childExec.ID,
			}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req PlanRequest) error {
				if req.Message == "" {
					return fmt.Errorf("message must not be empty")
				}
				if s.ShutdownRequested {
					return fmt.Errorf("session is shutting down")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register plan_request update handler", "error", err)
	}

	// Update: get_state_update
	// Blocking long-poll Update the CLI's Watcher uses instead of separate
	// get_conversation_items/get_turn_status queries. Blocks via workflow.Await
	// until an item past SinceSeq appears or the phase changes, then returns
	// the delta items and current status in one response.
	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateGetStateUpdate,
		func(ctx workflow.Context, req StateUpdateRequest) (StateUpdateResponse, error) {
			items, compacted := s.itemsSince(req.SinceSeq)
			if len(items) > 0 || compacted || s.Phase != req.SincePhase || s.ShutdownRequested {
				return StateUpdateResponse{
					TurnID:    s.CurrentTurnID,
					Items:     items,
					Status:    s.buildTurnStatus(),
					Compacted: compacted,
					Completed: s.ShutdownRequested,
				}, nil
			}

			awaitErr := workflow.Await(ctx, func() bool {
				items, compacted = s.itemsSince(req.SinceSeq)
				return len(items) > 0 || compacted || s.Phase != req.SincePhase || s.ShutdownRequested
			})
			if awaitErr != nil {
				return StateUpdateResponse{}, fmt.Errorf("get_state_update await failed: %w", awaitErr)
			}

			return StateUpdateResponse{
				TurnID:    s.CurrentTurnID,
				Items:     items,
				Status:    s.buildTurnStatus(),
				Compacted: compacted,
				Completed: s.ShutdownRequested,
			}, nil
		},
		workflow.UpdateHandlerOptions{},
	)
	if err != nil {
		logger.Error("Failed to register get_state_update update handler", "error", err)
	}

	// Signal channels for child workflow mode (subagent). Drained in goroutines
	// so delivery doesn't block the handler that's registering them.
	// Maps to: codex-rs/core/src/tools/handlers/collab.rs send_input::handle
	// (interrupt_agent / send_input dispatch onto the target thread).

	// agent_input — delivers a message from parent to child workflow.
	agentInputCh := workflow.GetSignalChannel(ctx, SignalAgentInput)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var signal AgentInputSignal
			if !agentInputCh.Receive(gCtx, &signal) {
				return // channel closed
			}
			if signal.Interrupt {
				s.Interrupted = true
			}

			turnID := generateTurnID(gCtx)
			_ = s.History.AddItem(models.ConversationItem{
				Type:   models.ItemTypeTurnStarted,
				TurnID: turnID,
			})
			_ = s.History.AddItem(models.ConversationItem{
				Type:    models.ItemTypeUserMessage,
				Content: signal.Content,
				TurnID:  turnID,
			})

			s.CurrentTurnID = turnID
			s.PendingUserInput = true
		}
	})

	// agent_shutdown — requests this child workflow to shut down.
	agentShutdownCh := workflow.GetSignalChannel(ctx, SignalAgentShutdown)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var ignored interface{}
		if !agentShutdownCh.Receive(gCtx, &ignored) {
			return
		}
		s.ShutdownRequested = true
		s.Interrupted = true
		s.cascadeShutdownChildren(gCtx)
	})
}

// itemsSince returns the conversation items with Seq greater than sinceSeq,
// along with whether history has been compacted out from under the caller
// (the oldest retained item's Seq jumped past sinceSeq+1).
func (s *SessionState) itemsSince(sinceSeq int) ([]models.ConversationItem, bool) {
	all, err := s.History.GetRawItems()
	if err != nil || len(all) == 0 {
		return nil, false
	}

	compacted := sinceSeq >= 0 && all[0].Seq > sinceSeq+1

	var items []models.ConversationItem
	for _, item := range all {
		if item.Seq > sinceSeq {
			items = append(items, item)
		}
	}
	return items, compacted
}

// buildTurnStatus constructs a TurnStatus from the current session state.
// Shared by the get_turn_status query and the get_state_update Update so both
// surfaces report identical fields.
func (s *SessionState) buildTurnStatus() TurnStatus {
	turnCount, _ := s.History.GetTurnCount()
	status := TurnStatus{
		Phase:                   s.Phase,
		CurrentTurnID:           s.CurrentTurnID,
		ToolsInFlight:           s.ToolsInFlight,
		PendingApprovals:        s.PendingApprovals,
		PendingEscalations:      s.PendingEscalations,
		PendingUserInputRequest: s.PendingUserInputReq,
		IterationCount:          s.IterationCount,
		TotalTokens:             s.TotalTokens,
		TotalCachedTokens:       s.TotalCachedTokens,
		TurnCount:               turnCount,
		WorkerVersion:           version.GitCommit,
		Plan:                    s.Plan,
	}
	if s.AgentCtl != nil {
		for _, info := range s.AgentCtl.Agents {
			status.ChildAgents = append(status.ChildAgents, ChildAgentSummary{
				AgentID:    info.AgentID,
				Name:       info.Name,
				WorkflowID: info.WorkflowID,
				Preset:     info.Preset,
				Status:     info.Status,
				Depth:      info.Depth,
				Closed:     info.Closed,
			})
		}
	}
	return status
}

// generateTurnID generates a unique turn ID using Temporal's SideEffect.
func generateTurnID(ctx workflow.Context) string {
	var nanos int64
	encoded := workflow.SideEffect(ctx, func(ctx workflow.Context) interface{} {
		return workflow.Now(ctx).UnixNano()
	})
	_ = encoded.Get(&nanos)
	return fmt.Sprintf("turn-%d", nanos)
}

// resolveInstructions loads worker-side AGENTS.md files and merges all
// instruction sources into the session configuration. Called once before
// the first turn. Non-fatal: falls back to CLI-provided docs on failure.
func (s *SessionState) resolveInstructions(ctx workflow.Context) {
	logger := workflow.GetLogger(ctx)

	// Load worker-side project docs via activity (runs on session task queue)
	var workerDocs string
	loadInput := activities.LoadWorkerInstructionsInput{
		Cwd:             s.Config.Cwd,
		AgentsFileNames: s.ResolvedProfile.AgentsFileNames,
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	if s.Config.SessionTaskQueue != "" {
		actOpts.TaskQueue = s.Config.SessionTaskQueue
	}
	loadCtx := workflow.WithActivityOptions(ctx, actOpts)

	var loadResult activities.LoadWorkerInstructionsOutput
	err := workflow.ExecuteActivity(loadCtx, "LoadWorkerInstructions", loadInput).Get(ctx, &loadResult)
	if err != nil {
		logger.Warn("Failed to load worker instructions, using CLI fallback", "error", err)
	} else {
		workerDocs = loadResult.ProjectDocs
	}

	// Merge all instruction sources, including the resolved profile's PromptSuffix
	merged := instructions.MergeInstructions(instructions.MergeInput{
		BaseOverride:             s.Config.BaseInstructions,
		ProfilePromptSuffix:      s.ResolvedProfile.PromptSuffix,
		CLIProjectDocs:           s.Config.CLIProjectDocs,
		WorkerProjectDocs:        workerDocs,
		UserPersonalInstructions: s.Config.UserPersonalInstructions,
		ApprovalMode:             string(s.Config.ApprovalMode),
		Cwd:                      s.Config.Cwd,
	})

	// Store merged results in config (persists through ContinueAsNew)
	s.Config.BaseInstructions = merged.Base
	s.Config.DeveloperInstructions = merged.Developer
	s.Config.UserInstructions = merged.User

	logger.Info("Instructions resolved",
		"base_len", len(merged.Base),
		"developer_len", len(merged.Developer),
		"user_len", len(merged.User))
}

// runMultiTurnLoop is the outer loop that waits for user input between turns.
func (s *SessionState) runMultiTurnLoop(ctx workflow.Context) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	for {
		// Wait for pending user input (first turn has it set already)
		if !s.PendingUserInput && !s.ShutdownRequested {
			s.Phase = PhaseWaitingForInput
			s.ToolsInFlight = nil
			logger.Info("Waiting for user input or shutdown")
			timedOut, err := awaitWithIdleTimeout(ctx, func() bool {
				return s.PendingUserInput || s.ShutdownRequested
			})
			if err != nil {
				return WorkflowResult{}, fmt.Errorf("await failed: %w", err)
			}
			if timedOut {
				logger.Info("Idle timeout reached, triggering ContinueAsNew")
				return s.continueAsNew(ctx)
			}
		}

		// Check for shutdown
		if s.ShutdownRequested {
			logger.Info("Shutdown requested, completing workflow")
			s.saveRolloutOnClose(ctx)
			return WorkflowResult{
				ConversationID:    s.ConversationID,
				TotalIterations:   s.IterationCount,
				TotalTokens:       s.TotalTokens,
				ToolCallsExecuted: s.ToolCallsExecuted,
				EndReason:         "shutdown",
			}, nil
		}

		// Reset for new turn
		s.PendingUserInput = false
		s.Interrupted = false
		s.IterationCount = 0

		// Run the agentic turn
		done, err := s.runAgenticTurn(ctx)
		if err != nil {
			return WorkflowResult{}, err
		}

		if done {
			// ContinueAsNew was triggered
			return s.continueAsNew(ctx)
		}

		// Accumulate iterations for CAN threshold across turns.
		s.TotalIterationsForCAN += s.IterationCount
		if s.TotalIterationsForCAN >= maxIterationsBeforeCAN {
			logger.Info("Total iterations across turns reached CAN threshold",
				"total", s.TotalIterationsForCAN)
			return s.continueAsNew(ctx)
		}

		// Turn complete — add TurnComplete marker (unless interrupted, which already added it)
		if !s.Interrupted {
			_ = s.History.AddItem(models.ConversationItem{
				Type:   models.ItemTypeTurnComplete,
				TurnID: s.CurrentTurnID,
			})
		}

		s.Phase = PhaseWaitingForInput
		s.ToolsInFlight = nil
		logger.Info("Turn complete, waiting for next input", "turn_id", s.CurrentTurnID)
	}
}

// awaitWithIdleTimeout waits for condition or idle timeout.
// Returns (timedOut, error).
func awaitWithIdleTimeout(ctx workflow.Context, condition func() bool) (bool, error) {
	ok, err := workflow.AwaitWithTimeout(ctx, IdleTimeout, condition)
	if err != nil {
		return false, err
	}
	return !ok, nil // ok=false means timed out
}

// continueAsNew prepares state and triggers ContinueAsNew.
func (s *SessionState) continueAsNew(ctx workflow.Context) (WorkflowResult, error) {
	// Wait for all update handlers to finish before ContinueAsNew
	_ = workflow.Await(ctx, func() bool {
		return workflow.AllHandlersFinished(ctx)
	})

	s.syncHistoryItems()
	return WorkflowResult{}, workflow.NewContinueAsNewError(ctx, "AgenticWorkflowContinued", *s)
}

// handleRequestUserInput intercepts a request_user_input tool call, parses the
// arguments, sets the pending phase, waits for the user's response, and returns
// a FunctionCallOutput item with the user's answers as JSON.
//
// Maps to: codex-rs/protocol/src/request_user_input.rs
func (s *SessionState) handleRequestUserInput(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	// Parse and validate the arguments
	questions, err := parseRequestUserInputArgs(fc.Arguments)
	if err != nil {
		logger.Warn("Invalid request_user_input args", "error", err)
		falseVal := false
		return models.ConversationItem{
			Type:   models.ItemTypeFunctionCallOutput,
			CallID: fc.CallID,
			Output: &models.FunctionCallOutputPayload{
				Content: fmt.Sprintf("Invalid request_user_input arguments: %v", err),
				Success: &falseVal,
			},
		}, nil
	}

	// Set pending state
	s.Phase = PhaseUserInputPending
	s.PendingUserInputReq = &PendingUserInputRequest{
		CallID:    fc.CallID,
		Questions: questions,
	}
	s.UserInputQReceived = false
	s.UserInputQResponse = nil

	logger.Info("Waiting for user input response", "question_count", len(questions))

	// Wait for user response or interrupt
	err = workflow.Await(ctx, func() bool {
		return s.UserInputQReceived || s.Interrupted || s.ShutdownRequested
	})
	if err != nil {
		return models.ConversationItem{}, fmt.Errorf("user input await failed: %w", err)
	}

	s.PendingUserInputReq = nil

	if s.Interrupted || s.ShutdownRequested {
		logger.Info("User input wait interrupted")
		falseVal := false
		return models.ConversationItem{
			Type:   models.ItemTypeFunctionCallOutput,
			CallID: fc.CallID,
			Output: &models.FunctionCallOutputPayload{
				Content: "User input request was interrupted.",
				Success: &falseVal,
			},
		}, nil
	}

	// Build the response JSON
	responseJSON, err := json.Marshal(s.UserInputQResponse)
	if err != nil {
		return models.ConversationItem{}, fmt.Errorf("failed to marshal user input response: %w", err)
	}

	trueVal := true
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: fc.CallID,
		Output: &models.FunctionCallOutputPayload{
			Content: string(responseJSON),
			Success: &trueVal,
		},
	}, nil
}


// classifyToolsForApproval determines which tool calls need user approval.
// Uses the exec policy engine when available, falling back to heuristic classification.
//
// Returns:
//   - pending: tools needing approval (shown to user)
//   - forbidden: tools that are forbidden (denied immediately)
//
// Maps to: Codex AskForApproval policy check before tool dispatch
func classifyToolsForApproval(
	functionCalls []models.ConversationItem,
	mode models.ApprovalMode,
	policyRules string,
) (pending []PendingApproval, forbidden []models.ConversationItem) {
	// Empty/unset mode or "never" → auto-approve all (backward compat)
	if mode == "" || mode == models.ApprovalNever {
		return nil, nil
	}

	// Build exec policy manager from serialized rules
	var policyMgr *execpolicy.ExecPolicyManager
	if policyRules != "" {
		mgr, err := execpolicy.LoadExecPolicyFromSource(policyRules)
		if err == nil {
			policyMgr = mgr
		}
	}

	for _, fc := range functionCalls {
		req, reason := evaluateToolApproval(fc.Name, fc.Arguments, policyMgr, mode)
		switch req {
		case tools.ApprovalSkip:
			continue // auto-approved
		case tools.ApprovalNeeded:
			pending = append(pending, PendingApproval{
				CallID:    fc.CallID,
				ToolName:  fc.Name,
				Arguments: fc.Arguments,
				Reason:    reason,
			})
		case tools.ApprovalForbidden:
			falseVal := false
			msg := "This command is forbidden by exec policy."
			if reason != "" {
				msg = fmt.Sprintf("Forbidden: %s", reason)
			}
			forbidden = append(forbidden, models.ConversationItem{
				Type:   models.ItemTypeFunctionCallOutput,
				CallID: fc.CallID,
				Output: &models.FunctionCallOutputPayload{
					Content: msg,
					Success: &falseVal,
				},
			})
		}
	}
	return pending, forbidden
}

// evaluateToolApproval determines the approval requirement for a single tool call.
// Returns the requirement and a human-readable reason.
func evaluateToolApproval(
	toolName, arguments string,
	policyMgr *execpolicy.ExecPolicyManager,
	mode models.ApprovalMode,
) (tools.ExecApprovalRequirement, string) {
	if isCollabToolCall(toolName) {
		return tools.ApprovalSkip, "" // collaboration tools are intercepted by the workflow, never dispatched
	}

	switch toolName {
	case "read_file", "list_dir", "grep_files", "request_user_input", "update_plan":
		return tools.ApprovalSkip, "" // Read-only / workflow-intercepted tools always safe

	case "shell":
		return evaluateShellApproval(arguments, policyMgr, mode)

	case "write_file", "apply_patch":
		if mode == models.ApprovalNever {
			return tools.ApprovalSkip, ""
		}
		return tools.ApprovalNeeded, "mutating file operation"

	default:
		if mode == models.ApprovalNever {
			return tools.ApprovalSkip, ""
		}
		return tools.ApprovalNeeded, "unknown tool"
	}
}

// evaluateShellApproval evaluates a shell tool call through the exec policy engine.
func evaluateShellApproval(
	arguments string,
	policyMgr *execpolicy.ExecPolicyManager,
	mode models.ApprovalMode,
) (tools.ExecApprovalRequirement, string) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return tools.ApprovalNeeded, "cannot parse arguments"
	}
	cmd, ok := args["command"].(string)
	if !ok || cmd == "" {
		return tools.ApprovalNeeded, "missing command"
	}

	// Use exec policy if available
	if policyMgr != nil {
		eval := policyMgr.GetEvaluation([]string{"bash", "-c", cmd}, string(mode))
		req := decisionToApprovalReq(eval.Decision)
		return req, eval.Justification
	}

	// Fallback to heuristic (same as before exec policy was added)
	if mode == models.ApprovalNever || mode == "" {
		return tools.ApprovalSkip, ""
	}
	if mode == models.ApprovalOnFailure {
		return tools.ApprovalSkip, "" // runs in sandbox
	}
	// unless-trusted: use command_safety heuristic
	mgr := execpolicy.NewExecPolicyManager(execpolicy.NewPolicy())
	return mgr.EvaluateShellCommand(cmd, string(mode)), ""
}

// decisionToApprovalReq maps a policy Decision to ExecApprovalRequirement.
func decisionToApprovalReq(d execpolicy.Decision) tools.ExecApprovalRequirement {
	switch d {
	case execpolicy.DecisionAllow:
		return tools.ApprovalSkip
	case execpolicy.DecisionPrompt:
		return tools.ApprovalNeeded
	case execpolicy.DecisionForbidden:
		return tools.ApprovalForbidden
	default:
		return tools.ApprovalNeeded
	}
}

// saveRolloutOnClose persists this agent's conversation history via the
// SaveRollout activity so resume_agent can restore it later. Only runs for
// child agents (AgentID set) with a configured CodexHome; best-effort, a
// failure here just means the agent can't later be resumed from rollout.
func (s *SessionState) saveRolloutOnClose(ctx workflow.Context) {
	if s.AgentID == "" || s.Config.CodexHome == "" {
		return
	}
	logger := workflow.GetLogger(ctx)

	items, err := s.History.GetRawItems()
	if err != nil {
		logger.Warn("failed to snapshot history for rollout", "agent_id", s.AgentID, "error", err)
		return
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	if s.Config.SessionTaskQueue != "" {
		actOpts.TaskQueue = s.Config.SessionTaskQueue
	}
	saveCtx := workflow.WithActivityOptions(ctx, actOpts)

	in := activities.SaveRolloutInput{CodexHome: s.Config.CodexHome, AgentID: s.AgentID, Items: items}
	var out activities.SaveRolloutOutput
	if err := workflow.ExecuteActivity(saveCtx, "SaveRollout", in).Get(ctx, &out); err != nil {
		logger.Warn("failed to save agent rollout", "agent_id", s.AgentID, "error", err)
	}
}

// sandboxDenialKeywords are output strings that indicate a sandbox/permission
// denial rather than a normal command failure.
// Matches Codex: codex-rs/core/src/exec.rs SANDBOX_DENIED_KEYWORDS
var sandboxDenialKeywords = []string{
	"operation not permitted",
	"permission denied",
	"read-only file system",
	"seccomp",
	"sandbox",
	"landlock",
	"failed to write file",
}

// isLikelySandboxDenial checks whether a failed tool result looks like it was
// blocked by a sandbox rather than failing for an ordinary reason (file not
// found, invalid args, etc.).
func isLikelySandboxDenial(output string) bool {
	lower := strings.ToLower(output)
	for _, kw := range sandboxDenialKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// truncate returns s truncated to n bytes with "..." appended if it was longer.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// handleOnFailureEscalation checks for failed tools in on-failure mode.
// For failed tools that look like sandbox denials, prompts the user to
// re-execute without sandbox. Normal failures are passed through to the LLM.
// Returns updated tool results (may include re-executed results).
func (s *SessionState) handleOnFailureEscalation(
	ctx workflow.Context,
	functionCalls []models.ConversationItem,
	toolResults []activities.ToolActivityOutput,
) ([]activities.ToolActivityOutput, error) {
	logger := workflow.GetLogger(ctx)

	// Find failed tools
	var escalations []EscalationRequest
	failedIndices := make(map[int]bool)

	for i, result := range toolResults {
		if result.Success != nil && !*result.Success {
			if isLikelySandboxDenial(result.Content) {
				// Looks like sandbox blocked it — escalate to user
				failedIndices[i] = true
				escalations = append(escalations, EscalationRequest{
					CallID:    result.CallID,
					ToolName:  functionCalls[i].Name,
					Arguments: functionCalls[i].Arguments,
					Output:    result.Content,
					Reason:    "command failed in sandbox",
				})
			} else {
				// Normal failure (file not found, bad args, etc.) — let LLM see it
				logger.Info("Tool failed but not sandbox-related, returning to LLM",
					"tool", functionCalls[i].Name, "output_prefix", truncate(result.Content, 100))
			}
		}
	}

	if len(escalations) == 0 {
		return toolResults, nil // No failures
	}

	// Enter escalation pending state
	s.Phase = PhaseEscalationPending
	s.PendingEscalations = escalations
	s.EscalationReceived = false
	s.EscalationResponse = nil

	logger.Info("Waiting for escalation decision", "failed_count", len(escalations))

	// Wait for escalation response
	err := workflow.Await(ctx, func() bool {
		return s.EscalationReceived || s.Interrupted || s.ShutdownRequested
	})
	if err != nil {
		return nil, fmt.Errorf("escalation await failed: %w", err)
	}

	s.PendingEscalations = nil

	if s.Interrupted || s.ShutdownRequested {
		logger.Info("Escalation wait interrupted")
		return toolResults, nil // Return original results
	}

	if s.EscalationResponse == nil {
		return toolResults, nil
	}

	// Re-execute approved tools without sandbox
	approvedSet := make(map[string]bool, len(s.EscalationResponse.Approved))
	for _, id := range s.EscalationResponse.Approved {
		approvedSet[id] = true
	}

	for i, result := range toolResults {
		if !failedIndices[i] || !approvedSet[result.CallID] {
			continue
		}

		logger.Info("Re-executing tool without sandbox", "tool", functionCalls[i].Name)

		// Re-execute without sandbox (no SandboxPolicy)
		reResults, err := executeToolsInParallel(
			ctx,
			[]models.ConversationItem{functionCalls[i]},
			s.ToolSpecs, s.Config.Cwd, s.Config.SessionTaskQueue,
		)
		if err != nil {
			continue // Keep original failed result
		}
		if len(reResults) > 0 {
			toolResults[i] = reResults[0]
		}
	}

	return toolResults, nil
}

// applyApprovalDecision filters function calls based on the approval response.
// Returns approved function calls and denied result items for history.
func applyApprovalDecision(functionCalls []models.ConversationItem, resp *ApprovalResponse) ([]models.ConversationItem, []models.ConversationItem) {
	if resp == nil {
		return functionCalls, nil
	}

	deniedSet := make(map[string]bool, len(resp.Denied))
	for _, id := range resp.Denied {
		deniedSet[id] = true
	}

	var approved []models.ConversationItem
	var denied []models.ConversationItem

	for _, fc := range functionCalls {
		if deniedSet[fc.CallID] {
			falseVal := false
			denied = append(denied, models.ConversationItem{
				Type:   models.ItemTypeFunctionCallOutput,
				CallID: fc.CallID,
				Output: &models.FunctionCallOutputPayload{
					Content: "User denied execution of this tool call.",
					Success: &falseVal,
				},
			})
		} else {
			approved = append(approved, fc)
		}
	}

	return approved, denied
}


// toolCallsKey produces a deterministic hash for a batch of tool calls
// based on tool names and arguments, used for repeat detection.
func toolCallsKey(calls []models.ConversationItem) string {
	// Build a sorted list of "name:args" strings for deterministic ordering.
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Name + ":" + c.Arguments
	}
	sort.Strings(parts)
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// toInt64 converts a JSON-decoded number (float64) to int64.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
