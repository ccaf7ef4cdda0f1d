// Subagent orchestration — manages child workflows within a parent workflow.
//
// Maps to: codex-rs/core/src/tools/handlers/collab.rs, the CollabHandler and
// its spawn/send_input/resume_agent/wait/wait_agents/list_agents/
// rename_agent/close_agent/close_agents submodules. That file calls into
// crate::agent (AgentControl, AgentRole, AgentStatus, MAX_THREAD_SPAWN_DEPTH)
// for the actual state, but crate::agent's own source isn't part of this
// retrieval pack — only its call sites in collab.rs are, so AgentControl/
// AgentInfo/AgentRole below are reconstructed from how collab.rs uses them,
// not ported from agent's own source.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/agentmesh/ccmesh/internal/activities"
	"github.com/agentmesh/ccmesh/internal/agentcore"
	"github.com/agentmesh/ccmesh/internal/collab"
	"github.com/agentmesh/ccmesh/internal/collaberr"
	"github.com/agentmesh/ccmesh/internal/instructions"
	"github.com/agentmesh/ccmesh/internal/models"
	"github.com/agentmesh/ccmesh/internal/ops"
)

// MaxThreadSpawnDepth is the legacy default nesting-depth limit, now only
// used as models.DefaultCollabLimits' MaxSpawnDepth value. Actual spawn/
// resume depth enforcement reads the per-session s.Config.Collab.MaxSpawnDepth
// instead, so a session configured with a different max_spawn_depth actually
// takes effect.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs spawn::handle /
// resume_agent::handle, both of which reject the call once
// exceeds_thread_spawn_depth_limit(child_depth) is true (backed by
// crate::agent::MAX_THREAD_SPAWN_DEPTH, a constant this pack doesn't carry
// the definition of — only its use in collab.rs's own tests).
const MaxThreadSpawnDepth = 1

// closeAgentGracePeriod is how long close_agent waits for the child to finish
// after sending the shutdown signal.
const closeAgentGracePeriod = 5 * time.Second

// waitAgentsPollInterval is the polling cadence wait_agents uses between
// snapshot re-evaluations, per the collaboration controller's wait_agents
// algorithm.
const waitAgentsPollInterval = 50 * time.Millisecond

// ---------------------------------------------------------------------------
// AgentRole — the subagent preset table's role-keyed legacy surface. Kept as
// the config-override switch build_agent_spawn_config dispatches on; the
// actual wire surface callers use is the `preset` string (edit|read|grep|run|
// websearch), parsed into an AgentRole by parseAgentRole.
// ---------------------------------------------------------------------------

type AgentRole string

const (
	AgentRoleDefault      AgentRole = "default"
	AgentRoleOrchestrator AgentRole = "orchestrator"
	AgentRoleWorker       AgentRole = "worker"
	AgentRoleExplorer     AgentRole = "explorer"
	AgentRolePlanner      AgentRole = "planner"
	AgentRoleEdit         AgentRole = "edit"
	AgentRoleRead         AgentRole = "read"
	AgentRoleGrep         AgentRole = "grep"
	AgentRoleRun          AgentRole = "run"
	AgentRoleWebsearch    AgentRole = "websearch"
)

// parseAgentRole converts a preset/legacy agent_type string to AgentRole,
// defaulting to AgentRoleDefault for an empty or unrecognized value.
func parseAgentRole(s string) AgentRole {
	switch s {
	case "orchestrator":
		return AgentRoleOrchestrator
	case "worker":
		return AgentRoleWorker
	case "explorer":
		return AgentRoleExplorer
	case agentcore.PresetRead:
		return AgentRoleRead
	case "planner":
		return AgentRolePlanner
	case agentcore.PresetEdit:
		return AgentRoleEdit
	case agentcore.PresetGrep:
		return AgentRoleGrep
	case agentcore.PresetRun:
		return AgentRoleRun
	case agentcore.PresetWebsearch:
		return AgentRoleWebsearch
	default:
		return AgentRoleDefault
	}
}

// ---------------------------------------------------------------------------
// AgentInfo — tracks a single child workflow's state.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs list_agents::ListAgentItem
// (the fields list_agents reports per thread), plus agentcore.AgentRecord
// ---------------------------------------------------------------------------

// AgentInfo tracks a single spawned sub-agent, combining the Temporal
// child-workflow handle with the agent-record fields the collaboration
// dispatcher exposes through list_agents / wait / wait_agents.
type AgentInfo struct {
	AgentID    string `json:"agent_id"`
	Name       string `json:"name,omitempty"`
	Preset     string `json:"preset,omitempty"`
	Role       AgentRole `json:"role"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`

	Status agentcore.AgentStatus `json:"status"`

	Goal               string   `json:"goal,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	TestCommands       []string `json:"test_commands,omitempty"`
	AllowNestedAgents  bool     `json:"allow_nested_agents"`
	Depth              int      `json:"depth"`

	FinalOutput string `json:"final_output,omitempty"`
	TaskMessage string `json:"task_message"` // Original spawn message

	Closed      bool  `json:"closed"`
	CreatedAtMs int64 `json:"created_at_ms"`
	UpdatedAtMs int64 `json:"updated_at_ms"`
}

// isTerminal reports whether the agent has reached a final status.
func (i *AgentInfo) isTerminal() bool { return i.Status.IsFinal() }

// ---------------------------------------------------------------------------
// AgentControl — manages child workflow lifecycles within a parent.
// Maps to: crate::agent::AgentControl as called from
// codex-rs/core/src/tools/handlers/collab.rs (session.services.agent_control);
// AgentControl's own source isn't in this retrieval pack.
// ---------------------------------------------------------------------------

// AgentControl manages the direct children spawned by one parent workflow.
// Workflow code runs single-threaded under Temporal's cooperative scheduler
// (workflow.Go goroutines only switch at await points), so unlike
// agentcore.Registry — which is driven by plain OS goroutines on the
// worker/CLI side and does need a mutex — this map needs none.
type AgentControl struct {
	// Agents persists across ContinueAsNew (JSON-serialized).
	Agents      map[string]*AgentInfo `json:"agents"`
	ParentDepth int                   `json:"parent_depth"` // 0 = parent, 1 = child

	// childFutures is transient — lost on ContinueAsNew. A ContinueAsNew'd
	// workflow re-derives liveness from Agents' Status field only; it cannot
	// resume awaiting a pre-CAN future, consistent with how the rest of this
	// workflow treats ContinueAsNew as a fresh coroutine tree.
	childFutures map[string]workflow.ChildWorkflowFuture `json:"-"`
}

// NewAgentControl creates a new AgentControl for the given depth.
func NewAgentControl(depth int) *AgentControl {
	return &AgentControl{
		Agents:       make(map[string]*AgentInfo),
		ParentDepth:  depth,
		childFutures: make(map[string]workflow.ChildWorkflowFuture),
	}
}

// ensureChildFutures re-initializes the transient childFutures map after a
// ContinueAsNew deserialization, where it arrives nil (json:"-"). Agents is
// left untouched; a nil Agents here means this AgentControl predates the
// collaboration controller and is handled by the caller.
func (ac *AgentControl) ensureChildFutures() {
	if ac.childFutures == nil {
		ac.childFutures = make(map[string]workflow.ChildWorkflowFuture)
	}
	if ac.Agents == nil {
		ac.Agents = make(map[string]*AgentInfo)
	}
}

// HasActiveChildren returns true if any child is not in a terminal state.
func (ac *AgentControl) HasActiveChildren() bool {
	for _, info := range ac.Agents {
		if !info.isTerminal() {
			return true
		}
	}
	return false
}

// activeFanOut counts non-closed, non-final children (PendingInit/Running).
func (ac *AgentControl) activeFanOut() int {
	n := 0
	for _, info := range ac.Agents {
		if !info.Closed && !info.isTerminal() {
			n++
		}
	}
	return n
}

// activeChildIDs lists the IDs of non-final children, the default
// wait_agents target set when no explicit ids are given.
func (ac *AgentControl) activeChildIDs() []agentcore.ThreadId {
	var out []agentcore.ThreadId
	for id, info := range ac.Agents {
		if !info.isTerminal() {
			out = append(out, agentcore.ThreadId(id))
		}
	}
	return out
}

// statusSnapshot builds the map EvaluateWaitAgentsSnapshot consumes.
func (ac *AgentControl) statusSnapshot(ids []agentcore.ThreadId) map[agentcore.ThreadId]agentcore.AgentStatus {
	snap := make(map[agentcore.ThreadId]agentcore.AgentStatus, len(ids))
	for _, id := range ids {
		if info, ok := ac.Agents[string(id)]; ok {
			snap[id] = info.Status
		} else {
			snap[id] = agentcore.NotFound()
		}
	}
	return snap
}

// findByName resolves an agent by its assigned name, for rename_agent /
// close_agent's by-name lookup convenience.
func (ac *AgentControl) findByName(name string) *AgentInfo {
	for _, info := range ac.Agents {
		if info.Name == name {
			return info
		}
	}
	return nil
}

// nextAgentID generates a deterministic agent ID using SideEffect.
func nextAgentID(ctx workflow.Context) string {
	var nanos int64
	encoded := workflow.SideEffect(ctx, func(ctx workflow.Context) interface{} {
		return workflow.Now(ctx).UnixNano()
	})
	_ = encoded.Get(&nanos)
	return fmt.Sprintf("agent-%d", nanos)
}

// ---------------------------------------------------------------------------
// Collab tool names — used for dispatch and approval classification.
// ---------------------------------------------------------------------------

var collabToolNames = map[string]bool{
	"spawn_agent":  true,
	"send_input":   true,
	"wait":         true,
	"wait_agents":  true,
	"list_agents":  true,
	"rename_agent": true,
	"close_agent":  true,
	"close_agents": true,
	"resume_agent": true,
}

func isCollabToolCall(name string) bool {
	return collabToolNames[name]
}

// ---------------------------------------------------------------------------
// handleCollabToolCall dispatches to the correct collab handler.
// ---------------------------------------------------------------------------

func (s *SessionState) handleCollabToolCall(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	if s.AgentCtl == nil {
		return collabErrFromErr(fc.CallID, collaberr.UnsupportedOperation())
	}
	switch fc.Name {
	case "spawn_agent":
		return s.handleSpawnAgent(ctx, fc)
	case "send_input":
		return s.handleSendInput(ctx, fc)
	case "wait":
		return s.handleWait(ctx, fc)
	case "wait_agents":
		return s.handleWaitAgents(ctx, fc)
	case "list_agents":
		return s.handleListAgents(ctx, fc)
	case "rename_agent":
		return s.handleRenameAgent(ctx, fc)
	case "close_agent":
		return s.handleCloseAgent(ctx, fc)
	case "close_agents":
		return s.handleCloseAgents(ctx, fc)
	case "resume_agent":
		return s.handleResumeAgent(ctx, fc)
	default:
		return collabErrFromErr(fc.CallID, collaberr.UnsupportedTool(fc.Name))
	}
}

// collabErrFromErr wraps a *collaberr.Error as a function_call_output. Fatal
// errors end the turn (returned as a Go error); RespondToModel errors are
// surfaced to the model as a normal (failed) tool result.
func collabErrFromErr(callID string, cerr *collaberr.Error) (models.ConversationItem, error) {
	if cerr.Kind == collaberr.Fatal {
		return models.ConversationItem{}, cerr
	}
	return collabErrorOutput(callID, cerr.Message), nil
}

// ---------------------------------------------------------------------------
// handleSpawnAgent — spawn a child workflow.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs spawn::handle
// ---------------------------------------------------------------------------

type spawnAgentArgs struct {
	Items              []ops.UserInput `json:"items"`
	AgentType          string          `json:"agent_type"`
	Name               string          `json:"name"`
	Label              *string         `json:"label"`
	AcceptanceCriteria []string        `json:"acceptance_criteria"`
	TestCommands       []string        `json:"test_commands"`
	AllowNestedAgents  bool            `json:"allow_nested_agents"`
	Preset             string          `json:"preset"`
	Model              string          `json:"model"`
	ReasoningEffort    string          `json:"reasoning_effort"`
	ReasoningSummary   string          `json:"reasoning_summary"`
	ApprovalPolicy     string          `json:"approval_policy"`
	SandboxMode        string          `json:"sandbox_mode"`
}

func (s *SessionState) handleSpawnAgent(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	var args spawnAgentArgs
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RejectLegacyLabel(args.Label); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RequireItems(args.Items); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}

	preset, cerr := collab.ParsePreset(args.Preset, agentcore.AllowedPresets)
	if cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}

	childDepth := s.AgentCtl.ParentDepth + 1
	limits := collab.SpawnLimits{
		MaxDepth:          s.Config.Collab.MaxSpawnDepth,
		MaxActiveFanOut:   s.Config.Collab.MaxActiveSubagentsPerThread,
		AllowNestedAgents: s.AllowNestedAgents,
	}
	if err := collab.ValidateSpawnLimits(limits, childDepth, s.AgentCtl.activeFanOut()); err != nil {
		return collabErrFromErr(fc.CallID, err.(*collaberr.Error))
	}

	msg := collab.FlattenTextItems(args.Items)
	role := parseAgentRole(preset)
	if role == AgentRoleDefault && args.AgentType != "" {
		role = parseAgentRole(args.AgentType)
	}
	agentID := nextAgentID(ctx)
	name := args.Name
	if name == "" {
		name = agentID
	}

	childInput := buildAgentSpawnConfig(s.Config, role, msg, childDepth, agentID, args.AllowNestedAgents)

	resolvedModel, cerr := resolveSpawnModelOverrides(s.Config, childInput.Config.Model, args)
	if cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	childInput.Config.Model.Model = resolvedModel.Model
	childInput.Config.Model.ReasoningEffort = resolvedModel.ReasoningEffort
	childInput.Config.Model.ReasoningSummary = resolvedModel.ReasoningSummary

	resolvedPerms, cerr := resolveSpawnPermissionOverrides(s.Config, args)
	if cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	childInput.Config.ApprovalMode = models.ApprovalMode(resolvedPerms.Approval.String())
	childInput.Config.SandboxMode = resolvedPerms.Sandbox.String()

	nowMs := workflow.Now(ctx).UnixMilli()

	info := &AgentInfo{
		AgentID:            agentID,
		Name:               name,
		Preset:             preset,
		Role:               role,
		Status:             agentcore.PendingInit(),
		Goal:               msg,
		AcceptanceCriteria: args.AcceptanceCriteria,
		TestCommands:       args.TestCommands,
		AllowNestedAgents:  args.AllowNestedAgents,
		Depth:              childDepth,
		TaskMessage:        msg,
		CreatedAtMs:        nowMs,
		UpdatedAtMs:        nowMs,
	}
	s.AgentCtl.Agents[agentID] = info

	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID: s.ConversationID + "/" + agentID,
	})
	future := workflow.ExecuteChildWorkflow(childCtx, "AgenticWorkflow", childInput)

	var childExec workflow.Execution
	if err := future.GetChildWorkflowExecution().Get(ctx, &childExec); err != nil {
		info.Status = agentcore.Errored(err.Error())
		return collabErrorOutput(fc.CallID, fmt.Sprintf("failed to start child workflow: %v", err)), nil
	}

	info.WorkflowID = childExec.ID
	info.RunID = childExec.RunID
	info.Status = agentcore.Running()

	s.AgentCtl.childFutures[agentID] = future
	s.startChildCompletionWatcher(ctx, agentID, future)

	logger.Info("Spawned child agent",
		"agent_id", agentID, "name", name, "preset", preset,
		"child_depth", childDepth, "child_workflow_id", childExec.ID)

	return collabSuccessOutput(fc.CallID, map[string]interface{}{
		"agent_id": agentID,
		"name":     name,
	}), nil
}

// ---------------------------------------------------------------------------
// handleSendInput — send a message to a running child.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs send_input::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleSendInput(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	var args struct {
		AgentID   string          `json:"agent_id"`
		Items     []ops.UserInput `json:"items"`
		Interrupt bool            `json:"interrupt"`
	}
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RequireField(args.AgentID, "agent_id"); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RequireItems(args.Items); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}

	info, ok := s.AgentCtl.Agents[args.AgentID]
	if !ok {
		return collabErrFromErr(fc.CallID, collaberr.ThreadNotFound(args.AgentID, ""))
	}
	if info.Closed || info.isTerminal() {
		return collabErrFromErr(fc.CallID, collaberr.InternalAgentDied(args.AgentID))
	}

	msg := collab.FlattenTextItems(args.Items)
	signal := AgentInputSignal{Content: msg, Interrupt: args.Interrupt}

	if err := workflow.SignalExternalWorkflow(ctx, info.WorkflowID, info.RunID, SignalAgentInput, signal).Get(ctx, nil); err != nil {
		logger.Warn("Failed to signal child agent", "agent_id", args.AgentID, "error", err)
		return collabErrorOutput(fc.CallID, fmt.Sprintf("failed to send input to agent %q: %v", args.AgentID, err)), nil
	}

	logger.Info("Sent input to child agent", "agent_id", args.AgentID, "interrupt", args.Interrupt)

	return collabSuccessOutput(fc.CallID, map[string]interface{}{
		"submission_id": fmt.Sprintf("input-%s-%d", args.AgentID, workflow.Now(ctx).UnixNano()),
	}), nil
}

// ---------------------------------------------------------------------------
// handleWait — wait for a small, explicit set of agents to reach terminal
// state. Maps to: codex-rs/core/src/tools/handlers/collab.rs wait::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleWait(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	var args struct {
		AgentIDs  []string `json:"agent_ids"`
		TimeoutMs *int64   `json:"timeout_ms"`
	}
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if len(args.AgentIDs) == 0 {
		return collabErrFromErr(fc.CallID, collaberr.WaitAgentIDsEmpty())
	}

	timeoutMs, err := collab.ResolveWaitTimeoutMs(args.TimeoutMs, s.Config.Collab.DefaultWaitTimeoutMs)
	if err != nil {
		return collabErrorOutput(fc.CallID, err.Error()), nil
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	s.Phase = PhaseWaitingForAgents

	anyTerminal := func() bool {
		for _, id := range args.AgentIDs {
			if info, ok := s.AgentCtl.Agents[id]; ok && info.isTerminal() {
				return true
			}
		}
		return false
	}

	timedOut := false
	if timeout > 0 && !anyTerminal() {
		ok, awaitErr := workflow.AwaitWithTimeout(ctx, timeout, func() bool {
			return anyTerminal() || s.Interrupted || s.ShutdownRequested
		})
		if awaitErr != nil {
			return models.ConversationItem{}, fmt.Errorf("wait await failed: %w", awaitErr)
		}
		timedOut = !ok
	}

	logger.Info("Wait completed", "agent_ids", args.AgentIDs, "timed_out", timedOut)

	// Only ids that reached a final status (or are unknown, reported as
	// NotFound) get an entry; a still-Running id is omitted entirely.
	statusMap := make(map[string]interface{}, len(args.AgentIDs))
	for _, id := range args.AgentIDs {
		info, ok := s.AgentCtl.Agents[id]
		if !ok {
			statusMap[id] = map[string]interface{}{"status": agentcore.NotFound().Kind.String()}
			continue
		}
		if !info.isTerminal() {
			continue
		}
		entry := map[string]interface{}{"status": info.Status.Kind.String()}
		if info.FinalOutput != "" {
			entry["final_output"] = info.FinalOutput
		}
		statusMap[id] = entry
	}

	// wait reports no success flag at all; the caller reads status/timed_out.
	return collabRawOutput(fc.CallID, map[string]interface{}{
		"status":    statusMap,
		"timed_out": timedOut,
	}, nil), nil
}

// ---------------------------------------------------------------------------
// handleWaitAgents — poll a target set (explicit ids, or all active
// children) until mode's completion predicate is satisfied or timeout.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs wait_agents::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleWaitAgents(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	var args struct {
		AgentIDs  []string `json:"agent_ids"`
		Mode      string   `json:"mode"`
		TimeoutMs *int64   `json:"timeout_ms"`
	}
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}

	mode := collab.ParseWaitMode(args.Mode)
	timeoutMs, err := collab.ResolveWaitTimeoutMs(args.TimeoutMs, s.Config.Collab.DefaultWaitTimeoutMs)
	if err != nil {
		return collabErrorOutput(fc.CallID, err.Error()), nil
	}

	requested := make([]agentcore.ThreadId, 0, len(args.AgentIDs))
	for _, id := range args.AgentIDs {
		requested = append(requested, agentcore.ThreadId(id))
	}
	self := agentcore.ThreadId("")
	targets := collab.ResolveWaitAgentsTargets(self, requested, s.AgentCtl.activeChildIDs())

	s.Phase = PhaseWaitingForAgents

	if len(targets) == 0 {
		noTargetsSuccess := true
		return collabRawOutput(fc.CallID, map[string]interface{}{
			"status":        map[string]interface{}{},
			"completed":     []string{},
			"timed_out":     false,
			"wakeup_reason": string(collab.WakeupNoTargets),
		}, &noTargetsSuccess), nil
	}

	deadline := time.Duration(timeoutMs) * time.Millisecond
	var elapsed time.Duration
	var done bool
	var completed []agentcore.ThreadId
	var reason collab.WakeupReason

	for {
		snap := s.AgentCtl.statusSnapshot(targets)
		done, completed, reason = collab.EvaluateWaitAgentsSnapshot(snap, mode)
		if done {
			break
		}
		if deadline > 0 && elapsed >= deadline {
			reason = collab.WakeupTimeout
			break
		}
		step := waitAgentsPollInterval
		if deadline > 0 && deadline-elapsed < step {
			step = deadline - elapsed
		}
		if ok, awaitErr := workflow.AwaitWithTimeout(ctx, step, func() bool {
			return s.Interrupted || s.ShutdownRequested
		}); awaitErr != nil {
			return models.ConversationItem{}, fmt.Errorf("wait_agents await failed: %w", awaitErr)
		} else if ok {
			break // interrupted or shutting down
		}
		elapsed += step
	}

	timedOut := reason == collab.WakeupTimeout
	logger.Info("wait_agents completed", "mode", mode, "targets", len(targets), "timed_out", timedOut)

	statusMap := make(map[string]interface{}, len(targets))
	anyErrored := false
	for _, id := range targets {
		info, ok := s.AgentCtl.Agents[string(id)]
		if !ok {
			statusMap[string(id)] = map[string]interface{}{"status": agentcore.NotFound().Kind.String()}
			continue
		}
		statusMap[string(id)] = map[string]interface{}{"status": info.Status.Kind.String()}
		if info.Status.Kind == agentcore.StatusErrored {
			anyErrored = true
		}
	}
	completedIDs := make([]string, 0, len(completed))
	for _, id := range completed {
		completedIDs = append(completedIDs, string(id))
	}

	success := !timedOut && !anyErrored
	return collabRawOutput(fc.CallID, map[string]interface{}{
		"status":        statusMap,
		"completed":     completedIDs,
		"timed_out":     timedOut,
		"wakeup_reason": string(reason),
	}, &success), nil
}

// ---------------------------------------------------------------------------
// handleListAgents — list this thread's direct children.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs list_agents::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleListAgents(_ workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	var args struct {
		IncludeClosed bool `json:"include_closed"`
	}
	_ = collab.ParseArguments(fc.Arguments, &args) // empty arguments object is valid

	var list []map[string]interface{}
	for _, info := range s.AgentCtl.Agents {
		if info.Closed && !args.IncludeClosed {
			continue
		}
		list = append(list, map[string]interface{}{
			"agent_id": info.AgentID,
			"name":     info.Name,
			"preset":   info.Preset,
			"status":   info.Status.Kind.String(),
			"depth":    info.Depth,
			"closed":   info.Closed,
		})
	}

	return collabSuccessOutput(fc.CallID, map[string]interface{}{
		"agents": list,
	}), nil
}

// ---------------------------------------------------------------------------
// handleRenameAgent — rename a live or closed agent record.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs rename_agent::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleRenameAgent(_ workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	var args struct {
		AgentID string `json:"agent_id"`
		Name    string `json:"name"`
	}
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RequireField(args.AgentID, "agent_id"); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RequireField(args.Name, "name"); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}

	info, ok := s.AgentCtl.Agents[args.AgentID]
	if !ok {
		return collabErrFromErr(fc.CallID, collaberr.ThreadNotFound(args.AgentID, "use list_agents to see live agent ids"))
	}
	info.Name = args.Name

	return collabSuccessOutput(fc.CallID, map[string]interface{}{
		"agent_id": args.AgentID,
		"name":     args.Name,
	}), nil
}

// ---------------------------------------------------------------------------
// handleCloseAgent — shut down a single child workflow.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs close_agent::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleCloseAgent(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	var args struct {
		AgentID string `json:"agent_id"`
	}
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RequireField(args.AgentID, "agent_id"); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}

	result, err := s.closeOneAgent(ctx, args.AgentID)
	if err != nil {
		return collabErrFromErr(fc.CallID, err)
	}
	return collabSuccessOutput(fc.CallID, result), nil
}

// closeOneAgent signals shutdown to one child, waits out the grace period,
// and marks the record closed. Shared by handleCloseAgent and
// handleCloseAgents.
func (s *SessionState) closeOneAgent(ctx workflow.Context, agentID string) (map[string]interface{}, *collaberr.Error) {
	logger := workflow.GetLogger(ctx)

	info, ok := s.AgentCtl.Agents[agentID]
	if !ok {
		return nil, collaberr.ThreadNotFound(agentID, "")
	}

	if !info.isTerminal() {
		if err := workflow.SignalExternalWorkflow(ctx, info.WorkflowID, info.RunID, SignalAgentShutdown, nil).Get(ctx, nil); err != nil {
			logger.Warn("Failed to signal shutdown to child agent", "agent_id", agentID, "error", err)
		}
		_, _ = workflow.AwaitWithTimeout(ctx, closeAgentGracePeriod, func() bool {
			return info.isTerminal()
		})
		if !info.isTerminal() {
			info.Status = agentcore.Shutdown()
		}
	}
	info.Closed = true
	info.UpdatedAtMs = workflow.Now(ctx).UnixMilli()

	logger.Info("Closed child agent", "agent_id", agentID, "status", info.Status.Kind.String())

	result := map[string]interface{}{
		"agent_id": agentID,
		"status":   info.Status.Kind.String(),
	}
	if info.FinalOutput != "" {
		result["final_output"] = info.FinalOutput
	}
	return result, nil
}

// cascadeShutdownChildren signals shutdown to every live, non-closed direct
// child when auto_close_on_parent_shutdown is set. Each child's own
// agent_shutdown signal handler runs this same cascade against its own
// children, so the shutdown propagates down the whole subtree rather than
// just one level.
// Maps to: codex-rs's shutdown_agent_with_descendants, the
// auto_close_on_parent_shutdown-gated cascade referenced by collab.rs's
// shutdown path (the recursive descendant walk itself isn't part of this
// retrieval pack; here it falls out of each child re-running the cascade on
// its own children when its own agent_shutdown signal arrives).
func (s *SessionState) cascadeShutdownChildren(ctx workflow.Context) {
	if s.AgentCtl == nil || !s.Config.Collab.AutoCloseOnParentShutdown {
		return
	}
	logger := workflow.GetLogger(ctx)
	for id, info := range s.AgentCtl.Agents {
		if info.Closed || info.isTerminal() {
			continue
		}
		if err := workflow.SignalExternalWorkflow(ctx, info.WorkflowID, info.RunID, SignalAgentShutdown, nil).Get(ctx, nil); err != nil {
			logger.Warn("Failed to cascade shutdown to child agent", "agent_id", id, "error", err)
		}
	}
}

// ---------------------------------------------------------------------------
// handleCloseAgents — batch-close, deduplicated, with ignore_missing.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs close_agents::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleCloseAgents(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	var args struct {
		AgentIDs       []string `json:"agent_ids"`
		IgnoreMissing  bool     `json:"ignore_missing"`
	}
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if len(args.AgentIDs) == 0 {
		return collabErrFromErr(fc.CallID, collaberr.MissingField("agent_ids"))
	}

	// Every id gets a result, whatever its own outcome; one id's failure
	// never aborts the ids after it.
	ids := collab.DedupPreserveOrder(args.AgentIDs)
	results := make([]map[string]interface{}, 0, len(ids))
	success := true
	for _, id := range ids {
		res, cerr := s.closeOneAgent(ctx, id)
		if cerr != nil {
			if args.IgnoreMissing && cerr.Message == collaberr.ThreadNotFound(id, "").Message {
				results = append(results, map[string]interface{}{
					"agent_id": id,
					"status":   agentcore.NotFound().Kind.String(),
					"closed":   false,
					"error":    nil,
				})
				continue
			}
			success = false
			results = append(results, map[string]interface{}{
				"agent_id": id,
				"status":   agentcore.NotFound().Kind.String(),
				"closed":   false,
				"error":    cerr.Message,
			})
			continue
		}
		res["closed"] = true
		res["error"] = nil
		results = append(results, res)
	}

	return collabRawOutput(fc.CallID, map[string]interface{}{
		"results": results,
	}, &success), nil
}

// ---------------------------------------------------------------------------
// handleResumeAgent — resume a closed agent from its persisted rollout.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs resume_agent::handle
// ---------------------------------------------------------------------------

func (s *SessionState) handleResumeAgent(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	var args struct {
		AgentID string `json:"agent_id"`
	}
	if cerr := collab.ParseArguments(fc.Arguments, &args); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}
	if cerr := collab.RequireField(args.AgentID, "agent_id"); cerr != nil {
		return collabErrFromErr(fc.CallID, cerr)
	}

	info, ok := s.AgentCtl.Agents[args.AgentID]
	if !ok {
		return collabErrFromErr(fc.CallID, collaberr.ThreadNotFound(args.AgentID, "use list_agents to see closed agent ids"))
	}
	if !info.Closed {
		return collabErrorOutput(fc.CallID, fmt.Sprintf("agent %q is not closed; close_agent it first or use send_input", args.AgentID)), nil
	}

	items, found := s.loadAgentRollout(ctx, args.AgentID)
	if !found {
		return collabErrorOutput(fc.CallID, fmt.Sprintf("agent %q has no persisted rollout to resume from", args.AgentID)), nil
	}

	childDepth := info.Depth
	childInput := buildAgentResumeConfig(s.Config, info.Role, "", childDepth, args.AgentID, info.AllowNestedAgents)
	childInput.ResumedItems = items

	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID: s.ConversationID + "/" + args.AgentID + "/resume-" + fmt.Sprint(workflow.Now(ctx).UnixNano()),
	})
	future := workflow.ExecuteChildWorkflow(childCtx, "AgenticWorkflow", childInput)

	var childExec workflow.Execution
	if err := future.GetChildWorkflowExecution().Get(ctx, &childExec); err != nil {
		return collabErrorOutput(fc.CallID, fmt.Sprintf("failed to resume agent %q: %v", args.AgentID, err)), nil
	}

	info.WorkflowID = childExec.ID
	info.RunID = childExec.RunID
	info.Status = agentcore.Running()
	info.Closed = false
	info.UpdatedAtMs = workflow.Now(ctx).UnixMilli()

	s.AgentCtl.childFutures[args.AgentID] = future
	s.startChildCompletionWatcher(ctx, args.AgentID, future)

	logger.Info("Resumed child agent", "agent_id", args.AgentID, "child_workflow_id", childExec.ID)

	return collabSuccessOutput(fc.CallID, map[string]interface{}{
		"agent_id": args.AgentID,
	}), nil
}

// loadAgentRollout fetches a closed agent's persisted conversation history
// via the LoadRollout activity. found is false if CodexHome isn't
// configured or no rollout file exists for agentID (including because the
// agent was never actually persisted, e.g. closed before this feature
// existed for it).
func (s *SessionState) loadAgentRollout(ctx workflow.Context, agentID string) ([]models.ConversationItem, bool) {
	if s.Config.CodexHome == "" {
		return nil, false
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

	in := activities.LoadRolloutInput{CodexHome: s.Config.CodexHome, AgentID: agentID}
	var out activities.LoadRolloutOutput
	if err := workflow.ExecuteActivity(loadCtx, "LoadRollout", in).Get(ctx, &out); err != nil {
		workflow.GetLogger(ctx).Warn("failed to load agent rollout", "agent_id", agentID, "error", err)
		return nil, false
	}
	return out.Items, out.Found
}

// ---------------------------------------------------------------------------
// startChildCompletionWatcher — goroutine that watches for child completion.
// ---------------------------------------------------------------------------

func (s *SessionState) startChildCompletionWatcher(ctx workflow.Context, agentID string, future workflow.ChildWorkflowFuture) {
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var result WorkflowResult
		err := future.Get(gCtx, &result)

		info, ok := s.AgentCtl.Agents[agentID]
		if !ok {
			return
		}

		if err != nil {
			info.Status = agentcore.Errored(err.Error())
		} else {
			info.Status = agentcore.Completed(result.FinalMessage)
			info.FinalOutput = result.FinalMessage
		}
		info.UpdatedAtMs = workflow.Now(gCtx).UnixMilli()
	})
}

// resolveSpawnModelOverrides applies apply_spawn_model_overrides to a
// spawn/resume request: the child's preset-resolved model (roleModel)
// serves as the precedence chain's "preset" layer, and the parent turn's
// own model is the fallback. The catalog is built offline from the
// parent's current model plus every model named in its preset table,
// since the workflow cannot perform a live model-list fetch.
func resolveSpawnModelOverrides(parentConfig models.SessionConfiguration, roleModel models.ModelConfig, args spawnAgentArgs) (collab.ResolvedModelConfig, *collaberr.Error) {
	catalog := collab.ModelCatalog{Models: []string{parentConfig.Model.Model, roleModel.Model}}
	for _, preset := range parentConfig.Collab.Presets {
		if preset.Model != "" {
			catalog.Models = append(catalog.Models, preset.Model)
		}
	}

	resolved, err := collab.ApplySpawnModelOverrides(
		catalog,
		parentConfig.Model.Model,
		collab.ModelOverrideInputs{Explicit: args.Model, CurrentValue: roleModel.Model},
		collab.ModelOverrideInputs{Explicit: args.ReasoningEffort, CurrentValue: roleModel.ReasoningEffort},
		collab.ModelOverrideInputs{Explicit: args.ReasoningSummary, CurrentValue: roleModel.ReasoningSummary},
	)
	if err != nil {
		return collab.ResolvedModelConfig{}, err.(*collaberr.Error)
	}
	return resolved, nil
}

// resolveSpawnPermissionOverrides applies apply_spawn_permission_overrides,
// comparing a requested approval/sandbox override against the parent
// turn's own level.
func resolveSpawnPermissionOverrides(parentConfig models.SessionConfiguration, args spawnAgentArgs) (collab.ResolvedPermissions, *collaberr.Error) {
	parentApproval, err := agentcore.ParseApprovalLevel(string(parentConfig.ApprovalMode))
	if err != nil {
		parentApproval = agentcore.ApprovalOnRequest
	}
	parentSandbox, err := agentcore.ParseSandboxLevel(parentConfig.SandboxMode)
	if err != nil {
		parentSandbox = agentcore.SandboxWorkspaceWrite
	}

	resolved, cerr := collab.ApplySpawnPermissionOverrides(collab.PermissionOverrideInputs{
		RequestedApproval: args.ApprovalPolicy,
		RequestedSandbox:  args.SandboxMode,
		ParentApproval:    parentApproval,
		ParentSandbox:     parentSandbox,
		AllowEscalation:   parentConfig.Collab.AllowSubagentPermissionEscalation,
	})
	if cerr != nil {
		return collab.ResolvedPermissions{}, cerr.(*collaberr.Error)
	}
	return resolved, nil
}

// ---------------------------------------------------------------------------
// buildAgentSpawnConfig / buildAgentResumeConfig — build WorkflowInput for a
// child workflow.
//
// Maps to: codex-rs/core/src/tools/handlers/collab.rs spawn::handle /
// resume_agent::handle, which assemble the child's config the same way
// (clone parent config, apply depth/tool limits, then role overrides);
// the exact split into build_agent_spawn_config/build_agent_resume_config
// helper functions is this package's own factoring, not a ported one.
// ---------------------------------------------------------------------------

// allowNestedAgents is the new child's own requested allow_nested_agents
// flag, carried on WorkflowInput so the child's own SessionState can later
// check its own flag if asked to spawn a grandchild (see handleSpawnAgent's
// use of s.AllowNestedAgents, not the grandchild call's own args).
func buildAgentSpawnConfig(parentConfig models.SessionConfiguration, role AgentRole, message string, depth int, agentID string, allowNestedAgents bool) WorkflowInput {
	childConfig := buildAgentSharedConfig(parentConfig, depth)
	childConfig.BaseInstructions = parentConfig.BaseInstructions
	applyRoleOverrides(&childConfig, role)

	return WorkflowInput{
		ConversationID:    agentID,
		AgentID:           agentID,
		UserMessage:       message,
		Config:            childConfig,
		Depth:             depth,
		AllowNestedAgents: allowNestedAgents,
	}
}

// buildAgentResumeConfig mirrors buildAgentSpawnConfig but leaves
// BaseInstructions empty so the resumed agent inherits it from its rollout.
func buildAgentResumeConfig(parentConfig models.SessionConfiguration, role AgentRole, message string, depth int, agentID string, allowNestedAgents bool) WorkflowInput {
	childConfig := buildAgentSharedConfig(parentConfig, depth)
	applyRoleOverrides(&childConfig, role)

	return WorkflowInput{
		ConversationID:    agentID,
		AgentID:           agentID,
		UserMessage:       message,
		Config:            childConfig,
		Depth:             depth,
		AllowNestedAgents: allowNestedAgents,
	}
}

// buildAgentSharedConfig clones parent config and applies shared child settings.
// Maps to: codex-rs/core/src/tools/handlers/collab.rs spawn::handle's config
// cloning/depth-limit step (no separate build_agent_shared_config function
// exists there; this helper factors out logic shared by spawn and resume).
func buildAgentSharedConfig(parentConfig models.SessionConfiguration, depth int) models.SessionConfiguration {
	cfg := parentConfig
	cfg.Tools.EnabledTools = append([]string(nil), parentConfig.Tools.EnabledTools...)

	if depth >= parentConfig.Collab.MaxSpawnDepth {
		cfg.Tools.RemoveTools("collab")
	}

	return cfg
}

// applyRoleOverrides modifies the config based on the agent role/preset.
// Maps to: the per-preset tool/model overrides applied in codex-rs/core/src/
// tools/handlers/collab.rs spawn::handle (the preset table lookup and
// tool-removal calls); AgentRole's own apply_to_config method, if any, is
// not part of this retrieval pack.
func applyRoleOverrides(cfg *models.SessionConfiguration, role AgentRole) {
	preset, ok := cfg.Collab.Presets[string(role)]
	if ok {
		if preset.Model != "" && cfg.Model.Provider == "openai" {
			cfg.Model.Model = preset.Model
		}
		if preset.ReasoningEffort != "" {
			cfg.Model.ReasoningEffort = preset.ReasoningEffort
		}
		if len(preset.EnabledTools) > 0 {
			cfg.Tools.EnabledTools = append([]string(nil), preset.EnabledTools...)
		}
	}

	switch role {
	case AgentRoleExplorer, AgentRoleRead:
		cfg.Tools.RemoveTools("write_file", "apply_patch", "request_user_input")
		if cfg.Model.ReasoningEffort == "" {
			cfg.Model.ReasoningEffort = "medium"
		}
		if cfg.Model.Provider == "openai" && cfg.Model.Model == "" {
			cfg.Model.Model = models.ExplorerPresetModel
		}
	case AgentRolePlanner:
		cfg.Tools.RemoveTools("write_file", "apply_patch", "collab")
		cfg.BaseInstructions = instructions.PlannerBaseInstructions
	case AgentRoleOrchestrator:
		cfg.Tools.RemoveTools("write_file", "apply_patch", "request_user_input")
		cfg.BaseInstructions = instructions.OrchestratorBaseInstructions
	case AgentRoleWorker, AgentRoleEdit, AgentRoleGrep, AgentRoleRun, AgentRoleWebsearch:
		cfg.Tools.RemoveTools("request_user_input")
	case AgentRoleDefault:
		cfg.Tools.RemoveTools("request_user_input")
	}
}

// ---------------------------------------------------------------------------
// extractFinalMessage scans history for the last assistant message.
// Used to populate WorkflowResult.FinalMessage for child workflows.
// ---------------------------------------------------------------------------

func extractFinalMessage(items []models.ConversationItem) string {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Type == models.ItemTypeAssistantMessage && items[i].Content != "" {
			return items[i].Content
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Helper: build FunctionCallOutput items for collab tool responses.
// ---------------------------------------------------------------------------

func collabSuccessOutput(callID string, data map[string]interface{}) models.ConversationItem {
	content, _ := json.Marshal(data)
	trueVal := true
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: &models.FunctionCallOutputPayload{
			Content: string(content),
			Success: &trueVal,
		},
	}
}

// collabRawOutput is collabSuccessOutput's non-blanket sibling: success is
// whatever the caller passes (nil for operations that carry no success flag
// at all, e.g. wait; a computed value for wait_agents/close_agents).
func collabRawOutput(callID string, data map[string]interface{}, success *bool) models.ConversationItem {
	content, _ := json.Marshal(data)
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: &models.FunctionCallOutputPayload{
			Content: string(content),
			Success: success,
		},
	}
}

func collabErrorOutput(callID string, message string) models.ConversationItem {
	falseVal := false
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: &models.FunctionCallOutputPayload{
			Content: message,
			Success: &falseVal,
		},
	}
}
