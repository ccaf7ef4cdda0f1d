package agentcore

// AgentRecord is the durable record of a spawned thread.
//
// Maps to: codex-rs/core/src/tools/handlers/collab.rs list_agents::ListAgentItem,
// the shape returned by AgentControl::list_agents in that file's spawn/close/
// list_agents handlers.
type AgentRecord struct {
	AgentID            ThreadId
	CreatorThreadID    *ThreadId
	Label              *string // deprecated, use Name via metadata table below
	Name               *string
	Goal               string
	AcceptanceCriteria []string
	TestCommands       []string
	AllowNestedAgents  bool
	Status             AgentStatus
	CreatedAtMs        int64
	UpdatedAtMs        int64
	Closed             bool
}

// AgentSpawnMetadata is the subset of AgentRecord supplied at creation
// time, plus the creator thread id.
type AgentSpawnMetadata struct {
	CreatorThreadID    *ThreadId
	Name               *string
	Goal               string
	AcceptanceCriteria []string
	TestCommands       []string
	AllowNestedAgents  bool
}

// Preset names recognized by SpawnConfigOverrides.Preset.
const (
	PresetEdit      = "edit"
	PresetRead      = "read"
	PresetGrep      = "grep"
	PresetRun       = "run"
	PresetWebsearch = "websearch"
)

// AllowedPresets is the ordered set of valid preset names, used for
// rejection messages.
var AllowedPresets = []string{PresetEdit, PresetRead, PresetGrep, PresetRun, PresetWebsearch}

// SpawnConfigOverrides carries the caller-supplied overrides for a spawn
// or resume operation.
type SpawnConfigOverrides struct {
	Preset           string
	Model            string
	ReasoningEffort  string
	ReasoningSummary string
	ApprovalPolicy   string
	SandboxMode      string
}

// ThreadSpawn tags a session as a child spawned at a given depth from a
// named parent thread.
type ThreadSpawn struct {
	ParentThreadID ThreadId
	Depth          int
}
