package ops

// OpKind tags an Op variant (UI -> core).
type OpKind string

const (
	OpUserInput           OpKind = "user_input"
	OpUserInputAnswer     OpKind = "user_input_answer"
	OpAddToHistory        OpKind = "add_to_history"
	OpInterrupt           OpKind = "interrupt"
	OpShutdown            OpKind = "shutdown"
	OpRunUserShellCommand OpKind = "run_user_shell_command"
	OpOverrideTurnContext OpKind = "override_turn_context"
	OpListCustomPrompts   OpKind = "list_custom_prompts"
	OpListSkills          OpKind = "list_skills"
	OpListMcpTools        OpKind = "list_mcp_tools"
	OpReview              OpKind = "review"
	OpCompact             OpKind = "compact"
)

// QuestionAnswer is the per-question answer payload of UserInputAnswer:
// `{answers: [string]}`, built per spec.md §4.6 as [selected option
// label (if committed), trimmed note (if non-empty)] — either element
// may be omitted.
type QuestionAnswer struct {
	Answers []string `json:"answers"`
}

// UserInputAnswerResponse is the `response` field of Op::UserInputAnswer.
type UserInputAnswerResponse struct {
	Answers map[string]QuestionAnswer `json:"answers"`
}

// Op is a tagged-union UI->core operation. Only the fields relevant to
// the Kind are populated, matching the teacher's flat-struct style for
// protocol unions (state.go).
type Op struct {
	Kind OpKind `json:"kind"`

	// user_input
	Items []UserInput `json:"items,omitempty"`

	// user_input_answer
	TurnID   string                  `json:"turn_id,omitempty"`
	Response UserInputAnswerResponse `json:"response,omitempty"`

	// add_to_history
	Text string `json:"text,omitempty"`

	// run_user_shell_command
	Command string `json:"command,omitempty"`

	// override_turn_context
	Cwd            *string `json:"cwd,omitempty"`
	ApprovalPolicy *string `json:"approval_policy,omitempty"`
	SandboxPolicy  *string `json:"sandbox_policy,omitempty"`
	Model          *string `json:"model,omitempty"`
	Effort         *string `json:"effort,omitempty"`
	Summary        *string `json:"summary,omitempty"`

	// list_skills
	Cwds        []string `json:"cwds,omitempty"`
	ForceReload bool     `json:"force_reload,omitempty"`

	// review
	ReviewRequest string `json:"review_request,omitempty"`
}
