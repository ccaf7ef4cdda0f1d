package tui

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/agentmesh/ccmesh/internal/workflow"
)

// userInputFocus mirrors request_user_input.rs's Focus enum: within one
// question, the cursor is either on the option list or in the freeform
// note field.
type userInputFocus int

const (
	focusOptions userInputFocus = iota
	focusNotes
)

// userInputAnswer is one question's in-progress answer state.
type userInputAnswer struct {
	selected  int // -1 = nothing picked yet
	committed bool
	note      []rune
}

// UserInputOverlay is the multi-question request_user_input overlay:
// Ctrl+N/Ctrl+P moves between questions, Up/Down or a digit key picks an
// option, Tab toggles focus to a freeform note, and secret questions mask
// the note as it's typed. Built from teacher's SelectorModel (single-list
// navigation) plus the question-navigation/masking layer
// codex-rs/tui2/src/bottom_pane/request_user_input.rs's RequestUserInputOverlay
// implements (handle_key_event's Ctrl+N/Ctrl+P/digit/Tab/Enter dispatch;
// the Rust ratatui rendering itself is not ported, only the key handling
// and answer-state machine, since this project renders through
// bubbletea/lipgloss in internal/cli, not ratatui).
type UserInputOverlay struct {
	req     *workflow.PendingUserInputRequest
	answers []userInputAnswer
	current int
	focus   userInputFocus
	done    bool
	submit  bool
}

// NewUserInputOverlay builds an overlay for req. req must have at least
// one question.
func NewUserInputOverlay(req *workflow.PendingUserInputRequest) *UserInputOverlay {
	o := &UserInputOverlay{req: req}
	o.answers = make([]userInputAnswer, len(req.Questions))
	for i, q := range req.Questions {
		o.answers[i].selected = -1
		if len(q.Options) > 0 || q.IsOther {
			o.answers[i].selected = 0
		}
	}
	return o
}

// QuestionCount returns the number of questions in this request.
func (o *UserInputOverlay) QuestionCount() int {
	return len(o.req.Questions)
}

// CurrentIndex returns the 0-based index of the question currently focused.
func (o *UserInputOverlay) CurrentIndex() int {
	return o.current
}

func (o *UserInputOverlay) currentQuestion() workflow.RequestUserInputQuestion {
	return o.req.Questions[o.current]
}

func (o *UserInputOverlay) optionCount() int {
	q := o.currentQuestion()
	n := len(q.Options)
	if q.IsOther {
		n++
	}
	return n
}

func (o *UserInputOverlay) optionLabel(idx int) string {
	q := o.currentQuestion()
	if idx < len(q.Options) {
		return q.Options[idx].Label
	}
	return "Other (type your answer)"
}

// MoveQuestion moves focus to the next (forward=true) or previous question,
// wrapping around — Ctrl+N/Ctrl+P in the original.
func (o *UserInputOverlay) MoveQuestion(forward bool) {
	n := len(o.req.Questions)
	if n == 0 {
		return
	}
	if forward {
		o.current = (o.current + 1) % n
	} else {
		o.current = (o.current - 1 + n) % n
	}
	o.focus = focusOptions
}

// MoveSelectionUp moves the option cursor up within the current question,
// wrapping around. No-op if the question has no options.
func (o *UserInputOverlay) MoveSelectionUp() {
	n := o.optionCount()
	if n == 0 {
		return
	}
	a := &o.answers[o.current]
	a.selected = (a.selected - 1 + n) % n
}

// MoveSelectionDown is MoveSelectionUp's downward counterpart.
func (o *UserInputOverlay) MoveSelectionDown() {
	n := o.optionCount()
	if n == 0 {
		return
	}
	a := &o.answers[o.current]
	a.selected = (a.selected + 1) % n
}

// ToggleFocus switches between the option list and the freeform note field
// for the current question (Tab). A no-op moving to Options when the
// question has no options.
func (o *UserInputOverlay) ToggleFocus() {
	if o.focus == focusOptions {
		o.focus = focusNotes
		return
	}
	if o.optionCount() > 0 {
		o.focus = focusOptions
	}
}

// NoteFocused reports whether the current question's freeform note has input
// focus (as opposed to the option list).
func (o *UserInputOverlay) NoteFocused() bool {
	return o.focus == focusNotes
}

// SelectDigit picks option (digit-1) by a 1-based digit keypress, committing
// it and advancing to the next unanswered question, or finishing if this
// was the last one. Returns false (and does nothing) if digit is out of
// range for the current question.
func (o *UserInputOverlay) SelectDigit(digit int) bool {
	idx := digit - 1
	if idx < 0 || idx >= o.optionCount() {
		return false
	}
	a := &o.answers[o.current]
	a.selected = idx
	a.committed = true
	o.goNextOrSubmit()
	return true
}

// TypeNote appends text to the current question's freeform note, switching
// focus to Notes if it wasn't already there (matches the Rust behavior of
// falling through to the note field on an unrecognized option-focus key).
func (o *UserInputOverlay) TypeNote(text string) {
	o.focus = focusNotes
	o.answers[o.current].note = append(o.answers[o.current].note, []rune(text)...)
}

// Backspace removes the last rune (grapheme cluster) from the current
// question's note, using uniseg so multi-rune grapheme clusters (e.g.
// combining marks, emoji) are removed as one unit rather than corrupting
// the tail.
func (o *UserInputOverlay) Backspace() {
	note := o.answers[o.current].note
	if len(note) == 0 {
		return
	}
	s := string(note)
	gr := uniseg.NewGraphemes(s)
	var lastStart int
	for gr.Next() {
		start, _ := gr.Positions()
		lastStart = start
	}
	trimmed := s[:lastStart]
	o.answers[o.current].note = []rune(trimmed)
}

// NoteDisplay returns the current question's note text, masked with '•'
// per grapheme cluster when the question is marked IsSecret — grounded on
// request_user_input.rs's RequestUserInputQuestion::is_secret masking,
// using uniseg for correct grapheme-aware masking (already an indirect
// dependency via bubbletea/lipgloss, used directly here).
func (o *UserInputOverlay) NoteDisplay() string {
	q := o.currentQuestion()
	note := string(o.answers[o.current].note)
	if !q.IsSecret || note == "" {
		return note
	}
	var b strings.Builder
	gr := uniseg.NewGraphemes(note)
	for gr.Next() {
		b.WriteRune('•')
	}
	return b.String()
}

// Enter submits the current question's answer (Enter with no modifiers in
// the original) and advances, or finishes the whole request if this was
// the last question.
func (o *UserInputOverlay) Enter() {
	o.answers[o.current].committed = true
	o.goNextOrSubmit()
}

func (o *UserInputOverlay) goNextOrSubmit() {
	if o.current == len(o.req.Questions)-1 {
		o.done = true
		o.submit = true
		return
	}
	o.current++
	o.focus = focusOptions
}

// UnansweredCount returns how many questions have neither a committed
// option selection nor non-empty note text — drives the overlay's
// progress indicator.
func (o *UserInputOverlay) UnansweredCount() int {
	n := 0
	for i, a := range o.answers {
		hasOptions := len(o.req.Questions[i].Options) > 0 || o.req.Questions[i].IsOther
		noteEmpty := len(strings.TrimSpace(string(a.note))) == 0
		if hasOptions {
			if !a.committed {
				n++
			}
		} else if noteEmpty {
			n++
		}
	}
	return n
}

// Done reports whether every question has been stepped past (Enter/digit
// pressed on the last one).
func (o *UserInputOverlay) Done() bool {
	return o.done
}

// Cancel marks the overlay cancelled without submitting — Ctrl+C with an
// empty current note in the original falls back to this.
func (o *UserInputOverlay) Cancel() {
	o.done = true
	o.submit = false
}

// Submitted reports whether Done() was reached via submission (Enter/digit
// on the last question) rather than Cancel().
func (o *UserInputOverlay) Submitted() bool {
	return o.submit
}

// Response builds the UserInputQuestionResponse from the overlay's
// accumulated answers: a committed option selection wins its Label as the
// answer; otherwise the freeform note (if non-empty) is used; an
// unanswered question with neither is omitted.
func (o *UserInputOverlay) Response() *workflow.UserInputQuestionResponse {
	answers := make(map[string]workflow.UserInputQuestionAnswer, len(o.req.Questions))
	for i, q := range o.req.Questions {
		a := o.answers[i]
		note := strings.TrimSpace(string(a.note))
		switch {
		case a.committed && a.selected >= 0 && a.selected < len(q.Options):
			answers[q.ID] = workflow.UserInputQuestionAnswer{Answers: []string{q.Options[a.selected].Label}}
		case note != "":
			answers[q.ID] = workflow.UserInputQuestionAnswer{Answers: []string{note}}
		}
	}
	if len(answers) == 0 {
		return nil
	}
	return &workflow.UserInputQuestionResponse{Answers: answers}
}

// OptionLabels returns the display labels for the current question's
// options, in order, including the synthetic "Other" entry when present.
func (o *UserInputOverlay) OptionLabels() []string {
	n := o.optionCount()
	labels := make([]string, n)
	for i := range labels {
		labels[i] = o.optionLabel(i)
	}
	return labels
}

// SelectedIndex returns the current question's selected option index, or
// -1 if none is selected yet.
func (o *UserInputOverlay) SelectedIndex() int {
	return o.answers[o.current].selected
}
