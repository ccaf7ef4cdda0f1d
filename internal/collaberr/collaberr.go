// Package collaberr implements the two-kind error model the
// collaboration dispatcher uses to decide whether a failure is
// surfaced to the model as a tool-call error (RespondToModel) or ends
// the turn (Fatal).
//
// Maps to: codex-rs/core/src/error.rs CodexErr / FunctionCallError.
package collaberr

import "fmt"

type Kind int

const (
	RespondToModel Kind = iota
	Fatal
)

// Error carries a Kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func NewRespondToModel(format string, args ...interface{}) *Error {
	return &Error{Kind: RespondToModel, Message: fmt.Sprintf(format, args...)}
}

func NewFatal(format string, args ...interface{}) *Error {
	return &Error{Kind: Fatal, Message: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err is a Fatal collaberr.Error.
func IsFatal(err error) bool {
	var ce *Error
	if e, ok := err.(*Error); ok {
		ce = e
	}
	return ce != nil && ce.Kind == Fatal
}

// ThreadNotFound maps a lifecycle "thread not found" error to the
// standard RespondToModel message. suffix, if non-empty, is appended
// (used by rename_agent to point at list_agents).
func ThreadNotFound(id string, suffix string) *Error {
	msg := fmt.Sprintf("agent with id %s not found", id)
	if suffix != "" {
		msg += "; " + suffix
	}
	return NewRespondToModel(msg)
}

// InternalAgentDied maps the "agent already torn down" lifecycle error.
func InternalAgentDied(id string) *Error {
	return NewRespondToModel("agent with id %s is closed", id)
}

// UnsupportedOperation maps a control-plane unavailability error.
func UnsupportedOperation() *Error {
	return NewRespondToModel("collab manager unavailable")
}

// ArgParseFailure maps a JSON argument parse failure.
func ArgParseFailure(err error) *Error {
	return NewRespondToModel("failed to parse function arguments: %s", err.Error())
}

// ResultSerializeFailure maps a JSON result marshal failure.
func ResultSerializeFailure(op string, err error) *Error {
	return NewFatal("failed to serialize %s result: %s", op, err.Error())
}

// UnsupportedTool maps an unknown collab tool name.
func UnsupportedTool(name string) *Error {
	return NewRespondToModel("unsupported collab tool %s", name)
}

// MissingField maps a missing required argument.
func MissingField(name string) *Error {
	return NewRespondToModel("Provide required field: %s", name)
}

// EmptyItems maps an empty `items` argument.
func EmptyItems() *Error {
	return NewRespondToModel("Items can't be empty")
}

// WaitAgentIDsEmpty maps wait's missing/empty `agent_ids` argument. Distinct
// wording from MissingField: wait's own spec (§4.2.1) mandates this exact
// message rather than the generic "Provide required field" phrasing.
func WaitAgentIDsEmpty() *Error {
	return NewRespondToModel("agent_ids must be non-empty")
}

// UnsupportedPayload maps a non function-call invocation payload.
func UnsupportedPayload() *Error {
	return NewRespondToModel("collab handler received unsupported payload")
}
