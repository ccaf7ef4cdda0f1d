// Package ops defines the Op schema (UI -> core) and the UserInput
// tagged union carried by several ops and by collab spawn/send_input
// payloads.
//
// Maps to: codex-rs/core/src/protocol.rs Op / InputItem.
package ops

// UserInputKind tags a UserInput variant.
type UserInputKind string

const (
	UserInputText       UserInputKind = "text"
	UserInputImage      UserInputKind = "image"
	UserInputLocalImage UserInputKind = "local_image"
	UserInputSkill      UserInputKind = "skill"
	UserInputMention    UserInputKind = "mention"
)

// UserInput is the tagged union `{ text, image, local_image, skill,
// mention }` from spec.md §6.3, represented as a single struct with
// fields populated per Kind (the teacher's style for small closed
// JSON unions — see state.go's *Request structs).
type UserInput struct {
	Kind UserInputKind `json:"type"`

	// text
	Text         string   `json:"text,omitempty"`
	TextElements []string `json:"text_elements,omitempty"`

	// image
	ImageURL string `json:"image_url,omitempty"`

	// local_image
	Path string `json:"path,omitempty"`

	// skill / mention
	Name string `json:"name,omitempty"`
	// Path reused for skill/mention file path.
}

// NewTextInput builds a text UserInput.
func NewTextInput(text string) UserInput {
	return UserInput{Kind: UserInputText, Text: text}
}
