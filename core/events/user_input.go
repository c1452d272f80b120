package events

// KindUserPromptSubmitted identifies a user message entering the conversation.
const KindUserPromptSubmitted Kind = "user_input.prompt_submitted"

// UserPromptSubmitted carries the user message that opened a turn.
type UserPromptSubmitted struct {
	Base
	MessageID string
	Text      string
	HasImage  bool
}

// NewUserPromptSubmitted creates a user prompt submitted event.
func NewUserPromptSubmitted(messageID, text string, hasImage bool) UserPromptSubmitted {
	return UserPromptSubmitted{
		Base:      NewBase(KindUserPromptSubmitted),
		MessageID: messageID,
		Text:      text,
		HasImage:  hasImage,
	}
}
