package events

const (
	// KindAssistantPlaybackStateChanged identifies speech state transitions.
	KindAssistantPlaybackStateChanged Kind = "assistant_playback.state_changed"
	// KindAssistantPlaybackFailed identifies failed speech loading.
	KindAssistantPlaybackFailed Kind = "assistant_playback.failed"
)

// AssistantPlaybackStateChanged reports the speech state of one message.
// State is one of "idle", "loading" or "playing".
type AssistantPlaybackStateChanged struct {
	Base
	MessageID string
	State     string
}

// NewAssistantPlaybackStateChanged creates a playback state changed event.
func NewAssistantPlaybackStateChanged(messageID, state string) AssistantPlaybackStateChanged {
	return AssistantPlaybackStateChanged{
		Base:      NewBase(KindAssistantPlaybackStateChanged),
		MessageID: messageID,
		State:     state,
	}
}

// AssistantPlaybackFailed reports why speech for a message could not play.
type AssistantPlaybackFailed struct {
	Base
	MessageID string
	Err       error
}

// NewAssistantPlaybackFailed creates a playback failed event.
func NewAssistantPlaybackFailed(messageID string, err error) AssistantPlaybackFailed {
	return AssistantPlaybackFailed{Base: NewBase(KindAssistantPlaybackFailed), MessageID: messageID, Err: err}
}
