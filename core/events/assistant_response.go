package events

import "github.com/koscakluka/ema-companion/core/llms"

const (
	// KindAssistantResponseStarted identifies creation of a streaming placeholder.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseUpdated identifies accumulated response snapshots.
	KindAssistantResponseUpdated Kind = "assistant_response.updated"
	// KindAssistantResponseFinal identifies assistant response completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
	// KindAssistantResponseInterrupted identifies a failed response stream.
	KindAssistantResponseInterrupted Kind = "assistant_response.interrupted"
)

// AssistantResponseStarted marks the placeholder message of a new epoch.
type AssistantResponseStarted struct {
	Base
	MessageID string
	Epoch     uint64
}

// NewAssistantResponseStarted creates an assistant response started event.
func NewAssistantResponseStarted(messageID string, epoch uint64) AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted), MessageID: messageID, Epoch: epoch}
}

// AssistantResponseUpdated carries the accumulated response so far.
type AssistantResponseUpdated struct {
	Base
	MessageID string
	Epoch     uint64
	Text      string
	Sources   []llms.Citation
}

// NewAssistantResponseUpdated creates an assistant response updated event.
func NewAssistantResponseUpdated(messageID string, epoch uint64, text string, sources []llms.Citation) AssistantResponseUpdated {
	return AssistantResponseUpdated{
		Base:      NewBase(KindAssistantResponseUpdated),
		MessageID: messageID,
		Epoch:     epoch,
		Text:      text,
		Sources:   sources,
	}
}

// AssistantResponseFinal carries the frozen response.
type AssistantResponseFinal struct {
	Base
	MessageID string
	Epoch     uint64
	Text      string
	Sources   []llms.Citation
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(messageID string, epoch uint64, text string, sources []llms.Citation) AssistantResponseFinal {
	return AssistantResponseFinal{
		Base:      NewBase(KindAssistantResponseFinal),
		MessageID: messageID,
		Epoch:     epoch,
		Text:      text,
		Sources:   sources,
	}
}

// AssistantResponseInterrupted reports a stream that failed mid-response.
type AssistantResponseInterrupted struct {
	Base
	MessageID string
	Epoch     uint64
	Err       error
}

// NewAssistantResponseInterrupted creates an assistant response interrupted event.
func NewAssistantResponseInterrupted(messageID string, epoch uint64, err error) AssistantResponseInterrupted {
	return AssistantResponseInterrupted{
		Base:      NewBase(KindAssistantResponseInterrupted),
		MessageID: messageID,
		Epoch:     epoch,
		Err:       err,
	}
}
