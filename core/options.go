package orchestration

import (
	"context"

	"github.com/koscakluka/ema-companion/core/audio"
	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/koscakluka/ema-companion/core/texttospeech"
)

type ConversationOption func(*Conversation)

type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt *string, opts ...llms.StreamingPromptOption) llms.Stream
}

func WithStreamingLLM(client LLMWithStream) ConversationOption {
	return func(c *Conversation) {
		c.llm = client
	}
}

// WithStore persists every finished turn and supplies memories for the
// system instruction.
func WithStore(store conversations.Store) ConversationOption {
	return func(c *Conversation) {
		if store != nil {
			c.store = store
		}
	}
}

func WithEventHandler(handler func(events.Event)) ConversationOption {
	return func(c *Conversation) {
		if handler != nil {
			c.emit = handler
		}
	}
}

func WithConversationID(id string) ConversationOption {
	return func(c *Conversation) {
		if id != "" {
			c.id = id
		}
	}
}

// WithWelcomeMessage sets the greeting shown at the top of new
// conversations. An empty text disables it.
func WithWelcomeMessage(text string) ConversationOption {
	return func(c *Conversation) {
		c.welcome = text
	}
}

// WithoutGoogleSearch disables search grounding on prompts.
func WithoutGoogleSearch() ConversationOption {
	return func(c *Conversation) {
		c.googleSearch = false
	}
}

type SpeechOption func(*speechOptions)

type speechOptions struct {
	maxChunkLength  int
	sampleRate      int
	channels        int
	playbackOptions []PlaybackOption
	onStateChange   func(PlaybackState)
	onError         func(error)
}

func defaultSpeechOptions() speechOptions {
	return speechOptions{
		maxChunkLength: texttospeech.DefaultMaxChunkLength,
		sampleRate:     audio.DefaultSampleRate,
		channels:       audio.DefaultChannels,
		onStateChange:  func(PlaybackState) {},
		onError:        func(error) {},
	}
}

func WithMaxChunkLength(length int) SpeechOption {
	return func(o *speechOptions) {
		if length > 0 {
			o.maxChunkLength = length
		}
	}
}

// WithSpeechEncoding sets the layout of the raw PCM returned by synthesis.
func WithSpeechEncoding(sampleRate, channels int) SpeechOption {
	return func(o *speechOptions) {
		if sampleRate > 0 {
			o.sampleRate = sampleRate
		}
		if channels > 0 {
			o.channels = channels
		}
	}
}

func WithPlaybackOptions(opts ...PlaybackOption) SpeechOption {
	return func(o *speechOptions) {
		o.playbackOptions = append(o.playbackOptions, opts...)
	}
}

func WithStateChangeCallback(onStateChange func(PlaybackState)) SpeechOption {
	return func(o *speechOptions) {
		if onStateChange != nil {
			o.onStateChange = onStateChange
		}
	}
}

func WithErrorCallback(onError func(error)) SpeechOption {
	return func(o *speechOptions) {
		if onError != nil {
			o.onError = onError
		}
	}
}

type SpeakerOption func(*speakerOptions)

type speakerOptions struct {
	speechOptions []SpeechOption
	onStateChange func(messageID string, state PlaybackState)
	onError       func(messageID string, err error)
	exclusive     bool
}

// WithSpeechOptions applies to every pipeline the speaker creates.
func WithSpeechOptions(opts ...SpeechOption) SpeakerOption {
	return func(o *speakerOptions) {
		o.speechOptions = append(o.speechOptions, opts...)
	}
}

func WithSpeakerStateCallback(onStateChange func(messageID string, state PlaybackState)) SpeakerOption {
	return func(o *speakerOptions) {
		if onStateChange != nil {
			o.onStateChange = onStateChange
		}
	}
}

func WithSpeakerErrorCallback(onError func(messageID string, err error)) SpeakerOption {
	return func(o *speakerOptions) {
		if onError != nil {
			o.onError = onError
		}
	}
}

// WithSpeakerEventHandler reports state changes and failures as events.
func WithSpeakerEventHandler(handler func(events.Event)) SpeakerOption {
	return func(o *speakerOptions) {
		if handler == nil {
			return
		}
		o.onStateChange = func(messageID string, state PlaybackState) {
			handler(events.NewAssistantPlaybackStateChanged(messageID, state.String()))
		}
		o.onError = func(messageID string, err error) {
			handler(events.NewAssistantPlaybackFailed(messageID, err))
		}
	}
}

// WithExclusivePlayback stops other messages when one starts speaking.
func WithExclusivePlayback() SpeakerOption {
	return func(o *speakerOptions) {
		o.exclusive = true
	}
}
