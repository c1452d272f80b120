package texttospeech

import "time"

const (
	DefaultPrimaryModel  = "gemini-2.5-flash-preview-tts"
	DefaultFallbackModel = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice         = "Kore"
	DefaultMaxAttempts   = 3
	DefaultBackoffBase   = 800 * time.Millisecond
)

type ClientOptions struct {
	PrimaryModel  string
	FallbackModel string
	Voice         string
	MaxAttempts   int
	// BackoffBase is the wait before the second attempt; each further wait
	// doubles it.
	BackoffBase time.Duration
}

type ClientOption func(*ClientOptions)

func defaultClientOptions() ClientOptions {
	return ClientOptions{
		PrimaryModel:  DefaultPrimaryModel,
		FallbackModel: DefaultFallbackModel,
		Voice:         DefaultVoice,
		MaxAttempts:   DefaultMaxAttempts,
		BackoffBase:   DefaultBackoffBase,
	}
}

// WithModels sets the primary model and the model switched to on quota
// exhaustion. An empty fallback disables switching.
func WithModels(primary, fallback string) ClientOption {
	return func(o *ClientOptions) {
		if primary != "" {
			o.PrimaryModel = primary
		}
		o.FallbackModel = fallback
	}
}

func WithVoice(voice string) ClientOption {
	return func(o *ClientOptions) {
		if voice != "" {
			o.Voice = voice
		}
	}
}

func WithMaxAttempts(attempts int) ClientOption {
	return func(o *ClientOptions) {
		if attempts > 0 {
			o.MaxAttempts = attempts
		}
	}
}

func WithBackoffBase(base time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if base > 0 {
			o.BackoffBase = base
		}
	}
}
