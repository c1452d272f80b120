package llms

// StreamingPromptOptions holds everything sent along with a streamed prompt.
type StreamingPromptOptions struct {
	Instructions string
	Turns        []Turn
	Images       []Image
	GoogleSearch bool
}

type StreamingPromptOption func(*StreamingPromptOptions)

// WithSystemPrompt sets the system instruction for the prompt.
// Repeating this option will overwrite the previous system prompt.
func WithSystemPrompt(prompt string) StreamingPromptOption {
	return func(opts *StreamingPromptOptions) {
		opts.Instructions = prompt
	}
}

// WithTurns adds prior conversation history to the prompt.
// Repeating this option will sequentially add more turns.
func WithTurns(turns ...Turn) StreamingPromptOption {
	return func(opts *StreamingPromptOptions) {
		opts.Turns = append(opts.Turns, turns...)
	}
}

// WithImage attaches an image to the new user prompt.
func WithImage(image Image) StreamingPromptOption {
	return func(opts *StreamingPromptOptions) {
		opts.Images = append(opts.Images, image)
	}
}

// WithGoogleSearch enables search grounding, which is what produces
// citations on fragments.
func WithGoogleSearch() StreamingPromptOption {
	return func(opts *StreamingPromptOptions) {
		opts.GoogleSearch = true
	}
}

func ApplyStreamingOptions(opts ...StreamingPromptOption) StreamingPromptOptions {
	options := StreamingPromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
