package orchestration

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/koscakluka/ema-companion/core/texttospeech"
)

// Speaker keeps one speech pipeline per message. Pipelines never share
// output devices.
type Speaker struct {
	tts        *texttospeech.Client
	openOutput AudioOutputFactory
	options    speakerOptions

	mu        sync.Mutex
	pipelines map[string]*SpeechPipeline
	closed    bool
}

func NewSpeaker(tts *texttospeech.Client, openOutput AudioOutputFactory, opts ...SpeakerOption) *Speaker {
	options := speakerOptions{
		onStateChange: func(string, PlaybackState) {},
		onError:       func(string, error) {},
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Speaker{
		tts:        tts,
		openOutput: openOutput,
		options:    options,
		pipelines:  map[string]*SpeechPipeline{},
	}
}

// Toggle toggles speech for the message. When the message text changed since
// its pipeline was built, the old pipeline is torn down first.
func (s *Speaker) Toggle(ctx context.Context, messageID, text string) PlaybackState {
	pipeline, stale, others := s.pipelineFor(messageID, text)
	if stale != nil {
		if err := stale.Close(); err != nil {
			logger.Warn("failed to close stale speech pipeline", "message_id", messageID, "error", err)
		}
	}
	if pipeline == nil {
		return PlaybackIdle
	}

	state := pipeline.Toggle(ctx)
	if state != PlaybackIdle {
		for _, other := range others {
			other.Stop()
		}
	}
	return state
}

func (s *Speaker) pipelineFor(messageID, text string) (pipeline, stale *SpeechPipeline, others []*SpeechPipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, nil
	}

	pipeline, ok := s.pipelines[messageID]
	if ok && pipeline.Text() != text {
		stale = pipeline
		ok = false
	}
	if !ok {
		pipeline = NewSpeechPipeline(text, s.tts, s.openOutput, s.pipelineOptions(messageID)...)
		s.pipelines[messageID] = pipeline
	}

	if s.options.exclusive {
		for id, other := range s.pipelines {
			if id != messageID {
				others = append(others, other)
			}
		}
	}
	return pipeline, stale, others
}

func (s *Speaker) pipelineOptions(messageID string) []SpeechOption {
	opts := slices.Clone(s.options.speechOptions)
	return append(opts,
		WithStateChangeCallback(func(state PlaybackState) { s.options.onStateChange(messageID, state) }),
		WithErrorCallback(func(err error) { s.options.onError(messageID, err) }),
	)
}

func (s *Speaker) State(messageID string) PlaybackState {
	s.mu.Lock()
	pipeline, ok := s.pipelines[messageID]
	s.mu.Unlock()

	if !ok {
		return PlaybackIdle
	}
	return pipeline.State()
}

// Remove tears down the pipeline of a message that left the conversation.
func (s *Speaker) Remove(messageID string) error {
	s.mu.Lock()
	pipeline, ok := s.pipelines[messageID]
	delete(s.pipelines, messageID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return pipeline.Close()
}

// StopAll halts every playing message.
func (s *Speaker) StopAll() {
	s.mu.Lock()
	pipelines := slices.Collect(maps.Values(s.pipelines))
	s.mu.Unlock()

	for _, pipeline := range pipelines {
		pipeline.Stop()
	}
}

// Close tears down every pipeline. Later toggles do nothing.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pipelines := s.pipelines
	s.pipelines = map[string]*SpeechPipeline{}
	s.mu.Unlock()

	var errs []error
	for id, pipeline := range pipelines {
		if err := pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
