package texttospeech

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is a single synthesis call for one chunk of text.
type Request struct {
	Text    string
	ModelID string
	VoiceID string
}

// Response carries raw PCM audio, or Rejected when the service refused the
// content.
type Response struct {
	Audio    []byte
	Rejected bool
}

// Synthesizer is a transport to a remote speech synthesis service.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Response, error)
}

var (
	// ErrSafetyRejected is returned when the service blocks the content.
	// It is never retried.
	ErrSafetyRejected = errors.New("content blocked by safety filters")
	// ErrQuotaExceeded signals rate or quota exhaustion and triggers the
	// fallback model.
	ErrQuotaExceeded = errors.New("synthesis quota exceeded")
	// ErrEmptySynthesisResult is a transient failure where the service
	// answered without audio.
	ErrEmptySynthesisResult = errors.New("no audio data returned from service")
	// ErrNoSpeechContent is returned when text normalizes to nothing
	// speakable.
	ErrNoSpeechContent = errors.New("no speech content generated")
)

// SynthesisError reports a chunk that could not be synthesized. Err is the
// last observed failure.
type SynthesisError struct {
	Chunk    Chunk
	Model    string
	Attempts int
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("failed to synthesize chunk %d with %s after %d attempt(s): %v", e.Chunk.Index, e.Model, e.Attempts, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// IsQuotaError reports whether err signals rate or quota exhaustion, either
// typed or as reported in a service message.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "429") || strings.Contains(strings.ToLower(message), "quota")
}
