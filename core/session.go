package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-companion/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrStreamInterrupted = errors.New("response stream interrupted")

// StreamInterruptedError reports a stream that failed while its epoch was
// still current. The partial response stays published as the final snapshot.
type StreamInterruptedError struct {
	Epoch Epoch
	Err   error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("%s (epoch %d): %v", ErrStreamInterrupted, e.Epoch, e.Err)
}

func (e *StreamInterruptedError) Unwrap() []error {
	return []error{ErrStreamInterrupted, e.Err}
}

// StreamSession reconciles response fragments into a single snapshot per
// epoch. Starting a new turn supersedes the previous one, whose fragments are
// then dropped without side effects.
//
// The snapshot callback runs while the session lock is held, so it must not
// call back into the session.
type StreamSession struct {
	mu sync.Mutex

	epoch     Epoch
	active    *responseAccumulator
	finalized bool

	onSnapshot func(MessageSnapshot)
}

func NewStreamSession(onSnapshot func(MessageSnapshot)) *StreamSession {
	if onSnapshot == nil {
		onSnapshot = func(MessageSnapshot) {}
	}
	return &StreamSession{onSnapshot: onSnapshot, finalized: true}
}

// BeginTurn activates a new epoch with an empty streaming snapshot.
func (s *StreamSession) BeginTurn() Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.active = newResponseAccumulator(MessageSnapshot{Epoch: s.epoch, IsStreaming: true})
	s.finalized = false
	return s.epoch
}

// Reset abandons the current epoch without opening a new snapshot.
func (s *StreamSession) Reset() Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.active = nil
	s.finalized = true
	return s.epoch
}

func (s *StreamSession) Current() Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.epoch
}

func (s *StreamSession) IsCurrent(epoch Epoch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.acceptsLocked(epoch)
}

// Snapshot returns the snapshot of the current epoch, if one is open.
func (s *StreamSession) Snapshot() (MessageSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return MessageSnapshot{}, false
	}
	return s.active.Snapshot(), true
}

// Feed merges the fragment when the epoch is current and still streaming.
// It reports whether the fragment was applied.
func (s *StreamSession) Feed(epoch Epoch, fragment llms.Fragment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.acceptsLocked(epoch) {
		return false
	}
	s.onSnapshot(s.active.Merge(fragment))
	return true
}

// Finalize freezes the current epoch and publishes its final snapshot.
// Later calls for the same epoch, and calls for superseded epochs, do nothing.
func (s *StreamSession) Finalize(epoch Epoch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.acceptsLocked(epoch) {
		return false
	}
	s.finalized = true
	s.onSnapshot(s.active.Freeze())
	return true
}

func (s *StreamSession) acceptsLocked(epoch Epoch) bool {
	return epoch == s.epoch && s.active != nil && !s.finalized
}

// Run consumes the stream for the given epoch. It stops reading as soon as
// the epoch is superseded and returns nil in that case. A stream error while
// the epoch is still current finalizes the partial response and is returned
// as a *StreamInterruptedError.
func (s *StreamSession) Run(ctx context.Context, epoch Epoch, stream llms.Stream) error {
	ctx, span := tracer.Start(ctx, "run response stream")
	defer span.End()
	span.SetAttributes(attribute.Int64("stream.epoch", int64(epoch)))

	fragments := 0
	for fragment, err := range stream.Fragments(ctx) {
		if err != nil {
			if !s.Finalize(epoch) {
				span.AddEvent("stream superseded")
				return nil
			}
			err = &StreamInterruptedError{Epoch: epoch, Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if !s.Feed(epoch, fragment) {
			span.AddEvent("stream superseded")
			logger.Debug("dropping superseded response stream", "epoch", epoch, "fragments", fragments)
			return nil
		}
		fragments++
	}

	span.SetAttributes(attribute.Int("stream.fragments", fragments))
	s.Finalize(epoch)
	return nil
}
