package texttospeech

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type synthesizerStub struct {
	requests []Request
	respond  func(call int, req Request) (Response, error)
}

func (s *synthesizerStub) Synthesize(_ context.Context, req Request) (Response, error) {
	s.requests = append(s.requests, req)
	return s.respond(len(s.requests), req)
}

func (s *synthesizerStub) models() []string {
	models := make([]string, 0, len(s.requests))
	for _, req := range s.requests {
		models = append(models, req.ModelID)
	}
	return models
}

func newTestClient(stub *synthesizerStub) *Client {
	return NewClient(stub,
		WithModels("primary", "fallback"),
		WithBackoffBase(time.Millisecond),
	)
}

func TestSessionSwitchesToFallbackOnQuotaAndStaysThere(t *testing.T) {
	stub := &synthesizerStub{respond: func(call int, req Request) (Response, error) {
		if req.ModelID == "primary" {
			return Response{}, fmt.Errorf("%w: resource exhausted", ErrQuotaExceeded)
		}
		return Response{Audio: []byte(req.Text)}, nil
	}}
	session := newTestClient(stub).NewSession()

	audio, err := session.SynthesizeAll(context.Background(), ChunkText("First one. Second one. Third one.", 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(audio) != 3 {
		t.Fatalf("expected audio for 3 chunks, got %d", len(audio))
	}
	if string(audio[0]) != "First one." {
		t.Fatalf("expected first chunk audio %q, got %q", "First one.", audio[0])
	}

	expected := []string{"primary", "fallback", "fallback", "fallback"}
	got := stub.models()
	if len(got) != len(expected) {
		t.Fatalf("expected models %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected models %v, got %v", expected, got)
		}
	}
	if !session.FellBack() {
		t.Fatalf("expected session to report fallback")
	}
}

func TestSessionDetectsQuotaFromServiceMessage(t *testing.T) {
	stub := &synthesizerStub{respond: func(call int, req Request) (Response, error) {
		if call == 1 {
			return Response{}, errors.New("non-OK HTTP status: 429 Too Many Requests")
		}
		return Response{Audio: []byte{1, 2}}, nil
	}}
	session := newTestClient(stub).NewSession()

	if _, err := session.Synthesize(context.Background(), Chunk{Text: "Hi."}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session.Model() != "fallback" {
		t.Fatalf("expected fallback model, got %q", session.Model())
	}
}

func TestSessionDoesNotRetrySafetyRejection(t *testing.T) {
	stub := &synthesizerStub{respond: func(int, Request) (Response, error) {
		return Response{Rejected: true}, nil
	}}
	session := newTestClient(stub).NewSession()

	_, err := session.Synthesize(context.Background(), Chunk{Text: "Blocked."})
	if !errors.Is(err, ErrSafetyRejected) {
		t.Fatalf("expected ErrSafetyRejected, got %v", err)
	}
	if len(stub.requests) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(stub.requests))
	}
}

func TestSessionRetriesEmptyResultUpToCeiling(t *testing.T) {
	stub := &synthesizerStub{respond: func(int, Request) (Response, error) {
		return Response{}, nil
	}}
	session := newTestClient(stub).NewSession()

	_, err := session.Synthesize(context.Background(), Chunk{Index: 4, Text: "Silent."})
	if !errors.Is(err, ErrEmptySynthesisResult) {
		t.Fatalf("expected ErrEmptySynthesisResult, got %v", err)
	}
	var synthesisErr *SynthesisError
	if !errors.As(err, &synthesisErr) {
		t.Fatalf("expected *SynthesisError, got %T", err)
	}
	if synthesisErr.Attempts != DefaultMaxAttempts || synthesisErr.Chunk.Index != 4 {
		t.Fatalf("expected %d attempts on chunk 4, got %d attempts on chunk %d", DefaultMaxAttempts, synthesisErr.Attempts, synthesisErr.Chunk.Index)
	}
	if len(stub.requests) != DefaultMaxAttempts {
		t.Fatalf("expected %d requests, got %d", DefaultMaxAttempts, len(stub.requests))
	}
}

func TestSessionRecoversFromTransientFailure(t *testing.T) {
	stub := &synthesizerStub{respond: func(call int, req Request) (Response, error) {
		if call < 3 {
			return Response{}, errors.New("connection reset")
		}
		return Response{Audio: []byte{9}}, nil
	}}
	session := newTestClient(stub).NewSession()

	audio, err := session.Synthesize(context.Background(), Chunk{Text: "Eventually."})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(audio) != 1 || audio[0] != 9 {
		t.Fatalf("expected audio from third attempt, got %v", audio)
	}
	if session.Model() != "primary" {
		t.Fatalf("expected transient failures to keep the primary model, got %q", session.Model())
	}
}

func TestSessionAbortsOnFirstFailedChunk(t *testing.T) {
	stub := &synthesizerStub{respond: func(call int, req Request) (Response, error) {
		if req.Text == "Two." {
			return Response{}, errors.New("service unavailable")
		}
		return Response{Audio: []byte(req.Text)}, nil
	}}
	session := newTestClient(stub).NewSession()

	audio, err := session.SynthesizeAll(context.Background(), ChunkText("One. Two. Three.", 4))
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if audio != nil {
		t.Fatalf("expected no partial audio, got %d results", len(audio))
	}
	for _, req := range stub.requests {
		if req.Text == "Three." {
			t.Fatalf("expected no request for the chunk after the failure")
		}
	}
}

func TestNewSessionStartsOnPrimaryModel(t *testing.T) {
	stub := &synthesizerStub{respond: func(call int, req Request) (Response, error) {
		if req.ModelID == "primary" && call == 1 {
			return Response{}, ErrQuotaExceeded
		}
		return Response{Audio: []byte{1}}, nil
	}}
	client := newTestClient(stub)

	first := client.NewSession()
	if _, err := first.Synthesize(context.Background(), Chunk{Text: "A."}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.Model() != "fallback" {
		t.Fatalf("expected first session on fallback, got %q", first.Model())
	}

	second := client.NewSession()
	if second.Model() != "primary" {
		t.Fatalf("expected new session on primary, got %q", second.Model())
	}
}

func TestSessionPassesConfiguredVoice(t *testing.T) {
	stub := &synthesizerStub{respond: func(int, Request) (Response, error) {
		return Response{Audio: []byte{1}}, nil
	}}
	session := NewClient(stub, WithVoice("Puck")).NewSession()

	if _, err := session.Synthesize(context.Background(), Chunk{Text: "Hi."}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stub.requests[0].VoiceID != "Puck" || stub.requests[0].ModelID != DefaultPrimaryModel {
		t.Fatalf("expected voice Puck on %s, got %+v", DefaultPrimaryModel, stub.requests[0])
	}
}

func TestSessionBackoffDoublesFromBase(t *testing.T) {
	session := NewClient(nil).NewSession()
	backOff := session.backOff()
	backOff.Reset()

	expected := []time.Duration{800 * time.Millisecond, 1600 * time.Millisecond, 3200 * time.Millisecond}
	for i, wait := range expected {
		if got := backOff.NextBackOff(); got != wait {
			t.Fatalf("expected wait %d to be %v, got %v", i, wait, got)
		}
	}
}

func TestSessionStopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stub := &synthesizerStub{respond: func(int, Request) (Response, error) {
		cancel()
		return Response{}, errors.New("transient")
	}}
	session := NewClient(stub, WithBackoffBase(time.Hour)).NewSession()

	_, err := session.Synthesize(ctx, Chunk{Text: "Hi."})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(stub.requests) != 1 {
		t.Fatalf("expected one request before cancellation, got %d", len(stub.requests))
	}
}
