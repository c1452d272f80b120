package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms"
)

type llmStub struct {
	mu      sync.Mutex
	prompts []string
	options []llms.StreamingPromptOptions
	streams []llms.Stream
}

func (s *llmStub) PromptWithStream(_ context.Context, prompt *string, opts ...llms.StreamingPromptOption) llms.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := ""
	if prompt != nil {
		text = *prompt
	}
	s.prompts = append(s.prompts, text)
	s.options = append(s.options, llms.ApplyStreamingOptions(opts...))
	stream := s.streams[0]
	s.streams = s.streams[1:]
	return stream
}

func (s *llmStub) lastOptions() llms.StreamingPromptOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options[len(s.options)-1]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func lastMessage(c *Conversation) conversations.Message {
	messages := c.Messages()
	return messages[len(messages)-1]
}

func TestSendPromptStreamsResponseAndPersists(t *testing.T) {
	llm := &llmStub{streams: []llms.Stream{sliceStream{
		text("Sleep "),
		{fragment: llms.Fragment{TextDelta: "well.", Citations: []llms.Citation{{Title: "PubMed", URI: "https://pubmed.example"}}}},
	}}}
	store := conversations.NewMemoryStore(conversations.Memory{Text: "Peanuts", Category: conversations.MemoryCategoryAllergy})
	recorder := &eventRecorder{}
	conversation := NewConversation(WithStreamingLLM(llm), WithStore(store), WithEventHandler(recorder.record), WithConversationID("c1"))
	if err := conversation.Load(context.Background()); err != nil {
		t.Fatalf("expected no error loading, got %v", err)
	}

	if err := conversation.SendPrompt(context.Background(), "  How can I sleep better?  ", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	messages := conversation.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected welcome, user and response, got %d messages", len(messages))
	}
	if !messages[0].IsWelcome() {
		t.Fatalf("expected welcome message first, got %+v", messages[0])
	}
	if messages[1].Text != "How can I sleep better?" || messages[1].Role != conversations.RoleUser {
		t.Fatalf("expected trimmed user message, got %+v", messages[1])
	}
	response := messages[2]
	if response.Text != "Sleep well." || response.IsStreaming || len(response.Sources) != 1 {
		t.Fatalf("expected final response with source, got %+v", response)
	}
	if conversation.Title() != "How can I sleep better?" {
		t.Fatalf("expected title from first prompt, got %q", conversation.Title())
	}

	options := llm.lastOptions()
	if !strings.Contains(options.Instructions, "- [Allergy] Peanuts") {
		t.Fatalf("expected memories in system instruction, got %q", options.Instructions)
	}
	if !options.GoogleSearch {
		t.Fatalf("expected google search enabled")
	}
	if len(options.Turns) != 0 {
		t.Fatalf("expected welcome message to be excluded from history, got %+v", options.Turns)
	}

	stored, err := store.LoadConversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected stored conversation, got %v", err)
	}
	if len(stored.Messages) != 3 || stored.Messages[2].Text != "Sleep well." {
		t.Fatalf("expected persisted final snapshot, got %+v", stored.Messages)
	}

	kinds := recorder.kinds()
	expected := []events.Kind{
		events.KindUserPromptSubmitted,
		events.KindTurnStarted,
		events.KindAssistantResponseStarted,
		events.KindAssistantResponseUpdated,
		events.KindAssistantResponseUpdated,
		events.KindAssistantResponseFinal,
		events.KindTurnCompleted,
	}
	if len(kinds) != len(expected) {
		t.Fatalf("expected events %v, got %v", expected, kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Fatalf("expected events %v, got %v", expected, kinds)
		}
	}
}

func TestSendPromptRejectsEmptyInput(t *testing.T) {
	conversation := NewConversation(WithStreamingLLM(&llmStub{}))

	if err := conversation.SendPrompt(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if len(conversation.Messages()) != 1 {
		t.Fatalf("expected no message to be appended")
	}
}

func TestSendPromptWithoutLLMFails(t *testing.T) {
	conversation := NewConversation()

	if err := conversation.SendPrompt(context.Background(), "hi", nil); !errors.Is(err, ErrLLMNotConfigured) {
		t.Fatalf("expected ErrLLMNotConfigured, got %v", err)
	}
}

func TestImageOnlyPromptUsesImageTitle(t *testing.T) {
	llm := &llmStub{streams: []llms.Stream{sliceStream{text("A rash.")}}}
	conversation := NewConversation(WithStreamingLLM(llm))

	image := &llms.Image{MIMEType: "image/jpeg", Data: []byte("jpeg")}
	if err := conversation.SendPrompt(context.Background(), "", image); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conversation.Title() != conversations.ImageOnlyTitle {
		t.Fatalf("expected image title, got %q", conversation.Title())
	}
	if images := llm.lastOptions().Images; len(images) != 1 || images[0].MIMEType != "image/jpeg" {
		t.Fatalf("expected image forwarded, got %+v", images)
	}
}

func TestSecondPromptSendsFinishedHistory(t *testing.T) {
	llm := &llmStub{streams: []llms.Stream{sliceStream{text("Keep a schedule.")}, sliceStream{text("Breathe.")}}}
	conversation := NewConversation(WithStreamingLLM(llm))

	_ = conversation.SendPrompt(context.Background(), "Sleep?", nil)
	_ = conversation.SendPrompt(context.Background(), "Stress?", nil)

	turns := llm.lastOptions().Turns
	if len(turns) != 2 || turns[0].Content != "Sleep?" || turns[1].Content != "Keep a schedule." || turns[1].Role != llms.TurnRoleAssistant {
		t.Fatalf("expected first exchange as history, got %+v", turns)
	}
	if conversation.Title() != "Sleep?" {
		t.Fatalf("expected title to stay on first prompt, got %q", conversation.Title())
	}
}

func TestNewPromptSupersedesRunningStream(t *testing.T) {
	first := make(channelStream)
	llm := &llmStub{streams: []llms.Stream{first, sliceStream{text("Fresh answer.")}}}
	conversation := NewConversation(WithStreamingLLM(llm))

	done := make(chan error, 1)
	go func() { done <- conversation.SendPrompt(context.Background(), "First?", nil) }()

	first <- text("Stale ")
	waitForCondition(t, time.Second, "partial response", func() bool {
		return lastMessage(conversation).Text == "Stale "
	})

	if err := conversation.SendPrompt(context.Background(), "Second?", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	first <- text("answer.")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected superseded prompt to return nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for superseded prompt")
	}

	messages := conversation.Messages()
	stale := messages[2]
	if stale.Text != "Stale " || !stale.Abandoned || stale.IsStreaming {
		t.Fatalf("expected abandoned partial response, got %+v", stale)
	}
	if last := messages[len(messages)-1]; last.Text != "Fresh answer." {
		t.Fatalf("expected fresh response last, got %+v", last)
	}
}

func TestTurnSupersededBeforeRegisteringAddsNothing(t *testing.T) {
	llm := &llmStub{streams: []llms.Stream{sliceStream{text("Second answer.")}}}
	store := conversations.NewMemoryStore()
	recorder := &eventRecorder{}
	conversation := NewConversation(WithStreamingLLM(llm), WithStore(store), WithEventHandler(recorder.record), WithConversationID("c1"))

	stale := conversation.session.BeginTurn()
	if err := conversation.SendPrompt(context.Background(), "Second?", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := conversation.sendTurn(context.Background(), stale, "First?", nil); err != nil {
		t.Fatalf("expected superseded turn to return nil, got %v", err)
	}

	messages := conversation.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected welcome plus one exchange, got %+v", messages)
	}
	if messages[1].Text != "Second?" || messages[2].Text != "Second answer." {
		t.Fatalf("expected newer exchange in order, got %q then %q", messages[1].Text, messages[2].Text)
	}
	for _, message := range messages {
		if message.IsStreaming {
			t.Fatalf("expected no response left streaming, got %+v", message)
		}
	}
	if messages[2].Abandoned {
		t.Fatalf("expected newer response to stay complete, got %+v", messages[2])
	}
	if len(llm.prompts) != 1 {
		t.Fatalf("expected superseded turn not to open a stream, got prompts %v", llm.prompts)
	}

	stored, err := store.LoadConversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected stored conversation, got %v", err)
	}
	for _, message := range stored.Messages {
		if message.IsStreaming {
			t.Fatalf("expected no streaming message persisted, got %+v", message)
		}
	}

	kinds := recorder.kinds()
	if kinds[len(kinds)-1] != events.KindTurnCancelled {
		t.Fatalf("expected superseded turn to report cancellation, got %v", kinds)
	}
}

func TestAbandonBeforeRegisteringSupersedesTurn(t *testing.T) {
	llm := &llmStub{}
	conversation := NewConversation(WithStreamingLLM(llm))

	stale := conversation.session.BeginTurn()
	conversation.Abandon()
	if err := conversation.sendTurn(context.Background(), stale, "First?", nil); err != nil {
		t.Fatalf("expected superseded turn to return nil, got %v", err)
	}

	if messages := conversation.Messages(); len(messages) != 1 {
		t.Fatalf("expected only the welcome message, got %+v", messages)
	}
}

func TestStreamErrorKeepsPartialTextAndReportsFailure(t *testing.T) {
	streamErr := errors.New("connection reset")
	llm := &llmStub{streams: []llms.Stream{sliceStream{text("Partial"), {err: streamErr}}}}
	recorder := &eventRecorder{}
	conversation := NewConversation(WithStreamingLLM(llm), WithEventHandler(recorder.record))

	err := conversation.SendPrompt(context.Background(), "Hi", nil)
	if !errors.Is(err, ErrStreamInterrupted) || !errors.Is(err, streamErr) {
		t.Fatalf("expected interrupted error, got %v", err)
	}
	if response := lastMessage(conversation); response.Text != "Partial" || response.IsStreaming {
		t.Fatalf("expected frozen partial response, got %+v", response)
	}

	failures := 0
	for _, kind := range recorder.kinds() {
		if kind == events.KindTurnFailed {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one failure event, got %d", failures)
	}
}

func TestAbandonFreezesRunningResponse(t *testing.T) {
	stream := make(channelStream)
	llm := &llmStub{streams: []llms.Stream{stream}}
	conversation := NewConversation(WithStreamingLLM(llm))

	done := make(chan error, 1)
	go func() { done <- conversation.SendPrompt(context.Background(), "Hi", nil) }()
	stream <- text("Hel")
	waitForCondition(t, time.Second, "partial response", func() bool {
		return lastMessage(conversation).Text == "Hel"
	})

	conversation.Abandon()
	stream <- text("lo")
	if err := <-done; err != nil {
		t.Fatalf("expected abandoned prompt to return nil, got %v", err)
	}
	if response := lastMessage(conversation); response.Text != "Hel" || !response.Abandoned {
		t.Fatalf("expected abandoned partial response, got %+v", response)
	}
}

func TestRateAndRemoveMessage(t *testing.T) {
	llm := &llmStub{streams: []llms.Stream{sliceStream{text("Answer.")}}}
	conversation := NewConversation(WithStreamingLLM(llm))
	_ = conversation.SendPrompt(context.Background(), "Question?", nil)
	ctx := context.Background()

	response := lastMessage(conversation)
	if err := conversation.RateMessage(ctx, response.ID, conversations.RatingUp); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if lastMessage(conversation).Rating != conversations.RatingUp {
		t.Fatalf("expected up rating")
	}
	_ = conversation.RateMessage(ctx, response.ID, conversations.RatingUp)
	if lastMessage(conversation).Rating != conversations.RatingNone {
		t.Fatalf("expected repeated rating to clear")
	}

	if err := conversation.RemoveMessage(ctx, response.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := conversation.RemoveMessage(ctx, response.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if len(conversation.Messages()) != 2 {
		t.Fatalf("expected response removed")
	}
}

func TestLoadRestoresStoredConversation(t *testing.T) {
	store := conversations.NewMemoryStore()
	_ = store.SaveSnapshot(context.Background(), conversations.Conversation{
		ID:    "c1",
		Title: "Stored",
		Messages: []conversations.Message{
			{ID: "u1", Role: conversations.RoleUser, Text: "Hi"},
			{ID: "a1", Role: conversations.RoleModel, Text: "Hel", IsStreaming: true},
		},
	})
	conversation := NewConversation(WithStore(store), WithConversationID("c1"))

	if err := conversation.Load(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conversation.Title() != "Stored" || len(conversation.Messages()) != 2 {
		t.Fatalf("expected stored conversation, got %q with %d messages", conversation.Title(), len(conversation.Messages()))
	}
	if restored := lastMessage(conversation); restored.IsStreaming || !restored.Abandoned {
		t.Fatalf("expected interrupted stream to be restored as abandoned, got %+v", restored)
	}
}

func TestStartNewResetsMessages(t *testing.T) {
	llm := &llmStub{streams: []llms.Stream{sliceStream{text("Answer.")}}}
	conversation := NewConversation(WithStreamingLLM(llm), WithWelcomeMessage(""))
	_ = conversation.SendPrompt(context.Background(), "Question?", nil)
	previous := conversation.ID()

	id := conversation.StartNew()
	if id == previous || conversation.ID() != id {
		t.Fatalf("expected a new conversation id")
	}
	if len(conversation.Messages()) != 0 || conversation.Title() != conversations.DefaultTitle {
		t.Fatalf("expected empty conversation, got %+v", conversation.Messages())
	}
}
