package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/koscakluka/ema-companion/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrLLMNotConfigured = errors.New("LLM not configured")
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrMessageNotFound  = errors.New("message not found")
)

// Conversation drives chat turns: it appends messages, streams responses
// through a StreamSession and persists finished turns.
//
// Events for response updates are emitted while the stream session is
// locked; handlers must not block or call back into the conversation.
type Conversation struct {
	llm          LLMWithStream
	store        conversations.Store
	emit         eventEmitter
	welcome      string
	googleSearch bool
	now          func() time.Time

	session *StreamSession

	mu sync.Mutex
	// latest is the newest epoch seen under mu. A turn reaching mu with an
	// older epoch was superseded before it registered its response.
	latest    Epoch
	id        string
	title     string
	messages  []conversations.Message
	memories  []conversations.Memory
	responses map[Epoch]string
	updatedAt time.Time
}

func NewConversation(opts ...ConversationOption) *Conversation {
	c := &Conversation{
		emit:         noopEventEmitter,
		welcome:      conversations.DefaultWelcomeText,
		googleSearch: true,
		now:          time.Now,
		responses:    map[Epoch]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = conversations.NewMemoryStore()
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}

	c.session = NewStreamSession(c.applySnapshot)
	c.startLocked(c.id)
	return c
}

func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.id
}

func (c *Conversation) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.title
}

// Messages returns a point-in-time copy of the conversation messages.
func (c *Conversation) Messages() []conversations.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked().Messages
}

func (c *Conversation) Snapshot() conversations.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *Conversation) Memories() []conversations.Memory {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.memories)
}

// Load restores the stored conversation with the current ID, if any, and
// refreshes memories. Streams still running are abandoned.
func (c *Conversation) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "load conversation")
	defer span.End()

	memories, err := c.store.ListMemories(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list memories: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	id := c.ID()
	stored, err := c.store.LoadConversation(ctx, id)
	if err != nil && !errors.Is(err, conversations.ErrConversationNotFound) {
		err = fmt.Errorf("failed to load conversation %s: %w", id, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	found := err == nil

	epoch := c.session.Reset()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeLocked(epoch)
	c.memories = memories
	if !found {
		return nil
	}

	c.title = stored.Title
	c.updatedAt = stored.UpdatedAt
	c.messages = stored.Clone().Messages
	clear(c.responses)
	for i := range c.messages {
		if c.messages[i].IsStreaming {
			c.messages[i].IsStreaming = false
			c.messages[i].Abandoned = true
		}
	}
	span.SetAttributes(attribute.Int("conversation.messages", len(c.messages)))
	return nil
}

// StartNew abandons any running stream and switches to a fresh conversation.
func (c *Conversation) StartNew() string {
	epoch := c.session.Reset()

	c.mu.Lock()
	c.observeLocked(epoch)
	id := uuid.NewString()
	c.startLocked(id)
	c.mu.Unlock()

	c.emit(events.NewTurnCancelled(uint64(epoch)))
	return id
}

func (c *Conversation) startLocked(id string) {
	now := c.now()
	c.id = id
	c.title = conversations.DefaultTitle
	c.updatedAt = now
	c.messages = nil
	clear(c.responses)
	if c.welcome != "" {
		c.messages = append(c.messages, conversations.Message{
			ID:        conversations.WelcomePrefix + strconv.FormatInt(now.UnixMilli(), 10),
			Role:      conversations.RoleModel,
			Text:      c.welcome,
			Timestamp: now,
		})
	}
}

// Abandon supersedes the running stream, keeping whatever text it produced.
func (c *Conversation) Abandon() {
	epoch := c.session.Reset()

	c.mu.Lock()
	c.observeLocked(epoch)
	c.abandonStreamingLocked(epoch)
	c.mu.Unlock()

	c.emit(events.NewTurnCancelled(uint64(epoch)))
}

// SendPrompt appends the user message and streams the reply. It returns nil
// when the turn is superseded by a newer prompt.
func (c *Conversation) SendPrompt(ctx context.Context, text string, image *llms.Image) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && image == nil {
		return ErrEmptyPrompt
	}
	if c.llm == nil {
		return ErrLLMNotConfigured
	}

	return c.sendTurn(ctx, c.session.BeginTurn(), trimmed, image)
}

// sendTurn runs one turn for an epoch already minted by the session. Turns
// whose epoch was superseded before they registered add nothing.
func (c *Conversation) sendTurn(ctx context.Context, epoch Epoch, trimmed string, image *llms.Image) error {
	ctx, span := tracer.Start(ctx, "send prompt")
	defer span.End()
	span.SetAttributes(attribute.Int64("turn.epoch", int64(epoch)))

	c.mu.Lock()
	if epoch < c.latest {
		c.mu.Unlock()
		span.SetAttributes(attribute.Bool("turn.superseded", true))
		c.emit(events.NewTurnCancelled(uint64(epoch)))
		return nil
	}
	c.observeLocked(epoch)
	c.abandonStreamingLocked(epoch)
	history := c.snapshotLocked().History()
	instruction := conversations.SystemInstruction(c.memories)
	if !c.hasUserMessageLocked() {
		c.title = conversations.TitleFor(trimmed)
	}

	now := c.now()
	userMessage := conversations.Message{
		ID:        uuid.NewString(),
		Role:      conversations.RoleUser,
		Text:      trimmed,
		Image:     image,
		Timestamp: now,
	}
	responseID := uuid.NewString()
	c.messages = append(c.messages, userMessage, conversations.Message{
		ID:          responseID,
		Role:        conversations.RoleModel,
		IsStreaming: true,
		Timestamp:   now,
	})
	c.responses[epoch] = responseID
	c.updatedAt = now
	c.mu.Unlock()

	c.emit(events.NewUserPromptSubmitted(userMessage.ID, trimmed, image != nil))
	c.emit(events.NewTurnStarted(uint64(epoch)))
	c.emit(events.NewAssistantResponseStarted(responseID, uint64(epoch)))

	opts := []llms.StreamingPromptOption{
		llms.WithSystemPrompt(instruction),
		llms.WithTurns(history...),
	}
	if c.googleSearch {
		opts = append(opts, llms.WithGoogleSearch())
	}
	if image != nil {
		opts = append(opts, llms.WithImage(*image))
	}

	var prompt *string
	if trimmed != "" {
		prompt = utils.Ptr(trimmed)
	}
	streamErr := c.session.Run(ctx, epoch, c.llm.PromptWithStream(ctx, prompt, opts...))
	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, streamErr.Error())
		logger.Warn("response stream interrupted", "epoch", epoch, "error", streamErr)
		c.emit(events.NewAssistantResponseInterrupted(responseID, uint64(epoch), streamErr))
		c.emit(events.NewTurnFailed(uint64(epoch), streamErr))
	} else if c.completed(responseID) {
		c.emit(events.NewTurnCompleted(uint64(epoch)))
	}

	if err := c.save(context.WithoutCancel(ctx)); err != nil {
		span.RecordError(err)
		logger.Error("failed to save conversation", "error", err)
		if streamErr == nil {
			return err
		}
	}
	return streamErr
}

// RateMessage sets the rating of a message. Rating it again with the same
// value clears the rating.
func (c *Conversation) RateMessage(ctx context.Context, messageID string, rating conversations.Rating) error {
	c.mu.Lock()
	i := c.indexLocked(messageID)
	if i < 0 {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	if c.messages[i].Rating == rating {
		rating = conversations.RatingNone
	}
	c.messages[i].Rating = rating
	c.mu.Unlock()

	return c.save(ctx)
}

// RemoveMessage drops a message. Removing a response that is still streaming
// leaves the stream running without a visible message.
func (c *Conversation) RemoveMessage(ctx context.Context, messageID string) error {
	c.mu.Lock()
	i := c.indexLocked(messageID)
	if i < 0 {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	c.messages = slices.Delete(c.messages, i, i+1)
	c.updatedAt = c.now()
	c.mu.Unlock()

	return c.save(ctx)
}

// RefreshMemories reloads memories used for the next system instruction.
func (c *Conversation) RefreshMemories(ctx context.Context) error {
	memories, err := c.store.ListMemories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list memories: %w", err)
	}

	c.mu.Lock()
	c.memories = memories
	c.mu.Unlock()
	return nil
}

func (c *Conversation) applySnapshot(snapshot MessageSnapshot) {
	c.mu.Lock()
	responseID, ok := c.responses[snapshot.Epoch]
	if !ok {
		c.mu.Unlock()
		return
	}
	if !snapshot.IsStreaming {
		delete(c.responses, snapshot.Epoch)
	}
	i := c.indexLocked(responseID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.messages[i].Text = snapshot.Text
	c.messages[i].Sources = snapshot.Sources
	c.messages[i].IsStreaming = snapshot.IsStreaming
	c.updatedAt = c.now()
	c.mu.Unlock()

	if snapshot.IsStreaming {
		c.emit(events.NewAssistantResponseUpdated(responseID, uint64(snapshot.Epoch), snapshot.Text, snapshot.Sources))
	} else {
		c.emit(events.NewAssistantResponseFinal(responseID, uint64(snapshot.Epoch), snapshot.Text, snapshot.Sources))
	}
}

func (c *Conversation) completed(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(messageID)
	return i >= 0 && !c.messages[i].IsStreaming && !c.messages[i].Abandoned
}

func (c *Conversation) save(ctx context.Context) error {
	if err := c.store.SaveSnapshot(ctx, c.Snapshot()); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (c *Conversation) observeLocked(epoch Epoch) {
	c.latest = max(c.latest, epoch)
}

// abandonStreamingLocked freezes responses registered for epochs older than
// before.
func (c *Conversation) abandonStreamingLocked(before Epoch) {
	for epoch, responseID := range c.responses {
		if epoch >= before {
			continue
		}
		delete(c.responses, epoch)
		if i := c.indexLocked(responseID); i >= 0 && c.messages[i].IsStreaming {
			c.messages[i].IsStreaming = false
			c.messages[i].Abandoned = true
		}
	}
}

func (c *Conversation) hasUserMessageLocked() bool {
	return slices.ContainsFunc(c.messages, func(m conversations.Message) bool {
		return m.Role == conversations.RoleUser
	})
}

func (c *Conversation) indexLocked(messageID string) int {
	return slices.IndexFunc(c.messages, func(m conversations.Message) bool {
		return m.ID == messageID
	})
}

func (c *Conversation) snapshotLocked() conversations.Conversation {
	return conversations.Conversation{
		ID:        c.id,
		Title:     c.title,
		Messages:  c.messages,
		UpdatedAt: c.updatedAt,
	}.Clone()
}
