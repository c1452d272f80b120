package conversations

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations and memories. Implementations must be safe for
// concurrent use.
type Store interface {
	LoadConversation(ctx context.Context, id string) (Conversation, error)
	SaveSnapshot(ctx context.Context, conversation Conversation) error
	ListMemories(ctx context.Context) ([]Memory, error)
}

// MemoryKeeper records and forgets user memories.
type MemoryKeeper interface {
	AddMemory(ctx context.Context, text string, category MemoryCategory) (Memory, error)
	DeleteMemory(ctx context.Context, id string) error
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	memories      []Memory
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ MemoryKeeper = (*MemoryStore)(nil)
)

func NewMemoryStore(memories ...Memory) *MemoryStore {
	return &MemoryStore{
		conversations: map[string]Conversation{},
		memories:      slices.Clone(memories),
	}
}

func (s *MemoryStore) LoadConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return conversation.Clone(), nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, conversation Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conversation.ID] = conversation.Clone()
	return nil
}

func (s *MemoryStore) ListMemories(_ context.Context) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.memories), nil
}

func (s *MemoryStore) AddMemory(_ context.Context, text string, category MemoryCategory) (Memory, error) {
	if !category.Valid() {
		category = MemoryCategoryGeneral
	}
	memory := Memory{ID: uuid.NewString(), Text: text, Category: category, CreatedAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories = append(s.memories, memory)
	return memory, nil
}

func (s *MemoryStore) DeleteMemory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories = slices.DeleteFunc(s.memories, func(memory Memory) bool { return memory.ID == id })
	return nil
}

// ListConversations returns stored conversations, most recently updated first.
func (s *MemoryStore) ListConversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversations := make([]Conversation, 0, len(s.conversations))
	for _, conversation := range s.conversations {
		conversations = append(conversations, conversation.Clone())
	}
	slices.SortFunc(conversations, func(a, b Conversation) int {
		return cmp.Compare(b.UpdatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	})
	return conversations
}
