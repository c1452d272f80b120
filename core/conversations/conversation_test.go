package conversations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-companion/core/llms"
)

func TestHistorySkipsWelcomeStreamingAndAbandonedMessages(t *testing.T) {
	conversation := Conversation{Messages: []Message{
		{ID: WelcomePrefix + "1", Role: RoleModel, Text: DefaultWelcomeText},
		{ID: "u1", Role: RoleUser, Text: "How do I sleep better?"},
		{ID: "a1", Role: RoleModel, Text: "Keep a schedule."},
		{ID: "u2", Role: RoleUser, Text: "And stress?"},
		{ID: "a2", Role: RoleModel, Text: "Brea", Abandoned: true},
		{ID: "u3", Role: RoleUser, Text: "Hello?"},
		{ID: "a3", Role: RoleModel, Text: "Hi", IsStreaming: true},
	}}

	history := conversation.History()
	expected := []llms.Turn{
		{Role: llms.TurnRoleUser, Content: "How do I sleep better?"},
		{Role: llms.TurnRoleAssistant, Content: "Keep a schedule."},
		{Role: llms.TurnRoleUser, Content: "And stress?"},
		{Role: llms.TurnRoleUser, Content: "Hello?"},
	}
	if len(history) != len(expected) {
		t.Fatalf("expected %d turns, got %+v", len(expected), history)
	}
	for i := range expected {
		if history[i] != expected[i] {
			t.Fatalf("expected turn %d to be %+v, got %+v", i, expected[i], history[i])
		}
	}
}

func TestTitleFor(t *testing.T) {
	if got := TitleFor("  "); got != ImageOnlyTitle {
		t.Fatalf("expected %q, got %q", ImageOnlyTitle, got)
	}
	if got := TitleFor("short"); got != "short" {
		t.Fatalf("expected short, got %q", got)
	}
	long := strings.Repeat("é", 40)
	if got := TitleFor(long); got != strings.Repeat("é", 30) {
		t.Fatalf("expected title cut at 30 runes, got %q", got)
	}
}

func TestSystemInstructionListsMemories(t *testing.T) {
	instruction := SystemInstruction([]Memory{
		{Text: "Peanuts", Category: MemoryCategoryAllergy},
		{Text: "Walk more", Category: "unknown"},
	})

	if !strings.Contains(instruction, "USER HEALTH CONTEXT (MEMORIES):\n- [Allergy] Peanuts\n- [General] Walk more\n") {
		t.Fatalf("expected memory section, got %q", instruction)
	}
	if !strings.Contains(instruction, AssistantName) {
		t.Fatalf("expected persona name in instruction")
	}
}

func TestSystemInstructionWithoutMemoriesOmitsSection(t *testing.T) {
	if strings.Contains(SystemInstruction(nil), "MEMORIES") {
		t.Fatalf("expected no memory section")
	}
}

func TestMemoryStoreRoundTripsClones(t *testing.T) {
	store := NewMemoryStore(Memory{ID: "m1", Text: "Peanuts", Category: MemoryCategoryAllergy})
	ctx := context.Background()

	conversation := Conversation{
		ID:        "c1",
		Title:     "Sleep",
		UpdatedAt: time.Now(),
		Messages: []Message{{
			ID:      "a1",
			Role:    RoleModel,
			Text:    "Keep a schedule.",
			Sources: []llms.Citation{{Title: "A", URI: "https://a.example"}},
		}},
	}
	if err := store.SaveSnapshot(ctx, conversation); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	conversation.Messages[0].Sources[0].Title = "mutated"

	loaded, err := store.LoadConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if loaded.Messages[0].Sources[0].Title != "A" {
		t.Fatalf("expected stored snapshot to be isolated from caller, got %q", loaded.Messages[0].Sources[0].Title)
	}

	if _, err := store.LoadConversation(ctx, "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	memories, err := store.ListMemories(ctx)
	if err != nil || len(memories) != 1 {
		t.Fatalf("expected one memory, got %v (%v)", memories, err)
	}
}

func TestMemoryStoreListsMostRecentFirst(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	_ = store.SaveSnapshot(context.Background(), Conversation{ID: "old", UpdatedAt: now.Add(-time.Hour)})
	_ = store.SaveSnapshot(context.Background(), Conversation{ID: "new", UpdatedAt: now})

	conversations := store.ListConversations()
	if len(conversations) != 2 || conversations[0].ID != "new" {
		t.Fatalf("expected newest first, got %+v", conversations)
	}
}

func TestMemoryStoreAddAndDeleteMemories(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	goal, err := store.AddMemory(ctx, "Run 5k", MemoryCategoryGoal)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	other, err := store.AddMemory(ctx, "Likes tea", "Hobby")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if goal.ID == "" || goal.ID == other.ID {
		t.Fatalf("expected distinct memory ids, got %q and %q", goal.ID, other.ID)
	}
	if other.Category != MemoryCategoryGeneral {
		t.Fatalf("expected unknown category to become General, got %q", other.Category)
	}

	if err := store.DeleteMemory(ctx, goal.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	memories, _ := store.ListMemories(ctx)
	if len(memories) != 1 || memories[0].ID != other.ID {
		t.Fatalf("expected only the remaining memory, got %+v", memories)
	}
}
