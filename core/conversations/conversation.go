package conversations

import (
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/ema-companion/core/llms"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Rating string

const (
	RatingNone Rating = ""
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// WelcomePrefix marks locally generated greeting messages. They are shown
// but never sent to the model as history.
const WelcomePrefix = "init-"

const (
	DefaultTitle       = "New Session"
	ImageOnlyTitle     = "Image Analysis"
	titleMaxRunes      = 30
	DefaultWelcomeText = "How can I help you with your health and wellness today? \n\n" +
		"I can analyze symptoms, provide nutrition tips, or explain general health topics."
)

type Message struct {
	ID          string
	Role        Role
	Text        string
	Image       *llms.Image
	Sources     []llms.Citation
	IsStreaming bool
	// Abandoned is set on assistant messages whose stream was superseded
	// before completing.
	Abandoned bool
	Timestamp time.Time
	Rating    Rating
}

func (m Message) IsWelcome() bool {
	return strings.HasPrefix(m.ID, "init")
}

func (m Message) Clone() Message {
	clone := m
	clone.Sources = slices.Clone(m.Sources)
	if m.Image != nil {
		image := *m.Image
		image.Data = slices.Clone(m.Image.Data)
		clone.Image = &image
	}
	return clone
}

type Conversation struct {
	ID        string
	Title     string
	Messages  []Message
	UpdatedAt time.Time
}

func (c Conversation) Clone() Conversation {
	clone := c
	clone.Messages = make([]Message, len(c.Messages))
	for i, message := range c.Messages {
		clone.Messages[i] = message.Clone()
	}
	return clone
}

// History returns the finished turns that can be replayed to the model.
// Streaming, abandoned, empty and welcome messages are skipped.
func (c Conversation) History() []llms.Turn {
	turns := make([]llms.Turn, 0, len(c.Messages))
	for _, message := range c.Messages {
		if message.IsStreaming || message.Abandoned || message.IsWelcome() || message.Text == "" {
			continue
		}
		role := llms.TurnRoleUser
		if message.Role == RoleModel {
			role = llms.TurnRoleAssistant
		}
		turns = append(turns, llms.Turn{Role: role, Content: message.Text})
	}
	return turns
}

// TitleFor derives a conversation title from its first prompt.
func TitleFor(prompt string) string {
	runes := []rune(strings.TrimSpace(prompt))
	if len(runes) == 0 {
		return ImageOnlyTitle
	}
	if len(runes) > titleMaxRunes {
		runes = runes[:titleMaxRunes]
	}
	return string(runes)
}
