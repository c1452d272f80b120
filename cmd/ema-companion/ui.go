package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/ema-companion/core"
	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/koscakluka/ema-companion/internal/store"
	"github.com/muesli/reflow/wordwrap"
)

const helpText = "enter send · ctrl+s speak · ctrl+x stop · ctrl+n new chat · /help commands · ctrl+c quit"

const commandsText = `/image <path>       attach an image to the next prompt
/up, /down          rate the last answer
/remove             delete the last message
/remember [cat:] t  save a memory (Allergy, Condition, Goal, General)
/forget <n>         delete memory n
/memories           list memories
/history            list recent chats`

var (
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	mutedStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	bubbleStyle         = lipgloss.NewStyle().PaddingLeft(2)
)

type historyLister interface {
	ListConversations(ctx context.Context, limit int) ([]store.ConversationSummary, error)
}

type eventMsg struct{ event events.Event }

type promptDoneMsg struct{ err error }

type statusMsg struct {
	text string
	err  error
}

type model struct {
	ctx          context.Context
	conversation *orchestration.Conversation
	speaker      *orchestration.Speaker
	memories     conversations.MemoryKeeper
	events       <-chan events.Event

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int

	pendingImage *llms.Image
	status       string
	statusErr    bool
}

func newModel(ctx context.Context, conversation *orchestration.Conversation, speaker *orchestration.Speaker, memories conversations.MemoryKeeper, uiEvents <-chan events.Event) model {
	input := textinput.New()
	input.Placeholder = "Ask about your health and wellness..."
	input.Focus()
	input.CharLimit = 4000

	return model{
		ctx:          ctx,
		conversation: conversation,
		speaker:      speaker,
		memories:     memories,
		events:       uiEvents,
		input:        input,
		status:       helpText,
	}
}

func waitForEvent(uiEvents <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-uiEvents
		if !ok {
			return nil
		}
		return eventMsg{event: event}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-3, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			cmd := m.submit()
			m.refresh()
			return m, cmd
		case "ctrl+s":
			m.toggleSpeech()
			m.refresh()
			return m, nil
		case "ctrl+x":
			m.conversation.Abandon()
			m.setStatus("stopped", false)
			m.refresh()
			return m, nil
		case "ctrl+n":
			m.speaker.StopAll()
			m.conversation.StartNew()
			m.pendingImage = nil
			m.setStatus("started a new chat", false)
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case eventMsg:
		m.handleEvent(msg.event)
		m.refresh()
		return m, waitForEvent(m.events)

	case promptDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, orchestration.ErrStreamInterrupted) {
			m.setStatus(msg.err.Error(), true)
		}
		m.refresh()
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		} else {
			m.setStatus(msg.text, false)
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	status := statusStyle.Render(m.status)
	if m.statusErr {
		status = errorStyle.Render(m.status)
	}
	if m.pendingImage != nil {
		status = mutedStyle.Render("[image attached] ") + status
	}
	return m.viewport.View() + "\n" + status + "\n" + m.input.View()
}

func (m *model) setStatus(text string, isError bool) {
	m.status = text
	m.statusErr = isError
}

func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}
	if text == "" && m.pendingImage == nil {
		return nil
	}

	image := m.pendingImage
	m.pendingImage = nil
	m.setStatus(helpText, false)

	ctx, conversation := m.ctx, m.conversation
	return func() tea.Msg {
		return promptDoneMsg{err: conversation.SendPrompt(ctx, text, image)}
	}
}

func (m *model) runCommand(line string) tea.Cmd {
	command, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)
	ctx := m.ctx

	switch command {
	case "/help":
		m.setStatus(strings.ReplaceAll(commandsText, "\n", " | "), false)
	case "/image":
		image, err := readImage(argument)
		if err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.pendingImage = &image
		m.setStatus("image attached to the next prompt", false)
	case "/up", "/down":
		message, ok := m.lastAssistantMessage()
		if !ok {
			m.setStatus("nothing to rate yet", true)
			return nil
		}
		rating := conversations.RatingUp
		if command == "/down" {
			rating = conversations.RatingDown
		}
		conversation := m.conversation
		return func() tea.Msg {
			return statusMsg{text: "rating saved", err: conversation.RateMessage(ctx, message.ID, rating)}
		}
	case "/remove":
		messages := m.conversation.Messages()
		if len(messages) == 0 {
			return nil
		}
		last := messages[len(messages)-1]
		if err := m.speaker.Remove(last.ID); err != nil {
			m.setStatus(err.Error(), true)
		}
		conversation := m.conversation
		return func() tea.Msg {
			return statusMsg{text: "message removed", err: conversation.RemoveMessage(ctx, last.ID)}
		}
	case "/remember":
		if argument == "" {
			m.setStatus("usage: /remember [category:] text", true)
			return nil
		}
		category, text := parseMemory(argument)
		keeper, conversation := m.memories, m.conversation
		return func() tea.Msg {
			memory, err := keeper.AddMemory(ctx, text, category)
			if err != nil {
				return statusMsg{err: err}
			}
			if err := conversation.RefreshMemories(ctx); err != nil {
				return statusMsg{err: err}
			}
			return statusMsg{text: "remembered " + memory.String()}
		}
	case "/forget":
		index, err := strconv.Atoi(argument)
		memories := m.conversation.Memories()
		if err != nil || index < 1 || index > len(memories) {
			m.setStatus(fmt.Sprintf("usage: /forget <1-%d>", len(memories)), true)
			return nil
		}
		memory := memories[index-1]
		keeper, conversation := m.memories, m.conversation
		return func() tea.Msg {
			if err := keeper.DeleteMemory(ctx, memory.ID); err != nil {
				return statusMsg{err: err}
			}
			if err := conversation.RefreshMemories(ctx); err != nil {
				return statusMsg{err: err}
			}
			return statusMsg{text: "forgot " + memory.String()}
		}
	case "/memories":
		memories := m.conversation.Memories()
		if len(memories) == 0 {
			m.setStatus("no memories saved", false)
			return nil
		}
		lines := make([]string, 0, len(memories))
		for i, memory := range memories {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, memory))
		}
		m.setStatus(strings.Join(lines, " | "), false)
	case "/history":
		lister, ok := m.memories.(historyLister)
		if !ok {
			m.setStatus("history is not kept by this store", true)
			return nil
		}
		return func() tea.Msg {
			summaries, err := lister.ListConversations(ctx, 10)
			if err != nil {
				return statusMsg{err: err}
			}
			titles := make([]string, 0, len(summaries))
			for _, summary := range summaries {
				titles = append(titles, fmt.Sprintf("%s (%s)", summary.Title, summary.UpdatedAt.Format("Jan 2 15:04")))
			}
			return statusMsg{text: strings.Join(titles, " | ")}
		}
	default:
		m.setStatus("unknown command "+command, true)
	}
	return nil
}

func (m *model) toggleSpeech() {
	message, ok := m.lastAssistantMessage()
	if !ok || message.IsStreaming {
		m.setStatus("nothing to read yet", true)
		return
	}
	state := m.speaker.Toggle(m.ctx, message.ID, message.Text)
	m.setStatus("speech "+state.String(), false)
}

func (m *model) lastAssistantMessage() (conversations.Message, bool) {
	messages := m.conversation.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversations.RoleModel && strings.TrimSpace(messages[i].Text) != "" {
			return messages[i], true
		}
	}
	return conversations.Message{}, false
}

func (m *model) handleEvent(event events.Event) {
	switch e := event.(type) {
	case events.AssistantPlaybackFailed:
		m.setStatus("speech failed: "+e.Err.Error(), true)
	case events.AssistantPlaybackStateChanged:
		m.setStatus("speech "+e.State, false)
	case events.TurnFailed:
		if e.Err != nil && !errors.Is(e.Err, orchestration.ErrStreamInterrupted) {
			m.setStatus(e.Err.Error(), true)
		}
	case events.AssistantResponseInterrupted:
		m.setStatus("response interrupted", true)
	}
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m *model) render() string {
	width := max(m.width-4, 20)

	var b strings.Builder
	b.WriteString(mutedStyle.Render(m.conversation.Title()))
	b.WriteString("\n\n")

	for _, message := range m.conversation.Messages() {
		if message.Role == conversations.RoleUser {
			b.WriteString(userLabelStyle.Render("You"))
		} else {
			b.WriteString(assistantLabelStyle.Render(conversations.AssistantName))
			if state := m.speaker.State(message.ID); state != orchestration.PlaybackIdle {
				b.WriteString(mutedStyle.Render(" ♪ " + state.String()))
			}
			switch message.Rating {
			case conversations.RatingUp:
				b.WriteString(mutedStyle.Render(" +1"))
			case conversations.RatingDown:
				b.WriteString(mutedStyle.Render(" -1"))
			}
		}
		b.WriteString("\n")

		text := message.Text
		if message.Image != nil {
			text = "[image] " + text
		}
		if message.IsStreaming {
			text += "▍"
		}
		b.WriteString(bubbleStyle.Render(wordwrap.String(text, width)))
		b.WriteString("\n")

		if message.Abandoned {
			b.WriteString(mutedStyle.Render("  (stopped)"))
			b.WriteString("\n")
		}
		for i, source := range message.Sources {
			line := fmt.Sprintf("[%d] %s %s", i+1, source.Title, source.URI)
			b.WriteString(mutedStyle.Render(bubbleStyle.Render(wordwrap.String(line, width))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func readImage(path string) (llms.Image, error) {
	if path == "" {
		return llms.Image{}, errors.New("usage: /image <path>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return llms.Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return llms.Image{}, fmt.Errorf("%s is not an image (%s)", path, mimeType)
	}
	return llms.Image{MIMEType: mimeType, Data: data}, nil
}

// parseMemory splits "Allergy: peanuts" into its category and text. Text
// without a known category prefix is filed as General.
func parseMemory(argument string) (conversations.MemoryCategory, string) {
	prefix, rest, found := strings.Cut(argument, ":")
	if found {
		name := strings.ToLower(strings.TrimSpace(prefix))
		if name != "" {
			name = strings.ToUpper(name[:1]) + name[1:]
		}
		if category := conversations.MemoryCategory(name); category.Valid() {
			return category, strings.TrimSpace(rest)
		}
	}
	return conversations.MemoryCategoryGeneral, argument
}
