package texttospeech

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultMaxChunkLength = 150

// Chunk is one bounded unit of speakable text with its position in the parent
// message.
type Chunk struct {
	Index int
	Text  string
}

var (
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	emphasisPattern = regexp.MustCompile(`\*(.*?)\*`)
	linkPattern     = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	headingPattern  = regexp.MustCompile(`(?m)^#+\s+`)
	markupPattern   = regexp.MustCompile("[#`_~]")
	listPattern     = regexp.MustCompile(`(?m)^[-+]\s+`)

	// segmentPattern matches sentences ending in a run of terminal
	// punctuation, or an unterminated remainder.
	segmentPattern = regexp.MustCompile(`[^.!?]*[.!?]+|[^.!?]+`)
)

// Normalize strips markdown emphasis, headings, list markers and link syntax
// so only readable prose is sent to synthesis.
func Normalize(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = emphasisPattern.ReplaceAllString(text, "$1")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	text = markupPattern.ReplaceAllString(text, "")
	text = listPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ChunkText normalizes text and greedily packs its sentences into chunks of at
// most maxLength characters. A single sentence longer than maxLength becomes
// its own chunk rather than being cut.
func ChunkText(text string, maxLength int) []Chunk {
	if maxLength <= 0 {
		maxLength = DefaultMaxChunkLength
	}

	cleaned := Normalize(text)
	if cleaned == "" {
		return nil
	}

	var chunks []Chunk
	push := func(text string) {
		if text = strings.TrimSpace(text); text != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: text})
		}
	}

	current := ""
	for _, segment := range segmentPattern.FindAllString(cleaned, -1) {
		if utf8.RuneCountInString(current+segment) > maxLength && strings.TrimSpace(current) != "" {
			push(current)
			current = segment
			continue
		}
		current += segment
	}
	push(current)

	return chunks
}

// ChunkTexts returns the text of each chunk in order.
func ChunkTexts(chunks []Chunk) []string {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	return texts
}
