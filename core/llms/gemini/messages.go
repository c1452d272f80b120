package gemini

import (
	"encoding/base64"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-companion/core/llms"
)

type requestBody struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Tools             []tool    `json:"tools,omitempty"`
}

type content struct {
	Role  contentRole `json:"role,omitempty"`
	Parts []part      `json:"parts"`
}

type contentRole string

const (
	contentRoleUser  contentRole = "user"
	contentRoleModel contentRole = "model"
)

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type tool struct {
	GoogleSearch *googleSearch `json:"googleSearch,omitempty"`
}

type googleSearch struct{}

type streamingResponseBody struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content           content            `json:"content"`
	FinishReason      string             `json:"finishReason,omitempty"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
}

type groundingMetadata struct {
	WebSearchQueries []string         `json:"webSearchQueries,omitempty"`
	GroundingChunks  []groundingChunk `json:"groundingChunks,omitempty"`
}

type groundingChunk struct {
	Web *webChunk `json:"web,omitempty"`
}

type webChunk struct {
	URI    string `json:"uri"`
	Title  string `json:"title"`
	Domain string `json:"domain,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func toContents(turns []llms.Turn, prompt *string, images []llms.Image) []content {
	contents := []content{}
	for _, turn := range turns {
		if turn.Content == "" {
			continue
		}
		role := contentRoleUser
		if turn.Role == llms.TurnRoleAssistant {
			role = contentRoleModel
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: turn.Content}}})
	}

	var parts []part
	if prompt != nil {
		parts = append(parts, part{Text: *prompt})
	}
	for _, image := range images {
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(image.Data),
		}})
	}
	if len(parts) > 0 {
		contents = append(contents, content{Role: contentRoleUser, Parts: parts})
	}

	return contents
}

// toCitations keeps web sources that carry both a link and a title.
func toCitations(metadata *groundingMetadata) []llms.Citation {
	if metadata == nil {
		return nil
	}

	var citations []llms.Citation
	for _, chunk := range metadata.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" || chunk.Web.Title == "" {
			continue
		}
		var citation llms.Citation
		if err := copier.Copy(&citation, chunk.Web); err != nil {
			logger.Warn("failed to copy grounding chunk", "error", err)
			continue
		}
		citations = append(citations, citation)
	}
	return citations
}
