package llms

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is a single completed turn of prior conversation history.
type Turn struct {
	Role TurnRole
	// Content is the prompt in user's turn and the response in assistant's
	// turn.
	Content string
}

// Image is an inline image attached to a prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

const defaultImageMIMEType = "image/jpeg"

// ParseImageDataURL decodes a data URL ("data:image/png;base64,....") or a
// bare base64 payload. Bare payloads are assumed to be JPEG.
func ParseImageDataURL(dataURL string) (Image, error) {
	mimeType := defaultImageMIMEType
	payload := dataURL
	if header, data, found := strings.Cut(dataURL, ","); found {
		payload = data
		if strings.HasPrefix(header, "data:") {
			if declared, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";"); declared != "" {
				mimeType = declared
			}
		}
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("empty image")
	}

	return Image{MIMEType: mimeType, Data: data}, nil
}
