package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/koscakluka/ema-companion/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// promptPrefix steers audio-capable models into plain narration.
	promptPrefix = "Read this clearly: "
)

// Client synthesizes speech through the Gemini generateContent endpoint with
// the audio response modality. Returned audio is raw 24kHz mono linear16.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Synthesize(ctx context.Context, req texttospeech.Request) (texttospeech.Response, error) {
	ctx, span := tracer.Start(ctx, "gemini synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", req.ModelID),
		attribute.String("request.voice", req.VoiceID),
	)

	body := requestBody{
		Contents: []content{{Parts: []part{{Text: promptPrefix + req.Text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: req.VoiceID}},
			},
		},
	}

	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return texttospeech.Response{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(req.ModelID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return texttospeech.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return texttospeech.Response{}, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := parseError(resp)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return texttospeech.Response{}, err
	}

	var parsed responseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		err = fmt.Errorf("error unmarshalling JSON: %w", err)
		span.RecordError(err)
		return texttospeech.Response{}, err
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		span.SetAttributes(attribute.String("response.block_reason", parsed.PromptFeedback.BlockReason))
		return texttospeech.Response{Rejected: true}, nil
	}
	if len(parsed.Candidates) == 0 {
		return texttospeech.Response{}, nil
	}

	candidate := parsed.Candidates[0]
	span.SetAttributes(attribute.String("response.finish_reason", candidate.FinishReason))
	if candidate.FinishReason == "SAFETY" {
		return texttospeech.Response{Rejected: true}, nil
	}

	for _, p := range candidate.Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		audio, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			err = fmt.Errorf("error decoding audio payload: %w", err)
			span.RecordError(err)
			return texttospeech.Response{}, err
		}
		span.SetAttributes(attribute.Int("response.audio_bytes", len(audio)))
		return texttospeech.Response{Audio: audio}, nil
	}

	return texttospeech.Response{}, nil
}

// parseError maps an error response onto the synthesis error taxonomy.
func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		readErr := fmt.Errorf("error reading error body: %w", err)
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", texttospeech.ErrQuotaExceeded, readErr)
		}
		return fmt.Errorf("non-OK HTTP status: %s: %w", resp.Status, readErr)
	}

	var apiErr errorBody
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
		return fmt.Errorf("%w: %s", texttospeech.ErrQuotaExceeded, message)
	}
	return fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, message)
}
