package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koscakluka/ema-companion/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-3-pro-preview"

	chunkPrefix = "data:"
)

// ErrRateLimited is returned when the service reports quota exhaustion.
var ErrRateLimited = errors.New("rate limited")

// Client opens streamed chats against the Gemini streamGenerateContent
// endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

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
		model:   DefaultModel,
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

// PromptWithStream prepares a streamed prompt. No request is sent until the
// returned stream is iterated.
func (c *Client) PromptWithStream(_ context.Context, prompt *string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.ApplyStreamingOptions(opts...)

	body := requestBody{Contents: toContents(options.Turns, prompt, options.Images)}
	if options.Instructions != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: options.Instructions}}}
	}
	if options.GoogleSearch {
		body.Tools = append(body.Tools, tool{GoogleSearch: &googleSearch{}})
	}

	return &Stream{client: c, body: body}
}

type Stream struct {
	client *Client
	body   requestBody
}

func (s *Stream) Fragments(ctx context.Context) func(func(llms.Fragment, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.Fragment, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))
		span.SetAttributes(attribute.Int("request.contents", len(s.body.Contents)))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(llms.Fragment{}, err)
		}

		requestBodyBytes, err := json.Marshal(s.body)
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", s.client.baseURL, url.PathEscape(s.client.model))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", s.client.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.Path))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			fail(parseError(resp))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, chunkPrefix) {
				continue
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			setRequestToFirstTokenTime(span)
			if len(chunk) == 0 {
				continue
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				fail(fmt.Errorf("error unmarshalling JSON: %w", err))
				return
			}

			if responseBody.PromptFeedback != nil && responseBody.PromptFeedback.BlockReason != "" {
				fail(fmt.Errorf("prompt blocked: %s", responseBody.PromptFeedback.BlockReason))
				return
			}

			if responseBody.UsageMetadata != nil {
				span.SetAttributes(
					attribute.Int("usage.input", responseBody.UsageMetadata.PromptTokenCount),
					attribute.Int("usage.output", responseBody.UsageMetadata.CandidatesTokenCount),
					attribute.Int("usage.total", responseBody.UsageMetadata.TotalTokenCount),
				)
			}

			if len(responseBody.Candidates) == 0 {
				continue
			}

			candidate := responseBody.Candidates[0]
			if candidate.FinishReason != "" {
				span.SetAttributes(attribute.String("response.finish_reason", candidate.FinishReason))
			}

			var text strings.Builder
			for _, p := range candidate.Content.Parts {
				text.WriteString(p.Text)
			}
			fragment := llms.Fragment{
				TextDelta: text.String(),
				Citations: toCitations(candidate.GroundingMetadata),
			}
			if fragment.TextDelta == "" && len(fragment.Citations) == 0 {
				continue
			}
			if !yield(fragment, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("non-OK HTTP status: %s: error reading error body: %w", resp.Status, err)
	}

	var apiErr errorBody
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	}
	return fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, message)
}
