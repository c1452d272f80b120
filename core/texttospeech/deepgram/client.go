package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-companion/core/audio"
	"github.com/koscakluka/ema-companion/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultURL = "wss://api.deepgram.com/v1/speak"

// TextToSpeechClient synthesizes one chunk per websocket session against the
// Deepgram Aura streaming endpoint. The request model selects the Aura voice.
type TextToSpeechClient struct {
	apiKey       string
	url          string
	encodingInfo audio.EncodingInfo
	dialer       *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func WithURL(rawURL string) ClientOption {
	return func(c *TextToSpeechClient) {
		if rawURL != "" {
			c.url = rawURL
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		if encodingInfo.IsZero() {
			logger.Warn("ignoring incomplete encoding info", "encoding", encodingInfo)
			return
		}
		c.encodingInfo = encodingInfo
	}
}

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}

	c := &TextToSpeechClient{
		apiKey:       apiKey,
		url:          DefaultURL,
		encodingInfo: audio.GetDefaultEncodingInfo(),
		dialer:       websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *TextToSpeechClient) EncodingInfo() audio.EncodingInfo { return c.encodingInfo }

// Synthesize sends the text, flushes, and collects binary audio until the
// server confirms the flush.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, req texttospeech.Request) (texttospeech.Response, error) {
	ctx, span := tracer.Start(ctx, "deepgram synthesize")
	defer span.End()

	voice := deepgramVoice(req.ModelID)
	if !IsAvailableVoice(voice) {
		voice = defaultVoice
	}
	span.SetAttributes(attribute.String("request.model", string(voice)))

	conn, err := c.connect(ctx, voice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return texttospeech.Response{}, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(sendTextMsg(req.Text)); err != nil {
		return texttospeech.Response{}, recordError(span, fmt.Errorf("failed to send text to deepgram through websocket: %w", err))
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return texttospeech.Response{}, recordError(span, fmt.Errorf("failed to flush deepgram buffer: %w", err))
	}

	var collected []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return texttospeech.Response{}, ctxErr
			}
			return texttospeech.Response{}, recordError(span, fmt.Errorf("websocket read error: %w", err))
		}

		switch msgType {
		case websocket.BinaryMessage:
			collected = append(collected, msg...)
		case websocket.TextMessage:
			var parsedMsg serverMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				_ = conn.WriteJSON(closeMsg)
				span.SetAttributes(attribute.Int("response.audio_bytes", len(collected)))
				return texttospeech.Response{Audio: collected}, nil
			case "Warning":
				logger.Warn("deepgram warning", "description", parsedMsg.Description)
			case "Error":
				return texttospeech.Response{}, recordError(span, fmt.Errorf("deepgram error: %s", parsedMsg.Description))
			}
		}
	}
}

func (c *TextToSpeechClient) connect(ctx context.Context, voice deepgramVoice) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram url: %w", err)
	}

	urlValues := endpoint.Query()
	urlValues.Set("encoding", c.encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")
	endpoint.RawQuery = urlValues.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", texttospeech.ErrQuotaExceeded, resp.Status)
		}
		if resp != nil {
			return nil, fmt.Errorf("failed to open socket connection to deepgram: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type serverMessage struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

var (
	sendTextMsg = func(text string) speakMessage {
		return speakMessage{Type: "Speak", Text: strings.TrimSpace(text)}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)
