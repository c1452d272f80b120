package texttospeech

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Client applies retry, backoff and model fallback on top of a Synthesizer.
type Client struct {
	synthesizer Synthesizer
	options     ClientOptions

	attemptCounter  metric.Int64Counter
	fallbackCounter metric.Int64Counter
}

func NewClient(synthesizer Synthesizer, opts ...ClientOption) *Client {
	c := &Client{synthesizer: synthesizer, options: defaultClientOptions()}
	for _, opt := range opts {
		opt(&c.options)
	}

	var err error
	if c.attemptCounter, err = meter.Int64Counter("tts.synthesis.attempts",
		metric.WithDescription("Synthesis requests issued, including retries"),
	); err != nil {
		c.attemptCounter = noop.Int64Counter{}
	}
	if c.fallbackCounter, err = meter.Int64Counter("tts.synthesis.fallbacks",
		metric.WithDescription("Switches to the fallback model after quota exhaustion"),
	); err != nil {
		c.fallbackCounter = noop.Int64Counter{}
	}

	return c
}

func (c *Client) Options() ClientOptions { return c.options }

// NewSession starts a speech request. Fallback state is scoped to the
// returned session so unrelated messages always start on the primary model.
func (c *Client) NewSession() *Session {
	return &Session{client: c, model: c.options.PrimaryModel}
}

// Session synthesizes the chunks of one speech request. It is not safe for
// concurrent use; chunks are expected strictly in order.
type Session struct {
	client   *Client
	model    string
	fellBack bool
}

// Model returns the model the next attempt will use.
func (s *Session) Model() string { return s.model }

// FellBack reports whether quota exhaustion moved this session onto the
// fallback model.
func (s *Session) FellBack() bool { return s.fellBack }

// SynthesizeAll synthesizes chunks in order and aborts on the first chunk
// that fails. Audio from earlier chunks is discarded on failure.
func (s *Session) SynthesizeAll(ctx context.Context, chunks []Chunk) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(attribute.Int("request.chunks", len(chunks)))

	results := make([][]byte, 0, len(chunks))
	for _, chunk := range chunks {
		audio, err := s.Synthesize(ctx, chunk)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		results = append(results, audio)
	}

	span.SetAttributes(attribute.String("response.model", s.model))
	return results, nil
}

// Synthesize requests audio for one chunk, retrying transient failures with
// exponential backoff. Safety rejections fail immediately.
func (s *Session) Synthesize(ctx context.Context, chunk Chunk) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize chunk")
	defer span.End()
	span.SetAttributes(
		attribute.Int("request.chunk_index", chunk.Index),
		attribute.Int("request.chunk_length", len(chunk.Text)),
	)

	options := s.client.options
	attempts := 0
	var lastModel string
	audio, err := backoff.Retry(ctx,
		func() ([]byte, error) {
			attempts++
			lastModel = s.model
			s.client.attemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("model", s.model)))

			resp, err := s.client.synthesizer.Synthesize(ctx, Request{
				Text:    chunk.Text,
				ModelID: s.model,
				VoiceID: options.Voice,
			})
			if err == nil && resp.Rejected {
				err = ErrSafetyRejected
			} else if err == nil && len(resp.Audio) == 0 {
				err = ErrEmptySynthesisResult
			}

			switch {
			case err == nil:
				return resp.Audio, nil
			case errors.Is(err, ErrSafetyRejected):
				return nil, backoff.Permanent(err)
			case IsQuotaError(err):
				s.fallBack(ctx)
			}
			return nil, err
		},
		backoff.WithBackOff(s.backOff()),
		backoff.WithMaxTries(uint(options.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug("retrying speech synthesis",
				"chunk", chunk.Index,
				"attempt", attempts,
				"model", s.model,
				"wait", wait,
				"error", err)
		}),
	)
	span.SetAttributes(attribute.Int("response.attempts", attempts), attribute.String("response.model", lastModel))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		err = &SynthesisError{Chunk: chunk, Model: lastModel, Attempts: attempts, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return audio, nil
}

// fallBack switches to the fallback model once; later quota errors stay on it.
func (s *Session) fallBack(ctx context.Context) {
	options := s.client.options
	if s.fellBack || options.FallbackModel == "" || s.model != options.PrimaryModel {
		return
	}

	logger.Info("switching speech synthesis to fallback model",
		"from", s.model,
		"to", options.FallbackModel)
	s.client.fallbackCounter.Add(ctx, 1)
	s.model = options.FallbackModel
	s.fellBack = true
}

func (s *Session) backOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     s.client.options.BackoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
	}
}
