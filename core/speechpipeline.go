package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-companion/core/audio"
	"github.com/koscakluka/ema-companion/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrAudioOutputNotConfigured = errors.New("audio output not configured")

type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackLoading
	PlaybackPlaying
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "idle"
	case PlaybackLoading:
		return "loading"
	case PlaybackPlaying:
		return "playing"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int(s))
	}
}

// SpeechPipeline turns one message into speech on demand. Decoded audio is
// kept for the lifetime of the pipeline so replays skip synthesis.
type SpeechPipeline struct {
	text       string
	tts        *texttospeech.Client
	openOutput AudioOutputFactory
	options    speechOptions

	mu         sync.Mutex
	state      PlaybackState
	units      []AudioUnit
	output     AudioOutput
	scheduler  *PlaybackScheduler
	handle     *PlaybackHandle
	playID     uint64
	cancelLoad context.CancelFunc
	closed     bool

	// pending holds callbacks queued under mu, run once mu is released.
	pending []func()
}

func NewSpeechPipeline(text string, tts *texttospeech.Client, openOutput AudioOutputFactory, opts ...SpeechOption) *SpeechPipeline {
	options := defaultSpeechOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &SpeechPipeline{
		text:       text,
		tts:        tts,
		openOutput: openOutput,
		options:    options,
	}
}

func (p *SpeechPipeline) Text() string {
	return p.text
}

func (p *SpeechPipeline) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Toggle starts speech when idle and stops it when playing. A toggle while
// loading does nothing. It returns the resulting state.
func (p *SpeechPipeline) Toggle(ctx context.Context) PlaybackState {
	p.mu.Lock()
	defer p.unlockAndNotify()

	if p.closed {
		return PlaybackIdle
	}

	switch p.state {
	case PlaybackLoading:
	case PlaybackPlaying:
		p.stopLocked()
		p.setStateLocked(PlaybackIdle)
	case PlaybackIdle:
		if p.units != nil {
			if err := p.playLocked(ctx); err != nil {
				p.failLocked(err)
			}
			break
		}

		loadCtx, cancel := context.WithCancel(ctx)
		p.cancelLoad = cancel
		p.setStateLocked(PlaybackLoading)
		go p.load(loadCtx, cancel)
	}

	return p.state
}

// Stop halts playback if it is running.
func (p *SpeechPipeline) Stop() {
	p.mu.Lock()
	defer p.unlockAndNotify()

	if p.state == PlaybackPlaying {
		p.stopLocked()
		p.setStateLocked(PlaybackIdle)
	}
}

// Close cancels loading, stops playback and releases the output device.
func (p *SpeechPipeline) Close() error {
	p.mu.Lock()
	defer p.unlockAndNotify()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.cancelLoad != nil {
		p.cancelLoad()
		p.cancelLoad = nil
	}
	p.stopLocked()
	if p.state != PlaybackIdle {
		p.setStateLocked(PlaybackIdle)
	}

	var err error
	if !isNilAudioOutput(p.output) {
		if closeErr := p.output.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close audio output: %w", closeErr)
		}
	}
	p.output = nil
	p.scheduler = nil
	return err
}

func (p *SpeechPipeline) load(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	ctx, span := tracer.Start(ctx, "load speech")
	defer span.End()

	units, err := p.synthesize(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("speech.units", len(units)))

	p.mu.Lock()
	defer p.unlockAndNotify()

	if p.closed {
		return
	}
	p.cancelLoad = nil
	if ctx.Err() != nil {
		p.setStateLocked(PlaybackIdle)
		return
	}
	if err != nil {
		p.failLocked(err)
		return
	}

	p.units = units
	if err := p.playLocked(ctx); err != nil {
		p.failLocked(err)
	}
}

func (p *SpeechPipeline) synthesize(ctx context.Context) ([]AudioUnit, error) {
	chunks := texttospeech.ChunkText(p.text, p.options.maxChunkLength)
	if len(chunks) == 0 {
		return nil, texttospeech.ErrNoSpeechContent
	}

	raw, err := p.tts.NewSession().SynthesizeAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	units := make([]AudioUnit, 0, len(raw))
	for i, pcm := range raw {
		buffer, err := audio.DecodePCM16(pcm, p.options.sampleRate, p.options.channels)
		if err != nil {
			return nil, fmt.Errorf("failed to decode chunk %d: %w", chunks[i].Index, err)
		}
		units = append(units, AudioUnit{Index: chunks[i].Index, Buffer: buffer})
	}
	return units, nil
}

func (p *SpeechPipeline) playLocked(ctx context.Context) error {
	if p.scheduler == nil {
		if p.openOutput == nil {
			return ErrAudioOutputNotConfigured
		}
		encodingInfo := audio.EncodingInfo{SampleRate: p.options.sampleRate, Channels: p.options.channels, Format: audio.EncodingLinear16}
		if len(p.units) > 0 {
			encodingInfo = p.units[0].Buffer.EncodingInfo()
		}

		output, err := p.openOutput(context.WithoutCancel(ctx), encodingInfo)
		if err != nil {
			return fmt.Errorf("failed to open audio output: %w", err)
		}
		if isNilAudioOutput(output) {
			return ErrAudioOutputNotConfigured
		}
		p.output = output
		p.scheduler = NewPlaybackScheduler(output, p.options.playbackOptions...)
	}

	p.playID++
	playID := p.playID
	p.handle = p.scheduler.Play(p.units, func() { p.finished(playID) })
	p.setStateLocked(PlaybackPlaying)
	return nil
}

func (p *SpeechPipeline) finished(playID uint64) {
	p.mu.Lock()
	defer p.unlockAndNotify()

	if p.playID != playID || p.state != PlaybackPlaying {
		return
	}
	p.handle = nil
	p.setStateLocked(PlaybackIdle)
}

func (p *SpeechPipeline) stopLocked() {
	if p.handle == nil {
		return
	}
	handle := p.handle
	p.handle = nil
	handle.Stop()
}

func (p *SpeechPipeline) failLocked(err error) {
	logger.Warn("speech playback failed", "error", err)
	p.setStateLocked(PlaybackIdle)
	onError := p.options.onError
	p.pending = append(p.pending, func() { onError(err) })
}

func (p *SpeechPipeline) setStateLocked(state PlaybackState) {
	if p.state == state {
		return
	}
	p.state = state
	onStateChange := p.options.onStateChange
	p.pending = append(p.pending, func() { onStateChange(state) })
}

func (p *SpeechPipeline) unlockAndNotify() {
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, notify := range pending {
		notify()
	}
}
