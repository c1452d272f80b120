package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-companion/core"
	"github.com/koscakluka/ema-companion/core/audio"
	"github.com/koscakluka/ema-companion/core/audio/miniaudio"
	"github.com/koscakluka/ema-companion/core/audio/portaudio"
	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms/gemini"
	"github.com/koscakluka/ema-companion/core/texttospeech"
	"github.com/koscakluka/ema-companion/core/texttospeech/deepgram"
	ttsgemini "github.com/koscakluka/ema-companion/core/texttospeech/gemini"
	"github.com/koscakluka/ema-companion/internal/config"
	"github.com/koscakluka/ema-companion/internal/logging"
	"github.com/koscakluka/ema-companion/internal/store"
)

// eventBufferSize bounds events waiting for the UI. Overflow is dropped since
// every redraw reads the conversation state directly.
const eventBufferSize = 256

func main() {
	configPath := flag.String("config", os.Getenv("EMA_CONFIG"), "path to YAML config file")
	printSchema := flag.Bool("config-schema", false, "print the config JSON schema and exit")
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build config schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(schema))
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ema-companion: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	log, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, err := openBackend(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
	}()

	synthesizer, err := newSynthesizer(cfg)
	if err != nil {
		return err
	}
	tts := texttospeech.NewClient(synthesizer,
		texttospeech.WithModels(cfg.Speech.PrimaryModel, cfg.Speech.FallbackModel),
		texttospeech.WithVoice(cfg.Speech.Voice),
		texttospeech.WithMaxAttempts(cfg.Speech.MaxAttempts),
		texttospeech.WithBackoffBase(time.Duration(cfg.Speech.BackoffBaseMS)*time.Millisecond),
	)

	uiEvents := make(chan events.Event, eventBufferSize)
	forward := func(event events.Event) {
		select {
		case uiEvents <- event:
		default:
			log.Debug("dropping ui event", "namespace", event.Kind().Namespace(), "kind", event.Kind())
		}
	}

	speakerOpts := []orchestration.SpeakerOption{
		orchestration.WithSpeakerEventHandler(forward),
		orchestration.WithSpeechOptions(
			orchestration.WithMaxChunkLength(cfg.Speech.MaxChunkLength),
			orchestration.WithSpeechEncoding(cfg.Speech.SampleRate, cfg.Speech.Channels),
			orchestration.WithPlaybackOptions(
				orchestration.WithLookahead(time.Duration(cfg.Audio.LookaheadMS)*time.Millisecond),
			),
		),
	}
	if cfg.Audio.Exclusive {
		speakerOpts = append(speakerOpts, orchestration.WithExclusivePlayback())
	}
	speaker := orchestration.NewSpeaker(tts, newOutputFactory(cfg.Audio), speakerOpts...)
	defer func() {
		if err := speaker.Close(); err != nil {
			log.Warn("failed to close speaker", "error", err)
		}
	}()

	llm := gemini.NewClient(cfg.Chat.APIKey,
		gemini.WithModel(cfg.Chat.Model),
		gemini.WithBaseURL(cfg.Chat.BaseURL),
	)
	conversationOpts := []orchestration.ConversationOption{
		orchestration.WithStreamingLLM(llm),
		orchestration.WithStore(backend),
		orchestration.WithEventHandler(forward),
	}
	if cfg.Chat.WelcomeMessage != "" {
		conversationOpts = append(conversationOpts, orchestration.WithWelcomeMessage(cfg.Chat.WelcomeMessage))
	}
	if !cfg.Chat.GoogleSearch {
		conversationOpts = append(conversationOpts, orchestration.WithoutGoogleSearch())
	}
	conversation := orchestration.NewConversation(conversationOpts...)
	if err := conversation.Load(ctx); err != nil {
		log.Warn("failed to load conversation", "error", err)
	}

	program := tea.NewProgram(newModel(ctx, conversation, speaker, backend, uiEvents), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run ui: %w", err)
	}
	return nil
}

// backend is the persistence surface the client needs beyond the
// conversation driver.
type backend interface {
	conversations.Store
	conversations.MemoryKeeper
	Close() error
}

type memoryBackend struct {
	*conversations.MemoryStore
}

func (memoryBackend) Close() error { return nil }

func openBackend(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (backend, error) {
	switch cfg.Driver {
	case "memory":
		return memoryBackend{conversations.NewMemoryStore()}, nil
	default:
		s, err := store.Open(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		return s, nil
	}
}

func newSynthesizer(cfg config.Config) (texttospeech.Synthesizer, error) {
	switch cfg.Speech.Provider {
	case "deepgram":
		return deepgram.NewTextToSpeechClient(cfg.SpeechAPIKey(),
			deepgram.WithEncodingInfo(speechEncoding(cfg.Speech)),
		)
	default:
		return ttsgemini.NewClient(cfg.SpeechAPIKey(), ttsgemini.WithBaseURL(cfg.Chat.BaseURL)), nil
	}
}

func speechEncoding(cfg config.SpeechConfig) audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Format:     audio.EncodingLinear16,
	}
}

func newOutputFactory(cfg config.AudioConfig) orchestration.AudioOutputFactory {
	return func(ctx context.Context, encodingInfo audio.EncodingInfo) (orchestration.AudioOutput, error) {
		switch cfg.Backend {
		case "portaudio":
			return portaudio.NewClient(ctx, encodingInfo, cfg.BufferSize)
		default:
			return miniaudio.NewClient(ctx, encodingInfo)
		}
	}
}
