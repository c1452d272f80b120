package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Chat    ChatConfig    `yaml:"chat"`
	Speech  SpeechConfig  `yaml:"speech"`
	Audio   AudioConfig   `yaml:"audio"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

type ChatConfig struct {
	APIKey         string `yaml:"api_key" jsonschema:"description=Gemini API key. Overridden by GEMINI_API_KEY"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	GoogleSearch   bool   `yaml:"google_search" jsonschema:"description=Ground answers with Google Search"`
	WelcomeMessage string `yaml:"welcome_message"`
}

type SpeechConfig struct {
	Provider       string `yaml:"provider" jsonschema:"enum=gemini,enum=deepgram"`
	APIKey         string `yaml:"api_key" jsonschema:"description=Key for the speech provider. Gemini falls back to chat.api_key"`
	PrimaryModel   string `yaml:"primary_model"`
	FallbackModel  string `yaml:"fallback_model"`
	Voice          string `yaml:"voice"`
	MaxAttempts    int    `yaml:"max_attempts" jsonschema:"minimum=1"`
	BackoffBaseMS  int    `yaml:"backoff_base_ms" jsonschema:"minimum=1"`
	MaxChunkLength int    `yaml:"max_chunk_length" jsonschema:"minimum=1"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
}

type AudioConfig struct {
	Backend     string `yaml:"backend" jsonschema:"enum=miniaudio,enum=portaudio"`
	BufferSize  int    `yaml:"buffer_size" jsonschema:"description=Frames per PortAudio write"`
	LookaheadMS int    `yaml:"lookahead_ms"`
	Exclusive   bool   `yaml:"exclusive" jsonschema:"description=Stop other messages when one starts speaking"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" jsonschema:"enum=sqlite,enum=memory"`
	Path   string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		Chat: ChatConfig{
			Model:        "gemini-3-pro-preview",
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
			GoogleSearch: true,
		},
		Speech: SpeechConfig{
			Provider:       "gemini",
			PrimaryModel:   "gemini-2.5-flash-preview-tts",
			FallbackModel:  "gemini-2.5-flash-native-audio-preview-12-2025",
			Voice:          "Kore",
			MaxAttempts:    3,
			BackoffBaseMS:  800,
			MaxChunkLength: 150,
			SampleRate:     24000,
			Channels:       1,
		},
		Audio: AudioConfig{
			Backend:     "miniaudio",
			BufferSize:  1024,
			LookaheadMS: 50,
			Exclusive:   true,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "./data/ema-companion.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "./data/ema-companion.log",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SpeechAPIKey resolves the key used for speech synthesis.
func (c Config) SpeechAPIKey() string {
	if c.Speech.APIKey != "" {
		return c.Speech.APIKey
	}
	if c.Speech.Provider == "gemini" {
		return c.Chat.APIKey
	}
	return ""
}

// RequireCredentials fails when a configured service has no API key.
func (c Config) RequireCredentials() error {
	if c.Chat.APIKey == "" {
		return errors.New("chat.api_key must be set (or GEMINI_API_KEY)")
	}
	if c.SpeechAPIKey() == "" {
		return fmt.Errorf("speech.api_key must be set for provider %s", c.Speech.Provider)
	}
	return nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true, FieldNameTag: "yaml"}
	schema := reflector.Reflect(&Config{})
	return json.MarshalIndent(schema, "", "  ")
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Chat.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.Chat.Model, "EMA_CHAT_MODEL")
	overrideString(&cfg.Chat.BaseURL, "EMA_CHAT_BASE_URL")
	overrideBool(&cfg.Chat.GoogleSearch, "EMA_CHAT_GOOGLE_SEARCH")
	overrideString(&cfg.Speech.Provider, "EMA_SPEECH_PROVIDER")
	overrideString(&cfg.Speech.APIKey, "EMA_SPEECH_API_KEY")
	if cfg.Speech.Provider == "deepgram" {
		overrideString(&cfg.Speech.APIKey, "DEEPGRAM_API_KEY")
	}
	overrideString(&cfg.Speech.Voice, "EMA_SPEECH_VOICE")
	overrideInt(&cfg.Speech.MaxAttempts, "EMA_SPEECH_MAX_ATTEMPTS")
	overrideInt(&cfg.Speech.BackoffBaseMS, "EMA_SPEECH_BACKOFF_BASE_MS")
	overrideString(&cfg.Audio.Backend, "EMA_AUDIO_BACKEND")
	overrideInt(&cfg.Audio.LookaheadMS, "EMA_AUDIO_LOOKAHEAD_MS")
	overrideString(&cfg.Store.Driver, "EMA_STORE_DRIVER")
	overrideString(&cfg.Store.Path, "EMA_STORE_PATH")
	overrideString(&cfg.Logging.Level, "EMA_LOG_LEVEL")
	overrideString(&cfg.Logging.File, "EMA_LOG_FILE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Chat.Model == "" {
		return errors.New("chat.model must not be empty")
	}
	switch cfg.Speech.Provider {
	case "gemini", "deepgram":
	default:
		return errors.New("speech.provider must be one of gemini|deepgram")
	}
	if cfg.Speech.Provider == "gemini" && cfg.Speech.PrimaryModel == "" {
		return errors.New("speech.primary_model must be set when provider=gemini")
	}
	if cfg.Speech.MaxAttempts <= 0 {
		return errors.New("speech.max_attempts must be >= 1")
	}
	if cfg.Speech.BackoffBaseMS <= 0 {
		return errors.New("speech.backoff_base_ms must be positive")
	}
	if cfg.Speech.MaxChunkLength <= 0 {
		return errors.New("speech.max_chunk_length must be positive")
	}
	if cfg.Speech.SampleRate <= 0 {
		return errors.New("speech.sample_rate must be positive")
	}
	if cfg.Speech.Channels <= 0 {
		return errors.New("speech.channels must be positive")
	}
	switch cfg.Audio.Backend {
	case "miniaudio", "portaudio":
	default:
		return errors.New("audio.backend must be one of miniaudio|portaudio")
	}
	if cfg.Audio.LookaheadMS < 0 {
		return errors.New("audio.lookahead_ms must be >= 0")
	}
	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			return errors.New("store.path must be set when driver=sqlite")
		}
	default:
		return errors.New("store.driver must be one of sqlite|memory")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of debug|info|warn|error")
	}
	return nil
}
