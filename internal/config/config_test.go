package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.Voice != "Kore" || cfg.Speech.MaxAttempts != 3 || cfg.Speech.BackoffBaseMS != 800 {
		t.Fatalf("expected speech defaults, got %+v", cfg.Speech)
	}
	if cfg.Speech.MaxChunkLength != 150 || cfg.Speech.SampleRate != 24000 || cfg.Speech.Channels != 1 {
		t.Fatalf("expected chunk and audio defaults, got %+v", cfg.Speech)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DEEPGRAM_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "chat:\n  api_key: file-key\nspeech:\n  provider: deepgram\n  api_key: dg-key\naudio:\n  backend: portaudio\nstore:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.APIKey != "file-key" || cfg.Speech.Provider != "deepgram" || cfg.Audio.Backend != "portaudio" {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.Chat.Model != "gemini-3-pro-preview" {
		t.Fatalf("expected defaults for unset fields, got %q", cfg.Chat.Model)
	}
	if err := cfg.RequireCredentials(); err != nil {
		t.Fatalf("expected credentials to be present, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("EMA_SPEECH_MAX_ATTEMPTS", "5")
	t.Setenv("EMA_CHAT_GOOGLE_SEARCH", "false")
	t.Setenv("EMA_STORE_PATH", "./tmp.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.APIKey != "env-key" || cfg.SpeechAPIKey() != "env-key" {
		t.Fatalf("expected api key override shared with gemini speech")
	}
	if cfg.Speech.MaxAttempts != 5 {
		t.Fatalf("expected max attempts override, got %d", cfg.Speech.MaxAttempts)
	}
	if cfg.Chat.GoogleSearch {
		t.Fatalf("expected google search override false")
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override")
	}
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	t.Setenv("EMA_AUDIO_BACKEND", "alsa")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "audio.backend") {
		t.Fatalf("expected audio backend error, got %v", err)
	}
}

func TestValidateRejectsZeroBackoffBase(t *testing.T) {
	t.Setenv("EMA_SPEECH_BACKOFF_BASE_MS", "0")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "speech.backoff_base_ms") {
		t.Fatalf("expected backoff base error, got %v", err)
	}
}

func TestRequireCredentialsWithoutKey(t *testing.T) {
	if err := Default().RequireCredentials(); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestSchemaUsesYAMLNames(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("expected valid json, got %v", err)
	}
	if !strings.Contains(string(data), "max_chunk_length") {
		t.Fatalf("expected yaml field names in schema")
	}
}
