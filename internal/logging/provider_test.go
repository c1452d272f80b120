package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/log"
)

func TestSlogProviderWritesRecordsWithScope(t *testing.T) {
	var buf bytes.Buffer
	provider := NewSlogProvider(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := provider.Logger("texttospeech")

	var record log.Record
	record.SetSeverity(log.SeverityWarn)
	record.SetBody(log.StringValue("synthesis retry"))
	record.AddAttributes(
		log.Int64("attempt", 2),
		log.Bool("fallback", true),
		log.Map("voice", log.String("name", "Kore")),
	)
	logger.Emit(context.Background(), record)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "synthesis retry" || entry["level"] != "WARN" {
		t.Fatalf("expected warn record with body as message, got %v", entry)
	}
	if entry["scope"] != "texttospeech" {
		t.Fatalf("expected scope attribute, got %v", entry["scope"])
	}
	if entry["attempt"] != float64(2) || entry["fallback"] != true {
		t.Fatalf("expected typed attributes, got %v", entry)
	}
	voice, ok := entry["voice"].(map[string]any)
	if !ok || voice["name"] != "Kore" {
		t.Fatalf("expected map attribute as group, got %v", entry["voice"])
	}
}

func TestSlogLoggerEnabledFollowsHandlerLevel(t *testing.T) {
	provider := NewSlogProvider(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger := provider.Logger("core")

	if logger.Enabled(context.Background(), log.EnabledParameters{Severity: log.SeverityInfo}) {
		t.Fatalf("expected info to be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), log.EnabledParameters{Severity: log.SeverityError}) {
		t.Fatalf("expected error to be enabled at warn level")
	}
	if logger.Enabled(context.Background(), log.EnabledParameters{}) {
		t.Fatalf("expected undefined severity to be treated as info")
	}
}

func TestSlogLoggerDropsRecordsBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogProvider(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})).Logger("core")

	var record log.Record
	record.SetSeverity(log.SeverityDebug)
	record.SetBody(log.StringValue("noise"))
	logger.Emit(context.Background(), record)

	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", buf.String())
	}
}
