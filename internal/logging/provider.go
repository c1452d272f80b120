package logging

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
)

// sevOffset maps OpenTelemetry severities onto slog levels the same way the
// otelslog bridge maps them the other way.
const sevOffset = slog.Level(log.SeverityDebug) - slog.LevelDebug

// SlogProvider is a log.LoggerProvider that writes every record to a
// slog.Handler, so instrumented packages log next to the application.
type SlogProvider struct {
	embedded.LoggerProvider

	handler slog.Handler
}

func NewSlogProvider(handler slog.Handler) *SlogProvider {
	return &SlogProvider{handler: handler}
}

// Logger returns a logger tagging its records with the instrumentation scope.
func (p *SlogProvider) Logger(name string, _ ...log.LoggerOption) log.Logger {
	handler := p.handler
	if name != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("scope", name)})
	}
	return &slogLogger{handler: handler}
}

type slogLogger struct {
	embedded.Logger

	handler slog.Handler
}

func (l *slogLogger) Enabled(ctx context.Context, param log.EnabledParameters) bool {
	return l.handler.Enabled(ctx, levelOf(param.Severity))
}

func (l *slogLogger) Emit(ctx context.Context, record log.Record) {
	level := levelOf(record.Severity())
	if !l.handler.Enabled(ctx, level) {
		return
	}

	timestamp := record.Timestamp()
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	body := record.Body()
	message := body.String()
	if body.Kind() == log.KindString {
		message = body.AsString()
	}

	out := slog.NewRecord(timestamp, level, message, 0)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		out.AddAttrs(slog.Attr{Key: kv.Key, Value: valueOf(kv.Value)})
		return true
	})
	_ = l.handler.Handle(ctx, out)
}

func levelOf(severity log.Severity) slog.Level {
	if severity == log.SeverityUndefined {
		return slog.LevelInfo
	}
	return slog.Level(severity) - sevOffset
}

func valueOf(v log.Value) slog.Value {
	switch v.Kind() {
	case log.KindBool:
		return slog.BoolValue(v.AsBool())
	case log.KindInt64:
		return slog.Int64Value(v.AsInt64())
	case log.KindFloat64:
		return slog.Float64Value(v.AsFloat64())
	case log.KindString:
		return slog.StringValue(v.AsString())
	case log.KindBytes:
		return slog.AnyValue(v.AsBytes())
	case log.KindSlice:
		items := v.AsSlice()
		values := make([]any, 0, len(items))
		for _, item := range items {
			values = append(values, valueOf(item).Any())
		}
		return slog.AnyValue(values)
	case log.KindMap:
		entries := v.AsMap()
		attrs := make([]slog.Attr, 0, len(entries))
		for _, entry := range entries {
			attrs = append(attrs, slog.Attr{Key: entry.Key, Value: valueOf(entry.Value)})
		}
		return slog.GroupValue(attrs...)
	default:
		return slog.Value{}
	}
}
