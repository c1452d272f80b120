package gemini

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-companion/core/texttospeech/gemini"

var tracer = otel.Tracer(scopeName)
