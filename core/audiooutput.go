package orchestration

import (
	"context"
	"reflect"

	"github.com/koscakluka/ema-companion/core/audio"
)

// AudioOutput is a playback device accepting interleaved linear16 PCM.
// ClearBuffer drops queued audio that has not been played yet.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Close() error
}

// AudioOutputFactory opens a device for the given encoding. Each speech
// pipeline owns the device it opens.
type AudioOutputFactory func(ctx context.Context, encodingInfo audio.EncodingInfo) (AudioOutput, error)

// isNilAudioOutput treats typed-nil clients as unconfigured.
func isNilAudioOutput(output AudioOutput) bool {
	if output == nil {
		return true
	}

	v := reflect.ValueOf(output)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
