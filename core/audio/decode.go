package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrMalformedAudio = errors.New("malformed audio")

// MalformedAudioError is returned when raw PCM cannot be split into whole
// frames for the requested channel count.
type MalformedAudioError struct {
	Length   int
	Channels int
}

func (e *MalformedAudioError) Error() string {
	if e.Channels < 1 {
		return fmt.Sprintf("%s: invalid channel count %d", ErrMalformedAudio, e.Channels)
	}
	return fmt.Sprintf("%s: %d bytes is not a multiple of %d", ErrMalformedAudio, e.Length, 2*e.Channels)
}

func (e *MalformedAudioError) Unwrap() error { return ErrMalformedAudio }

// Buffer holds de-interleaved samples normalized to [-1, 1].
type Buffer struct {
	SampleRate int
	// Channels holds one slice of samples per channel, all of equal length.
	Channels [][]float32
}

// DecodePCM16 interprets raw as little-endian signed 16-bit PCM with the
// given interleaved channel count.
func DecodePCM16(raw []byte, sampleRate, channels int) (Buffer, error) {
	if channels < 1 || len(raw)%(2*channels) != 0 {
		return Buffer{}, &MalformedAudioError{Length: len(raw), Channels: channels}
	}
	if sampleRate <= 0 {
		return Buffer{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	frames := len(raw) / (2 * channels)
	buffer := Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for channel := range buffer.Channels {
		buffer.Channels[channel] = make([]float32, frames)
	}

	for frame := range frames {
		for channel := range channels {
			offset := (frame*channels + channel) * 2
			sample := int16(binary.LittleEndian.Uint16(raw[offset:]))
			buffer.Channels[channel][frame] = float32(sample) / 32768
		}
	}

	return buffer, nil
}

func (b Buffer) ChannelCount() int { return len(b.Channels) }

// Frames returns the number of samples per channel.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

func (b Buffer) EncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: b.SampleRate,
		Channels:   b.ChannelCount(),
		Format:     EncodingLinear16,
	}
}

// PCM16 re-encodes the buffer as interleaved little-endian 16-bit PCM, the
// format output devices are opened with.
func (b Buffer) PCM16() []byte {
	channels := b.ChannelCount()
	frames := b.Frames()
	out := make([]byte, frames*channels*2)
	for frame := range frames {
		for channel := range channels {
			offset := (frame*channels + channel) * 2
			binary.LittleEndian.PutUint16(out[offset:], uint16(toInt16(b.Channels[channel][frame])))
		}
	}
	return out
}

func toInt16(sample float32) int16 {
	scaled := math.Round(float64(sample) * 32768)
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	} else if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}
