package miniaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-companion/core/audio"
)

// Client is a miniaudio playback device accepting interleaved linear16 PCM.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
}

func NewClient(_ context.Context, encodingInfo audio.EncodingInfo) (*Client, error) {
	if encodingInfo.IsZero() {
		encodingInfo = audio.GetDefaultEncodingInfo()
	}
	if encodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q", encodingInfo.Format.Name())
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playbackClient.Init(audioCtx, encodingInfo); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return &client, nil
}

// Close stops the device and releases the audio context. Repeated calls are
// ignored.
func (c *Client) Close() error {
	if c.audioContext == nil {
		return nil
	}

	var errs []error
	if err := c.playbackClient.Uninit(); err != nil && !errors.Is(err, errDeviceNotInitialized) {
		errs = append(errs, err)
	}
	if err := c.audioContext.Uninit(); err != nil {
		errs = append(errs, fmt.Errorf("failed to uninitialize audio context: %w", err))
	}
	c.audioContext.Free()
	c.audioContext = nil

	return errors.Join(errs...)
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.playbackClient.encodingInfo
}
