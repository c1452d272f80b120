package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-companion/core/audio"
)

const DefaultBufferSize = 1024

// Client plays interleaved linear16 PCM through the default PortAudio output
// device. Writes happen on a dedicated goroutine so SendAudio never blocks on
// the device.
type Client struct {
	bufferSize   int
	encodingInfo audio.EncodingInfo
	stream       *portaudio.Stream
	out          []int16

	leftoverAudio []byte
	mu            sync.Mutex
	updateSignal  chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
	writerDone    sync.WaitGroup
}

func NewClient(_ context.Context, encodingInfo audio.EncodingInfo, bufferSize int) (*Client, error) {
	if encodingInfo.IsZero() {
		encodingInfo = audio.GetDefaultEncodingInfo()
	}
	if encodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q", encodingInfo.Format.Name())
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	out := make([]int16, bufferSize*encodingInfo.Channels)
	stream, err := portaudio.OpenDefaultStream(0, encodingInfo.Channels, float64(encodingInfo.SampleRate), bufferSize, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	c := &Client{
		bufferSize:   bufferSize,
		encodingInfo: encodingInfo,
		stream:       stream,
		out:          out,
		updateSignal: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	c.writerDone.Add(1)
	go c.write()

	return c, nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writerDone.Wait()
		err = errors.Join(c.stream.Stop(), c.stream.Close(), portaudio.Terminate())
	})
	return err
}

func (c *Client) SendAudio(audio []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("client closed")
	default:
	}

	c.mu.Lock()
	c.leftoverAudio = append(c.leftoverAudio, audio...)
	c.mu.Unlock()
	c.signalUpdate()
	return nil
}

func (c *Client) ClearBuffer() {
	c.mu.Lock()
	c.leftoverAudio = nil
	c.mu.Unlock()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encodingInfo
}

func (c *Client) signalUpdate() {
	select {
	case c.updateSignal <- struct{}{}:
	default:
	}
}

// write drains whole device blocks from the queue. A short remainder waits
// one block duration for more audio before it is padded with silence, so
// units sent back to back stay gapless.
func (c *Client) write() {
	defer c.writerDone.Done()
	blockSize := len(c.out) * 2
	settleDelay := time.Duration(c.bufferSize) * time.Second / time.Duration(c.encodingInfo.SampleRate)

	flush := false
	for {
		c.mu.Lock()
		block, rest := nextBlock(c.leftoverAudio, blockSize, flush)
		c.leftoverAudio = rest
		pending := len(rest) > 0
		c.mu.Unlock()

		if block == nil {
			var settle <-chan time.Time
			if pending {
				settle = time.After(settleDelay)
			}
			select {
			case <-c.done:
				return
			case <-c.updateSignal:
				flush = false
			case <-settle:
				flush = true
			}
			continue
		}
		flush = false

		if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, c.out); err != nil {
			logger.Error("failed to decode audio block", "error", err)
			continue
		}
		if err := c.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			logger.Warn("failed to write to PortAudio stream", "error", err)
		}
	}
}

// nextBlock takes one device block off the queue. A remainder shorter than a
// block is only taken, padded with silence, when flush is set.
func nextBlock(queue []byte, blockSize int, flush bool) (block, rest []byte) {
	if len(queue) == 0 || (len(queue) < blockSize && !flush) {
		return nil, queue
	}
	n := min(blockSize, len(queue))
	block = make([]byte, blockSize)
	copy(block, queue[:n])
	return block, queue[n:]
}
