package audio

const (
	// DefaultSampleRate matches the raw PCM returned by the speech service.
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Format:     encodingFormat(DefaultFormat),
	}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Channels == 0 || e.Format.Name() == ""
}

// BytesPerFrame returns the size of one interleaved frame, or -1 when the
// format is unknown.
func (e EncodingInfo) BytesPerFrame() int {
	size := e.Format.ByteSize()
	if size < 0 || e.Channels < 1 {
		return -1
	}
	return size * e.Channels
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
)
