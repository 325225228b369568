package encoder

import (
	"fmt"
	"sync"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	FormatFLAC = "flac"
	FormatWAV  = "wav"
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// New returns an encoder for format ("flac" or "wav").
func New(format string) (Encoder, error) {
	switch format {
	case FormatFLAC:
		return NewFlac()
	case FormatWAV:
		return NewWav(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func MimeType(format string) string {
	switch format {
	case FormatFLAC:
		return "audio/flac"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// encodeClock accumulates time spent encoding, measured by the caller.
type encodeClock struct {
	clockMu sync.Mutex
	elapsed time.Duration
}

func (c *encodeClock) AddEncodeTime(d time.Duration) {
	c.clockMu.Lock()
	c.elapsed += d
	c.clockMu.Unlock()
}

func (c *encodeClock) EncodeTime() time.Duration {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	return c.elapsed
}
