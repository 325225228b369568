package audio

import (
	"context"
	"errors"
	"strings"
	"time"

	"tolk/encoder"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no capture device available")
	ErrBusy              = errors.New("recording already in progress")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name; BT headsets capture at a
// lower quality than the service expects.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultCaptureConfig is 16 kHz mono, what speech recognizers want.
var DefaultCaptureConfig = CaptureConfig{
	SampleRate: encoder.SampleRate,
	Channels:   encoder.Channels,
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Player renders interleaved PCM16 to the default output device.
type Player interface {
	// Play blocks until the samples have been played or ctx is done.
	Play(ctx context.Context, samples []int16, sampleRate, channels int) error
}

// Asset is a finished recording, ready to upload.
type Asset struct {
	Data       []byte
	Format     string // encoder.FormatFLAC or encoder.FormatWAV
	SampleRate int
	Frames     uint64
	Duration   time.Duration
	EncodeTime time.Duration
}

func (a *Asset) MimeType() string { return encoder.MimeType(a.Format) }

// classifyStartErr maps backend failures onto the capture error kinds.
func classifyStartErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		return errors.Join(ErrPermissionDenied, err)
	}
	return errors.Join(ErrDeviceUnavailable, err)
}
