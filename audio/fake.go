package audio

import (
	"context"
	"encoding/binary"
	"os"
	"sync"
	"time"

	"tolk/encoder"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays a fixed PCM buffer as if it came from a microphone.
type FakeContext struct {
	pcm      []byte
	realtime bool

	// NoDevices makes Devices report an empty list.
	NoDevices bool
	// StartErr is returned by every capture's Start.
	StartErr error

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if wav, err := ParseWAV(data); err == nil {
		data = make([]byte, len(wav.Samples)*2)
		for i, s := range wav.Samples {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
		}
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewFakeContextPCM wraps raw little-endian PCM16 mono bytes.
func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	if f.NoDevices {
		return nil, nil
	}
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{pcm: f.pcm, realtime: f.realtime, startErr: f.StartErr, audioDone: make(chan struct{})}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Open reports how many captures are currently held (created and not closed).
func (f *FakeContext) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.captures {
		if !c.isClosed() {
			n++
		}
	}
	return n
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone closes once the whole buffer has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos int) int {
	end := min(pos+fakeFrameSize*fakeBytesPerFrame, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return classifyStartErr(f.startErr)
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	if !f.realtime {
		// whole buffer up front, then nothing
		if cb := f.callback(); cb != nil {
			for pos := 0; pos < len(f.pcm); {
				pos = f.feedChunk(cb, pos)
			}
		}
		close(f.audioDone)
		close(f.feedDone)
		return nil
	}

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(encoder.SampleRate)
	stop, done, audioDone := f.stopCh, f.feedDone, f.audioDone
	go func() {
		defer close(done)
		pos := 0
		silence := make([]byte, fakeFrameSize*fakeBytesPerFrame)
		finished := false
		for {
			if cb := f.callback(); cb != nil {
				if pos < len(f.pcm) {
					pos = f.feedChunk(cb, pos)
				} else {
					if !finished {
						finished = true
						close(audioDone)
					}
					cb(silence, fakeFrameSize)
				}
			}
			select {
			case <-stop:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
	f.audioDone = make(chan struct{}) // reset for replay
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// FakePlayer records what it was asked to play. Each Play takes
// Duration, or returns early when ctx is done.
type FakePlayer struct {
	Duration time.Duration
	Err      error

	mu    sync.Mutex
	plays []PCM
}

func (p *FakePlayer) Play(ctx context.Context, samples []int16, sampleRate, channels int) error {
	p.mu.Lock()
	p.plays = append(p.plays, PCM{Samples: samples, SampleRate: sampleRate, Channels: channels})
	p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	select {
	case <-time.After(p.Duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FakePlayer) Plays() []PCM {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PCM(nil), p.plays...)
}
