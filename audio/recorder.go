package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"tolk/encoder"
)

// MinFrames is the shortest recording worth uploading (100 ms).
const MinFrames = encoder.SampleRate / 10

// Recorder owns the capture device and turns one Start/Stop cycle into
// an encoded Asset. The device is opened lazily and can be handed back
// to the OS with Release while the app is not focused.
type Recorder struct {
	ctx    Context
	format string

	mu      sync.Mutex
	device  *DeviceInfo
	capture CaptureDevice
	sess    *session
	onLevel func(rms float64)
}

func NewRecorder(ctx Context, device *DeviceInfo, format string) *Recorder {
	if format == "" {
		format = encoder.FormatFLAC
	}
	return &Recorder{ctx: ctx, device: device, format: format}
}

// OnLevel registers a callback that receives the RMS of each captured
// chunk, normalized to [0,1]. Called on the audio thread.
func (r *Recorder) OnLevel(fn func(rms float64)) {
	r.mu.Lock()
	r.onLevel = fn
	r.mu.Unlock()
}

func (r *Recorder) Format() string { return r.format }

func (r *Recorder) DeviceName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		return r.capture.DeviceName()
	}
	if r.device != nil {
		return r.device.Name
	}
	return "system default"
}

// SetDevice switches the input; the next Start opens the new device.
func (r *Recorder) SetDevice(dev *DeviceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device = dev
	if r.sess == nil {
		r.closeCaptureLocked()
	}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil
}

// Acquire opens the capture device without starting it.
func (r *Recorder) Acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquireLocked()
}

func (r *Recorder) acquireLocked() error {
	if r.capture != nil {
		return nil
	}
	devices, err := r.ctx.Devices()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if len(devices) == 0 {
		return ErrDeviceUnavailable
	}
	dev := r.device
	if dev != nil && !hasDevice(devices, dev.ID) {
		dev = nil // unplugged; fall back to the system default
	}
	capture, err := r.ctx.NewCapture(dev, DefaultCaptureConfig)
	if err != nil {
		return classifyStartErr(err)
	}
	r.capture = capture
	return nil
}

func hasDevice(devices []DeviceInfo, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Release discards any in-flight recording and closes the device.
func (r *Recorder) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != nil {
		r.stopCaptureLocked()
		r.sess.finish()
		r.sess = nil
	}
	r.closeCaptureLocked()
}

func (r *Recorder) closeCaptureLocked() {
	if r.capture != nil {
		r.capture.Close()
		r.capture = nil
	}
}

func (r *Recorder) stopCaptureLocked() {
	r.capture.Stop()
	r.capture.ClearCallback()
}

// Start begins a recording. A second Start without Stop is ErrBusy.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess != nil {
		return ErrBusy
	}
	if err := r.acquireLocked(); err != nil {
		return err
	}

	sess, err := newSession(r.format)
	if err != nil {
		return err
	}
	onLevel := r.onLevel
	r.capture.SetCallback(func(data []byte, _ uint32) {
		if len(data) < 2 {
			return
		}
		sess.feed(data)
		if onLevel != nil {
			onLevel(rms(data))
		}
	})
	if err := r.capture.Start(); err != nil {
		r.capture.ClearCallback()
		sess.finish()
		// a device that failed to start is not reused
		r.closeCaptureLocked()
		return classifyStartErr(err)
	}
	r.sess = sess
	return nil
}

// Stop ends the recording and returns the encoded audio. Recordings
// shorter than MinFrames return a nil Asset and no error. Stop without a
// recording in progress is a no-op.
func (r *Recorder) Stop() (*Asset, error) {
	r.mu.Lock()
	sess := r.sess
	if sess == nil {
		r.mu.Unlock()
		return nil, nil
	}
	r.stopCaptureLocked()
	r.sess = nil
	r.mu.Unlock()

	if err := sess.finish(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	frames := sess.enc.TotalFrames()
	if frames < MinFrames {
		return nil, nil
	}
	return &Asset{
		Data:       sess.enc.Bytes(),
		Format:     r.format,
		SampleRate: encoder.SampleRate,
		Frames:     frames,
		Duration:   time.Duration(frames) * time.Second / encoder.SampleRate,
		EncodeTime: sess.enc.EncodeTime(),
	}, nil
}

// Close releases the device for good.
func (r *Recorder) Close() { r.Release() }

// session encodes blocks on a background goroutine while capture runs.
type session struct {
	enc        encoder.Encoder
	blocks     chan []int16
	encodeDone chan struct{}
	encodeErr  error

	bufMu     sync.Mutex
	sampleBuf []int16
	finished  bool
}

func newSession(format string) (*session, error) {
	enc, err := encoder.New(format)
	if err != nil {
		return nil, err
	}
	s := &session{
		enc:        enc,
		blocks:     make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}
	go func() {
		defer close(s.encodeDone)
		for block := range s.blocks {
			start := time.Now()
			if err := s.enc.EncodeBlock(block); err != nil && s.encodeErr == nil {
				s.encodeErr = err
			}
			s.enc.AddEncodeTime(time.Since(start))
		}
	}()
	return s, nil
}

func (s *session) feed(pcm []byte) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if s.finished {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s.sampleBuf = append(s.sampleBuf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	for len(s.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, s.sampleBuf)
		s.sampleBuf = s.sampleBuf[encoder.BlockSize:]
		s.blocks <- block
	}
}

// finish flushes the partial block and waits for the encoder. Safe to
// call more than once.
func (s *session) finish() error {
	s.bufMu.Lock()
	if !s.finished {
		s.finished = true
		if len(s.sampleBuf) > 0 {
			s.blocks <- s.sampleBuf
			s.sampleBuf = nil
		}
		close(s.blocks)
	}
	s.bufMu.Unlock()

	<-s.encodeDone
	if s.encodeErr != nil {
		return s.encodeErr
	}
	return s.enc.Close()
}

func rms(data []byte) float64 {
	var sumSquares float64
	n := len(data) / 2
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}
