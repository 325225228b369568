package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

const WAVHeaderSize = 44

// WavEncoder produces 16-bit little-endian PCM with a RIFF header, the
// LINEAR16 encoding speech services accept without a codec.
type WavEncoder struct {
	encodeClock

	mu     sync.Mutex
	pcm    bytes.Buffer
	out    []byte
	closed bool
	frames uint64
}

func NewWav() *WavEncoder {
	return &WavEncoder{}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("wav encoder closed")
	}
	var b [2]byte
	for _, s := range block {
		binary.LittleEndian.PutUint16(b[:], uint16(s))
		e.pcm.Write(b[:])
	}
	e.frames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	data := e.pcm.Bytes()
	e.out = make([]byte, 0, WAVHeaderSize+len(data))
	e.out = append(e.out, WAVHeader(len(data), SampleRate, Channels)...)
	e.out = append(e.out, data...)
	return nil
}

// Bytes is only complete after Close.
func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// WAVHeader builds a canonical 44-byte PCM16 header for dataSize bytes.
func WAVHeader(dataSize, sampleRate, channels int) []byte {
	buf := make([]byte, WAVHeaderSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WAVHeaderSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	return buf
}
