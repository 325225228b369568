// Package beep plays the short ticks that mark recording start, stop and
// failure.
package beep

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"tolk/audio"
	"tolk/log"
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// Pulse needs a tail to fill its buffer before the stream drains.
const tail = 0.2

const playTimeout = 2 * time.Second

type Beeper struct {
	player   audio.Player
	disabled atomic.Bool
	wg       sync.WaitGroup

	start, end, fail []int16
}

func New(player audio.Player) *Beeper {
	return &Beeper{
		player: player,
		start:  generateTick(sampleRate, startFreq, tail, startVolume, startDecay),
		end:    generateTick(sampleRate, endFreq, tail, endVolume, endDecay),
		fail:   generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay),
	}
}

func (b *Beeper) Disable() { b.disabled.Store(true) }

func (b *Beeper) Start() { b.play("start", b.start) }
func (b *Beeper) End()   { b.play("end", b.end) }
func (b *Beeper) Error() { b.play("error", b.fail) }

// Wait blocks until every beep has finished playing.
func (b *Beeper) Wait() { b.wg.Wait() }

func (b *Beeper) play(name string, samples []int16) {
	if b == nil || b.player == nil || b.disabled.Load() {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()
		if err := b.player.Play(ctx, samples, sampleRate, 1); err != nil {
			log.Warnf("%s beep: %v", name, err)
		}
	}()
}

func generateTick(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}
