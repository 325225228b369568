//go:build linux

package speech

// NewNative prefers espeak-ng and falls back to speech-dispatcher.
func NewNative() (*Native, error) {
	return firstAvailable(espeak, spdSay)
}
