//go:build windows

package speech

func NewNative() (*Native, error) {
	return firstAvailable(systemSpeech)
}
