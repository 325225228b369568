//go:build !linux && !darwin && !windows

package speech

func NewNative() (*Native, error) {
	return firstAvailable(espeak)
}
