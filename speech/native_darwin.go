//go:build darwin

package speech

func NewNative() (*Native, error) {
	return firstAvailable(say)
}
