package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionCanceled = errors.New("device selection canceled")

// DeviceByName returns the capture device called name.
func DeviceByName(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no device named %q", ErrDeviceUnavailable, name)
}

// SelectDevice lets the user pick a capture device with the arrow keys.
// The cursor starts on the device called current, if there is one. With a
// single device there is nothing to ask.
func SelectDevice(ctx Context, current string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, ErrDeviceUnavailable
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := newDevicePicker(devices, current)
	p.render(os.Stdout)
	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		done, err := p.key(buf[:n])
		if done || err != nil {
			fmt.Print("\r\n")
			if err != nil {
				return nil, err
			}
			return &p.devices[p.cursor], nil
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		p.render(os.Stdout)
	}
}

type devicePicker struct {
	devices []DeviceInfo
	cursor  int
}

func newDevicePicker(devices []DeviceInfo, current string) *devicePicker {
	p := &devicePicker{devices: devices}
	for i, d := range devices {
		if d.Name == current {
			p.cursor = i
		}
	}
	return p
}

// key applies one raw terminal read. done is set on Enter; Ctrl+C
// returns ErrSelectionCanceled.
func (p *devicePicker) key(b []byte) (done bool, err error) {
	switch {
	case len(b) == 1 && b[0] == '\r':
		return true, nil
	case len(b) == 1 && b[0] == 3:
		return false, ErrSelectionCanceled
	case len(b) == 1 && b[0] == 'k', len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'A':
		p.cursor = max(p.cursor-1, 0)
	case len(b) == 1 && b[0] == 'j', len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'B':
		p.cursor = min(p.cursor+1, len(p.devices)-1)
	}
	return false, nil
}

func (p *devicePicker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[bluetooth: lower quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, tag)
		}
	}
}
