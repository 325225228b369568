package audio

import (
	"errors"
	"strings"
	"testing"
)

func TestDeviceByName(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)

	dev, err := DeviceByName(ctx, "fake")
	if err != nil || dev.ID != "fake" {
		t.Fatalf("DeviceByName(fake) = %+v, %v", dev, err)
	}

	if _, err := DeviceByName(ctx, "USB Mic"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("missing device: %v", err)
	}
}

func TestSelectDeviceSingle(t *testing.T) {
	dev, err := SelectDevice(NewFakeContextPCM(nil, false), "")
	if err != nil || dev.Name != "fake" {
		t.Errorf("SelectDevice = %+v, %v", dev, err)
	}

	ctx := NewFakeContextPCM(nil, false)
	ctx.NoDevices = true
	if _, err := SelectDevice(ctx, ""); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("no devices: %v", err)
	}
}

var pickerDevices = []DeviceInfo{
	{ID: "a", Name: "Built-in Microphone"},
	{ID: "b", Name: "AirPods Pro"},
	{ID: "c", Name: "USB Mic"},
}

func TestDevicePickerKeys(t *testing.T) {
	tests := []struct {
		name    string
		current string
		keys    []string
		want    int
		err     error
	}{
		{"starts on current", "USB Mic", nil, 2, nil},
		{"unknown current", "Webcam", nil, 0, nil},
		{"down twice", "", []string{"j", "\x1b[B"}, 2, nil},
		{"clamps at bottom", "USB Mic", []string{"j", "\x1b[B"}, 2, nil},
		{"clamps at top", "", []string{"k", "\x1b[A"}, 0, nil},
		{"up from current", "USB Mic", []string{"\x1b[A"}, 1, nil},
		{"ignores other keys", "", []string{"x", "\x1b[C"}, 0, nil},
		{"ctrl+c", "", []string{"j", "\x03"}, 1, ErrSelectionCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newDevicePicker(pickerDevices, tt.current)
			var err error
			for _, k := range tt.keys {
				if _, err = p.key([]byte(k)); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if p.cursor != tt.want {
				t.Errorf("cursor = %d, want %d", p.cursor, tt.want)
			}
		})
	}

	p := newDevicePicker(pickerDevices, "")
	if done, err := p.key([]byte("\r")); !done || err != nil {
		t.Errorf("enter: done=%v err=%v", done, err)
	}
}

func TestDevicePickerRender(t *testing.T) {
	var b strings.Builder
	newDevicePicker(pickerDevices, "AirPods Pro").render(&b)
	out := b.String()

	if !strings.Contains(out, "▶ AirPods Pro") {
		t.Errorf("cursor not on current device:\n%q", out)
	}
	if strings.Count(out, "[bluetooth: lower quality]") != 1 {
		t.Errorf("expected one bluetooth tag:\n%q", out)
	}
	if strings.Count(out, "\r\n") != len(pickerDevices)+2 {
		t.Errorf("line count changed, redraw would drift:\n%q", out)
	}
}
