//go:build windows

package shutdown

import (
	"os"
	"os/signal"
)

// Notify relays the signals that end a session or a doctor run to ch.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
