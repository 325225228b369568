//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes raw mode left behind by the device picker or a
// speech command that grabbed the tty.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
