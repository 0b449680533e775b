//go:build windows

package subprocess

import (
	"errors"
	"os"
)

// terminateProcess kills the child. Windows has no graceful signal, so the
// stdin EOF sent by Terminate is the only polite shutdown cue.
func terminateProcess(proc *os.Process) error {
	return killProcess(proc)
}

func killProcess(proc *os.Process) error {
	err := proc.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
